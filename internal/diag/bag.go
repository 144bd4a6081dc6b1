package diag

// Bag is an ordered diagnostic collection for a single document.
type Bag struct {
	items []Diagnostic
}

func NewBag(capacity int) *Bag {
	if capacity < 0 {
		capacity = 0
	}
	return &Bag{items: make([]Diagnostic, 0, capacity)}
}

// Add appends a diagnostic.
func (b *Bag) Add(d Diagnostic) {
	b.items = append(b.items, d)
}

// HasErrors reports whether any diagnostic is an error.
func (b *Bag) HasErrors() bool {
	return b.Count(SevError) > 0
}

// Count returns the number of diagnostics with the given severity.
func (b *Bag) Count(sev Severity) int {
	n := 0
	for i := range b.items {
		if b.items[i].Severity == sev {
			n++
		}
	}
	return n
}

func (b *Bag) Len() int {
	return len(b.items)
}

// Items returns a copy of the diagnostics. The result is never nil.
func (b *Bag) Items() []Diagnostic {
	out := make([]Diagnostic, len(b.items))
	copy(out, b.items)
	return out
}

// Merge appends the diagnostics of other, keeping their order.
func (b *Bag) Merge(other *Bag) {
	if other == nil {
		return
	}
	b.items = append(b.items, other.items...)
}
