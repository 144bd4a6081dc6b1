package diag

// MaxCharacter is the largest column an LSP position can carry.
// A range ending here covers the whole line.
const MaxCharacter = 2147483647

// Position is a 0-based line/character pair.
type Position struct {
	Line      int
	Character int
}

// Range is a 0-based start/end pair.
type Range struct {
	Start Position
	End   Position
}

type Diagnostic struct {
	Range    Range
	Severity Severity
	Source   string
	Code     string
	Message  string
}

// ZeroBased converts a 1-based line/column pair into editor addressing.
// Values are not clamped.
func ZeroBased(line, column int) Position {
	return Position{Line: line - 1, Character: column - 1}
}

// ZeroBasedRange converts each of the four 1-based coordinates independently.
func ZeroBasedRange(startLine, startCol, endLine, endCol int) Range {
	return Range{
		Start: ZeroBased(startLine, startCol),
		End:   ZeroBased(endLine, endCol),
	}
}

// LineWarning builds a warning spanning the whole first line.
func LineWarning(source, message string) Diagnostic {
	return Diagnostic{
		Range: Range{
			Start: Position{Line: 0, Character: 0},
			End:   Position{Line: 0, Character: MaxCharacter},
		},
		Severity: SevWarning,
		Source:   source,
		Message:  message,
	}
}
