// Package report renders validation results for terminals and scripts.
package report

import (
	"strings"

	"cfnls/internal/diag"
)

// Result is the outcome of validating one file.
type Result struct {
	Path        string
	Text        string
	Diagnostics []diag.Diagnostic
}

// Count returns how many diagnostics of sev the result holds.
func (r Result) Count(sev diag.Severity) int {
	n := 0
	for _, d := range r.Diagnostics {
		if d.Severity == sev {
			n++
		}
	}
	return n
}

// HasErrors reports whether any result carries an Error diagnostic.
func HasErrors(results []Result) bool {
	for _, r := range results {
		if r.Count(diag.SevError) > 0 {
			return true
		}
	}
	return false
}

// Options configures pretty output.
type Options struct {
	Color bool
	// Excerpt prints the offending source line with a caret underline.
	Excerpt bool
}

func sourceLine(text string, line int) (string, bool) {
	if line < 0 {
		return "", false
	}
	i := 0
	for l := range strings.Lines(text) {
		if i == line {
			return strings.TrimRight(l, "\r\n"), true
		}
		i++
	}
	return "", false
}
