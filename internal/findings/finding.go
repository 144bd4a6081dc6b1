package findings

import (
	"cfnls/internal/diag"
)

// Location is a 1-based line/column pair as reported by the validator.
type Location struct {
	Line   int
	Column int
}

// Finding is one issue reported by the validator.
type Finding struct {
	Level    string
	Severity diag.Severity
	Message  string
	Rule     string
	Filename string
	Start    Location
	End      Location
}

// SeverityFromLevel maps the validator's level string to a severity.
// Unknown levels, including "Error", map to SevError.
func SeverityFromLevel(level string) diag.Severity {
	switch level {
	case "Warning":
		return diag.SevWarning
	case "Information":
		return diag.SevInformation
	case "Hint":
		return diag.SevHint
	default:
		return diag.SevError
	}
}

// Diagnostic converts the finding into editor addressing.
func (f Finding) Diagnostic(source string) diag.Diagnostic {
	return diag.Diagnostic{
		Range:    diag.ZeroBasedRange(f.Start.Line, f.Start.Column, f.End.Line, f.End.Column),
		Severity: f.Severity,
		Source:   source,
		Code:     f.Rule,
		Message:  f.Message,
	}
}
