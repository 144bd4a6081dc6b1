package diag

// Severity defines the importance of a diagnostic.
// Values match the LSP DiagnosticSeverity numbering.
type Severity uint8

const (
	// SevError is the default for anything the validator reports.
	SevError Severity = iota + 1
	// SevWarning is for warnings, including validator stderr output.
	SevWarning
	SevInformation
	SevHint
)

func (s Severity) String() string {
	switch s {
	case SevError:
		return "Error"
	case SevWarning:
		return "Warning"
	case SevInformation:
		return "Information"
	case SevHint:
		return "Hint"
	}
	return "Unknown"
}
