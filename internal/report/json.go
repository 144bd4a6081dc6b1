package report

import (
	"encoding/json"
	"io"

	"cfnls/internal/diag"
)

// LocationJSON uses 1-based lines and columns. EndCol is omitted when the
// diagnostic runs to the end of the line.
type LocationJSON struct {
	StartLine int `json:"start_line"`
	StartCol  int `json:"start_col"`
	EndLine   int `json:"end_line"`
	EndCol    int `json:"end_col,omitempty"`
}

type DiagnosticJSON struct {
	Severity string       `json:"severity"`
	Code     string       `json:"code,omitempty"`
	Source   string       `json:"source,omitempty"`
	Message  string       `json:"message"`
	Location LocationJSON `json:"location"`
}

type FileJSON struct {
	Path        string           `json:"path"`
	Diagnostics []DiagnosticJSON `json:"diagnostics"`
}

type Output struct {
	Files []FileJSON `json:"files"`
	Count int        `json:"count"`
}

// BuildOutput shapes results for JSON without serialising them.
func BuildOutput(results []Result) Output {
	out := Output{Files: make([]FileJSON, 0, len(results))}
	for _, r := range results {
		file := FileJSON{Path: r.Path, Diagnostics: make([]DiagnosticJSON, 0, len(r.Diagnostics))}
		for _, d := range r.Diagnostics {
			loc := LocationJSON{
				StartLine: d.Range.Start.Line + 1,
				StartCol:  d.Range.Start.Character + 1,
				EndLine:   d.Range.End.Line + 1,
			}
			if d.Range.End.Character < diag.MaxCharacter {
				loc.EndCol = d.Range.End.Character + 1
			}
			file.Diagnostics = append(file.Diagnostics, DiagnosticJSON{
				Severity: d.Severity.String(),
				Code:     d.Code,
				Source:   d.Source,
				Message:  d.Message,
				Location: loc,
			})
		}
		out.Count += len(file.Diagnostics)
		out.Files = append(out.Files, file)
	}
	return out
}

// JSON writes results as an indented JSON document.
func JSON(w io.Writer, results []Result) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(BuildOutput(results))
}
