package findings

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"fortio.org/safecast"
)

const snippetLimit = 120

// ParseError reports validator output that is not a JSON array of findings.
type ParseError struct {
	Err     error
	Snippet string
}

func (e *ParseError) Error() string {
	if e.Snippet == "" {
		return fmt.Sprintf("invalid validator output (empty): %v", e.Err)
	}
	return fmt.Sprintf("invalid validator output %q: %v", e.Snippet, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

type rawFinding struct {
	Filename string      `json:"Filename"`
	Level    string      `json:"Level"`
	Message  string      `json:"Message"`
	Rule     rawRule     `json:"Rule"`
	Location rawLocation `json:"Location"`
}

type rawRule struct {
	ID string
}

func (r *rawRule) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	switch {
	case len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")):
		return nil
	case trimmed[0] == '"':
		return json.Unmarshal(trimmed, &r.ID)
	case trimmed[0] == '{':
		var obj struct {
			ID string `json:"Id"`
		}
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return err
		}
		r.ID = obj.ID
	}
	return nil
}

type rawLocation struct {
	Start rawPoint `json:"Start"`
	End   rawPoint `json:"End"`
}

type rawPoint struct {
	LineNumber   coord `json:"LineNumber"`
	ColumnNumber coord `json:"ColumnNumber"`
}

// coord accepts 7 as well as "7".
type coord int

func (c *coord) UnmarshalJSON(data []byte) error {
	text := strings.TrimSpace(string(data))
	if text == "null" {
		*c = 0
		return nil
	}
	if strings.HasPrefix(text, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		text = strings.TrimSpace(s)
	}
	n, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return fmt.Errorf("coordinate %s: %w", string(data), err)
	}
	v, err := safecast.Conv[int](n)
	if err != nil {
		return fmt.Errorf("coordinate %s: %w", string(data), err)
	}
	*c = coord(v)
	return nil
}

// Parse decodes the validator's complete stdout.
// Any failure is returned as *ParseError.
func Parse(data []byte) ([]Finding, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, &ParseError{Err: fmt.Errorf("unexpected end of JSON input")}
	}
	if trimmed[0] != '[' {
		if !json.Valid(trimmed) {
			return nil, &ParseError{Err: fmt.Errorf("not valid JSON"), Snippet: snippet(trimmed)}
		}
		return nil, &ParseError{Err: fmt.Errorf("expected a JSON array"), Snippet: snippet(trimmed)}
	}
	var raw []rawFinding
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, &ParseError{Err: err, Snippet: snippet(trimmed)}
	}
	out := make([]Finding, 0, len(raw))
	for _, r := range raw {
		out = append(out, Finding{
			Level:    r.Level,
			Severity: SeverityFromLevel(r.Level),
			Message:  r.Message,
			Rule:     r.Rule.ID,
			Filename: r.Filename,
			Start: Location{
				Line:   int(r.Location.Start.LineNumber),
				Column: int(r.Location.Start.ColumnNumber),
			},
			End: Location{
				Line:   int(r.Location.End.LineNumber),
				Column: int(r.Location.End.ColumnNumber),
			},
		})
	}
	return out, nil
}

func snippet(data []byte) string {
	if len(data) <= snippetLimit {
		return string(data)
	}
	return string(data[:snippetLimit]) + "..."
}
