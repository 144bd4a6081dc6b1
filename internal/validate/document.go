package validate

import "strings"

// DefaultMarker identifies CloudFormation templates.
const DefaultMarker = "AWSTemplateFormatVersion"

// Document is a snapshot of an open editor document.
type Document struct {
	URI  string
	Path string
	Text string
}

// IsTemplate reports whether any line of the document contains one of the
// markers. No markers means DefaultMarker.
func (d Document) IsTemplate(markers []string) bool {
	if len(markers) == 0 {
		markers = []string{DefaultMarker}
	}
	for line := range strings.Lines(d.Text) {
		for _, marker := range markers {
			if marker != "" && strings.Contains(line, marker) {
				return true
			}
		}
	}
	return false
}
