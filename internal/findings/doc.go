// Package findings parses the validator's JSON report.
//
// The validator prints a JSON array on stdout. Each element looks like:
//
//	{
//	  "Filename": "template.yaml",
//	  "Level": "Warning",
//	  "Message": "bad ref",
//	  "Rule": {"Id": "W1001"},
//	  "Location": {
//	    "Start": {"LineNumber": 2, "ColumnNumber": 1},
//	    "End":   {"LineNumber": 2, "ColumnNumber": 5}
//	  }
//	}
//
// Line and column numbers are 1-based and may be encoded as numbers or as
// numeric strings. Parse keeps array order; Finding.Diagnostic converts a
// finding into editor addressing.
package findings
