// Package validate runs the external template validator and turns its
// output into diagnostics.
//
// A Coordinator owns the validator settings and the set of documents with a
// run in flight. Open and Save start a Run unless one is already in flight
// for the same URI; such triggers are dropped, not queued. A Run spawns the
// validator once, drains stderr (each chunk becomes a warning on the first
// line) and stdout (kept verbatim), waits for the process, parses stdout and
// hands the resulting Batch back to the Coordinator, which publishes it and
// releases the URI.
//
// Every run ends with a publish, even when the validator could not be
// started or printed garbage, so stale diagnostics are always replaced.
package validate
