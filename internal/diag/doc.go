// Package diag defines the editor-facing diagnostic model.
//
// # Data model
//
// Diagnostic is the record published to the editor. It contains:
//
//   - Severity – LSP severity (Error, Warning, Information, Hint).
//   - Range – 0-based start/end positions in editor addressing.
//   - Source – the tool that produced the diagnostic.
//   - Code – optional rule identifier reported by the validator.
//   - Message – text shown inline.
//
// The validator reports 1-based lines and columns. ZeroBased and
// ZeroBasedRange shift them into editor addressing without clamping, so a
// position the validator got wrong reaches the editor unchanged.
//
// Bag collects diagnostics for one document in arrival order. It never
// reorders: stream warnings come first, parsed findings follow in the order
// the validator printed them.
package diag
