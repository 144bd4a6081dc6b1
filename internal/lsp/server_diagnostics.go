package lsp

import (
	"cfnls/internal/diag"
	"cfnls/internal/trace"
)

// PublishDiagnostics sends the complete diagnostic set for uri, replacing
// whatever the client showed before. It implements validate.Publisher.
// Results for documents closed while their run was in flight, and any
// results after shutdown, are dropped.
func (s *Server) PublishDiagnostics(uri string, diags []diag.Diagnostic) error {
	list := toLSPDiagnostics(diags)
	s.mu.Lock()
	if _, open := s.openDocs[uri]; !open || s.shutdownRequested {
		s.mu.Unlock()
		trace.Point(s.tracer(), trace.ScopeDocument, "publishDropped", uri, 0)
		return nil
	}
	if len(list) > 0 {
		s.published[uri] = struct{}{}
	} else {
		delete(s.published, uri)
	}
	s.mu.Unlock()
	trace.Point(s.tracer(), trace.ScopeDocument, "publishDiagnostics", uri, 0)
	return s.sendPublish(uri, list)
}

func toLSPDiagnostics(diags []diag.Diagnostic) []lspDiagnostic {
	list := make([]lspDiagnostic, 0, len(diags))
	for _, d := range diags {
		list = append(list, lspDiagnostic{
			Range: lspRange{
				Start: position{Line: d.Range.Start.Line, Character: d.Range.Start.Character},
				End:   position{Line: d.Range.End.Line, Character: d.Range.End.Character},
			},
			Severity: int(d.Severity),
			Code:     d.Code,
			Source:   d.Source,
			Message:  d.Message,
		})
	}
	return list
}

func (s *Server) sendPublish(uri string, list []lspDiagnostic) error {
	if list == nil {
		list = []lspDiagnostic{}
	}
	msg := map[string]any{
		"jsonrpc": "2.0",
		"method":  "textDocument/publishDiagnostics",
		"params": publishDiagnosticsParams{
			URI:         uri,
			Diagnostics: list,
		},
	}
	return s.send(msg)
}

func (s *Server) clearPublishedDiagnostics() {
	s.mu.Lock()
	if len(s.published) == 0 {
		s.mu.Unlock()
		return
	}
	prev := s.published
	s.published = make(map[string]struct{})
	s.mu.Unlock()
	for uri := range prev {
		if err := s.sendPublish(uri, nil); err != nil {
			s.logf("failed to clear diagnostics: %v", err)
		}
	}
}
