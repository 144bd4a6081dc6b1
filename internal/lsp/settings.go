package lsp

import (
	"bytes"
	"encoding/json"

	"cfnls/internal/trace"
	"cfnls/internal/validate"
)

// handleDidChangeConfiguration replaces the validator settings and
// revalidates every open document. A missing cfnLint section resets to the
// default command.
func (s *Server) handleDidChangeConfiguration(msg *rpcMessage) error {
	var params didChangeConfigurationParams
	if len(msg.Params) > 0 {
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			s.logf("didChangeConfiguration: invalid params: %v", err)
			return nil
		}
	}
	settings, _ := s.decodeSettings(params.Settings)
	trace.Point(s.tracer(), trace.ScopeServer, "didChangeConfiguration", settings.Command(), 0)
	s.coordinator.ConfigurationChanged(s.context(), settings, s.openDocuments())
	return nil
}

// applySettings installs settings sent with initialize. Options without a
// cfnLint section keep the startup settings. No documents are open yet, so
// nothing is revalidated.
func (s *Server) applySettings(raw json.RawMessage) {
	settings, ok := s.decodeSettings(raw)
	if !ok {
		return
	}
	s.coordinator.ConfigurationChanged(s.context(), settings, nil)
}

// decodeSettings reads the "cfnLint" section. It reports false when the
// section is absent or unreadable; the returned settings are then zero.
func (s *Server) decodeSettings(raw json.RawMessage) (validate.Settings, bool) {
	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return validate.Settings{}, false
	}
	var settings lspSettings
	if err := json.Unmarshal(raw, &settings); err != nil {
		s.logf("invalid settings: %v", err)
		return validate.Settings{}, false
	}
	if settings.CfnLint == nil {
		return validate.Settings{}, false
	}
	return validate.Settings{
		Path:        settings.CfnLint.Path,
		IgnoreRules: settings.CfnLint.IgnoreRules,
		AppendRules: settings.CfnLint.AppendRules,
	}, true
}
