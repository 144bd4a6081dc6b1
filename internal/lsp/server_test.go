package lsp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"cfnls/internal/validate"
)

const templateText = "AWSTemplateFormatVersion: \"2010-09-09\"\nResources:\n  Bucket:\n    Type: AWS::S3::Bucket\n"

const warningOutput = `[{"Filename":"t.yaml","Level":"Warning","Message":"bad ref","Rule":{"Id":"W1001"},` +
	`"Location":{"Start":{"LineNumber":3,"ColumnNumber":5},"End":{"LineNumber":3,"ColumnNumber":10}}}]`

type launchCall struct {
	command string
	args    []string
}

type stubLauncher struct {
	mu     sync.Mutex
	stdout string
	stderr string
	calls  []launchCall
}

func (l *stubLauncher) Launch(_ context.Context, command string, args []string) (*validate.Process, error) {
	l.mu.Lock()
	l.calls = append(l.calls, launchCall{command: command, args: append([]string(nil), args...)})
	stdout, stderr := l.stdout, l.stderr
	l.mu.Unlock()
	return &validate.Process{
		Stdout: io.NopCloser(strings.NewReader(stdout)),
		Stderr: io.NopCloser(strings.NewReader(stderr)),
		Wait:   func() (int, error) { return 0, nil },
	}, nil
}

func (l *stubLauncher) recorded() []launchCall {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]launchCall(nil), l.calls...)
}

type testServer struct {
	*Server
	out *bytes.Buffer
	log *bytes.Buffer
}

func newTestServer(t *testing.T, launcher *stubLauncher) *testServer {
	t.Helper()
	out := &bytes.Buffer{}
	log := &bytes.Buffer{}
	s := NewServer(strings.NewReader(""), out, ServerOptions{
		Launcher: launcher,
		Version:  "test",
		Log:      log,
	})
	return &testServer{Server: s, out: out, log: log}
}

func (ts *testServer) notify(t *testing.T, method string, params any) {
	t.Helper()
	if err := ts.handleMessage(request(t, nil, method, params)); err != nil {
		t.Fatalf("%s: %v", method, err)
	}
}

func request(t *testing.T, id any, method string, params any) *rpcMessage {
	t.Helper()
	msg := &rpcMessage{JSONRPC: "2.0", Method: method}
	if id != nil {
		raw, err := json.Marshal(id)
		if err != nil {
			t.Fatalf("marshal id: %v", err)
		}
		msg.ID = raw
	}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			t.Fatalf("marshal params: %v", err)
		}
		msg.Params = raw
	}
	return msg
}

// drain waits for pending runs and decodes every framed message written so far.
func (ts *testServer) drain(t *testing.T) []rpcMessage {
	t.Helper()
	ts.Coordinator().Wait()
	reader := bufio.NewReader(bytes.NewReader(ts.out.Bytes()))
	ts.out.Reset()
	var msgs []rpcMessage
	for {
		payload, err := readMessage(reader)
		if errors.Is(err, io.EOF) {
			return msgs
		}
		if err != nil {
			t.Fatalf("read message: %v", err)
		}
		var msg rpcMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			t.Fatalf("decode message: %v", err)
		}
		msgs = append(msgs, msg)
	}
}

func publishes(t *testing.T, msgs []rpcMessage) []publishDiagnosticsParams {
	t.Helper()
	var out []publishDiagnosticsParams
	for _, msg := range msgs {
		if msg.Method != "textDocument/publishDiagnostics" {
			continue
		}
		var params publishDiagnosticsParams
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			t.Fatalf("decode publish: %v", err)
		}
		if params.Diagnostics == nil {
			t.Fatalf("publish for %s carried null diagnostics", params.URI)
		}
		out = append(out, params)
	}
	return out
}

func docURI(t *testing.T, name string) string {
	t.Helper()
	return pathToURI(filepath.Join(t.TempDir(), name))
}

func openParams(uri, text string) didOpenTextDocumentParams {
	return didOpenTextDocumentParams{TextDocument: textDocumentItem{
		URI:        uri,
		LanguageID: "yaml",
		Version:    1,
		Text:       text,
	}}
}

func TestInitializeAdvertisesSyncAndAppliesOptions(t *testing.T) {
	ts := newTestServer(t, &stubLauncher{})
	params := map[string]any{
		"rootUri": "file:///tmp/project",
		"initializationOptions": map[string]any{
			"cfnLint": map[string]any{"path": "/opt/bin/cfn-lint", "ignoreRules": []string{"W3005"}},
		},
	}
	if err := ts.handleMessage(request(t, 1, "initialize", params)); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	msgs := ts.drain(t)
	if len(msgs) != 1 {
		t.Fatalf("expected one response, got %d", len(msgs))
	}
	var result initializeResult
	if err := json.Unmarshal(msgs[0].Result, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	opts := result.Capabilities.TextDocumentSync
	if !opts.OpenClose || opts.Change != 2 || !opts.Save.IncludeText {
		t.Fatalf("unexpected sync options: %+v", opts)
	}
	if result.ServerInfo == nil || result.ServerInfo.Name != "cfnls" || result.ServerInfo.Version != "test" {
		t.Fatalf("unexpected server info: %+v", result.ServerInfo)
	}
	settings := ts.Coordinator().Settings()
	if settings.Command() != "/opt/bin/cfn-lint" {
		t.Fatalf("initialization options not applied: %+v", settings)
	}
	if len(settings.IgnoreRules) != 1 || settings.IgnoreRules[0] != "W3005" {
		t.Fatalf("ignore rules not applied: %+v", settings.IgnoreRules)
	}
}

func TestDidOpenPublishesTranslatedDiagnostics(t *testing.T) {
	launcher := &stubLauncher{stdout: warningOutput}
	ts := newTestServer(t, launcher)
	uri := docURI(t, "stack.yaml")

	ts.notify(t, "textDocument/didOpen", openParams(uri, templateText))
	got := publishes(t, ts.drain(t))
	if len(got) != 1 {
		t.Fatalf("expected one publish, got %d", len(got))
	}
	if got[0].URI != uri {
		t.Fatalf("publish uri = %q, want %q", got[0].URI, uri)
	}
	if len(got[0].Diagnostics) != 1 {
		t.Fatalf("expected one diagnostic, got %+v", got[0].Diagnostics)
	}
	d := got[0].Diagnostics[0]
	want := lspRange{Start: position{Line: 2, Character: 4}, End: position{Line: 2, Character: 9}}
	if d.Range != want {
		t.Fatalf("range = %+v, want %+v", d.Range, want)
	}
	if d.Severity != 2 || d.Code != "W1001" || d.Source != "cfn-lint" || d.Message != "bad ref" {
		t.Fatalf("unexpected diagnostic: %+v", d)
	}

	calls := launcher.recorded()
	if len(calls) != 1 {
		t.Fatalf("expected one launch, got %d", len(calls))
	}
	path := uriToPath(uri)
	wantArgs := []string{"--format", "json", "--template", path}
	if calls[0].command != "cfn-lint" || strings.Join(calls[0].args, " ") != strings.Join(wantArgs, " ") {
		t.Fatalf("unexpected launch: %+v", calls[0])
	}
}

func TestNonTemplatePublishesEmptyList(t *testing.T) {
	ts := newTestServer(t, &stubLauncher{stdout: warningOutput})
	uri := docURI(t, "values.yaml")

	ts.notify(t, "textDocument/didOpen", openParams(uri, "key: value\n"))
	got := publishes(t, ts.drain(t))
	if len(got) != 1 || len(got[0].Diagnostics) != 0 {
		t.Fatalf("expected one empty publish, got %+v", got)
	}
}

func TestStderrBecomesLineWarning(t *testing.T) {
	ts := newTestServer(t, &stubLauncher{stdout: "[]", stderr: "boom"})
	uri := docURI(t, "stack.yaml")

	ts.notify(t, "textDocument/didOpen", openParams(uri, templateText))
	got := publishes(t, ts.drain(t))
	if len(got) != 1 || len(got[0].Diagnostics) != 1 {
		t.Fatalf("expected one warning, got %+v", got)
	}
	d := got[0].Diagnostics[0]
	if d.Severity != 2 || d.Message != "boom" {
		t.Fatalf("unexpected warning: %+v", d)
	}
	if d.Range.Start != (position{}) || d.Range.End.Line != 0 || d.Range.End.Character != 2147483647 {
		t.Fatalf("unexpected warning range: %+v", d.Range)
	}
}

func TestDidChangeDoesNotValidate(t *testing.T) {
	launcher := &stubLauncher{stdout: "[]"}
	ts := newTestServer(t, launcher)
	uri := docURI(t, "stack.yaml")

	ts.notify(t, "textDocument/didOpen", openParams(uri, templateText))
	ts.drain(t)
	ts.notify(t, "textDocument/didChange", didChangeTextDocumentParams{
		TextDocument:   versionedTextDocumentIdentifier{URI: uri, Version: 2},
		ContentChanges: []textDocumentContentChangeEvent{{Text: "key: value\n"}},
	})
	if msgs := ts.drain(t); len(msgs) != 0 {
		t.Fatalf("didChange produced output: %+v", msgs)
	}
	if n := len(launcher.recorded()); n != 1 {
		t.Fatalf("expected one launch, got %d", n)
	}
	ts.mu.Lock()
	text := ts.openDocs[canonicalURI(uri)]
	ts.mu.Unlock()
	if text != "key: value\n" {
		t.Fatalf("change not applied: %q", text)
	}
}

func TestDidSaveUsesIncludedText(t *testing.T) {
	launcher := &stubLauncher{stdout: warningOutput}
	ts := newTestServer(t, launcher)
	uri := docURI(t, "stack.yaml")

	ts.notify(t, "textDocument/didOpen", openParams(uri, "key: value\n"))
	if got := publishes(t, ts.drain(t)); len(got) != 1 || len(got[0].Diagnostics) != 0 {
		t.Fatalf("expected empty publish for non-template, got %+v", got)
	}

	text := templateText
	ts.notify(t, "textDocument/didSave", didSaveTextDocumentParams{
		TextDocument: textDocumentIdentifier{URI: uri},
		Text:         &text,
	})
	got := publishes(t, ts.drain(t))
	if len(got) != 1 || len(got[0].Diagnostics) != 1 {
		t.Fatalf("expected findings after save, got %+v", got)
	}
	if n := len(launcher.recorded()); n != 2 {
		t.Fatalf("expected two launches, got %d", n)
	}
}

func TestDidCloseClearsPublishedDiagnostics(t *testing.T) {
	ts := newTestServer(t, &stubLauncher{stdout: warningOutput})
	uri := docURI(t, "stack.yaml")

	ts.notify(t, "textDocument/didOpen", openParams(uri, templateText))
	ts.drain(t)
	ts.notify(t, "textDocument/didClose", didCloseTextDocumentParams{TextDocument: textDocumentIdentifier{URI: uri}})
	got := publishes(t, ts.drain(t))
	if len(got) != 1 || got[0].URI != uri || len(got[0].Diagnostics) != 0 {
		t.Fatalf("expected clearing publish, got %+v", got)
	}

	ts.notify(t, "textDocument/didClose", didCloseTextDocumentParams{TextDocument: textDocumentIdentifier{URI: uri}})
	if msgs := ts.drain(t); len(msgs) != 0 {
		t.Fatalf("second close produced output: %+v", msgs)
	}
}

func TestDidSaveIgnoresDocumentsNotOpen(t *testing.T) {
	launcher := &stubLauncher{stdout: warningOutput}
	ts := newTestServer(t, launcher)
	uri := docURI(t, "stack.yaml")
	text := templateText
	ts.notify(t, "textDocument/didSave", didSaveTextDocumentParams{
		TextDocument: textDocumentIdentifier{URI: uri},
		Text:         &text,
	})
	if msgs := ts.drain(t); len(msgs) != 0 {
		t.Fatalf("save of unopened document produced output: %+v", msgs)
	}
	if n := len(launcher.recorded()); n != 0 {
		t.Fatalf("expected no launches, got %d", n)
	}

	ts.notify(t, "workspace/didChangeConfiguration", map[string]any{"settings": map[string]any{}})
	ts.drain(t)
	if n := len(launcher.recorded()); n != 0 {
		t.Fatalf("configuration change revalidated an unopened document: %d launches", n)
	}
}

// heldLauncher keeps the validator's stdout open until release is closed.
type heldLauncher struct {
	release chan struct{}
	started chan struct{}
}

type heldReader struct {
	release <-chan struct{}
	data    io.Reader
}

func (r *heldReader) Read(p []byte) (int, error) {
	<-r.release
	return r.data.Read(p)
}

func (l *heldLauncher) Launch(context.Context, string, []string) (*validate.Process, error) {
	l.started <- struct{}{}
	return &validate.Process{
		Stdout: io.NopCloser(&heldReader{release: l.release, data: strings.NewReader(warningOutput)}),
		Stderr: io.NopCloser(strings.NewReader("")),
		Wait:   func() (int, error) { return 0, nil },
	}, nil
}

func TestResultsAfterCloseOrShutdownAreDropped(t *testing.T) {
	for _, tc := range []struct {
		name   string
		method string
	}{
		{name: "close", method: "textDocument/didClose"},
		{name: "shutdown", method: "shutdown"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			launcher := &heldLauncher{release: make(chan struct{}), started: make(chan struct{}, 1)}
			out := &bytes.Buffer{}
			s := NewServer(strings.NewReader(""), out, ServerOptions{Launcher: launcher, Log: io.Discard})
			ts := &testServer{Server: s, out: out, log: &bytes.Buffer{}}
			uri := docURI(t, "stack.yaml")

			ts.notify(t, "textDocument/didOpen", openParams(uri, templateText))
			<-launcher.started
			if tc.method == "shutdown" {
				if err := ts.handleMessage(request(t, 1, "shutdown", nil)); err != nil {
					t.Fatalf("shutdown: %v", err)
				}
			} else {
				ts.notify(t, tc.method, didCloseTextDocumentParams{TextDocument: textDocumentIdentifier{URI: uri}})
			}
			close(launcher.release)
			if got := publishes(t, ts.drain(t)); len(got) != 0 {
				t.Fatalf("late results were published: %+v", got)
			}
			s.mu.Lock()
			_, tracked := s.published[uri]
			s.mu.Unlock()
			if tracked {
				t.Fatalf("late results re-added %s to the published set", uri)
			}
		})
	}
}

func TestConfigurationChangeRevalidatesOpenDocuments(t *testing.T) {
	launcher := &stubLauncher{stdout: "[]"}
	ts := newTestServer(t, launcher)
	first := docURI(t, "a.yaml")
	second := docURI(t, "b.yaml")

	ts.notify(t, "textDocument/didOpen", openParams(first, templateText))
	ts.notify(t, "textDocument/didOpen", openParams(second, templateText))
	ts.drain(t)

	ts.notify(t, "workspace/didChangeConfiguration", map[string]any{
		"settings": map[string]any{"cfnLint": map[string]any{"path": "/usr/local/bin/cfn-lint", "appendRules": []string{"rules/"}}},
	})
	got := publishes(t, ts.drain(t))
	if len(got) != 2 {
		t.Fatalf("expected two publishes, got %d", len(got))
	}
	calls := launcher.recorded()
	if len(calls) != 4 {
		t.Fatalf("expected four launches, got %d", len(calls))
	}
	for _, call := range calls[2:] {
		if call.command != "/usr/local/bin/cfn-lint" {
			t.Fatalf("new path not used: %+v", call)
		}
		args := strings.Join(call.args, " ")
		if !strings.HasSuffix(args, "--append-rules rules/") {
			t.Fatalf("append rules missing: %q", args)
		}
	}
}

func TestConfigurationWithoutSectionFallsBackToDefault(t *testing.T) {
	launcher := &stubLauncher{stdout: "[]"}
	ts := newTestServer(t, launcher)
	ts.notify(t, "workspace/didChangeConfiguration", map[string]any{
		"settings": map[string]any{"cfnLint": map[string]any{"path": "/a/cfn-lint"}},
	})
	uri := docURI(t, "stack.yaml")
	ts.notify(t, "textDocument/didOpen", openParams(uri, templateText))
	ts.drain(t)

	for i, settings := range []any{
		map[string]any{},
		map[string]any{"yaml": map[string]any{}},
		nil,
	} {
		ts.notify(t, "workspace/didChangeConfiguration", map[string]any{"settings": settings})
		if got := ts.Coordinator().Settings().Command(); got != "cfn-lint" {
			t.Fatalf("change %d: expected default command, got %q", i, got)
		}
		if got := publishes(t, ts.drain(t)); len(got) != 1 || got[0].URI != uri {
			t.Fatalf("change %d: expected a rescan of the open document, got %+v", i, got)
		}
		calls := launcher.recorded()
		if last := calls[len(calls)-1]; last.command != "cfn-lint" {
			t.Fatalf("change %d: rescan used %q", i, last.command)
		}
	}
	if n := len(launcher.recorded()); n != 4 {
		t.Fatalf("expected four launches, got %d", n)
	}

	ts.notify(t, "workspace/didChangeConfiguration", map[string]any{
		"settings": map[string]any{"cfnLint": map[string]any{"path": ""}},
	})
	if got := ts.Coordinator().Settings().Command(); got != "cfn-lint" {
		t.Fatalf("empty path should fall back to default, got %q", got)
	}
	ts.drain(t)
}

func TestInitializeWithoutSectionKeepsStartupSettings(t *testing.T) {
	out := &bytes.Buffer{}
	s := NewServer(strings.NewReader(""), out, ServerOptions{
		Launcher: &stubLauncher{},
		Settings: validate.Settings{Path: "/opt/cfn-lint"},
		Log:      &bytes.Buffer{},
	})
	msg := request(t, 1, "initialize", map[string]any{"initializationOptions": map[string]any{"other": true}})
	if err := s.handleMessage(msg); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if got := s.Coordinator().Settings().Command(); got != "/opt/cfn-lint" {
		t.Fatalf("startup settings replaced: %q", got)
	}
}

func TestInvalidNotificationParamsAreLogged(t *testing.T) {
	ts := newTestServer(t, &stubLauncher{})
	msg := &rpcMessage{JSONRPC: "2.0", Method: "textDocument/didOpen", Params: json.RawMessage(`{"textDocument":7}`)}
	if err := ts.handleMessage(msg); err != nil {
		t.Fatalf("invalid params should not be fatal: %v", err)
	}
	if !strings.Contains(ts.log.String(), "cfnls: didOpen: invalid params") {
		t.Fatalf("expected log line, got %q", ts.log.String())
	}
}

func TestUnknownRequestReturnsMethodNotFound(t *testing.T) {
	ts := newTestServer(t, &stubLauncher{})
	if err := ts.handleMessage(request(t, 7, "textDocument/hover", nil)); err != nil {
		t.Fatalf("hover: %v", err)
	}
	ts.notify(t, "$/cancelRequest", map[string]any{"id": 3})
	msgs := ts.drain(t)
	if len(msgs) != 1 {
		t.Fatalf("expected one response, got %d", len(msgs))
	}
	if msgs[0].Error == nil || msgs[0].Error.Code != codeMethodNotFound {
		t.Fatalf("expected method not found, got %+v", msgs[0])
	}
	if string(msgs[0].ID) != "7" {
		t.Fatalf("response id = %s", msgs[0].ID)
	}
}

func TestExitWithoutShutdown(t *testing.T) {
	ts := newTestServer(t, &stubLauncher{})
	if err := ts.handleMessage(request(t, nil, "exit", nil)); !errors.Is(err, ErrExitWithoutShutdown) {
		t.Fatalf("expected ErrExitWithoutShutdown, got %v", err)
	}
}

func TestRequestsAfterShutdownAreRejected(t *testing.T) {
	ts := newTestServer(t, &stubLauncher{})
	if err := ts.handleMessage(request(t, 1, "shutdown", nil)); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if err := ts.handleMessage(request(t, 2, "initialize", map[string]any{})); err != nil {
		t.Fatalf("initialize after shutdown: %v", err)
	}
	msgs := ts.drain(t)
	if len(msgs) != 2 {
		t.Fatalf("expected two responses, got %d", len(msgs))
	}
	if msgs[1].Error == nil || msgs[1].Error.Code != codeInvalidRequest {
		t.Fatalf("expected invalid request, got %+v", msgs[1])
	}
	if err := ts.handleMessage(request(t, nil, "exit", nil)); !errors.Is(err, ErrExit) {
		t.Fatalf("expected ErrExit, got %v", err)
	}
}

func TestRunServesFramedSession(t *testing.T) {
	var in bytes.Buffer
	for _, raw := range []string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`,
		`{"jsonrpc":"2.0","method":"initialized","params":{}}`,
		`{"jsonrpc":"2.0","id":2,"method":"shutdown"}`,
		`{"jsonrpc":"2.0","method":"exit"}`,
	} {
		if err := writeMessage(&in, []byte(raw)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	var out bytes.Buffer
	s := NewServer(&in, &out, ServerOptions{Launcher: &stubLauncher{}, Log: io.Discard})
	if err := s.Run(context.Background()); !errors.Is(err, ErrExit) {
		t.Fatalf("expected ErrExit, got %v", err)
	}
	reader := bufio.NewReader(&out)
	for _, id := range []string{"1", "2"} {
		payload, err := readMessage(reader)
		if err != nil {
			t.Fatalf("read response %s: %v", id, err)
		}
		var msg rpcMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			t.Fatalf("decode response %s: %v", id, err)
		}
		if string(msg.ID) != id || msg.Error != nil {
			t.Fatalf("unexpected response: %s", payload)
		}
	}
}

func TestRunReturnsNilAtEndOfInput(t *testing.T) {
	s := NewServer(strings.NewReader(""), io.Discard, ServerOptions{Launcher: &stubLauncher{}, Log: io.Discard})
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("expected nil at EOF, got %v", err)
	}
}
