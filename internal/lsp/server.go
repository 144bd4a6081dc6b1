package lsp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"cfnls/internal/trace"
	"cfnls/internal/validate"
)

var (
	// ErrExit signals a graceful shutdown after receiving "exit".
	ErrExit = errors.New("lsp exit")
	// ErrExitWithoutShutdown signals an "exit" without a preceding "shutdown".
	ErrExitWithoutShutdown = errors.New("lsp exit without shutdown")
)

// ServerOptions configures LSP server behavior.
type ServerOptions struct {
	// Launcher starts the validator; nil runs it as a process.
	Launcher validate.Launcher
	// Settings seeds the validator settings until the client sends its own.
	Settings validate.Settings
	Markers  []string
	Exclude  []string
	// Version is reported in serverInfo.
	Version string
	// Log receives "cfnls: ..." lines; nil means stderr.
	Log io.Writer
}

// Server handles stdio JSON-RPC for cfnls.
type Server struct {
	in        *bufio.Reader
	out       *bufio.Writer
	sendMu    sync.Mutex
	mu        sync.Mutex
	openDocs  map[string]string
	versions  map[string]int
	published map[string]struct{}

	workspaceRoot     string
	shutdownRequested bool
	baseCtx           context.Context
	coordinator       *validate.Coordinator
	version           string
	log               io.Writer
}

// NewServer constructs a new LSP server.
func NewServer(in io.Reader, out io.Writer, opts ServerOptions) *Server {
	log := opts.Log
	if log == nil {
		log = os.Stderr
	}
	s := &Server{
		in:        bufio.NewReader(in),
		out:       bufio.NewWriter(out),
		openDocs:  make(map[string]string),
		versions:  make(map[string]int),
		published: make(map[string]struct{}),
		version:   opts.Version,
		log:       log,
	}
	s.coordinator = validate.NewCoordinator(s, validate.Options{
		Launcher: opts.Launcher,
		Settings: opts.Settings,
		Markers:  opts.Markers,
		Exclude:  opts.Exclude,
		Logf:     s.logf,
	})
	return s
}

// Coordinator exposes the validation coordinator driven by this server.
func (s *Server) Coordinator() *validate.Coordinator {
	return s.coordinator
}

// Run serves LSP requests until exit or end of input.
func (s *Server) Run(ctx context.Context) error {
	s.baseCtx = ctx
	for {
		payload, err := readMessage(s.in)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		var msg rpcMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			s.logf("failed to parse message: %v", err)
			continue
		}
		if msg.Method == "" {
			continue
		}
		if err := s.handleMessage(&msg); err != nil {
			return err
		}
	}
}

func (s *Server) handleMessage(msg *rpcMessage) error {
	if s.isShutdown() && msg.Method != "exit" {
		if len(msg.ID) > 0 {
			return s.sendError(msg.ID, codeInvalidRequest, "server is shutting down")
		}
		return nil
	}
	switch msg.Method {
	case "initialize":
		return s.handleInitialize(msg)
	case "initialized":
		return nil
	case "shutdown":
		return s.handleShutdown(msg)
	case "exit":
		if s.isShutdown() {
			return ErrExit
		}
		return ErrExitWithoutShutdown
	case "workspace/didChangeConfiguration":
		return s.handleDidChangeConfiguration(msg)
	case "textDocument/didOpen":
		return s.handleDidOpen(msg)
	case "textDocument/didChange":
		return s.handleDidChange(msg)
	case "textDocument/didSave":
		return s.handleDidSave(msg)
	case "textDocument/didClose":
		return s.handleDidClose(msg)
	default:
		if len(msg.ID) > 0 {
			return s.sendError(msg.ID, codeMethodNotFound, "method not found")
		}
		return nil
	}
}

func (s *Server) handleInitialize(msg *rpcMessage) error {
	var params initializeParams
	if len(msg.Params) > 0 {
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			return s.sendError(msg.ID, codeInvalidParams, "invalid params")
		}
	}
	root := ""
	if params.RootURI != "" {
		root = uriToPath(params.RootURI)
	}
	if root == "" && params.RootPath != "" {
		root = params.RootPath
	}
	if root == "" && len(params.WorkspaceFolders) > 0 {
		root = uriToPath(params.WorkspaceFolders[0].URI)
	}
	if root != "" {
		if abs, err := filepath.Abs(root); err == nil {
			root = abs
		}
	}
	s.mu.Lock()
	s.workspaceRoot = root
	s.mu.Unlock()
	trace.Point(s.tracer(), trace.ScopeServer, "initialize", root, 0)

	if len(params.InitializationOptions) > 0 {
		s.applySettings(params.InitializationOptions)
	}

	result := initializeResult{
		Capabilities: serverCapabilities{
			TextDocumentSync: textDocumentSyncOptions{
				OpenClose: true,
				Change:    2,
				Save: saveOptions{
					IncludeText: true,
				},
			},
		},
		ServerInfo: &serverInfo{Name: "cfnls", Version: s.version},
	}
	return s.sendResponse(msg.ID, result)
}

func (s *Server) handleShutdown(msg *rpcMessage) error {
	s.mu.Lock()
	s.shutdownRequested = true
	s.mu.Unlock()
	trace.Point(s.tracer(), trace.ScopeServer, "shutdown", "", 0)
	s.clearPublishedDiagnostics()
	return s.sendResponse(msg.ID, nil)
}

func (s *Server) handleDidOpen(msg *rpcMessage) error {
	var params didOpenTextDocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		s.logf("didOpen: invalid params: %v", err)
		return nil
	}
	uri := canonicalURI(params.TextDocument.URI)
	if uri == "" {
		return nil
	}
	s.mu.Lock()
	s.openDocs[uri] = params.TextDocument.Text
	s.versions[uri] = params.TextDocument.Version
	doc := s.documentLocked(uri)
	s.mu.Unlock()
	s.coordinator.Open(s.context(), doc)
	return nil
}

func (s *Server) handleDidChange(msg *rpcMessage) error {
	var params didChangeTextDocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		s.logf("didChange: invalid params: %v", err)
		return nil
	}
	uri := canonicalURI(params.TextDocument.URI)
	if uri == "" {
		return nil
	}
	s.mu.Lock()
	if text, ok := s.openDocs[uri]; ok {
		s.openDocs[uri] = applyChanges(text, params.ContentChanges)
		s.versions[uri] = params.TextDocument.Version
	}
	s.mu.Unlock()
	return nil
}

func (s *Server) handleDidSave(msg *rpcMessage) error {
	var params didSaveTextDocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		s.logf("didSave: invalid params: %v", err)
		return nil
	}
	uri := canonicalURI(params.TextDocument.URI)
	if uri == "" {
		return nil
	}
	s.mu.Lock()
	if _, open := s.openDocs[uri]; !open {
		s.mu.Unlock()
		return nil
	}
	if params.Text != nil {
		s.openDocs[uri] = *params.Text
	}
	doc := s.documentLocked(uri)
	s.mu.Unlock()
	s.coordinator.Save(s.context(), doc)
	return nil
}

func (s *Server) handleDidClose(msg *rpcMessage) error {
	var params didCloseTextDocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		s.logf("didClose: invalid params: %v", err)
		return nil
	}
	uri := canonicalURI(params.TextDocument.URI)
	if uri == "" {
		return nil
	}
	s.mu.Lock()
	delete(s.openDocs, uri)
	delete(s.versions, uri)
	_, hadDiagnostics := s.published[uri]
	delete(s.published, uri)
	s.mu.Unlock()
	trace.Point(s.tracer(), trace.ScopeDocument, "didClose", uri, 0)
	if hadDiagnostics {
		if err := s.sendPublish(uri, nil); err != nil {
			s.logf("failed to clear diagnostics: %v", err)
		}
	}
	return nil
}

// documentLocked snapshots an open document. Callers hold s.mu.
func (s *Server) documentLocked(uri string) validate.Document {
	return validate.Document{
		URI:  uri,
		Path: uriToPath(uri),
		Text: s.openDocs[uri],
	}
}

// openDocuments snapshots every open document in URI order.
func (s *Server) openDocuments() []validate.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	uris := make([]string, 0, len(s.openDocs))
	for uri := range s.openDocs {
		uris = append(uris, uri)
	}
	sort.Strings(uris)
	docs := make([]validate.Document, 0, len(uris))
	for _, uri := range uris {
		docs = append(docs, s.documentLocked(uri))
	}
	return docs
}

func (s *Server) isShutdown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shutdownRequested
}

func (s *Server) context() context.Context {
	if s.baseCtx == nil {
		return context.Background()
	}
	return s.baseCtx
}

func (s *Server) tracer() trace.Tracer {
	return trace.FromContext(s.context())
}

func (s *Server) sendResponse(id json.RawMessage, result any) error {
	msg := map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"result":  result,
	}
	return s.send(msg)
}

func (s *Server) sendError(id json.RawMessage, code int, message string) error {
	msg := map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"error": rpcError{
			Code:    code,
			Message: message,
		},
	}
	return s.send(msg)
}

func (s *Server) send(msg any) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if err := writeMessage(s.out, payload); err != nil {
		return err
	}
	return s.out.Flush()
}

func (s *Server) logf(format string, args ...any) {
	fmt.Fprintf(s.log, "cfnls: "+format+"\n", args...)
}
