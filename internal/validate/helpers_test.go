package validate

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"cfnls/internal/diag"
)

const badRefOutput = `[{"Location":{"Start":{"LineNumber":"2","ColumnNumber":"1"},"End":{"LineNumber":"2","ColumnNumber":"5"}},"Level":"Warning","Message":"bad ref"}]`

const templateText = "AWSTemplateFormatVersion: \"2010-09-09\"\nResources:\n  Bucket:\n    Type: AWS::S3::Bucket\n"

type launchCall struct {
	command string
	args    []string
}

// fakeLauncher serves canned output. A gate keyed by the --template
// argument holds stdout open until the test closes it.
type fakeLauncher struct {
	mu       sync.Mutex
	calls    []launchCall
	stdout   string
	stderr   []string
	exitCode int
	err      error
	waitErr  error
	gates    map[string]chan struct{}
}

func (f *fakeLauncher) Launch(_ context.Context, command string, args []string) (*Process, error) {
	f.mu.Lock()
	f.calls = append(f.calls, launchCall{command: command, args: append([]string(nil), args...)})
	var gate chan struct{}
	if len(args) >= 4 {
		gate = f.gates[args[3]]
	}
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &Process{
		Stdout: io.NopCloser(&gatedReader{gate: gate, r: strings.NewReader(f.stdout)}),
		Stderr: io.NopCloser(&chunkReader{chunks: append([]string(nil), f.stderr...)}),
		Wait: func() (int, error) {
			return f.exitCode, f.waitErr
		},
	}, nil
}

func (f *fakeLauncher) gate(path string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gates == nil {
		f.gates = make(map[string]chan struct{})
	}
	ch := make(chan struct{})
	f.gates[path] = ch
	return ch
}

func (f *fakeLauncher) recorded() []launchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]launchCall(nil), f.calls...)
}

type gatedReader struct {
	gate <-chan struct{}
	r    io.Reader
}

func (g *gatedReader) Read(p []byte) (int, error) {
	if g.gate != nil {
		<-g.gate
	}
	return g.r.Read(p)
}

// chunkReader returns one chunk per Read call.
type chunkReader struct {
	chunks []string
}

func (c *chunkReader) Read(p []byte) (int, error) {
	if len(c.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, c.chunks[0])
	c.chunks = c.chunks[1:]
	return n, nil
}

type recordingPublisher struct {
	mu      sync.Mutex
	batches []Batch
	err     error
}

func (p *recordingPublisher) PublishDiagnostics(uri string, diags []diag.Diagnostic) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batches = append(p.batches, Batch{URI: uri, Diagnostics: diags})
	return p.err
}

func (p *recordingPublisher) published() []Batch {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Batch(nil), p.batches...)
}

type logRecorder struct {
	mu    sync.Mutex
	lines []string
}

func (l *logRecorder) logf(format string, _ ...any) {
	l.mu.Lock()
	l.lines = append(l.lines, format)
	l.mu.Unlock()
}

func (l *logRecorder) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.lines)
}

var errNotFound = errors.New(`exec: "cfn-lint": executable file not found in $PATH`)
