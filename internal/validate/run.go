package validate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"

	"cfnls/internal/diag"
	"cfnls/internal/findings"
	"cfnls/internal/trace"
)

const stderrChunkSize = 4096

// RunState is the lifecycle of a single validator invocation.
type RunState uint8

const (
	RunPending RunState = iota
	RunSpawned
	RunStreaming
	RunTerminated
	RunClosed
)

func (s RunState) String() string {
	switch s {
	case RunPending:
		return "pending"
	case RunSpawned:
		return "spawned"
	case RunStreaming:
		return "streaming"
	case RunTerminated:
		return "terminated"
	case RunClosed:
		return "closed"
	}
	return "unknown"
}

// Batch is the complete diagnostic set for one document.
type Batch struct {
	URI         string
	Diagnostics []diag.Diagnostic
}

// Run is one validator invocation for one document version.
type Run struct {
	Document   Document
	IsTemplate bool
	Settings   Settings
	// Source labels the diagnostics; empty means DefaultSource.
	Source string
	// Logf reports failures that do not become diagnostics.
	Logf func(format string, args ...any)

	mu       sync.Mutex
	state    RunState
	stdout   bytes.Buffer
	warnings *diag.Bag
	exitCode int
	spawnErr error
	waitErr  error
	parseErr error
}

// State returns the current lifecycle state.
func (r *Run) State() RunState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// ExitCode is the validator's exit code once the run terminated.
func (r *Run) ExitCode() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.exitCode
}

// SpawnErr is the error that kept the validator from starting, if any.
func (r *Run) SpawnErr() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.spawnErr
}

// WaitErr is the failure reported while waiting for the process, if any.
func (r *Run) WaitErr() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.waitErr
}

// ParseErr is the stdout parse failure, if any.
func (r *Run) ParseErr() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.parseErr
}

func (r *Run) setState(state RunState) {
	r.mu.Lock()
	r.state = state
	r.mu.Unlock()
}

func (r *Run) source() string {
	if r.Source == "" {
		return DefaultSource
	}
	return r.Source
}

func (r *Run) logf(format string, args ...any) {
	if r.Logf != nil {
		r.Logf(format, args...)
	}
}

// Execute spawns the validator and assembles the batch. It never fails:
// spawn and runtime errors become warnings, unparsable output is dropped.
func (r *Run) Execute(ctx context.Context, launcher Launcher) Batch {
	tracer := trace.FromContext(ctx)
	span := trace.Begin(tracer, trace.ScopeRun, "run", 0).WithExtra("uri", r.Document.URI)
	r.warnings = diag.NewBag(0)

	command := r.Settings.Command()
	args := r.Settings.Args(r.Document.Path)
	proc, err := launcher.Launch(ctx, command, args)
	if err != nil {
		r.mu.Lock()
		r.spawnErr = err
		r.mu.Unlock()
		r.warnings.Add(diag.LineWarning(r.source(), err.Error()))
		r.setState(RunClosed)
		batch := r.batch(nil)
		span.WithExtra("diagnostics", strconv.Itoa(len(batch.Diagnostics))).End("spawn failed")
		return batch
	}
	r.setState(RunSpawned)
	trace.Point(tracer, trace.ScopeRun, "spawned", command, span.ID())

	r.setState(RunStreaming)
	var g errgroup.Group
	g.Go(func() error {
		_, err := io.Copy(&r.stdout, proc.Stdout)
		return err
	})
	g.Go(func() error {
		return r.drainStderr(tracer, proc.Stderr, span.ID())
	})
	if err := g.Wait(); err != nil {
		r.logf("reading %s output: %v", command, err)
	}

	exitCode, waitErr := proc.Wait()
	r.mu.Lock()
	r.exitCode = exitCode
	r.waitErr = waitErr
	r.state = RunTerminated
	r.mu.Unlock()
	if waitErr != nil {
		r.warnings.Add(diag.LineWarning(r.source(), waitErr.Error()))
	}

	parsed, err := findings.Parse(r.stdout.Bytes())
	if err != nil {
		r.mu.Lock()
		r.parseErr = err
		r.mu.Unlock()
		r.logf("%s: %v", r.Document.URI, err)
		parsed = nil
	}
	if !r.IsTemplate {
		parsed = nil
	}

	batch := r.batch(parsed)
	r.setState(RunClosed)
	span.WithExtra("exit", strconv.Itoa(exitCode)).
		WithExtra("diagnostics", strconv.Itoa(len(batch.Diagnostics))).
		End(r.outcome())
	return batch
}

// drainStderr turns every chunk read from stderr into a first-line warning.
func (r *Run) drainStderr(tracer trace.Tracer, stderr io.Reader, parent uint64) error {
	buf := make([]byte, stderrChunkSize)
	for {
		n, err := stderr.Read(buf)
		if n > 0 {
			chunk := string(buf[:n])
			r.warnings.Add(diag.LineWarning(r.source(), chunk))
			trace.Point(tracer, trace.ScopeStream, "stderr", fmt.Sprintf("%d bytes", n), parent)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

func (r *Run) batch(parsed []findings.Finding) Batch {
	out := diag.NewBag(r.warnings.Len() + len(parsed))
	out.Merge(r.warnings)
	for _, f := range parsed {
		out.Add(f.Diagnostic(r.source()))
	}
	return Batch{URI: r.Document.URI, Diagnostics: out.Items()}
}

func (r *Run) outcome() string {
	switch {
	case r.ParseErr() != nil:
		return "parse failed"
	case !r.IsTemplate:
		return "not a template"
	default:
		return "ok"
	}
}
