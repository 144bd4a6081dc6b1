package validate

import (
	"context"
	"fmt"
	"os"
	"slices"
	"sync"

	"cfnls/internal/diag"
	"cfnls/internal/trace"
)

// Publisher receives the complete diagnostic set for a document.
// Each call replaces whatever was published for the URI before.
type Publisher interface {
	PublishDiagnostics(uri string, diags []diag.Diagnostic) error
}

// Options configures a Coordinator.
type Options struct {
	// Launcher starts the validator; nil means ExecLauncher{}.
	Launcher Launcher
	// Settings seeds the validator settings before the first
	// configuration change.
	Settings Settings
	// Markers identify templates; empty means DefaultMarker.
	Markers []string
	// Exclude lists glob patterns of paths that are never validated.
	Exclude []string
	// Source labels diagnostics; empty means DefaultSource.
	Source string
	// Logf reports failures; nil writes "cfnls: ..." lines to stderr.
	Logf func(format string, args ...any)
}

// Coordinator decides when documents are validated and publishes results.
type Coordinator struct {
	mu        sync.Mutex
	settings  Settings
	inFlight  map[string]bool
	launcher  Launcher
	publisher Publisher
	markers   []string
	exclude   []string
	source    string
	logf      func(format string, args ...any)
	wg        sync.WaitGroup
}

// NewCoordinator constructs a coordinator publishing to publisher.
func NewCoordinator(publisher Publisher, opts Options) *Coordinator {
	launcher := opts.Launcher
	if launcher == nil {
		launcher = ExecLauncher{}
	}
	logf := opts.Logf
	if logf == nil {
		logf = func(format string, args ...any) {
			fmt.Fprintf(os.Stderr, "cfnls: "+format+"\n", args...)
		}
	}
	source := opts.Source
	if source == "" {
		source = DefaultSource
	}
	return &Coordinator{
		settings:  opts.Settings.clone(),
		inFlight:  make(map[string]bool),
		launcher:  launcher,
		publisher: publisher,
		markers:   slices.Clone(opts.Markers),
		exclude:   slices.Clone(opts.Exclude),
		source:    source,
		logf:      logf,
	}
}

// Open validates a freshly opened document. It reports whether a run started.
func (c *Coordinator) Open(ctx context.Context, doc Document) bool {
	return c.trigger(ctx, doc, "didOpen")
}

// Save validates a saved document. It reports whether a run started.
func (c *Coordinator) Save(ctx context.Context, doc Document) bool {
	return c.trigger(ctx, doc, "didSave")
}

// ConfigurationChanged replaces the settings and revalidates every open
// document. Documents with a run in flight keep it and drop the trigger.
func (c *Coordinator) ConfigurationChanged(ctx context.Context, settings Settings, open []Document) {
	c.mu.Lock()
	c.settings = settings.clone()
	c.mu.Unlock()
	trace.Point(trace.FromContext(ctx), trace.ScopeServer, "configuration", settings.Command(), 0)
	for _, doc := range open {
		c.trigger(ctx, doc, "configuration")
	}
}

// Publish forwards batch as the document's complete diagnostic set.
func (c *Coordinator) Publish(batch Batch) {
	diags := batch.Diagnostics
	if diags == nil {
		diags = []diag.Diagnostic{}
	}
	if err := c.publisher.PublishDiagnostics(batch.URI, diags); err != nil {
		c.logf("failed to publish diagnostics for %s: %v", batch.URI, err)
	}
}

// Settings returns a copy of the current settings.
func (c *Coordinator) Settings() Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings.clone()
}

// InFlight reports whether a run is active for uri.
func (c *Coordinator) InFlight(uri string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight[uri]
}

// Wait blocks until every started run has published.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

func (c *Coordinator) trigger(ctx context.Context, doc Document, reason string) bool {
	tracer := trace.FromContext(ctx)
	if doc.URI == "" || doc.Path == "" {
		return false
	}
	if Excluded(c.exclude, doc.Path) {
		trace.Point(tracer, trace.ScopeDocument, reason, "excluded "+doc.URI, 0)
		return false
	}

	c.mu.Lock()
	if c.inFlight[doc.URI] {
		c.mu.Unlock()
		trace.Point(tracer, trace.ScopeDocument, reason, "dropped, in flight "+doc.URI, 0)
		return false
	}
	c.inFlight[doc.URI] = true
	run := &Run{
		Document:   doc,
		IsTemplate: doc.IsTemplate(c.markers),
		Settings:   c.settings.clone(),
		Source:     c.source,
		Logf:       c.logf,
	}
	c.wg.Add(1)
	c.mu.Unlock()

	trace.Point(tracer, trace.ScopeDocument, reason, doc.URI, 0)
	go c.execute(ctx, run)
	return true
}

func (c *Coordinator) execute(ctx context.Context, run *Run) {
	defer c.wg.Done()
	defer c.release(run.Document.URI)
	batch := run.Execute(ctx, c.launcher)
	c.Publish(batch)
	trace.Point(trace.FromContext(ctx), trace.ScopeRun, "published", fmt.Sprintf("%s diagnostics=%d", batch.URI, len(batch.Diagnostics)), 0)
}

func (c *Coordinator) release(uri string) {
	c.mu.Lock()
	delete(c.inFlight, uri)
	c.mu.Unlock()
}
