package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"cfnls/internal/cache"
	"cfnls/internal/diag"
	"cfnls/internal/observ"
	"cfnls/internal/report"
	"cfnls/internal/trace"
	"cfnls/internal/ui"
	"cfnls/internal/validate"
)

// errDiagnosticsReported makes lint exit 1 without printing another error.
var errDiagnosticsReported = errors.New("error diagnostics reported")

var (
	lintFormat    string
	lintJobs      int
	lintNoExcerpt bool
	lintUI        string
	lintCache     bool
	lintCacheDir  string
	lintCacheDrop bool
	lintTimings   bool
)

func init() {
	lintCmd.Flags().StringVar(&lintFormat, "format", "pretty", "output format (pretty|json)")
	lintCmd.Flags().IntVarP(&lintJobs, "jobs", "j", runtime.NumCPU(), "number of validator processes to run in parallel")
	lintCmd.Flags().BoolVar(&lintNoExcerpt, "no-excerpt", false, "do not print source excerpts")
	lintCmd.Flags().StringVar(&lintUI, "ui", "off", "show live progress (auto|on|off)")
	lintCmd.Flags().BoolVar(&lintCache, "cache", false, "reuse results for unchanged files")
	lintCmd.Flags().StringVar(&lintCacheDir, "cache-dir", "", "result cache directory (default $XDG_CACHE_HOME/cfnls)")
	lintCmd.Flags().BoolVar(&lintCacheDrop, "cache-clear", false, "remove cached results before linting")
	lintCmd.Flags().BoolVar(&lintTimings, "timings", false, "print phase timings to stderr")
}

var lintCmd = &cobra.Command{
	Use:          "lint [files...]",
	Short:        "Validate templates once and print the diagnostics",
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE:         runLint,
}

// openLintCache returns the result cache when use is set. drop empties the
// cache directory first, with or without use.
func openLintCache(dir string, use, drop bool) (*cache.DiskCache, error) {
	if !use && !drop {
		return nil, nil
	}
	c, err := cache.Open(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}
	if drop {
		if err := c.DropAll(); err != nil {
			return nil, fmt.Errorf("failed to clear cache: %w", err)
		}
	}
	if !use {
		return nil, nil
	}
	return c, nil
}

type lintOptions struct {
	launcher validate.Launcher
	jobs     int
	logf     func(format string, args ...any)
	// cache, when set, skips the validator for unchanged files.
	cache *cache.DiskCache
	// events receives per-file progress; nil disables reporting.
	events chan<- ui.Event
	// timer records one phase per validated file; nil disables timing.
	timer *observ.Timer
}

func runLint(cmd *cobra.Command, args []string) error {
	format := strings.ToLower(lintFormat)
	switch format {
	case "pretty", "json":
	default:
		return fmt.Errorf("unsupported format %q (must be pretty or json)", lintFormat)
	}
	colorMode, err := cmd.Root().PersistentFlags().GetString("color")
	if err != nil {
		return fmt.Errorf("failed to get color flag: %w", err)
	}
	color, err := useColor(colorMode, os.Stdout)
	if err != nil {
		return err
	}
	var timer *observ.Timer
	if lintTimings {
		timer = observ.NewTimer()
		defer func() { fmt.Fprint(cmd.ErrOrStderr(), timer.Summary()) }()
	}
	phase := timer.Begin("config")
	st, err := loadStartup(cmd)
	if err != nil {
		return err
	}
	timer.End(phase, st.file.Path)

	mode, err := readUIMode(lintUI)
	if err != nil {
		return err
	}

	errOut := cmd.ErrOrStderr()
	opts := lintOptions{
		jobs:  lintJobs,
		timer: timer,
		logf: func(format string, args ...any) {
			fmt.Fprintf(errOut, "cfnls: "+format+"\n", args...)
		},
	}
	if opts.cache, err = openLintCache(lintCacheDir, lintCache, lintCacheDrop); err != nil {
		return err
	}

	var results []report.Result
	if format == "pretty" && shouldUseTUI(mode) {
		results, err = runLintWithUI(cmd.Context(), "cfn-lint", st, args, opts)
	} else {
		results, err = lintFiles(cmd.Context(), st, args, opts)
	}
	if err != nil {
		return err
	}

	phase = timer.Begin("render")
	defer func() { timer.End(phase, "") }()
	out := cmd.OutOrStdout()
	if format == "json" {
		err = report.JSON(out, results)
	} else {
		err = writePretty(out, results, report.Options{Color: color, Excerpt: !lintNoExcerpt})
	}
	if err != nil {
		return err
	}
	if report.HasErrors(results) {
		return errDiagnosticsReported
	}
	return nil
}

func writePretty(w io.Writer, results []report.Result, opts report.Options) error {
	for _, r := range results {
		if err := report.Pretty(w, r, opts); err != nil {
			return err
		}
	}
	return report.Summary(w, results, opts)
}

// lintFiles validates every file with at most opts.jobs validator processes
// at a time. Results keep the order of files; excluded files are skipped.
func lintFiles(ctx context.Context, st startup, files []string, opts lintOptions) ([]report.Result, error) {
	launcher := opts.launcher
	if launcher == nil {
		launcher = validate.ExecLauncher{}
	}
	jobs := opts.jobs
	if jobs <= 0 {
		jobs = 1
	}

	paths := make([]string, len(files))
	for i, file := range files {
		abs, err := filepath.Abs(file)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", file, err)
		}
		paths[i] = abs
	}

	slots := make([]*report.Result, len(files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)
	for i, file := range files {
		abs := paths[i]
		if validate.Excluded(st.exclude, abs) {
			trace.Point(trace.FromContext(ctx), trace.ScopeDocument, "lint", "excluded "+abs, 0)
			opts.notify(ui.Event{File: file, Status: ui.StatusSkipped})
			continue
		}
		g.Go(func() error {
			data, err := os.ReadFile(abs)
			if err != nil {
				opts.notify(ui.Event{File: file, Status: ui.StatusFailed})
				return fmt.Errorf("failed to read %s: %w", file, err)
			}
			doc := validate.Document{URI: fileURI(abs), Path: abs, Text: string(data)}
			result, status := lintDocument(ctx, launcher, st, doc, opts, file)
			slots[i] = &result
			opts.notify(ui.Event{
				File:     file,
				Status:   status,
				Errors:   result.Count(diag.SevError),
				Warnings: result.Count(diag.SevWarning),
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	results := make([]report.Result, 0, len(files))
	for _, r := range slots {
		if r != nil {
			results = append(results, *r)
		}
	}
	return results, nil
}

// lintDocument answers from the cache when possible, otherwise runs the
// validator and stores results of runs that started, exited and parsed cleanly.
func lintDocument(ctx context.Context, launcher validate.Launcher, st startup, doc validate.Document, opts lintOptions, display string) (report.Result, ui.Status) {
	var key cache.Key
	if opts.cache != nil {
		key = cache.KeyFor(doc, st.settings, st.markers)
		var entry cache.Entry
		ok, err := opts.cache.Get(key, &entry)
		if err != nil && opts.logf != nil {
			opts.logf("cache read for %s: %v", display, err)
		}
		if ok {
			return report.Result{Path: display, Text: doc.Text, Diagnostics: entry.Diagnostics}, ui.StatusCached
		}
	}

	opts.notify(ui.Event{File: display, Status: ui.StatusRunning})
	phase := opts.timer.Begin("validate " + display)
	run := &validate.Run{
		Document:   doc,
		IsTemplate: doc.IsTemplate(st.markers),
		Settings:   st.settings,
		Logf:       opts.logf,
	}
	batch := run.Execute(ctx, launcher)
	result := report.Result{Path: display, Text: doc.Text, Diagnostics: batch.Diagnostics}
	opts.timer.End(phase, fmt.Sprintf("exit %d, %d diagnostics", run.ExitCode(), len(batch.Diagnostics)))
	if opts.cache != nil && run.SpawnErr() == nil && run.WaitErr() == nil && run.ParseErr() == nil {
		if err := opts.cache.Put(key, &cache.Entry{Path: doc.Path, Diagnostics: batch.Diagnostics}); err != nil && opts.logf != nil {
			opts.logf("cache write for %s: %v", display, err)
		}
	}
	return result, ui.StatusDone
}

func (o lintOptions) notify(ev ui.Event) {
	if o.events != nil {
		o.events <- ev
	}
}

func fileURI(path string) string {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(path)}
	return u.String()
}
