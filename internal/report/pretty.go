package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"

	"cfnls/internal/diag"
)

type palette struct {
	err, warn, info, hint *color.Color
	path, caret, code     *color.Color
}

func newPalette(enabled bool) palette {
	p := palette{
		err:   color.New(color.FgRed, color.Bold),
		warn:  color.New(color.FgYellow, color.Bold),
		info:  color.New(color.FgBlue, color.Bold),
		hint:  color.New(color.FgCyan),
		path:  color.New(color.Bold),
		caret: color.New(color.FgGreen, color.Bold),
		code:  color.New(color.Faint),
	}
	for _, c := range []*color.Color{p.err, p.warn, p.info, p.hint, p.path, p.caret, p.code} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

func (p palette) severity(sev diag.Severity) *color.Color {
	switch sev {
	case diag.SevError:
		return p.err
	case diag.SevWarning:
		return p.warn
	case diag.SevInformation:
		return p.info
	default:
		return p.hint
	}
}

// Pretty prints every diagnostic of r as
// path:line:col: severity: message [code]
// followed, when enabled, by the source line and a caret underline.
func Pretty(w io.Writer, r Result, opts Options) error {
	p := newPalette(opts.Color)
	for _, d := range r.Diagnostics {
		line, col := d.Range.Start.Line+1, d.Range.Start.Character+1
		sev := strings.ToLower(d.Severity.String())
		msg := strings.TrimRight(d.Message, "\r\n")
		if _, err := fmt.Fprintf(w, "%s:%d:%d: %s: %s",
			p.path.Sprint(r.Path), line, col, p.severity(d.Severity).Sprint(sev), msg); err != nil {
			return err
		}
		if d.Code != "" {
			if _, err := fmt.Fprintf(w, " %s", p.code.Sprintf("[%s]", d.Code)); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
		if !opts.Excerpt {
			continue
		}
		if err := writeExcerpt(w, r.Text, d.Range, p); err != nil {
			return err
		}
	}
	return nil
}

func writeExcerpt(w io.Writer, text string, rng diag.Range, p palette) error {
	src, ok := sourceLine(text, rng.Start.Line)
	if !ok || strings.TrimSpace(src) == "" {
		return nil
	}
	pad, width := underline(src, rng)
	_, err := fmt.Fprintf(w, "  %s\n  %s%s\n", src, pad, p.caret.Sprint("^"+strings.Repeat("~", width-1)))
	return err
}

// underline returns the indentation before the caret and the caret width,
// both measured in terminal cells. Tabs in the prefix are kept so the caret
// lines up with the source line.
func underline(src string, rng diag.Range) (string, int) {
	runes := []rune(src)
	start := min(max(rng.Start.Character, 0), len(runes))
	end := len(runes)
	if rng.End.Line == rng.Start.Line {
		end = min(max(rng.End.Character, start), len(runes))
	}
	var pad strings.Builder
	for _, r := range runes[:start] {
		if r == '\t' {
			pad.WriteByte('\t')
			continue
		}
		pad.WriteString(strings.Repeat(" ", runewidth.RuneWidth(r)))
	}
	width := runewidth.StringWidth(string(runes[start:end]))
	return pad.String(), max(width, 1)
}

// Summary prints a one-line tally across results.
func Summary(w io.Writer, results []Result, opts Options) error {
	var errs, warns, other int
	for _, r := range results {
		errs += r.Count(diag.SevError)
		warns += r.Count(diag.SevWarning)
		other += r.Count(diag.SevInformation) + r.Count(diag.SevHint)
	}
	text := fmt.Sprintf("%s, %s", plural(errs, "error"), plural(warns, "warning"))
	if other > 0 {
		text += ", " + plural(other, "note")
	}
	text += " in " + plural(len(results), "file")
	if opts.Color {
		style := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("2"))
		switch {
		case errs > 0:
			style = style.Foreground(lipgloss.Color("1"))
		case warns > 0:
			style = style.Foreground(lipgloss.Color("3"))
		}
		text = style.Render(text)
	}
	_, err := fmt.Fprintln(w, text)
	return err
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
