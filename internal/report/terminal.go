package report

import (
	"fmt"
	"io"

	"github.com/lpdev/bitpredector/internal/aggregate"
	"github.com/lpdev/bitpredector/internal/source"
	"github.com/lpdev/bitpredector/internal/store"
)

// TerminalFormatter formats output for a terminal.
type TerminalFormatter struct {
	color bool
}

// NewTerminal creates a terminal formatter. Set color=true for ANSI colors.
func NewTerminal(color bool) *TerminalFormatter {
	return &TerminalFormatter{color: color}
}

// Reading writes the confidence, the sign counts and one line per source.
func (f *TerminalFormatter) Reading(w io.Writer, r aggregate.Reading) error {
	fmt.Fprintln(w, f.bold(fmt.Sprintf("bitpredector: %q", r.Keyword)))
	fmt.Fprintln(w)

	fmt.Fprintf(w, "  Confidence: %s\n", f.verdictColor(r.Confidence, fmt.Sprintf("%.2f (%s)", Round2(r.Confidence), Verdict(r.Confidence))))
	fmt.Fprintf(w, "  Scores:     %d positive, %d negative, %d neutral (%d total)\n",
		r.Positive, r.Negative, r.Neutral, r.Total)
	fmt.Fprintln(w)

	if len(r.Sources) > 0 {
		fmt.Fprintln(w, f.bold("--- Sources ---"))
		for _, sr := range r.Sources {
			cached := ""
			if sr.Cached {
				cached = f.dim(" (cached)")
			}
			fmt.Fprintf(w, "  %-10s %-9s %3d items%s\n", sr.Name, f.statusColor(sr.Status), sr.Items, cached)
		}
		fmt.Fprintln(w)
	}

	if r.Total == 0 {
		fmt.Fprintln(w, f.dim("No texts scored."))
	}
	return nil
}

// History writes one line per reading, newest first.
func (f *TerminalFormatter) History(w io.Writer, keyword string, readings []aggregate.Reading) error {
	fmt.Fprintln(w, f.bold(fmt.Sprintf("History for %q (%d readings)", keyword, len(readings))))
	fmt.Fprintln(w)
	if len(readings) == 0 {
		fmt.Fprintln(w, "No readings found.")
		return nil
	}
	for _, r := range readings {
		fmt.Fprintf(w, "  %s  %s  %d texts\n",
			f.dim(formatTime(r.CreatedAt)),
			f.verdictColor(r.Confidence, fmt.Sprintf("%5.2f", Round2(r.Confidence))),
			r.Total,
		)
	}
	return nil
}

// Articles writes the article list, one title per line with publisher and link.
func (f *TerminalFormatter) Articles(w io.Writer, articles []store.Article) error {
	fmt.Fprintln(w, f.bold(fmt.Sprintf("Latest news (%d)", len(articles))))
	fmt.Fprintln(w)
	if len(articles) == 0 {
		fmt.Fprintln(w, "No articles stored. Run 'bitpredector news pull' first.")
		return nil
	}
	for _, a := range articles {
		fmt.Fprintf(w, "  %s %s\n", f.dim(formatTime(a.PublishedAt)), a.Title)
		if a.Source != "" {
			fmt.Fprintf(w, "      %s\n", f.dim(a.Source))
		}
		fmt.Fprintf(w, "      %s\n", f.dim(a.URL))
	}
	return nil
}

func (f *TerminalFormatter) verdictColor(confidence float64, s string) string {
	switch Verdict(confidence) {
	case "bullish":
		return f.green(s)
	case "bearish":
		return f.red(s)
	default:
		return f.yellow(s)
	}
}

func (f *TerminalFormatter) statusColor(st source.Status) string {
	switch st {
	case source.StatusOK:
		return f.green(string(st))
	case source.StatusFailed:
		return f.red(string(st))
	default:
		return f.dim(string(st))
	}
}

// ANSI helpers, no-op when color=false.

func (f *TerminalFormatter) paint(code, s string) string {
	if !f.color {
		return s
	}
	return "\033[" + code + "m" + s + "\033[0m"
}

func (f *TerminalFormatter) bold(s string) string   { return f.paint("1", s) }
func (f *TerminalFormatter) dim(s string) string    { return f.paint("2", s) }
func (f *TerminalFormatter) red(s string) string    { return f.paint("31", s) }
func (f *TerminalFormatter) green(s string) string  { return f.paint("32", s) }
func (f *TerminalFormatter) yellow(s string) string { return f.paint("33", s) }
