package report

import (
	"fmt"
	"io"

	"github.com/lpdev/bitpredector/internal/aggregate"
	"github.com/lpdev/bitpredector/internal/store"
)

// MarkdownFormatter formats output as Markdown.
type MarkdownFormatter struct{}

// NewMarkdown creates a Markdown formatter.
func NewMarkdown() *MarkdownFormatter {
	return &MarkdownFormatter{}
}

func (f *MarkdownFormatter) Reading(w io.Writer, r aggregate.Reading) error {
	fmt.Fprintf(w, "# Sentiment for %s\n\n", r.Keyword)
	fmt.Fprintf(w, "**Confidence:** %.2f (%s)\n\n", Round2(r.Confidence), Verdict(r.Confidence))
	fmt.Fprintf(w, "%d positive, %d negative, %d neutral (%d total)\n\n",
		r.Positive, r.Negative, r.Neutral, r.Total)

	if len(r.Sources) > 0 {
		fmt.Fprintln(w, "| source | status | items | cached |")
		fmt.Fprintln(w, "|---|---|---|---|")
		for _, sr := range r.Sources {
			fmt.Fprintf(w, "| %s | %s | %d | %t |\n", sr.Name, sr.Status, sr.Items, sr.Cached)
		}
		fmt.Fprintln(w)
	}
	return nil
}

func (f *MarkdownFormatter) History(w io.Writer, keyword string, readings []aggregate.Reading) error {
	fmt.Fprintf(w, "# History for %s\n\n", keyword)
	if len(readings) == 0 {
		fmt.Fprintln(w, "No readings found.")
		return nil
	}
	for _, r := range readings {
		fmt.Fprintf(w, "- %s: **%.2f** (%d texts)\n", formatTime(r.CreatedAt), Round2(r.Confidence), r.Total)
	}
	fmt.Fprintln(w)
	return nil
}

func (f *MarkdownFormatter) Articles(w io.Writer, articles []store.Article) error {
	fmt.Fprintf(w, "# Latest news\n\n")
	if len(articles) == 0 {
		fmt.Fprintln(w, "No articles stored.")
		return nil
	}
	for _, a := range articles {
		fmt.Fprintf(w, "- [%s](%s)", a.Title, a.URL)
		if a.Source != "" {
			fmt.Fprintf(w, " _%s_", a.Source)
		}
		fmt.Fprintf(w, " %s\n", formatTime(a.PublishedAt))
	}
	fmt.Fprintln(w)
	return nil
}
