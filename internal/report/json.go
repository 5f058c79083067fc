package report

import (
	"encoding/json"
	"io"

	"github.com/google/uuid"

	"github.com/lpdev/bitpredector/internal/aggregate"
	"github.com/lpdev/bitpredector/internal/store"
)

// ReadingView is the wire form of a reading. Confidence is rounded to two decimals.
type ReadingView struct {
	ID         string                   `json:"id,omitempty"`
	Keyword    string                   `json:"keyword"`
	Confidence float64                  `json:"confidence"`
	Verdict    string                   `json:"verdict"`
	Positive   int                      `json:"positive"`
	Negative   int                      `json:"negative"`
	Neutral    int                      `json:"neutral"`
	Total      int                      `json:"total"`
	Sources    []aggregate.SourceReport `json:"sources"`
	CreatedAt  string                   `json:"created_at,omitempty"`
}

// ArticleView is the wire form of a stored article.
type ArticleView struct {
	Title       string `json:"title"`
	Content     string `json:"content,omitempty"`
	URL         string `json:"url"`
	Source      string `json:"source,omitempty"`
	PublishedAt string `json:"published_at"`
}

// NewReadingView converts r for JSON output.
func NewReadingView(r aggregate.Reading) ReadingView {
	v := ReadingView{
		Keyword:    r.Keyword,
		Confidence: Round2(r.Confidence),
		Verdict:    Verdict(r.Confidence),
		Positive:   r.Positive,
		Negative:   r.Negative,
		Neutral:    r.Neutral,
		Total:      r.Total,
		Sources:    r.Sources,
	}
	if v.Sources == nil {
		v.Sources = []aggregate.SourceReport{}
	}
	if r.ID != uuid.Nil {
		v.ID = r.ID.String()
	}
	if !r.CreatedAt.IsZero() {
		v.CreatedAt = r.CreatedAt.UTC().Format("2006-01-02T15:04:05Z")
	}
	return v
}

// NewArticleViews converts articles for JSON output. The result is never nil.
func NewArticleViews(articles []store.Article) []ArticleView {
	out := make([]ArticleView, 0, len(articles))
	for _, a := range articles {
		out = append(out, ArticleView{
			Title:       a.Title,
			Content:     a.Content,
			URL:         a.URL,
			Source:      a.Source,
			PublishedAt: a.PublishedAt.UTC().Format("2006-01-02T15:04:05Z"),
		})
	}
	return out
}

// JSONFormatter formats output as indented JSON.
type JSONFormatter struct{}

// NewJSON creates a JSON formatter.
func NewJSON() *JSONFormatter {
	return &JSONFormatter{}
}

func (f *JSONFormatter) Reading(w io.Writer, r aggregate.Reading) error {
	return encode(w, NewReadingView(r))
}

func (f *JSONFormatter) History(w io.Writer, keyword string, readings []aggregate.Reading) error {
	views := make([]ReadingView, 0, len(readings))
	for _, r := range readings {
		views = append(views, NewReadingView(r))
	}
	return encode(w, struct {
		Keyword  string        `json:"keyword"`
		Readings []ReadingView `json:"readings"`
	}{keyword, views})
}

func (f *JSONFormatter) Articles(w io.Writer, articles []store.Article) error {
	return encode(w, NewArticleViews(articles))
}

func encode(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
