package source

import (
	"context"
	"time"
)

// Kind tags the provider family a source belongs to.
type Kind string

const (
	KindMicroblog Kind = "microblog"
	KindForum     Kind = "forum"
	KindNews      Kind = "news"
)

// Status describes how a fetch ended.
type Status string

const (
	StatusOK       Status = "ok"       // provider answered; items may be empty
	StatusDisabled Status = "disabled" // source switched off, provider not contacted
	StatusFailed   Status = "failed"   // provider error, logged and swallowed
	StatusCanceled Status = "canceled" // caller abandoned the fetch
)

// Item is a single piece of text collected from a provider.
type Item struct {
	Source     string    `json:"source"`      // source name, e.g. "forum"
	ExternalID string    `json:"external_id"` // provider-specific ID
	Text       string    `json:"text"`        // text that gets scored
	URL        string    `json:"url,omitempty"`
	PostedAt   time.Time `json:"posted_at"` // zero when the provider does not report it
}

// Result is the outcome of a fetch. Items is empty unless Status is StatusOK.
type Result struct {
	Items  []Item
	Status Status
}

// OK reports whether the result is a genuine provider answer.
func (r Result) OK() bool {
	return r.Status == StatusOK
}

// Texts returns the text of every item.
func (r Result) Texts() []string {
	texts := make([]string, 0, len(r.Items))
	for _, it := range r.Items {
		texts = append(texts, it.Text)
	}
	return texts
}

// Source turns a keyword into text items from one external provider.
//
// Fetch never returns an error: provider failures are logged and reported
// through Result.Status with no items.
type Source interface {
	// Name returns the source identifier (e.g. "microblog").
	Name() string

	// Kind returns the provider family.
	Kind() Kind

	// Enabled reports whether the source may be queried.
	Enabled() bool

	// SetEnabled switches the source on or off. Safe for concurrent use.
	SetEnabled(enabled bool)

	// Fetch returns items matching keyword.
	Fetch(ctx context.Context, keyword string) Result
}
