package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	microblogSourceName = "microblog"
	microblogBaseURL    = "https://api.twitter.com"
	microblogSearchPath = "/2/tweets/search/recent"
	microblogMinResults = 10
	microblogMaxResults = 100
)

// MicroblogConfig configures a MicroblogSource.
type MicroblogConfig struct {
	Name        string
	BaseURL     string
	BearerToken string // opaque, acquired outside bitpredector
	Lang        string
	MaxItems    int
	Enabled     bool
}

// MicroblogSource searches recent posts on the X (Twitter) v2 API.
type MicroblogSource struct {
	*adapter
	baseURL string
	token   string
	lang    string
}

// NewMicroblog creates a microblog source.
func NewMicroblog(cfg MicroblogConfig, opts ...Option) *MicroblogSource {
	name := cfg.Name
	if name == "" {
		name = microblogSourceName
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = microblogBaseURL
	}
	lang := cfg.Lang
	if lang == "" {
		lang = "en"
	}
	return &MicroblogSource{
		adapter: newAdapter(name, KindMicroblog, cfg.Enabled, cfg.MaxItems, cfg.BearerToken, opts),
		baseURL: baseURL,
		token:   cfg.BearerToken,
		lang:    lang,
	}
}

func (ms *MicroblogSource) Fetch(ctx context.Context, keyword string) Result {
	return ms.run(ctx, keyword, func(ctx context.Context) ([]Item, error) {
		return ms.search(ctx, keyword)
	})
}

func (ms *MicroblogSource) search(ctx context.Context, keyword string) ([]Item, error) {
	if ms.token == "" {
		return nil, fmt.Errorf("microblog: %w", ErrNoCredentials)
	}

	q := url.Values{}
	q.Set("query", fmt.Sprintf("%s lang:%s -is:retweet", keyword, ms.lang))
	q.Set("max_results", fmt.Sprint(clamp(ms.maxItems, microblogMinResults, microblogMaxResults)))
	q.Set("tweet.fields", "created_at")

	header := http.Header{}
	header.Set("Authorization", "Bearer "+ms.token)

	var resp tweetSearchResponse
	if err := ms.getJSON(ctx, ms.baseURL+microblogSearchPath+"?"+q.Encode(), header, &resp); err != nil {
		return nil, fmt.Errorf("search %q: %w", keyword, err)
	}
	if len(resp.Data) == 0 && len(resp.Errors) > 0 {
		return nil, fmt.Errorf("search %q: %w", keyword, resp.Errors[0])
	}

	return itemsFromTweets(ms.name, resp.Data, ms.maxItems), nil
}

func itemsFromTweets(sourceName string, tweets []tweet, limit int) []Item {
	var items []Item
	for _, tw := range tweets {
		if len(items) == limit {
			break
		}
		if strings.TrimSpace(tw.Text) == "" {
			continue
		}
		items = append(items, Item{
			Source:     sourceName,
			ExternalID: tw.ID,
			Text:       tw.Text,
			URL:        "https://x.com/i/web/status/" + tw.ID,
			PostedAt:   tw.CreatedAt,
		})
	}
	return items
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

type tweetSearchResponse struct {
	Data   []tweet         `json:"data"`
	Errors []providerError `json:"errors"`
	Meta   struct {
		ResultCount int `json:"result_count"`
	} `json:"meta"`
}

type tweet struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

type providerError struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

func (e providerError) Error() string {
	return fmt.Sprintf("provider error: %s: %s", e.Title, e.Detail)
}

// Unwrap classifies provider-reported errors as malformed answers, which are not retried.
func (e providerError) Unwrap() error { return ErrMalformed }
