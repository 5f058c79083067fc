package source

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"
)

const (
	feedSourceName = "rss"
	feedUserAgent  = "Mozilla/5.0 (compatible; bitpredector/1.0)"
)

var (
	htmlTagRe    = regexp.MustCompile(`<[^>]*>`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// FeedConfig configures a FeedSource.
type FeedConfig struct {
	Name     string
	Feeds    []string
	MaxItems int
	Enabled  bool
}

// FeedSource is a news source backed by RSS/Atom feeds instead of a search API.
// It keeps feed entries whose title or body mentions the keyword.
type FeedSource struct {
	*adapter
	feeds []string
}

// NewFeed creates a feed-backed news source. At least one feed URL is required.
func NewFeed(cfg FeedConfig, opts ...Option) (*FeedSource, error) {
	if len(cfg.Feeds) == 0 {
		return nil, errors.New("rss: at least one feed URL is required")
	}
	name := cfg.Name
	if name == "" {
		name = feedSourceName
	}
	return &FeedSource{
		adapter: newAdapter(name, KindNews, cfg.Enabled, cfg.MaxItems, "", opts),
		feeds:   cfg.Feeds,
	}, nil
}

func (fs *FeedSource) Fetch(ctx context.Context, keyword string) Result {
	return fs.run(ctx, keyword, func(ctx context.Context) ([]Item, error) {
		return fs.fetchFeeds(ctx, keyword)
	})
}

// fetchFeeds reads every feed; a broken feed is logged and skipped. It fails
// only when no feed could be read.
func (fs *FeedSource) fetchFeeds(ctx context.Context, keyword string) ([]Item, error) {
	fp := gofeed.NewParser()
	fp.Client = &http.Client{
		Timeout:   fs.client.Timeout,
		Transport: &feedTransport{base: fs.client.Transport},
	}

	var (
		items   []Item
		lastErr error
		read    int
	)
	for _, feedURL := range fs.feeds {
		v, err := fs.call(ctx, func(ctx context.Context) (any, error) {
			return fp.ParseURLWithContext(feedURL, ctx)
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			fs.logger.Warn("feed unavailable", zap.String("feed", feedURL), zap.Error(fs.redactor.Err(err)))
			lastErr = err
			continue
		}
		read++
		feed, _ := v.(*gofeed.Feed)
		items = append(items, itemsFromFeed(feed, fs.name, keyword)...)
	}

	if read == 0 && lastErr != nil {
		return nil, fmt.Errorf("all %d feeds failed: %w", len(fs.feeds), lastErr)
	}
	return items, nil
}

// feedTransport injects a User-Agent header into every request.
type feedTransport struct {
	base http.RoundTripper
}

func (t *feedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", feedUserAgent)
	return base.RoundTrip(req)
}

func itemsFromFeed(feed *gofeed.Feed, sourceName, keyword string) []Item {
	if feed == nil {
		return nil
	}
	var items []Item
	for _, item := range feed.Items {
		text := itemText(item)
		if text == "" || !containsFold(text, keyword) {
			continue
		}
		items = append(items, Item{
			Source:     sourceName,
			ExternalID: itemID(item),
			Text:       text,
			URL:        item.Link,
			PostedAt:   itemPublishedTime(item),
		})
	}
	return items
}

func itemPublishedTime(item *gofeed.Item) time.Time {
	if item.PublishedParsed != nil {
		return *item.PublishedParsed
	}
	if item.UpdatedParsed != nil {
		return *item.UpdatedParsed
	}
	return time.Time{}
}

func itemID(item *gofeed.Item) string {
	if item.GUID != "" {
		return item.GUID
	}
	return item.Link
}

// itemText joins title and description the way the news API items are built.
func itemText(item *gofeed.Item) string {
	body := item.Description
	if body == "" {
		body = item.Content
	}
	return strings.TrimSpace(item.Title + " " + stripHTML(body))
}

func stripHTML(s string) string {
	s = htmlTagRe.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
