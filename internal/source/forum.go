package source

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	forumSourceName = "forum"
	redditBaseURL   = "https://www.reddit.com"
	redditUserAgent = "bitpredector/1.0"
	redditCommunity = "cryptocurrency"
)

// ForumConfig configures a ForumSource.
type ForumConfig struct {
	Name        string
	BaseURL     string
	Community   string // subreddit to read, without the r/ prefix
	UserAgent   string
	BearerToken string // optional; opaque, acquired outside bitpredector
	MaxItems    int
	Enabled     bool
}

// ForumSource reads recent comments of one subreddit via Reddit's JSON API
// and keeps those mentioning the keyword.
type ForumSource struct {
	*adapter
	baseURL   string
	community string
	userAgent string
	token     string
}

// NewForum creates a forum source.
func NewForum(cfg ForumConfig, opts ...Option) *ForumSource {
	name := cfg.Name
	if name == "" {
		name = forumSourceName
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = redditBaseURL
	}
	community := strings.TrimPrefix(cfg.Community, "r/")
	if community == "" {
		community = redditCommunity
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = redditUserAgent
	}
	return &ForumSource{
		adapter:   newAdapter(name, KindForum, cfg.Enabled, cfg.MaxItems, cfg.BearerToken, opts),
		baseURL:   baseURL,
		community: community,
		userAgent: userAgent,
		token:     cfg.BearerToken,
	}
}

func (fs *ForumSource) Fetch(ctx context.Context, keyword string) Result {
	return fs.run(ctx, keyword, func(ctx context.Context) ([]Item, error) {
		return fs.fetchComments(ctx, keyword)
	})
}

func (fs *ForumSource) fetchComments(ctx context.Context, keyword string) ([]Item, error) {
	url := fmt.Sprintf("%s/r/%s/comments.json?limit=%d", fs.baseURL, fs.community, fs.maxItems)

	header := http.Header{}
	header.Set("User-Agent", fs.userAgent)
	if fs.token != "" {
		header.Set("Authorization", "Bearer "+fs.token)
	}

	var listing redditListing
	if err := fs.getJSON(ctx, url, header, &listing); err != nil {
		return nil, fmt.Errorf("r/%s: %w", fs.community, err)
	}

	return itemsFromListing(listing, fs.name, fs.baseURL, keyword), nil
}

// itemsFromListing keeps listing entries whose text contains keyword, case-insensitively.
// Permalinks are resolved against baseURL.
func itemsFromListing(listing redditListing, sourceName, baseURL, keyword string) []Item {
	var items []Item
	for _, child := range listing.Data.Children {
		p := child.Data

		text := p.Body
		if strings.TrimSpace(text) == "" {
			text = p.Title
			if strings.TrimSpace(p.Selftext) != "" {
				text = p.Title + "\n\n" + p.Selftext
			}
		}
		if strings.TrimSpace(text) == "" || !containsFold(text, keyword) {
			continue
		}

		var postedAt time.Time
		if p.CreatedUTC > 0 {
			postedAt = time.Unix(int64(p.CreatedUTC), 0).UTC()
		}

		items = append(items, Item{
			Source:     sourceName,
			ExternalID: p.ID,
			Text:       text,
			URL:        baseURL + p.Permalink,
			PostedAt:   postedAt,
		})
	}
	return items
}

type redditListing struct {
	Data struct {
		Children []redditChild `json:"children"`
	} `json:"data"`
}

type redditChild struct {
	Data redditPost `json:"data"`
}

// redditPost covers both comments (body) and submissions (title, selftext).
type redditPost struct {
	ID         string  `json:"id"`
	Body       string  `json:"body"`
	Title      string  `json:"title"`
	Selftext   string  `json:"selftext"`
	Permalink  string  `json:"permalink"`
	CreatedUTC float64 `json:"created_utc"`
}
