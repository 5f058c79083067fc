package source

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	newsSourceName = "news"
	newsAPIBaseURL = "https://newsapi.org"
	newsSearchPath = "/v2/everything"
	newsMaxPage    = 100
)

// NewsConfig configures a NewsSource.
type NewsConfig struct {
	Name     string
	BaseURL  string
	APIKey   string // opaque, acquired outside bitpredector
	Language string
	SortBy   string
	MaxItems int
	Enabled  bool
}

// Article is a news article as returned by the news provider.
type Article struct {
	Title       string
	Description string
	Content     string
	URL         string
	Publisher   string
	PublishedAt time.Time
}

// NewsSource searches news articles through the NewsAPI "everything" endpoint.
type NewsSource struct {
	*adapter
	baseURL  string
	apiKey   string
	language string
	sortBy   string
}

// NewNews creates a news source.
func NewNews(cfg NewsConfig, opts ...Option) *NewsSource {
	name := cfg.Name
	if name == "" {
		name = newsSourceName
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = newsAPIBaseURL
	}
	language := cfg.Language
	if language == "" {
		language = "en"
	}
	sortBy := cfg.SortBy
	if sortBy == "" {
		sortBy = "publishedAt"
	}
	return &NewsSource{
		adapter:  newAdapter(name, KindNews, cfg.Enabled, cfg.MaxItems, cfg.APIKey, opts),
		baseURL:  baseURL,
		apiKey:   cfg.APIKey,
		language: language,
		sortBy:   sortBy,
	}
}

func (ns *NewsSource) Fetch(ctx context.Context, keyword string) Result {
	return ns.run(ctx, keyword, func(ctx context.Context) ([]Item, error) {
		articles, err := ns.search(ctx, keyword)
		if err != nil {
			return nil, err
		}
		return itemsFromArticles(ns.name, articles), nil
	})
}

// Articles returns articles matching query with their metadata. Unlike Fetch it
// reports failures to the caller and ignores the enabled flag.
func (ns *NewsSource) Articles(ctx context.Context, query string) ([]Article, error) {
	v, err := ns.call(ctx, func(ctx context.Context) (any, error) {
		return ns.search(ctx, query)
	})
	if err != nil {
		return nil, err
	}
	articles, _ := v.([]Article)
	return articles, nil
}

func (ns *NewsSource) search(ctx context.Context, query string) ([]Article, error) {
	if ns.apiKey == "" {
		return nil, fmt.Errorf("news: %w", ErrNoCredentials)
	}

	q := url.Values{}
	q.Set("q", query)
	q.Set("apiKey", ns.apiKey)
	q.Set("language", ns.language)
	q.Set("sortBy", ns.sortBy)
	q.Set("pageSize", fmt.Sprint(min(ns.maxItems, newsMaxPage)))

	var resp newsResponse
	if err := ns.getJSON(ctx, ns.baseURL+newsSearchPath+"?"+q.Encode(), nil, &resp); err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	if resp.Articles == nil {
		return nil, fmt.Errorf("search %q: %w: no articles list", query, ErrMalformed)
	}

	articles := make([]Article, 0, len(*resp.Articles))
	for _, a := range *resp.Articles {
		articles = append(articles, Article{
			Title:       a.Title,
			Description: a.Description,
			Content:     a.Content,
			URL:         a.URL,
			Publisher:   a.Source.Name,
			PublishedAt: a.PublishedAt,
		})
	}
	return articles, nil
}

// itemsFromArticles uses title and description, joined by a space, as the item text.
func itemsFromArticles(sourceName string, articles []Article) []Item {
	var items []Item
	for _, a := range articles {
		text := strings.TrimSpace(a.Title + " " + a.Description)
		if text == "" {
			continue
		}
		items = append(items, Item{
			Source:     sourceName,
			ExternalID: a.URL,
			Text:       text,
			URL:        a.URL,
			PostedAt:   a.PublishedAt,
		})
	}
	return items
}

// newsResponse keeps Articles as a pointer so a missing list is distinguishable from an empty one.
type newsResponse struct {
	Status   string         `json:"status"`
	Articles *[]newsArticle `json:"articles"`
}

type newsArticle struct {
	Source struct {
		Name string `json:"name"`
	} `json:"source"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Content     string    `json:"content"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"publishedAt"`
}
