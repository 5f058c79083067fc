package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func newsWithTransport(apiKey string, rt roundTripFunc) *NewsSource {
	return NewNews(NewsConfig{BaseURL: "https://news.test", APIKey: apiKey, Enabled: true}, testOptions(rt)...)
}

const newsBody = `{"status":"ok","totalResults":2,"articles":[
	{"source":{"name":"CoinDesk"},"title":"Bitcoin rallies","description":"Gains extend","url":"https://n.test/1","publishedAt":"2026-10-18T08:00:00Z","content":"full"},
	{"source":{"name":"Decrypt"},"title":"Bitcoin slips","description":null,"url":"https://n.test/2","publishedAt":"2026-10-18T09:00:00Z"}
]}`

func TestNews_Fetch(t *testing.T) {
	ns := newsWithTransport("key", func(r *http.Request) (*http.Response, error) {
		if r.URL.Path != "/v2/everything" {
			t.Errorf("path = %q", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("q") != "bitcoin" || q.Get("apiKey") != "key" {
			t.Errorf("query = %v", q)
		}
		if q.Get("language") != "en" || q.Get("sortBy") != "publishedAt" || q.Get("pageSize") != "100" {
			t.Errorf("query defaults = %v", q)
		}
		return response(http.StatusOK, newsBody), nil
	})

	res := ns.Fetch(context.Background(), "bitcoin")
	if res.Status != StatusOK {
		t.Fatalf("status = %q, want ok", res.Status)
	}
	if len(res.Items) != 2 {
		t.Fatalf("got %d items, want 2", len(res.Items))
	}
	if res.Items[0].Text != "Bitcoin rallies Gains extend" {
		t.Errorf("text = %q, want title + description", res.Items[0].Text)
	}
	if res.Items[1].Text != "Bitcoin slips" {
		t.Errorf("text = %q, want title only", res.Items[1].Text)
	}
	if res.Items[0].Source != "news" || res.Items[0].URL != "https://n.test/1" {
		t.Errorf("item = %+v", res.Items[0])
	}
}

func TestNews_MissingArticlesList(t *testing.T) {
	ns := newsWithTransport("key", func(_ *http.Request) (*http.Response, error) {
		return response(http.StatusOK, `{"status":"error","code":"apiKeyInvalid"}`), nil
	})
	if res := ns.Fetch(context.Background(), "bitcoin"); res.Status != StatusFailed {
		t.Errorf("status = %q, want failed", res.Status)
	}
}

func TestNews_EmptyArticlesListIsOK(t *testing.T) {
	ns := newsWithTransport("key", func(_ *http.Request) (*http.Response, error) {
		return response(http.StatusOK, `{"status":"ok","articles":[]}`), nil
	})
	res := ns.Fetch(context.Background(), "bitcoin")
	if res.Status != StatusOK || len(res.Items) != 0 {
		t.Errorf("result = %+v, want ok and empty", res)
	}
}

func TestNews_Non200(t *testing.T) {
	var calls atomic.Int32
	ns := newsWithTransport("key", func(_ *http.Request) (*http.Response, error) {
		calls.Add(1)
		return response(http.StatusInternalServerError, `{"status":"error"}`), nil
	})
	if res := ns.Fetch(context.Background(), "bitcoin"); res.Status != StatusFailed {
		t.Errorf("status = %q, want failed", res.Status)
	}
	if calls.Load() != 2 {
		t.Errorf("provider called %d times, want 2 (retried)", calls.Load())
	}
}

func TestNews_NoAPIKey(t *testing.T) {
	ns := newsWithTransport("", func(_ *http.Request) (*http.Response, error) {
		t.Error("provider must not be called without an API key")
		return nil, nil
	})
	if res := ns.Fetch(context.Background(), "bitcoin"); res.Status != StatusFailed {
		t.Errorf("status = %q, want failed", res.Status)
	}
}

func TestNews_Articles(t *testing.T) {
	ns := newsWithTransport("key", func(r *http.Request) (*http.Response, error) {
		if r.URL.Query().Get("q") != "cryptocurrency" {
			t.Errorf("q = %q", r.URL.Query().Get("q"))
		}
		return response(http.StatusOK, newsBody), nil
	})
	ns.SetEnabled(false)

	articles, err := ns.Articles(context.Background(), "cryptocurrency")
	if err != nil {
		t.Fatalf("articles: %v", err)
	}
	if len(articles) != 2 {
		t.Fatalf("got %d articles, want 2", len(articles))
	}
	a := articles[0]
	if a.Publisher != "CoinDesk" || a.Content != "full" || a.Description != "Gains extend" {
		t.Errorf("article = %+v", a)
	}
	if !a.PublishedAt.Equal(time.Date(2026, 10, 18, 8, 0, 0, 0, time.UTC)) {
		t.Errorf("published_at = %v", a.PublishedAt)
	}
}

func TestNews_ArticlesError(t *testing.T) {
	ns := newsWithTransport("key", func(_ *http.Request) (*http.Response, error) {
		return response(http.StatusUnauthorized, ""), nil
	})
	if _, err := ns.Articles(context.Background(), "cryptocurrency"); err == nil {
		t.Fatal("expected error")
	}
}

func TestNews_LoggedErrorsMaskAPIKey(t *testing.T) {
	logger, logs := observedLogger()
	ns := NewNews(NewsConfig{BaseURL: "https://news.test", APIKey: "sekret-key", Enabled: true},
		testOptions(func(_ *http.Request) (*http.Response, error) {
			return nil, errors.New("connection reset")
		}, WithLogger(logger))...)

	if res := ns.Fetch(context.Background(), "bitcoin"); res.Status != StatusFailed {
		t.Fatalf("status = %q, want failed", res.Status)
	}
	if logs.FilterMessage("source fetch failed").Len() != 1 {
		t.Fatalf("expected one failure log, got %d", logs.FilterMessage("source fetch failed").Len())
	}
	for _, entry := range logs.All() {
		msg := fmt.Sprint(entry.ContextMap()["error"])
		if strings.Contains(msg, "sekret-key") {
			t.Errorf("%q logged the API key: %s", entry.Message, msg)
		}
	}
}
