package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/lpdev/bitpredector/internal/aggregate"
	"github.com/lpdev/bitpredector/internal/source"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "bitpredector.db")
	st, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})
	return st, path
}

func testReading(keyword string, confidence float64, at time.Time) aggregate.Reading {
	return aggregate.Reading{
		ID:         uuid.New(),
		Keyword:    keyword,
		Confidence: confidence,
		Positive:   3,
		Negative:   1,
		Neutral:    1,
		Total:      5,
		Sources: []aggregate.SourceReport{
			{Name: "microblog", Kind: source.KindMicroblog, Status: source.StatusOK, Items: 2},
			{Name: "forum", Kind: source.KindForum, Status: source.StatusFailed},
			{Name: "news", Kind: source.KindNews, Status: source.StatusOK, Items: 3, Cached: true},
		},
		CreatedAt: at,
	}
}

func TestOpenAndMigrate(t *testing.T) {
	st, path := openTestStore(t)

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("db file not created: %v", err)
	}

	var version string
	if err := st.db.QueryRow("SELECT value FROM metadata WHERE key = 'schema_version'").Scan(&version); err != nil {
		t.Fatalf("read schema version: %v", err)
	}
	if version != "1" {
		t.Fatalf("unexpected schema version: %s", version)
	}
}

func TestOpen_Reopen(t *testing.T) {
	st, path := openTestStore(t)
	if err := st.SaveReading(context.Background(), testReading("btc", 0.4, time.Now())); err != nil {
		t.Fatalf("save reading: %v", err)
	}
	_ = st.Close()

	again, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = again.Close() }()

	readings, err := again.ListReadings(context.Background(), "btc", 10)
	if err != nil {
		t.Fatalf("list readings: %v", err)
	}
	if len(readings) != 1 {
		t.Errorf("readings after reopen = %d, want 1", len(readings))
	}
}

func TestOpen_EmptyPath(t *testing.T) {
	if _, err := Open("  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestSaveAndListReadings(t *testing.T) {
	st, _ := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

	first := testReading("Bitcoin", 0.4, base)
	second := testReading("bitcoin", -0.2, base.Add(time.Hour))
	other := testReading("ethereum", 1, base.Add(2*time.Hour))
	for _, r := range []aggregate.Reading{first, second, other} {
		if err := st.SaveReading(ctx, r); err != nil {
			t.Fatalf("save reading: %v", err)
		}
	}

	readings, err := st.ListReadings(ctx, " BITCOIN ", 10)
	if err != nil {
		t.Fatalf("list readings: %v", err)
	}
	if len(readings) != 2 {
		t.Fatalf("readings = %d, want 2", len(readings))
	}
	if readings[0].ID != second.ID || readings[1].ID != first.ID {
		t.Errorf("readings not newest first: %v, %v", readings[0].ID, readings[1].ID)
	}

	got := readings[1]
	if got.Keyword != "Bitcoin" || got.Confidence != 0.4 || got.Total != 5 {
		t.Errorf("reading = %+v", got)
	}
	if got.Positive != 3 || got.Negative != 1 || got.Neutral != 1 {
		t.Errorf("counts = %d/%d/%d", got.Positive, got.Negative, got.Neutral)
	}
	if !got.CreatedAt.Equal(base) {
		t.Errorf("created_at = %v, want %v", got.CreatedAt, base)
	}
	if len(got.Sources) != 3 {
		t.Fatalf("sources = %d, want 3", len(got.Sources))
	}
	if got.Sources[1].Status != source.StatusFailed || !got.Sources[2].Cached || got.Sources[2].Items != 3 {
		t.Errorf("sources = %+v", got.Sources)
	}
}

func TestListReadings_Limit(t *testing.T) {
	st, _ := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

	for i := range 5 {
		if err := st.SaveReading(ctx, testReading("btc", 0, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("save reading: %v", err)
		}
	}

	readings, err := st.ListReadings(ctx, "btc", 2)
	if err != nil {
		t.Fatalf("list readings: %v", err)
	}
	if len(readings) != 2 {
		t.Errorf("readings = %d, want 2", len(readings))
	}
}

func TestSaveReading_Validation(t *testing.T) {
	st, _ := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	noID := testReading("btc", 0, now)
	noID.ID = uuid.Nil
	if err := st.SaveReading(ctx, noID); err == nil {
		t.Error("expected error for missing id")
	}
	if err := st.SaveReading(ctx, testReading(" ", 0, now)); err == nil {
		t.Error("expected error for blank keyword")
	}
	if err := st.SaveReading(ctx, testReading("btc", 0, time.Time{})); err == nil {
		t.Error("expected error for zero created_at")
	}

	dup := testReading("btc", 0, now)
	if err := st.SaveReading(ctx, dup); err != nil {
		t.Fatalf("save reading: %v", err)
	}
	if err := st.SaveReading(ctx, dup); err == nil {
		t.Error("expected error for duplicate id")
	}
}

func TestSaveReading_NoSources(t *testing.T) {
	st, _ := openTestStore(t)
	ctx := context.Background()

	r := testReading("btc", 0, time.Now())
	r.Sources = nil
	if err := st.SaveReading(ctx, r); err != nil {
		t.Fatalf("save reading: %v", err)
	}
	readings, err := st.ListReadings(ctx, "btc", 1)
	if err != nil {
		t.Fatalf("list readings: %v", err)
	}
	if len(readings) != 1 || len(readings[0].Sources) != 0 {
		t.Errorf("readings = %+v", readings)
	}
}

func TestUpsertArticle(t *testing.T) {
	st, _ := openTestStore(t)
	ctx := context.Background()
	published := time.Date(2026, 10, 18, 8, 0, 0, 0, time.UTC)
	fetched := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)

	a, err := st.UpsertArticle(ctx, ArticleInput{
		Title:       "Bitcoin rallies",
		Content:     "Gains extend",
		URL:         " https://n.test/1 ",
		Source:      "CoinDesk",
		PublishedAt: published,
		FetchedAt:   fetched,
	})
	if err != nil {
		t.Fatalf("upsert article: %v", err)
	}
	if a.ID == 0 || a.URL != "https://n.test/1" || a.Source != "CoinDesk" {
		t.Errorf("article = %+v", a)
	}
	if !a.PublishedAt.Equal(published) || !a.FetchedAt.Equal(fetched) {
		t.Errorf("times = %v / %v", a.PublishedAt, a.FetchedAt)
	}

	updated, err := st.UpsertArticle(ctx, ArticleInput{
		Title:       "Bitcoin rallies further",
		URL:         "https://n.test/1",
		PublishedAt: published,
		FetchedAt:   fetched.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("upsert again: %v", err)
	}
	if updated.ID != a.ID {
		t.Errorf("id changed on upsert: %d -> %d", a.ID, updated.ID)
	}
	if updated.Title != "Bitcoin rallies further" || updated.Content != "" {
		t.Errorf("updated = %+v", updated)
	}

	var count int
	if err := st.db.QueryRow("SELECT COUNT(*) FROM articles").Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("articles = %d, want 1", count)
	}
}

func TestUpsertArticle_Validation(t *testing.T) {
	st, _ := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	tests := []struct {
		name string
		in   ArticleInput
	}{
		{"no url", ArticleInput{Title: "t", PublishedAt: now, FetchedAt: now}},
		{"no title", ArticleInput{URL: "u", PublishedAt: now, FetchedAt: now}},
		{"no published_at", ArticleInput{Title: "t", URL: "u", FetchedAt: now}},
		{"no fetched_at", ArticleInput{Title: "t", URL: "u", PublishedAt: now}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := st.UpsertArticle(ctx, tt.in); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLatestArticles(t *testing.T) {
	st, _ := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

	for i := range 12 {
		_, err := st.UpsertArticle(ctx, ArticleInput{
			Title:       "article",
			URL:         "https://n.test/" + string(rune('a'+i)),
			PublishedAt: base.Add(time.Duration(i) * time.Hour),
			FetchedAt:   base.Add(24 * time.Hour),
		})
		if err != nil {
			t.Fatalf("upsert article %d: %v", i, err)
		}
	}

	articles, err := st.LatestArticles(ctx, 10)
	if err != nil {
		t.Fatalf("latest articles: %v", err)
	}
	if len(articles) != 10 {
		t.Fatalf("articles = %d, want 10", len(articles))
	}
	if articles[0].URL != "https://n.test/l" {
		t.Errorf("first = %q, want newest", articles[0].URL)
	}
	for i := 1; i < len(articles); i++ {
		if articles[i].PublishedAt.After(articles[i-1].PublishedAt) {
			t.Fatalf("articles not sorted newest first at %d", i)
		}
	}
}

func TestPruneOld(t *testing.T) {
	st, _ := openTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	old := now.AddDate(0, 0, -60)
	recent := now.Add(-1 * time.Hour)

	for _, r := range []aggregate.Reading{testReading("btc", 1, old), testReading("btc", -1, recent)} {
		if err := st.SaveReading(ctx, r); err != nil {
			t.Fatalf("save reading: %v", err)
		}
	}
	for i, at := range []time.Time{old, recent} {
		if _, err := st.UpsertArticle(ctx, ArticleInput{
			Title:       "a",
			URL:         "https://n.test/" + string(rune('a'+i)),
			PublishedAt: at,
			FetchedAt:   at,
		}); err != nil {
			t.Fatalf("upsert article: %v", err)
		}
	}

	pruned, err := st.PruneOld(ctx, 30)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if pruned != 2 {
		t.Errorf("pruned = %d, want 2", pruned)
	}

	readings, err := st.ListReadings(ctx, "btc", 10)
	if err != nil {
		t.Fatalf("list readings: %v", err)
	}
	if len(readings) != 1 || readings[0].Confidence != -1 {
		t.Errorf("remaining readings = %+v", readings)
	}
	articles, err := st.LatestArticles(ctx, 10)
	if err != nil {
		t.Fatalf("latest articles: %v", err)
	}
	if len(articles) != 1 {
		t.Errorf("remaining articles = %d, want 1", len(articles))
	}
}

func TestPruneOld_ZeroDays(t *testing.T) {
	st, _ := openTestStore(t)

	pruned, err := st.PruneOld(context.Background(), 0)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if pruned != 0 {
		t.Errorf("pruned = %d, want 0", pruned)
	}
}

func TestMigrate_RejectsNewerSchema(t *testing.T) {
	st, path := openTestStore(t)
	if _, err := st.db.Exec("UPDATE metadata SET value = '99' WHERE key = 'schema_version'"); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	_ = st.Close()

	if _, err := Open(path); err == nil {
		t.Fatal("expected error for newer schema version")
	}
}
