package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/lpdev/bitpredector/internal/aggregate"
)

// Store persists readings and news articles in sqlite.
type Store struct {
	db *sql.DB
}

// Article is a persisted news article.
type Article struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	URL         string    `json:"url"`
	Source      string    `json:"source"`
	PublishedAt time.Time `json:"published_at"`
	FetchedAt   time.Time `json:"fetched_at"`
}

type ArticleInput struct {
	Title       string
	Content     string
	URL         string
	Source      string
	PublishedAt time.Time
	FetchedAt   time.Time
}

// Open opens the database at path, creating it and applying migrations as needed.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("path is required")
	}

	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveReading persists one analysis outcome.
func (s *Store) SaveReading(ctx context.Context, r aggregate.Reading) error {
	if s == nil || s.db == nil {
		return errors.New("store is not initialized")
	}
	if r.ID == uuid.Nil {
		return errors.New("reading id is required")
	}
	if strings.TrimSpace(r.Keyword) == "" {
		return errors.New("keyword is required")
	}
	if r.CreatedAt.IsZero() {
		return errors.New("created_at is required")
	}

	sources := r.Sources
	if sources == nil {
		sources = []aggregate.SourceReport{}
	}
	sourcesJSON, err := json.Marshal(sources)
	if err != nil {
		return fmt.Errorf("marshal sources: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO readings (
			id, keyword, confidence, positive, negative, neutral, total, sources, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID.String(),
		r.Keyword,
		r.Confidence,
		r.Positive,
		r.Negative,
		r.Neutral,
		r.Total,
		string(sourcesJSON),
		formatTime(r.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert reading: %w", err)
	}
	return nil
}

// ListReadings returns the latest readings for keyword, newest first.
// Keyword matching ignores case and surrounding whitespace.
func (s *Store) ListReadings(ctx context.Context, keyword string, limit int) ([]aggregate.Reading, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, keyword, confidence, positive, negative, neutral, total, sources, created_at
		FROM readings
		WHERE keyword = ? COLLATE NOCASE
		ORDER BY created_at DESC
		LIMIT ?
	`, strings.TrimSpace(keyword), limit)
	if err != nil {
		return nil, fmt.Errorf("query readings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var readings []aggregate.Reading
	for rows.Next() {
		r, err := scanReading(rows)
		if err != nil {
			return nil, err
		}
		readings = append(readings, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate readings: %w", err)
	}
	return readings, nil
}

// UpsertArticle inserts an article or refreshes the one with the same URL.
func (s *Store) UpsertArticle(ctx context.Context, in ArticleInput) (Article, error) {
	if s == nil || s.db == nil {
		return Article{}, errors.New("store is not initialized")
	}
	url := strings.TrimSpace(in.URL)
	if url == "" {
		return Article{}, errors.New("url is required")
	}
	if strings.TrimSpace(in.Title) == "" {
		return Article{}, errors.New("title is required")
	}
	if in.PublishedAt.IsZero() {
		return Article{}, errors.New("published_at is required")
	}
	if in.FetchedAt.IsZero() {
		return Article{}, errors.New("fetched_at is required")
	}

	var contentVal sql.NullString
	if in.Content != "" {
		contentVal = sql.NullString{String: in.Content, Valid: true}
	}
	var sourceVal sql.NullString
	if strings.TrimSpace(in.Source) != "" {
		sourceVal = sql.NullString{String: strings.TrimSpace(in.Source), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO articles (title, content, url, source, published_at, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			title = excluded.title,
			content = excluded.content,
			source = excluded.source,
			published_at = excluded.published_at,
			fetched_at = excluded.fetched_at
	`,
		strings.TrimSpace(in.Title),
		contentVal,
		url,
		sourceVal,
		formatTime(in.PublishedAt),
		formatTime(in.FetchedAt),
	)
	if err != nil {
		return Article{}, fmt.Errorf("upsert article: %w", err)
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, content, url, source, published_at, fetched_at
		FROM articles
		WHERE url = ?
	`, url)
	return scanArticle(row)
}

// LatestArticles returns up to limit articles, most recently published first.
func (s *Store) LatestArticles(ctx context.Context, limit int) ([]Article, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, content, url, source, published_at, fetched_at
		FROM articles
		ORDER BY published_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query articles: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var articles []Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		articles = append(articles, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate articles: %w", err)
	}
	return articles, nil
}

// PruneOld deletes readings created and articles published more than
// retainDays ago. Returns the number of rows removed.
func (s *Store) PruneOld(ctx context.Context, retainDays int) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("store is not initialized")
	}
	if retainDays <= 0 {
		return 0, nil
	}

	cutoff := formatTime(time.Now().AddDate(0, 0, -retainDays))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin prune transaction: %w", err)
	}

	readings, err := tx.ExecContext(ctx, "DELETE FROM readings WHERE created_at < ?", cutoff)
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("prune old readings: %w", err)
	}

	articles, err := tx.ExecContext(ctx, "DELETE FROM articles WHERE published_at < ?", cutoff)
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("prune old articles: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit prune: %w", err)
	}

	nr, _ := readings.RowsAffected()
	na, _ := articles.RowsAffected()
	return nr + na, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReading(scanner rowScanner) (aggregate.Reading, error) {
	var (
		r         aggregate.Reading
		id        string
		sources   string
		createdAt string
	)
	if err := scanner.Scan(
		&id, &r.Keyword, &r.Confidence, &r.Positive, &r.Negative, &r.Neutral, &r.Total, &sources, &createdAt,
	); err != nil {
		return aggregate.Reading{}, fmt.Errorf("scan reading: %w", err)
	}

	parsedID, err := uuid.Parse(id)
	if err != nil {
		return aggregate.Reading{}, fmt.Errorf("parse reading id: %w", err)
	}
	r.ID = parsedID

	if err := json.Unmarshal([]byte(sources), &r.Sources); err != nil {
		return aggregate.Reading{}, fmt.Errorf("decode reading sources: %w", err)
	}

	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return aggregate.Reading{}, fmt.Errorf("parse created_at: %w", err)
	}
	return r, nil
}

func scanArticle(scanner rowScanner) (Article, error) {
	var (
		a           Article
		content     sql.NullString
		source      sql.NullString
		publishedAt string
		fetchedAt   string
	)
	if err := scanner.Scan(&a.ID, &a.Title, &content, &a.URL, &source, &publishedAt, &fetchedAt); err != nil {
		return Article{}, fmt.Errorf("scan article: %w", err)
	}
	a.Content = content.String
	a.Source = source.String

	var err error
	if a.PublishedAt, err = parseTime(publishedAt); err != nil {
		return Article{}, fmt.Errorf("parse published_at: %w", err)
	}
	if a.FetchedAt, err = parseTime(fetchedAt); err != nil {
		return Article{}, fmt.Errorf("parse fetched_at: %w", err)
	}
	return a, nil
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts, nil
	}
	return time.Parse(time.RFC3339, value)
}
