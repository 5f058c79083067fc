package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lpdev/bitpredector/internal/aggregate"
	"github.com/lpdev/bitpredector/internal/cache"
	"github.com/lpdev/bitpredector/internal/config"
	"github.com/lpdev/bitpredector/internal/logging"
	"github.com/lpdev/bitpredector/internal/metrics"
	"github.com/lpdev/bitpredector/internal/privacy"
	"github.com/lpdev/bitpredector/internal/sentiment"
	"github.com/lpdev/bitpredector/internal/source"
	"github.com/lpdev/bitpredector/internal/store"
)

const (
	redisConnectTimeout = 5 * time.Second
	providerRate        = 1.0 // requests per second per source
	providerBurst       = 2
)

// app is the wired pipeline shared by every command that analyzes or fetches.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	sources  *source.Set
	news     *source.NewsSource
	cache    *cache.Cache
	agg      *aggregate.Aggregator
	redis    *goredis.Client
}

// loadConfig loads the config directory and applies the log flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configDir)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return logger, nil
}

// newApp wires sources, cache, scorer and aggregator from cfg.
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	reg := metrics.NewRegistry()
	m := metrics.New(reg)
	a := &app{cfg: cfg, logger: logger, registry: reg, metrics: m}

	patterns, err := privacy.Compile(cfg.Log.RedactPatterns)
	if err != nil {
		return nil, err
	}
	opts := []source.Option{
		source.WithLogger(logger),
		source.WithMetrics(m),
		source.WithRateLimit(providerRate, providerBurst),
		source.WithRedactor(privacy.NewRedactor(nil, patterns)),
	}
	sources, news, err := buildSources(cfg, opts)
	if err != nil {
		return nil, err
	}
	a.sources = sources
	a.news = news

	var backend cache.Backend
	if cfg.Cache.RedisURL != "" {
		rctx, cancel := context.WithTimeout(ctx, redisConnectTimeout)
		client, err := cache.OpenRedis(rctx, cfg.Cache.RedisURL)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.redis = client
		backend = cache.NewRedisBackend(client)
	}
	a.cache = cache.New(cache.Options{
		TTL:      cfg.Cache.TTL.Duration,
		Capacity: cfg.Cache.Capacity,
		Backend:  backend,
		Logger:   logger,
		Metrics:  m,
	})

	scorer, err := buildScorer(cfg, logger)
	if err != nil {
		a.close()
		return nil, err
	}

	a.agg, err = aggregate.New(aggregate.Options{
		Sources:      sources,
		Fetcher:      a.cache,
		Scorer:       scorer,
		FetchTimeout: cfg.Aggregate.FetchTimeout.Duration,
		ScoreWorkers: cfg.Aggregate.ScoreWorkers,
		Logger:       logger,
		Metrics:      m,
	})
	if err != nil {
		a.close()
		return nil, fmt.Errorf("create aggregator: %w", err)
	}
	return a, nil
}

func (a *app) close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	_ = a.logger.Sync()
}

// buildSources registers microblog, forum and news always, so they can be
// toggled at runtime, and the feed source only when feeds are configured.
func buildSources(cfg *config.Config, opts []source.Option) (*source.Set, *source.NewsSource, error) {
	sc := cfg.Sources

	microblog := source.NewMicroblog(source.MicroblogConfig{
		BaseURL:     sc.Microblog.BaseURL,
		BearerToken: sc.Microblog.BearerToken,
		Lang:        sc.Microblog.Lang,
		MaxItems:    sc.Microblog.MaxItems,
		Enabled:     sc.Microblog.IsEnabled(),
	}, opts...)

	forum := source.NewForum(source.ForumConfig{
		BaseURL:     sc.Forum.BaseURL,
		Community:   sc.Forum.Community,
		UserAgent:   sc.Forum.UserAgent,
		BearerToken: sc.Forum.BearerToken,
		MaxItems:    sc.Forum.MaxItems,
		Enabled:     sc.Forum.IsEnabled(),
	}, opts...)

	news := newNewsSource(cfg, opts)

	all := []source.Source{microblog, forum, news}
	if len(sc.RSS.Feeds) > 0 {
		feed, err := source.NewFeed(source.FeedConfig{
			Feeds:    sc.RSS.Feeds,
			MaxItems: sc.RSS.MaxItems,
			Enabled:  sc.RSS.IsEnabled(),
		}, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("create rss source: %w", err)
		}
		all = append(all, feed)
	}

	set, err := source.NewSet(all...)
	if err != nil {
		return nil, nil, err
	}
	return set, news, nil
}

func newNewsSource(cfg *config.Config, opts []source.Option) *source.NewsSource {
	nc := cfg.Sources.News
	return source.NewNews(source.NewsConfig{
		BaseURL:  nc.BaseURL,
		APIKey:   nc.APIKey,
		Language: nc.Language,
		SortBy:   nc.SortBy,
		MaxItems: nc.MaxItems,
		Enabled:  nc.IsEnabled(),
	}, opts...)
}

func buildScorer(cfg *config.Config, logger *zap.Logger) (sentiment.Scorer, error) {
	switch cfg.Scorer.Mode {
	case "classifier":
		return sentiment.NewClassifier(sentiment.ClassifierConfig{
			Endpoint: cfg.Scorer.Classifier.Endpoint,
			Token:    cfg.Scorer.Classifier.Token,
			Timeout:  cfg.Scorer.Classifier.Timeout.Duration,
			Logger:   logger,
		}), nil
	default:
		lx, err := config.LoadLexicon(configDir)
		if err != nil {
			return nil, fmt.Errorf("load lexicon: %w", err)
		}
		return sentiment.NewLexicon(lx), nil
	}
}

func openStore(cfg *config.Config) (*store.Store, error) {
	db, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return db, nil
}

// applyDisabled switches off the named sources for this run.
func applyDisabled(ctx context.Context, agg *aggregate.Aggregator, names []string) error {
	for _, name := range names {
		if err := agg.SetEnabled(ctx, name, false); err != nil {
			return fmt.Errorf("--disable: %w", err)
		}
	}
	return nil
}
