package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
	"gopkg.in/yaml.v3"

	"github.com/lpdev/bitpredector/internal/privacy"
)

const (
	DefaultConfigFile    = "config.yaml"
	DefaultEnvFile       = ".env"
	DefaultStoragePath   = ".bitpredector/bitpredector.db"
	DefaultRetainDays    = 30
	DefaultMaxItems      = 100
	DefaultCacheTTL      = 300 * time.Second
	DefaultCacheCapacity = 100
	DefaultFetchTimeout  = 30 * time.Second
	DefaultScoreWorkers  = 8
	DefaultScorerMode    = "lexicon"
	DefaultClassifierTTL = 10 * time.Second
	DefaultHTTPAddr      = ":8080"
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "console"
	DefaultNewsQuery     = "cryptocurrency"
	DefaultCommunity     = "cryptocurrency"
)

// Duration wraps time.Duration for YAML unmarshaling from strings like "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

type Config struct {
	Sources   SourcesConfig   `yaml:"sources"`
	Cache     CacheConfig     `yaml:"cache"`
	Scorer    ScorerConfig    `yaml:"scorer"`
	Aggregate AggregateConfig `yaml:"aggregate"`
	Storage   StorageConfig   `yaml:"storage"`
	HTTP      HTTPConfig      `yaml:"http"`
	Log       LogConfig       `yaml:"log"`
}

type SourcesConfig struct {
	Microblog MicroblogConfig `yaml:"microblog"`
	Forum     ForumConfig     `yaml:"forum"`
	News      NewsConfig      `yaml:"news"`
	RSS       RSSConfig       `yaml:"rss"`
}

// Enabled is nil when the YAML omits it; sources default to on.
type MicroblogConfig struct {
	Enabled        *bool  `yaml:"enabled"`
	BaseURL        string `yaml:"base_url"`
	BearerTokenEnv string `yaml:"bearer_token_env"`
	Lang           string `yaml:"lang"`
	MaxItems       int    `yaml:"max_items"`

	// Resolved from env var at load time.
	BearerToken string `yaml:"-"`
}

func (c MicroblogConfig) IsEnabled() bool { return isEnabled(c.Enabled) }

type ForumConfig struct {
	Enabled        *bool  `yaml:"enabled"`
	BaseURL        string `yaml:"base_url"`
	Community      string `yaml:"community"`
	UserAgent      string `yaml:"user_agent"`
	BearerTokenEnv string `yaml:"bearer_token_env"`
	MaxItems       int    `yaml:"max_items"`

	BearerToken string `yaml:"-"`
}

func (c ForumConfig) IsEnabled() bool { return isEnabled(c.Enabled) }

type NewsConfig struct {
	Enabled   *bool  `yaml:"enabled"`
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"`
	Language  string `yaml:"language"`
	SortBy    string `yaml:"sort_by"`
	MaxItems  int    `yaml:"max_items"`
	Query     string `yaml:"query"` // used by news pull

	APIKey string `yaml:"-"`
}

func (c NewsConfig) IsEnabled() bool { return isEnabled(c.Enabled) }

// RSSConfig is a feed-backed news source. It is off unless feeds are listed.
type RSSConfig struct {
	Enabled  *bool    `yaml:"enabled"`
	Feeds    []string `yaml:"feeds"`
	MaxItems int      `yaml:"max_items"`
}

func (c RSSConfig) IsEnabled() bool { return len(c.Feeds) > 0 && isEnabled(c.Enabled) }

func isEnabled(b *bool) bool { return b == nil || *b }

type CacheConfig struct {
	TTL      Duration `yaml:"ttl"`
	Capacity int      `yaml:"capacity"`
	RedisURL string   `yaml:"redis_url"`
}

type ScorerConfig struct {
	Mode       string           `yaml:"mode"`
	Classifier ClassifierConfig `yaml:"classifier"`
}

type ClassifierConfig struct {
	Endpoint string   `yaml:"endpoint"`
	TokenEnv string   `yaml:"token_env"`
	Timeout  Duration `yaml:"timeout"`

	Token string `yaml:"-"`
}

type AggregateConfig struct {
	FetchTimeout Duration `yaml:"fetch_timeout"`
	ScoreWorkers int      `yaml:"score_workers"`
}

type StorageConfig struct {
	Path       string `yaml:"path"`
	RetainDays int    `yaml:"retain_days"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	// RedactPatterns are extra regexps masked in logged provider errors.
	RedactPatterns []string `yaml:"redact_patterns"`
}

// overrides are process-level settings that win over config.yaml.
type overrides struct {
	LogLevel  string `env:"BITPREDECTOR_LOG_LEVEL"`
	LogFormat string `env:"BITPREDECTOR_LOG_FORMAT"`
	RedisURL  string `env:"BITPREDECTOR_REDIS_URL"`
	HTTPAddr  string `env:"BITPREDECTOR_HTTP_ADDR"`
}

// Load reads config.yaml from dir, loads dir/.env if present, applies defaults,
// resolves env vars, and validates.
func Load(dir string) (*Config, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("config dir is required")
	}

	path := filepath.Join(dir, DefaultConfigFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := loadDotEnv(dir); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	resolveEnv(&cfg)
	if err := applyOverrides(&cfg); err != nil {
		return nil, err
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// loadDotEnv exports dir/.env into the process environment. Variables already
// set in the environment keep their value.
func loadDotEnv(dir string) error {
	path := filepath.Join(dir, DefaultEnvFile)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", DefaultEnvFile, err)
	}
	return nil
}

func applyDefaults(cfg *Config) {
	src := &cfg.Sources
	if src.Microblog.MaxItems == 0 {
		src.Microblog.MaxItems = DefaultMaxItems
	}
	if src.Forum.MaxItems == 0 {
		src.Forum.MaxItems = DefaultMaxItems
	}
	if src.Forum.Community == "" {
		src.Forum.Community = DefaultCommunity
	}
	if src.News.MaxItems == 0 {
		src.News.MaxItems = DefaultMaxItems
	}
	if src.News.Query == "" {
		src.News.Query = DefaultNewsQuery
	}
	if src.RSS.MaxItems == 0 {
		src.RSS.MaxItems = DefaultMaxItems
	}

	if cfg.Cache.TTL.Duration == 0 {
		cfg.Cache.TTL.Duration = DefaultCacheTTL
	}
	if cfg.Cache.Capacity == 0 {
		cfg.Cache.Capacity = DefaultCacheCapacity
	}
	if cfg.Scorer.Mode == "" {
		cfg.Scorer.Mode = DefaultScorerMode
	}
	if cfg.Scorer.Classifier.Timeout.Duration == 0 {
		cfg.Scorer.Classifier.Timeout.Duration = DefaultClassifierTTL
	}
	if cfg.Aggregate.FetchTimeout.Duration == 0 {
		cfg.Aggregate.FetchTimeout.Duration = DefaultFetchTimeout
	}
	if cfg.Aggregate.ScoreWorkers == 0 {
		cfg.Aggregate.ScoreWorkers = DefaultScoreWorkers
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = DefaultStoragePath
	}
	if cfg.Storage.RetainDays == 0 {
		cfg.Storage.RetainDays = DefaultRetainDays
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = DefaultHTTPAddr
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
}

func resolveEnv(cfg *Config) {
	src := &cfg.Sources
	if src.Microblog.BearerTokenEnv != "" {
		src.Microblog.BearerToken = os.Getenv(src.Microblog.BearerTokenEnv)
	}
	if src.Forum.BearerTokenEnv != "" {
		src.Forum.BearerToken = os.Getenv(src.Forum.BearerTokenEnv)
	}
	if src.News.APIKeyEnv != "" {
		src.News.APIKey = os.Getenv(src.News.APIKeyEnv)
	}
	if cfg.Scorer.Classifier.TokenEnv != "" {
		cfg.Scorer.Classifier.Token = os.Getenv(cfg.Scorer.Classifier.TokenEnv)
	}
}

func applyOverrides(cfg *Config) error {
	var o overrides
	if err := env.Load(&o, nil); err != nil {
		return fmt.Errorf("load env overrides: %w", err)
	}
	if o.LogLevel != "" {
		cfg.Log.Level = o.LogLevel
	}
	if o.LogFormat != "" {
		cfg.Log.Format = o.LogFormat
	}
	if o.RedisURL != "" {
		cfg.Cache.RedisURL = o.RedisURL
	}
	if o.HTTPAddr != "" {
		cfg.HTTP.Addr = o.HTTPAddr
	}
	return nil
}

func validate(cfg *Config) error {
	for name, n := range map[string]int{
		"sources.microblog.max_items": cfg.Sources.Microblog.MaxItems,
		"sources.forum.max_items":     cfg.Sources.Forum.MaxItems,
		"sources.news.max_items":      cfg.Sources.News.MaxItems,
		"sources.rss.max_items":       cfg.Sources.RSS.MaxItems,
		"cache.capacity":              cfg.Cache.Capacity,
		"aggregate.score_workers":     cfg.Aggregate.ScoreWorkers,
		"storage.retain_days":         cfg.Storage.RetainDays,
	} {
		if n < 0 {
			return fmt.Errorf("%s: must not be negative, got %d", name, n)
		}
	}

	if cfg.Cache.TTL.Duration < 0 {
		return fmt.Errorf("cache.ttl: must be positive, got %s", cfg.Cache.TTL.Duration)
	}
	if cfg.Aggregate.FetchTimeout.Duration < 0 {
		return fmt.Errorf("aggregate.fetch_timeout: must be positive, got %s", cfg.Aggregate.FetchTimeout.Duration)
	}

	if cfg.Cache.RedisURL != "" {
		if u, err := url.Parse(cfg.Cache.RedisURL); err != nil || (u.Scheme != "redis" && u.Scheme != "rediss") {
			return fmt.Errorf("cache.redis_url: want redis:// or rediss:// URL, got %q", cfg.Cache.RedisURL)
		}
	}

	switch cfg.Scorer.Mode {
	case "lexicon":
		// valid
	case "classifier":
		if cfg.Scorer.Classifier.Endpoint == "" {
			return errors.New("scorer.classifier.endpoint: required when scorer.mode is classifier")
		}
	default:
		return fmt.Errorf("scorer.mode: unknown mode %q (want lexicon or classifier)", cfg.Scorer.Mode)
	}

	switch cfg.Log.Format {
	case "console", "text", "json":
		// valid
	default:
		return fmt.Errorf("log.format: unknown format %q (want console or json)", cfg.Log.Format)
	}

	if _, err := privacy.Compile(cfg.Log.RedactPatterns); err != nil {
		return fmt.Errorf("log.redact_patterns: %w", err)
	}

	return nil
}
