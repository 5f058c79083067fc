// Package aggregate turns a keyword into a single sentiment confidence ratio
// by fanning out to every enabled source, scoring every collected item and
// reducing the scores.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lpdev/bitpredector/internal/logging"
	"github.com/lpdev/bitpredector/internal/metrics"
	"github.com/lpdev/bitpredector/internal/sentiment"
	"github.com/lpdev/bitpredector/internal/source"
)

const (
	DefaultFetchTimeout = 30 * time.Second
	DefaultScoreWorkers = 8
)

// Fetcher obtains a source's items for a keyword, typically through a cache.
type Fetcher interface {
	GetOrFetch(ctx context.Context, src source.Source, keyword string) (source.Result, bool)
}

// Invalidator is implemented by fetchers that can drop a source's entries.
type Invalidator interface {
	Invalidate(ctx context.Context, sourceName string)
}

// direct fetches without caching.
type direct struct{}

func (direct) GetOrFetch(ctx context.Context, src source.Source, keyword string) (source.Result, bool) {
	return src.Fetch(ctx, keyword), false
}

// Options configures an Aggregator. Sources and Scorer are required.
type Options struct {
	Sources      *source.Set
	Fetcher      Fetcher // nil fetches directly
	Scorer       sentiment.Scorer
	FetchTimeout time.Duration
	ScoreWorkers int
	Clock        clockwork.Clock
	Logger       *zap.Logger
	Metrics      *metrics.Metrics
}

// Aggregator reduces the enabled sources' items for a keyword to a confidence ratio.
type Aggregator struct {
	sources      *source.Set
	fetcher      Fetcher
	scorer       sentiment.Scorer
	fetchTimeout time.Duration
	scoreWorkers int
	clock        clockwork.Clock
	logger       *zap.Logger
	metrics      *metrics.Metrics
}

// Reading is the full outcome of one analysis.
type Reading struct {
	ID         uuid.UUID      `json:"id"`
	Keyword    string         `json:"keyword"`
	Confidence float64        `json:"confidence"`
	Positive   int            `json:"positive"`
	Negative   int            `json:"negative"`
	Neutral    int            `json:"neutral"`
	Total      int            `json:"total"`
	Sources    []SourceReport `json:"sources"`
	CreatedAt  time.Time      `json:"created_at"`
}

// SourceReport tells how one source took part in a reading.
type SourceReport struct {
	Name   string        `json:"name"`
	Kind   source.Kind   `json:"kind"`
	Status source.Status `json:"status"`
	Items  int           `json:"items"`
	Cached bool          `json:"cached"`
}

// New validates opts and fills in defaults.
func New(opts Options) (*Aggregator, error) {
	if opts.Sources == nil {
		return nil, errors.New("aggregate: source set is required")
	}
	if opts.Scorer == nil {
		return nil, errors.New("aggregate: scorer is required")
	}
	if opts.Fetcher == nil {
		opts.Fetcher = direct{}
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	if opts.ScoreWorkers <= 0 {
		opts.ScoreWorkers = DefaultScoreWorkers
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	logger := logging.OrNop(opts.Logger)

	scorer := opts.Scorer
	if _, ok := scorer.(*sentiment.Safe); !ok {
		scorer = sentiment.NewSafe(scorer, logger, opts.Metrics)
	}

	return &Aggregator{
		sources:      opts.Sources,
		fetcher:      opts.Fetcher,
		scorer:       scorer,
		fetchTimeout: opts.FetchTimeout,
		scoreWorkers: opts.ScoreWorkers,
		clock:        opts.Clock,
		logger:       logger,
		metrics:      opts.Metrics,
	}, nil
}

// Sources returns the registry the aggregator reads from.
func (a *Aggregator) Sources() *source.Set { return a.sources }

// SetEnabled toggles a source and drops its cached results.
func (a *Aggregator) SetEnabled(ctx context.Context, name string, enabled bool) error {
	if err := a.sources.SetEnabled(name, enabled); err != nil {
		return err
	}
	if inv, ok := a.fetcher.(Invalidator); ok {
		inv.Invalidate(ctx, name)
	}
	return nil
}

// Analyze returns the confidence ratio for keyword. It always returns a number.
func (a *Aggregator) Analyze(ctx context.Context, keyword string) float64 {
	return a.Run(ctx, keyword).Confidence
}

// Run analyzes keyword and reports how every source took part. A blank
// keyword yields an empty reading without contacting any source.
func (a *Aggregator) Run(ctx context.Context, keyword string) Reading {
	keyword = strings.TrimSpace(keyword)
	reading := Reading{
		ID:        uuid.New(),
		Keyword:   keyword,
		CreatedAt: a.clock.Now().UTC(),
	}
	if keyword == "" {
		return reading
	}

	sources := a.sources.All()
	reports := make([]SourceReport, len(sources))
	items := make([][]source.Item, len(sources))

	var g errgroup.Group
	for i, src := range sources {
		reports[i] = SourceReport{Name: src.Name(), Kind: src.Kind(), Status: source.StatusDisabled}
		if !src.Enabled() {
			continue
		}
		g.Go(func() error {
			res, cached := a.fetch(ctx, src, keyword)
			reports[i].Status = res.Status
			reports[i].Items = len(res.Items)
			reports[i].Cached = cached
			items[i] = res.Items
			return nil // never fail the group, outcomes are reported per source
		})
	}
	_ = g.Wait()

	var texts []string
	for _, its := range items {
		for _, it := range its {
			texts = append(texts, it.Text)
		}
	}
	scores := a.score(ctx, texts)

	for _, s := range scores {
		switch sentiment.Sign(s) {
		case 1:
			reading.Positive++
		case -1:
			reading.Negative++
		default:
			reading.Neutral++
		}
	}
	reading.Total = len(scores)
	reading.Confidence = Confidence(scores)
	reading.Sources = reports

	a.metrics.Analyzed(reading.Confidence)
	a.logger.Info("analysis complete",
		zap.String("keyword", keyword),
		zap.Float64("confidence", reading.Confidence),
		zap.Int("items", reading.Total),
	)
	return reading
}

// fetch runs one source with its own timeout. Running out of that timeout,
// or a panic inside the source or the fetcher, counts as a failed fetch.
func (a *Aggregator) fetch(ctx context.Context, src source.Source, keyword string) (res source.Result, cached bool) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("source panicked",
				zap.String("source", src.Name()),
				zap.String("keyword", keyword),
				zap.String("panic", fmt.Sprint(r)),
			)
			res, cached = source.Result{Status: source.StatusFailed}, false
		}
	}()

	fetchCtx, cancel := context.WithTimeout(ctx, a.fetchTimeout)
	defer cancel()

	res, cached = a.fetcher.GetOrFetch(fetchCtx, src, keyword)
	if res.Status == source.StatusCanceled && ctx.Err() == nil {
		a.logger.Warn("source timed out",
			zap.String("source", src.Name()),
			zap.String("keyword", keyword),
			zap.Duration("timeout", a.fetchTimeout),
		)
		res.Status = source.StatusFailed
	}
	if !res.OK() {
		res.Items = nil
	}
	return res, cached
}

// score scores every text with bounded parallelism. Order matches texts.
func (a *Aggregator) score(ctx context.Context, texts []string) []float64 {
	scores := make([]float64, len(texts))
	var g errgroup.Group
	g.SetLimit(a.scoreWorkers)
	for i, text := range texts {
		g.Go(func() error {
			scores[i] = a.scorer.Score(ctx, text)
			return nil
		})
	}
	_ = g.Wait()
	return scores
}

// Confidence reduces scores to (positive - negative) / total. Zero scores
// count toward the total only. An empty set yields 0.
func Confidence(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	var net int
	for _, s := range scores {
		net += sentiment.Sign(s)
	}
	return float64(net) / float64(len(scores))
}
