package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/lpdev/bitpredector/internal/logging"
	"github.com/lpdev/bitpredector/internal/metrics"
	"github.com/lpdev/bitpredector/internal/privacy"
	"github.com/lpdev/bitpredector/internal/retry"
)

const (
	DefaultMaxItems = 100

	defaultTimeout       = 30 * time.Second
	defaultRatePerSecond = 1
	breakerTrip          = 5
	breakerOpenFor       = 60 * time.Second
	errorBodyLimit       = 512
)

var (
	// ErrMalformed marks a provider response that could not be interpreted.
	ErrMalformed = errors.New("malformed response")

	// ErrNoCredentials marks a source configured without the credentials it needs.
	ErrNoCredentials = errors.New("no credentials configured")

	errRateWait = errors.New("rate limiter")
)

// DefaultRetryPolicy is used by every adapter unless overridden.
var DefaultRetryPolicy = retry.Policy{
	MaxAttempts:      3,
	InitialBackoff:   500 * time.Millisecond,
	RateLimitBackoff: 5 * time.Second,
}

// StatusError is returned when a provider answers with a non-200 status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP %d", e.Code)
	}
	return fmt.Sprintf("HTTP %d: %s", e.Code, e.Body)
}

// Option customizes an adapter.
type Option func(*adapter)

// WithHTTPClient replaces the adapter's HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(a *adapter) { a.client = c }
}

// WithLogger sets the logger used for fetch diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(a *adapter) { a.logger = logging.OrNop(l) }
}

// WithMetrics records fetch outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *adapter) { a.metrics = m }
}

// WithRedactor masks credentials in logged errors. The source's own secret
// is always masked.
func WithRedactor(r *privacy.Redactor) Option {
	return func(a *adapter) { a.redactor = r }
}

// WithRetryPolicy overrides DefaultRetryPolicy.
func WithRetryPolicy(p retry.Policy) Option {
	return func(a *adapter) { a.policy = p }
}

// WithRateLimit paces provider calls to perSecond requests with the given burst.
// A non-positive perSecond disables pacing.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(a *adapter) {
		if perSecond <= 0 {
			a.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		if burst < 1 {
			burst = 1
		}
		a.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// adapter carries the plumbing shared by every provider variant: the enabled
// flag, request pacing, retries, the circuit breaker and diagnostics.
type adapter struct {
	name     string
	kind     Kind
	enabled  atomic.Bool
	maxItems int

	client   *http.Client
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker
	policy   retry.Policy
	logger   *zap.Logger
	metrics  *metrics.Metrics
	redactor *privacy.Redactor
}

func newAdapter(name string, kind Kind, enabled bool, maxItems int, secret string, opts []Option) *adapter {
	if maxItems <= 0 {
		maxItems = DefaultMaxItems
	}
	a := &adapter{
		name:     name,
		kind:     kind,
		maxItems: maxItems,
		client:   &http.Client{Timeout: defaultTimeout},
		limiter:  rate.NewLimiter(rate.Limit(defaultRatePerSecond), 1),
		policy:   DefaultRetryPolicy,
		logger:   zap.NewNop(),
	}
	a.enabled.Store(enabled)
	for _, opt := range opts {
		opt(a)
	}
	a.redactor = a.redactor.With(secret)
	a.logger = a.logger.With(zap.String("source", name))
	a.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     breakerOpenFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerTrip
		},
		// Cancellation is the caller leaving; a deadline counts as a failure.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			a.logger.Warn("circuit breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return a
}

func (a *adapter) Name() string { return a.name }

func (a *adapter) Kind() Kind { return a.kind }

func (a *adapter) Enabled() bool { return a.enabled.Load() }

func (a *adapter) SetEnabled(enabled bool) { a.enabled.Store(enabled) }

// run executes fetch behind the breaker and turns every failure into a Result.
func (a *adapter) run(ctx context.Context, keyword string, fetch func(ctx context.Context) ([]Item, error)) (res Result) {
	if !a.Enabled() {
		return Result{Status: StatusDisabled}
	}

	log := a.logger.With(zap.String("keyword", keyword))
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			log.Warn("source fetch timed out before start")
			return Result{Status: StatusFailed}
		}
		return Result{Status: StatusCanceled}
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			log.Error("source fetch panicked", zap.Any("panic", r))
			res = Result{Status: StatusFailed}
		}
		a.metrics.SourceFetched(a.name, string(res.Status), time.Since(start))
	}()

	v, err := a.breaker.Execute(func() (interface{}, error) {
		return a.call(ctx, func(ctx context.Context) (any, error) { return fetch(ctx) })
	})
	switch {
	case err == nil:
		items, _ := v.([]Item)
		if len(items) > a.maxItems {
			items = items[:a.maxItems]
		}
		log.Debug("source fetched", zap.Int("items", len(items)))
		return Result{Items: items, Status: StatusOK}
	case errors.Is(ctx.Err(), context.Canceled) || errors.Is(err, context.Canceled):
		log.Debug("source fetch canceled", zap.Error(a.redactor.Err(err)))
		return Result{Status: StatusCanceled}
	case ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded):
		log.Warn("source fetch timed out", zap.Error(a.redactor.Err(err)))
		return Result{Status: StatusFailed}
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		log.Warn("source skipped, circuit open", zap.Error(a.redactor.Err(err)))
		return Result{Status: StatusFailed}
	default:
		log.Warn("source fetch failed", zap.Error(a.redactor.Err(err)))
		return Result{Status: StatusFailed}
	}
}

// call paces and retries a single provider operation.
func (a *adapter) call(ctx context.Context, op func(ctx context.Context) (any, error)) (any, error) {
	policy := a.policy
	policy.OnRetry = func(attempt int, err error, backoff time.Duration) {
		a.logger.Debug("retrying provider call",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(a.redactor.Err(err)),
		)
	}
	return retry.Do(ctx, policy, classify, func(ctx context.Context) (any, error) {
		if err := a.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: %v", errRateWait, err)
		}
		return op(ctx)
	})
}

// getJSON issues a GET and decodes a 200 response into dst.
func (a *adapter) getJSON(ctx context.Context, url string, header http.Header, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

// classify maps provider errors onto retry decisions.
func classify(err error) retry.Action {
	var se *StatusError
	if errors.As(err, &se) {
		return classifyStatus(se.Code)
	}
	var fe gofeed.HTTPError
	if errors.As(err, &fe) {
		return classifyStatus(fe.StatusCode)
	}
	if errors.Is(err, ErrMalformed) || errors.Is(err, ErrNoCredentials) ||
		errors.Is(err, errRateWait) || errors.Is(err, gofeed.ErrFeedTypeNotDetected) {
		return retry.Stop
	}
	return retry.Retry
}

func classifyStatus(code int) retry.Action {
	switch {
	case code == http.StatusTooManyRequests:
		return retry.After
	case code >= 500:
		return retry.Retry
	default:
		return retry.Stop
	}
}

func containsFold(text, keyword string) bool {
	return strings.Contains(strings.ToLower(text), strings.ToLower(strings.TrimSpace(keyword)))
}
