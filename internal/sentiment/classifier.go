package sentiment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lpdev/bitpredector/internal/logging"
	"github.com/lpdev/bitpredector/internal/retry"
)

const (
	defaultClassifierTimeout = 10 * time.Second
	maxClassifierInput       = 2000 // runes sent per request
)

var errBadStatus = errors.New("classifier returned non-200 status")

// ClassifierConfig configures a Classifier.
type ClassifierConfig struct {
	Endpoint string
	Token    string // optional bearer token
	Timeout  time.Duration
	Logger   *zap.Logger
}

// Classifier scores text with a remote text-classification model using the
// Hugging Face inference API shape. Scores are discrete: -1, 0 or +1.
type Classifier struct {
	endpoint string
	token    string
	client   *http.Client
	policy   retry.Policy
	logger   *zap.Logger
}

// NewClassifier creates a classifier scorer.
func NewClassifier(cfg ClassifierConfig) *Classifier {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultClassifierTimeout
	}
	return &Classifier{
		endpoint: cfg.Endpoint,
		token:    cfg.Token,
		client:   &http.Client{Timeout: timeout},
		policy: retry.Policy{
			MaxAttempts:      2,
			InitialBackoff:   time.Second,
			RateLimitBackoff: 5 * time.Second,
		},
		logger: logging.OrNop(cfg.Logger),
	}
}

// Score maps the top label to +1 (positive), -1 (negative) or 0. Any failure
// scores 0 and is logged.
func (c *Classifier) Score(ctx context.Context, text string) float64 {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	labels, err := retry.Do(ctx, c.policy, classifyHTTP, func(ctx context.Context) ([]labelScore, error) {
		return c.classify(ctx, text)
	})
	if err != nil {
		c.logger.Warn("classifier failed, scoring neutral", zap.Error(err))
		return 0
	}
	return labelPolarity(topLabel(labels))
}

func (c *Classifier) classify(ctx context.Context, text string) ([]labelScore, error) {
	if r := []rune(text); len(r) > maxClassifierInput {
		text = string(r[:maxClassifierInput])
	}
	body, err := json.Marshal(classifyRequest{Inputs: text})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &statusError{code: resp.StatusCode}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return decodeLabels(raw)
}

// decodeLabels accepts both [[{label,score}]] and [{label,score}].
func decodeLabels(raw []byte) ([]labelScore, error) {
	var nested [][]labelScore
	if err := json.Unmarshal(raw, &nested); err == nil {
		if len(nested) == 0 {
			return nil, errors.New("decode response: empty result")
		}
		return nested[0], nil
	}
	var flat []labelScore
	if err := json.Unmarshal(raw, &flat); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return flat, nil
}

func topLabel(labels []labelScore) string {
	best := -1.0
	var label string
	for _, l := range labels {
		if l.Score > best {
			best, label = l.Score, l.Label
		}
	}
	return label
}

func labelPolarity(label string) float64 {
	switch strings.ToUpper(label) {
	case "POSITIVE", "POS", "BULLISH":
		return 1
	case "NEGATIVE", "NEG", "BEARISH":
		return -1
	default:
		return 0
	}
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%v: %d", errBadStatus, e.code)
}

func (e *statusError) Unwrap() error { return errBadStatus }

// classifyHTTP retries a loading or overloaded model and gives up on anything else.
func classifyHTTP(err error) retry.Action {
	var se *statusError
	if !errors.As(err, &se) {
		return retry.Retry
	}
	switch {
	case se.code == http.StatusTooManyRequests:
		return retry.After
	case se.code >= 500:
		return retry.Retry
	default:
		return retry.Stop
	}
}

type classifyRequest struct {
	Inputs string `json:"inputs"`
}

type labelScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}
