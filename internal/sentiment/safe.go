package sentiment

import (
	"context"
	"math"

	"go.uber.org/zap"

	"github.com/lpdev/bitpredector/internal/logging"
	"github.com/lpdev/bitpredector/internal/metrics"
)

// Safe guards a Scorer: panics score 0, NaN scores 0 and out-of-range scores
// are clamped to [-1, 1]. Every such failure is logged and counted.
type Safe struct {
	scorer  Scorer
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewSafe wraps s. logger and m may be nil.
func NewSafe(s Scorer, logger *zap.Logger, m *metrics.Metrics) *Safe {
	return &Safe{scorer: s, logger: logging.OrNop(logger), metrics: m}
}

func (s *Safe) Score(ctx context.Context, text string) (score float64) {
	defer func() {
		if r := recover(); r != nil {
			s.fail("scorer panicked", zap.Any("panic", r))
			score = 0
		}
	}()

	v := s.scorer.Score(ctx, text)
	switch {
	case math.IsNaN(v):
		s.fail("scorer returned NaN")
		return 0
	case v < -1 || v > 1:
		s.fail("scorer returned out-of-range score", zap.Float64("score", v))
		return clamp(v)
	}
	return v
}

func (s *Safe) fail(msg string, fields ...zap.Field) {
	s.logger.Warn(msg, fields...)
	s.metrics.ScoringFailed()
}
