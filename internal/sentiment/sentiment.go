// Package sentiment scores the polarity of short texts.
//
// Scores live in [-1, 1]: positive above zero, negative below, neutral at
// zero. Callers that only need the direction use Sign.
package sentiment

import (
	"context"
	"math"
)

// Scorer returns the polarity of text in [-1, 1].
type Scorer interface {
	Score(ctx context.Context, text string) float64
}

// ScorerFunc adapts a plain function to Scorer.
type ScorerFunc func(ctx context.Context, text string) float64

func (f ScorerFunc) Score(ctx context.Context, text string) float64 { return f(ctx, text) }

// Sign reduces a score to -1, 0 or +1.
func Sign(score float64) int {
	switch {
	case score > 0:
		return 1
	case score < 0:
		return -1
	default:
		return 0
	}
}

func clamp(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}
