package report

import (
	"fmt"
	"io"
	"math"
	"time"

	"github.com/lpdev/bitpredector/internal/aggregate"
	"github.com/lpdev/bitpredector/internal/store"
)

// Formatter renders readings and articles to w.
type Formatter interface {
	Reading(w io.Writer, r aggregate.Reading) error
	History(w io.Writer, keyword string, readings []aggregate.Reading) error
	Articles(w io.Writer, articles []store.Article) error
}

// New returns the formatter for format: "terminal", "json" or "markdown".
func New(format string, color bool) (Formatter, error) {
	switch format {
	case "", "terminal":
		return NewTerminal(color), nil
	case "json":
		return NewJSON(), nil
	case "markdown":
		return NewMarkdown(), nil
	default:
		return nil, fmt.Errorf("unknown format %q (want terminal, json or markdown)", format)
	}
}

// Round2 rounds confidence to two decimals. Negative zero becomes zero.
func Round2(v float64) float64 {
	r := math.Round(v*100) / 100
	if r == 0 {
		return 0
	}
	return r
}

// Verdict names the market mood a confidence value points to.
func Verdict(confidence float64) string {
	switch c := Round2(confidence); {
	case c > 0:
		return "bullish"
	case c < 0:
		return "bearish"
	default:
		return "neutral"
	}
}

const timeLayout = "2006-01-02 15:04"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(timeLayout)
}
