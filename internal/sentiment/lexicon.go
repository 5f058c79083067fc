package sentiment

import (
	"context"
	"strings"
	"unicode"

	"github.com/lpdev/bitpredector/internal/config"
)

const (
	intensifierBoost = 1.3
	negationScope    = 3 // tokens a negator reaches forward
)

// Lexicon scores text by averaging the polarity of known words.
// It is a pure function of its input and safe for concurrent use.
type Lexicon struct {
	words        map[string]float64
	negators     map[string]struct{}
	intensifiers map[string]struct{}
}

// NewLexicon builds a scorer from a word table.
func NewLexicon(lx *config.Lexicon) *Lexicon {
	s := &Lexicon{
		words:        make(map[string]float64, len(lx.Words)),
		negators:     toSet(lx.Negators),
		intensifiers: toSet(lx.Intensifiers),
	}
	for w, p := range lx.Words {
		s.words[strings.ToLower(w)] = p
	}
	return s
}

// Score returns the mean polarity of matched words, or 0 when nothing matched.
// A negator flips the next polar word within a few tokens; an intensifier
// directly before a polar word scales it.
func (s *Lexicon) Score(_ context.Context, text string) float64 {
	var (
		sum     float64
		matched int
		negLeft int
		boost   = 1.0
	)
	for _, tok := range tokenize(text) {
		if _, ok := s.negators[tok]; ok {
			negLeft = negationScope
			continue
		}
		if _, ok := s.intensifiers[tok]; ok {
			boost *= intensifierBoost
			continue
		}

		p, ok := s.words[tok]
		if !ok {
			boost = 1.0
			if negLeft > 0 {
				negLeft--
			}
			continue
		}

		p *= boost
		if negLeft > 0 {
			p = -p
		}
		sum += clamp(p)
		matched++
		boost, negLeft = 1.0, 0
	}

	if matched == 0 {
		return 0
	}
	return clamp(sum / float64(matched))
}

// tokenize lowercases text and splits it on anything but letters, digits and
// apostrophes.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\'' && r != '’'
	})
	out := fields[:0]
	for _, f := range fields {
		f = strings.ReplaceAll(f, "’", "'")
		if f = strings.Trim(f, "'"); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func toSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[strings.ToLower(w)] = struct{}{}
	}
	return set
}
