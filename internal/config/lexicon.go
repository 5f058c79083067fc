package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const DefaultLexiconFile = "lexicon.yaml"

//go:embed default_lexicon.yaml
var defaultLexicon []byte

// Lexicon is the word table of the lexicon scorer.
type Lexicon struct {
	Words        map[string]float64 `yaml:"words"`
	Negators     []string           `yaml:"negators"`
	Intensifiers []string           `yaml:"intensifiers"`
}

// DefaultLexiconData returns the built-in lexicon YAML, used by init.
func DefaultLexiconData() []byte {
	return append([]byte(nil), defaultLexicon...)
}

// LoadLexicon reads dir/lexicon.yaml, falling back to the built-in lexicon
// when the file does not exist.
func LoadLexicon(dir string) (*Lexicon, error) {
	data, err := os.ReadFile(filepath.Join(dir, DefaultLexiconFile))
	switch {
	case errors.Is(err, os.ErrNotExist):
		data = defaultLexicon
	case err != nil:
		return nil, fmt.Errorf("read lexicon: %w", err)
	}
	return ParseLexicon(data)
}

// ParseLexicon parses and validates lexicon YAML. Words are lowercased.
func ParseLexicon(data []byte) (*Lexicon, error) {
	var lx Lexicon
	if err := yaml.Unmarshal(data, &lx); err != nil {
		return nil, fmt.Errorf("parse lexicon: %w", err)
	}
	if err := validateLexicon(&lx); err != nil {
		return nil, fmt.Errorf("validate lexicon: %w", err)
	}

	words := make(map[string]float64, len(lx.Words))
	for w, p := range lx.Words {
		words[strings.ToLower(w)] = p
	}
	lx.Words = words
	lx.Negators = lowerAll(lx.Negators)
	lx.Intensifiers = lowerAll(lx.Intensifiers)
	return &lx, nil
}

func validateLexicon(lx *Lexicon) error {
	if len(lx.Words) == 0 {
		return errors.New("words: at least one word is required")
	}
	for w, p := range lx.Words {
		if strings.TrimSpace(w) == "" {
			return errors.New("words: empty word")
		}
		if p < -1 || p > 1 {
			return fmt.Errorf("words: %q polarity %v outside [-1, 1]", w, p)
		}
	}
	return nil
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
