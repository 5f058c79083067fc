package source

import (
	"errors"
	"fmt"
)

// Set is the ordered registry of configured sources. Order is construction
// order and drives iteration everywhere sources are listed.
type Set struct {
	sources []Source
	byName  map[string]Source
}

// NewSet builds a registry. Source names must be unique and non-empty.
func NewSet(sources ...Source) (*Set, error) {
	s := &Set{byName: make(map[string]Source, len(sources))}
	for _, src := range sources {
		if src == nil {
			return nil, errors.New("source set: nil source")
		}
		name := src.Name()
		if name == "" {
			return nil, errors.New("source set: source name is required")
		}
		if _, dup := s.byName[name]; dup {
			return nil, fmt.Errorf("source set: duplicate source %q", name)
		}
		s.byName[name] = src
		s.sources = append(s.sources, src)
	}
	return s, nil
}

// All returns every source in construction order.
func (s *Set) All() []Source {
	return append([]Source(nil), s.sources...)
}

// Enabled returns the sources currently enabled, in construction order.
func (s *Set) Enabled() []Source {
	var out []Source
	for _, src := range s.sources {
		if src.Enabled() {
			out = append(out, src)
		}
	}
	return out
}

// Get looks a source up by name.
func (s *Set) Get(name string) (Source, bool) {
	src, ok := s.byName[name]
	return src, ok
}

// SetEnabled toggles the named source.
func (s *Set) SetEnabled(name string, enabled bool) error {
	src, ok := s.byName[name]
	if !ok {
		return fmt.Errorf("unknown source %q", name)
	}
	src.SetEnabled(enabled)
	return nil
}

// Len returns the number of registered sources.
func (s *Set) Len() int {
	return len(s.sources)
}
