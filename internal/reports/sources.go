package reports

import (
	"fmt"
	"sort"
	"sync"

	"github.com/odyssey-erp/odyssey-reports/internal/fetch"
	"github.com/odyssey-erp/odyssey-reports/internal/rollup"
)

// Sources is a registry of named row sources.
type Sources struct {
	mu      sync.RWMutex
	sources map[string]fetch.Source
}

// NewSources constructs an empty registry.
func NewSources() *Sources {
	return &Sources{sources: make(map[string]fetch.Source)}
}

// Register adds or replaces the source called name.
func (s *Sources) Register(name string, src fetch.Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources[name] = src
}

// Names lists registered sources.
func (s *Sources) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.sources))
	for name := range s.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Fetcher binds the source and query of def, normalising field names.
func (s *Sources) Fetcher(def Definition) (rollup.Fetcher, error) {
	s.mu.RLock()
	src, ok := s.sources[def.Source]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (report %q)", ErrUnknownSource, def.Source, def.Name)
	}
	fetcher := fetch.Bind(src, def.FetchQuery())
	if len(def.Aliases) > 0 {
		fetcher = def.Normalizer().Wrap(fetcher)
	}
	return fetcher, nil
}
