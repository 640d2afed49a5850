package crawlmix

import (
	"context"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/models"
)

// Static serves mixes and crawl status from memory. It backs single-machine
// deployments without PostgreSQL.
type Static struct {
	mu    sync.RWMutex
	mixes map[string]models.Mix
	open  map[string]bool
}

func NewStatic(mixes ...models.Mix) *Static {
	s := &Static{mixes: make(map[string]models.Mix), open: make(map[string]bool)}
	for _, m := range mixes {
		s.mixes[m.Name] = m
	}
	return s
}

func (s *Static) Mix(_ context.Context, name string) (models.Mix, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.mixes[name]
	return m, ok, nil
}

func (s *Static) OpenCrawl(_ context.Context, index string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.open[index], nil
}

func (s *Static) SetCrawlOpen(_ context.Context, index string, open bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open[index] = open
	return nil
}
