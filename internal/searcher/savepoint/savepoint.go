// Package savepoint persists the leaf offsets of resumable query runs keyed
// by the caller's base timestamp and the presentation part's segment index.
package savepoint

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/models"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/searcher/cache"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-query-engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/pkg/metrics"
)

const keyPrefix = "search:savepoint:"

type record struct {
	Offsets models.SavePoint `json:"offsets"`
	Saved   int64            `json:"saved"`
}

// Store keeps one save point per (base, segment). Writers race; the last
// Save wins.
type Store struct {
	backend cache.Store
	ttl     time.Duration
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func New(backend cache.Store, ttl time.Duration, m *metrics.Metrics) *Store {
	return &Store{
		backend: backend,
		ttl:     ttl,
		metrics: m,
		logger:  slog.Default().With("component", "save-points"),
	}
}

// Load returns the stored save point. ok is false when none exists or the
// stored one is corrupt, in which case the run starts fresh.
func (s *Store) Load(ctx context.Context, base int64, segment int) (models.SavePoint, bool, error) {
	key := Key(base, segment)
	data, err := s.backend.Get(ctx, key)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			s.metrics.SavePoint("miss")
			return nil, false, nil
		}
		return nil, false, apperrors.Unavailable("savepoint.load", err)
	}
	var r record
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		s.logger.Warn("save point corrupt, starting fresh", "key", key, "error", err)
		s.metrics.SavePoint("corrupt")
		return nil, false, nil
	}
	s.metrics.SavePoint("load")
	return r.Offsets, true, nil
}

func (s *Store) Save(ctx context.Context, base int64, segment int, sp models.SavePoint) error {
	key := Key(base, segment)
	data, err := json.Marshal(record{Offsets: sp, Saved: time.Now().UnixMilli()})
	if err != nil {
		return fmt.Errorf("encoding save point %s: %w", key, err)
	}
	if err := s.backend.Set(ctx, key, data, s.ttl); err != nil {
		return apperrors.Unavailable("savepoint.save", err)
	}
	s.metrics.SavePoint("save")
	return nil
}

// Key is the store key of a save point.
func Key(base int64, segment int) string {
	return fmt.Sprintf("%s%d:%d", keyPrefix, base, segment)
}
