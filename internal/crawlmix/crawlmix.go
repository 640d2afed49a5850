// Package crawlmix supplies crawl-mix definitions and crawl status to the
// engine, read from PostgreSQL and kept briefly in memory.
package crawlmix

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/models"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/pkg/postgres"
)

// Schema creates the tables the repository reads.
const Schema = `
CREATE TABLE IF NOT EXISTS crawl_mixes (
    name        TEXT PRIMARY KEY,
    definition  JSONB NOT NULL,
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS crawls (
    index_name  TEXT PRIMARY KEY,
    closed      BOOLEAN NOT NULL DEFAULT FALSE,
    closed_at   TIMESTAMPTZ
);
`

// Repository reads mixes and crawl status. Lookups are cached for ttl.
type Repository struct {
	db     *postgres.Client
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger

	mu     sync.Mutex
	mixes  map[string]cachedMix
	status map[string]cachedStatus
}

type cachedMix struct {
	mix   models.Mix
	found bool
	at    time.Time
}

type cachedStatus struct {
	open bool
	at   time.Time
}

func NewRepository(db *postgres.Client, ttl time.Duration) *Repository {
	return &Repository{
		db:     db,
		ttl:    ttl,
		now:    time.Now,
		logger: slog.Default().With("component", "crawl-mix"),
		mixes:  make(map[string]cachedMix),
		status: make(map[string]cachedStatus),
	}
}

// Migrate creates the tables when missing.
func (r *Repository) Migrate(ctx context.Context) error {
	return r.db.Migrate(ctx, "crawl mixes", Schema)
}

// Mix returns the named mix. found is false when no such mix exists.
func (r *Repository) Mix(ctx context.Context, name string) (models.Mix, bool, error) {
	r.mu.Lock()
	if c, ok := r.mixes[name]; ok && r.now().Sub(c.at) < r.ttl {
		r.mu.Unlock()
		return c.mix, c.found, nil
	}
	r.mu.Unlock()

	var data []byte
	err := r.db.DB.QueryRowContext(ctx,
		`SELECT definition FROM crawl_mixes WHERE name = $1`, name,
	).Scan(&data)
	var (
		mix   models.Mix
		found bool
	)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return models.Mix{}, false, fmt.Errorf("loading crawl mix %s: %w", name, err)
	default:
		if err := json.Unmarshal(data, &mix); err != nil {
			return models.Mix{}, false, fmt.Errorf("decoding crawl mix %s: %w", name, err)
		}
		mix.Name = name
		found = true
	}

	r.mu.Lock()
	r.mixes[name] = cachedMix{mix: mix, found: found, at: r.now()}
	r.mu.Unlock()
	return mix, found, nil
}

// SaveMix stores a mix definition.
func (r *Repository) SaveMix(ctx context.Context, mix models.Mix) error {
	data, err := json.Marshal(mix)
	if err != nil {
		return fmt.Errorf("encoding crawl mix: %w", err)
	}
	_, err = r.db.DB.ExecContext(ctx,
		`INSERT INTO crawl_mixes (name, definition, updated_at) VALUES ($1, $2, NOW())
		 ON CONFLICT (name) DO UPDATE SET definition = EXCLUDED.definition, updated_at = NOW()`,
		mix.Name, data,
	)
	if err != nil {
		return fmt.Errorf("saving crawl mix %s: %w", mix.Name, err)
	}
	r.mu.Lock()
	delete(r.mixes, mix.Name)
	r.mu.Unlock()
	r.logger.Info("crawl mix saved", "name", mix.Name, "fragments", len(mix.Fragments))
	return nil
}

// OpenCrawl reports whether the crawl behind index is still running. Unknown
// indexes count as closed.
func (r *Repository) OpenCrawl(ctx context.Context, index string) (bool, error) {
	r.mu.Lock()
	if c, ok := r.status[index]; ok && r.now().Sub(c.at) < r.ttl {
		r.mu.Unlock()
		return c.open, nil
	}
	r.mu.Unlock()

	var closed bool
	err := r.db.DB.QueryRowContext(ctx,
		`SELECT closed FROM crawls WHERE index_name = $1`, index,
	).Scan(&closed)
	if err == sql.ErrNoRows {
		closed = true
	} else if err != nil {
		return false, fmt.Errorf("loading crawl status of %s: %w", index, err)
	}

	r.mu.Lock()
	r.status[index] = cachedStatus{open: !closed, at: r.now()}
	r.mu.Unlock()
	return !closed, nil
}

// SetCrawlOpen records whether the crawl behind index is running.
func (r *Repository) SetCrawlOpen(ctx context.Context, index string, open bool) error {
	_, err := r.db.DB.ExecContext(ctx,
		`INSERT INTO crawls (index_name, closed, closed_at) VALUES ($1, $2, CASE WHEN $2 THEN NOW() END)
		 ON CONFLICT (index_name) DO UPDATE SET closed = EXCLUDED.closed, closed_at = EXCLUDED.closed_at`,
		index, !open,
	)
	if err != nil {
		return fmt.Errorf("saving crawl status of %s: %w", index, err)
	}
	r.mu.Lock()
	delete(r.status, index)
	r.mu.Unlock()
	return nil
}
