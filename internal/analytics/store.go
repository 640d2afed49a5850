package analytics

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/search-query-engine/pkg/postgres"
)

// SnapshotSchema creates the table Store writes.
const SnapshotSchema = `
CREATE TABLE IF NOT EXISTS query_stats_snapshots (
    id          BIGSERIAL PRIMARY KEY,
    machine_id  INTEGER NOT NULL,
    data        JSONB NOT NULL,
    captured_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// keepSnapshots is how many snapshots per machine survive a save.
const keepSnapshots = 288

// Store persists aggregated query statistics in PostgreSQL.
type Store struct {
	db        *postgres.Client
	machineID int
	logger    *slog.Logger
}

func NewStore(db *postgres.Client, machineID int) *Store {
	return &Store{
		db:        db,
		machineID: machineID,
		logger:    slog.Default().With("component", "analytics-store"),
	}
}

func (s *Store) Migrate(ctx context.Context) error {
	return s.db.Migrate(ctx, "query stats snapshots", SnapshotSchema)
}

func (s *Store) SaveSnapshot(ctx context.Context, stats AggregatedStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshaling stats: %w", err)
	}
	err = s.db.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO query_stats_snapshots (machine_id, data, captured_at) VALUES ($1, $2, $3)`,
			s.machineID, data, time.Now().UTC(),
		); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`DELETE FROM query_stats_snapshots WHERE machine_id = $1 AND id NOT IN (
			   SELECT id FROM query_stats_snapshots WHERE machine_id = $1 ORDER BY captured_at DESC LIMIT $2)`,
			s.machineID, keepSnapshots,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("saving query stats snapshot: %w", err)
	}
	s.logger.Info("query stats snapshot saved",
		"total_queries", stats.TotalQueries,
		"zero_results", stats.ZeroResultCount,
	)
	return nil
}

// LatestSnapshot returns nil, nil when no snapshot exists yet.
func (s *Store) LatestSnapshot(ctx context.Context) (*AggregatedStats, error) {
	var data []byte
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT data FROM query_stats_snapshots WHERE machine_id = $1 ORDER BY captured_at DESC LIMIT 1`,
		s.machineID,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest snapshot: %w", err)
	}
	var stats AggregatedStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, fmt.Errorf("unmarshaling snapshot: %w", err)
	}
	return &stats, nil
}

// StartPeriodicSave snapshots agg every interval and once more when ctx
// ends.
func (s *Store) StartPeriodicSave(ctx context.Context, agg *Aggregator, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := s.SaveSnapshot(ctx, agg.Stats()); err != nil {
					s.logger.Error("periodic snapshot failed", "error", err)
				}
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := s.SaveSnapshot(shutdownCtx, agg.Stats()); err != nil {
					s.logger.Error("final snapshot failed", "error", err)
				}
				return
			}
		}
	}()
	s.logger.Info("periodic snapshot started", "interval", interval)
}
