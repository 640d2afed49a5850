// Package postgres opens the lib/pq pool holding crawl mixes, crawl status
// and query statistics snapshots.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/search-query-engine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/search-query-engine/pkg/resilience"
)

type Client struct {
	DB     *sql.DB
	logger *slog.Logger
}

// New opens the pool and waits for the server, retrying while it starts.
func New(ctx context.Context, cfg config.PostgresConfig) (*Client, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening postgres connection: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	c := &Client{DB: db, logger: slog.Default().With("component", "postgres")}
	err = resilience.Retry(ctx, "postgres.connect", resilience.RetryConfig{
		MaxAttempts:  5,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     3 * time.Second,
	}, func() error {
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return db.PingContext(pctx)
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	c.logger.Info("postgres connected", "host", cfg.Host, "database", cfg.Database)
	return c, nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

// Migrate runs idempotent DDL.
func (c *Client) Migrate(ctx context.Context, name, ddl string) error {
	if _, err := c.DB.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("migrating %s: %w", name, err)
	}
	c.logger.Debug("schema ready", "schema", name)
	return nil
}

// InTx runs fn in a transaction, committing when it returns nil.
func (c *Client) InTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rolling back transaction after error %v: %w", rbErr, err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (c *Client) Close() error {
	return c.DB.Close()
}
