// Package docstore resolves document summaries: from a local SQLite store,
// from peer machines over RPC, or from whichever of the two owns a record.
package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Adithya-Monish-Kumar-K/search-query-engine/internal/models"
)

// Record is one stored document summary, addressed by the generation and
// offset the indexer assigned to it.
type Record struct {
	Generation    int
	SummaryOffset int64
	Key           models.Key
	CrawlTime     int64
	Summary       models.Summary
}

// SQLiteStore keeps the summaries of the documents indexed on this machine.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenSQLite opens or creates the store at path. ":memory:" keeps it in
// process memory.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("creating summary store directory: %w", err)
			}
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening summary store: %w", err)
	}
	if path == ":memory:" {
		// every connection would get its own empty database
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enabling WAL: %w", err)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing summary schema: %w", err)
	}
	return &SQLiteStore{
		db:     db,
		logger: slog.Default().With("component", "docstore"),
	}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS summaries (
		generation     INTEGER NOT NULL,
		summary_offset INTEGER NOT NULL,
		doc_key        TEXT NOT NULL,
		crawl_time     INTEGER NOT NULL DEFAULT 0,
		url            TEXT NOT NULL,
		title          TEXT,
		description    TEXT,
		hash           TEXT,
		is_doc         INTEGER NOT NULL DEFAULT 0,
		location       TEXT,
		robot_metas    TEXT,
		http_code      INTEGER,
		answers        TEXT,
		header         TEXT,
		body           TEXT,
		links          TEXT,
		scores         TEXT,
		PRIMARY KEY (generation, summary_offset)
	);

	CREATE INDEX IF NOT EXISTS idx_summaries_url ON summaries(url, crawl_time);
	`
	_, err := db.Exec(schema)
	return err
}

// Put inserts or replaces a record.
func (s *SQLiteStore) Put(ctx context.Context, r Record) error {
	sum := r.Summary
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO summaries
		 (generation, summary_offset, doc_key, crawl_time, url, title, description, hash,
		  is_doc, location, robot_metas, http_code, answers, header, body, links, scores)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Generation, r.SummaryOffset, r.Key.String(), r.CrawlTime, sum.URL, sum.Title, sum.Description, sum.Hash,
		sum.IsDoc, sum.Location, encodeJSON(sum.RobotMetas), sum.HTTPCode, encodeJSON(sum.Answers),
		sum.Header, sum.Body, encodeJSON(sum.Links), encodeJSON(sum.Scores),
	)
	if err != nil {
		return fmt.Errorf("storing summary %d/%d: %w", r.Generation, r.SummaryOffset, err)
	}
	return nil
}

func columns(p models.Projection) string {
	cols := []string{"url", "title", "description", "hash", "is_doc", "location", "robot_metas", "http_code"}
	if p.QA {
		cols = append(cols, "answers")
	}
	if p.Full {
		cols = append(cols, "header", "body", "links", "scores")
	}
	return strings.Join(cols, ", ")
}

// Resolve returns the summary of every doc in order. Records this store does
// not hold come back as zero summaries.
func (s *SQLiteStore) Resolve(ctx context.Context, docs []models.CandidateDoc, p models.Projection) ([]models.Summary, error) {
	stmt, err := s.db.PrepareContext(ctx,
		`SELECT `+columns(p)+` FROM summaries WHERE generation = ? AND summary_offset = ?`)
	if err != nil {
		return nil, fmt.Errorf("preparing summary lookup: %w", err)
	}
	defer stmt.Close()

	out := make([]models.Summary, len(docs))
	for i, d := range docs {
		sum, err := scanSummary(stmt.QueryRowContext(ctx, d.Generation, d.SummaryOffset), p)
		if err == sql.ErrNoRows {
			s.logger.Debug("summary missing", "key", d.Key, "generation", d.Generation, "offset", d.SummaryOffset)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("resolving summary %d/%d: %w", d.Generation, d.SummaryOffset, err)
		}
		out[i] = sum
	}
	return out, nil
}

// ResolveURLs returns, for every ref, the capture of its URL crawled last at
// or before CrawlTime, falling back to the newest capture.
func (s *SQLiteStore) ResolveURLs(ctx context.Context, refs []models.URLRef, p models.Projection) ([]models.Summary, error) {
	stmt, err := s.db.PrepareContext(ctx,
		`SELECT `+columns(p)+` FROM summaries WHERE url = ?
		 ORDER BY (crawl_time <= ?) DESC, crawl_time DESC LIMIT 1`)
	if err != nil {
		return nil, fmt.Errorf("preparing url lookup: %w", err)
	}
	defer stmt.Close()

	out := make([]models.Summary, len(refs))
	for i, r := range refs {
		sum, err := scanSummary(stmt.QueryRowContext(ctx, r.URL, r.CrawlTime), p)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("resolving url %s: %w", r.URL, err)
		}
		out[i] = sum
	}
	return out, nil
}

func scanSummary(row *sql.Row, p models.Projection) (models.Summary, error) {
	var (
		sum                                  models.Summary
		title, desc, hash, location          sql.NullString
		robots, answers, header, body, links sql.NullString
		scores                               sql.NullString
		httpCode                             sql.NullInt64
	)
	dest := []any{&sum.URL, &title, &desc, &hash, &sum.IsDoc, &location, &robots, &httpCode}
	if p.QA {
		dest = append(dest, &answers)
	}
	if p.Full {
		dest = append(dest, &header, &body, &links, &scores)
	}
	if err := row.Scan(dest...); err != nil {
		return sum, err
	}
	sum.Title = title.String
	sum.Description = desc.String
	sum.Hash = hash.String
	sum.Location = location.String
	sum.HTTPCode = int(httpCode.Int64)
	sum.Header = header.String
	sum.Body = body.String
	if err := decodeJSON(robots, &sum.RobotMetas); err != nil {
		return sum, err
	}
	if err := decodeJSON(answers, &sum.Answers); err != nil {
		return sum, err
	}
	if err := decodeJSON(links, &sum.Links); err != nil {
		return sum, err
	}
	if err := decodeJSON(scores, &sum.Scores); err != nil {
		return sum, err
	}
	return sum, nil
}

func encodeJSON(v any) sql.NullString {
	data, err := json.Marshal(v)
	if err != nil || string(data) == "null" {
		return sql.NullString{}
	}
	return sql.NullString{String: string(data), Valid: true}
}

func decodeJSON(s sql.NullString, v any) error {
	if !s.Valid || s.String == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(s.String), v); err != nil {
		return fmt.Errorf("decoding summary field: %w", err)
	}
	return nil
}

// Ping checks that the database answers.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
