package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bolletta/bolletta/pkg/log"
	"github.com/bolletta/bolletta/pkg/types"
	"github.com/levenlabs/go-lflag"

	_ "modernc.org/sqlite"
)

const snapshotKey = "published"

// SQLiteProvider implements Database on a local SQLite file.
// Values are stored as JSON documents keyed by the cache key.
type SQLiteProvider struct {
	path string
	db   *sql.DB
}

var _ Database = (*SQLiteProvider)(nil)

// configuredSQLite sets up the SQLite provider.
// It registers flags for configuration.
func configuredSQLite() *SQLiteProvider {
	path := lflag.String("sqlite-path", "bolletta.sqlite", "Path of the SQLite file used by the sqlite storage provider")

	s := &SQLiteProvider{}

	lflag.Do(func() {
		s.path = *path
	})

	return s
}

// NewSQLite returns a provider for path. Init must be called before use.
func NewSQLite(path string) *SQLiteProvider {
	return &SQLiteProvider{path: path}
}

// Validate checks if the provider is properly configured.
func (s *SQLiteProvider) Validate() error {
	if s.path == "" {
		return fmt.Errorf("sqlite-path is required")
	}
	return nil
}

// Init opens the database and creates the tables.
func (s *SQLiteProvider) Init(ctx context.Context) error {
	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return fmt.Errorf("failed to open sqlite (%s): %w", s.path, err)
	}
	// a single writer avoids SQLITE_BUSY between the refresher and the cache
	db.SetMaxOpenConns(1)

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tariff_cache (
			key TEXT PRIMARY KEY,
			json TEXT NOT NULL,
			fetched_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS tariff_snapshot (
			key TEXT PRIMARY KEY,
			json TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return fmt.Errorf("failed to create sqlite schema: %w", err)
		}
	}
	s.db = db
	return nil
}

// Close closes the database.
func (s *SQLiteProvider) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteProvider) GetTariff(ctx context.Context, key string) (types.TariffParameterSet, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT json FROM tariff_cache WHERE key = ?`, key).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query tariff cache: %w", err)
	}
	params := types.TariffParameterSet{}
	if err := json.Unmarshal([]byte(raw), &params); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "corrupt tariff cache entry", slog.String("key", key), slog.Any("error", err))
		return nil, fmt.Errorf("failed to decode tariff cache entry %s: %w", key, err)
	}
	return params, nil
}

func (s *SQLiteProvider) PutTariff(ctx context.Context, key string, params types.TariffParameterSet, fetchedAt time.Time) error {
	b, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to encode tariff params: %w", err)
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO tariff_cache (key, json, fetched_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET json = excluded.json, fetched_at = excluded.fetched_at`,
		key, string(b), fetchedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert tariff cache entry %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteProvider) GetSnapshot(ctx context.Context) (types.TariffSnapshot, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT json FROM tariff_snapshot WHERE key = ?`, snapshotKey).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.TariffSnapshot{}, ErrNotFound
		}
		return types.TariffSnapshot{}, fmt.Errorf("failed to query snapshot: %w", err)
	}
	var snap types.TariffSnapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return types.TariffSnapshot{}, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return snap, nil
}

func (s *SQLiteProvider) PutSnapshot(ctx context.Context, snapshot types.TariffSnapshot) error {
	b, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO tariff_snapshot (key, json) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET json = excluded.json`,
		snapshotKey, string(b),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert snapshot: %w", err)
	}
	return nil
}
