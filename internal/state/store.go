// Package state persists per-provider schedule state so due-ness
// decisions survive process restarts. One row per provider, written as a
// whole snapshot after each processed check.
package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/mod/semver"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

// ErrPersistence wraps state-write failures. Persistence is best-effort:
// callers log it and continue the cycle.
var ErrPersistence = errors.New("schedule state persistence failed")

// ErrNewerSchema is returned when the state database was created by a
// newer binary than the one currently running.
var ErrNewerSchema = errors.New("state database was created by a newer version")

// ProviderState is one provider's schedule snapshot: the last successful
// run time of each check, keyed by check name. Timestamps round-trip as
// RFC 3339 UTC.
type ProviderState struct {
	Checks map[string]time.Time `json:"checks"`
}

// NewProviderState returns an empty snapshot.
func NewProviderState() *ProviderState {
	return &ProviderState{Checks: make(map[string]time.Time)}
}

// Store is the SQLite-backed schedule state store. The file is owned
// exclusively by this process; overlapping monitor invocations are
// prevented by the external scheduler.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the state database at path and applies the
// schema. WAL mode with a single write connection matches SQLite's sweet
// spot for this access pattern.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}

	db.SetMaxOpenConns(1)

	if err := db.PingContext(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite %q: %w", path, err)
	}

	// modernc.org/sqlite requires pragmas as SQL statements, not DSN params.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec %q: %w", p, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// CheckVersion prevents an older binary from opening a state database
// written by a newer one. The special version "dev" always passes.
func (s *Store) CheckVersion(ctx context.Context, currentVersion string) error {
	var stored string
	err := s.db.QueryRowContext(ctx, `SELECT version FROM schema_meta WHERE id = 1`).Scan(&stored)
	switch {
	case err == sql.ErrNoRows:
		stored = ""
	case err != nil:
		return fmt.Errorf("read schema version: %w", err)
	}

	if stored != "" && stored != "dev" && currentVersion != "dev" {
		if semver.Compare("v"+currentVersion, "v"+stored) < 0 {
			return fmt.Errorf("%w: db=%s binary=%s", ErrNewerSchema, stored, currentVersion)
		}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO schema_meta (id, version) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET version = excluded.version`,
		currentVersion,
	)
	if err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return nil
}

// Load returns the provider's schedule snapshot, or an empty one when the
// provider has never been persisted.
func (s *Store) Load(ctx context.Context, provider string) (*ProviderState, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT state_json FROM provider_state WHERE provider = ?`, provider,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return NewProviderState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load state for %q: %w", provider, err)
	}

	var st ProviderState
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return nil, fmt.Errorf("decode state for %q: %w", provider, err)
	}
	if st.Checks == nil {
		st.Checks = make(map[string]time.Time)
	}
	return &st, nil
}

// Save upserts the provider's full snapshot. Timestamps are normalized to
// UTC so the serialized form is deterministic.
func (s *Store) Save(ctx context.Context, provider string, st *ProviderState) error {
	normalized := make(map[string]time.Time, len(st.Checks))
	for name, ts := range st.Checks {
		normalized[name] = ts.UTC().Truncate(time.Millisecond)
	}

	raw, err := json.Marshal(&ProviderState{Checks: normalized})
	if err != nil {
		return fmt.Errorf("%w: encode state for %q: %v", ErrPersistence, provider, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO provider_state (provider, state_json, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(provider) DO UPDATE SET
			state_json = excluded.state_json,
			updated_at = excluded.updated_at`,
		provider, string(raw), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("%w: write state for %q: %v", ErrPersistence, provider, err)
	}
	return nil
}

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS provider_state (
			provider TEXT PRIMARY KEY,
			state_json TEXT NOT NULL DEFAULT '{}',
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS schema_meta (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			version TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
