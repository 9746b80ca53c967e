// Package store persists one row per completed or in-progress run to a
// local sqlite database, keyed by the run's content hash, so a later lookup
// (the reporting API, a repeated invocation of the same Play over the same
// window) can find prior results without replaying the run (SPEC_FULL.md
// §4.14). It is grounded on the teacher's store.StrategyStore: a thin
// *sql.DB wrapper with an idempotent initTables and hand-written CRUD.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/plife507/TRADE-sub002/internal/coreerr"
)

// RunRecord is one row of the run registry (SPEC_FULL.md §3).
type RunRecord struct {
	RunHash       string
	PlayID        string
	PlayVersion   string
	Symbol        string
	WindowStartMs int64
	WindowEndMs   int64
	ManifestPath  string
	ResultJSON    string
	CreatedAt     time.Time
}

// RunStore wraps the sqlite-backed run registry.
type RunStore struct {
	db *sql.DB
}

// Open opens (creating if absent) the sqlite database at path, in WAL mode
// for concurrent readers while a run is writing, and ensures the runs table
// exists.
func Open(path string) (*RunStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	s := &RunStore{db: db}
	if err := s.initTables(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *RunStore) initTables() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			run_hash TEXT PRIMARY KEY,
			play_id TEXT NOT NULL,
			play_version TEXT NOT NULL,
			symbol TEXT NOT NULL,
			window_start_ms INTEGER NOT NULL,
			window_end_ms INTEGER NOT NULL,
			manifest_path TEXT NOT NULL,
			result_json TEXT NOT NULL,
			created_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_runs_play_id ON runs(play_id);
	`)
	if err != nil {
		return fmt.Errorf("store: init tables: %w", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *RunStore) Close() error {
	return s.db.Close()
}

// Upsert writes rec, keyed by its RunHash. If a row with the same hash
// already exists, its stored fields must match rec byte for byte; any
// difference means two runs of the same Play over the same window produced
// different results, which is a determinism violation (spec.md §4.10,
// exit code 4), not an ordinary write conflict to silently resolve.
func (s *RunStore) Upsert(rec *RunRecord) error {
	existing, err := s.Get(rec.RunHash)
	if err != nil {
		return err
	}
	if existing != nil {
		if !sameRecord(existing, rec) {
			return coreerr.Determinism("store: run %s already recorded with different contents (play %s symbol %s window [%d,%d))",
				rec.RunHash, existing.PlayID, existing.Symbol, existing.WindowStartMs, existing.WindowEndMs)
		}
		return nil
	}

	_, err = s.db.Exec(`
		INSERT INTO runs (run_hash, play_id, play_version, symbol, window_start_ms, window_end_ms, manifest_path, result_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_hash) DO NOTHING
	`, rec.RunHash, rec.PlayID, rec.PlayVersion, rec.Symbol, rec.WindowStartMs, rec.WindowEndMs, rec.ManifestPath, rec.ResultJSON, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: upsert %s: %w", rec.RunHash, err)
	}
	return nil
}

func sameRecord(a, b *RunRecord) bool {
	return a.PlayID == b.PlayID &&
		a.PlayVersion == b.PlayVersion &&
		a.Symbol == b.Symbol &&
		a.WindowStartMs == b.WindowStartMs &&
		a.WindowEndMs == b.WindowEndMs &&
		a.ManifestPath == b.ManifestPath &&
		a.ResultJSON == b.ResultJSON
}

// Get returns the record for runHash, or nil if none exists.
func (s *RunStore) Get(runHash string) (*RunRecord, error) {
	row := s.db.QueryRow(`
		SELECT run_hash, play_id, play_version, symbol, window_start_ms, window_end_ms, manifest_path, result_json, created_at
		FROM runs WHERE run_hash = ?
	`, runHash)
	rec := &RunRecord{}
	err := row.Scan(&rec.RunHash, &rec.PlayID, &rec.PlayVersion, &rec.Symbol, &rec.WindowStartMs, &rec.WindowEndMs, &rec.ManifestPath, &rec.ResultJSON, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get %s: %w", runHash, err)
	}
	return rec, nil
}

// List returns every recorded run for playID, most recent first.
func (s *RunStore) List(playID string) ([]*RunRecord, error) {
	rows, err := s.db.Query(`
		SELECT run_hash, play_id, play_version, symbol, window_start_ms, window_end_ms, manifest_path, result_json, created_at
		FROM runs WHERE play_id = ? ORDER BY created_at DESC
	`, playID)
	if err != nil {
		return nil, fmt.Errorf("store: list %s: %w", playID, err)
	}
	defer rows.Close()

	var out []*RunRecord
	for rows.Next() {
		rec := &RunRecord{}
		if err := rows.Scan(&rec.RunHash, &rec.PlayID, &rec.PlayVersion, &rec.Symbol, &rec.WindowStartMs, &rec.WindowEndMs, &rec.ManifestPath, &rec.ResultJSON, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan row for %s: %w", playID, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
