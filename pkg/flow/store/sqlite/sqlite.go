package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cognicore/flow/pkg/flow/internalerr"
	"github.com/cognicore/flow/pkg/flow/store"
)

// timeLayout sorts lexically in creation order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// sqliteStore implements the Store interface using SQLite
type sqliteStore struct {
	db *sql.DB
}

// OpenSQLite opens a SQLite database with WAL mode enabled.
func OpenSQLite(ctx context.Context, path string) (store.Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", internalerr.ErrStoreUnavailable, err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", internalerr.ErrStoreUnavailable, err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", internalerr.ErrStoreUnavailable, err)
	}

	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &sqliteStore{db: db}, nil
}

// Close closes the database connection
func (s *sqliteStore) Close() error {
	return s.db.Close()
}

// initSchema creates tables if they don't exist
func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	created_at TEXT NOT NULL,
	original TEXT NOT NULL,
	refined TEXT NOT NULL,
	config_json TEXT
);

CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);

CREATE TABLE IF NOT EXISTS run_edits (
	run_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	sentence INTEGER NOT NULL,
	word_idx INTEGER NOT NULL,
	original TEXT NOT NULL,
	replacement TEXT NOT NULL,
	gain REAL NOT NULL,
	similarity REAL NOT NULL,
	reason TEXT,
	PRIMARY KEY(run_id, seq),
	FOREIGN KEY(run_id) REFERENCES runs(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_run_edits_pair ON run_edits(original, replacement);
`
	_, err := db.ExecContext(ctx, schema)
	return err
}

// SaveRun inserts or replaces a run and its edits
func (s *sqliteStore) SaveRun(ctx context.Context, r store.Run) error {
	if r.ID == "" {
		return fmt.Errorf("%w: run id is empty", internalerr.ErrInvalidInput)
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO runs (id, created_at, original, refined, config_json)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	created_at=excluded.created_at,
	original=excluded.original,
	refined=excluded.refined,
	config_json=excluded.config_json;
`, r.ID, r.CreatedAt.UTC().Format(timeLayout), r.Original, r.Refined, r.ConfigJSON); err != nil {
		return err
	}

	if err := replaceRunEdits(ctx, tx, r.ID, r.Edits); err != nil {
		return err
	}
	return tx.Commit()
}

func replaceRunEdits(ctx context.Context, tx *sql.Tx, runID string, edits []store.EditRecord) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM run_edits WHERE run_id=?`, runID); err != nil {
		return err
	}
	if len(edits) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO run_edits (run_id, seq, sentence, word_idx, original, replacement, gain, similarity, reason)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, e := range edits {
		if _, err := stmt.ExecContext(ctx, runID, i, e.Sentence, e.WordIdx, e.Original, e.Replacement, e.Gain, e.Similarity, e.Reason); err != nil {
			return err
		}
	}
	return nil
}

// GetRun retrieves a run by ID
func (s *sqliteStore) GetRun(ctx context.Context, id string) (store.Run, error) {
	var (
		r       store.Run
		created string
		cfg     sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
SELECT id, created_at, original, refined, config_json FROM runs WHERE id = ?`, id).
		Scan(&r.ID, &created, &r.Original, &r.Refined, &cfg)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Run{}, fmt.Errorf("run %s: %w", id, internalerr.ErrNotFound)
	}
	if err != nil {
		return store.Run{}, err
	}
	r.ConfigJSON = cfg.String
	if r.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return store.Run{}, fmt.Errorf("run %s: created_at: %w", id, err)
	}

	r.Edits, err = s.loadEdits(ctx, id)
	if err != nil {
		return store.Run{}, err
	}
	return r, nil
}

func (s *sqliteStore) loadEdits(ctx context.Context, runID string) ([]store.EditRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT sentence, word_idx, original, replacement, gain, similarity, reason
FROM run_edits WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edits []store.EditRecord
	for rows.Next() {
		var (
			e      store.EditRecord
			reason sql.NullString
		)
		if err := rows.Scan(&e.Sentence, &e.WordIdx, &e.Original, &e.Replacement, &e.Gain, &e.Similarity, &reason); err != nil {
			return nil, err
		}
		e.Reason = reason.String
		edits = append(edits, e)
	}
	return edits, rows.Err()
}

// ListRuns returns the most recent runs first
func (s *sqliteStore) ListRuns(ctx context.Context, limit int) ([]store.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id FROM runs ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	runs := make([]store.Run, 0, len(ids))
	for _, id := range ids {
		r, err := s.GetRun(ctx, id)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, nil
}

// TopReplacements returns the most frequently applied substitutions
func (s *sqliteStore) TopReplacements(ctx context.Context, k int) ([]store.Replacement, error) {
	if k <= 0 {
		k = 10
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT original, replacement, COUNT(*) AS n
FROM run_edits
GROUP BY original, replacement
ORDER BY n DESC, original, replacement
LIMIT ?`, k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Replacement
	for rows.Next() {
		var r store.Replacement
		if err := rows.Scan(&r.Original, &r.Replacement, &r.Count); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
