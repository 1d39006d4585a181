// Package history persists the reversible operation log for a target
// root and replays it for undo.
//
// One SQLite database lives under each target root
// (<root>/.flatten/history.db). Every append is flushed to durable
// storage so the log survives abnormal process termination, and each
// extraction run writes its records under a single batch id so undo can
// address "the last run" precisely.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// StateDirName is the per-root directory holding flatten's own files.
const StateDirName = ".flatten"

// dbFileName is the history database filename inside StateDirName.
const dbFileName = "history.db"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS operations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	batch_id TEXT NOT NULL,
	original_path TEXT NOT NULL,
	new_path TEXT NOT NULL,
	content_duplicate INTEGER NOT NULL DEFAULT 0,
	duplicate_of TEXT,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_operations_batch ON operations(batch_id);
`

// Record is one reversible operation. A record with ContentDuplicate set
// carries the surviving file in DuplicateOf; records read from older logs
// without a duplicate_of value are treated as plain moves.
type Record struct {
	ID               int64
	BatchID          string
	OriginalPath     string
	NewPath          string
	ContentDuplicate bool
	DuplicateOf      string
	Timestamp        time.Time
}

// BatchSummary describes one recorded run.
type BatchSummary struct {
	BatchID    string
	Records    int
	Duplicates int
	StartedAt  time.Time
}

// Store manages the history database for one target root.
type Store struct {
	db   *sql.DB
	root string
}

// DBPath returns the history database path for a target root.
func DBPath(root string) string {
	return filepath.Join(root, StateDirName, dbFileName)
}

// Open opens (creating if necessary) the history store for a target root.
// The database file is kept read-only between sessions; Open makes it
// writable again for the duration of the session.
func Open(root string) (*Store, error) {
	dbPath := DBPath(root)
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	if _, err := os.Stat(dbPath); err == nil {
		if err := os.Chmod(dbPath, 0600); err != nil {
			return nil, fmt.Errorf("unlock history database: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}

	// busy_timeout first so the later pragmas wait on locks.
	// synchronous=FULL flushes every append; the log must survive an
	// abnormal process termination mid-run.
	pragmas := []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=FULL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Store{db: db, root: root}, nil
}

// Close closes the database connection and marks the database file
// read-only until the next Open, so the log cannot be casually edited
// between sessions.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	if chmodErr := os.Chmod(DBPath(s.root), 0400); chmodErr != nil && err == nil {
		err = chmodErr
	}
	return err
}

// NewBatchID returns a fresh batch identifier for one extraction run.
func NewBatchID() string {
	return uuid.NewString()
}

// Record appends one operation record. The write is durable when Record
// returns.
func (s *Store) Record(ctx context.Context, rec *Record) error {
	var duplicateOf sql.NullString
	if rec.DuplicateOf != "" {
		duplicateOf = sql.NullString{String: rec.DuplicateOf, Valid: true}
	}

	query := `INSERT INTO operations
		(batch_id, original_path, new_path, content_duplicate, duplicate_of)
		VALUES (?, ?, ?, ?, ?)`

	result, err := s.db.ExecContext(ctx, query,
		rec.BatchID,
		rec.OriginalPath,
		rec.NewPath,
		rec.ContentDuplicate,
		duplicateOf,
	)
	if err != nil {
		return fmt.Errorf("insert operation record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}
	rec.ID = id

	return nil
}

// LatestBatch returns the id of the most recently recorded batch, or an
// empty string when the log is empty.
func (s *Store) LatestBatch(ctx context.Context) (string, error) {
	var batchID string
	err := s.db.QueryRowContext(ctx,
		`SELECT batch_id FROM operations ORDER BY id DESC LIMIT 1`).Scan(&batchID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query latest batch: %w", err)
	}
	return batchID, nil
}

// BatchRecords returns the records of one batch in insertion order.
func (s *Store) BatchRecords(ctx context.Context, batchID string) ([]*Record, error) {
	query := `SELECT id, batch_id, original_path, new_path, content_duplicate, duplicate_of, created_at
		FROM operations WHERE batch_id = ? ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, query, batchID)
	if err != nil {
		return nil, fmt.Errorf("query batch records: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// Batches summarizes all recorded batches, most recent first.
func (s *Store) Batches(ctx context.Context) ([]*BatchSummary, error) {
	query := `SELECT batch_id, COUNT(*), SUM(content_duplicate), MIN(created_at)
		FROM operations GROUP BY batch_id ORDER BY MIN(id) DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query batches: %w", err)
	}
	defer rows.Close()

	var batches []*BatchSummary
	for rows.Next() {
		b := &BatchSummary{}
		if err := rows.Scan(&b.BatchID, &b.Records, &b.Duplicates, &b.StartedAt); err != nil {
			return nil, fmt.Errorf("scan batch summary: %w", err)
		}
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate batches: %w", err)
	}

	return batches, nil
}

// DeleteRecord removes a single record after it has been undone.
func (s *Store) DeleteRecord(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM operations WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete record %d: %w", id, err)
	}
	return nil
}

// scanRecords reads operation rows, tolerating legacy records without a
// duplicate_of value (treated as plain moves).
func scanRecords(rows *sql.Rows) ([]*Record, error) {
	var records []*Record
	for rows.Next() {
		rec := &Record{}
		var duplicateOf sql.NullString
		if err := rows.Scan(
			&rec.ID,
			&rec.BatchID,
			&rec.OriginalPath,
			&rec.NewPath,
			&rec.ContentDuplicate,
			&duplicateOf,
			&rec.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scan operation record: %w", err)
		}
		if duplicateOf.Valid {
			rec.DuplicateOf = duplicateOf.String
		} else {
			// Backward-compatible read: no surviving-duplicate reference
			// means the record is a plain move.
			rec.ContentDuplicate = false
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate operation records: %w", err)
	}
	return records, nil
}
