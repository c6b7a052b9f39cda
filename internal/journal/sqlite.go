// Package journal persists a record of every handled command.
package journal

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"fileshare/internal/fileshare"
	"fileshare/internal/journal/migrations"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteJournal implements fileshare.Journal on a SQLite database.
type SQLiteJournal struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

var _ fileshare.Journal = (*SQLiteJournal)(nil)

// NewSQLiteJournal opens the database at path, applying any pending migrations.
// path can be a file path or ":memory:".
func NewSQLiteJournal(path string) (*SQLiteJournal, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate journal: %w", err)
	}
	return &SQLiteJournal{db: db, path: path}, nil
}

// OpenConnection opens and configures a SQLite connection.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Every connection to ":memory:" gets its own database.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	return db, nil
}

// Path returns the database path the journal was opened with.
func (j *SQLiteJournal) Path() string {
	return j.path
}

func (j *SQLiteJournal) StartOperation(rec *fileshare.OperationRecord) (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	status := rec.Status
	if status == "" {
		status = fileshare.StatusRunning
	}
	res, err := j.db.Exec(`INSERT INTO operations
		(session_id, username, operation, file_name, size, status, message, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionID, rec.Username, rec.Operation, rec.FileName, rec.Size,
		status, rec.Message, rec.StartedAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to insert operation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read operation id: %w", err)
	}
	rec.ID = id
	rec.Status = status
	return id, nil
}

func (j *SQLiteJournal) FinishOperation(id int64, status, message string, finishedAt time.Time) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	res, err := j.db.Exec(`UPDATE operations SET status = ?, message = ?, finished_at = ? WHERE id = ?`,
		status, message, finishedAt.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to finish operation %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to finish operation %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("operation %d: %w", id, fileshare.ErrNotFound)
	}
	return nil
}

func (j *SQLiteJournal) ListOperations(limit int) ([]*fileshare.OperationRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := j.db.Query(`SELECT id, session_id, username, operation, file_name, size,
		status, message, started_at, finished_at
		FROM operations ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list operations: %w", err)
	}
	defer rows.Close()

	var out []*fileshare.OperationRecord
	for rows.Next() {
		rec := &fileshare.OperationRecord{}
		var finished sql.NullTime
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.Username, &rec.Operation,
			&rec.FileName, &rec.Size, &rec.Status, &rec.Message, &rec.StartedAt, &finished); err != nil {
			return nil, fmt.Errorf("failed to scan operation: %w", err)
		}
		if finished.Valid {
			t := finished.Time
			rec.FinishedAt = &t
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}
