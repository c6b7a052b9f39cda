package fileshare

import "time"

// Operation status values recorded in the journal.
const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusError   = "error"
)

// OperationRecord is one handled command as stored in the journal.
type OperationRecord struct {
	ID         int64
	SessionID  string
	Username   string
	Operation  string
	FileName   string
	Size       int64
	Status     string
	Message    string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// Journal records handled commands. It never stores identity claims:
// the set of used usernames lives in process memory only.
type Journal interface {
	// StartOperation records a new running operation and returns its ID.
	StartOperation(rec *OperationRecord) (int64, error)

	// FinishOperation marks an operation finished with the given status.
	FinishOperation(id int64, status, message string, finishedAt time.Time) error

	// ListOperations returns the most recent operations, newest first.
	ListOperations(limit int) ([]*OperationRecord, error)

	// Close releases the underlying database.
	Close() error
}

// NopJournal discards every record. It is used when the journal is disabled.
type NopJournal struct{}

func (NopJournal) StartOperation(*OperationRecord) (int64, error)         { return 0, nil }
func (NopJournal) FinishOperation(int64, string, string, time.Time) error { return nil }
func (NopJournal) ListOperations(int) ([]*OperationRecord, error)         { return nil, nil }
func (NopJournal) Close() error                                           { return nil }
