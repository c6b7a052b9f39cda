package testutil

import (
	"sync"
	"testing"
	"time"

	"fileshare/internal/fileshare"
	"fileshare/internal/journal"
)

// NewTestJournal opens an in-memory SQLite journal closed at test end.
func NewTestJournal(t *testing.T) *journal.SQLiteJournal {
	t.Helper()

	j, err := journal.NewSQLiteJournal(":memory:")
	if err != nil {
		t.Fatalf("failed to open journal: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

// RecordingJournal keeps operations in memory for assertions.
type RecordingJournal struct {
	mu  sync.Mutex
	ops []*fileshare.OperationRecord
}

var _ fileshare.Journal = (*RecordingJournal)(nil)

func (r *RecordingJournal) StartOperation(rec *fileshare.OperationRecord) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *rec
	cp.ID = int64(len(r.ops) + 1)
	cp.Status = fileshare.StatusRunning
	r.ops = append(r.ops, &cp)
	rec.ID = cp.ID
	return cp.ID, nil
}

func (r *RecordingJournal) FinishOperation(id int64, status, message string, finishedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id < 1 || int(id) > len(r.ops) {
		return fileshare.ErrNotFound
	}
	op := r.ops[id-1]
	op.Status = status
	op.Message = message
	op.FinishedAt = &finishedAt
	return nil
}

// ListOperations returns copies, newest first.
func (r *RecordingJournal) ListOperations(limit int) ([]*fileshare.OperationRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*fileshare.OperationRecord
	for i := len(r.ops) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		cp := *r.ops[i]
		out = append(out, &cp)
	}
	return out, nil
}

func (r *RecordingJournal) Close() error { return nil }
