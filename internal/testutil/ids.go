package testutil

import (
	"fmt"
	"sync"
)

// SessionIDs is a fileshare.IDGenerator issuing "<prefix>-1", "<prefix>-2"
// in claim order. It records what it issued so tests can tie journal rows
// and log lines back to a particular connection.
type SessionIDs struct {
	prefix string

	mu     sync.Mutex
	issued []string
}

// NewSessionIDs returns a generator; an empty prefix means "session".
func NewSessionIDs(prefix string) *SessionIDs {
	if prefix == "" {
		prefix = "session"
	}
	return &SessionIDs{prefix: prefix}
}

func (g *SessionIDs) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := fmt.Sprintf("%s-%d", g.prefix, len(g.issued)+1)
	g.issued = append(g.issued, id)
	return id
}

// Issued returns the IDs handed out so far, oldest first.
func (g *SessionIDs) Issued() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.issued...)
}
