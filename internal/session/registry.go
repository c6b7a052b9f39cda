// Package session tracks connected usernames on the server.
//
// A username moves Unclaimed -> Active -> Retired. Once claimed it stays in
// the used set for the lifetime of the process, so it can never be claimed
// again, even after the session that held it is gone.
package session

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"fileshare/internal/fileshare"
)

// DefaultOutboxSize bounds the notifications queued for one session.
const DefaultOutboxSize = 16

// Conn is the connection handle held by a session. *yamux.Session satisfies it.
type Conn interface {
	// Ping round-trips a liveness check; an error means the peer is gone.
	Ping() (time.Duration, error)
	Close() error
}

// Session is one claimed username and its connection.
type Session struct {
	ID          string
	Username    string
	ConnectedAt time.Time

	conn      Conn
	outbox    chan string
	done      chan struct{}
	closeOnce sync.Once
}

// Outbox delivers notifications queued for this session.
func (s *Session) Outbox() <-chan string { return s.outbox }

// Done is closed when the session is retired.
func (s *Session) Done() <-chan struct{} { return s.done }

// enqueue never blocks; a full outbox drops the message.
func (s *Session) enqueue(msg string) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.outbox <- msg:
		return true
	default:
		return false
	}
}

func (s *Session) retire() {
	s.closeOnce.Do(func() { close(s.done) })
}

// Options configures a Registry.
type Options struct {
	Clock      fileshare.Clock
	IDs        fileshare.IDGenerator
	Logger     fileshare.Logger
	OutboxSize int
}

// Registry holds the used-identity set and the active-session map.
// It is safe for concurrent use.
type Registry struct {
	clock      fileshare.Clock
	ids        fileshare.IDGenerator
	logger     fileshare.Logger
	outboxSize int

	mu     sync.Mutex
	used   map[string]struct{}
	active map[string]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry(opts Options) *Registry {
	if opts.Clock == nil {
		opts.Clock = fileshare.RealClock{}
	}
	if opts.IDs == nil {
		opts.IDs = fileshare.UUIDGenerator{}
	}
	if opts.Logger == nil {
		opts.Logger = fileshare.NewNopLogger()
	}
	if opts.OutboxSize <= 0 {
		opts.OutboxSize = DefaultOutboxSize
	}
	return &Registry{
		clock:      opts.Clock,
		ids:        opts.IDs,
		logger:     opts.Logger,
		outboxSize: opts.OutboxSize,
		used:       make(map[string]struct{}),
		active:     make(map[string]*Session),
	}
}

// Claim activates username for conn. An active username yields
// ErrUsernameTaken; a previously used one yields ErrUsernameBlocked.
// The active check comes first so that two concurrent claims of a fresh
// name report "taken" to the loser.
func (r *Registry) Claim(username string, conn Conn) (*Session, error) {
	if err := fileshare.ValidateUsername(username); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.active[username]; ok {
		return nil, fmt.Errorf("claiming %q: %w", username, fileshare.ErrUsernameTaken)
	}
	if _, ok := r.used[username]; ok {
		return nil, fmt.Errorf("claiming %q: %w", username, fileshare.ErrUsernameBlocked)
	}

	s := &Session{
		ID:          r.ids.New(),
		Username:    username,
		ConnectedAt: r.clock.Now(),
		conn:        conn,
		outbox:      make(chan string, r.outboxSize),
		done:        make(chan struct{}),
	}
	r.used[username] = struct{}{}
	r.active[username] = s
	return s, nil
}

// Release retires s. The username stays in the used set.
// It reports whether s was still active.
func (r *Registry) Release(s *Session) bool {
	r.mu.Lock()
	cur, ok := r.active[s.Username]
	if ok && cur == s {
		delete(r.active, s.Username)
	}
	r.mu.Unlock()

	s.retire()
	return ok && cur == s
}

// Lookup returns the active session for username.
func (r *Registry) Lookup(username string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.active[username]
	return s, ok
}

// Active returns the active sessions sorted by username.
func (r *Registry) Active() []*Session {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.active))
	for _, s := range r.active {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].Username < sessions[j].Username
	})
	return sessions
}

// Notify queues msg for the active session of target. Delivery is best
// effort: an absent target or a full outbox drops the message.
func (r *Registry) Notify(target, msg string) bool {
	s, ok := r.Lookup(target)
	if !ok {
		r.logger.Debug("notification dropped, target not connected", "target", target)
		return false
	}
	if !s.enqueue(msg) {
		r.logger.Warn("notification dropped, outbox full", "target", target, "session_id", s.ID)
		return false
	}
	return true
}

// Sweep pings every active session and retires the ones whose connection
// has failed. Pings run outside the lock. It returns the retired usernames.
func (r *Registry) Sweep() []string {
	var retired []string
	for _, s := range r.Active() {
		if _, err := s.conn.Ping(); err != nil {
			r.logger.Info("liveness check failed, retiring session",
				"username", s.Username, "session_id", s.ID, "error", err)
			if r.Release(s) {
				retired = append(retired, s.Username)
			}
			s.conn.Close()
		}
	}
	return retired
}

// CloseAll retires every active session and closes its connection.
func (r *Registry) CloseAll() {
	for _, s := range r.Active() {
		r.Release(s)
		if err := s.conn.Close(); err != nil {
			r.logger.Debug("closing session", "username", s.Username, "error", err)
		}
	}
}
