package session

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"fileshare/internal/fileshare"
)

type stubConn struct {
	mu      sync.Mutex
	pingErr error
	closed  bool
}

func (c *stubConn) Ping() (time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Millisecond, c.pingErr
}

func (c *stubConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *stubConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDs) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("id-%d", g.n)
}

func newTestRegistry() *Registry {
	return NewRegistry(Options{IDs: &seqIDs{}, OutboxSize: 2})
}

func TestRegistry_Claim(t *testing.T) {
	t.Run("fresh username becomes active", func(t *testing.T) {
		r := newTestRegistry()

		s, err := r.Claim("alice", &stubConn{})
		if err != nil {
			t.Fatalf("Claim() error = %v", err)
		}
		if s.Username != "alice" || s.ID != "id-1" {
			t.Errorf("Claim() = %+v", s)
		}
		if _, ok := r.Lookup("alice"); !ok {
			t.Error("Lookup(alice) = false, want true")
		}
	})

	t.Run("active username is taken", func(t *testing.T) {
		r := newTestRegistry()
		r.Claim("alice", &stubConn{})

		if _, err := r.Claim("alice", &stubConn{}); !errors.Is(err, fileshare.ErrUsernameTaken) {
			t.Errorf("Claim() error = %v, want ErrUsernameTaken", err)
		}
	})

	t.Run("released username is blocked forever", func(t *testing.T) {
		r := newTestRegistry()
		s, _ := r.Claim("alice", &stubConn{})
		r.Release(s)

		if _, ok := r.Lookup("alice"); ok {
			t.Error("Lookup(alice) after release = true, want false")
		}
		for i := 0; i < 2; i++ {
			if _, err := r.Claim("alice", &stubConn{}); !errors.Is(err, fileshare.ErrUsernameBlocked) {
				t.Errorf("Claim() attempt %d error = %v, want ErrUsernameBlocked", i, err)
			}
		}
	})

	t.Run("invalid username", func(t *testing.T) {
		r := newTestRegistry()
		if _, err := r.Claim("bad_name", &stubConn{}); !errors.Is(err, fileshare.ErrProtocol) {
			t.Errorf("Claim() error = %v, want ErrProtocol", err)
		}
		if got := len(r.Active()); got != 0 {
			t.Errorf("Active() has %d sessions after a rejected claim, want 0", got)
		}
	})
}

func TestRegistry_ConcurrentClaim(t *testing.T) {
	r := newTestRegistry()

	const n = 20
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = r.Claim("carol", &stubConn{})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case !errors.Is(err, fileshare.ErrUsernameTaken):
			t.Errorf("Claim() error = %v, want ErrUsernameTaken", err)
		}
	}
	if succeeded != 1 {
		t.Errorf("%d claims succeeded, want exactly 1", succeeded)
	}
}

func TestRegistry_Release(t *testing.T) {
	r := newTestRegistry()
	s, _ := r.Claim("alice", &stubConn{})

	if !r.Release(s) {
		t.Error("first Release() = false, want true")
	}
	if r.Release(s) {
		t.Error("second Release() = true, want false")
	}

	select {
	case <-s.Done():
	default:
		t.Error("Done() not closed after Release()")
	}
}

func TestRegistry_Notify(t *testing.T) {
	t.Run("delivers to active session", func(t *testing.T) {
		r := newTestRegistry()
		s, _ := r.Claim("alice", &stubConn{})

		if !r.Notify("alice", "hello") {
			t.Fatal("Notify() = false, want true")
		}
		if got := <-s.Outbox(); got != "hello" {
			t.Errorf("Outbox() = %q, want %q", got, "hello")
		}
	})

	t.Run("drops when target absent", func(t *testing.T) {
		r := newTestRegistry()
		if r.Notify("nobody", "hello") {
			t.Error("Notify() = true for absent target, want false")
		}
	})

	t.Run("drops when outbox full", func(t *testing.T) {
		r := newTestRegistry()
		r.Claim("alice", &stubConn{})

		r.Notify("alice", "1")
		r.Notify("alice", "2")
		if r.Notify("alice", "3") {
			t.Error("Notify() = true with full outbox, want false")
		}
	})

	t.Run("drops after retire", func(t *testing.T) {
		r := newTestRegistry()
		s, _ := r.Claim("alice", &stubConn{})
		r.Release(s)
		if s.enqueue("late") {
			t.Error("enqueue() = true after retire, want false")
		}
	})
}

func TestRegistry_Sweep(t *testing.T) {
	r := newTestRegistry()
	healthy := &stubConn{}
	broken := &stubConn{pingErr: errors.New("connection reset")}
	r.Claim("alice", healthy)
	r.Claim("bob", broken)

	retired := r.Sweep()
	if len(retired) != 1 || retired[0] != "bob" {
		t.Fatalf("Sweep() = %v, want [bob]", retired)
	}
	if !broken.isClosed() {
		t.Error("broken connection was not closed")
	}
	if healthy.isClosed() {
		t.Error("healthy connection was closed")
	}
	if _, ok := r.Lookup("alice"); !ok {
		t.Error("alice was retired by the sweep")
	}
	if _, err := r.Claim("bob", &stubConn{}); !errors.Is(err, fileshare.ErrUsernameBlocked) {
		t.Errorf("Claim(bob) after sweep error = %v, want ErrUsernameBlocked", err)
	}
}

func TestRegistry_CloseAll(t *testing.T) {
	r := newTestRegistry()
	a, b := &stubConn{}, &stubConn{}
	r.Claim("alice", a)
	r.Claim("bob", b)

	r.CloseAll()

	if n := len(r.Active()); n != 0 {
		t.Errorf("len(Active()) = %d, want 0", n)
	}
	if !a.isClosed() || !b.isClosed() {
		t.Error("CloseAll() left a connection open")
	}
}

func TestRegistry_ActiveSortedAndSubsetOfUsed(t *testing.T) {
	r := newTestRegistry()
	for _, name := range []string{"carol", "alice", "bob"} {
		r.Claim(name, &stubConn{})
	}

	active := r.Active()
	want := []string{"alice", "bob", "carol"}
	for i, s := range active {
		if s.Username != want[i] {
			t.Errorf("Active()[%d] = %q, want %q", i, s.Username, want[i])
		}
	}

	// Every active name is also in the used set: once released it stays blocked.
	for _, s := range active {
		r.Release(s)
		if _, err := r.Claim(s.Username, &stubConn{}); !errors.Is(err, fileshare.ErrUsernameBlocked) {
			t.Errorf("Claim(%q) after release error = %v, want ErrUsernameBlocked", s.Username, err)
		}
	}
}
