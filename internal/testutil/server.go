package testutil

import (
	"context"
	"net"
	"testing"
	"time"

	"fileshare/internal/client"
	"fileshare/internal/fileshare"
	"fileshare/internal/server"
)

// TestServer is a server running on a loopback port for one test.
type TestServer struct {
	*server.Server
	Addr  string
	Store fileshare.Store
}

// StartServer runs a server on 127.0.0.1:0 until the test ends. A nil
// opts.Store is replaced by a fresh memory store, and zero timeouts by
// short test values.
func StartServer(t *testing.T, opts server.Options) *TestServer {
	t.Helper()

	if opts.Store == nil {
		opts.Store = NewTestStore()
	}
	if opts.ControlTimeout == 0 {
		opts.ControlTimeout = 2 * time.Second
	}
	if opts.TransferTimeout == 0 {
		opts.TransferTimeout = 10 * time.Second
	}
	if opts.BackoffBase == 0 {
		opts.BackoffBase = 10 * time.Millisecond
	}
	if opts.BackoffCap == 0 {
		opts.BackoffCap = 50 * time.Millisecond
	}

	srv, err := server.New(opts)
	if err != nil {
		t.Fatalf("server.New() error = %v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Serve() error = %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})

	<-srv.Ready()
	return &TestServer{Server: srv, Addr: ln.Addr().String(), Store: opts.Store}
}

// Connect returns a client connected to ts as username, closed at test end.
func (ts *TestServer) Connect(t *testing.T, username string, opts client.Options) *client.Client {
	t.Helper()

	c, err := ts.TryConnect(username, opts)
	if err != nil {
		t.Fatalf("Connect(%q) error = %v", username, err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

// TryConnect connects a new client as username and returns the claim error, if any.
func (ts *TestServer) TryConnect(username string, opts client.Options) (*client.Client, error) {
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 2 * time.Second
	}
	if opts.ControlTimeout == 0 {
		opts.ControlTimeout = 2 * time.Second
	}
	if opts.TransferTimeout == 0 {
		opts.TransferTimeout = 10 * time.Second
	}
	if opts.ListenerPoll == 0 {
		opts.ListenerPoll = 20 * time.Millisecond
	}
	if opts.BackoffBase == 0 {
		opts.BackoffBase = 10 * time.Millisecond
	}
	if opts.BackoffCap == 0 {
		opts.BackoffCap = 50 * time.Millisecond
	}
	c := client.New(opts)
	if err := c.Connect(context.Background(), ts.Addr, username); err != nil {
		return nil, err
	}
	return c, nil
}

// Notifications collects notification texts delivered to a client.
type Notifications struct {
	ch chan string
}

// NewNotifications returns a collector; pass its Func as OnNotification.
func NewNotifications() *Notifications {
	return &Notifications{ch: make(chan string, 32)}
}

func (n *Notifications) Func(text string) {
	select {
	case n.ch <- text:
	default:
	}
}

// Next waits up to d for a notification.
func (n *Notifications) Next(d time.Duration) (string, bool) {
	select {
	case text := <-n.ch:
		return text, true
	case <-time.After(d):
		return "", false
	}
}
