package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"fileshare/internal/fileshare"
	"fileshare/internal/wire"
)

type countingLogger struct {
	fileshare.NopLogger
	mu    sync.Mutex
	warns int
}

func (l *countingLogger) Warn(string, ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns++
}

func (l *countingLogger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.warns
}

func newPipe(t *testing.T, logger fileshare.Logger) (*Conn, net.Conn) {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	c := New(a, Options{
		BackoffBase: time.Millisecond,
		BackoffCap:  2 * time.Millisecond,
		Logger:      logger,
	})
	return c, b
}

func TestConn_SendReceive(t *testing.T) {
	client, raw := newPipe(t, nil)
	server := New(raw, Options{})

	errc := make(chan error, 1)
	go func() {
		errc <- client.Send(context.Background(), wire.List().Frame(), DefaultRetries, time.Second)
	}()

	f, err := server.Receive(context.Background(), DefaultRetries, time.Second)
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if f.Type != wire.FrameCommand || f.Text() != "LIST" {
		t.Errorf("Receive() = %v %q, want command LIST", f.Type, f.Text())
	}
	if err := <-errc; err != nil {
		t.Errorf("Send() error = %v", err)
	}
}

func TestConn_SendRetriesThenGivesUp(t *testing.T) {
	logger := &countingLogger{}
	c, _ := newPipe(t, logger)

	err := c.Send(context.Background(), wire.List().Frame(), 3, 10*time.Millisecond)
	if !errors.Is(err, fileshare.ErrTransportTimeout) {
		t.Fatalf("Send() error = %v, want ErrTransportTimeout", err)
	}
	if got := logger.count(); got != 3 {
		t.Errorf("timeout attempts = %d, want 3", got)
	}
}

func TestConn_ReceiveRecoversAfterTimeout(t *testing.T) {
	c, raw := newPipe(t, nil)

	go func() {
		time.Sleep(40 * time.Millisecond)
		wire.WriteFrame(raw, wire.SuccessFrame(wire.MsgConnected))
	}()

	f, err := c.Receive(context.Background(), 10, 15*time.Millisecond)
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if f.Text() != "SUCCESS: Connection is successful!" {
		t.Errorf("Receive() = %q", f.Text())
	}
}

func TestConn_PartialFrameIsFailure(t *testing.T) {
	c, raw := newPipe(t, nil)

	go func() {
		encoded := wire.NewTextFrame(wire.FrameResponse, "SUCCESS: ok").Encode()
		raw.Write(encoded[:5])
	}()

	_, err := c.Receive(context.Background(), 3, 30*time.Millisecond)
	if !errors.Is(err, fileshare.ErrTransportFailure) {
		t.Errorf("Receive() error = %v, want ErrTransportFailure", err)
	}
}

func TestConn_ClosedPeerAbortsImmediately(t *testing.T) {
	c, raw := newPipe(t, nil)
	raw.Close()

	start := time.Now()
	if _, err := c.Receive(context.Background(), 3, time.Second); err != io.EOF {
		t.Errorf("Receive() error = %v, want io.EOF", err)
	}
	if err := c.Send(context.Background(), wire.Exit().Frame(), 3, time.Second); !errors.Is(err, fileshare.ErrTransportFailure) {
		t.Errorf("Send() error = %v, want ErrTransportFailure", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("took %v, want no retries on non-timeout errors", elapsed)
	}
}

func TestConn_RestoresTimeout(t *testing.T) {
	t.Run("after success", func(t *testing.T) {
		c, raw := newPipe(t, nil)
		c.SetTimeout(7 * time.Second)

		go wire.ReadFrame(raw, wire.DefaultMaxPayload)
		if err := c.Send(context.Background(), wire.List().Frame(), 1, time.Second); err != nil {
			t.Fatalf("Send() error = %v", err)
		}
		if got := c.Timeout(); got != 7*time.Second {
			t.Errorf("Timeout() = %v, want 7s", got)
		}
	})

	t.Run("after exhaustion", func(t *testing.T) {
		c, _ := newPipe(t, nil)
		c.SetTimeout(7 * time.Second)

		if _, err := c.Receive(context.Background(), 2, 5*time.Millisecond); err == nil {
			t.Fatal("Receive() error = nil, want timeout")
		}
		if got := c.Timeout(); got != 7*time.Second {
			t.Errorf("Timeout() = %v, want 7s", got)
		}
	})

	t.Run("override restore func", func(t *testing.T) {
		c, _ := newPipe(t, nil)
		c.SetTimeout(time.Second)

		restore := c.Override(time.Minute)
		if got := c.Timeout(); got != time.Minute {
			t.Errorf("Timeout() during override = %v, want 1m", got)
		}
		restore()
		if got := c.Timeout(); got != time.Second {
			t.Errorf("Timeout() after restore = %v, want 1s", got)
		}
	})
}

func TestConn_ContextCancelStopsRetries(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()
	c := New(a, Options{BackoffBase: time.Hour, BackoffCap: time.Hour})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Receive(ctx, 3, 5*time.Millisecond)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Receive() error = %v, want context.DeadlineExceeded", err)
	}
}
