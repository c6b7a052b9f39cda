// Package transport wraps a stream connection with a per-connection timeout
// and the bounded-retry Send/Receive used for control messages.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"fileshare/internal/fileshare"
	"fileshare/internal/wire"
)

// Defaults for control traffic.
const (
	DefaultRetries     = 3
	DefaultBackoffBase = time.Second
	DefaultBackoffCap  = 5 * time.Second
)

// Options configures a Conn. Zero values select the defaults.
type Options struct {
	Timeout     time.Duration // current timeout; 0 means block indefinitely
	MaxPayload  int
	BackoffBase time.Duration
	BackoffCap  time.Duration
	Logger      fileshare.Logger
}

// Conn is a framed stream connection with a "current timeout" that is
// applied as a deadline on every read and write.
type Conn struct {
	conn        net.Conn
	maxPayload  int
	backoffBase time.Duration
	backoffCap  time.Duration
	logger      fileshare.Logger

	mu      sync.Mutex
	timeout time.Duration

	// Serializes whole-frame reads and writes.
	readMu  sync.Mutex
	writeMu sync.Mutex
}

// New wraps c.
func New(c net.Conn, opts Options) *Conn {
	if opts.MaxPayload <= 0 {
		opts.MaxPayload = wire.DefaultMaxPayload
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = DefaultBackoffBase
	}
	if opts.BackoffCap <= 0 {
		opts.BackoffCap = DefaultBackoffCap
	}
	if opts.Logger == nil {
		opts.Logger = fileshare.NewNopLogger()
	}
	return &Conn{
		conn:        c,
		timeout:     opts.Timeout,
		maxPayload:  opts.MaxPayload,
		backoffBase: opts.BackoffBase,
		backoffCap:  opts.BackoffCap,
		logger:      opts.Logger,
	}
}

// Timeout returns the current timeout.
func (c *Conn) Timeout() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timeout
}

// SetTimeout replaces the current timeout. Zero disables deadlines.
func (c *Conn) SetTimeout(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timeout = d
}

// Override sets a temporary timeout and returns a func restoring the previous one.
//
//	defer conn.Override(transferTimeout)()
func (c *Conn) Override(d time.Duration) (restore func()) {
	c.mu.Lock()
	prev := c.timeout
	c.timeout = d
	c.mu.Unlock()
	return func() { c.SetTimeout(prev) }
}

func (c *Conn) deadline() time.Time {
	if d := c.Timeout(); d > 0 {
		return time.Now().Add(d)
	}
	return time.Time{}
}

// WriteFrame writes one frame under the current timeout without retrying.
// Bulk data goes through here. A timeout after part of the frame was
// written is reported as ErrTransportFailure.
func (c *Conn) WriteFrame(f wire.Frame) error {
	n, err := c.writeFrame(f)
	if n > 0 && errors.Is(err, fileshare.ErrTransportTimeout) {
		return fmt.Errorf("%w: partial frame written (%d bytes)", fileshare.ErrTransportFailure, n)
	}
	return err
}

func (c *Conn) writeFrame(f wire.Frame) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(c.deadline()); err != nil {
		return 0, fmt.Errorf("%w: setting write deadline: %v", fileshare.ErrTransportFailure, err)
	}
	n, err := wire.WriteFrame(c.conn, f)
	return n, classify(err)
}

// ReadFrame reads one frame under the current timeout without retrying.
// Only a timeout with nothing consumed leaves the stream usable.
func (c *Conn) ReadFrame() (wire.Frame, error) {
	f, n, err := c.readFrame()
	if n > 0 && errors.Is(err, fileshare.ErrTransportTimeout) {
		return f, fmt.Errorf("%w: partial frame read (%d bytes)", fileshare.ErrTransportFailure, n)
	}
	return f, err
}

func (c *Conn) readFrame() (wire.Frame, int64, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	if err := c.conn.SetReadDeadline(c.deadline()); err != nil {
		return wire.Frame{}, 0, fmt.Errorf("%w: setting read deadline: %v", fileshare.ErrTransportFailure, err)
	}
	cr := &countingReader{r: c.conn}
	f, err := wire.ReadFrame(cr, c.maxPayload)
	return f, cr.n, classify(err)
}

// Send writes f, retrying on timeouts with capped exponential backoff
// (1s, 2s, 4s, then 5s) for at most retries attempts. The connection's
// timeout is replaced by timeout for the duration of the call.
//
// A timeout after part of the frame was written cannot be retried without
// corrupting the stream and is reported as ErrTransportFailure.
func (c *Conn) Send(ctx context.Context, f wire.Frame, retries int, timeout time.Duration) error {
	defer c.Override(timeout)()

	attempt := 0
	return retry.Do(ctx, c.backoff(retries), func(ctx context.Context) error {
		attempt++
		n, err := c.writeFrame(f)
		if err == nil {
			return nil
		}
		if errors.Is(err, fileshare.ErrTransportTimeout) && n == 0 {
			c.logger.Warn("send timeout", "attempt", attempt, "retries", retries, "frame", f.Type.String())
			return retry.RetryableError(err)
		}
		if errors.Is(err, fileshare.ErrTransportTimeout) {
			return fmt.Errorf("%w: partial frame written (%d bytes)", fileshare.ErrTransportFailure, n)
		}
		return err
	})
}

// Receive reads one frame with the same retry policy as Send.
func (c *Conn) Receive(ctx context.Context, retries int, timeout time.Duration) (wire.Frame, error) {
	defer c.Override(timeout)()

	var frame wire.Frame
	attempt := 0
	err := retry.Do(ctx, c.backoff(retries), func(ctx context.Context) error {
		attempt++
		f, n, err := c.readFrame()
		if err == nil {
			frame = f
			return nil
		}
		if errors.Is(err, fileshare.ErrTransportTimeout) && n == 0 {
			c.logger.Debug("receive timeout", "attempt", attempt, "retries", retries)
			return retry.RetryableError(err)
		}
		if errors.Is(err, fileshare.ErrTransportTimeout) {
			return fmt.Errorf("%w: partial frame read (%d bytes)", fileshare.ErrTransportFailure, n)
		}
		return err
	})
	return frame, err
}

func (c *Conn) backoff(retries int) retry.Backoff {
	if retries < 1 {
		retries = 1
	}
	b := retry.NewExponential(c.backoffBase)
	b = retry.WithCappedDuration(c.backoffCap, b)
	return retry.WithMaxRetries(uint64(retries-1), b)
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// IsTimeout reports whether err is a deadline expiry.
func IsTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// classify maps raw I/O errors onto the transport taxonomy. Protocol errors
// and a clean io.EOF pass through unchanged.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, fileshare.ErrProtocol), err == io.EOF:
		return err
	case IsTimeout(err):
		return fmt.Errorf("%w: %v", fileshare.ErrTransportTimeout, err)
	default:
		return fmt.Errorf("%w: %v", fileshare.ErrTransportFailure, err)
	}
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
