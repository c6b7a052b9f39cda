// Package client connects to a fileshare server, claims a username and
// issues commands one at a time while a background listener surfaces
// notifications pushed by the server.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/hashicorp/yamux"

	"fileshare/internal/fileshare"
	"fileshare/internal/transfer"
	"fileshare/internal/transport"
	"fileshare/internal/wire"
)

// Defaults for Options fields left zero.
const (
	DefaultConnectTimeout  = 10 * time.Second
	DefaultControlTimeout  = 10 * time.Second
	DefaultTransferTimeout = 10 * time.Minute
	DefaultListenerPoll    = 100 * time.Millisecond
)

// ErrNotConnected is returned by commands issued while disconnected.
var ErrNotConnected = errors.New("not connected")

// State is the connection lifecycle of a Client.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// RemoteError is an ERROR line sent by the server. Err is the matching
// sentinel for well-known texts, or nil.
type RemoteError struct {
	Text string
	Err  error
}

func (e *RemoteError) Error() string { return e.Text }

func (e *RemoteError) Unwrap() error { return e.Err }

func remoteError(text string) *RemoteError {
	var err error
	switch text {
	case wire.MsgPermissionDenied:
		err = fileshare.ErrPermissionDenied
	case wire.MsgNotFound:
		err = fileshare.ErrNotFound
	case wire.MsgUsernameTaken:
		err = fileshare.ErrUsernameTaken
	case wire.MsgUsernameBlocked:
		err = fileshare.ErrUsernameBlocked
	}
	return &RemoteError{Text: text, Err: err}
}

// Options configures a Client.
type Options struct {
	Logger fileshare.Logger
	Clock  fileshare.Clock

	ConnectTimeout  time.Duration
	ControlTimeout  time.Duration
	TransferTimeout time.Duration
	ListenerPoll    time.Duration
	// ProgressInterval is the minimum time between OnProgress calls.
	ProgressInterval time.Duration
	Retries          int
	ChunkSize        int
	MaxFrame         int
	BackoffBase      time.Duration
	BackoffCap       time.Duration

	// OnNotification receives the text of each NOTIFICATION line. It runs
	// on the listener goroutine.
	OnNotification func(text string)
	// OnProgress receives throttled transfer progress.
	OnProgress fileshare.ProgressFunc
	// OnDisconnect is called once per session when it ends, with the cause
	// or nil after Exit.
	OnDisconnect func(err error)
}

// Client is one user's connection to the server.
type Client struct {
	opts   Options
	logger fileshare.Logger

	// cmdMu serializes command exchanges on the control stream.
	cmdMu sync.Mutex

	mu       sync.Mutex
	state    State
	username string
	conn     *conn
}

// conn is the live half of a Connected client.
type conn struct {
	mux    *yamux.Session
	ctrl   *transport.Conn
	notify *transport.Conn
	done   chan struct{}
}

// New creates a disconnected client.
func New(opts Options) *Client {
	if opts.Logger == nil {
		opts.Logger = fileshare.NewNopLogger()
	}
	if opts.Clock == nil {
		opts.Clock = fileshare.RealClock{}
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.ControlTimeout <= 0 {
		opts.ControlTimeout = DefaultControlTimeout
	}
	if opts.TransferTimeout <= 0 {
		opts.TransferTimeout = DefaultTransferTimeout
	}
	if opts.ListenerPoll <= 0 {
		opts.ListenerPoll = DefaultListenerPoll
	}
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = fileshare.DefaultProgressInterval
	}
	if opts.Retries <= 0 {
		opts.Retries = transport.DefaultRetries
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = transfer.DefaultUploadChunk
	}
	if opts.MaxFrame <= 0 {
		opts.MaxFrame = wire.DefaultMaxPayload
	}
	return &Client{opts: opts, logger: opts.Logger}
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Username returns the username of the current or last session.
func (c *Client) Username() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.username
}

// Connect dials addr and claims username. On an identity conflict the
// returned error wraps ErrUsernameTaken or ErrUsernameBlocked and the
// client is Disconnected again.
func (c *Client) Connect(ctx context.Context, addr, username string) error {
	if err := fileshare.ValidateUsername(username); err != nil {
		return err
	}

	c.mu.Lock()
	if c.state != Disconnected {
		c.mu.Unlock()
		return fmt.Errorf("client is %s", c.state)
	}
	c.state = Connecting
	c.username = username
	c.mu.Unlock()

	cn, err := c.dial(ctx, addr, username)
	if err != nil {
		c.mu.Lock()
		c.state = Disconnected
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	c.conn = cn
	c.state = Connected
	c.mu.Unlock()

	c.logger.Info("connected", "addr", addr, "username", username)
	go c.listen(cn)
	return nil
}

func (c *Client) dial(ctx context.Context, addr, username string) (*conn, error) {
	d := net.Dialer{Timeout: c.opts.ConnectTimeout}
	raw, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}

	cfg := yamux.DefaultConfig()
	cfg.LogOutput = io.Discard
	mux, err := yamux.Client(raw, cfg)
	if err != nil {
		raw.Close()
		return nil, fmt.Errorf("starting session multiplexer: %w", err)
	}

	cn, err := c.handshake(ctx, mux, username)
	if err != nil {
		mux.Close()
		return nil, err
	}
	return cn, nil
}

func (c *Client) handshake(ctx context.Context, mux *yamux.Session, username string) (*conn, error) {
	stream, err := mux.OpenStream()
	if err != nil {
		return nil, fmt.Errorf("opening control stream: %w", err)
	}
	ctrl := c.newConn(stream, c.opts.ConnectTimeout)

	type accepted struct {
		stream net.Conn
		err    error
	}
	notifyCh := make(chan accepted, 1)
	go func() {
		st, err := mux.AcceptStream()
		notifyCh <- accepted{st, err}
	}()

	hello := wire.NewTextFrame(wire.FrameHello, username)
	if err := ctrl.Send(ctx, hello, c.opts.Retries, c.opts.ConnectTimeout); err != nil {
		return nil, fmt.Errorf("sending username: %w", err)
	}
	f, err := ctrl.Receive(ctx, c.opts.Retries, c.opts.ConnectTimeout)
	if err != nil {
		return nil, fmt.Errorf("waiting for claim response: %w", err)
	}
	resp, err := parseResponse(f)
	if err != nil {
		return nil, err
	}
	switch resp.Kind {
	case wire.KindSuccess:
	case wire.KindError:
		return nil, remoteError(resp.Text)
	default:
		return nil, fmt.Errorf("%w: unexpected claim response %q", fileshare.ErrProtocol, f.Text())
	}

	var notify net.Conn
	select {
	case a := <-notifyCh:
		if a.err != nil {
			return nil, fmt.Errorf("accepting notification stream: %w", a.err)
		}
		notify = a.stream
	case <-time.After(c.opts.ConnectTimeout):
		return nil, fmt.Errorf("%w: notification stream not opened", fileshare.ErrTransportTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	ctrl.SetTimeout(c.opts.ControlTimeout)
	return &conn{
		mux:    mux,
		ctrl:   ctrl,
		notify: c.newConn(notify, c.opts.ListenerPoll),
		done:   make(chan struct{}),
	}, nil
}

func (c *Client) newConn(stream net.Conn, timeout time.Duration) *transport.Conn {
	return transport.New(stream, transport.Options{
		Timeout:     timeout,
		MaxPayload:  c.opts.MaxFrame,
		BackoffBase: c.opts.BackoffBase,
		BackoffCap:  c.opts.BackoffCap,
		Logger:      c.logger,
	})
}

// listen polls the notification stream until the session ends.
func (c *Client) listen(cn *conn) {
	for {
		f, err := cn.notify.ReadFrame()
		if err != nil {
			select {
			case <-cn.done:
				return
			default:
			}
			if errors.Is(err, fileshare.ErrTransportTimeout) {
				continue
			}
			c.teardown(cn, fmt.Errorf("notification stream: %w", err))
			return
		}

		text, ok := wire.ParseNotification(f.Text())
		if f.Type != wire.FrameNotification || !ok {
			c.logger.Debug("discarding unsolicited frame", "frame", f.Type.String(), "size", len(f.Payload))
			continue
		}
		c.logger.Info("notification", "message", text)
		if c.opts.OnNotification != nil {
			c.opts.OnNotification(text)
		}
	}
}

// teardown moves cn's session to Disconnected once.
func (c *Client) teardown(cn *conn, cause error) {
	c.mu.Lock()
	if c.conn != cn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.state = Disconnected
	close(cn.done)
	c.mu.Unlock()

	cn.mux.Close()
	if cause != nil {
		c.logger.Error("disconnected", "error", cause)
	} else {
		c.logger.Info("disconnected")
	}
	if c.opts.OnDisconnect != nil {
		c.opts.OnDisconnect(cause)
	}
}

// active returns the live connection or ErrNotConnected.
func (c *Client) active() (*conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Connected || c.conn == nil {
		return nil, ErrNotConnected
	}
	return c.conn, nil
}

// check tears the session down when err leaves the control stream unusable.
// Cancelling a command mid-exchange also ends the session.
func (c *Client) check(cn *conn, err error) error {
	if err != nil && isFatal(err) {
		c.teardown(cn, err)
	}
	return err
}

func (c *Client) send(ctx context.Context, cn *conn, f wire.Frame) error {
	return c.check(cn, cn.ctrl.Send(ctx, f, c.opts.Retries, c.opts.ControlTimeout))
}

func (c *Client) receive(ctx context.Context, cn *conn) (wire.Response, error) {
	f, err := cn.ctrl.Receive(ctx, c.opts.Retries, c.opts.ControlTimeout)
	if err != nil {
		return wire.Response{}, c.check(cn, err)
	}
	resp, err := parseResponse(f)
	return resp, c.check(cn, err)
}

func parseResponse(f wire.Frame) (wire.Response, error) {
	if f.Type != wire.FrameResponse {
		return wire.Response{}, fmt.Errorf("%w: expected response, got %s frame", fileshare.ErrProtocol, f.Type)
	}
	return wire.ParseResponse(f.Text())
}

// status maps a SUCCESS/ERROR response to its text or a RemoteError.
func status(resp wire.Response) (string, error) {
	switch resp.Kind {
	case wire.KindSuccess:
		return resp.Text, nil
	case wire.KindError:
		return "", remoteError(resp.Text)
	default:
		return "", fmt.Errorf("%w: unexpected response kind %d", fileshare.ErrProtocol, resp.Kind)
	}
}

// Exit ends the session. It is a no-op when already disconnected.
func (c *Client) Exit(ctx context.Context) error {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	cn, err := c.active()
	if err != nil {
		return nil
	}
	err = cn.ctrl.Send(ctx, wire.Exit().Frame(), 1, c.opts.ControlTimeout)
	c.teardown(cn, nil)
	if err != nil {
		return fmt.Errorf("sending exit: %w", err)
	}
	return nil
}

// Close is Exit without a caller context.
func (c *Client) Close() error {
	return c.Exit(context.Background())
}

func isFatal(err error) bool {
	return errors.Is(err, fileshare.ErrTransportFailure) ||
		errors.Is(err, fileshare.ErrTransportTimeout) ||
		errors.Is(err, fileshare.ErrProtocol) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
