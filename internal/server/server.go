// Package server accepts client connections, claims usernames and serves
// file commands against a shared store.
//
// Each TCP connection carries a yamux session. The client opens the control
// stream, which carries the hello, commands, responses and file bodies. After
// a successful claim the server opens a second stream on which it pushes
// notifications, so they never interleave with a transfer.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/hashicorp/yamux"
	"golang.org/x/sync/errgroup"

	"fileshare/internal/fileshare"
	"fileshare/internal/session"
	"fileshare/internal/transfer"
	"fileshare/internal/transport"
	"fileshare/internal/wire"
)

// Defaults for Options fields left zero.
const (
	DefaultControlTimeout  = 5 * time.Second
	DefaultTransferTimeout = 10 * time.Minute
	DefaultSweepInterval   = 30 * time.Second
)

// Options configures a Server.
type Options struct {
	Store   fileshare.Store
	Journal fileshare.Journal
	Logger  fileshare.Logger
	Clock   fileshare.Clock
	IDs     fileshare.IDGenerator

	ChunkSize         int // upload chunk hint, used for progress logging only
	DownloadChunkSize int
	ControlTimeout    time.Duration
	TransferTimeout   time.Duration
	SweepInterval     time.Duration
	Retries           int
	MaxFrame          int
	OutboxSize        int
	BackoffBase       time.Duration
	BackoffCap        time.Duration
}

// Server is the file-sharing server.
type Server struct {
	opts     Options
	store    fileshare.Store
	journal  fileshare.Journal
	logger   fileshare.Logger
	clock    fileshare.Clock
	registry *session.Registry

	mu    sync.Mutex
	ln    net.Listener
	ready chan struct{}
	conns sync.WaitGroup
}

// New creates a server. opts.Store is required.
func New(opts Options) (*Server, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("server: store is required")
	}
	if opts.Journal == nil {
		opts.Journal = fileshare.NopJournal{}
	}
	if opts.Logger == nil {
		opts.Logger = fileshare.NewNopLogger()
	}
	if opts.Clock == nil {
		opts.Clock = fileshare.RealClock{}
	}
	if opts.IDs == nil {
		opts.IDs = fileshare.UUIDGenerator{}
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = transfer.DefaultUploadChunk
	}
	if opts.DownloadChunkSize <= 0 {
		opts.DownloadChunkSize = transfer.DefaultDownloadChunk
	}
	if opts.ControlTimeout <= 0 {
		opts.ControlTimeout = DefaultControlTimeout
	}
	if opts.TransferTimeout <= 0 {
		opts.TransferTimeout = DefaultTransferTimeout
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = DefaultSweepInterval
	}
	if opts.Retries <= 0 {
		opts.Retries = transport.DefaultRetries
	}
	if opts.MaxFrame <= 0 {
		opts.MaxFrame = wire.DefaultMaxPayload
	}
	if opts.MaxFrame < opts.DownloadChunkSize || opts.MaxFrame < opts.ChunkSize {
		return nil, fmt.Errorf("server: max frame %d is smaller than the chunk size", opts.MaxFrame)
	}

	return &Server{
		opts:    opts,
		store:   opts.Store,
		journal: opts.Journal,
		logger:  opts.Logger,
		clock:   opts.Clock,
		registry: session.NewRegistry(session.Options{
			Clock:      opts.Clock,
			IDs:        opts.IDs,
			Logger:     opts.Logger,
			OutboxSize: opts.OutboxSize,
		}),
		ready: make(chan struct{}),
	}, nil
}

// Registry exposes the session registry.
func (s *Server) Registry() *session.Registry {
	return s.registry
}

// Addr returns the listening address once Serve has started, or nil.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Ready is closed once the server is accepting connections.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// ListenAndServe listens on addr and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled. On return every
// session has been retired and the listener is closed.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if err := s.store.ValidateSetup(); err != nil {
		ln.Close()
		return fmt.Errorf("store not usable: %w", err)
	}

	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	close(s.ready)

	s.logger.Info("server listening", "addr", ln.Addr().String())

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.acceptLoop(gctx, ln)
	})

	g.Go(func() error {
		s.sweepLoop(gctx)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		ln.Close()
		s.registry.CloseAll()
		return nil
	})

	err := g.Wait()
	s.conns.Wait()
	s.logger.Info("server stopped")
	if errors.Is(err, net.ErrClosed) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accepting connection: %w", err)
		}
		s.conns.Add(1)
		go func() {
			defer s.conns.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

func (s *Server) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(s.opts.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if retired := s.registry.Sweep(); len(retired) > 0 {
				s.logger.Info("liveness sweep retired sessions", "usernames", retired)
			}
		}
	}
}

func (s *Server) muxConfig() *yamux.Config {
	cfg := yamux.DefaultConfig()
	cfg.LogOutput = io.Discard
	cfg.EnableKeepAlive = false
	return cfg
}

func (s *Server) newConn(stream net.Conn, logger fileshare.Logger) *transport.Conn {
	return transport.New(stream, transport.Options{
		Timeout:     s.opts.ControlTimeout,
		MaxPayload:  s.opts.MaxFrame,
		BackoffBase: s.opts.BackoffBase,
		BackoffCap:  s.opts.BackoffCap,
		Logger:      logger,
	})
}
