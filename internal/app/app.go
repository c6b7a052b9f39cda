package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"fileshare/internal/client"
	"fileshare/internal/config"
	"fileshare/internal/fileshare"
	"fileshare/internal/journal"
	"fileshare/internal/server"
	"fileshare/internal/store"
)

// LogOptions selects the verbosity and echo target of the log.
type LogOptions struct {
	Verbose bool      // include DEBUG lines
	Echo    io.Writer // also write log lines here; nil for file only
}

func (o LogOptions) level() slog.Level {
	if o.Verbose {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// ServerApp is a server built from config, owning its store, journal and log file.
type ServerApp struct {
	cfg     *config.Config
	server  *server.Server
	journal fileshare.Journal
	logger  fileshare.Logger
	logFile *os.File
}

// NewServerApp constructs all server dependencies from cfg.
// The caller must call Close when done.
func NewServerApp(cfg *config.Config, logOpts LogOptions) (*ServerApp, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	st, err := store.NewStoreFromConfig(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("creating store: %w", err)
	}

	j, err := journal.NewJournalFromConfig(cfg.Journal)
	if err != nil {
		return nil, fmt.Errorf("creating journal: %w", err)
	}

	l, logFile, err := newLogger(cfg.LogDir, "server", logOpts.level(), logOpts.Echo)
	if err != nil {
		j.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: l}

	sc := cfg.Server
	srv, err := server.New(server.Options{
		Store:             st,
		Journal:           j,
		Logger:            logger,
		Clock:             fileshare.RealClock{},
		IDs:               fileshare.UUIDGenerator{},
		ChunkSize:         sc.ChunkSize,
		DownloadChunkSize: sc.DownloadChunkSize,
		ControlTimeout:    sc.ControlTimeout.Duration,
		TransferTimeout:   sc.TransferTimeout.Duration,
		SweepInterval:     sc.SweepInterval.Duration,
		Retries:           sc.Retries,
		MaxFrame:          sc.MaxFrame,
		OutboxSize:        sc.OutboxSize,
	})
	if err != nil {
		j.Close()
		logFile.Close()
		return nil, err
	}

	return &ServerApp{cfg: cfg, server: srv, journal: j, logger: logger, logFile: logFile}, nil
}

// Server returns the wired server.
func (a *ServerApp) Server() *server.Server {
	return a.server
}

// Run serves on addr, or the configured listen address when addr is empty,
// until ctx is cancelled.
func (a *ServerApp) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = a.cfg.Server.ListenAddr
	}
	if err := config.ValidateListenAddr(addr); err != nil {
		return err
	}
	a.logger.Info("starting server", "addr", addr, "store", a.cfg.Store.Type, "journal", a.cfg.Journal.Type)
	return a.server.ListenAndServe(ctx, addr)
}

// Close releases the journal and the log file.
func (a *ServerApp) Close() error {
	var firstErr error
	if err := a.journal.Close(); err != nil {
		firstErr = fmt.Errorf("closing journal: %w", err)
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}

// ClientHooks are the presentation callbacks of an interactive client.
type ClientHooks struct {
	OnNotification func(text string)
	OnProgress     fileshare.ProgressFunc
	OnDisconnect   func(err error)
}

// ClientApp is a client built from config, owning its log file.
type ClientApp struct {
	cfg     *config.Config
	client  *client.Client
	logFile *os.File
}

// NewClientApp constructs a disconnected client from cfg.
// The caller must call Close when done.
func NewClientApp(cfg *config.Config, hooks ClientHooks, logOpts LogOptions) (*ClientApp, error) {
	l, logFile, err := newLogger(cfg.LogDir, "client", logOpts.level(), logOpts.Echo)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	cc := cfg.Client
	c := client.New(client.Options{
		Logger:           &slogAdapter{l: l},
		Clock:            fileshare.RealClock{},
		ConnectTimeout:   cc.ConnectTimeout.Duration,
		ControlTimeout:   cc.ControlTimeout.Duration,
		TransferTimeout:  cc.TransferTimeout.Duration,
		ListenerPoll:     cc.ListenerPoll.Duration,
		ProgressInterval: cc.ProgressInterval.Duration,
		Retries:          cc.Retries,
		ChunkSize:        cc.ChunkSize,
		MaxFrame:         cfg.Server.MaxFrame,
		OnNotification:   hooks.OnNotification,
		OnProgress:       hooks.OnProgress,
		OnDisconnect:     hooks.OnDisconnect,
	})
	return &ClientApp{cfg: cfg, client: c, logFile: logFile}, nil
}

// Client returns the wired client.
func (a *ClientApp) Client() *client.Client {
	return a.client
}

// DownloadDir is where downloads land.
func (a *ClientApp) DownloadDir() string {
	return a.cfg.Client.DownloadDir
}

// Connect claims username on addr, or on the configured server when addr is empty.
func (a *ClientApp) Connect(ctx context.Context, addr, username string) error {
	if addr == "" {
		addr = a.cfg.Client.ServerAddr
	}
	return a.client.Connect(ctx, addr, username)
}

// Close ends any session and closes the log file.
func (a *ClientApp) Close() error {
	err := a.client.Close()
	if a.logFile != nil {
		a.logFile.Close()
	}
	return err
}

// History returns the most recent journaled operations, newest first.
func History(cfg *config.Config, limit int) ([]*fileshare.OperationRecord, error) {
	if cfg.Journal.Type == "none" {
		return nil, fmt.Errorf("journal is disabled (journal.type = none)")
	}
	j, err := journal.NewJournalFromConfig(cfg.Journal)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	defer j.Close()
	return j.ListOperations(limit)
}
