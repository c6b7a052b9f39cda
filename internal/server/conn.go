package server

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/hashicorp/yamux"

	"fileshare/internal/fileshare"
	"fileshare/internal/session"
	"fileshare/internal/transport"
	"fileshare/internal/wire"
)

// peer is one claimed session's control and notification streams.
type peer struct {
	sess   *session.Session
	mux    *yamux.Session
	ctrl   *transport.Conn
	notify *transport.Conn
	logger fileshare.Logger
}

func (s *Server) handleConn(ctx context.Context, raw net.Conn) {
	addr := raw.RemoteAddr().String()
	logger := fileshare.WithFields(s.logger, "remote", addr)

	mux, err := yamux.Server(raw, s.muxConfig())
	if err != nil {
		logger.Error("starting session multiplexer", "error", err)
		raw.Close()
		return
	}
	defer mux.Close()
	stop := context.AfterFunc(ctx, func() { mux.Close() })
	defer stop()

	// The client must open its control stream promptly.
	timer := time.AfterFunc(s.opts.ControlTimeout, func() { mux.Close() })
	stream, err := mux.AcceptStream()
	timer.Stop()
	if err != nil {
		logger.Debug("no control stream opened", "error", err)
		return
	}

	ctrl := s.newConn(stream, logger)
	hello, err := ctrl.Receive(ctx, s.opts.Retries, s.opts.ControlTimeout)
	if err != nil {
		logger.Info("connection closed before username claim", "error", err)
		return
	}
	if hello.Type != wire.FrameHello {
		logger.Warn("expected hello frame", "frame", hello.Type.String())
		s.reject(ctx, ctrl, mux, "expected username before commands")
		return
	}

	username := hello.Text()
	sess, err := s.registry.Claim(username, mux)
	if err != nil {
		logger.Info("username claim rejected", "username", username, "error", err)
		s.reject(ctx, ctrl, mux, claimFailureText(err))
		return
	}
	defer s.registry.Release(sess)

	logger = fileshare.WithFields(s.logger, "session_id", sess.ID, "username", username)

	nstream, err := mux.OpenStream()
	if err != nil {
		logger.Error("opening notification stream", "error", err)
		return
	}
	p := &peer{
		sess:   sess,
		mux:    mux,
		ctrl:   ctrl,
		notify: s.newConn(nstream, logger),
		logger: logger,
	}

	if err := ctrl.Send(ctx, wire.SuccessFrame(wire.MsgConnected), s.opts.Retries, s.opts.ControlTimeout); err != nil {
		logger.Error("sending connection confirmation", "error", err)
		return
	}
	logger.Info("new connection", "remote", addr)

	go s.deliverNotifications(p)

	s.serveCommands(ctx, p)
	logger.Info("disconnected")
}

// reject sends an error line, then waits for the client to hang up so the
// line is not lost to an abrupt close.
func (s *Server) reject(ctx context.Context, ctrl *transport.Conn, mux *yamux.Session, text string) {
	if err := ctrl.Send(ctx, wire.ErrorFrame(text), s.opts.Retries, s.opts.ControlTimeout); err != nil {
		s.logger.Debug("sending rejection", "error", err)
		return
	}
	s.awaitHangUp(ctx, ctrl, mux)
}

// awaitHangUp closes the control stream after a final reply and gives the
// client up to the control timeout to close the connection itself.
func (s *Server) awaitHangUp(ctx context.Context, ctrl *transport.Conn, mux *yamux.Session) {
	ctrl.Close()
	select {
	case <-mux.CloseChan():
	case <-ctx.Done():
	case <-time.After(s.opts.ControlTimeout):
	}
}

func claimFailureText(err error) string {
	switch {
	case errors.Is(err, fileshare.ErrUsernameTaken):
		return wire.MsgUsernameTaken
	case errors.Is(err, fileshare.ErrUsernameBlocked):
		return wire.MsgUsernameBlocked
	default:
		return err.Error()
	}
}

// serveCommands handles one command at a time until EXIT, a transport
// failure, or retirement of the session.
func (s *Server) serveCommands(ctx context.Context, p *peer) {
	p.ctrl.SetTimeout(s.opts.ControlTimeout)

	for {
		f, err := p.ctrl.ReadFrame()
		if err != nil {
			select {
			case <-p.sess.Done():
				return
			case <-ctx.Done():
				return
			default:
			}
			if errors.Is(err, fileshare.ErrTransportTimeout) {
				continue
			}
			if errors.Is(err, io.EOF) {
				p.logger.Debug("client closed control stream")
			} else {
				p.logger.Error("reading command", "error", err)
			}
			return
		}

		if f.Type != wire.FrameCommand {
			p.logger.Warn("unexpected frame between commands", "frame", f.Type.String())
			if err := s.reply(ctx, p, wire.ErrorFrame("unexpected "+f.Type.String()+" frame")); err != nil {
				return
			}
			continue
		}

		cmd, err := wire.ParseCommand(f.Text())
		if err != nil {
			p.logger.Warn("malformed command", "command", f.Text(), "error", err)
			if err := s.reply(ctx, p, wire.ErrorFrame(err.Error())); err != nil {
				return
			}
			if cmd.HasBody() {
				// The body length is unknown, so the stream cannot be resynchronized.
				p.logger.Error("ending session after malformed command with a body", "command", string(cmd.Verb))
				s.awaitHangUp(ctx, p.ctrl, p.mux)
				return
			}
			continue
		}

		if cmd.Verb == wire.VerbExit {
			p.logger.Debug("exit requested")
			return
		}

		if err := s.dispatch(ctx, p, cmd); err != nil {
			p.logger.Error("session terminated", "command", string(cmd.Verb), "error", err)
			return
		}
	}
}

// deliverNotifications drains the session outbox onto the notification
// stream. Failures are logged and otherwise ignored.
func (s *Server) deliverNotifications(p *peer) {
	defer p.notify.Close()
	for {
		select {
		case <-p.sess.Done():
			return
		case msg := <-p.sess.Outbox():
			err := p.notify.Send(context.Background(), wire.NotificationFrame(msg), s.opts.Retries, s.opts.ControlTimeout)
			if err != nil {
				p.logger.Error("notification did not send", "message", msg, "error", err)
				continue
			}
			p.logger.Info("notification sent", "message", msg)
		}
	}
}

func (s *Server) reply(ctx context.Context, p *peer, f wire.Frame) error {
	return p.ctrl.Send(ctx, f, s.opts.Retries, s.opts.ControlTimeout)
}
