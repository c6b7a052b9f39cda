package server

import (
	"context"
	"errors"
	"fmt"
	"io"

	"fileshare/internal/fileshare"
	"fileshare/internal/transfer"
	"fileshare/internal/wire"
)

// outcome is what a handler reports for the journal.
type outcome struct {
	status  string
	message string
}

func succeeded(msg string) outcome { return outcome{status: fileshare.StatusSuccess, message: msg} }

func failed(msg string) outcome { return outcome{status: fileshare.StatusError, message: msg} }

// dispatch runs one command. A returned error means the session cannot
// continue; command-level failures are answered with ERROR lines instead.
func (s *Server) dispatch(ctx context.Context, p *peer, cmd wire.Command) error {
	rec := &fileshare.OperationRecord{
		SessionID: p.sess.ID,
		Username:  p.sess.Username,
		Operation: string(cmd.Verb),
		FileName:  cmd.Name,
		Size:      cmd.Size,
		StartedAt: s.clock.Now(),
	}
	opID, err := s.journal.StartOperation(rec)
	if err != nil {
		p.logger.Warn("journal start failed", "error", err)
	}

	var res outcome
	switch cmd.Verb {
	case wire.VerbList:
		res, err = s.handleList(ctx, p)
	case wire.VerbUpload:
		res, err = s.handleUpload(ctx, p, cmd)
	case wire.VerbDownload:
		res, err = s.handleDownload(ctx, p, cmd)
	case wire.VerbDelete:
		res, err = s.handleDelete(ctx, p, cmd)
	case wire.VerbUpdate:
		res, err = s.handleUpdate(ctx, p, cmd)
	default:
		res = failed("unsupported command " + string(cmd.Verb))
		err = s.reply(ctx, p, wire.ErrorFrame(res.message))
	}
	if err != nil {
		res = failed(err.Error())
	}

	if opID != 0 {
		if jerr := s.journal.FinishOperation(opID, res.status, res.message, s.clock.Now()); jerr != nil {
			p.logger.Warn("journal finish failed", "error", jerr)
		}
	}
	return err
}

func (s *Server) handleList(ctx context.Context, p *peer) (outcome, error) {
	names, err := s.store.List()
	if err != nil {
		msg := fmt.Sprintf("File listing error: %v", err)
		p.logger.Error(msg)
		return failed(msg), s.reply(ctx, p, wire.ErrorFrame(msg))
	}
	if err := s.reply(ctx, p, wire.NewTextFrame(wire.FrameResponse, wire.Listing(names))); err != nil {
		return outcome{}, err
	}
	p.logger.Info("file list sent", "count", len(names))
	return succeeded(fmt.Sprintf("%d files", len(names))), nil
}

func (s *Server) handleUpload(ctx context.Context, p *peer, cmd wire.Command) (outcome, error) {
	if err := fileshare.ValidateName(cmd.Name); err != nil {
		return s.rejectBody(ctx, p, cmd, err.Error())
	}
	stored := fileshare.StoredName(p.sess.Username, cmd.Name)

	if ok, res, err := s.receiveBody(ctx, p, fileshare.Upload, stored, cmd.Size); !ok {
		return res, err
	}
	p.logger.Info("file uploaded", "file", stored, "size", fileshare.FormatSize(float64(cmd.Size)))
	return succeeded(wire.MsgUploaded), s.reply(ctx, p, wire.SuccessFrame(wire.MsgUploaded))
}

func (s *Server) handleDownload(ctx context.Context, p *peer, cmd wire.Command) (outcome, error) {
	rc, size, err := s.store.Open(cmd.Name)
	if err != nil {
		if errors.Is(err, fileshare.ErrNotFound) {
			return failed(wire.MsgNotFound), s.reply(ctx, p, wire.ErrorFrame(wire.MsgNotFound))
		}
		msg := fmt.Sprintf("File download error: %v", err)
		p.logger.Error(msg)
		return failed(msg), s.reply(ctx, p, wire.ErrorFrame(msg))
	}
	defer rc.Close()

	header := wire.NewTextFrame(wire.FrameResponse, wire.DownloadHeader(cmd.Name, size))
	if err := s.reply(ctx, p, header); err != nil {
		return outcome{}, err
	}

	if owner, ok := fileshare.OwnerOf(cmd.Name); ok && owner != p.sess.Username {
		s.registry.Notify(owner, wire.DownloadNotice(p.sess.Username, cmd.Name))
	}

	ready, err := p.ctrl.Receive(ctx, s.opts.Retries, s.opts.ControlTimeout)
	if err != nil {
		return outcome{}, fmt.Errorf("waiting for download ready: %w", err)
	}
	switch ready.Type {
	case wire.FrameReady:
	case wire.FrameAbort:
		p.logger.Info("download declined by client", "file", cmd.Name, "reason", ready.Text())
		return failed("declined: " + ready.Text()), nil
	default:
		return outcome{}, fmt.Errorf("%w: expected ready, got %s frame", fileshare.ErrProtocol, ready.Type)
	}

	restore := p.ctrl.Override(s.opts.TransferTimeout)
	defer restore()

	job := fileshare.NewTransferJob(fileshare.Download, cmd.Name, size, s.clock, s.progressLogger(p))
	if err := transfer.Send(p.ctrl, rc, job, s.opts.DownloadChunkSize); err != nil {
		if isFatal(err) {
			return outcome{}, err
		}
		// The client received an abort frame and discarded its partial file.
		p.logger.Error("download aborted", "file", cmd.Name, "error", err)
		return failed(err.Error()), nil
	}

	p.logger.Info("file sent", "file", cmd.Name, "size", fileshare.FormatSize(float64(size)))
	return succeeded(fmt.Sprintf("sent %d bytes", size)), nil
}

func (s *Server) handleDelete(ctx context.Context, p *peer, cmd wire.Command) (outcome, error) {
	if !fileshare.IsOwner(p.sess.Username, cmd.Name) {
		s.notifyOwner(p, cmd.Name, wire.DeleteAttemptNotice)
		return failed(wire.MsgPermissionDenied), s.reply(ctx, p, wire.ErrorFrame(wire.MsgPermissionDenied))
	}

	if err := s.store.Delete(cmd.Name); err != nil {
		if errors.Is(err, fileshare.ErrNotFound) {
			return failed(wire.MsgNotFound), s.reply(ctx, p, wire.ErrorFrame(wire.MsgNotFound))
		}
		msg := fmt.Sprintf("File deletion error: %v", err)
		p.logger.Error(msg)
		return failed(msg), s.reply(ctx, p, wire.ErrorFrame(msg))
	}

	p.logger.Info("file deleted", "file", cmd.Name)
	return succeeded(wire.MsgDeleted), s.reply(ctx, p, wire.SuccessFrame(wire.MsgDeleted))
}

// handleUpdate replaces an owned stored file in place. The new local name
// is informational; the stored name never changes.
func (s *Server) handleUpdate(ctx context.Context, p *peer, cmd wire.Command) (outcome, error) {
	if !fileshare.IsOwner(p.sess.Username, cmd.Name) {
		s.notifyOwner(p, cmd.Name, wire.UpdateAttemptNotice)
		return s.rejectBody(ctx, p, cmd, wire.MsgPermissionDenied)
	}

	if _, err := s.store.Stat(cmd.Name); err != nil {
		if errors.Is(err, fileshare.ErrNotFound) {
			return s.rejectBody(ctx, p, cmd, wire.MsgNotFound)
		}
		return s.rejectBody(ctx, p, cmd, fmt.Sprintf("File update error: %v", err))
	}

	if ok, res, err := s.receiveBody(ctx, p, fileshare.Update, cmd.Name, cmd.Size); !ok {
		return res, err
	}
	p.logger.Info("file updated", "file", cmd.Name, "source", cmd.NewName,
		"size", fileshare.FormatSize(float64(cmd.Size)))
	return succeeded(wire.MsgUpdated), s.reply(ctx, p, wire.SuccessFrame(wire.MsgUpdated))
}

// receiveBody streams a command body into the store under name. When the
// body was not stored, ok is false, res and err are the handler's result and
// any ERROR reply has already been sent.
func (s *Server) receiveBody(ctx context.Context, p *peer, dir fileshare.Direction, name string, size int64) (ok bool, res outcome, err error) {
	restore := p.ctrl.Override(s.opts.TransferTimeout)

	pr, pw := io.Pipe()
	stored := make(chan error, 1)
	go func() {
		err := s.store.Put(name, pr, size)
		pr.CloseWithError(err)
		stored <- err
	}()

	job := fileshare.NewTransferJob(dir, name, size, s.clock, s.progressLogger(p))
	recvErr := transfer.Receive(p.ctrl, pw, job)
	pw.CloseWithError(recvErr)
	putErr := <-stored
	restore()

	if recvErr != nil && isFatal(recvErr) {
		return false, outcome{}, recvErr
	}

	var abort *transfer.AbortError
	switch {
	case errors.As(recvErr, &abort):
		p.logger.Warn("transfer aborted by client", "file", name, "reason", abort.Reason)
		msg := "Transfer aborted: " + abort.Reason
		return false, failed(msg), s.reply(ctx, p, wire.ErrorFrame(msg))
	case putErr != nil:
		msg := fmt.Sprintf("File %s error: %v", dir, putErr)
		p.logger.Error(msg, "file", name)
		return false, failed(msg), s.reply(ctx, p, wire.ErrorFrame(msg))
	case recvErr != nil:
		msg := fmt.Sprintf("File %s error: %v", dir, recvErr)
		p.logger.Error(msg, "file", name)
		return false, failed(msg), s.reply(ctx, p, wire.ErrorFrame(msg))
	}
	return true, outcome{}, nil
}

// rejectBody consumes the body of a refused UPLOAD or UPDATE so the control
// stream stays in sync, then answers with text.
func (s *Server) rejectBody(ctx context.Context, p *peer, cmd wire.Command, text string) (outcome, error) {
	restore := p.ctrl.Override(s.opts.TransferTimeout)
	err := transfer.Discard(p.ctrl, cmd.Name, cmd.Size)
	restore()

	var abort *transfer.AbortError
	if err != nil && !errors.As(err, &abort) {
		return outcome{}, err
	}
	return failed(text), s.reply(ctx, p, wire.ErrorFrame(text))
}

// notifyOwner tells the owner of name about a refused attempt by p.
func (s *Server) notifyOwner(p *peer, name string, notice func(username, file string) string) {
	owner, ok := fileshare.OwnerOf(name)
	if !ok || owner == p.sess.Username {
		return
	}
	s.registry.Notify(owner, notice(p.sess.Username, name))
}

func (s *Server) progressLogger(p *peer) fileshare.ProgressFunc {
	return func(pr fileshare.Progress) {
		p.logger.Debug(pr.String(), "file", pr.FileName, "direction", string(pr.Direction))
	}
}

// isFatal reports whether err leaves the control stream unusable.
func isFatal(err error) bool {
	return errors.Is(err, fileshare.ErrTransportFailure) ||
		errors.Is(err, fileshare.ErrTransportTimeout) ||
		errors.Is(err, fileshare.ErrProtocol)
}
