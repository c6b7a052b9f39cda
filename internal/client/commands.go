package client

import (
	"context"
	"errors"
	"fmt"
	"io"

	"fileshare/internal/fileshare"
	"fileshare/internal/fs"
	"fileshare/internal/transfer"
	"fileshare/internal/wire"
)

// List returns every stored file name on the server.
func (c *Client) List(ctx context.Context) ([]string, error) {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	cn, err := c.active()
	if err != nil {
		return nil, err
	}
	if err := c.send(ctx, cn, wire.List().Frame()); err != nil {
		return nil, fmt.Errorf("sending list: %w", err)
	}
	resp, err := c.receive(ctx, cn)
	if err != nil {
		return nil, fmt.Errorf("receiving list: %w", err)
	}
	switch resp.Kind {
	case wire.KindListing:
		return wire.ParseListing(resp.Text), nil
	case wire.KindError:
		return nil, remoteError(resp.Text)
	default:
		return nil, fmt.Errorf("%w: unexpected list response", fileshare.ErrProtocol)
	}
}

// OwnedFiles returns the stored names in the listing that belong to the
// connected user, the candidates for Update and Delete.
func (c *Client) OwnedFiles(ctx context.Context) ([]string, error) {
	names, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	user := c.Username()
	var owned []string
	for _, n := range names {
		if fileshare.IsOwner(user, n) {
			owned = append(owned, n)
		}
	}
	return owned, nil
}

// Upload sends the local file at path. It is stored as <username>_<basename>.
func (c *Client) Upload(ctx context.Context, path string) (string, error) {
	lf, err := fs.Resolve(path)
	if err != nil {
		return "", err
	}
	rc, err := lf.Open()
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", lf.Path, err)
	}
	defer rc.Close()

	return c.UploadReader(ctx, lf.Name, rc, lf.Size)
}

// UploadReader sends size bytes from r under name. It returns the server's
// success text.
func (c *Client) UploadReader(ctx context.Context, name string, r io.Reader, size int64) (string, error) {
	return c.sendBody(ctx, wire.Upload(name, size), fileshare.Upload, r)
}

// Update replaces the content of storedName, which the caller must own,
// with the local file at path. The stored name is kept.
func (c *Client) Update(ctx context.Context, storedName, path string) (string, error) {
	lf, err := fs.Resolve(path)
	if err != nil {
		return "", err
	}
	rc, err := lf.Open()
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", lf.Path, err)
	}
	defer rc.Close()

	return c.sendBody(ctx, wire.Update(storedName, lf.Name, lf.Size), fileshare.Update, rc)
}

// sendBody issues a command carrying a body and streams the body right
// after it, without waiting for an acknowledgement. Names are checked first:
// a line the server cannot parse would leave the body unframed.
func (c *Client) sendBody(ctx context.Context, cmd wire.Command, dir fileshare.Direction, r io.Reader) (string, error) {
	if err := fileshare.ValidateName(cmd.Name); err != nil {
		return "", err
	}
	if cmd.Verb == wire.VerbUpdate {
		if err := fileshare.ValidateName(cmd.NewName); err != nil {
			return "", err
		}
	}

	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	cn, err := c.active()
	if err != nil {
		return "", err
	}
	if err := c.send(ctx, cn, cmd.Frame()); err != nil {
		return "", fmt.Errorf("sending %s: %w", cmd.Verb, err)
	}

	restore := cn.ctrl.Override(c.opts.TransferTimeout)
	job := c.newJob(dir, cmd.Name, cmd.Size)
	sendErr := transfer.Send(cn.ctrl, r, job, c.opts.ChunkSize)
	restore()
	if sendErr != nil {
		if isFatal(sendErr) {
			return "", c.check(cn, sendErr)
		}
		c.logger.Error("transfer aborted", "file", cmd.Name, "error", sendErr)
	}

	resp, err := c.receive(ctx, cn)
	if err != nil {
		return "", fmt.Errorf("waiting for %s result: %w", cmd.Verb, err)
	}
	text, err := status(resp)
	if sendErr != nil {
		return "", errors.Join(sendErr, err)
	}
	if err != nil {
		return "", err
	}
	c.logger.Info(text, "file", cmd.Name, "size", fileshare.FormatSize(float64(cmd.Size)))
	return text, nil
}

// Download fetches storedName into destDir and returns the written path.
// A failed transfer leaves nothing behind in destDir.
func (c *Client) Download(ctx context.Context, storedName, destDir string) (string, error) {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	cn, err := c.active()
	if err != nil {
		return "", err
	}
	if err := c.send(ctx, cn, wire.Download(storedName).Frame()); err != nil {
		return "", fmt.Errorf("sending download: %w", err)
	}
	resp, err := c.receive(ctx, cn)
	if err != nil {
		return "", fmt.Errorf("waiting for download header: %w", err)
	}
	switch resp.Kind {
	case wire.KindDownloadHeader:
	case wire.KindError:
		return "", remoteError(resp.Text)
	default:
		return "", c.check(cn, fmt.Errorf("%w: expected download header", fileshare.ErrProtocol))
	}
	if resp.Name != storedName {
		return "", c.check(cn, fmt.Errorf("%w: download header names %q, requested %q", fileshare.ErrProtocol, resp.Name, storedName))
	}

	out, err := fs.CreateDownload(destDir, resp.Name)
	if err != nil {
		if serr := c.send(ctx, cn, wire.NewTextFrame(wire.FrameAbort, err.Error())); serr != nil {
			return "", errors.Join(err, serr)
		}
		return "", err
	}
	if err := c.send(ctx, cn, wire.Frame{Type: wire.FrameReady}); err != nil {
		out.Abort()
		return "", fmt.Errorf("sending ready: %w", err)
	}

	restore := cn.ctrl.Override(c.opts.TransferTimeout)
	job := c.newJob(fileshare.Download, resp.Name, resp.Size)
	err = transfer.Receive(cn.ctrl, out, job)
	restore()
	if err != nil {
		out.Abort()
		return "", c.check(cn, fmt.Errorf("downloading %s: %w", resp.Name, err))
	}
	if err := out.Commit(); err != nil {
		return "", err
	}

	c.logger.Info("file downloaded", "file", resp.Name, "path", out.Path(),
		"size", fileshare.FormatSize(float64(resp.Size)))
	return out.Path(), nil
}

// Delete removes storedName, which the caller must own.
func (c *Client) Delete(ctx context.Context, storedName string) (string, error) {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	cn, err := c.active()
	if err != nil {
		return "", err
	}
	if err := c.send(ctx, cn, wire.Delete(storedName).Frame()); err != nil {
		return "", fmt.Errorf("sending delete: %w", err)
	}
	resp, err := c.receive(ctx, cn)
	if err != nil {
		return "", fmt.Errorf("waiting for delete result: %w", err)
	}
	return status(resp)
}

func (c *Client) newJob(dir fileshare.Direction, name string, size int64) *fileshare.TransferJob {
	job := fileshare.NewTransferJob(dir, name, size, c.opts.Clock, c.opts.OnProgress)
	job.SetInterval(c.opts.ProgressInterval)
	return job
}
