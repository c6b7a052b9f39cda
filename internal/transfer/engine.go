// Package transfer streams file bodies as data frames with exact-size
// completion and throttled progress reporting.
package transfer

import (
	"errors"
	"fmt"
	"io"

	"fileshare/internal/fileshare"
	"fileshare/internal/wire"
)

// Default chunk sizes.
const (
	DefaultUploadChunk   = 4096
	DefaultDownloadChunk = 65536
)

// FrameWriter is the sending half of a framed connection.
type FrameWriter interface {
	WriteFrame(wire.Frame) error
}

// FrameReader is the receiving half of a framed connection.
type FrameReader interface {
	ReadFrame() (wire.Frame, error)
}

// AbortError is returned by Receive when the sender gave up mid-stream.
// The stream is still in sync afterwards.
type AbortError struct {
	Reason string
}

func (e *AbortError) Error() string {
	return "transfer aborted by peer: " + e.Reason
}

func (e *AbortError) Unwrap() error { return fileshare.ErrShortTransfer }

// Send streams job.TotalSize bytes read from r as data frames of at most
// chunkSize bytes. If r runs dry or fails, an abort frame is sent so the
// receiver can resynchronize.
func Send(w FrameWriter, r io.Reader, job *fileshare.TransferJob, chunkSize int) error {
	if chunkSize <= 0 {
		chunkSize = DefaultUploadChunk
	}
	buf := make([]byte, chunkSize)

	for !job.Done() {
		n := int64(chunkSize)
		if rem := job.Remaining(); rem < n {
			n = rem
		}

		read, err := io.ReadFull(r, buf[:n])
		if err != nil {
			readErr := fmt.Errorf("reading %s after %d of %d bytes: %w", job.FileName, job.BytesMoved+int64(read), job.TotalSize, err)
			if werr := w.WriteFrame(wire.NewTextFrame(wire.FrameAbort, readErr.Error())); werr != nil {
				return errors.Join(readErr, werr)
			}
			return readErr
		}

		if err := w.WriteFrame(wire.Frame{Type: wire.FrameData, Payload: buf[:n]}); err != nil {
			return fmt.Errorf("sending %s: %w", job.FileName, err)
		}
		job.Advance(n)
	}
	return nil
}

// Receive reads data frames into w until exactly job.TotalSize bytes have
// arrived. An empty data frame or end of stream before completion is a
// transport failure. If w fails, the remaining frames are still consumed
// so the stream stays in sync, and the write error is returned.
func Receive(r FrameReader, w io.Writer, job *fileshare.TransferJob) error {
	var sinkErr error

	for !job.Done() {
		f, err := r.ReadFrame()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return fmt.Errorf("%w: %w after %d of %d bytes", fileshare.ErrTransportFailure, fileshare.ErrShortTransfer, job.BytesMoved, job.TotalSize)
			}
			return fmt.Errorf("receiving %s: %w", job.FileName, err)
		}

		switch f.Type {
		case wire.FrameData:
		case wire.FrameAbort:
			return &AbortError{Reason: f.Text()}
		default:
			return fmt.Errorf("%w: unexpected %s frame during transfer", fileshare.ErrProtocol, f.Type)
		}

		n := int64(len(f.Payload))
		if n == 0 {
			return fmt.Errorf("%w: %w: empty chunk after %d of %d bytes", fileshare.ErrTransportFailure, fileshare.ErrShortTransfer, job.BytesMoved, job.TotalSize)
		}
		if n > job.Remaining() {
			return fmt.Errorf("%w: chunk of %d bytes overruns the announced size (%d remaining)", fileshare.ErrProtocol, n, job.Remaining())
		}

		if sinkErr == nil {
			if _, err := w.Write(f.Payload); err != nil {
				sinkErr = err
			}
		}
		job.Advance(n)
	}

	if sinkErr != nil {
		return fmt.Errorf("writing %s: %w", job.FileName, sinkErr)
	}
	return nil
}

// Discard consumes a body of size bytes without storing it. It is used when
// a command carrying a body is rejected.
func Discard(r FrameReader, name string, size int64) error {
	job := fileshare.NewTransferJob(fileshare.Upload, name, size, nil, nil)
	return Receive(r, io.Discard, job)
}
