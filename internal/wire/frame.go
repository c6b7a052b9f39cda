// Package wire implements the framing and the pipe-delimited command grammar
// exchanged between the fileshare server and its clients.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"fileshare/internal/fileshare"
)

// Magic opens every frame.
var Magic = [4]byte{'F', 'S', 'H', '1'}

// HeaderSize is magic + type + big-endian payload length.
const HeaderSize = 9

// DefaultMaxPayload bounds a single frame payload.
const DefaultMaxPayload = 1 << 20

// FrameType identifies the logical purpose of a frame.
type FrameType byte

const (
	FrameHello        FrameType = 0x01 // username claim
	FrameCommand      FrameType = 0x02 // pipe-delimited command line
	FrameResponse     FrameType = 0x03 // SUCCESS/ERROR text, listing or download header
	FrameReady        FrameType = 0x04 // receiver is ready for a download stream
	FrameData         FrameType = 0x10 // raw file chunk
	FrameAbort        FrameType = 0x11 // sender gave up mid-stream; payload is the reason
	FrameNotification FrameType = 0x20 // NOTIFICATION|<text>
)

func (t FrameType) String() string {
	switch t {
	case FrameHello:
		return "hello"
	case FrameCommand:
		return "command"
	case FrameResponse:
		return "response"
	case FrameReady:
		return "ready"
	case FrameData:
		return "data"
	case FrameAbort:
		return "abort"
	case FrameNotification:
		return "notification"
	default:
		return fmt.Sprintf("frame(0x%02x)", byte(t))
	}
}

// Frame is one message on a stream.
type Frame struct {
	Type    FrameType
	Payload []byte
}

// NewTextFrame builds a frame carrying a text payload.
func NewTextFrame(t FrameType, text string) Frame {
	return Frame{Type: t, Payload: []byte(text)}
}

// Text returns the payload as a string.
func (f Frame) Text() string {
	return string(f.Payload)
}

// Encode returns the frame as a single buffer so it can be issued in one write.
func (f Frame) Encode() []byte {
	buf := make([]byte, HeaderSize+len(f.Payload))
	copy(buf[:4], Magic[:])
	buf[4] = byte(f.Type)
	binary.BigEndian.PutUint32(buf[5:HeaderSize], uint32(len(f.Payload)))
	copy(buf[HeaderSize:], f.Payload)
	return buf
}

// WriteFrame writes f to w in a single Write call.
func WriteFrame(w io.Writer, f Frame) (int, error) {
	return w.Write(f.Encode())
}

// ReadFrame reads one frame from r. Payloads larger than maxPayload are
// rejected with ErrProtocol before any payload byte is read.
// A clean end of stream before the first header byte returns io.EOF.
func ReadFrame(r io.Reader, maxPayload int) (Frame, error) {
	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Frame{}, err
	}
	if hdr[0] != Magic[0] || hdr[1] != Magic[1] || hdr[2] != Magic[2] || hdr[3] != Magic[3] {
		return Frame{}, fmt.Errorf("%w: bad magic: %x", fileshare.ErrProtocol, hdr[:4])
	}

	plen := binary.BigEndian.Uint32(hdr[5:])
	if maxPayload > 0 && int64(plen) > int64(maxPayload) {
		return Frame{}, fmt.Errorf("%w: frame payload %d exceeds limit %d", fileshare.ErrProtocol, plen, maxPayload)
	}

	f := Frame{Type: FrameType(hdr[4]), Payload: make([]byte, plen)}
	if _, err := io.ReadFull(r, f.Payload); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return Frame{}, err
	}
	return f, nil
}
