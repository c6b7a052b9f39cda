package fileshare

import "errors"

var (
	// Transport errors.
	ErrTransportTimeout = errors.New("transport timeout")
	ErrTransportFailure = errors.New("transport failure")

	// ErrProtocol marks a malformed command, response or frame.
	ErrProtocol = errors.New("protocol error")

	// Command-level errors. The session continues after these.
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotFound         = errors.New("file not found")

	// Identity conflicts terminate the connection.
	ErrUsernameTaken   = errors.New("username taken")
	ErrUsernameBlocked = errors.New("username blocked")

	// ErrShortTransfer is returned when a stream ends before the announced size was moved.
	ErrShortTransfer = errors.New("connection failed before transfer completed")
)
