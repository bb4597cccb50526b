package history

import "errors"

// Sentinel errors for history operations.
var (
	// ErrNotConnected indicates the recorder is not connected.
	ErrNotConnected = errors.New("history: not connected")

	// ErrConnectionFailed indicates the initial connection attempt failed.
	ErrConnectionFailed = errors.New("history: connection failed")

	// ErrWriteFailed indicates a write operation failed.
	ErrWriteFailed = errors.New("history: write failed")

	// ErrDisabled indicates the history mirror is disabled in config.
	ErrDisabled = errors.New("history: disabled in configuration")
)
