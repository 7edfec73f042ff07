package printer

import "errors"

// Domain errors for the printer package.
var (
	// ErrInvalidConfig indicates the client configuration is unusable.
	ErrInvalidConfig = errors.New("printer: invalid configuration")

	// ErrAlreadyRunning is returned when Run is called on a client that is
	// already running.
	ErrAlreadyRunning = errors.New("printer: client already running")

	// ErrStopped aborts a dial that raced with Stop.
	ErrStopped = errors.New("printer: client stopped")

	// ErrBroadcasterClosed is returned when subscribing to a closed broadcaster.
	ErrBroadcasterClosed = errors.New("printer: broadcaster closed")

	// ErrBinaryFrame is returned by Decode for binary WebSocket frames.
	ErrBinaryFrame = errors.New("printer: binary frame")

	// ErrNotJSONObject is returned by Decode for text frames that do not
	// start with '{'. They are discarded without parsing.
	ErrNotJSONObject = errors.New("printer: frame is not a JSON object")

	// ErrMalformedJSON wraps JSON syntax errors from Decode.
	ErrMalformedJSON = errors.New("printer: malformed JSON frame")
)
