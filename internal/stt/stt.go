package stt

import (
	"context"
	"errors"
)

// State is the lifecycle of a streaming recognition connection.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateErrored
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateErrored:
		return "errored"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ErrMisconfiguredCredential means no recognition API key is available.
// Fatal until configuration is fixed; the capture pipeline refuses to start.
var ErrMisconfiguredCredential = errors.New("stt: recognition credential not configured")

// StreamResult is a single transcription event from the recognition service.
type StreamResult struct {
	Text       string
	IsFinal    bool
	Confidence float64
}

// Client is one streaming recognition connection. A client serves exactly
// one recording session; after an error or Close it is discarded, never
// reconnected.
type Client interface {
	// Connect performs the transport handshake. The client moves through
	// Connecting to Open, or to Errored on failure.
	Connect(ctx context.Context) error

	// Send forwards raw s16le PCM to the service. Audio sent while the
	// connection is not open is dropped: real-time audio is perishable and
	// queuing it would desynchronize timing.
	Send(pcm []byte)

	// Results delivers partial and final transcription events. The channel
	// is closed when the connection ends.
	Results() <-chan StreamResult

	// Errors delivers transport-level failures. A client that errors
	// requires a full session restart.
	Errors() <-chan error

	State() State

	// Close tears down the connection. Idempotent.
	Close() error
}
