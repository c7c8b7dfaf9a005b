package stt

import (
	"context"
	"errors"

	"github.com/AbNAt-Cell/NoteTaker/segment"
)

var (
	ErrMissingCredentials = errors.New("stt: provider credentials not configured")
	ErrNotStreaming       = errors.New("stt: session is not streaming")
	ErrStopped            = errors.New("stt: stream stopped")
)

// ProviderEvent is either a transcript or a provider-reported error.
// Both fields nil means the frame carried nothing to dispatch.
type ProviderEvent struct {
	Transcript *segment.Transcript
	Err        string
}

type Options struct {
	Language string
}

// Connection is one open streaming connection to a recognition provider.
type Connection interface {
	SendAudio(data []byte) error
	// Finish signals end of audio; the provider flushes and closes.
	Finish() error
	// Next blocks for the next event and returns an error once the
	// connection has closed.
	Next() (ProviderEvent, error)
	Close() error
}

type Provider interface {
	Connect(ctx context.Context, opts Options) (Connection, error)
}

type State int

const (
	Connecting State = iota
	Streaming
	Draining
	Closed
	Errored
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Streaming:
		return "streaming"
	case Draining:
		return "draining"
	case Closed:
		return "closed"
	case Errored:
		return "errored"
	}
	return "unknown"
}

// Live reports whether a session in this state still holds the stream.
func (s State) Live() bool {
	return s == Connecting || s == Streaming
}

func (s State) Terminal() bool {
	return s == Closed || s == Errored
}
