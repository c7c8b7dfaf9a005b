package stt

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Session is one provider connection serving a Stream. It moves through
// Connecting, Streaming, Draining and ends Closed or Errored; it is
// never reused once terminal.
type Session struct {
	stream *Stream
	exec   Executor
	logger *log.Logger
	onEnd  func(*Session)

	mu       sync.Mutex
	state    State
	err      error
	conn     Connection
	cancel   context.CancelFunc
	done     chan struct{}
	received chan struct{}
}

// NewSession returns a session in the Connecting state. onEnd is
// scheduled on the executor once a session that reached Streaming
// becomes terminal.
func NewSession(
	stream *Stream,
	exec Executor,
	logger *log.Logger,
	onEnd func(*Session),
) *Session {
	telemetry.sessionDelta(context.Background(), 1)
	return &Session{
		stream:   stream,
		exec:     exec,
		logger:   logger,
		onEnd:    onEnd,
		state:    Connecting,
		done:     make(chan struct{}),
		received: make(chan struct{}),
	}
}

// Connect performs the provider handshake. On failure the session is
// Errored and the error is returned; onEnd does not run.
func (s *Session) Connect(ctx context.Context, provider Provider) error {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	if s.state != Connecting {
		s.mu.Unlock()
		cancel()
		return ErrStopped
	}
	s.cancel = cancel
	s.mu.Unlock()

	spanCtx, span := tracer.Start(
		ctx,
		"stt.connect",
		trace.WithAttributes(
			attribute.String("uid", s.stream.Meta.UID),
			attribute.String("language", s.stream.Meta.Language),
		),
	)
	conn, err := provider.Connect(spanCtx, Options{Language: s.stream.Meta.Language})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "connect failed")
		span.End()
		s.finish(Errored, err, false)
		return err
	}
	span.End()

	s.mu.Lock()
	if s.state != Connecting {
		s.mu.Unlock()
		conn.Close()
		return ErrStopped
	}
	s.conn = conn
	s.state = Streaming
	s.mu.Unlock()

	s.stream.markConnected()
	go s.receive(context.WithoutCancel(ctx))
	return nil
}

func (s *Session) receive(ctx context.Context) {
	defer close(s.received)
	for {
		ev, err := s.conn.Next()
		if err != nil {
			s.exec.Do(func() { s.closed(err) })
			return
		}
		s.exec.Do(func() { s.stream.Dispatch(ctx, ev) })
	}
}

func (s *Session) closed(err error) {
	s.mu.Lock()
	conn, draining := s.conn, s.state == Draining
	s.mu.Unlock()

	if draining {
		s.finish(Closed, nil, true)
	} else {
		s.finish(Errored, fmt.Errorf("provider connection closed: %w", err), true)
	}
	conn.Close()
}

// Send forwards one chunk. A write failure moves the session to Errored.
func (s *Session) Send(chunk []byte) error {
	s.mu.Lock()
	if s.state != Streaming {
		s.mu.Unlock()
		return ErrNotStreaming
	}
	conn := s.conn
	s.mu.Unlock()

	if err := conn.SendAudio(chunk); err != nil {
		err = fmt.Errorf("send audio: %w", err)
		s.finish(Errored, err, true)
		conn.Close()
		return err
	}
	return nil
}

// Drain signals end of audio, waits up to timeout for the provider to
// deliver its last events and close, then closes the connection.
func (s *Session) Drain(timeout time.Duration) {
	s.mu.Lock()
	switch s.state {
	case Streaming:
		s.state = Draining
	case Connecting:
		s.mu.Unlock()
		s.Abort()
		return
	default:
		s.mu.Unlock()
		return
	}
	conn := s.conn
	s.mu.Unlock()

	if err := conn.Finish(); err != nil {
		s.logger.Warn("finish failed", "uid", s.stream.Meta.UID, "error", err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-s.received:
	case <-timer.C:
		s.logger.Warn("drain timed out", "uid", s.stream.Meta.UID, "timeout", timeout)
	}

	conn.Close()
	s.finish(Closed, nil, true)
}

// Abort closes the session immediately without draining.
func (s *Session) Abort() {
	s.mu.Lock()
	conn, cancel := s.conn, s.cancel
	s.mu.Unlock()

	s.finish(Closed, nil, conn != nil)
	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close()
	}
}

func (s *Session) finish(state State, err error, notify bool) {
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return
	}
	s.state = state
	s.err = err
	close(s.done)
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil && state == Errored {
		cancel()
	}
	telemetry.sessionDelta(context.Background(), -1)
	if err != nil {
		s.logger.Error("session ended", "uid", s.stream.Meta.UID, "state", state, "error", err)
	} else {
		s.logger.Info("session ended", "uid", s.stream.Meta.UID, "state", state)
	}
	if notify && s.onEnd != nil {
		s.exec.Do(func() { s.onEnd(s) })
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Session) Done() <-chan struct{} {
	return s.done
}
