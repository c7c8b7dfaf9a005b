package stt

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/AbNAt-Cell/NoteTaker/audio"
)

// Reactive serves one stream from a single event loop. Handshake
// results, provider events, session ends and retry timers all run on
// the loop; audio is forwarded synchronously by the caller with no
// queue in between.
type Reactive struct {
	stream   *Stream
	provider Provider
	logger   *log.Logger
	loop     *Loop

	controller   *Controller
	drainTimeout time.Duration

	// OnFatal runs on the loop when the stream cannot continue.
	OnFatal func(error)

	mu      sync.Mutex
	ctx     context.Context
	session *Session
	closed  bool
}

func NewReactive(
	stream *Stream,
	provider Provider,
	policy Policy,
	backoff Backoff,
	clock Clock,
	logger *log.Logger,
) *Reactive {
	r := &Reactive{
		stream:       stream,
		provider:     provider,
		logger:       logger,
		loop:         NewLoop(),
		drainTimeout: 2 * time.Second,
	}
	r.controller = NewController(policy, backoff, clock, r.loop, logger, r.live, r.open)
	return r
}

// Connect starts a session unless one is already connecting or
// streaming. The handshake result arrives later on the loop.
func (r *Reactive) Connect(ctx context.Context) {
	r.mu.Lock()
	r.ctx = ctx
	r.mu.Unlock()
	r.loop.Do(r.open)
}

func (r *Reactive) open() {
	r.mu.Lock()
	if r.closed || (r.session != nil && r.session.State().Live()) {
		r.mu.Unlock()
		return
	}
	ctx := r.ctx
	s := NewSession(r.stream, r.loop, r.logger, r.ended)
	r.session = s
	r.mu.Unlock()

	go func() {
		err := s.Connect(ctx, r.provider)
		r.loop.Do(func() { r.opened(err) })
	}()
}

func (r *Reactive) opened(err error) {
	switch {
	case err == nil:
		r.controller.Connected()
	case errors.Is(err, ErrStopped):
	case errors.Is(err, ErrMissingCredentials):
		r.fatal(err)
	default:
		if r.controller.Closed(err) {
			r.fatal(err)
		}
	}
}

func (r *Reactive) ended(s *Session) {
	if r.controller.Closed(s.Err()) {
		r.fatal(s.Err())
	}
}

func (r *Reactive) fatal(err error) {
	r.logger.Error("stream failed", "uid", r.stream.Meta.UID, "error", err)
	if r.OnFatal != nil {
		r.OnFatal(err)
	}
}

func (r *Reactive) live() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session != nil && r.session.State().Live()
}

func (r *Reactive) current() *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session
}

// SendAudio forwards one PCM chunk. It reports false when no session is
// streaming.
func (r *Reactive) SendAudio(pcm []byte) bool {
	s := r.current()
	if s == nil || s.State() != Streaming {
		return false
	}
	return s.Send(pcm) == nil
}

// SendFloat32 converts float samples to 16-bit PCM and forwards them.
func (r *Reactive) SendFloat32(samples []float32) bool {
	return r.SendAudio(audio.Float32ToPCM16(samples))
}

func (r *Reactive) IsOpen() bool {
	s := r.current()
	return s != nil && s.State() == Streaming
}

// CloseForReconfigure ends the current session without triggering a
// retry; call Connect again with the new settings.
func (r *Reactive) CloseForReconfigure() {
	s := r.current()
	if s == nil {
		return
	}
	if s.State() == Streaming {
		r.controller.Reconfigure()
	}
	s.Abort()
}

// Close stops retries, drains the current session and stops the loop
// once every event already received has been dispatched. It waits for
// the loop, so it must not be called from OnFatal.
func (r *Reactive) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	s := r.session
	r.mu.Unlock()

	r.controller.Stop()
	if s != nil {
		s.Drain(r.drainTimeout)
	}
	r.loop.Do(r.loop.Stop)
	<-r.loop.Done()
}

func (r *Reactive) Stream() *Stream {
	return r.stream
}

func (r *Reactive) Controller() *Controller {
	return r.controller
}
