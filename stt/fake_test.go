package stt

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/AbNAt-Cell/NoteTaker/segment"
)

var errConnClosed = errors.New("fake connection closed")

func testLogger() *log.Logger {
	return log.New(io.Discard)
}

type fakeConn struct {
	events chan ProviderEvent
	closed chan struct{}

	mu         sync.Mutex
	sent       [][]byte
	finished   bool
	finishOnce sync.Once
	closeOnce  sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		events: make(chan ProviderEvent, 16),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) SendAudio(data []byte) error {
	select {
	case <-c.closed:
		return errConnClosed
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, append([]byte(nil), data...))
	return nil
}

// Finish ends the event stream, like a provider flushing and closing
// after CloseStream.
func (c *fakeConn) Finish() error {
	c.mu.Lock()
	c.finished = true
	c.mu.Unlock()
	c.finishOnce.Do(func() { close(c.events) })
	return nil
}

func (c *fakeConn) Next() (ProviderEvent, error) {
	select {
	case ev, ok := <-c.events:
		if !ok {
			return ProviderEvent{}, io.EOF
		}
		return ev, nil
	case <-c.closed:
		return ProviderEvent{}, errConnClosed
	}
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) emit(ev ProviderEvent) {
	c.events <- ev
}

func (c *fakeConn) sentChunks() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.sent...)
}

func (c *fakeConn) wasClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeConn) wasFinished() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.finished
}

type fakeProvider struct {
	connected chan *fakeConn

	mu       sync.Mutex
	errs     []error
	attempts int
}

func newFakeProvider(errs ...error) *fakeProvider {
	return &fakeProvider{connected: make(chan *fakeConn, 8), errs: errs}
}

func (p *fakeProvider) Connect(ctx context.Context, opts Options) (Connection, error) {
	p.mu.Lock()
	p.attempts++
	if len(p.errs) > 0 {
		err := p.errs[0]
		p.errs = p.errs[1:]
		if err != nil {
			p.mu.Unlock()
			return nil, err
		}
	}
	p.mu.Unlock()

	c := newFakeConn()
	p.connected <- c
	return c, nil
}

func (p *fakeProvider) Attempts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts
}

func (p *fakeProvider) next(t *testing.T) *fakeConn {
	t.Helper()
	select {
	case c := <-p.connected:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("provider was never connected")
		return nil
	}
}

type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	d       time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, d: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// pending returns the timers that have neither fired nor been stopped.
func (c *fakeClock) pending() []*fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*fakeTimer
	for _, t := range c.timers {
		if !t.fired && !t.stopped {
			out = append(out, t)
		}
	}
	return out
}

// fire runs the oldest pending timer on the calling goroutine.
func (c *fakeClock) fire(t *testing.T) time.Duration {
	t.Helper()
	c.mu.Lock()
	var next *fakeTimer
	for _, tm := range c.timers {
		if !tm.fired && !tm.stopped {
			next = tm
			break
		}
	}
	if next == nil {
		c.mu.Unlock()
		t.Fatal("no pending timer")
		return 0
	}
	next.fired = true
	c.mu.Unlock()

	next.f()
	return next.d
}

func (c *fakeClock) delays() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []time.Duration
	for _, t := range c.timers {
		out = append(out, t.d)
	}
	return out
}

type recordingSink struct {
	mu      sync.Mutex
	live    []LiveMessage
	durable []DurableMessage
	err     error
}

func (r *recordingSink) SendLive(ctx context.Context, msg LiveMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.live = append(r.live, msg)
	return r.err
}

func (r *recordingSink) StoreTranscript(ctx context.Context, msg DurableMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.durable = append(r.durable, msg)
	return r.err
}

func (r *recordingSink) Live() []LiveMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]LiveMessage(nil), r.live...)
}

func (r *recordingSink) Durable() []DurableMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]DurableMessage(nil), r.durable...)
}

func newTestStream(uid string, sink *recordingSink) *Stream {
	pub := NewPublisher(testLogger(), []LiveSink{sink}, []DurableSink{sink})
	return NewStream(
		Metadata{UID: uid, Token: "tok", Platform: "google_meet", MeetingID: "m1"},
		nil,
		pub,
		testLogger(),
	)
}

func final(text string, start, duration float64, speaker int) ProviderEvent {
	return ProviderEvent{Transcript: &segment.Transcript{
		Text:     text,
		IsFinal:  true,
		Start:    start,
		Duration: duration,
		Speaker:  &speaker,
	}}
}

func interim(text string, start, duration float64) ProviderEvent {
	return ProviderEvent{Transcript: &segment.Transcript{
		Text:     text,
		Start:    start,
		Duration: duration,
	}}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
