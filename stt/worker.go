package stt

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

type WorkerConfig struct {
	Policy  Policy
	Backoff Backoff
	Clock   Clock

	// QueueCapacity bounds buffered chunks; 0 means unbounded.
	QueueCapacity int
	DrainInterval time.Duration
	PopTimeout    time.Duration
	DrainTimeout  time.Duration
	JoinTimeout   time.Duration
}

func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		Policy:        FailOnce,
		Backoff:       DefaultBackoff(),
		QueueCapacity: 6000,
		DrainInterval: 10 * time.Millisecond,
		PopTimeout:    time.Second,
		DrainTimeout:  2 * time.Second,
		JoinTimeout:   2 * time.Second,
	}
}

// Worker serves one stream with background goroutines: the producer
// writes into a buffer, a relay moves audio into a queue, and a sender
// forwards queued chunks to whichever session is streaming.
type Worker struct {
	stream   *Stream
	provider Provider
	logger   *log.Logger
	cfg      WorkerConfig

	buffer     *Buffer
	queue      *Queue
	controller *Controller

	ctx    context.Context
	cancel context.CancelFunc
	stop   chan struct{}
	wg     sync.WaitGroup

	haltOnce sync.Once
	stopOnce sync.Once

	mu      sync.Mutex
	session *Session
	err     error
	failed  chan struct{}
}

func NewWorker(
	stream *Stream,
	provider Provider,
	cfg WorkerConfig,
	logger *log.Logger,
) *Worker {
	w := &Worker{
		stream:   stream,
		provider: provider,
		logger:   logger,
		cfg:      cfg,
		buffer:   &Buffer{},
		queue:    NewQueue(cfg.QueueCapacity),
		stop:     make(chan struct{}),
		failed:   make(chan struct{}),
	}
	w.controller = NewController(
		cfg.Policy,
		cfg.Backoff,
		cfg.Clock,
		Inline,
		logger,
		w.live,
		w.reconnect,
	)
	return w
}

// Start opens the first provider session and starts the relay and send
// goroutines. Missing credentials always fail; other connection errors
// fail only under FailOnce, and are retried otherwise.
func (w *Worker) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.ctx, w.cancel = ctx, cancel
	w.mu.Unlock()

	if err := w.connect(); err != nil {
		if errors.Is(err, ErrMissingCredentials) || w.cfg.Policy == FailOnce {
			w.cancel()
			return err
		}
		w.controller.Closed(err)
	}

	relay := NewRelay(w.buffer, w.queue, w.cfg.DrainInterval)
	w.wg.Add(2)
	go func() {
		defer w.wg.Done()
		relay.Run(w.ctx)
	}()
	go func() {
		defer w.wg.Done()
		w.sendLoop()
	}()

	w.logger.Info("stream started", "uid", w.stream.Meta.UID, "policy", w.cfg.Policy)
	return nil
}

// Write hands producer audio to the relay. It never blocks on the
// provider.
func (w *Worker) Write(p []byte) (int, error) {
	select {
	case <-w.stop:
		return 0, ErrStopped
	default:
	}
	return w.buffer.Write(p)
}

func (w *Worker) connect() error {
	s := NewSession(w.stream, Inline, w.logger, w.ended)
	w.mu.Lock()
	w.session = s
	w.mu.Unlock()

	if err := s.Connect(w.ctx, w.provider); err != nil {
		return err
	}
	w.controller.Connected()
	return nil
}

func (w *Worker) reconnect() {
	select {
	case <-w.stop:
		return
	default:
	}
	err := w.connect()
	if err == nil {
		return
	}
	if errors.Is(err, ErrMissingCredentials) {
		w.fail(err)
		return
	}
	w.controller.Closed(err)
}

func (w *Worker) ended(s *Session) {
	if w.controller.Closed(s.Err()) {
		w.fail(s.Err())
	}
}

func (w *Worker) live() bool {
	s := w.Session()
	return s != nil && s.State().Live()
}

func (w *Worker) fail(err error) {
	w.mu.Lock()
	if w.err != nil {
		w.mu.Unlock()
		return
	}
	if err == nil {
		err = ErrStopped
	}
	w.err = err
	close(w.failed)
	w.mu.Unlock()

	w.logger.Error("stream failed", "uid", w.stream.Meta.UID, "error", err)
	w.halt()
}

func (w *Worker) sendLoop() {
	for {
		select {
		case <-w.stop:
			return
		default:
		}

		chunk, ok := w.queue.Pop(w.stop, w.cfg.PopTimeout)
		if !ok {
			continue
		}

		s := w.Session()
		if s == nil || s.State() != Streaming {
			telemetry.dropped(w.ctx, w.queue.PushFront(chunk))
			w.pause()
			continue
		}
		if err := s.Send(chunk); err != nil {
			// The session is gone; keep the audio for its successor.
			telemetry.dropped(w.ctx, w.queue.PushFront(chunk))
		}
	}
}

func (w *Worker) pause() {
	select {
	case <-w.stop:
	case <-time.After(w.cfg.DrainInterval):
	}
}

func (w *Worker) halt() {
	w.haltOnce.Do(func() {
		close(w.stop)
		w.mu.Lock()
		cancel := w.cancel
		w.mu.Unlock()
		if cancel != nil {
			cancel()
		}
	})
}

// Stop ends the stream: no more retries, the relay and sender stop, the
// current session drains, and the goroutines are joined for at most
// the join timeout.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		w.controller.Stop()
		w.halt()

		if s := w.Session(); s != nil {
			s.Drain(w.cfg.DrainTimeout)
		}

		joined := make(chan struct{})
		go func() {
			w.wg.Wait()
			close(joined)
		}()
		select {
		case <-joined:
		case <-time.After(w.cfg.JoinTimeout):
			w.logger.Warn("worker did not stop in time", "uid", w.stream.Meta.UID)
		}
		w.logger.Info(
			"stream stopped",
			"uid", w.stream.Meta.UID,
			"segments", len(w.stream.History()),
		)
	})
}

func (w *Worker) Session() *Session {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.session
}

func (w *Worker) Stream() *Stream {
	return w.stream
}

// Failed is closed when the stream hits a terminal error.
func (w *Worker) Failed() <-chan struct{} {
	return w.failed
}

func (w *Worker) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

func (w *Worker) Controller() *Controller {
	return w.controller
}
