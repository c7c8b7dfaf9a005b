package stt

import (
	"context"
	"sync"
	"time"
)

// Buffer accumulates producer audio. It is the only structure written
// by the producer and read by the relay.
type Buffer struct {
	mu   sync.Mutex
	data []byte
}

func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	b.data = append(b.data, p...)
	b.mu.Unlock()
	return len(p), nil
}

// Take returns everything buffered so far and clears the buffer.
func (b *Buffer) Take() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.data) == 0 {
		return nil
	}
	chunk := b.data
	b.data = nil
	return chunk
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// Queue is a FIFO of audio chunks. With a positive capacity the oldest
// chunk is dropped to make room.
type Queue struct {
	capacity int

	mu    sync.Mutex
	items [][]byte
	ready chan struct{}
}

func NewQueue(capacity int) *Queue {
	return &Queue{capacity: capacity, ready: make(chan struct{}, 1)}
}

// Push appends a chunk and reports how many old chunks were dropped.
func (q *Queue) Push(chunk []byte) int {
	q.mu.Lock()
	dropped := 0
	q.items = append(q.items, chunk)
	if q.capacity > 0 {
		for len(q.items) > q.capacity {
			q.items[0] = nil
			q.items = q.items[1:]
			dropped++
		}
	}
	q.mu.Unlock()
	q.signal()
	return dropped
}

// PushFront returns a chunk that could not be sent to the head of the
// queue. The head is kept in order and the newest chunks are dropped to
// stay within capacity; the number dropped is returned.
func (q *Queue) PushFront(chunk []byte) int {
	q.mu.Lock()
	dropped := 0
	q.items = append([][]byte{chunk}, q.items...)
	if q.capacity > 0 {
		for len(q.items) > q.capacity {
			q.items[len(q.items)-1] = nil
			q.items = q.items[:len(q.items)-1]
			dropped++
		}
	}
	q.mu.Unlock()
	q.signal()
	return dropped
}

func (q *Queue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Pop waits up to timeout for a chunk. It returns false on timeout or
// when stop is closed.
func (q *Queue) Pop(stop <-chan struct{}, timeout time.Duration) ([]byte, bool) {
	if chunk, ok := q.tryPop(); ok {
		return chunk, true
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-stop:
			return nil, false
		case <-timer.C:
			return nil, false
		case <-q.ready:
			if chunk, ok := q.tryPop(); ok {
				return chunk, true
			}
		}
	}
}

func (q *Queue) tryPop() ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	chunk := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	if len(q.items) > 0 {
		select {
		case q.ready <- struct{}{}:
		default:
		}
	}
	return chunk, true
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Relay moves audio from the producer buffer to the session queue on a
// fixed interval.
type Relay struct {
	buffer   *Buffer
	queue    *Queue
	interval time.Duration
}

func NewRelay(buffer *Buffer, queue *Queue, interval time.Duration) *Relay {
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}
	return &Relay{buffer: buffer, queue: queue, interval: interval}
}

// Run drains until ctx is done. Audio still buffered at that point is
// discarded.
func (r *Relay) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		chunk := r.buffer.Take()
		if chunk == nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(r.interval):
			}
			continue
		}
		telemetry.dropped(ctx, r.queue.Push(chunk))
	}
}
