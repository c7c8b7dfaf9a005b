package stt

import "sync"

// Executor decides where session callbacks run. The worker model runs
// them inline on the session's receive goroutine; the reactive model
// serializes everything on one Loop.
type Executor interface {
	Do(f func())
}

type inline struct{}

func (inline) Do(f func()) { f() }

var Inline Executor = inline{}

// Loop is a single goroutine running posted tasks in order. Posting
// never blocks.
type Loop struct {
	mu      sync.Mutex
	tasks   []func()
	wake    chan struct{}
	stopped bool
	done    chan struct{}
}

func NewLoop() *Loop {
	l := &Loop{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *Loop) Do(f func()) {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.tasks = append(l.tasks, f)
	select {
	case l.wake <- struct{}{}:
	default:
	}
	l.mu.Unlock()
}

func (l *Loop) run() {
	defer close(l.done)
	for range l.wake {
		for {
			l.mu.Lock()
			if l.stopped {
				l.mu.Unlock()
				return
			}
			if len(l.tasks) == 0 {
				l.mu.Unlock()
				break
			}
			f := l.tasks[0]
			l.tasks[0] = nil
			l.tasks = l.tasks[1:]
			l.mu.Unlock()
			f()
		}
	}
}

// Stop discards pending tasks and ends the loop goroutine. It does not
// wait when called from a task.
func (l *Loop) Stop() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.stopped = true
	l.tasks = nil
	close(l.wake)
	l.mu.Unlock()
}

func (l *Loop) Done() <-chan struct{} {
	return l.done
}
