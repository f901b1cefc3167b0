// Package mainloop provides the goroutine on which results are handed back to
// the host application, in the order they were posted.
package mainloop

import (
	"sync"

	"github.com/go-errors/errors"
)

// Poster schedules functions for execution on a main loop.
type Poster interface {
	// Post schedules f and reports whether it was accepted.
	Post(f func()) bool
}

// check Loop and Inline compliance to the interface during compile time
var _ Poster = (*Loop)(nil)
var _ Poster = Inline{}

type Loop struct {
	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	done    chan struct{}
	running bool
	closed  bool
}

func New() *Loop {
	return &Loop{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Post appends f to the queue. It never blocks; after Shutdown it returns false.
func (l *Loop) Post(f func()) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return false
	}

	l.queue = append(l.queue, f)

	select {
	case l.wake <- struct{}{}:
	default:
	}

	return true
}

// Run executes posted functions until Shutdown is called. Functions still
// queued at that point are discarded.
func (l *Loop) Run() error {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return errors.New("main loop is already running")
	}
	l.running = true
	l.mu.Unlock()

	for {
		select {
		case <-l.wake:
			for _, f := range l.drain() {
				select {
				case <-l.done:
					return nil
				default:
				}

				f()
			}
		case <-l.done:
			// finish loop when program is done
			return nil
		}
	}
}

func (l *Loop) drain() []func() {
	l.mu.Lock()
	defer l.mu.Unlock()

	queue := l.queue
	l.queue = nil

	return queue
}

// Shutdown stops Run and rejects further posts.
func (l *Loop) Shutdown() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}

	l.closed = true
	l.queue = nil
	close(l.done)
}

// Inline runs posted functions immediately on the calling goroutine.
type Inline struct{}

func (Inline) Post(f func()) bool {
	f()
	return true
}
