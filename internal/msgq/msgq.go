// Package msgq implements the FIFO message queue used to pass messages between the
// control context and an I/O context.
//
// Posting never blocks the sender. Sending blocks until the receiving side has handled
// the message. Both share one queue so a sent message is always handled after every
// message posted before it.
package msgq

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// ErrClosed is returned when sending to or waiting on a closed queue.
var ErrClosed = errors.New("message queue closed")

type envelope[M any] struct {
	msg  M
	done chan error
}

// A Queue holds messages until the receiving side drains them.
type Queue[M any] struct {
	mu      sync.Mutex
	pending []envelope[M]
	closed  bool
	wake    chan struct{}
}

// New returns an empty queue.
func New[M any]() *Queue[M] {
	return &Queue[M]{wake: make(chan struct{}, 1)}
}

func (q *Queue[M]) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Post enqueues msg without waiting for it to be handled. It returns false if the
// queue is closed.
func (q *Queue[M]) Post(msg M) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.pending = append(q.pending, envelope[M]{msg: msg})
	q.mu.Unlock()
	q.signal()
	return true
}

// Send enqueues msg and waits until it has been handled, returning the handler's error.
// If ctx is done first the message stays queued and will still be handled.
func (q *Queue[M]) Send(ctx context.Context, msg M) error {
	done := make(chan error, 1)
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.pending = append(q.pending, envelope[M]{msg: msg, done: done})
	q.mu.Unlock()
	q.signal()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wake returns a channel that receives a value whenever new messages may be pending.
func (q *Queue[M]) Wake() <-chan struct{} {
	return q.wake
}

// Len returns the number of messages waiting to be handled.
func (q *Queue[M]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Drain handles every pending message in order and returns how many were handled.
// Messages posted by handle itself are handled in the same call.
func (q *Queue[M]) Drain(handle func(M) error) int {
	var count int
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.mu.Unlock()
			return count
		}
		env := q.pending[0]
		q.pending[0] = envelope[M]{}
		q.pending = q.pending[1:]
		q.mu.Unlock()

		err := handle(env.msg)
		if env.done != nil {
			env.done <- err
		}
		count++
	}
}

// Close marks the queue closed. Pending sends fail with ErrClosed and pending posts
// are discarded.
func (q *Queue[M]) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	pending := q.pending
	q.pending = nil
	q.mu.Unlock()

	for _, env := range pending {
		if env.done != nil {
			env.done <- ErrClosed
		}
	}
	q.signal()
}

// Closed reports whether Close has been called.
func (q *Queue[M]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
