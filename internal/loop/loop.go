// Package loop is the single control thread of tcpassist.  Console
// commands and socket events are posted as closures and run one at a
// time, in FIFO order, on the goroutine that called Run.  Code that
// only ever runs inside the loop needs no locking.
package loop

import (
	"context"
	"errors"
	"sync"

	"github.com/eapache/queue"

	"tcpassist/util"
)

// ErrStopped is returned by Call once the loop no longer accepts work.
var ErrStopped = errors.New("event loop stopped")

// Loop is an unbounded FIFO of tasks drained by one goroutine.
type Loop struct {
	logger *util.Logger

	mu      sync.Mutex
	q       *queue.Queue
	stopped bool
	wake    chan struct{}
	done    chan struct{}
}

// New creates a loop.  Nothing runs until Run is called.
func New(logger *util.Logger) *Loop {
	if logger == nil {
		logger = util.NewLogger(0)
	}
	return &Loop{
		logger: logger,
		q:      queue.New(),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Post enqueues fn.  It returns false if the loop has been stopped.
// Post never blocks and is safe from any goroutine.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return false
	}
	l.q.Add(fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Dispatch is Post without the result, for use as a socket dispatcher.
func (l *Loop) Dispatch(fn func()) {
	if !l.Post(fn) {
		l.logger.Debug("loop: dropped task posted after stop")
	}
}

// Call runs fn on the loop and waits for its result.  It must not be
// called from inside the loop.
func (l *Loop) Call(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	if !l.Post(func() { result <- fn() }) {
		return ErrStopped
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		// fn may still have run as part of the final drain.
		select {
		case err := <-result:
			return err
		default:
			return ErrStopped
		}
	}
}

// Len returns the number of tasks waiting to run.
func (l *Loop) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.q.Length()
}

// Stop makes the loop reject new tasks.  Run drains what is already
// queued and then returns.
func (l *Loop) Stop() {
	l.mu.Lock()
	l.stopped = true
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Done is closed when Run has returned.
func (l *Loop) Done() <-chan struct{} { return l.done }

// Run executes tasks until Stop is called or ctx is cancelled.  On
// Stop, tasks queued before the stop still run; on cancellation they
// are discarded.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)

	for {
		fn, stopped := l.next()
		if fn != nil {
			l.run(fn)
			if ctx.Err() != nil {
				l.Stop()
				return ctx.Err()
			}
			continue
		}
		if stopped {
			return nil
		}

		select {
		case <-l.wake:
		case <-ctx.Done():
			l.Stop()
			return ctx.Err()
		}
	}
}

func (l *Loop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.q.Length() == 0 {
		return nil, l.stopped
	}
	return l.q.Remove().(func()), l.stopped
}

// run executes one task.  A panicking task is logged and the loop
// carries on with the next one.
func (l *Loop) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("loop: task panicked: %v", r)
		}
	}()
	fn()
}
