package core

import (
	"context"
	"io"
	"os"
	"time"

	"go.uber.org/multierr"

	"tcpassist/internal/controller"
	"tcpassist/internal/loop"
	"tcpassist/internal/metrics"
	"tcpassist/internal/session"
	"tcpassist/internal/transport"
	"tcpassist/util"
)

// shutdownGrace bounds how long teardown waits for an orderly
// disconnect to be reported.
const shutdownGrace = 3 * time.Second

// Runtime is the machinery shared by every mode: one event loop, one
// controller and the metrics its transport records into.
type Runtime struct {
	Loop       *loop.Loop
	Controller *controller.Controller
	Metrics    *metrics.Collector
	Logger     *util.Logger
	// Color enables ANSI styling of the session output.
	Color bool

	// Stdin/Stdout default to os.Stdin/os.Stdout when nil.
	// Override in tests for deterministic I/O.
	Stdin  io.Reader
	Stdout io.Writer

	sess   *session.Session
	detach io.Closer
}

func (rt *Runtime) stdin() io.Reader {
	if rt.Stdin != nil {
		return rt.Stdin
	}
	return os.Stdin
}

func (rt *Runtime) stdout() io.Writer {
	if rt.Stdout != nil {
		return rt.Stdout
	}
	return os.Stdout
}

// start runs the loop in the background and attaches a session to the
// controller.  The loop runs until shutdown, independent of the mode's
// context.
func (rt *Runtime) start() {
	rt.sess = session.New(rt.stdin(), rt.stdout(), rt.Logger, rt.Color)
	rt.detach = rt.sess.Attach(rt.Controller)
	go func() {
		if err := rt.Loop.Run(context.Background()); err != nil {
			rt.Logger.Debug("loop: %v", err)
		}
	}()
}

// do runs fn on the loop and waits for it.
func (rt *Runtime) do(fn func(c *controller.Controller) error) error {
	return rt.Loop.Call(context.Background(), func() error { return fn(rt.Controller) })
}

// watch forwards every status change into a buffered channel.  Closing
// the returned io.Closer stops forwarding.
func (rt *Runtime) watch() (<-chan controller.Status, io.Closer) {
	ch := make(chan controller.Status, 16)
	var closer io.Closer
	rt.do(func(c *controller.Controller) error { //nolint:errcheck
		closer = c.OnStatus(func(st controller.Status) {
			select {
			case ch <- st:
			default:
			}
		})
		return nil
	})
	if closer == nil {
		closer = nopCloser{}
	}
	return ch, closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// shutdown disconnects if needed, waits briefly for the outcome, stops
// the loop and releases the transport.
func (rt *Runtime) shutdown() error {
	statuses, unwatch := rt.watch()

	var state transport.State
	rt.do(func(c *controller.Controller) error { //nolint:errcheck
		state = c.State()
		if state != transport.StateDisconnected {
			c.RequestDisconnect()
		}
		return nil
	})

	if state != transport.StateDisconnected {
		timer := time.NewTimer(shutdownGrace)
	wait:
		for {
			select {
			case st := <-statuses:
				if st.State == transport.StateDisconnected {
					break wait
				}
			case <-timer.C:
				rt.Logger.Warn("disconnect not confirmed after %s", shutdownGrace)
				break wait
			}
		}
		timer.Stop()
	}

	err := unwatch.Close()
	rt.Loop.Stop()
	<-rt.Loop.Done()

	err = multierr.Append(err, rt.detach.Close())
	err = multierr.Append(err, rt.Controller.Close())

	if rt.Logger.Level() >= util.LogVerbose {
		rt.Logger.Verbose("session metrics:\n%s", rt.Metrics.JSON())
	}
	return err
}
