package core

import (
	"context"
	"fmt"
	"time"

	"tcpassist/internal/codec"
	"tcpassist/internal/controller"
	tcperr "tcpassist/internal/errors"
	"tcpassist/internal/transport"
)

// OneShotMode connects, sends one payload, prints whatever arrives
// during the wait window and disconnects.
type OneShotMode struct {
	*Runtime

	Host    string
	Port    string
	Payload string
	Format  codec.Format
	Wait    time.Duration
}

// Run performs the exchange.  It fails if the endpoint is invalid, the
// connection cannot be established or the payload is refused.
func (m *OneShotMode) Run(ctx context.Context) (err error) {
	m.start()
	defer func() {
		if serr := m.shutdown(); err == nil {
			err = serr
		}
	}()

	statuses, unwatch := m.watch()
	defer unwatch.Close()

	if err := m.do(func(c *controller.Controller) error {
		return c.RequestConnect(controller.SplitHost(m.Host), m.Port)
	}); err != nil {
		return err
	}

	if err := awaitConnect(ctx, statuses); err != nil {
		return fmt.Errorf("connect to %s:%s: %w", m.Host, m.Port, err)
	}

	if err := m.do(func(c *controller.Controller) error {
		return c.RequestSend(m.Payload, m.Format)
	}); err != nil {
		return err
	}
	m.Logger.Verbose("payload sent, waiting %s for replies", m.Wait)

	timer := time.NewTimer(m.Wait)
	defer timer.Stop()
	for {
		select {
		case <-timer.C:
			return nil
		case <-ctx.Done():
			return nil
		case st := <-statuses:
			if st.State == transport.StateDisconnected {
				m.Logger.Verbose("connection ended before the wait window closed")
				return nil
			}
		}
	}
}

// errConnectFailed is returned when an attempt ends without connecting.
// The reason has already been shown as a session line.
var errConnectFailed = tcperr.New("connection failed")

// awaitConnect waits for the attempt started by RequestConnect to end.
func awaitConnect(ctx context.Context, statuses <-chan controller.Status) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case st := <-statuses:
			switch st.State {
			case transport.StateConnected:
				return nil
			case transport.StateDisconnected:
				return errConnectFailed
			}
		}
	}
}
