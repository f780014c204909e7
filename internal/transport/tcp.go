package transport

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.uber.org/multierr"
)

// TCPDialer establishes plain TCP connections, optionally binding to a
// specific source port.
type TCPDialer struct {
	Timeout   time.Duration
	LocalPort int // optional source-port binding (0 = ephemeral)
}

// Dial connects to address over TCP.
func (d *TCPDialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	dialer := net.Dialer{Timeout: d.Timeout}

	if d.LocalPort > 0 {
		local := fmt.Sprintf(":%d", d.LocalPort)
		a, err := net.ResolveTCPAddr(network, local)
		if err != nil {
			return nil, fmt.Errorf("resolve local addr: %w", err)
		}
		dialer.LocalAddr = a
	}

	return dialer.DialContext(ctx, network, address)
}

// Close is a no-op for stateless TCP dialers.
func (d *TCPDialer) Close() error { return nil }

// applyOptions sets TCP_NODELAY and SO_KEEPALIVE on a freshly dialed
// connection.  Channels forwarded through an SSH gateway are not TCP
// sockets on this side and are left alone.
func applyOptions(conn net.Conn, opts Options, keepAlivePeriod time.Duration) error {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return nil
	}
	err := multierr.Append(tc.SetNoDelay(opts.NoDelay), tc.SetKeepAlive(opts.KeepAlive))
	if opts.KeepAlive && keepAlivePeriod > 0 {
		err = multierr.Append(err, tc.SetKeepAlivePeriod(keepAlivePeriod))
	}
	return err
}
