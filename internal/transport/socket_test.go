package transport

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"inet.af/netaddr"

	tcperr "tcpassist/internal/errors"
	"tcpassist/internal/metrics"
	"tcpassist/util"
)

// ── helpers ──────────────────────────────────────────────────────────

type event struct {
	kind  string // "connected", "disconnected", "error", "data"
	cause DisconnectCause
	err   *tcperr.TransportError
	data  []byte
}

// recorder is a goroutine-safe Events that funnels everything into a
// channel so tests can wait for the next event.
type recorder struct {
	ch chan event
}

func newRecorder() *recorder { return &recorder{ch: make(chan event, 64)} }

func (r *recorder) OnConnected() { r.ch <- event{kind: "connected"} }
func (r *recorder) OnDisconnected(c DisconnectCause) {
	r.ch <- event{kind: "disconnected", cause: c}
}
func (r *recorder) OnError(err *tcperr.TransportError) { r.ch <- event{kind: "error", err: err} }
func (r *recorder) OnData(p []byte)                    { r.ch <- event{kind: "data", data: p} }

func (r *recorder) next(t *testing.T) event {
	t.Helper()
	select {
	case ev := <-r.ch:
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for socket event")
		return event{}
	}
}

type dialFunc func(ctx context.Context, network, address string) (net.Conn, error)

func (f dialFunc) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	return f(ctx, network, address)
}
func (f dialFunc) Close() error { return nil }

// blockingDialer never completes until its context ends.
var blockingDialer = dialFunc(func(ctx context.Context, _, _ string) (net.Conn, error) {
	<-ctx.Done()
	return nil, ctx.Err()
})

func listen(t *testing.T) (net.Listener, netaddr.IPPort) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	port := ln.Addr().(*net.TCPAddr).Port
	return ln, netaddr.IPPortFrom(netaddr.IPv4(127, 0, 0, 1), uint16(port))
}

func mustEndpoint(s string) netaddr.IPPort {
	return netaddr.MustParseIPPort(s)
}

func newTestSocket(cfg SocketConfig) (*Socket, *recorder) {
	if cfg.Logger == nil {
		cfg.Logger = util.NewLogger(0)
	}
	s := NewSocket(cfg)
	rec := newRecorder()
	s.SetEvents(rec)
	return s, rec
}

// ── lifecycle ────────────────────────────────────────────────────────

func TestSocket_ConnectSendReceiveDisconnect(t *testing.T) {
	assert, require := assert.New(t), require.New(t)
	ln, ep := listen(t)

	received := make(chan []byte, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		conn.Write([]byte("AB")) //nolint:errcheck
		buf := make([]byte, 16)
		n, _ := io.ReadFull(conn, buf[:5])
		received <- buf[:n]
		io.Copy(io.Discard, conn) //nolint:errcheck
	}()

	m := metrics.New()
	s, rec := newTestSocket(SocketConfig{Metrics: m})
	s.Configure(Options{BypassProxy: true, NoDelay: true, KeepAlive: true})
	s.Connect(ep)

	require.Equal("connected", rec.next(t).kind)
	assert.Equal(StateConnected, s.State())

	ev := rec.next(t)
	require.Equal("data", ev.kind)
	assert.Equal([]byte("AB"), ev.data)

	require.NoError(s.Send([]byte("Hello")))
	select {
	case got := <-received:
		assert.Equal([]byte("Hello"), got)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not receive payload")
	}

	s.Disconnect()
	ev = rec.next(t)
	require.Equal("disconnected", ev.kind)
	assert.Equal(CauseLocal, ev.cause)
	assert.Equal(StateDisconnected, s.State())

	assert.EqualValues(1, m.ConnectAttempts())
	assert.EqualValues(0, m.ActiveConnections())
	assert.EqualValues(2, m.TotalBytesIn())
	assert.EqualValues(5, m.TotalBytesOut())
	assert.NoError(s.Close())
}

func TestSocket_PeerClose(t *testing.T) {
	ln, ep := listen(t)
	go func() {
		if conn, err := ln.Accept(); err == nil {
			conn.Close()
		}
	}()

	s, rec := newTestSocket(SocketConfig{})
	s.Connect(ep)

	require.Equal(t, "connected", rec.next(t).kind)
	ev := rec.next(t)
	require.Equal(t, "disconnected", ev.kind)
	assert.Equal(t, CausePeer, ev.cause)
	assert.Equal(t, StateDisconnected, s.State())
}

func TestSocket_Refused(t *testing.T) {
	port, err := util.FindFreePort()
	require.NoError(t, err)

	s, rec := newTestSocket(SocketConfig{})
	s.Connect(netaddr.IPPortFrom(netaddr.IPv4(127, 0, 0, 1), uint16(port)))

	ev := rec.next(t)
	require.Equal(t, "error", ev.kind)
	assert.Equal(t, tcperr.Other, ev.err.Kind)
	assert.Equal(t, StateDisconnected, s.State())
}

func TestSocket_ConnectTimeout(t *testing.T) {
	s, rec := newTestSocket(SocketConfig{
		Direct:         blockingDialer,
		ConnectTimeout: 50 * time.Millisecond,
	})
	s.Connect(netaddr.IPPortFrom(netaddr.IPv4(192, 168, 0, 200), 7000))
	assert.Equal(t, StateConnecting, s.State())

	ev := rec.next(t)
	require.Equal(t, "error", ev.kind)
	assert.Equal(t, tcperr.Timeout, ev.err.Kind)
	assert.Equal(t, "connection timed out (50ms)", ev.err.Error())
}

func TestSocket_AbandonWhileConnecting(t *testing.T) {
	s, rec := newTestSocket(SocketConfig{Direct: blockingDialer})
	s.Connect(netaddr.IPPortFrom(netaddr.IPv4(192, 168, 0, 200), 7000))

	// A second connect while dialing is ignored.
	s.Connect(netaddr.IPPortFrom(netaddr.IPv4(192, 168, 0, 201), 7000))

	s.Disconnect()
	ev := rec.next(t)
	require.Equal(t, "disconnected", ev.kind)
	assert.Equal(t, CauseAbandoned, ev.cause)
	assert.Equal(t, StateDisconnected, s.State())

	select {
	case extra := <-rec.ch:
		t.Fatalf("unexpected extra event %+v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSocket_SendWhileDisconnected(t *testing.T) {
	s, _ := newTestSocket(SocketConfig{})
	err := s.Send([]byte("x"))
	assert.ErrorIs(t, err, tcperr.ErrNotConnected)
}

func TestSocket_QueueFull(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close() // nobody reads: the writer blocks on the first frame

	s, rec := newTestSocket(SocketConfig{
		Direct:       dialFunc(func(context.Context, string, string) (net.Conn, error) { return local, nil }),
		TxQueueSize:  1,
		FlushTimeout: 20 * time.Millisecond,
	})
	s.Connect(netaddr.IPPortFrom(netaddr.IPv4(10, 0, 0, 1), 7000))
	require.Equal(t, "connected", rec.next(t).kind)

	var err error
	for i := 0; i < 10 && err == nil; i++ {
		err = s.Send([]byte("frame"))
	}
	assert.ErrorIs(t, err, tcperr.ErrSendQueueFull)

	s.Disconnect()
	ev := rec.next(t)
	require.Equal(t, "disconnected", ev.kind)
	assert.Equal(t, CauseLocal, ev.cause)
}

func TestSocket_ProxySelection(t *testing.T) {
	var direct, proxied int
	mk := func(n *int) Dialer {
		return dialFunc(func(context.Context, string, string) (net.Conn, error) {
			*n++
			return nil, io.ErrUnexpectedEOF
		})
	}
	s, rec := newTestSocket(SocketConfig{Direct: mk(&direct), Proxy: mk(&proxied)})
	ep := netaddr.IPPortFrom(netaddr.IPv4(10, 0, 0, 1), 7000)

	s.Configure(Options{BypassProxy: true})
	s.Connect(ep)
	require.Equal(t, "error", rec.next(t).kind)

	s.Configure(Options{BypassProxy: false})
	s.Connect(ep)
	require.Equal(t, "error", rec.next(t).kind)

	assert.Equal(t, 1, direct)
	assert.Equal(t, 1, proxied)
}

func TestSocket_DispatchIsUsed(t *testing.T) {
	var queued []func()
	s, rec := newTestSocket(SocketConfig{
		Direct:   dialFunc(func(context.Context, string, string) (net.Conn, error) { return nil, io.ErrUnexpectedEOF }),
		Dispatch: func(fn func()) { queued = append(queued, fn) },
	})
	s.Connect(netaddr.IPPortFrom(netaddr.IPv4(10, 0, 0, 1), 7000))
	s.wg.Wait()

	require.Len(t, queued, 1)
	assert.Empty(t, rec.ch, "event must not run before dispatch")
	queued[0]()
	assert.Equal(t, "error", rec.next(t).kind)
}
