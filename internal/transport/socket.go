package transport

import (
	"context"
	"net"
	"sync"
	"time"

	"go.uber.org/multierr"
	"inet.af/netaddr"

	tcperr "tcpassist/internal/errors"
	"tcpassist/internal/metrics"
	"tcpassist/util"
)

// Socket defaults.
const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultTxQueueSize    = 64
	DefaultFlushTimeout   = 2 * time.Second
)

// SocketConfig contains socket configuration.
type SocketConfig struct {
	// Direct dials the peer without a proxy.  The default is a TCPDialer.
	Direct Dialer
	// Proxy, if set, is used unless Options.BypassProxy is true.
	Proxy Dialer

	// ConnectTimeout bounds each dial.  The default is 10s.
	ConnectTimeout time.Duration
	// KeepAlivePeriod is the keep-alive probe interval; 0 keeps the OS default.
	KeepAlivePeriod time.Duration
	// TxQueueSize is how many frames Send may queue ahead of the writer.
	// The default is 64.
	TxQueueSize int
	// FlushTimeout bounds how long Disconnect lets queued frames drain.
	// The default is 2s.
	FlushTimeout time.Duration

	// Dispatch runs an event callback on the caller's control thread.
	// The default invokes the callback inline on the socket goroutine,
	// which is only suitable when the Events implementation is
	// goroutine-safe.
	Dispatch func(func())

	Logger  *util.Logger
	Metrics *metrics.Collector
}

func (cfg *SocketConfig) applyDefaults() {
	if cfg.Direct == nil {
		cfg.Direct = &TCPDialer{}
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.TxQueueSize <= 0 {
		cfg.TxQueueSize = DefaultTxQueueSize
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = DefaultFlushTimeout
	}
	if cfg.Dispatch == nil {
		cfg.Dispatch = func(fn func()) { fn() }
	}
	if cfg.Logger == nil {
		cfg.Logger = util.NewLogger(0)
	}
}

// Socket is a Transport over one net.Conn at a time.  A dial goroutine
// runs per attempt; an established connection has a reader goroutine
// and a writer goroutine draining the send queue.
type Socket struct {
	cfg SocketConfig
	wg  sync.WaitGroup

	mu      sync.Mutex
	events  Events
	opts    Options
	state   State
	conn    net.Conn
	tx      chan []byte
	cancel  context.CancelFunc
	abandon bool // Disconnect arrived while dialing
	closing bool // Disconnect arrived while connected
}

var _ Transport = (*Socket)(nil)

// NewSocket creates a disconnected socket.
func NewSocket(cfg SocketConfig) *Socket {
	cfg.applyDefaults()
	return &Socket{
		cfg:  cfg,
		opts: Options{BypassProxy: true},
	}
}

// SetEvents registers the receiver of all subsequent events.
func (s *Socket) SetEvents(ev Events) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = ev
}

// Configure stores options for the next Connect.
func (s *Socket) Configure(opts Options) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opts = opts
}

// State returns the socket's own view of the connection.
func (s *Socket) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect starts dialing ep in the background.  It is ignored unless
// the socket is disconnected.
func (s *Socket) Connect(ep netaddr.IPPort) {
	s.mu.Lock()
	if s.state != StateDisconnected {
		state := s.state
		s.mu.Unlock()
		s.cfg.Logger.Debug("socket: connect %s ignored while %s", ep, state)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ConnectTimeout)
	s.state = StateConnecting
	s.abandon = false
	s.cancel = cancel
	opts := s.opts
	dialer := s.cfg.Direct
	if !opts.BypassProxy && s.cfg.Proxy != nil {
		dialer = s.cfg.Proxy
	}
	s.mu.Unlock()

	s.cfg.Metrics.ConnectAttempt()
	s.wg.Add(1)
	go s.dial(ctx, cancel, dialer, opts, ep.String())
}

// Send queues p for the writer.  It never blocks.
func (s *Socket) Send(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConnected || s.tx == nil {
		return &tcperr.SendError{Kind: tcperr.NotConnected}
	}
	select {
	case s.tx <- p:
		return nil
	default:
		return &tcperr.SendError{Kind: tcperr.QueueFull}
	}
}

// Disconnect abandons a dial in progress, or lets queued frames drain
// and closes an established connection.  The outcome arrives as an
// OnDisconnected event.
func (s *Socket) Disconnect() {
	s.mu.Lock()
	switch s.state {
	case StateConnecting:
		s.abandon = true
		cancel := s.cancel
		s.mu.Unlock()
		if cancel != nil {
			cancel()
		}
	case StateConnected:
		if s.closing {
			s.mu.Unlock()
			return
		}
		s.closing = true
		if s.tx != nil {
			close(s.tx)
			s.tx = nil
		}
		conn := s.conn
		s.mu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(s.cfg.FlushTimeout)) //nolint:errcheck
	default:
		s.mu.Unlock()
	}
}

// Close disconnects, waits for the socket goroutines and releases the
// dialers.
func (s *Socket) Close() error {
	s.Disconnect()
	s.wg.Wait()

	var err error
	err = multierr.Append(err, s.cfg.Direct.Close())
	if s.cfg.Proxy != nil {
		err = multierr.Append(err, s.cfg.Proxy.Close())
	}
	return err
}

// ── goroutines ───────────────────────────────────────────────────────

func (s *Socket) dial(ctx context.Context, cancel context.CancelFunc, dialer Dialer, opts Options, addr string) {
	defer s.wg.Done()
	defer cancel()

	s.cfg.Logger.Verbose("socket: dialing %s", addr)
	conn, err := dialer.Dial(ctx, "tcp", addr)

	s.mu.Lock()
	s.cancel = nil
	if s.abandon {
		s.state = StateDisconnected
		s.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		s.cfg.Logger.Verbose("socket: attempt to %s abandoned", addr)
		s.emit(func(ev Events) { ev.OnDisconnected(CauseAbandoned) })
		return
	}
	if err != nil {
		s.state = StateDisconnected
		s.mu.Unlock()
		te := tcperr.Transport(err, s.cfg.ConnectTimeout)
		s.cfg.Metrics.RecordError(te.Error())
		s.cfg.Logger.Verbose("socket: dial %s: %v", addr, err)
		s.emit(func(ev Events) { ev.OnError(te) })
		return
	}

	if err := applyOptions(conn, opts, s.cfg.KeepAlivePeriod); err != nil {
		s.cfg.Logger.Warn("socket: options on %s: %v", addr, err)
	}
	tx := make(chan []byte, s.cfg.TxQueueSize)
	s.conn = conn
	s.tx = tx
	s.closing = false
	s.state = StateConnected
	s.mu.Unlock()

	s.cfg.Metrics.ConnectionOpened()
	s.cfg.Logger.Verbose("socket: connected %s -> %s", conn.LocalAddr(), conn.RemoteAddr())
	s.emit(func(ev Events) { ev.OnConnected() })

	s.wg.Add(2)
	go s.readLoop(conn, addr)
	go s.writeLoop(conn, tx, addr)
}

func (s *Socket) readLoop(conn net.Conn, addr string) {
	defer s.wg.Done()

	bufp := util.GetBuf()
	defer util.PutBuf(bufp)
	buf := *bufp

	for {
		n, err := conn.Read(buf)
		if n > 0 {
			p := make([]byte, n)
			copy(p, buf[:n])
			s.cfg.Metrics.BytesReceived(int64(n))
			s.cfg.Logger.Debug("socket: read %d bytes from %s", n, addr)
			s.emit(func(ev Events) { ev.OnData(p) })
		}
		if err != nil {
			s.finish(conn, err, addr)
			return
		}
	}
}

func (s *Socket) writeLoop(conn net.Conn, tx <-chan []byte, addr string) {
	defer s.wg.Done()
	defer conn.Close()

	for p := range tx {
		n, err := conn.Write(p)
		s.cfg.Metrics.BytesSent(int64(n))
		if err != nil {
			s.finish(conn, tcperr.Wrap("write", addr, err), addr)
			return
		}
		s.cfg.Logger.Debug("socket: wrote %d bytes to %s", n, addr)
	}
}

// finish tears down conn once and reports how it ended.  Both loops may
// call it; only the first call for a given conn has any effect.
func (s *Socket) finish(conn net.Conn, err error, addr string) {
	s.mu.Lock()
	if s.conn != conn {
		s.mu.Unlock()
		return
	}
	local := s.closing
	s.conn = nil
	s.closing = false
	if s.tx != nil {
		close(s.tx)
		s.tx = nil
	}
	s.state = StateDisconnected
	s.mu.Unlock()

	conn.Close()
	s.cfg.Metrics.ConnectionClosed()

	switch {
	case local:
		s.cfg.Logger.Verbose("socket: %s closed locally", addr)
		s.emit(func(ev Events) { ev.OnDisconnected(CauseLocal) })
	case util.IsClosed(err):
		s.cfg.Logger.Verbose("socket: %s closed by peer", addr)
		s.emit(func(ev Events) { ev.OnDisconnected(CausePeer) })
	default:
		te := tcperr.Transport(err, s.cfg.ConnectTimeout)
		s.cfg.Metrics.RecordError(te.Error())
		s.cfg.Logger.Verbose("socket: %s failed: %v", addr, err)
		s.emit(func(ev Events) { ev.OnError(te) })
	}
}

func (s *Socket) emit(fn func(ev Events)) {
	s.mu.Lock()
	ev := s.events
	s.mu.Unlock()
	if ev == nil {
		return
	}
	s.cfg.Dispatch(func() { fn(ev) })
}
