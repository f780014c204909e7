// Package transport provides the socket capability the connection
// controller drives: a non-blocking connect / send / disconnect surface
// whose outcomes arrive later as events.  Dialers handle the "how" of
// reaching the peer (plain TCP or through an SSH gateway).
package transport

import (
	"context"
	"fmt"
	"net"

	"inet.af/netaddr"

	tcperr "tcpassist/internal/errors"
)

// Dialer opens outbound network connections.  Implementations include
// a plain TCP dialer and an SSH-tunnelled dialer that routes traffic
// through an encrypted gateway.
type Dialer interface {
	// Dial establishes a connection to the given network address.
	Dial(ctx context.Context, network, address string) (net.Conn, error)

	// Close releases any long-lived resources held by the dialer
	// (e.g. an SSH session).  Stateless dialers return nil.
	Close() error
}

// State is the lifecycle of the single connection.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// DisconnectCause tells who ended a connection or attempt.
type DisconnectCause int

const (
	// CausePeer means the remote side closed or reset the connection.
	CausePeer DisconnectCause = iota
	// CauseLocal means Disconnect was called on an established connection.
	CauseLocal
	// CauseAbandoned means Disconnect was called while still dialing.
	CauseAbandoned
)

func (c DisconnectCause) String() string {
	switch c {
	case CausePeer:
		return "closed by peer"
	case CauseLocal:
		return "local request"
	case CauseAbandoned:
		return "attempt abandoned"
	default:
		return fmt.Sprintf("DisconnectCause(%d)", int(c))
	}
}

// Options are the socket settings applied to the next connect.
type Options struct {
	// BypassProxy dials directly even when a proxy dialer is configured.
	BypassProxy bool
	// NoDelay disables Nagle's algorithm (TCP_NODELAY).
	NoDelay bool
	// KeepAlive enables TCP keep-alive probes.
	KeepAlive bool
}

// Events receives transport outcomes.  A Transport delivers them one
// at a time, in order, never concurrently with each other.
type Events interface {
	OnConnected()
	OnDisconnected(cause DisconnectCause)
	OnError(err *tcperr.TransportError)
	OnData(p []byte)
}

// Transport is the capability the controller owns.  None of the
// methods block on the network.
//
// After Connect, exactly one of OnConnected, OnError or
// OnDisconnected(CauseAbandoned) fires for that attempt.  After an
// established connection ends, exactly one OnDisconnected fires.
type Transport interface {
	SetEvents(ev Events)
	Configure(opts Options)
	Connect(ep netaddr.IPPort)
	Send(p []byte) error
	Disconnect()
	State() State
	Close() error
}
