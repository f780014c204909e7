// Package errors provides domain-specific error types for tcpassist.
//
// Every failure the controller can report belongs to one of three
// families: malformed endpoint input (ValidationError), a refused send
// (SendError) and a transport failure (TransportError).  None of them
// is fatal and none is retried.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"
)

// ── Sentinel errors ──────────────────────────────────────────────────

var (
	ErrTunnelClosed  = errors.New("tunnel is closed")
	ErrNotConnected  = errors.New("not connected")
	ErrTimeout       = errors.New("operation timed out")
	ErrAuthFailed    = errors.New("authentication failed")
	ErrSendQueueFull = errors.New("send queue is full")
)

// ── Validation ───────────────────────────────────────────────────────

// ValidationKind classifies malformed endpoint input.
type ValidationKind int

const (
	// EmptyField means one of the octet or port fields is empty.
	EmptyField ValidationKind = iota
	// OutOfRange means a field is not a decimal number in its range.
	OutOfRange
)

func (k ValidationKind) String() string {
	switch k {
	case EmptyField:
		return "empty field"
	case OutOfRange:
		return "out of range"
	default:
		return fmt.Sprintf("ValidationKind(%d)", int(k))
	}
}

// ValidationError reports a rejected address or port field.
type ValidationError struct {
	Kind  ValidationKind
	Field string // "ip0".."ip3" or "port"
	Value string
}

func (e *ValidationError) Error() string {
	if e.Kind == EmptyField {
		return fmt.Sprintf("%s must not be empty", e.Field)
	}
	return fmt.Sprintf("%s %q is invalid (%s)", e.Field, e.Value, e.Kind)
}

// ── Send ─────────────────────────────────────────────────────────────

// SendKind classifies a refused send request.
type SendKind int

const (
	NotConnected SendKind = iota
	EmptyPayload
	InvalidHex
	QueueFull
)

func (k SendKind) String() string {
	switch k {
	case NotConnected:
		return "not connected"
	case EmptyPayload:
		return "payload is empty"
	case InvalidHex:
		return "invalid hex"
	case QueueFull:
		return "send queue is full"
	default:
		return fmt.Sprintf("SendKind(%d)", int(k))
	}
}

// SendError reports why a payload was not handed to the transport.
type SendError struct {
	Kind SendKind
	Err  error // underlying cause, if any
}

func (e *SendError) Error() string {
	if e.Err != nil && e.Kind == InvalidHex {
		return fmt.Sprintf("send: %s: %v", e.Kind, e.Err)
	}
	return "send: " + e.Kind.String()
}

func (e *SendError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrNotConnected) match a NotConnected SendError.
func (e *SendError) Is(target error) bool {
	switch target {
	case ErrNotConnected:
		return e.Kind == NotConnected
	case ErrSendQueueFull:
		return e.Kind == QueueFull
	}
	return false
}

// ── Transport ────────────────────────────────────────────────────────

// TransportKind classifies a transport failure.
type TransportKind int

const (
	Timeout TransportKind = iota
	Other
)

func (k TransportKind) String() string {
	switch k {
	case Timeout:
		return "timeout"
	case Other:
		return "other"
	default:
		return fmt.Sprintf("TransportKind(%d)", int(k))
	}
}

// TransportError is what the socket reports when a connect attempt or
// an established connection fails.
type TransportError struct {
	Kind    TransportKind
	Timeout time.Duration // connect timeout in effect, for Kind == Timeout
	Err     error
}

func (e *TransportError) Error() string {
	if e.Kind == Timeout {
		return fmt.Sprintf("connection timed out (%s)", e.Timeout)
	}
	if e.Err == nil {
		return "transport error"
	}
	return e.Err.Error()
}

func (e *TransportError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrTimeout) match a Timeout TransportError.
func (e *TransportError) Is(target error) bool {
	return target == ErrTimeout && e.Kind == Timeout
}

// ── Structured error types ───────────────────────────────────────────

// NetworkError represents a failure in a network operation.
type NetworkError struct {
	Op   string // operation: "dial", "write", "read"
	Addr string // network address involved
	Err  error  // underlying error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// SSHError represents an SSH-specific failure with host context.
type SSHError struct {
	Op   string // "handshake", "auth", "hostkey", "dial"
	Host string
	Port int
	Err  error
}

func (e *SSHError) Error() string {
	return fmt.Sprintf("ssh %s %s:%d: %v", e.Op, e.Host, e.Port, e.Err)
}

func (e *SSHError) Unwrap() error { return e.Err }

// ConfigError represents an invalid configuration value.
type ConfigError struct {
	Field   string      // config field name
	Value   interface{} // the invalid value (nil if missing)
	Message string      // human-readable explanation
	Hint    string      // suggestion for the user (optional)
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("config: --%s", e.Field)
	if e.Value != nil {
		msg += fmt.Sprintf("=%v", e.Value)
	}
	msg += ": " + e.Message
	if e.Hint != "" {
		msg += "\n  hint: " + e.Hint
	}
	return msg
}

// ── Constructors ─────────────────────────────────────────────────────

// Wrap creates a NetworkError.
func Wrap(op, addr string, err error) *NetworkError {
	return &NetworkError{Op: op, Addr: addr, Err: err}
}

// WrapSSH creates an SSHError.
func WrapSSH(op, host string, port int, err error) *SSHError {
	return &SSHError{Op: op, Host: host, Port: port, Err: err}
}

// Transport classifies a dial or I/O failure.  Deadline expiry of the
// connect timeout becomes a Timeout; everything else is Other.
func Transport(err error, timeout time.Duration) *TransportError {
	if IsTimeout(err) {
		return &TransportError{Kind: Timeout, Timeout: timeout, Err: err}
	}
	return &TransportError{Kind: Other, Err: err}
}

// ── Classification helpers ───────────────────────────────────────────

// IsTimeout reports whether err is a deadline expiry of any flavour.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) ||
		errors.Is(err, ErrTimeout) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return false
}

// ── Re-exports for convenience ───────────────────────────────────────
//
// These allow callers to use tcpassist/internal/errors as a drop-in
// replacement for the standard library in common operations.

// As is [errors.As].
func As(err error, target interface{}) bool { return errors.As(err, target) }

// Is is [errors.Is].
func Is(err, target error) bool { return errors.Is(err, target) }

// New is [errors.New].
func New(text string) error { return errors.New(text) }

// Unwrap is [errors.Unwrap].
func Unwrap(err error) error { return errors.Unwrap(err) }

// Join is [errors.Join].
func Join(errs ...error) error { return errors.Join(errs...) }
