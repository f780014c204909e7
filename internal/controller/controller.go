// Package controller holds the connection controller: the piece that
// sits between the user's requests and one Transport.  It validates
// address and port input, turns typed text into payload bytes, reacts
// to transport events and tells the presentation layer what to show
// through three notifications: status, log line and notice.
//
// A Controller is not safe for concurrent use.  All of its methods,
// including the transport event handlers, must run on one goroutine
// (the event loop).
package controller

import (
	"io"

	"github.com/tul/emission"

	"tcpassist/internal/codec"
	tcperr "tcpassist/internal/errors"
	"tcpassist/internal/transport"
	"tcpassist/util"
)

type event string

const (
	evtStatus event = "status"
	evtLine   event = "line"
	evtNotice event = "notice"
)

// Log lines and notices.
const (
	lineConnecting   = "connecting to server..."
	lineConnected    = "connected to server"
	lineDisconnected = "disconnected"
	lineError        = "error: "
	lineReceived     = "received: "
	lineReceivedHex  = "received (HEX): "

	noticeAlreadyConnected = "already connected"
	noticeInProgress       = "connection already in progress"
	noticeCancelled        = "connection attempt cancelled"
	noticeNotConnected     = "not connected"
)

// Config contains controller configuration.
type Config struct {
	// BypassProxy is passed to the transport with every connect.
	BypassProxy bool
	// StrictHex makes a hex send fail on any invalid digit pair instead
	// of dropping the pair.
	StrictHex bool
	// ReceiveFormat is the initial display format for received bytes.
	ReceiveFormat codec.Format

	Logger *util.Logger
}

// Controller drives one Transport on behalf of the user.
type Controller struct {
	cfg     Config
	tr      transport.Transport
	emitter *emission.Emitter

	state      transport.State
	recvFormat codec.Format
}

var _ transport.Events = (*Controller)(nil)

// New creates a Controller that exclusively owns tr and registers
// itself as tr's event receiver.
func New(tr transport.Transport, cfg Config) *Controller {
	if cfg.Logger == nil {
		cfg.Logger = util.NewLogger(0)
	}
	c := &Controller{
		cfg:        cfg,
		tr:         tr,
		emitter:    emission.NewEmitter(),
		state:      transport.StateDisconnected,
		recvFormat: cfg.ReceiveFormat,
	}
	tr.SetEvents(c)
	return c
}

// ── Subscriptions ────────────────────────────────────────────────────

// OnStatus registers a callback for status changes.
// Returns an io.Closer that cancels the callback registration.
func (c *Controller) OnStatus(cb func(st Status)) io.Closer {
	return c.on(evtStatus, cb)
}

// OnLine registers a callback for lines appended to the session log.
// Returns an io.Closer that cancels the callback registration.
func (c *Controller) OnLine(cb func(line string)) io.Closer {
	return c.on(evtLine, cb)
}

// OnNotice registers a callback for one-line user-facing messages.
// Returns an io.Closer that cancels the callback registration.
func (c *Controller) OnNotice(cb func(msg string)) io.Closer {
	return c.on(evtNotice, cb)
}

func (c *Controller) on(evt event, listener interface{}) io.Closer {
	h := c.emitter.On(evt, listener)
	return canceler{c.emitter, evt, h}
}

// canceler removes one listener by handle, so two registrations of the
// same function are removed independently.
type canceler struct {
	emitter *emission.Emitter
	event   event
	handle  emission.ListenerHandle
}

func (cl canceler) Close() error {
	cl.emitter.RemoveListener(cl.event, cl.handle)
	return nil
}

// ── Accessors ────────────────────────────────────────────────────────

// State returns the connection state as the controller sees it.
func (c *Controller) State() transport.State { return c.state }

// Status returns the current status.
func (c *Controller) Status() Status { return StatusOf(c.state) }

// ReceiveFormat returns the display format for received bytes.
func (c *Controller) ReceiveFormat() codec.Format { return c.recvFormat }

// SetReceiveFormat changes the display format for bytes received from
// now on.
func (c *Controller) SetReceiveFormat(f codec.Format) { c.recvFormat = f }

// ── User requests ────────────────────────────────────────────────────

// RequestConnect validates the endpoint fields and starts a connect.
// A rejected endpoint is returned as a *errors.ValidationError and also
// raised as a notice.  Requests made while connected or connecting only
// raise a notice.
func (c *Controller) RequestConnect(octets [4]string, port string) error {
	switch c.state {
	case transport.StateConnected:
		c.notice(noticeAlreadyConnected)
		return nil
	case transport.StateConnecting:
		c.notice(noticeInProgress)
		c.setState(transport.StateConnecting)
		return nil
	}

	ep, err := ParseEndpoint(octets, port)
	if err != nil {
		c.cfg.Logger.Verbose("controller: connect rejected: %v", err)
		c.notice(err.Error())
		return err
	}

	c.tr.Configure(transport.Options{
		BypassProxy: c.cfg.BypassProxy,
		NoDelay:     true,
		KeepAlive:   true,
	})
	c.setState(transport.StateConnecting)
	c.line(lineConnecting)
	c.cfg.Logger.Verbose("controller: connecting to %s", ep)
	c.tr.Connect(ep.IPPort)
	return nil
}

// RequestDisconnect closes the connection, or abandons the attempt in
// progress.  The resulting state change arrives as a transport event.
func (c *Controller) RequestDisconnect() {
	switch c.state {
	case transport.StateConnected:
		c.cfg.Logger.Verbose("controller: disconnecting")
		c.tr.Disconnect()
	case transport.StateConnecting:
		c.cfg.Logger.Verbose("controller: cancelling connect")
		c.tr.Disconnect()
		c.notice(noticeCancelled)
	default:
		c.notice(noticeNotConnected)
	}
}

// RequestSend converts text according to format and hands the bytes to
// the transport.  Every refusal is a *errors.SendError and is also
// raised as a notice.
func (c *Controller) RequestSend(text string, format codec.Format) error {
	err := c.send(text, format)
	if err != nil {
		c.cfg.Logger.Verbose("controller: %v", err)
		c.notice(err.Error())
	}
	return err
}

func (c *Controller) send(text string, format codec.Format) error {
	if c.state != transport.StateConnected {
		return &tcperr.SendError{Kind: tcperr.NotConnected}
	}
	if text == "" {
		return &tcperr.SendError{Kind: tcperr.EmptyPayload}
	}

	payload, err := codec.Encode(text, format, c.cfg.StrictHex)
	if err != nil {
		return &tcperr.SendError{Kind: tcperr.InvalidHex, Err: err}
	}
	if len(payload) == 0 {
		return &tcperr.SendError{Kind: tcperr.EmptyPayload}
	}

	if err := c.tr.Send(payload); err != nil {
		return err
	}
	c.cfg.Logger.Debug("controller: queued %d bytes (%s)", len(payload), format)
	return nil
}

// Close disconnects and releases the transport.  It blocks until the
// transport's goroutines have exited.
func (c *Controller) Close() error {
	return c.tr.Close()
}

// ── Transport events ─────────────────────────────────────────────────

// OnConnected implements transport.Events.
func (c *Controller) OnConnected() {
	c.state = transport.StateConnected
	c.line(lineConnected)
	c.setState(transport.StateConnected)
}

// OnDisconnected implements transport.Events.
func (c *Controller) OnDisconnected(cause transport.DisconnectCause) {
	c.line(lineDisconnected + " (" + cause.String() + ")")
	c.setState(transport.StateDisconnected)
}

// OnError implements transport.Events.
func (c *Controller) OnError(err *tcperr.TransportError) {
	c.line(lineError + err.Error())
	c.setState(transport.StateDisconnected)
}

// OnData implements transport.Events.
func (c *Controller) OnData(p []byte) {
	c.DataReceived(p, c.recvFormat)
}

// DataReceived renders p as one log line in format f.
func (c *Controller) DataReceived(p []byte, f codec.Format) {
	if f == codec.Hex {
		c.line(lineReceivedHex + codec.HexEncode(p))
		return
	}
	c.line(lineReceived + codec.Decode(p, codec.Text))
}

// ── Emission ─────────────────────────────────────────────────────────

func (c *Controller) setState(st transport.State) {
	c.state = st
	c.emitter.EmitSync(evtStatus, StatusOf(st))
}

func (c *Controller) line(s string) {
	c.emitter.EmitSync(evtLine, s)
}

func (c *Controller) notice(s string) {
	c.emitter.EmitSync(evtNotice, s)
}
