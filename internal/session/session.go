// Package session binds one controller to the user's terminal: it
// renders the controller's notifications (status, log lines, notices)
// onto an output stream and carries the I/O endpoints a mode reads
// commands from.
//
// Sessions decouple the controller from concrete I/O sources.  The
// controller doesn't know whether its lines end up on os.Stdout or in
// a test buffer; it only emits them.
package session

import (
	"fmt"
	"io"
	"sync"

	"go.uber.org/multierr"

	"tcpassist/internal/controller"
	"tcpassist/util"
)

// ANSI escapes used for styled output.
const (
	ansiReset  = "\x1b[0m"
	ansiBlue   = "\x1b[34m"
	ansiRed    = "\x1b[31m"
	ansiYellow = "\x1b[33m"
)

// Session encapsulates the runtime I/O context of one controller.
// Output methods are safe for concurrent use.
type Session struct {
	Stdin  io.Reader
	Stdout io.Writer
	Logger *util.Logger
	// Color enables ANSI styling of status lines and notices.
	Color bool

	mu sync.Mutex
}

// New creates a Session bound to the given I/O pair.
func New(stdin io.Reader, stdout io.Writer, logger *util.Logger, color bool) *Session {
	return &Session{
		Stdin:  stdin,
		Stdout: stdout,
		Logger: logger,
		Color:  color,
	}
}

// Attach subscribes the session to c's notifications.  Closing the
// returned io.Closer detaches it.
func (s *Session) Attach(c *controller.Controller) io.Closer {
	return closers{
		c.OnStatus(s.Status),
		c.OnLine(s.Line),
		c.OnNotice(s.Notice),
	}
}

type closers []io.Closer

func (cs closers) Close() (err error) {
	for _, c := range cs {
		err = multierr.Append(err, c.Close())
	}
	return err
}

// Status renders a status change as "[connected]", colored by style.
func (s *Session) Status(st controller.Status) {
	s.println(styleColor(st.Style), "["+st.String()+"]")
}

// Line renders one session log line.
func (s *Session) Line(line string) {
	s.println("", line)
}

// Notice renders a user-facing message as "! message".
func (s *Session) Notice(msg string) {
	s.println(ansiYellow, "! "+msg)
}

// Printf writes unstyled text, e.g. help or statistics.
func (s *Session) Printf(format string, args ...interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintf(s.Stdout, format, args...); err != nil {
		s.Logger.Debug("session: write: %v", err)
	}
}

func (s *Session) println(color, text string) {
	if s.Color && color != "" {
		text = color + text + ansiReset
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := io.WriteString(s.Stdout, text+"\n"); err != nil {
		s.Logger.Debug("session: write: %v", err)
	}
}

func styleColor(st controller.Style) string {
	switch st {
	case controller.StylePending:
		return ansiBlue
	case controller.StyleActive:
		return ansiRed
	default:
		return ""
	}
}
