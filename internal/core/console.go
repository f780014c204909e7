package core

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"tcpassist/internal/codec"
	"tcpassist/internal/controller"
)

const consoleHelp = `commands:
  /connect [a.b.c.d] [port]   connect (defaults to the last endpoint)
  /disconnect                 close the connection or cancel the attempt
  /send TEXT                  send TEXT in the current send format
  /format send|recv text|hex  change a display format
  /status                     show the connection status
  /stats                      show transfer statistics
  /help                       show this help
  /quit                       disconnect and exit
any other line is sent as-is in the current send format
`

// ConsoleMode reads commands from stdin, one per line, and drives the
// controller with them until /quit, end of input or cancellation.
type ConsoleMode struct {
	*Runtime

	// Host and Port are the endpoint used by a bare /connect; every
	// /connect with arguments replaces them.
	Host string
	Port string

	SendFormat  codec.Format
	AutoConnect bool
}

// Run starts the loop, optionally connects, then serves console input.
func (m *ConsoleMode) Run(ctx context.Context) (err error) {
	m.start()
	defer func() {
		if serr := m.shutdown(); err == nil {
			err = serr
		}
	}()

	m.Logger.Verbose("console ready, endpoint %s:%s", m.Host, m.Port)
	if m.AutoConnect {
		m.connect(m.Host, m.Port)
	}

	lines := scanLines(m.sess.Stdin)
	for {
		select {
		case <-ctx.Done():
			m.Logger.Verbose("console: %v", ctx.Err())
			return nil
		case line, ok := <-lines:
			if !ok {
				m.Logger.Verbose("console: end of input")
				return nil
			}
			if quit := m.handle(line); quit {
				return nil
			}
		}
	}
}

// scanLines feeds r's lines into a channel that is closed at EOF.  The
// reader goroutine outlives Run if r never returns.
func scanLines(r io.Reader) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			ch <- strings.TrimRight(sc.Text(), "\r")
		}
	}()
	return ch
}

// handle executes one console line and reports whether to quit.
func (m *ConsoleMode) handle(line string) bool {
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		m.send(line)
		return false
	}

	cmd, rest := line, ""
	if i := strings.IndexByte(line, ' '); i >= 0 {
		cmd, rest = line[:i], line[i+1:]
	}
	args := strings.Fields(rest)

	switch cmd {
	case "/quit", "/exit":
		return true
	case "/help":
		m.sess.Printf("%s", consoleHelp)
	case "/connect":
		host, port := m.Host, m.Port
		if len(args) > 0 {
			host = args[0]
		}
		if len(args) > 1 {
			port = args[1]
		}
		m.connect(host, port)
	case "/disconnect":
		m.do(func(c *controller.Controller) error { //nolint:errcheck
			c.RequestDisconnect()
			return nil
		})
	case "/send":
		m.send(rest)
	case "/format":
		m.format(args)
	case "/status":
		var st controller.Status
		m.do(func(c *controller.Controller) error { //nolint:errcheck
			st = c.Status()
			return nil
		})
		m.sess.Status(st)
		m.sess.Printf("endpoint %s:%s, send %s, receive %s\n", m.Host, m.Port, m.SendFormat, m.recvFormat())
	case "/stats":
		m.sess.Printf("%s\n", m.Metrics.JSON())
	default:
		m.sess.Notice(fmt.Sprintf("unknown command %s (try /help)", cmd))
	}
	return false
}

func (m *ConsoleMode) connect(host, port string) {
	m.Host, m.Port = host, port
	err := m.do(func(c *controller.Controller) error {
		return c.RequestConnect(controller.SplitHost(host), port)
	})
	if err != nil {
		m.Logger.Verbose("console: connect %s:%s: %v", host, port, err)
	}
}

func (m *ConsoleMode) send(text string) {
	format := m.SendFormat
	err := m.do(func(c *controller.Controller) error {
		return c.RequestSend(text, format)
	})
	if err != nil {
		m.Logger.Verbose("console: send: %v", err)
	}
}

func (m *ConsoleMode) format(args []string) {
	if len(args) != 2 {
		m.sess.Notice("usage: /format send|recv text|hex")
		return
	}
	f, err := codec.ParseFormat(args[1])
	if err != nil {
		m.sess.Notice(err.Error())
		return
	}
	switch args[0] {
	case "send":
		m.SendFormat = f
	case "recv", "receive":
		m.do(func(c *controller.Controller) error { //nolint:errcheck
			c.SetReceiveFormat(f)
			return nil
		})
	default:
		m.sess.Notice("usage: /format send|recv text|hex")
		return
	}
	m.sess.Printf("%s format: %s\n", args[0], f)
}

func (m *ConsoleMode) recvFormat() (f codec.Format) {
	m.do(func(c *controller.Controller) error { //nolint:errcheck
		f = c.ReceiveFormat()
		return nil
	})
	return f
}
