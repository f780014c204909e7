// Package config defines the runtime configuration for tcpassist and
// provides helpers for parsing tunnel specifications.
package config

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"tcpassist/internal/codec"
	tcperr "tcpassist/internal/errors"
)

// Config holds every tuneable for a single tcpassist session.
type Config struct {
	// ── Endpoint ─────────────────────────────────────────────────────
	// Host and Port are kept as typed text; the connection controller
	// validates them when a connect is requested.
	Host           string
	Port           string
	ConnectTimeout time.Duration
	AutoConnect    bool

	// ── Payload ──────────────────────────────────────────────────────
	SendFormat codec.Format
	RecvFormat codec.Format
	StrictHex  bool

	// ── One-shot ─────────────────────────────────────────────────────
	SendData string        // -s: send once, print replies, exit
	Wait     time.Duration // how long to collect replies after sending

	// ── SSH tunnel ───────────────────────────────────────────────────
	TunnelSpec     string // raw user@host[:port] from -T
	TunnelEnabled  bool
	TunnelUser     string
	TunnelHost     string
	TunnelPort     int
	SSHKeyPath     string
	SSHPassword    bool // true → prompt interactively
	UseSSHAgent    bool
	SSHAgentSocket string // unix socket of the agent; empty disables it
	StrictHostKey  bool
	KnownHostsPath string

	// ── Output ───────────────────────────────────────────────────────
	Verbose    int
	Timestamps bool // prefix diagnostics with the time of day
	NoColor    bool
	LogJSON    bool
}

// OneShot reports whether the session sends one payload and exits.
func (c *Config) OneShot() bool { return c.SendData != "" }

// ── Tunnel-spec parser ───────────────────────────────────────────────

// tunnelRe matches [user@]host[:port].
var tunnelRe = regexp.MustCompile(`^(?:([^@]+)@)?([^:]+)(?::(\d+))?$`)

// ParseTunnelSpec extracts user, host, and port from a string such as
// "admin@bastion.example.com:2222".  Port defaults to 22.
func ParseTunnelSpec(spec string) (user, host string, port int, err error) {
	m := tunnelRe.FindStringSubmatch(spec)
	if m == nil {
		return "", "", 0, fmt.Errorf("invalid tunnel spec %q – expected [user@]host[:port]", spec)
	}
	user = m[1]
	host = m[2]
	port = DefaultSSHPort
	if m[3] != "" {
		port, err = strconv.Atoi(m[3])
		if err != nil || port < 1 || port > 65535 {
			return "", "", 0, fmt.Errorf("invalid tunnel port %q", m[3])
		}
	}
	if host == "" {
		return "", "", 0, fmt.Errorf("tunnel host is required")
	}
	return user, host, port, nil
}

// ApplyTunnelSpec parses TunnelSpec, if set, into the Tunnel* fields.
func (c *Config) ApplyTunnelSpec() error {
	if c.TunnelSpec == "" {
		return nil
	}
	user, host, port, err := ParseTunnelSpec(c.TunnelSpec)
	if err != nil {
		return &tcperr.ConfigError{
			Field:   "tunnel",
			Value:   c.TunnelSpec,
			Message: err.Error(),
		}
	}
	c.TunnelEnabled = true
	c.TunnelUser = user
	c.TunnelHost = host
	c.TunnelPort = port
	return nil
}

// ── Validation ───────────────────────────────────────────────────────

// Validate checks that the configuration is internally consistent.
// Every failure is a *errors.ConfigError naming the offending flag.
func (c *Config) Validate() error {
	if c.ConnectTimeout <= 0 {
		return &tcperr.ConfigError{
			Field:   "timeout",
			Value:   c.ConnectTimeout,
			Message: "connect timeout must be positive",
		}
	}
	if c.Wait < 0 {
		return &tcperr.ConfigError{
			Field:   "wait",
			Value:   c.Wait,
			Message: "wait must not be negative",
		}
	}
	if c.TunnelEnabled {
		if c.TunnelHost == "" {
			return &tcperr.ConfigError{Field: "tunnel", Message: "tunnel host is required"}
		}
		if c.TunnelUser == "" {
			return &tcperr.ConfigError{
				Field:   "tunnel",
				Value:   c.TunnelSpec,
				Message: "tunnel user is required",
				Hint:    "use -T user@host[:port]",
			}
		}
	} else if c.SSHKeyPath != "" || c.SSHPassword || c.UseSSHAgent {
		return &tcperr.ConfigError{
			Field:   "tunnel",
			Message: "SSH authentication options need a tunnel",
			Hint:    "add -T user@host[:port]",
		}
	}

	return nil
}
