// Package cmd wires up the CLI flags and dispatches to the core modes.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"tcpassist/config"
	"tcpassist/internal/codec"
	"tcpassist/internal/core"
	"tcpassist/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X tcpassist/cmd.version=2.0.0"
var version = "1.0.0" //nolint:gochecknoglobals

// usageOut is where --help and --version print.  Tests redirect it.
var usageOut io.Writer = os.Stderr //nolint:gochecknoglobals

// Execute parses args and runs the appropriate tcpassist mode.
func Execute(ctx context.Context, args []string) error {
	cfg := config.Default()
	config.LoadFromEnv(cfg)

	fs := flag.NewFlagSet("tcpassist", flag.ContinueOnError)
	fs.SetOutput(usageOut)

	// ── endpoint ─────────────────────────────────────────────────
	fs.StringVar(&cfg.Host, "host", cfg.Host, "Server IPv4 address (a.b.c.d)")
	fs.StringVarP(&cfg.Port, "port", "p", cfg.Port, "Server port")
	timeoutSec := int(cfg.ConnectTimeout / time.Second)
	fs.IntVarP(&timeoutSec, "timeout", "w", timeoutSec, "Connect timeout in seconds")
	fs.BoolVarP(&cfg.AutoConnect, "connect", "c", false, "Connect at startup")

	// ── payload ──────────────────────────────────────────────────
	sendFormat := cfg.SendFormat.String()
	recvFormat := cfg.RecvFormat.String()
	fs.StringVar(&sendFormat, "send-format", sendFormat, "Send format: text or hex")
	fs.StringVar(&recvFormat, "recv-format", recvFormat, "Receive display format: text or hex")
	fs.BoolVar(&cfg.StrictHex, "strict-hex", cfg.StrictHex, "Reject hex input with invalid digit pairs")

	// ── one-shot ─────────────────────────────────────────────────
	fs.StringVarP(&cfg.SendData, "send", "s", "", "Send DATA once, print replies, then exit")
	fs.DurationVar(&cfg.Wait, "wait", cfg.Wait, "How long --send waits for replies")

	// ── SSH tunnel ───────────────────────────────────────────────
	fs.StringVarP(&cfg.TunnelSpec, "tunnel", "T", cfg.TunnelSpec, "SSH tunnel via user@host[:port]")
	fs.StringVar(&cfg.SSHKeyPath, "ssh-key", cfg.SSHKeyPath, "SSH private key file")
	fs.BoolVar(&cfg.SSHPassword, "ssh-password", cfg.SSHPassword, "Prompt for SSH password")
	fs.BoolVar(&cfg.UseSSHAgent, "ssh-agent", cfg.UseSSHAgent, "Use SSH agent")
	fs.StringVar(&cfg.SSHAgentSocket, "ssh-agent-socket", cfg.SSHAgentSocket, "SSH agent socket (default $SSH_AUTH_SOCK)")
	fs.BoolVar(&cfg.StrictHostKey, "strict-hostkey", cfg.StrictHostKey, "Verify SSH host keys")
	fs.StringVar(&cfg.KnownHostsPath, "known-hosts", cfg.KnownHostsPath, "Custom known_hosts path")

	// ── output ───────────────────────────────────────────────────
	fs.CountVarP(&cfg.Verbose, "verbose", "v", "Increase verbosity (repeatable)")
	fs.BoolVar(&cfg.Timestamps, "timestamps", cfg.Timestamps, "Prefix diagnostics with the time (always on at -vvv)")
	fs.BoolVar(&cfg.NoColor, "no-color", cfg.NoColor, "Disable colored status output")
	fs.BoolVar(&cfg.LogJSON, "log-json", cfg.LogJSON, "Write diagnostics as JSON")

	var showVersion, showHelp, dryRun bool
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&showHelp, "help", "h", false, "Show this help")
	fs.BoolVar(&dryRun, "dry-run", false, "Validate flags and exit")

	fs.Usage = func() { printUsage(fs) }

	// ── parse ────────────────────────────────────────────────────
	if err := fs.Parse(args); err != nil {
		return err
	}

	if showHelp {
		printUsage(fs)
		return nil
	}
	if showVersion {
		fmt.Fprintf(usageOut, "tcpassist %s\n", version)
		return nil
	}

	cfg.ConnectTimeout = time.Duration(timeoutSec) * time.Second

	var err error
	if cfg.SendFormat, err = codec.ParseFormat(sendFormat); err != nil {
		return fmt.Errorf("--send-format: %w", err)
	}
	if cfg.RecvFormat, err = codec.ParseFormat(recvFormat); err != nil {
		return fmt.Errorf("--recv-format: %w", err)
	}

	// ── positional arguments ─────────────────────────────────────
	if err := parsePositional(cfg, fs.Args()); err != nil {
		return err
	}

	// ── tunnel spec ──────────────────────────────────────────────
	if err := cfg.ApplyTunnelSpec(); err != nil {
		return err
	}

	// ── validate ─────────────────────────────────────────────────
	if err := cfg.Validate(); err != nil {
		return err
	}
	if dryRun {
		return nil
	}

	// ── build components ─────────────────────────────────────────
	mode, err := core.Build(cfg, newLogger(cfg))
	if err != nil {
		return err
	}
	return mode.Run(ctx)
}

// ── helpers ──────────────────────────────────────────────────────────

// newLogger writes diagnostics to stderr at cfg's verbosity.  Debug
// level always carries timestamps.
func newLogger(cfg *config.Config) *util.Logger {
	logger := util.NewLogger(cfg.Verbose)
	if cfg.Timestamps {
		logger.SetTimestamps(true)
	}
	logger.SetJSON(cfg.LogJSON)
	return logger
}

// parsePositional accepts [a.b.c.d [port]] and overrides --host/--port.
func parsePositional(cfg *config.Config, remaining []string) error {
	switch len(remaining) {
	case 0:
	case 1:
		cfg.Host = remaining[0]
	case 2:
		cfg.Host = remaining[0]
		cfg.Port = remaining[1]
	default:
		return fmt.Errorf("too many arguments (use --help for usage)")
	}
	return nil
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(usageOut, `tcpassist – TCP debugging assistant v%s

Connects to one IPv4 TCP server, sends text or hex and shows what
comes back.

Usage:
  tcpassist [options] [a.b.c.d [port]]            Interactive console
  tcpassist -s DATA [options] [a.b.c.d [port]]    Send once and exit
  tcpassist -T user@gateway [options] a.b.c.d port  Through SSH

Options:
`, version)
	fs.PrintDefaults()
	fmt.Fprintf(usageOut, `
Examples:
  tcpassist -c 192.168.0.200 7000                 Connect at startup
  tcpassist --send-format hex -s "01 03 00 00"    Send four bytes
  tcpassist --recv-format hex -s ping 10.0.0.5 80 Show reply as hex
  tcpassist -T admin@bastion 10.1.2.3 502         Through a jump host
`)
}
