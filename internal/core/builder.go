package core

import (
	"os"

	"golang.org/x/term"

	"tcpassist/config"
	"tcpassist/internal/controller"
	"tcpassist/internal/loop"
	"tcpassist/internal/metrics"
	"tcpassist/internal/transport"
	"tcpassist/tunnel"
	"tcpassist/util"
)

// Build constructs the appropriate Mode from the given configuration.
// This is the single dispatch point between the CLI and the modes.
func Build(cfg *config.Config, logger *util.Logger) (Mode, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rt := buildRuntime(cfg, logger)

	if cfg.OneShot() {
		return &OneShotMode{
			Runtime: rt,
			Host:    cfg.Host,
			Port:    cfg.Port,
			Payload: cfg.SendData,
			Format:  cfg.SendFormat,
			Wait:    cfg.Wait,
		}, nil
	}

	return &ConsoleMode{
		Runtime:     rt,
		Host:        cfg.Host,
		Port:        cfg.Port,
		SendFormat:  cfg.SendFormat,
		AutoConnect: cfg.AutoConnect,
	}, nil
}

// ── shared helpers ───────────────────────────────────────────────────

// buildRuntime wires loop, socket and controller.  Socket events are
// dispatched onto the loop, where the controller handles them.
func buildRuntime(cfg *config.Config, logger *util.Logger) *Runtime {
	lp := loop.New(logger)
	m := metrics.New()

	sock := transport.NewSocket(transport.SocketConfig{
		Direct:         &transport.TCPDialer{Timeout: cfg.ConnectTimeout},
		Proxy:          buildProxy(cfg, logger),
		ConnectTimeout: cfg.ConnectTimeout,
		Dispatch:       lp.Dispatch,
		Logger:         logger,
		Metrics:        m,
	})

	ctrl := controller.New(sock, controller.Config{
		BypassProxy:   !cfg.TunnelEnabled,
		StrictHex:     cfg.StrictHex,
		ReceiveFormat: cfg.RecvFormat,
		Logger:        logger,
	})

	return &Runtime{
		Loop:       lp,
		Controller: ctrl,
		Metrics:    m,
		Logger:     logger,
		Color:      !cfg.NoColor && term.IsTerminal(int(os.Stdout.Fd())),
	}
}

// buildProxy returns the SSH gateway dialer when a tunnel is
// configured, or nil.
func buildProxy(cfg *config.Config, logger *util.Logger) transport.Dialer {
	if !cfg.TunnelEnabled {
		return nil
	}
	return transport.NewSSHDialer(tunnel.FromConfig(cfg), logger)
}
