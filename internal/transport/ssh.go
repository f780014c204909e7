package transport

import (
	"context"
	"fmt"
	"net"

	"tcpassist/tunnel"
	"tcpassist/util"
)

// SSHDialer routes connections through an SSH gateway.  The tunnel is
// connected lazily on the first Dial, reused by later connects, and
// re-established if the gateway dropped in between.
type SSHDialer struct {
	manager *tunnel.Manager
	config  *tunnel.SSHConfig
	logger  *util.Logger
}

// NewSSHDialer creates a dialer that forwards connections through an
// SSH tunnel.  The tunnel is not connected until the first Dial.
func NewSSHDialer(cfg *tunnel.SSHConfig, logger *util.Logger) *SSHDialer {
	return &SSHDialer{
		manager: tunnel.NewManager(tunnel.NewSSHTunnel(cfg, logger), logger),
		config:  cfg,
		logger:  logger,
	}
}

// Dial connects to address through the SSH tunnel, establishing the
// tunnel first if it is not up.
func (d *SSHDialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	d.logger.Verbose("using SSH tunnel %s@%s:%d", d.config.User, d.config.Host, d.config.Port)
	if err := d.manager.Ensure(ctx); err != nil {
		return nil, fmt.Errorf("tunnel: %w", err)
	}
	return d.manager.Tunnel().Dial(ctx, network, address)
}

// Close tears down the underlying SSH tunnel.
func (d *SSHDialer) Close() error {
	return d.manager.Stop()
}
