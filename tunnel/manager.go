package tunnel

import (
	"context"
	"sync"
	"time"

	"tcpassist/util"
)

// DefaultHealthInterval is how often a Manager checks its tunnel.
const DefaultHealthInterval = 10 * time.Second

// Manager owns an SSHTunnel on behalf of a dialer.  It connects the
// tunnel on demand, replaces it after the gateway went away and watches
// it in the background so a lost gateway is logged when it happens.
type Manager struct {
	tunnel   *SSHTunnel
	logger   *util.Logger
	interval time.Duration

	mu   sync.Mutex
	stop context.CancelFunc // health loop of the current connection; nil when down
}

// NewManager returns a Manager for the given tunnel.
func NewManager(t *SSHTunnel, logger *util.Logger) *Manager {
	return &Manager{tunnel: t, logger: logger, interval: DefaultHealthInterval}
}

// Tunnel returns the managed tunnel.
func (m *Manager) Tunnel() *SSHTunnel { return m.tunnel }

// Ensure connects the tunnel unless it is already up.  A tunnel that
// died since the last call is closed and connected again.
func (m *Manager) Ensure(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stop != nil {
		if m.tunnel.IsAlive() {
			return nil
		}
		m.logger.Verbose("SSH tunnel to %s is down, reconnecting", m.addr())
		m.stopLocked() //nolint:errcheck
	}

	if err := m.tunnel.Connect(ctx); err != nil {
		return err
	}

	hctx, cancel := context.WithCancel(context.Background())
	m.stop = cancel
	go m.healthLoop(hctx)
	return nil
}

// Stop shuts down the tunnel and its health loop.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopLocked()
}

func (m *Manager) stopLocked() error {
	if m.stop == nil {
		return nil
	}
	m.stop()
	m.stop = nil
	return m.tunnel.Close()
}

func (m *Manager) healthLoop(ctx context.Context) {
	tick := time.NewTicker(m.interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			if !m.tunnel.IsAlive() {
				m.logger.Warn("SSH tunnel to %s lost", m.addr())
				return
			}
		}
	}
}

func (m *Manager) addr() string {
	return util.FormatAddr(m.tunnel.config.Host, m.tunnel.config.Port)
}
