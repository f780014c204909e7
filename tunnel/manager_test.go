package tunnel

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tcperr "tcpassist/internal/errors"
	"tcpassist/util"
)

func TestManager_StopBeforeEnsure(t *testing.T) {
	m := NewManager(NewSSHTunnel(&SSHConfig{Host: "bastion"}, util.NewLogger(0)), util.NewLogger(0))
	assert.NoError(t, m.Stop())
}

func TestManager_EnsureAuthFailure(t *testing.T) {
	// An unreadable key fails in Connect before any network I/O.
	cfg := &SSHConfig{User: "ops", Host: "bastion", KeyPath: t.TempDir() + "/missing_key"}
	m := NewManager(NewSSHTunnel(cfg, util.NewLogger(0)), util.NewLogger(0))

	err := m.Ensure(context.Background())
	var se *tcperr.SSHError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "auth", se.Op)
	assert.False(t, m.Tunnel().IsAlive())
	assert.NoError(t, m.Stop())
}

func TestManager_HealthLoopReportsLoss(t *testing.T) {
	var buf bytes.Buffer
	logger := util.NewLogger(1)
	logger.SetOutput(&buf)

	tun := NewSSHTunnel(&SSHConfig{Host: "bastion", Port: 2222}, logger)
	tun.alive = true

	m := NewManager(tun, logger)
	m.interval = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		m.healthLoop(ctx)
		close(done)
	}()

	tun.mu.Lock()
	tun.alive = false
	tun.mu.Unlock()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("health loop did not notice the lost tunnel")
	}
	require.Contains(t, buf.String(), "[WRN] SSH tunnel to bastion:2222 lost")
}
