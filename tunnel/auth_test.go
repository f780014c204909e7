package tunnel

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"tcpassist/config"
	tcperr "tcpassist/internal/errors"
)

// ── helpers ──────────────────────────────────────────────────────────

type fakePrompter struct {
	interactive bool
	secret      string
	prompts     []string
}

func (p *fakePrompter) Interactive() bool { return p.interactive }

func (p *fakePrompter) ReadSecret(prompt string) ([]byte, error) {
	p.prompts = append(p.prompts, prompt)
	return []byte(p.secret), nil
}

// writeKey writes a fresh ed25519 key in OpenSSH format, encrypted when
// passphrase is not empty.
func writeKey(t *testing.T, passphrase string) string {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	var block *pem.Block
	if passphrase == "" {
		block, err = ssh.MarshalPrivateKey(priv, "tcpassist-test")
	} else {
		block, err = ssh.MarshalPrivateKeyWithPassphrase(priv, "tcpassist-test", []byte(passphrase))
	}
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "id_ed25519")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(block), 0o600))
	return path
}

func requireConfigError(t *testing.T, err error, field string) *tcperr.ConfigError {
	t.Helper()
	var ce *tcperr.ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, field, ce.Field)
	return ce
}

// noImplicitAuth hides the agent and the user's own keys.
func noImplicitAuth(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
}

// ── key file ─────────────────────────────────────────────────────────

func TestBuildAuthMethods_KeyFile(t *testing.T) {
	methods, err := BuildAuthMethods(&SSHConfig{KeyPath: writeKey(t, "")})
	require.NoError(t, err)
	assert.Len(t, methods, 1)
}

func TestBuildAuthMethods_MissingKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing")
	_, err := BuildAuthMethods(&SSHConfig{KeyPath: path})
	ce := requireConfigError(t, err, "ssh-key")
	assert.Equal(t, path, ce.Value)
}

func TestBuildAuthMethods_NotAKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("192.168.0.200 7000\n"), 0o600))
	_, err := BuildAuthMethods(&SSHConfig{KeyPath: path})
	requireConfigError(t, err, "ssh-key")
}

func TestBuildAuthMethods_EncryptedKey(t *testing.T) {
	path := writeKey(t, "hunter2")

	p := &fakePrompter{interactive: true, secret: "hunter2"}
	methods, err := BuildAuthMethods(&SSHConfig{KeyPath: path, Prompter: p})
	require.NoError(t, err)
	assert.Len(t, methods, 1)
	assert.Equal(t, []string{"Enter passphrase for " + path + ": "}, p.prompts)

	p = &fakePrompter{interactive: true, secret: "wrong"}
	_, err = BuildAuthMethods(&SSHConfig{KeyPath: path, Prompter: p})
	assert.ErrorIs(t, err, tcperr.ErrAuthFailed)
}

func TestBuildAuthMethods_EncryptedKeyWithoutTerminal(t *testing.T) {
	p := &fakePrompter{}
	_, err := BuildAuthMethods(&SSHConfig{KeyPath: writeKey(t, "hunter2"), Prompter: p})
	requireConfigError(t, err, "ssh-key")
	assert.Empty(t, p.prompts)
}

// ── agent ────────────────────────────────────────────────────────────

func TestBuildAuthMethods_AgentWithoutSocket(t *testing.T) {
	_, err := BuildAuthMethods(&SSHConfig{UseAgent: true})
	ce := requireConfigError(t, err, "ssh-agent")
	assert.NotEmpty(t, ce.Hint)
}

func TestBuildAuthMethods_AgentUnreachable(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "agent.sock")
	_, err := BuildAuthMethods(&SSHConfig{UseAgent: true, AgentSocket: sock})
	requireConfigError(t, err, "ssh-agent-socket")
}

func TestBuildAuthMethods_AgentSocket(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "agent.sock")
	ln, err := net.Listen("unix", sock)
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	methods, err := BuildAuthMethods(&SSHConfig{UseAgent: true, AgentSocket: sock})
	require.NoError(t, err)
	assert.Len(t, methods, 1)
}

// ── password ─────────────────────────────────────────────────────────

func TestBuildAuthMethods_Password(t *testing.T) {
	p := &fakePrompter{interactive: true, secret: "s3cret"}
	methods, err := BuildAuthMethods(&SSHConfig{User: "ops", Host: "bastion", PromptPass: true, Prompter: p})
	require.NoError(t, err)
	assert.Len(t, methods, 1)
	assert.Equal(t, []string{"ops@bastion's password: "}, p.prompts)
}

func TestBuildAuthMethods_PasswordWithoutTerminal(t *testing.T) {
	p := &fakePrompter{}
	_, err := BuildAuthMethods(&SSHConfig{User: "ops", Host: "bastion", PromptPass: true, Prompter: p})
	ce := requireConfigError(t, err, "ssh-password")
	assert.Contains(t, ce.Hint, "--ssh-key")
	assert.Empty(t, p.prompts)
}

func TestBuildAuthMethods_KeyThenPassword(t *testing.T) {
	p := &fakePrompter{interactive: true, secret: "s3cret"}
	methods, err := BuildAuthMethods(&SSHConfig{
		KeyPath:    writeKey(t, ""),
		PromptPass: true,
		Prompter:   p,
	})
	require.NoError(t, err)
	assert.Len(t, methods, 2)
}

// ── implicit ─────────────────────────────────────────────────────────

func TestBuildAuthMethods_NoMethod(t *testing.T) {
	noImplicitAuth(t)
	_, err := BuildAuthMethods(&SSHConfig{User: "ops", Host: "bastion"})
	ce := requireConfigError(t, err, "tunnel")
	assert.Equal(t, "ops@bastion", ce.Value)
	assert.Contains(t, ce.Hint, "--ssh-agent")
}

func TestBuildAuthMethods_HomeKey(t *testing.T) {
	noImplicitAuth(t)
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	require.NoError(t, os.Mkdir(filepath.Join(home, ".ssh"), 0o700))

	data, err := os.ReadFile(writeKey(t, ""))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(home, ".ssh", "id_ed25519"), data, 0o600))
	// Encrypted keys are skipped rather than prompted for.
	enc, err := os.ReadFile(writeKey(t, "hunter2"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(home, ".ssh", "id_rsa"), enc, 0o600))

	p := &fakePrompter{interactive: true}
	methods, err := BuildAuthMethods(&SSHConfig{Prompter: p})
	require.NoError(t, err)
	assert.Len(t, methods, 1)
	assert.Empty(t, p.prompts)
}

// ── host keys ────────────────────────────────────────────────────────

func TestHostKeyCallback(t *testing.T) {
	cb, err := hostKeyCallback(&SSHConfig{})
	require.NoError(t, err)
	assert.NotNil(t, cb)

	missing := filepath.Join(t.TempDir(), "known_hosts")
	_, err = hostKeyCallback(&SSHConfig{StrictHostKey: true, KnownHosts: missing})
	ce := requireConfigError(t, err, "known-hosts")
	assert.Equal(t, missing, ce.Value)

	require.NoError(t, os.WriteFile(missing, nil, 0o600))
	cb, err = hostKeyCallback(&SSHConfig{StrictHostKey: true, KnownHosts: missing})
	require.NoError(t, err)
	assert.NotNil(t, cb)
}

// ── configuration ────────────────────────────────────────────────────

func TestFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.TunnelSpec = "ops@bastion:2222"
	require.NoError(t, cfg.ApplyTunnelSpec())
	cfg.SSHKeyPath = "/keys/gw"
	cfg.UseSSHAgent = true
	cfg.SSHAgentSocket = "/run/agent.sock"
	cfg.StrictHostKey = true
	cfg.ConnectTimeout = 3 * time.Second

	sc := FromConfig(cfg)
	assert.Equal(t, &SSHConfig{
		User:          "ops",
		Host:          "bastion",
		Port:          2222,
		KeyPath:       "/keys/gw",
		UseAgent:      true,
		AgentSocket:   "/run/agent.sock",
		StrictHostKey: true,
		ConnTimeout:   3 * time.Second,
	}, sc)
}

func TestFromConfig_EnvChoosesAgent(t *testing.T) {
	t.Setenv("TCPASSIST_SSH_AGENT", "1")
	t.Setenv("TCPASSIST_SSH_AUTH_SOCK", filepath.Join(t.TempDir(), "agent.sock"))

	cfg := config.Default()
	config.LoadFromEnv(cfg)

	_, err := BuildAuthMethods(FromConfig(cfg))
	requireConfigError(t, err, "ssh-agent-socket")
}
