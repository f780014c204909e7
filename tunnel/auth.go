package tunnel

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
	"golang.org/x/term"

	"tcpassist/config"
	tcperr "tcpassist/internal/errors"
)

// FromConfig returns the gateway configuration for cfg's tunnel.  The
// gateway gets the same connect timeout as the target server.
func FromConfig(cfg *config.Config) *SSHConfig {
	return &SSHConfig{
		User:          cfg.TunnelUser,
		Host:          cfg.TunnelHost,
		Port:          cfg.TunnelPort,
		KeyPath:       cfg.SSHKeyPath,
		PromptPass:    cfg.SSHPassword,
		UseAgent:      cfg.UseSSHAgent,
		AgentSocket:   cfg.SSHAgentSocket,
		StrictHostKey: cfg.StrictHostKey,
		KnownHosts:    cfg.KnownHostsPath,
		ConnTimeout:   cfg.ConnectTimeout,
	}
}

// ── prompting ────────────────────────────────────────────────────────

// Prompter asks the user for a secret: the gateway password or a key
// passphrase.
type Prompter interface {
	// Interactive reports whether a user can answer a prompt.
	Interactive() bool
	ReadSecret(prompt string) ([]byte, error)
}

// TermPrompter prompts on Out and reads without echo from the terminal
// on In.
type TermPrompter struct {
	In  *os.File
	Out io.Writer
}

func (p TermPrompter) Interactive() bool { return term.IsTerminal(int(p.In.Fd())) }

func (p TermPrompter) ReadSecret(prompt string) ([]byte, error) {
	fmt.Fprint(p.Out, prompt)
	secret, err := term.ReadPassword(int(p.In.Fd()))
	fmt.Fprintln(p.Out)
	return secret, err
}

func (cfg *SSHConfig) prompter() Prompter {
	if cfg.Prompter != nil {
		return cfg.Prompter
	}
	return TermPrompter{In: os.Stdin, Out: os.Stderr}
}

// ── methods ──────────────────────────────────────────────────────────

// BuildAuthMethods returns the gateway auth methods in the order the
// gateway tries them: key file, agent, password.  When no method is
// selected the agent and the usual ~/.ssh keys are tried.  A selected
// method that cannot be set up is a *errors.ConfigError naming its flag.
func BuildAuthMethods(cfg *SSHConfig) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	if cfg.KeyPath != "" {
		m, err := keyAuth(cfg.KeyPath, cfg.prompter())
		if err != nil {
			return nil, err
		}
		methods = append(methods, m)
	}
	if cfg.UseAgent {
		m, err := agentAuth(cfg.AgentSocket)
		if err != nil {
			return nil, err
		}
		methods = append(methods, m)
	}
	if cfg.PromptPass {
		m, err := passwordAuth(cfg)
		if err != nil {
			return nil, err
		}
		methods = append(methods, m)
	}

	if len(methods) == 0 {
		methods = implicitMethods(cfg)
	}
	if len(methods) == 0 {
		return nil, &tcperr.ConfigError{
			Field:   "tunnel",
			Value:   cfg.User + "@" + cfg.Host,
			Message: "no SSH authentication method available",
			Hint:    "use --ssh-key, --ssh-agent or --ssh-password",
		}
	}
	return methods, nil
}

func keyAuth(path string, p Prompter) (ssh.AuthMethod, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &tcperr.ConfigError{Field: "ssh-key", Value: path, Message: err.Error()}
	}

	signer, err := ssh.ParsePrivateKey(data)
	var missing *ssh.PassphraseMissingError
	switch {
	case err == nil:
	case errors.As(err, &missing):
		if !p.Interactive() {
			return nil, &tcperr.ConfigError{
				Field:   "ssh-key",
				Value:   path,
				Message: "key is encrypted and there is no terminal to ask for its passphrase",
				Hint:    "load the key into an agent and use --ssh-agent",
			}
		}
		pass, err := p.ReadSecret(fmt.Sprintf("Enter passphrase for %s: ", path))
		if err != nil {
			return nil, fmt.Errorf("reading passphrase: %w", err)
		}
		if signer, err = ssh.ParsePrivateKeyWithPassphrase(data, pass); err != nil {
			return nil, fmt.Errorf("%w: decrypting %s: %v", tcperr.ErrAuthFailed, path, err)
		}
	default:
		return nil, &tcperr.ConfigError{Field: "ssh-key", Value: path, Message: "not a private key: " + err.Error()}
	}
	return ssh.PublicKeys(signer), nil
}

func agentAuth(sock string) (ssh.AuthMethod, error) {
	if sock == "" {
		return nil, &tcperr.ConfigError{
			Field:   "ssh-agent",
			Message: "no agent socket",
			Hint:    "set SSH_AUTH_SOCK, TCPASSIST_SSH_AUTH_SOCK or --ssh-agent-socket",
		}
	}
	conn, err := net.Dial("unix", sock)
	if err != nil {
		return nil, &tcperr.ConfigError{Field: "ssh-agent-socket", Value: sock, Message: err.Error()}
	}
	return ssh.PublicKeysCallback(agent.NewClient(conn).Signers), nil
}

func passwordAuth(cfg *SSHConfig) (ssh.AuthMethod, error) {
	p := cfg.prompter()
	if !p.Interactive() {
		return nil, &tcperr.ConfigError{
			Field:   "ssh-password",
			Message: "password prompt needs an interactive terminal",
			Hint:    "use --ssh-key or --ssh-agent when stdin is not a terminal",
		}
	}
	pass, err := p.ReadSecret(fmt.Sprintf("%s@%s's password: ", cfg.User, cfg.Host))
	if err != nil {
		return nil, fmt.Errorf("reading password: %w", err)
	}
	return ssh.Password(string(pass)), nil
}

// implicitMethods is the agent, if reachable, plus any unencrypted key
// among ~/.ssh/id_ed25519, id_rsa and id_ecdsa.
func implicitMethods(cfg *SSHConfig) []ssh.AuthMethod {
	var out []ssh.AuthMethod
	if m, err := agentAuth(cfg.AgentSocket); err == nil {
		out = append(out, m)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return out
	}
	for _, name := range []string{"id_ed25519", "id_rsa", "id_ecdsa"} {
		data, err := os.ReadFile(filepath.Join(home, ".ssh", name))
		if err != nil {
			continue
		}
		if signer, err := ssh.ParsePrivateKey(data); err == nil {
			out = append(out, ssh.PublicKeys(signer))
		}
	}
	return out
}

// ── host keys ────────────────────────────────────────────────────────

func hostKeyCallback(cfg *SSHConfig) (ssh.HostKeyCallback, error) {
	if !cfg.StrictHostKey {
		//nolint:gosec // host key checking is opt-in via --strict-hostkey
		return ssh.InsecureIgnoreHostKey(), nil
	}

	path := cfg.KnownHosts
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, &tcperr.ConfigError{Field: "known-hosts", Message: err.Error()}
		}
		path = filepath.Join(home, ".ssh", "known_hosts")
	}

	cb, err := knownhosts.New(path)
	if err != nil {
		return nil, &tcperr.ConfigError{
			Field:   "known-hosts",
			Value:   path,
			Message: err.Error(),
			Hint:    "drop --strict-hostkey or point --known-hosts at an existing file",
		}
	}
	return cb, nil
}
