package config

// loader.go - configuration loading from environment variables.
//
// Precedence order (highest wins):
//   1. CLI flags  (handled by cmd/root.go)
//   2. Environment variables  (this file)
//   3. Defaults   (defaults.go)

import (
	"os"
	"strconv"
	"strings"
	"time"

	"tcpassist/internal/codec"
)

// ── Environment variable mapping ─────────────────────────────────────
//
// Every supported env var uses the TCPASSIST_ prefix.  Boolean values
// accept "1", "true", "yes" (case-insensitive).  Malformed values are
// ignored.

// LoadFromEnv overlays environment variables onto cfg.  Only non-empty
// env vars override the existing value.  This should be called BEFORE
// CLI flag parsing so that flags take precedence.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("TCPASSIST_HOST"); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv("TCPASSIST_PORT"); v != "" {
		cfg.Port = v
	}
	if v := envInt("TCPASSIST_TIMEOUT"); v > 0 {
		cfg.ConnectTimeout = secondsDuration(v)
	}
	if f, ok := envFormat("TCPASSIST_SEND_FORMAT"); ok {
		cfg.SendFormat = f
	}
	if f, ok := envFormat("TCPASSIST_RECV_FORMAT"); ok {
		cfg.RecvFormat = f
	}
	if envBool("TCPASSIST_STRICT_HEX") {
		cfg.StrictHex = true
	}

	// SSH tunnel
	if v := os.Getenv("TCPASSIST_TUNNEL"); v != "" {
		cfg.TunnelSpec = v
	}
	if v := os.Getenv("TCPASSIST_SSH_KEY"); v != "" {
		cfg.SSHKeyPath = v
	}
	if envBool("TCPASSIST_SSH_PASSWORD") {
		cfg.SSHPassword = true
	}
	if envBool("TCPASSIST_SSH_AGENT") {
		cfg.UseSSHAgent = true
	}
	if v := os.Getenv("TCPASSIST_SSH_AUTH_SOCK"); v != "" {
		cfg.SSHAgentSocket = v
	} else if v := os.Getenv("SSH_AUTH_SOCK"); v != "" && cfg.SSHAgentSocket == "" {
		cfg.SSHAgentSocket = v
	}
	if envBool("TCPASSIST_STRICT_HOSTKEY") {
		cfg.StrictHostKey = true
	}
	if v := os.Getenv("TCPASSIST_KNOWN_HOSTS"); v != "" {
		cfg.KnownHostsPath = v
	}

	// Output
	if v := envInt("TCPASSIST_VERBOSE"); v > 0 {
		cfg.Verbose = v
	}
	if envBool("TCPASSIST_TIMESTAMPS") {
		cfg.Timestamps = true
	}
	if envBool("TCPASSIST_NO_COLOR") {
		cfg.NoColor = true
	}
	if envBool("TCPASSIST_LOG_JSON") {
		cfg.LogJSON = true
	}
}

// ── helpers ──────────────────────────────────────────────────────────

func envInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func envBool(key string) bool {
	v := strings.ToLower(os.Getenv(key))
	return v == "1" || v == "true" || v == "yes"
}

func envFormat(key string) (codec.Format, bool) {
	v := os.Getenv(key)
	if v == "" {
		return codec.Text, false
	}
	f, err := codec.ParseFormat(v)
	return f, err == nil
}

func secondsDuration(sec int) time.Duration {
	return time.Duration(sec) * time.Second
}
