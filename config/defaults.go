package config

import (
	"time"

	"tcpassist/internal/codec"
)

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across CLI flags and environment variable loading.

const (
	// DefaultHost is the endpoint address shown at startup.
	DefaultHost = "192.168.0.200"

	// DefaultPort is the endpoint port shown at startup.
	DefaultPort = "7000"

	// DefaultConnectTimeout bounds a single connect attempt.
	DefaultConnectTimeout = 10 * time.Second

	// DefaultWait is how long one-shot mode prints replies after sending.
	DefaultWait = 2 * time.Second

	// DefaultSSHPort is the standard SSH port.
	DefaultSSHPort = 22
)

// Default returns a Config populated with every default value.
func Default() *Config {
	return &Config{
		Host:           DefaultHost,
		Port:           DefaultPort,
		ConnectTimeout: DefaultConnectTimeout,
		SendFormat:     codec.Text,
		RecvFormat:     codec.Text,
		Wait:           DefaultWait,
	}
}
