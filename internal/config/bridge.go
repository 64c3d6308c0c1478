package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

const (
	// DefaultBridgeHost keeps the event bridge on loopback unless configured.
	DefaultBridgeHost = "127.0.0.1"
	// DefaultBridgePort is the event bridge TCP port.
	DefaultBridgePort = 8765
)

// BridgeConfig is the bridge section of config.yaml. The PIPECTX_BRIDGE_*
// variables win over the file.
type BridgeConfig struct {
	Enabled       *bool  `yaml:"enabled,omitempty" env:"PIPECTX_BRIDGE_ENABLED"`
	Host          string `yaml:"host,omitempty" env:"PIPECTX_BRIDGE_HOST"`
	Port          int    `yaml:"port,omitempty" env:"PIPECTX_BRIDGE_PORT"`
	QueueCapacity int    `yaml:"queue_capacity,omitempty" env:"PIPECTX_BRIDGE_QUEUE"`
}

// Bridge is where and whether the event bridge listens. A zero
// QueueCapacity leaves the dispatcher on its own default.
type Bridge struct {
	Enabled       bool
	Host          string
	Port          int
	QueueCapacity int
}

// Bridge merges the bridge section with the process environment.
func (c *Config) Bridge() (Bridge, error) {
	return c.bridge(env.Options{})
}

func (c *Config) bridge(opts env.Options) (Bridge, error) {
	var raw BridgeConfig
	if c != nil {
		raw = c.Project.Bridge
	}
	if raw.Enabled != nil {
		enabled := *raw.Enabled
		raw.Enabled = &enabled
	}
	if err := env.ParseWithOptions(&raw, opts); err != nil {
		return Bridge{}, fmt.Errorf("config: bridge environment: %w", err)
	}
	if err := raw.validate(); err != nil {
		return Bridge{}, fmt.Errorf("config: bridge: %w", err)
	}
	b := Bridge{
		Enabled:       true,
		Host:          strings.TrimSpace(raw.Host),
		Port:          raw.Port,
		QueueCapacity: raw.QueueCapacity,
	}
	if raw.Enabled != nil {
		b.Enabled = *raw.Enabled
	}
	if b.Host == "" {
		b.Host = DefaultBridgeHost
	}
	if b.Port == 0 {
		b.Port = DefaultBridgePort
	}
	return b, nil
}

func (bc BridgeConfig) validate() error {
	if bc.Port < 0 || bc.Port > 65535 {
		return fmt.Errorf("port %d out of range", bc.Port)
	}
	if bc.QueueCapacity < 0 {
		return fmt.Errorf("queue_capacity must not be negative")
	}
	return nil
}
