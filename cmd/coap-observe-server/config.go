package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/backkem/coap/pkg/exchange"
)

// serverConfig holds the resolved runtime settings for the server.
type serverConfig struct {
	Port         int
	Instance     string
	ResourcePath string
	Interval     time.Duration
	NonConfirm   bool
	Advertise    bool
	TXT          []string
	Params       exchange.Params
}

// fileConfig is the config.toml key mapping.
type fileConfig struct {
	Port            int      `toml:"port"`
	Instance        string   `toml:"instance_name"`
	ResourcePath    string   `toml:"resource_path"`
	UpdateInterval  string   `toml:"update_interval"`
	NonConfirmable  bool     `toml:"non_confirmable_notifications"`
	Advertise       bool     `toml:"advertise"`
	TXT             []string `toml:"txt_records"`
	AckTimeout      string   `toml:"ack_timeout"`
	AckRandomFactor float64  `toml:"ack_random_factor"`
	MaxRetransmit   int      `toml:"max_retransmit"`
}

// defaultConfig returns the settings used when no config file is given.
func defaultConfig() serverConfig {
	return serverConfig{
		Port:         5683,
		ResourcePath: "sensors/temperature",
		Interval:     5 * time.Second,
		Advertise:    true,
		Params:       exchange.DefaultParams(),
	}
}

// loadConfig overlays a TOML config file onto the defaults.
func loadConfig(path string) (serverConfig, error) {
	cfg := defaultConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return serverConfig{}, fmt.Errorf("load config: %w", err)
	}

	if meta.IsDefined("port") {
		cfg.Port = raw.Port
	}
	if meta.IsDefined("instance_name") {
		cfg.Instance = strings.TrimSpace(raw.Instance)
	}
	if meta.IsDefined("resource_path") {
		cfg.ResourcePath = strings.Trim(strings.TrimSpace(raw.ResourcePath), "/")
	}
	if meta.IsDefined("update_interval") {
		d, err := time.ParseDuration(raw.UpdateInterval)
		if err != nil {
			return serverConfig{}, fmt.Errorf("parse update_interval: %w", err)
		}
		cfg.Interval = d
	}
	if meta.IsDefined("non_confirmable_notifications") {
		cfg.NonConfirm = raw.NonConfirmable
	}
	if meta.IsDefined("advertise") {
		cfg.Advertise = raw.Advertise
	}
	if meta.IsDefined("txt_records") {
		cfg.TXT = raw.TXT
	}
	if meta.IsDefined("ack_timeout") {
		d, err := time.ParseDuration(raw.AckTimeout)
		if err != nil {
			return serverConfig{}, fmt.Errorf("parse ack_timeout: %w", err)
		}
		cfg.Params.AckTimeout = d
	}
	if meta.IsDefined("ack_random_factor") {
		cfg.Params.AckRandomFactor = raw.AckRandomFactor
	}
	if meta.IsDefined("max_retransmit") {
		cfg.Params.MaxRetransmit = raw.MaxRetransmit
	}

	if err := cfg.validate(); err != nil {
		return serverConfig{}, err
	}
	return cfg, nil
}

func (c serverConfig) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.ResourcePath == "" {
		return fmt.Errorf("resource_path must not be empty")
	}
	if c.Interval <= 0 {
		return fmt.Errorf("update_interval must be positive")
	}
	return c.Params.Validate()
}
