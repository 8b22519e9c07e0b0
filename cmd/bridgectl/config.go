package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/edgebridge/internal/bridge"
	"github.com/danmuck/edgebridge/internal/telemetry"
	"github.com/joho/godotenv"
)

const (
	EnvListenAddr  = "EDGEBRIDGE_LISTEN_ADDR"
	EnvMetricsAddr = "EDGEBRIDGE_METRICS_ADDR"
	EnvRedisAddr   = "EDGEBRIDGE_REDIS_ADDR"
)

// bridgectl config.toml key mapping to runtime settings.
type fileConfig struct {
	ListenAddr      string              `toml:"listen_addr"`
	ReadBufferBytes int                 `toml:"read_buffer_bytes"`
	OutboundQueue   int                 `toml:"outbound_queue"`
	WriteTimeoutMS  int64               `toml:"write_timeout_ms"`
	ConsoleEnabled  bool                `toml:"console_enabled"`
	MetricsAddr     string              `toml:"metrics_addr"`
	Telemetry       telemetryFileConfig `toml:"telemetry"`
}

type telemetryFileConfig struct {
	RedisAddr        string `toml:"redis_addr"`
	RedisPassword    string `toml:"redis_password"`
	RedisDB          int    `toml:"redis_db"`
	Channel          string `toml:"channel"`
	PublishTimeoutMS int64  `toml:"publish_timeout_ms"`
}

type runtimeConfig struct {
	Service        bridge.ServiceConfig
	ConsoleEnabled bool
	MetricsAddr    string
	Telemetry      telemetry.Config
}

func defaultRuntimeConfig() runtimeConfig {
	return runtimeConfig{
		Service:        bridge.DefaultServiceConfig(),
		ConsoleEnabled: true,
		Telemetry:      telemetry.DefaultConfig(),
	}
}

// bridgectl loader for TOML config with default overlay. An empty path
// yields the defaults.
func loadRuntimeConfig(path string) (runtimeConfig, error) {
	cfg := defaultRuntimeConfig()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return runtimeConfig{}, fmt.Errorf("load bridge config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return runtimeConfig{}, fmt.Errorf("load bridge config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("listen_addr") {
		cfg.Service.ListenAddr = strings.TrimSpace(raw.ListenAddr)
	}
	if meta.IsDefined("read_buffer_bytes") {
		cfg.Service.ReadBufferBytes = raw.ReadBufferBytes
	}
	if meta.IsDefined("outbound_queue") {
		cfg.Service.OutboundQueue = raw.OutboundQueue
	}
	if meta.IsDefined("write_timeout_ms") {
		cfg.Service.WriteTimeout = time.Duration(raw.WriteTimeoutMS) * time.Millisecond
	}
	if meta.IsDefined("console_enabled") {
		cfg.ConsoleEnabled = raw.ConsoleEnabled
	}
	if meta.IsDefined("metrics_addr") {
		cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
	}
	if meta.IsDefined("telemetry", "redis_addr") {
		cfg.Telemetry.RedisAddr = strings.TrimSpace(raw.Telemetry.RedisAddr)
	}
	if meta.IsDefined("telemetry", "redis_password") {
		cfg.Telemetry.Password = raw.Telemetry.RedisPassword
	}
	if meta.IsDefined("telemetry", "redis_db") {
		cfg.Telemetry.DB = raw.Telemetry.RedisDB
	}
	if meta.IsDefined("telemetry", "channel") {
		cfg.Telemetry.Channel = strings.TrimSpace(raw.Telemetry.Channel)
	}
	if meta.IsDefined("telemetry", "publish_timeout_ms") {
		cfg.Telemetry.PublishTimeout = time.Duration(raw.Telemetry.PublishTimeoutMS) * time.Millisecond
	}

	if err := cfg.validate(); err != nil {
		return runtimeConfig{}, fmt.Errorf("load bridge config: %w", err)
	}
	return cfg, nil
}

func (c runtimeConfig) validate() error {
	if err := c.Service.Validate(); err != nil {
		return err
	}
	if c.Telemetry.Enabled() && strings.TrimSpace(c.Telemetry.Channel) == "" {
		return telemetry.ErrNoChannel
	}
	return nil
}

// applyEnv overlays process environment on top of file config.
func applyEnv(cfg *runtimeConfig) {
	if v := strings.TrimSpace(os.Getenv(EnvListenAddr)); v != "" {
		cfg.Service.ListenAddr = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvMetricsAddr)); v != "" {
		cfg.MetricsAddr = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvRedisAddr)); v != "" {
		cfg.Telemetry.RedisAddr = v
	}
}

// loadDotEnv loads variables from path; a missing file is ignored.
func loadDotEnv(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
