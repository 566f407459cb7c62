// Package config loads the supervisor's TOML configuration.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/loykin/shellvisr/internal/logger"
	"github.com/loykin/shellvisr/internal/manager"
	"github.com/loykin/shellvisr/internal/shell"
)

// Config is the top-level TOML document.
//
//	base_dir = "~/.cache/shellvisr"
//	sandbox_root = "~"
//	max_shells = 5
//	grace_timeout = "10s"
//	env = ["HTTP_PROXY=${HTTP_PROXY}"]
//	listen = "127.0.0.1:8951"
//	api_base = "/api"
//	api_key = ""
//	metrics_listen = ""
//	history_dsn = ""
//
//	[log]
//	level = "info"
//	file = ""
type Config struct {
	BaseDir      string        `toml:"base_dir" mapstructure:"base_dir"`
	SandboxRoot  string        `toml:"sandbox_root" mapstructure:"sandbox_root"`
	MaxShells    int           `toml:"max_shells" mapstructure:"max_shells"`
	GraceTimeout time.Duration `toml:"grace_timeout" mapstructure:"grace_timeout"`
	// Env is extra "K=V" environment stamped into every shell, with ${VAR}
	// expansion against the supervisor's environment.
	Env []string `toml:"env" mapstructure:"env"`

	Listen        string `toml:"listen" mapstructure:"listen"`
	APIBase       string `toml:"api_base" mapstructure:"api_base"`
	APIKey        string `toml:"api_key" mapstructure:"api_key"`
	MetricsListen string `toml:"metrics_listen" mapstructure:"metrics_listen"`
	// HistoryDSN selects a lifecycle-event sink: sqlite path, postgres://,
	// clickhouse:// or opensearch:// URL. Empty disables history.
	HistoryDSN string `toml:"history_dsn" mapstructure:"history_dsn"`

	Log logger.Config `toml:"log" mapstructure:"log"`
}

const (
	DefaultListen  = "127.0.0.1:8951"
	DefaultAPIBase = "/api"
)

func defaults() Config {
	return Config{
		MaxShells:    manager.DefaultMaxShells,
		GraceTimeout: manager.DefaultGraceTimeout,
		Listen:       DefaultListen,
		APIBase:      DefaultAPIBase,
		Log:          logger.Config{Level: "info"},
	}
}

// Load reads the TOML file at path. An empty path returns pure defaults.
func Load(path string) (*Config, error) {
	cfg := defaults()
	if path == "" {
		return &cfg, nil
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.BaseDir = shell.ExpandHome(cfg.BaseDir)
	cfg.SandboxRoot = shell.ExpandHome(cfg.SandboxRoot)
	cfg.Log.File = shell.ExpandHome(cfg.Log.File)
	if cfg.MaxShells <= 0 {
		cfg.MaxShells = manager.DefaultMaxShells
	}
	if cfg.GraceTimeout <= 0 {
		cfg.GraceTimeout = manager.DefaultGraceTimeout
	}
	if cfg.Listen == "" {
		cfg.Listen = DefaultListen
	}
	if cfg.APIBase == "" {
		cfg.APIBase = DefaultAPIBase
	}
	return &cfg, nil
}

// ManagerConfig translates the file config into the Manager's constructor
// arguments.
func (c *Config) ManagerConfig() manager.Config {
	return manager.Config{
		BaseDir:      c.BaseDir,
		SandboxRoot:  c.SandboxRoot,
		MaxShells:    c.MaxShells,
		GraceTimeout: c.GraceTimeout,
		GlobalEnv:    c.Env,
	}
}
