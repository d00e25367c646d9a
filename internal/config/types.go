// Package config loads, merges, and validates the Settings value the core
// consumes. Per spec this is an external concern: the core never parses
// flags, files, or environment variables itself — it only ever sees a
// validated Settings.
package config

import "time"

// FileConfig mirrors the on-disk YAML/TOML/JSON shape (spec §6), decoded by
// viper before being merged with CLI flags and environment overrides into a
// Settings value.
type FileConfig struct {
	WebSocket  WebSocketFileConfig  `yaml:"websocket" mapstructure:"websocket"`
	LocalServer LocalServerFileConfig `yaml:"local_server" mapstructure:"local_server"`
	Dashboard  DashboardFileConfig  `yaml:"dashboard" mapstructure:"dashboard"`
	Logging    LoggingFileConfig    `yaml:"logging" mapstructure:"logging"`
}

type WebSocketFileConfig struct {
	URL            string        `yaml:"url" mapstructure:"url"`
	Token          string        `yaml:"token" mapstructure:"token"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" mapstructure:"connect_timeout"`
	PingInterval   time.Duration `yaml:"ping_interval" mapstructure:"ping_interval"`
	PongTimeout    time.Duration `yaml:"pong_timeout" mapstructure:"pong_timeout"`
	MaxReconnects  int           `yaml:"max_reconnects" mapstructure:"max_reconnects"`
	MaxFrameBytes  int64         `yaml:"max_frame_bytes" mapstructure:"max_frame_bytes"`
}

type LocalServerFileConfig struct {
	URL                  string        `yaml:"url" mapstructure:"url"`
	VerifyTLS            bool          `yaml:"verify_tls" mapstructure:"verify_tls"`
	RequestTimeout       time.Duration `yaml:"request_timeout" mapstructure:"request_timeout"`
	MaxConnections       int           `yaml:"max_connections" mapstructure:"max_connections"`
	MaxBodyBytes         int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
}

type DashboardFileConfig struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	BindAddr string `yaml:"bind_addr" mapstructure:"bind_addr"`
	Port     int    `yaml:"port" mapstructure:"port"`
}

type LoggingFileConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
	Theme  string `yaml:"theme" mapstructure:"theme"`
}

// Settings is the validated, immutable value the supervisor is built from.
// Nothing downstream of config.Load ever mutates it.
type Settings struct {
	TunnelURL      string
	Token          string
	OriginURL      string
	VerifyTLSOrigin bool

	ConnectTimeout time.Duration
	RequestTimeout time.Duration

	MaxOriginConnections int
	MaxReconnects        int

	DashboardEnabled  bool
	DashboardBindAddr string
	DashboardPort     int

	PingInterval time.Duration
	PongTimeout  time.Duration

	MaxFrameBytes int64
	MaxBodyBytes  int64

	LogLevel  string
	LogFormat string
	LogTheme  string
}
