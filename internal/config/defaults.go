package config

import (
	"fmt"
	"time"
)

const (
	DefaultDashboardHost = "127.0.0.1"
	DefaultDashboardPort = 7616

	DefaultConnectTimeout = 10 * time.Second
	DefaultRequestTimeout = 30 * time.Second

	DefaultMaxOriginConnections = 10

	DefaultPingInterval = 30 * time.Second
	DefaultPongTimeout  = 10 * time.Second

	DefaultMaxFrameBytes = 1 << 20  // 1 MiB
	DefaultMaxBodyBytes  = 10 << 20 // 10 MiB

	DefaultLocalOriginPort = 11434
)

// DefaultFileConfig returns the baseline FileConfig applied before any file,
// environment, or CLI layer is merged on top.
func DefaultFileConfig() *FileConfig {
	return &FileConfig{
		WebSocket: WebSocketFileConfig{
			ConnectTimeout: DefaultConnectTimeout,
			PingInterval:   DefaultPingInterval,
			PongTimeout:    DefaultPongTimeout,
			MaxReconnects:  0,
			MaxFrameBytes:  DefaultMaxFrameBytes,
		},
		LocalServer: LocalServerFileConfig{
			URL:            fmt.Sprintf("http://localhost:%d", DefaultLocalOriginPort),
			VerifyTLS:      false,
			RequestTimeout: DefaultRequestTimeout,
			MaxConnections: DefaultMaxOriginConnections,
			MaxBodyBytes:   DefaultMaxBodyBytes,
		},
		Dashboard: DashboardFileConfig{
			Enabled:  true,
			BindAddr: DefaultDashboardHost,
			Port:     DefaultDashboardPort,
		},
		Logging: LoggingFileConfig{
			Level:  "info",
			Format: "json",
			Theme:  "default",
		},
	}
}
