package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Load builds a validated Settings by layering, lowest precedence first:
// defaults, a discovered or explicit config file, PORI_ environment
// variables, then CLI flags (spec §6). The returned Settings never changes
// after this call returns.
func Load(args []string) (*Settings, error) {
	cli, err := parseArgsForLoad(args)
	if err != nil {
		return nil, err
	}
	if cli.ShowHelp || cli.ShowVersion {
		return nil, nil
	}

	v := viper.New()
	v.SetEnvPrefix("PORI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := DefaultFileConfig()
	bindDefaults(v, def)

	configured := false
	if cli.ConfigPath != nil && *cli.ConfigPath != "" {
		v.SetConfigFile(*cli.ConfigPath)
		configured = true
	} else if cli.YMLPath != nil && *cli.YMLPath != "" {
		v.SetConfigFile(*cli.YMLPath)
		configured = true
	} else if envPath := os.Getenv("PORI_CONFIG"); envPath != "" {
		v.SetConfigFile(envPath)
		configured = true
	} else if envPath := os.Getenv("PORI_YML"); envPath != "" {
		v.SetConfigFile(envPath)
		configured = true
	}

	if !configured {
		v.SetConfigName("pori")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
			v.AddConfigPath(filepath.Join(home, ".config", "pori"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	fc := DefaultFileConfig()
	if err := v.Unmarshal(fc); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	settings := settingsFromFileConfig(fc)
	applyCLIOverrides(settings, cli)
	if cli.LogLevel == nil {
		applyRustLogFallback(settings)
	}

	if settings.Token != "" && settings.TunnelURL != "" {
		settings.TunnelURL = ensureTokenParam(settings.TunnelURL, settings.Token)
	}

	if err := settings.Validate(); err != nil {
		return nil, err
	}

	return settings, nil
}

func parseArgsForLoad(args []string) (*CLIOverrides, error) {
	fs := newFlagSet()
	return ParseFlags(fs, args)
}

func settingsFromFileConfig(fc *FileConfig) *Settings {
	return &Settings{
		TunnelURL:       fc.WebSocket.URL,
		Token:           fc.WebSocket.Token,
		OriginURL:       fc.LocalServer.URL,
		VerifyTLSOrigin: fc.LocalServer.VerifyTLS,

		ConnectTimeout: fc.WebSocket.ConnectTimeout,
		RequestTimeout: fc.LocalServer.RequestTimeout,

		MaxOriginConnections: fc.LocalServer.MaxConnections,
		MaxReconnects:        fc.WebSocket.MaxReconnects,

		DashboardEnabled:  fc.Dashboard.Enabled,
		DashboardBindAddr: fc.Dashboard.BindAddr,
		DashboardPort:     fc.Dashboard.Port,

		PingInterval: fc.WebSocket.PingInterval,
		PongTimeout:  fc.WebSocket.PongTimeout,

		MaxFrameBytes: fc.WebSocket.MaxFrameBytes,
		MaxBodyBytes:  fc.LocalServer.MaxBodyBytes,

		LogLevel:  fc.Logging.Level,
		LogFormat: fc.Logging.Format,
		LogTheme:  fc.Logging.Theme,
	}
}

// applyRustLogFallback honours RUST_LOG the way the original implementation
// did, only when neither PORI_LOG_LEVEL nor --log-level were supplied.
func applyRustLogFallback(s *Settings) {
	if os.Getenv("PORI_LOG_LEVEL") != "" {
		return
	}
	if v := os.Getenv("RUST_LOG"); v != "" {
		s.LogLevel = strings.ToLower(strings.SplitN(v, "=", 2)[0])
	}
}

// ensureTokenParam appends ?token=<token> to the tunnel URL when the caller
// did not already include one (spec §4.5).
func ensureTokenParam(rawURL, token string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	if q.Get("token") == "" {
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func bindDefaults(v *viper.Viper, fc *FileConfig) {
	v.SetDefault("websocket.connect_timeout", fc.WebSocket.ConnectTimeout)
	v.SetDefault("websocket.ping_interval", fc.WebSocket.PingInterval)
	v.SetDefault("websocket.pong_timeout", fc.WebSocket.PongTimeout)
	v.SetDefault("websocket.max_reconnects", fc.WebSocket.MaxReconnects)
	v.SetDefault("websocket.max_frame_bytes", fc.WebSocket.MaxFrameBytes)

	v.SetDefault("local_server.verify_tls", fc.LocalServer.VerifyTLS)
	v.SetDefault("local_server.request_timeout", fc.LocalServer.RequestTimeout)
	v.SetDefault("local_server.max_connections", fc.LocalServer.MaxConnections)
	v.SetDefault("local_server.max_body_bytes", fc.LocalServer.MaxBodyBytes)

	v.SetDefault("dashboard.enabled", fc.Dashboard.Enabled)
	v.SetDefault("dashboard.bind_addr", fc.Dashboard.BindAddr)
	v.SetDefault("dashboard.port", fc.Dashboard.Port)

	v.SetDefault("logging.level", fc.Logging.Level)
	v.SetDefault("logging.format", fc.Logging.Format)
	v.SetDefault("logging.theme", fc.Logging.Theme)
}
