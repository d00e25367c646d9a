package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadDefaultsValidatesWithMinimalOverrides(t *testing.T) {
	settings, err := Load([]string{"--url", "wss://relay.example.com/tunnel", "--token", "secret"})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if settings.OriginURL == "" {
		t.Fatalf("expected a default origin_url, got empty")
	}
	if settings.DashboardPort != DefaultDashboardPort {
		t.Errorf("expected default dashboard port %d, got %d", DefaultDashboardPort, settings.DashboardPort)
	}
	if settings.MaxOriginConnections != DefaultMaxOriginConnections {
		t.Errorf("expected default max connections %d, got %d", DefaultMaxOriginConnections, settings.MaxOriginConnections)
	}
	if settings.MaxFrameBytes != DefaultMaxFrameBytes {
		t.Errorf("expected default max frame bytes %d, got %d", DefaultMaxFrameBytes, settings.MaxFrameBytes)
	}
}

func TestLoadAppendsTokenQueryParam(t *testing.T) {
	settings, err := Load([]string{"--url", "wss://relay.example.com/tunnel", "--token", "secret"})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.TunnelURL != "wss://relay.example.com/tunnel?token=secret" {
		t.Errorf("expected token to be appended, got %q", settings.TunnelURL)
	}
}

func TestLoadDoesNotDuplicateExistingTokenParam(t *testing.T) {
	settings, err := Load([]string{"--url", "wss://relay.example.com/tunnel?token=already-there", "--token", "secret"})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.TunnelURL != "wss://relay.example.com/tunnel?token=already-there" {
		t.Errorf("expected existing token param preserved, got %q", settings.TunnelURL)
	}
}

func TestLoadRejectsMissingTunnelURL(t *testing.T) {
	if _, err := Load([]string{"--token", "secret"}); err == nil {
		t.Fatal("expected validation error for missing tunnel_url")
	}
}

func TestLoadRejectsMissingToken(t *testing.T) {
	if _, err := Load([]string{"--url", "wss://relay.example.com/tunnel"}); err == nil {
		t.Fatal("expected validation error for missing token")
	}
}

func TestLoadEnvironmentOverridesDefaults(t *testing.T) {
	os.Setenv("PORI_DASHBOARD_PORT", "9001")
	defer os.Unsetenv("PORI_DASHBOARD_PORT")

	settings, err := Load([]string{"--url", "wss://relay.example.com/tunnel", "--token", "secret"})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.DashboardPort != 9001 {
		t.Errorf("expected env override to set dashboard port 9001, got %d", settings.DashboardPort)
	}
}

func TestLoadCLIOverridesEnvironment(t *testing.T) {
	os.Setenv("PORI_DASHBOARD_PORT", "9001")
	defer os.Unsetenv("PORI_DASHBOARD_PORT")

	settings, err := Load([]string{
		"--url", "wss://relay.example.com/tunnel",
		"--token", "secret",
		"--dashboard-port", "9002",
	})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.DashboardPort != 9002 {
		t.Errorf("expected CLI override to win with dashboard port 9002, got %d", settings.DashboardPort)
	}
}

func TestLoadNoDashboardFlagDisablesDashboard(t *testing.T) {
	settings, err := Load([]string{
		"--url", "wss://relay.example.com/tunnel",
		"--token", "secret",
		"--no-dashboard",
	})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.DashboardEnabled {
		t.Error("expected dashboard to be disabled by --no-dashboard")
	}
}

func TestLoadTimeoutFlagSetsRequestTimeout(t *testing.T) {
	settings, err := Load([]string{
		"--url", "wss://relay.example.com/tunnel",
		"--token", "secret",
		"--timeout", "45",
	})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if settings.RequestTimeout != 45*time.Second {
		t.Errorf("expected request_timeout 45s, got %v", settings.RequestTimeout)
	}
}

func TestSettingsValidateRejectsBadTunnelScheme(t *testing.T) {
	s := &Settings{
		TunnelURL:            "http://relay.example.com",
		Token:                "secret",
		OriginURL:            "http://localhost:11434",
		ConnectTimeout:       DefaultConnectTimeout,
		RequestTimeout:       DefaultRequestTimeout,
		MaxOriginConnections: DefaultMaxOriginConnections,
		DashboardEnabled:     false,
		PingInterval:         DefaultPingInterval,
		PongTimeout:          DefaultPongTimeout,
		MaxFrameBytes:        DefaultMaxFrameBytes,
		MaxBodyBytes:         DefaultMaxBodyBytes,
		LogLevel:             "info",
	}
	if err := s.Validate(); err == nil {
		t.Fatal("expected validation error for http:// tunnel_url")
	}
}

func TestSettingsValidateRejectsOutOfRangeDashboardPort(t *testing.T) {
	s := &Settings{
		TunnelURL:            "wss://relay.example.com",
		Token:                "secret",
		OriginURL:            "http://localhost:11434",
		ConnectTimeout:       DefaultConnectTimeout,
		RequestTimeout:       DefaultRequestTimeout,
		MaxOriginConnections: DefaultMaxOriginConnections,
		DashboardEnabled:     true,
		DashboardBindAddr:    DefaultDashboardHost,
		DashboardPort:        70000,
		PingInterval:         DefaultPingInterval,
		PongTimeout:          DefaultPongTimeout,
		MaxFrameBytes:        DefaultMaxFrameBytes,
		MaxBodyBytes:         DefaultMaxBodyBytes,
		LogLevel:             "info",
	}
	if err := s.Validate(); err == nil {
		t.Fatal("expected validation error for out-of-range dashboard_port")
	}
}
