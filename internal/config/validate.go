package config

import (
	"net/url"
	"strings"

	"github.com/aduki-inc/pori/internal/core/domain"
)

// Validate checks a merged Settings value against §3's invariants. It is
// the last step of Load and the only place startup Configuration errors
// (spec §7, exit code 1) are raised.
func (s *Settings) Validate() error {
	if s.TunnelURL == "" {
		return domain.NewConfigValidationError("tunnel_url", s.TunnelURL, "must not be empty")
	}
	u, err := url.Parse(s.TunnelURL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return domain.NewConfigValidationError("tunnel_url", s.TunnelURL, "must be a ws:// or wss:// URL")
	}

	if s.Token == "" {
		return domain.NewConfigValidationError("token", "", "must not be empty")
	}

	if s.OriginURL == "" {
		return domain.NewConfigValidationError("origin_url", s.OriginURL, "must not be empty")
	}
	ou, err := url.Parse(s.OriginURL)
	if err != nil || (ou.Scheme != "http" && ou.Scheme != "https") {
		return domain.NewConfigValidationError("origin_url", s.OriginURL, "must be an http:// or https:// URL")
	}

	if s.ConnectTimeout <= 0 {
		return domain.NewConfigValidationError("connect_timeout", s.ConnectTimeout, "must be positive")
	}
	if s.RequestTimeout <= 0 {
		return domain.NewConfigValidationError("request_timeout", s.RequestTimeout, "must be positive")
	}
	if s.MaxOriginConnections <= 0 {
		return domain.NewConfigValidationError("max_origin_connections", s.MaxOriginConnections, "must be positive")
	}
	if s.MaxReconnects < 0 {
		return domain.NewConfigValidationError("max_reconnects", s.MaxReconnects, "must be non-negative")
	}

	if s.DashboardEnabled {
		if s.DashboardPort <= 0 || s.DashboardPort > 65535 {
			return domain.NewConfigValidationError("dashboard_port", s.DashboardPort, "must be between 1 and 65535")
		}
		if s.DashboardBindAddr == "" {
			return domain.NewConfigValidationError("dashboard_bind_addr", s.DashboardBindAddr, "must not be empty")
		}
	}

	if s.PingInterval <= 0 {
		return domain.NewConfigValidationError("ping_interval", s.PingInterval, "must be positive")
	}
	if s.PongTimeout <= 0 {
		return domain.NewConfigValidationError("pong_timeout", s.PongTimeout, "must be positive")
	}
	if s.MaxFrameBytes <= 0 {
		return domain.NewConfigValidationError("max_frame_bytes", s.MaxFrameBytes, "must be positive")
	}
	if s.MaxBodyBytes <= 0 {
		return domain.NewConfigValidationError("max_body_bytes", s.MaxBodyBytes, "must be positive")
	}

	switch strings.ToLower(s.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return domain.NewConfigValidationError("logging.level", s.LogLevel, "must be one of debug, info, warn, error")
	}

	return nil
}
