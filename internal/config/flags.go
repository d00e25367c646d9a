package config

import (
	"flag"
	"fmt"
	"time"
)

// CLIOverrides holds the subset of flags the operator actually passed: every
// field is a pointer so Load can tell "not set" apart from "set to zero
// value" when layering CLI > env > file > defaults (spec §6).
type CLIOverrides struct {
	TunnelURL      *string
	Token          *string
	Protocol       *string
	Port           *int
	DashboardPort  *int
	LogLevel       *string
	ConfigPath     *string
	YMLPath        *string
	NoDashboard    *bool
	TimeoutSeconds *int
	MaxReconnects  *int
	VerifyTLS      *bool
	MaxConnections *int

	ShowHelp    bool
	ShowVersion bool
}

// newFlagSet builds the FlagSet Load parses os.Args[1:] (or a test slice)
// against.
func newFlagSet() *flag.FlagSet {
	return flag.NewFlagSet("pori", flag.ContinueOnError)
}

// ParseFlags parses the CLI surface described in spec §6. It never reads
// the environment or a config file itself; Load merges those separately.
func ParseFlags(fs *flag.FlagSet, args []string) (*CLIOverrides, error) {
	o := &CLIOverrides{}

	var (
		url            string
		token          string
		protocol       string
		port           int
		dashboardPort  int
		logLevel       string
		configPath     string
		ymlPath        string
		noDashboard    bool
		timeoutSeconds int
		maxReconnects  int
		verifySSL      bool
		maxConnections int
	)

	fs.StringVar(&url, "url", "", "remote tunnel URL (wss:// or ws://)")
	fs.StringVar(&token, "token", "", "tunnel authentication token")
	fs.StringVar(&protocol, "protocol", "", "local origin protocol: http or https")
	fs.IntVar(&port, "port", 0, "local origin port")
	fs.IntVar(&dashboardPort, "dashboard-port", 0, "dashboard listen port")
	fs.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	fs.StringVar(&configPath, "config", "", "path to a config file (yaml, toml or json)")
	fs.StringVar(&ymlPath, "yml", "", "alias of --config for a YAML file")
	fs.BoolVar(&noDashboard, "no-dashboard", false, "disable the local dashboard server")
	fs.IntVar(&timeoutSeconds, "timeout", 0, "request timeout in seconds")
	fs.IntVar(&maxReconnects, "max-reconnects", -1, "maximum reconnect attempts, 0 for unbounded")
	fs.BoolVar(&verifySSL, "verify-ssl", false, "verify the local origin's TLS certificate")
	fs.IntVar(&maxConnections, "max-connections", 0, "maximum concurrent origin connections")
	fs.BoolVar(&o.ShowHelp, "help", false, "show usage and exit")
	fs.BoolVar(&o.ShowVersion, "version", false, "show version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parsing flags: %w", err)
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "url":
			o.TunnelURL = &url
		case "token":
			o.Token = &token
		case "protocol":
			o.Protocol = &protocol
		case "port":
			o.Port = &port
		case "dashboard-port":
			o.DashboardPort = &dashboardPort
		case "log-level":
			o.LogLevel = &logLevel
		case "config":
			o.ConfigPath = &configPath
		case "yml":
			o.YMLPath = &ymlPath
		case "no-dashboard":
			o.NoDashboard = &noDashboard
		case "timeout":
			o.TimeoutSeconds = &timeoutSeconds
		case "max-reconnects":
			o.MaxReconnects = &maxReconnects
		case "verify-ssl":
			o.VerifyTLS = &verifySSL
		case "max-connections":
			o.MaxConnections = &maxConnections
		}
	})

	return o, nil
}

// applyCLIOverrides layers CLI-supplied values on top of an already
// file+env-merged Settings, the last and highest-precedence layer of §6.
func applyCLIOverrides(s *Settings, o *CLIOverrides) {
	if o == nil {
		return
	}
	if o.TunnelURL != nil {
		s.TunnelURL = *o.TunnelURL
	}
	if o.Token != nil {
		s.Token = *o.Token
	}
	if o.Protocol != nil || o.Port != nil {
		protocol := "http"
		if s.OriginURL != "" {
			if schemeIdx := len("https://"); len(s.OriginURL) >= schemeIdx && s.OriginURL[:schemeIdx] == "https://" {
				protocol = "https"
			}
		}
		if o.Protocol != nil {
			protocol = *o.Protocol
		}
		port := DefaultLocalOriginPort
		if o.Port != nil {
			port = *o.Port
		}
		s.OriginURL = fmt.Sprintf("%s://localhost:%d", protocol, port)
	}
	if o.DashboardPort != nil {
		s.DashboardPort = *o.DashboardPort
	}
	if o.LogLevel != nil {
		s.LogLevel = *o.LogLevel
	}
	if o.NoDashboard != nil && *o.NoDashboard {
		s.DashboardEnabled = false
	}
	if o.TimeoutSeconds != nil {
		s.RequestTimeout = time.Duration(*o.TimeoutSeconds) * time.Second
	}
	if o.MaxReconnects != nil && *o.MaxReconnects >= 0 {
		s.MaxReconnects = *o.MaxReconnects
	}
	if o.VerifyTLS != nil {
		s.VerifyTLSOrigin = *o.VerifyTLS
	}
	if o.MaxConnections != nil && *o.MaxConnections > 0 {
		s.MaxOriginConnections = *o.MaxConnections
	}
}
