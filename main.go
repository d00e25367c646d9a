package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/aduki-inc/pori/internal/adapter/dashboard"
	"github.com/aduki-inc/pori/internal/config"
	"github.com/aduki-inc/pori/internal/core/domain"
	"github.com/aduki-inc/pori/internal/logger"
	"github.com/aduki-inc/pori/internal/state"
	"github.com/aduki-inc/pori/internal/supervisor"
	"github.com/aduki-inc/pori/internal/version"
)

// Exit codes per spec §6/§7: 1 is a startup/config failure, 2 is a fatal
// session termination (auth rejected, reconnect attempts exhausted).
const exitFatalSession = 2

func main() {
	vlog := log.New(log.Writer(), "", 0)
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		version.PrintVersionInfo(true, vlog)
		os.Exit(0)
	}
	version.PrintVersionInfo(false, vlog)

	settings, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "pori: %v\n", err)
		os.Exit(1)
	}
	if settings == nil {
		// --help or --version was handled by flag parsing.
		os.Exit(0)
	}

	lcfg := &logger.Config{
		Level:      settings.LogLevel,
		Theme:      settings.LogTheme,
		PrettyLogs: settings.LogFormat != "json",
	}
	logInstance, styledLogger, cleanup, err := logger.NewWithTheme(lcfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pori: failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()
	slog.SetDefault(logInstance)

	styledLogger.Info("starting pori", "version", version.Version, "pid", os.Getpid(), "tunnel_url", redactToken(settings.TunnelURL))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shared := state.New()
	defer shared.Close()

	sv := supervisor.New(settings, shared, styledLogger)

	if settings.DashboardEnabled {
		dash := dashboard.New(dashboard.Config{
			BindAddr:             settings.DashboardBindAddr,
			Port:                 settings.DashboardPort,
			TunnelURL:            redactToken(settings.TunnelURL),
			OriginURL:            settings.OriginURL,
			MaxOriginConnections: settings.MaxOriginConnections,
			MaxReconnects:        settings.MaxReconnects,
			PingInterval:         settings.PingInterval,
			PongTimeout:          settings.PongTimeout,
		}, shared, sv, styledLogger)

		go func() {
			if err := dash.Start(ctx); err != nil {
				styledLogger.Error("dashboard server stopped", "error", err)
			}
		}()
	}

	cause := sv.Run(ctx)
	styledLogger.InfoConnectionStatus("pori stopped", shared.Status())
	shared.Shutdown()

	if cause == domain.TerminationFatal {
		os.Exit(exitFatalSession)
	}
}

// redactToken strips a ?token=... query parameter before the URL is logged
// or echoed back by the dashboard's /api/config.
func redactToken(rawURL string) string {
	const marker = "token="
	idx := strings.Index(rawURL, marker)
	if idx < 0 {
		return rawURL
	}
	end := idx + len(marker)
	if amp := strings.IndexByte(rawURL[end:], '&'); amp >= 0 {
		end += amp
	} else {
		end = len(rawURL)
	}
	return rawURL[:idx] + "token=REDACTED" + rawURL[end:]
}
