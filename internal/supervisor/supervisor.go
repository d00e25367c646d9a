// Package supervisor implements C8: the reconnect loop that drives the
// tunnel session, forward engine, and reconnect policy through their full
// lifecycle, per spec §4.8.
package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/aduki-inc/pori/internal/adapter/codec"
	"github.com/aduki-inc/pori/internal/adapter/forward"
	"github.com/aduki-inc/pori/internal/adapter/origin"
	"github.com/aduki-inc/pori/internal/adapter/reconnect"
	"github.com/aduki-inc/pori/internal/adapter/tunnel"
	"github.com/aduki-inc/pori/internal/config"
	"github.com/aduki-inc/pori/internal/core/domain"
	"github.com/aduki-inc/pori/internal/core/ports"
	"github.com/aduki-inc/pori/internal/logger"
	"github.com/aduki-inc/pori/internal/state"
)

// Supervisor owns the reconnect loop: it builds a fresh tunnel.Session and
// forward.Engine pair for every connection attempt and decides, from the
// session's TerminationCause, whether to retry, back off, or stop for good.
type Supervisor struct {
	settings *config.Settings
	shared   *state.SharedState
	logger   *logger.StyledLogger
	policy   ports.ReconnectPolicy

	reconnectNow chan struct{}

	mu      sync.Mutex
	session *tunnel.Session
}

func New(settings *config.Settings, shared *state.SharedState, log *logger.StyledLogger) *Supervisor {
	policy := reconnect.New(reconnect.Config{
		MaxAttempts: settings.MaxReconnects,
	})
	return &Supervisor{
		settings:     settings,
		shared:       shared,
		logger:       log,
		policy:       policy,
		reconnectNow: make(chan struct{}, 1),
	}
}

// TriggerReconnect lets the dashboard's /api/reconnect force an immediate
// retry: it resets the backoff policy, and if a session is currently
// connected it is torn down immediately rather than waiting to fail on its
// own. In every case reconnectNow is signalled, which cuts short the backoff
// wait before the next attempt so that attempt is not delayed.
func (sv *Supervisor) TriggerReconnect() {
	sv.policy.Reset()

	sv.mu.Lock()
	session := sv.session
	sv.mu.Unlock()

	if session != nil {
		session.ForceTerminate()
	}

	select {
	case sv.reconnectNow <- struct{}{}:
	default:
	}
}

// Run drives the reconnect loop until the session terminates cleanly,
// terminates fatally, or ctx/shutdown fires. It returns the TerminationCause
// of the final attempt, or TerminationFatal once the reconnect policy allows
// no further attempts.
func (sv *Supervisor) Run(ctx context.Context) domain.TerminationCause {
	originClient := origin.New(origin.Config{
		OriginURL:       sv.settings.OriginURL,
		VerifyTLSOrigin: sv.settings.VerifyTLSOrigin,
		ConnectTimeout:  sv.settings.ConnectTimeout,
		RequestTimeout:  sv.settings.RequestTimeout,
		MaxConnections:  sv.settings.MaxOriginConnections,
		MaxBodyBytes:    sv.settings.MaxBodyBytes,
	}, sv.logger)
	defer originClient.Close()

	wireCodec := &codec.JSON{MaxFrameBytes: sv.settings.MaxFrameBytes}

	first := true
	for {
		if !first {
			sv.shared.SetStatus(domain.StatusReconnecting)
			if !sv.policy.ShouldAttempt() {
				sv.logger.Warn("reconnect attempts exhausted, giving up")
				return domain.TerminationFatal
			}
			delay := sv.policy.NextDelay()
			sv.logger.Info("waiting before reconnect attempt", "delay", delay.String(), "attempt", sv.policy.Attempts())
			select {
			case <-time.After(delay):
			case <-sv.reconnectNow:
			case <-ctx.Done():
				return domain.TerminationClean
			case <-sv.shared.ShutdownRequested():
				return domain.TerminationClean
			}
		}
		first = false

		cause, err := sv.runOnce(ctx, originClient, wireCodec)
		if err != nil {
			sv.logger.Warn("tunnel session ended", "cause", cause.String(), "error", err.Error())
			sv.shared.PublishError(err.Error())
		} else {
			sv.logger.Info("tunnel session ended", "cause", cause.String())
		}

		switch cause {
		case domain.TerminationClean:
			sv.shared.SetStatus(domain.StatusShuttingDown)
			return domain.TerminationClean
		case domain.TerminationFatal:
			sv.shared.SetStatus(domain.StatusDisconnected)
			return domain.TerminationFatal
		case domain.TerminationTransient:
			sv.shared.RecordReconnect()
		}

		select {
		case <-ctx.Done():
			return domain.TerminationClean
		case <-sv.shared.ShutdownRequested():
			return domain.TerminationClean
		default:
		}
	}
}

func (sv *Supervisor) runOnce(ctx context.Context, originClient ports.OriginClient, wireCodec ports.Codec) (domain.TerminationCause, error) {
	session := tunnel.New(tunnel.Config{
		TunnelURL:      sv.settings.TunnelURL,
		ConnectTimeout: sv.settings.ConnectTimeout,
		PingInterval:   sv.settings.PingInterval,
		PongTimeout:    sv.settings.PongTimeout,
		MaxFrameBytes:  sv.settings.MaxFrameBytes,
	}, wireCodec, nil, sv.shared, sv.policy, sv.logger)

	engine := forward.New(forward.Config{
		MaxOriginConnections: sv.settings.MaxOriginConnections,
		RequestTimeout:       sv.settings.RequestTimeout,
	}, originClient, wireCodec, session, sv.shared, sv.logger)

	session.SetHandler(engine)

	sv.mu.Lock()
	sv.session = session
	sv.mu.Unlock()
	defer func() {
		sv.mu.Lock()
		sv.session = nil
		sv.mu.Unlock()
	}()

	go engine.Run()
	defer engine.Stop()

	return session.Run(ctx, sv.shared.ShutdownRequested())
}
