// internal/logger/styled.go
package logger

import (
	"fmt"
	"log/slog"

	"github.com/pterm/pterm"

	"github.com/aduki-inc/pori/internal/core/domain"
	"github.com/aduki-inc/pori/theme"
)

// StyledLogger wraps slog.Logger with theme-aware formatting methods for the
// handful of log lines that benefit from inline colour, such as counters and
// tunnel request IDs. Everything else goes through the plain slog methods.
type StyledLogger struct {
	logger *slog.Logger
	theme  *theme.Theme
}

// NewStyledLogger creates a new styled logger with the given theme
func NewStyledLogger(logger *slog.Logger, theme *theme.Theme) *StyledLogger {
	return &StyledLogger{
		logger: logger,
		theme:  theme,
	}
}

func (sl *StyledLogger) Debug(msg string, args ...any) {
	sl.logger.Debug(msg, args...)
}

func (sl *StyledLogger) Info(msg string, args ...any) {
	sl.logger.Info(msg, args...)
}

func (sl *StyledLogger) Warn(msg string, args ...any) {
	sl.logger.Warn(msg, args...)
}

func (sl *StyledLogger) Error(msg string, args ...any) {
	sl.logger.Error(msg, args...)
}

// InfoWithCount appends a styled "(n)" suffix, used for e.g. active requests.
func (sl *StyledLogger) InfoWithCount(msg string, count int64, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", msg, sl.theme.Counts.Sprintf("(%d)", count))
	sl.logger.Info(styledMsg, args...)
}

// InfoWithRequestID logs an info line with the tunnel request_id styled inline.
func (sl *StyledLogger) InfoWithRequestID(msg string, requestID string, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", msg, sl.theme.RequestID.Sprint(requestID))
	sl.logger.Info(styledMsg, args...)
}

// WarnWithRequestID logs a warn line with the tunnel request_id styled inline.
func (sl *StyledLogger) WarnWithRequestID(msg string, requestID string, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", msg, sl.theme.RequestID.Sprint(requestID))
	sl.logger.Warn(styledMsg, args...)
}

// ErrorWithRequestID logs an error line with the tunnel request_id styled inline.
func (sl *StyledLogger) ErrorWithRequestID(msg string, requestID string, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", msg, sl.theme.RequestID.Sprint(requestID))
	sl.logger.Error(styledMsg, args...)
}

// InfoConnectionStatus logs a connection state transition with the status
// word coloured per spec: connected green; connecting, authenticating and
// reconnecting yellow; anything else red.
func (sl *StyledLogger) InfoConnectionStatus(msg string, status domain.ConnectionStatus, args ...any) {
	var colour pterm.Color
	switch status {
	case domain.StatusConnected:
		colour = pterm.FgGreen
	case domain.StatusReconnecting, domain.StatusConnecting, domain.StatusAuthenticating:
		colour = pterm.FgYellow
	default:
		colour = pterm.FgRed
	}
	styledMsg := fmt.Sprintf("%s %s", msg, pterm.NewStyle(colour, pterm.Bold).Sprint(string(status)))
	sl.logger.Info(styledMsg, args...)
}

// GetUnderlying returns the underlying slog.Logger for cases where direct access is needed
func (sl *StyledLogger) GetUnderlying() *slog.Logger {
	return sl.logger
}

// WithAttrs creates a new StyledLogger with additional structured attributes
func (sl *StyledLogger) WithAttrs(attrs ...slog.Attr) *StyledLogger {
	args := make([]any, 0, len(attrs)*2)
	for _, attr := range attrs {
		args = append(args, attr.Key, attr.Value)
	}

	return &StyledLogger{
		logger: sl.logger.With(args...),
		theme:  sl.theme,
	}
}

// With creates a new StyledLogger with additional key-value pairs
func (sl *StyledLogger) With(args ...any) *StyledLogger {
	return &StyledLogger{
		logger: sl.logger.With(args...),
		theme:  sl.theme,
	}
}

// NewWithTheme creates both a regular logger and a styled logger
func NewWithTheme(cfg *Config) (*slog.Logger, *StyledLogger, func(), error) {
	logger, cleanup, err := New(cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	appTheme := theme.GetTheme(cfg.Theme)
	styledLogger := NewStyledLogger(logger, appTheme)

	return logger, styledLogger, cleanup, nil
}
