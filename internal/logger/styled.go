package logger

import (
	"fmt"
	"log/slog"

	"github.com/olla-labs/estransport/internal/core/domain"
)

// StyledLogger wraps slog.Logger with a handful of domain-aware
// convenience methods for connection-centric log lines. The pool and
// transport packages do not log through it.
type StyledLogger struct {
	logger *slog.Logger
}

func NewStyledLogger(logger *slog.Logger) *StyledLogger {
	return &StyledLogger{logger: logger}
}

func (sl *StyledLogger) Debug(msg string, args ...any) { sl.logger.Debug(msg, args...) }
func (sl *StyledLogger) Info(msg string, args ...any)  { sl.logger.Info(msg, args...) }
func (sl *StyledLogger) Warn(msg string, args ...any)  { sl.logger.Warn(msg, args...) }
func (sl *StyledLogger) Error(msg string, args ...any) { sl.logger.Error(msg, args...) }

func (sl *StyledLogger) InfoWithCount(msg string, count int, args ...any) {
	sl.logger.Info(fmt.Sprintf("%s (%d)", msg, count), args...)
}

func (sl *StyledLogger) InfoWithConnection(msg string, connID string, args ...any) {
	sl.logger.Info(fmt.Sprintf("%s %s", msg, connID), args...)
}

func (sl *StyledLogger) WarnWithConnection(msg string, connID string, args ...any) {
	sl.logger.Warn(fmt.Sprintf("%s %s", msg, connID), args...)
}

func (sl *StyledLogger) ErrorWithConnection(msg string, connID string, args ...any) {
	sl.logger.Error(fmt.Sprintf("%s %s", msg, connID), args...)
}

// InfoHealthStatus logs a connection's health state as
// "<msg> <connID> is <status>".
func (sl *StyledLogger) InfoHealthStatus(msg string, connID string, status domain.ConnectionStatus, args ...any) {
	sl.logger.Info(fmt.Sprintf("%s %s is %s", msg, connID, status), args...)
}

// GetUnderlying returns the underlying slog.Logger for direct access.
func (sl *StyledLogger) GetUnderlying() *slog.Logger {
	return sl.logger
}

// With creates a new StyledLogger with additional key-value pairs.
func (sl *StyledLogger) With(args ...any) *StyledLogger {
	return &StyledLogger{logger: sl.logger.With(args...)}
}
