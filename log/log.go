// Package log defines the injectable logging surface used throughout this
// driver. Callers supply a Logger (or accept the no-op default); nothing in
// this module reaches for a global logger.
package log

import (
	"fmt"
	"log/slog"
)

// Logger is the minimal surface every layer of the driver logs through.
type Logger interface {
	Errorf(format string, args ...any)
	Warnf(format string, args ...any)
	Infof(format string, args ...any)
	Debugf(format string, args ...any)
}

// BoltLogger is a secondary, opt-in sink for raw wire-protocol trace: one
// line per message sent or received, before any higher-level formatting.
// Most deployments leave this nil; it exists for driver-level debugging of
// the wire itself, separate from the structured Logger above.
type BoltLogger interface {
	LogClientMessage(connID string, format string, args ...any)
	LogServerMessage(connID string, format string, args ...any)
}

// Noop discards everything. It is the default when no Logger is configured.
type Noop struct{}

func (Noop) Errorf(string, ...any) {}
func (Noop) Warnf(string, ...any)  {}
func (Noop) Infof(string, ...any)  {}
func (Noop) Debugf(string, ...any) {}

// Slog adapts a *slog.Logger to this package's Logger interface.
type Slog struct {
	L *slog.Logger
}

func NewSlog(l *slog.Logger) *Slog {
	if l == nil {
		l = slog.Default()
	}
	return &Slog{L: l}
}

func (s *Slog) Errorf(format string, args ...any) { s.L.Error(fmt.Sprintf(format, args...)) }
func (s *Slog) Warnf(format string, args ...any)  { s.L.Warn(fmt.Sprintf(format, args...)) }
func (s *Slog) Infof(format string, args ...any)  { s.L.Info(fmt.Sprintf(format, args...)) }
func (s *Slog) Debugf(format string, args ...any) { s.L.Debug(fmt.Sprintf(format, args...)) }
