package main

import "log/slog"

// slogLogger adapts *slog.Logger to engine.Logger so every library
// package depends only on the narrow interface, never on log/slog
// itself, per SPEC_FULL.md §9's logging boundary.
type slogLogger struct {
	logger *slog.Logger
}

func (l slogLogger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }
func (l slogLogger) Info(msg string, args ...any)  { l.logger.Info(msg, args...) }
func (l slogLogger) Warn(msg string, args ...any)  { l.logger.Warn(msg, args...) }
func (l slogLogger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }
