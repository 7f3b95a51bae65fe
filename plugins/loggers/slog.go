// Package loggers provides external log sinks that subscribe to the bus's
// log channel like any other listener.
package loggers

import (
	"context"
	"log/slog"

	"github.com/cherrypy/magicbus"
)

// SlogSink bridges the bus's (message, level) log channel contract onto
// log/slog, mapping magicbus's four conventional levels onto slog's.
type SlogSink struct {
	logger *slog.Logger
}

// NewSlogSink wraps logger (slog.Default() if nil).
func NewSlogSink(logger *slog.Logger) *SlogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogSink{logger: logger}
}

// Listener returns the log-channel subscriber. It expects (msg string,
// level magicbus.LogLevel) as published by Bus.Log. A missing or non-LogLevel
// level is logged at info level and a non-string message as an empty
// string, since an external sink must not itself fail a publish over a
// malformed argument list.
func (s *SlogSink) Listener() magicbus.ListenerFunc {
	return func(args ...any) (any, error) {
		msg, level := parseLogArgs(args)
		s.logger.Log(context.Background(), slogLevel(level), msg, slog.String("bus_channel", magicbus.LogChannel))
		return nil, nil
	}
}

func parseLogArgs(args []any) (string, magicbus.LogLevel) {
	var msg string
	level := magicbus.LevelInfo
	if len(args) > 0 {
		if m, ok := args[0].(string); ok {
			msg = m
		}
	}
	if len(args) > 1 {
		if l, ok := args[1].(magicbus.LogLevel); ok {
			level = l
		}
	}
	return msg, level
}

func slogLevel(level magicbus.LogLevel) slog.Level {
	switch {
	case level >= magicbus.LevelError:
		return slog.LevelError
	case level >= magicbus.LevelWarn:
		return slog.LevelWarn
	case level >= magicbus.LevelInfo:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}
