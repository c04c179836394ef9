// logutil.go - Logger-Konstruktion und Trace-Level
// Enthaelt: NewLogger, LevelTrace, Trace/TraceWith
package logutil

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"runtime"
	"time"
)

// LevelTrace liegt unterhalb von Debug und wird fuer Tensor-Dumps verwendet
const LevelTrace slog.Level = -8

// NewLogger erstellt einen Text-Logger. Quellangaben werden nur ab Debug
// ausgegeben, damit normale Laeufe kompakt bleiben.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: level <= slog.LevelDebug,
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			// nur Top-Level-Attribute, verschachtelte "source"-Felder bleiben
			if len(groups) > 0 {
				return attr
			}

			switch attr.Key {
			case slog.LevelKey:
				switch attr.Value.Any().(slog.Level) {
				case LevelTrace:
					attr.Value = slog.StringValue("TRACE")
				}
			case slog.SourceKey:
				if source, ok := attr.Value.Any().(*slog.Source); ok {
					source.File = filepath.Base(source.File)
				}
			}
			return attr
		},
	}))
}

// Trace loggt auf dem Default-Logger mit LevelTrace
func Trace(msg string, args ...any) {
	trace(context.TODO(), slog.Default(), msg, args...)
}

// TraceWith loggt mit LevelTrace auf einem injizierten Logger
func TraceWith(ctx context.Context, logger *slog.Logger, msg string, args ...any) {
	trace(ctx, logger, msg, args...)
}

func trace(ctx context.Context, logger *slog.Logger, msg string, args ...any) {
	if logger == nil || !logger.Enabled(ctx, LevelTrace) {
		return
	}

	// Callers, trace, Trace/TraceWith ueberspringen
	var pcs [1]uintptr
	runtime.Callers(3, pcs[:])

	r := slog.NewRecord(time.Now(), LevelTrace, msg, pcs[0])
	r.Add(args...)
	_ = logger.Handler().Handle(ctx, r)
}
