// Package slog adapts a *slog.Logger to tradesync.Logger.
package slog

import (
	"context"
	stdslog "log/slog"
	"sort"
	"time"

	"github.com/unkn0wn-root/tradesync"
)

var _ tradesync.Logger = Logger{}

type Logger struct{ L *stdslog.Logger }

// New tags every record with component=tradesync. A nil logger uses slog.Default.
func New(l *stdslog.Logger) Logger {
	if l == nil {
		l = stdslog.Default()
	}
	return Logger{L: l.With(stdslog.String("component", "tradesync"))}
}

func (s Logger) Debug(msg string, f tradesync.Fields) { s.log(stdslog.LevelDebug, msg, f) }
func (s Logger) Info(msg string, f tradesync.Fields)  { s.log(stdslog.LevelInfo, msg, f) }
func (s Logger) Warn(msg string, f tradesync.Fields)  { s.log(stdslog.LevelWarn, msg, f) }
func (s Logger) Error(msg string, f tradesync.Fields) { s.log(stdslog.LevelError, msg, f) }

func (s Logger) log(level stdslog.Level, msg string, f tradesync.Fields) {
	ctx := context.Background()
	if !s.L.Enabled(ctx, level) {
		return
	}
	s.L.LogAttrs(ctx, level, msg, attrs(f)...)
}

// attrs sorts keys so text output is stable across runs.
func attrs(f tradesync.Fields) []stdslog.Attr {
	if len(f) == 0 {
		return nil
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]stdslog.Attr, 0, len(f))
	for _, k := range keys {
		switch v := f[k].(type) {
		case error:
			out = append(out, stdslog.String(k, v.Error()))
		case time.Duration:
			out = append(out, stdslog.Duration(k, v))
		default:
			out = append(out, stdslog.Any(k, v))
		}
	}
	return out
}
