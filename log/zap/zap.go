// Package zap adapts a *zap.Logger to tradesync.Logger.
package zap

import (
	"sort"

	"github.com/unkn0wn-root/tradesync"
	"go.uber.org/zap"
)

var _ tradesync.Logger = ZapLogger{}

type ZapLogger struct{ L *zap.Logger }

// New names the logger so repository and stream lines are easy to filter.
func New(l *zap.Logger) ZapLogger { return ZapLogger{L: l.Named("tradesync")} }

func (z ZapLogger) Debug(msg string, f tradesync.Fields) { z.L.Debug(msg, zf(f)...) }
func (z ZapLogger) Info(msg string, f tradesync.Fields)  { z.L.Info(msg, zf(f)...) }
func (z ZapLogger) Warn(msg string, f tradesync.Fields)  { z.L.Warn(msg, zf(f)...) }
func (z ZapLogger) Error(msg string, f tradesync.Fields) { z.L.Error(msg, zf(f)...) }

func zf(f tradesync.Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]zap.Field, 0, len(f))
	for _, k := range keys {
		switch v := f[k].(type) {
		case error:
			out = append(out, zap.NamedError(k, v))
		default:
			out = append(out, zap.Any(k, v))
		}
	}
	return out
}
