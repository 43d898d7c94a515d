package tradesync

// Fields is a minimal structured field map for logs.
type Fields map[string]any

// Logger receives diagnostics from repositories and stream managers.
// Adapters for zap, logrus and slog live under log/; a nil Logger in Env or
// stream.Options is replaced by NopLogger.
type Logger interface {
	Debug(msg string, f Fields)
	Info(msg string, f Fields)
	Warn(msg string, f Fields)
	Error(msg string, f Fields)
}

type NopLogger struct{}

func (NopLogger) Debug(string, Fields) {}
func (NopLogger) Info(string, Fields)  {}
func (NopLogger) Warn(string, Fields)  {}
func (NopLogger) Error(string, Fields) {}

// WithFields returns a Logger that adds base to every call. Per-call fields
// win on key collisions.
func WithFields(l Logger, base Fields) Logger {
	if len(base) == 0 {
		return l
	}
	if _, nop := l.(NopLogger); nop {
		return l
	}
	if bl, ok := l.(boundLogger); ok {
		return boundLogger{next: bl.next, base: bl.base.merge(base)}
	}
	return boundLogger{next: l, base: base}
}

type boundLogger struct {
	next Logger
	base Fields
}

func (b boundLogger) Debug(msg string, f Fields) { b.next.Debug(msg, b.base.merge(f)) }
func (b boundLogger) Info(msg string, f Fields)  { b.next.Info(msg, b.base.merge(f)) }
func (b boundLogger) Warn(msg string, f Fields)  { b.next.Warn(msg, b.base.merge(f)) }
func (b boundLogger) Error(msg string, f Fields) { b.next.Error(msg, b.base.merge(f)) }

func (f Fields) merge(extra Fields) Fields {
	out := make(Fields, len(f)+len(extra))
	for k, v := range f {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
