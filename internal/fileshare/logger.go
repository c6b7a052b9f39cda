package fileshare

// Logger provides structured logging for the server and client sessions.
// The args follow slog conventions: alternating key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// NopLogger is a Logger that discards all output. Use in tests.
type NopLogger struct{}

func NewNopLogger() *NopLogger { return &NopLogger{} }

func (*NopLogger) Debug(string, ...any) {}
func (*NopLogger) Info(string, ...any)  {}
func (*NopLogger) Warn(string, ...any)  {}
func (*NopLogger) Error(string, ...any) {}

// WithFields returns a Logger that prepends args to every call.
func WithFields(l Logger, args ...any) Logger {
	if len(args) == 0 {
		return l
	}
	if f, ok := l.(*fieldLogger); ok {
		merged := make([]any, 0, len(f.fields)+len(args))
		merged = append(merged, f.fields...)
		return &fieldLogger{base: f.base, fields: append(merged, args...)}
	}
	return &fieldLogger{base: l, fields: args}
}

type fieldLogger struct {
	base   Logger
	fields []any
}

func (f *fieldLogger) with(args []any) []any {
	out := make([]any, 0, len(f.fields)+len(args))
	out = append(out, f.fields...)
	return append(out, args...)
}

func (f *fieldLogger) Debug(msg string, args ...any) { f.base.Debug(msg, f.with(args)...) }
func (f *fieldLogger) Info(msg string, args ...any)  { f.base.Info(msg, f.with(args)...) }
func (f *fieldLogger) Warn(msg string, args ...any)  { f.base.Warn(msg, f.with(args)...) }
func (f *fieldLogger) Error(msg string, args ...any) { f.base.Error(msg, f.with(args)...) }
