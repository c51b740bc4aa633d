package es

import "log/slog"

type (
	valueOption[T any] struct{ v T }
	LogOption          valueOption[*slog.Logger]
)

// WithLog sets the logger of a component.
func WithLog(l *slog.Logger) LogOption { return LogOption{v: l} }

func logOrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
