package types

import (
	"context"
	"log/slog"
)

// SlogFrom returns a *slog.Logger for l. A nil l yields slog.Default(); a
// logger that already wraps slog is unwrapped.
func SlogFrom(l Logger) *slog.Logger {
	switch v := l.(type) {
	case nil:
		return slog.Default()
	case *slog.Logger:
		return v
	default:
		return slog.New(slogAdapter{logger: l})
	}
}

// slogAdapter bridges a Logger into a slog.Handler. Attrs are stored with
// their group prefix already applied.
type slogAdapter struct {
	attrs  []slog.Attr
	logger Logger
	group  string // current group prefix from WithGroup calls
}

// Enabled implements slog.Handler.
func (a slogAdapter) Enabled(ctx context.Context, level slog.Level) bool {
	return true
}

// Handle implements slog.Handler.
//
//nolint:gocritic // slog.Handler interface requires passing Record by value
func (a slogAdapter) Handle(ctx context.Context, r slog.Record) error {
	args := make([]any, 0, (len(a.attrs)+r.NumAttrs())*2)

	for _, attr := range a.attrs {
		args = append(args, attr.Key, attr.Value.Any())
	}
	r.Attrs(func(attr slog.Attr) bool {
		args = append(args, a.qualify(attr.Key), attr.Value.Any())
		return true
	})

	switch {
	case r.Level >= slog.LevelError:
		a.logger.Error(r.Message, args...)
	case r.Level >= slog.LevelWarn:
		a.logger.Warn(r.Message, args...)
	case r.Level >= slog.LevelInfo:
		a.logger.Info(r.Message, args...)
	default:
		a.logger.Debug(r.Message, args...)
	}
	return nil
}

func (a slogAdapter) qualify(key string) string {
	if a.group == "" {
		return key
	}
	return a.group + "." + key
}

// WithAttrs implements slog.Handler.
func (a slogAdapter) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(a.attrs), len(a.attrs)+len(attrs))
	copy(newAttrs, a.attrs)
	for _, attr := range attrs {
		newAttrs = append(newAttrs, slog.Any(a.qualify(attr.Key), attr.Value.Any()))
	}
	return slogAdapter{
		logger: a.logger,
		attrs:  newAttrs,
		group:  a.group,
	}
}

// WithGroup implements slog.Handler.
func (a slogAdapter) WithGroup(name string) slog.Handler {
	newGroup := name
	if a.group != "" {
		newGroup = a.group + "." + name
	}
	return slogAdapter{
		logger: a.logger,
		attrs:  a.attrs,
		group:  newGroup,
	}
}
