package log

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ChannelHandler formats records as short one-line messages and offers them on a channel.
// Messages are dropped when the channel is full, so a slow reader never stalls the logger.
type ChannelHandler struct {
	ch    chan<- string
	level slog.Leveler
	attrs []slog.Attr
}

// NewChannelHandler returns a handler that sends records at or above level to ch.
func NewChannelHandler(ch chan<- string, level slog.Leveler) *ChannelHandler {
	return &ChannelHandler{ch: ch, level: level}
}

func (h *ChannelHandler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= h.level.Level()
}

func (h *ChannelHandler) Handle(_ context.Context, r slog.Record) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] ", r.Time.Format("15:04:05"))
	if r.Level >= slog.LevelWarn {
		sb.WriteString(r.Level.String())
		sb.WriteByte(' ')
	}
	sb.WriteString(r.Message)

	write := func(a slog.Attr) bool {
		if a.Equal(slog.Attr{}) {
			return true
		}
		fmt.Fprintf(&sb, " %s=%v", a.Key, a.Value.Any())
		return true
	}
	for _, a := range h.attrs {
		write(a)
	}
	r.Attrs(write)

	select {
	case h.ch <- sb.String():
	default:
		// Drop if channel full
	}
	return nil
}

func (h *ChannelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &next
}

// WithGroup is a no-op: the one-line format has no room for nesting.
func (h *ChannelHandler) WithGroup(string) slog.Handler {
	return h
}

// Fanout sends every record to all handlers that accept it.
type Fanout []slog.Handler

func (f Fanout) Enabled(ctx context.Context, l slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, l) {
			return true
		}
	}
	return false
}

func (f Fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f Fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make(Fanout, len(f))
	for i, h := range f {
		next[i] = h.WithAttrs(attrs)
	}
	return next
}

func (f Fanout) WithGroup(name string) slog.Handler {
	next := make(Fanout, len(f))
	for i, h := range f {
		next[i] = h.WithGroup(name)
	}
	return next
}
