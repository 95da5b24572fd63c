package log

import (
	"context"
	"log/slog"
)

// SlogAdapter prints protocol events through an slog.Logger. Events are
// logged at Level, except error events which use Warn.
type SlogAdapter struct {
	logger *slog.Logger

	// Level for everything but error events. Defaults to Debug.
	Level slog.Level
}

// NewSlogAdapter returns an adapter logging at Debug level.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger, Level: slog.LevelDebug}
}

// Log implements Logger.
func (a *SlogAdapter) Log(event Event) {
	level := a.Level
	if event.Error != nil {
		level = slog.LevelWarn
	}
	ctx := context.Background()
	if !a.logger.Enabled(ctx, level) {
		return
	}

	attrs := make([]slog.Attr, 0, 10)
	if event.ConnectionID != "" {
		attrs = append(attrs, slog.String("conn", event.ConnectionID), slog.String("dir", event.Direction.String()))
	}
	if event.ServerID != "" {
		attrs = append(attrs, slog.String("server", event.ServerID))
	}
	if event.Target != "" {
		attrs = append(attrs, slog.String("target", event.Target))
	}

	msg := "sila " + event.Category.String()
	switch {
	case event.Frame != nil:
		msg = "sila frame"
		attrs = append(attrs, slog.Int("size", event.Frame.Size))
		if event.Frame.Truncated {
			attrs = append(attrs, slog.Bool("truncated", true))
		}
	case event.Message != nil:
		attrs = append(attrs, messageAttrs(event.Message)...)
	case event.StateChange != nil:
		sc := event.StateChange
		attrs = append(attrs,
			slog.String(sc.Entity.String(), sc.ID),
			slog.String("from", sc.OldState),
			slog.String("to", sc.NewState))
		if sc.Reason != "" {
			attrs = append(attrs, slog.String("reason", sc.Reason))
		}
	case event.Transfer != nil:
		tr := event.Transfer
		attrs = append(attrs,
			slog.String("binary", tr.BinaryUUID),
			slog.Uint64("offset", tr.Offset),
			slog.Int("size", tr.Size))
		if tr.TotalSize > 0 {
			attrs = append(attrs, slog.Uint64("total", tr.TotalSize))
		}
	case event.Error != nil:
		attrs = append(attrs,
			slog.String("layer", event.Error.Layer.String()),
			slog.String("error", event.Error.Message))
		if event.Error.Context != "" {
			attrs = append(attrs, slog.String("context", event.Error.Context))
		}
		if event.Error.Code != nil {
			attrs = append(attrs, slog.Int("code", *event.Error.Code))
		}
	}
	a.logger.LogAttrs(ctx, level, msg, attrs...)
}

func messageAttrs(m *MessageEvent) []slog.Attr {
	attrs := []slog.Attr{
		slog.String("type", m.Type.String()),
		slog.Uint64("id", uint64(m.MessageID)),
	}
	if m.Operation != nil {
		attrs = append(attrs, slog.String("op", m.Operation.String()))
	}
	if m.Status != nil {
		attrs = append(attrs, slog.String("status", m.Status.String()))
	}
	if m.SubscriptionID != nil {
		attrs = append(attrs, slog.Uint64("subscription", uint64(*m.SubscriptionID)))
	}
	if m.Final {
		attrs = append(attrs, slog.Bool("final", true))
	}
	if m.ProcessingTime != nil {
		attrs = append(attrs, slog.Duration("took", *m.ProcessingTime))
	}
	return attrs
}

var _ Logger = (*SlogAdapter)(nil)
