package logger

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"socks-relay/internal/domain"
)

// EventSink logs connection lifecycle events.
type EventSink struct {
	log *slog.Logger
}

func NewEventSink(log *slog.Logger) *EventSink {
	return &EventSink{log: log.WithGroup("conn")}
}

func (s *EventSink) Emit(ev domain.Event) {
	level := slog.LevelInfo
	msg := "Connection event"
	switch ev.Kind {
	case domain.EventAccepted:
		msg = "New client accepted"
	case domain.EventRejected:
		level = slog.LevelWarn
		msg = "Request rejected"
	case domain.EventUpstreamFailed:
		level = slog.LevelWarn
		msg = "Upstream connect failed"
	case domain.EventConnected:
		msg = "Connected to target"
	case domain.EventClosed:
		msg = "Connection closed"
	}

	ctx := context.Background()
	if !s.log.Enabled(ctx, level) {
		return
	}

	attrs := []slog.Attr{
		slog.String("id", ev.ConnID.String()),
		slog.Int("fd", ev.FD),
		slog.String("side", ev.Side.String()),
	}
	if ev.PeerID != uuid.Nil {
		attrs = append(attrs, slog.String("peer", ev.PeerID.String()))
	}
	if ev.Client.IsValid() {
		attrs = append(attrs, slog.String("client", ev.Client.String()))
	}
	if ev.Target.IsValid() {
		attrs = append(attrs, slog.String("target", ev.Target.String()))
	}
	if ev.Domain != "" {
		attrs = append(attrs, slog.String("domain", ev.Domain))
	}
	if ev.Bind.IsValid() {
		attrs = append(attrs, slog.String("bind", ev.Bind.String()))
	}
	switch ev.Kind {
	case domain.EventRejected, domain.EventUpstreamFailed:
		attrs = append(attrs, slog.Int("reply", int(ev.Reply)))
	case domain.EventClosed:
		attrs = append(attrs, slog.Uint64("bytes_in", ev.BytesIn), slog.Uint64("bytes_out", ev.BytesOut))
	}
	if ev.Reason != "" {
		attrs = append(attrs, slog.String("reason", ev.Reason))
	}

	s.log.LogAttrs(ctx, level, msg, attrs...)
}
