package log

import (
	"context"
	"log/slog"
)

// SlogAdapter writes capture events to an slog.Logger at Debug level.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates an adapter writing to logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("conn_id", event.ConnectionID),
		slog.String("direction", event.Direction.String()),
		slog.String("layer", event.Layer.String()),
		slog.String("category", event.Category.String()),
	}
	if event.Transport != "" {
		attrs = append(attrs, slog.String("transport", event.Transport))
	}
	if event.SessionID != "" {
		attrs = append(attrs, slog.String("session_id", event.SessionID))
	}

	switch {
	case event.Frame != nil:
		attrs = append(attrs,
			slog.String("frame", event.Frame.Name),
			slog.String("line", event.Frame.Line),
		)
		if event.Frame.Truncated {
			attrs = append(attrs, slog.Int("size", event.Frame.Size))
		}
	case event.Request != nil:
		attrs = append(attrs,
			slog.Uint64("req_id", event.Request.ReqID),
			slog.String("op", event.Request.Op),
			slog.String("outcome", event.Request.Outcome.String()),
		)
		if event.Request.Cause != "" {
			attrs = append(attrs, slog.String("cause", event.Request.Cause))
		}
		if event.Request.Code != nil {
			attrs = append(attrs,
				slog.Int("code", *event.Request.Code),
				slog.String("message", event.Request.Message),
			)
		}
	case event.StateChange != nil:
		attrs = append(attrs,
			slog.String("entity", event.StateChange.Entity.String()),
			slog.String("old_state", event.StateChange.OldState),
			slog.String("new_state", event.StateChange.NewState),
		)
		if event.StateChange.EntityID != "" {
			attrs = append(attrs, slog.String("entity_id", event.StateChange.EntityID))
		}
		if event.StateChange.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.StateChange.Reason))
		}
	case event.Error != nil:
		attrs = append(attrs,
			slog.String("error_layer", event.Error.Layer.String()),
			slog.String("error_msg", event.Error.Message),
			slog.String("error_context", event.Error.Context),
		)
		if event.Error.Code != nil {
			attrs = append(attrs, slog.Int("error_code", *event.Error.Code))
		}
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "protocol", attrs...)
}

var _ Logger = (*SlogAdapter)(nil)
