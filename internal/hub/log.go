package hub

import (
	"context"
	"log/slog"

	"go.klb.dev/clipdrag/internal/logging"
	"go.klb.dev/clipdrag/internal/message"
)

// LogMessage logs a received message at DEBUG: its type and sequence number,
// plus a text preview (up to 120 chars) for drags and the position for
// window reports.
func LogMessage(log *slog.Logger, event string, msg *message.Message) {
	if !log.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	attrs := []any{"type", msg.Type}
	if msg.Seq != 0 {
		attrs = append(attrs, "seq", msg.Seq)
	}
	if msg.Text != "" {
		attrs = append(attrs, "preview", logging.Preview(msg.Text))
	}
	if msg.Position != nil {
		attrs = append(attrs, "position", msg.Position.String())
	}
	if msg.Action != "" {
		attrs = append(attrs, "action", msg.Action)
	}
	log.Debug(event, attrs...)
}
