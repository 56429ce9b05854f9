package gateway

import (
	"context"
	"log/slog"

	"upsidedown/pkg/bus"
	"upsidedown/pkg/logger"
)

// observeEvents logs every pipeline event until ctx ends or the bus closes.
func observeEvents(ctx context.Context, messageBus *bus.MessageBus, log *slog.Logger) {
	events, unsubscribe := messageBus.SubscribeEvents(ctx, 32)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			logEvent(log, event)
		}
	}
}

func logEvent(log *slog.Logger, event bus.Event) {
	attrs := []any{
		"event_type", string(event.Type),
		logger.KeyRequestID, event.RequestID,
		logger.KeyChannel, event.Channel,
		logger.KeySenderID, event.SenderID,
		"timestamp", event.At.UTC().Format("2006-01-02T15:04:05.999999999Z07:00"),
	}
	if len(event.Payload) > 0 {
		attrs = append(attrs, "payload", event.Payload)
	}

	switch event.Type {
	case bus.EventMessageRejected:
		if event.Payload["category"] == "failure" {
			log.Error("Wall event", append(attrs, "error", event.Error)...)
			return
		}
		log.Info("Wall event", attrs...)
	case bus.EventMessageAdmitted, bus.EventCommandExecuted, bus.EventDisplayFinished:
		log.Info("Wall event", attrs...)
	default:
		log.Debug("Wall event", attrs...)
	}
}
