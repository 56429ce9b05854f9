package logger

import "log/slog"

// Attribute keys identifying one message on its way from a channel to the wall.
const (
	KeyChannel   = "channel"
	KeySenderID  = "sender_id"
	KeyRequestID = "request_id"
)

// WithMessage scopes log to one inbound message. Empty identifiers are left out.
func WithMessage(log *slog.Logger, channel string, senderID string, requestID string) *slog.Logger {
	if log == nil {
		log = slog.Default()
	}

	attrs := make([]any, 0, 6)
	if channel != "" {
		attrs = append(attrs, KeyChannel, channel)
	}
	if senderID != "" {
		attrs = append(attrs, KeySenderID, senderID)
	}
	if requestID != "" {
		attrs = append(attrs, KeyRequestID, requestID)
	}
	if len(attrs) == 0 {
		return log
	}
	return log.With(attrs...)
}
