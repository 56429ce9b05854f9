package gateway

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"upsidedown/pkg/admission"
	"upsidedown/pkg/bus"
	"upsidedown/pkg/channel"
	"upsidedown/pkg/command"
	"upsidedown/pkg/logger"
	"upsidedown/pkg/normalize"
	"upsidedown/pkg/quota"
	"upsidedown/pkg/rejection"
)

const replyInternalError = "Something went wrong, please try again later"

// processor is the single consumer of the inbound stream. Each message is classified and
// either queued or answered before the next one is taken.
type processor struct {
	bus        *bus.MessageBus
	limits     *quota.Limits
	dispatcher *command.Dispatcher
	admission  *admission.Controller
	log        *slog.Logger
}

// Run consumes inbound messages until ctx ends or the bus closes.
func (p *processor) Run(ctx context.Context) {
	for {
		inbound, ok := p.bus.ConsumeInbound(ctx)
		if !ok {
			return
		}

		outbound := p.Process(ctx, inbound)
		if !p.bus.PublishOutbound(ctx, outbound) {
			return
		}
	}
}

// Process runs one message through normalization, command dispatch or admission. An empty
// Content means the message deserves no reply.
func (p *processor) Process(ctx context.Context, inbound bus.InboundMessage) bus.OutboundMessage {
	outbound := bus.OutboundMessage{
		Channel:   inbound.Channel,
		ChatID:    inbound.ChatID,
		SenderID:  inbound.SenderID,
		RequestID: inbound.RequestID,
		Deliver:   inbound.Privileged || p.limits.Debug(),
	}
	p.publishEvent(ctx, bus.EventMessageReceived, inbound, nil)
	log := logger.WithMessage(p.log, inbound.Channel, inbound.SenderID, inbound.RequestID)

	text := strings.TrimSpace(normalize.Normalize(inbound.Content))
	if text == "" {
		log.Debug("Ignoring empty message")
		return outbound
	}

	var (
		reply     string
		err       error
		isCommand = inbound.Privileged && !strings.HasPrefix(text, channel.EchoMarker)
	)
	if isCommand {
		reply, err = p.dispatcher.Execute(ctx, command.Caller{SenderID: inbound.SenderID, Channel: inbound.Channel}, text)
	} else {
		reply, err = p.admission.Submit(ctx, inbound.SenderID, inbound.Channel, text)
	}

	switch {
	case errors.Is(err, admission.ErrEmpty):
		log.Debug("Ignoring message without letters")
		return outbound
	case err != nil:
		rejected, ok := rejection.ReplyFromError(err)
		if !ok {
			log.Error("Failed to process message", "error", err)
			outbound.Error = err.Error()
			outbound.Content = replyInternalError
			p.bus.PublishEvent(ctx, bus.Event{
				Type:      bus.EventMessageRejected,
				Channel:   inbound.Channel,
				SenderID:  inbound.SenderID,
				RequestID: inbound.RequestID,
				Payload:   map[string]string{"category": rejection.CategoryFromError(err)},
				Error:     err.Error(),
			})
			return outbound
		}
		p.publishEvent(ctx, bus.EventMessageRejected, inbound, map[string]string{
			"category": rejection.CategoryFromError(err),
			"reason":   rejected,
		})
		outbound.Content = rejected
		return outbound
	}

	if isCommand {
		p.publishEvent(ctx, bus.EventCommandExecuted, inbound, map[string]string{"reply": reply})
	} else {
		p.publishEvent(ctx, bus.EventMessageAdmitted, inbound, nil)
	}
	outbound.Content = reply
	return outbound
}

func (p *processor) publishEvent(ctx context.Context, eventType bus.EventType, inbound bus.InboundMessage, payload map[string]string) {
	p.bus.PublishEvent(ctx, bus.Event{
		Type:      eventType,
		Channel:   inbound.Channel,
		SenderID:  inbound.SenderID,
		RequestID: inbound.RequestID,
		Payload:   payload,
	})
}
