package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"golang.org/x/time/rate"

	"upsidedown/pkg/bus"
	"upsidedown/pkg/channel"
	"upsidedown/pkg/config"
	"upsidedown/pkg/logger"
)

const channelName = "telegram"
const messagePreviewLimit = 240

// sender is the part of the bot API the adapter replies through.
type sender interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
}

// Adapter bridges Telegram updates into the pipeline and posts replies back to the chat.
type Adapter struct {
	cfg       config.TelegramConfig
	allowFrom map[string]struct{}
	admins    map[string]struct{}
	limiter   *rate.Limiter
	log       *slog.Logger
}

// NewAdapter validates Telegram configuration and constructs an adapter instance.
func NewAdapter(cfg config.TelegramConfig, log *slog.Logger) (*Adapter, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("channels.telegram.token is required")
	}

	if log == nil {
		log = slog.Default()
	}

	rps := cfg.SendRatePerSec
	if rps <= 0 {
		rps = config.DefaultSendRatePerSec
	}

	return &Adapter{
		cfg:       cfg,
		allowFrom: idSet(cfg.AllowFrom),
		admins:    idSet(cfg.Admins),
		limiter:   rate.NewLimiter(rate.Limit(rps), rps),
		log:       log.With("component", "channel.telegram"),
	}, nil
}

// Name returns the channel identifier used in bus metadata and logs.
func (a *Adapter) Name() string {
	return channelName
}

// Run starts Telegram long polling and forwards messages through the shared channel handler.
func (a *Adapter) Run(ctx context.Context, handler channel.Handler) error {
	if handler == nil {
		return errors.New("handler is required")
	}

	bot, err := telego.NewBot(strings.TrimSpace(a.cfg.Token))
	if err != nil {
		return fmt.Errorf("initialize telegram bot: %w", err)
	}

	updates, err := bot.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		return fmt.Errorf("start long polling: %w", err)
	}

	a.log.Info("Telegram channel started", "admins", len(a.admins))

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				if err := ctx.Err(); err != nil {
					return nil
				}
				return errors.New("telegram updates channel closed")
			}

			a.handleUpdate(ctx, bot, handler, update)
		}
	}
}

func (a *Adapter) handleUpdate(ctx context.Context, bot sender, handler channel.Handler, update telego.Update) {
	message := update.Message
	if message == nil {
		return
	}

	content := strings.TrimSpace(message.Text)
	if content == "" {
		return
	}
	if message.From == nil {
		a.log.Debug("Ignoring message without sender")
		return
	}

	senderID := strconv.FormatInt(message.From.ID, 10)
	if !a.senderAllowed(senderID) {
		a.log.Debug("Ignoring message from unauthorized sender", "sender_id", senderID)
		return
	}

	privileged := a.isAdmin(senderID)
	if privileged && channel.IsEcho(content) {
		a.log.Debug("Ignoring echoed reply", "sender_id", senderID)
		return
	}

	chatID := strconv.FormatInt(message.Chat.ID, 10)
	inbound := bus.InboundMessage{
		Channel:    channelName,
		SenderID:   senderID,
		ChatID:     chatID,
		Content:    content,
		RequestID:  uuid.NewString(),
		Privileged: privileged,
		Metadata: map[string]string{
			"update_id": strconv.Itoa(update.UpdateID),
		},
	}
	log := logger.WithMessage(a.log, channelName, senderID, inbound.RequestID)
	log.Info("Received message", "chat_id", chatID, "privileged", privileged, "content", previewText(content))

	outbound, err := handler(ctx, inbound)
	if errors.Is(err, channel.ErrNoReply) {
		log.Debug("No reply for message")
		return
	}
	if err != nil {
		log.Error("Failed to process inbound message", "error", err)
		return
	}

	responseText := strings.TrimSpace(outbound.Content)
	if responseText == "" {
		responseText = strings.TrimSpace(outbound.Error)
	}
	if responseText == "" {
		return
	}
	if !outbound.Deliver {
		log.Debug("Reply not delivered", "chat_id", chatID, "content", previewText(responseText))
		return
	}

	if err := a.limiter.Wait(ctx); err != nil {
		return
	}
	log.Info("Sending message", "chat_id", chatID, "content", previewText(responseText))
	if _, err := bot.SendMessage(ctx, tu.Message(tu.ID(message.Chat.ID), channel.FormatReply(responseText))); err != nil {
		log.Error("Failed to send telegram message", "error", err)
	}
}

// senderAllowed checks whether a sender is permitted by allow_from config.
//
// When no allow list is configured, all senders are accepted. Admins are always accepted.
func (a *Adapter) senderAllowed(senderID string) bool {
	if len(a.allowFrom) == 0 || a.isAdmin(senderID) {
		return true
	}

	_, ok := a.allowFrom[strings.TrimSpace(senderID)]
	return ok
}

func (a *Adapter) isAdmin(senderID string) bool {
	_, ok := a.admins[strings.TrimSpace(senderID)]
	return ok
}

// idSet normalizes configured Telegram user ids into a lookup set.
func idSet(ids []string) map[string]struct{} {
	if len(ids) == 0 {
		return nil
	}

	set := make(map[string]struct{}, len(ids))
	for _, value := range ids {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		set[trimmed] = struct{}{}
	}

	if len(set) == 0 {
		return nil
	}

	return set
}

// previewText returns a bounded log-safe preview of message text.
func previewText(text string) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) <= messagePreviewLimit {
		return trimmed
	}

	return trimmed[:messagePreviewLimit] + "..."
}
