// Package console is the local terminal channel. The operator types messages into a bubbletea
// UI that also mirrors the wall.
package console

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"upsidedown/pkg/bus"
	"upsidedown/pkg/channel"
	"upsidedown/pkg/config"
	"upsidedown/pkg/display"
	"upsidedown/pkg/logger"
	consoleui "upsidedown/pkg/ui/console"
)

const (
	channelName = "console"
	chatID      = "local"
)

// ErrClosed is returned by Run when the operator quits the UI.
var ErrClosed = errors.New("console closed")

// FrameSource is a wall that can be mirrored, such as *display.Board.
type FrameSource interface {
	Subscribe(buffer int) (<-chan display.Frame, func())
}

type runFunc func(ctx context.Context, sendFn consoleui.SendFunc, opts consoleui.Options) error

type Adapter struct {
	cfg    config.ConsoleConfig
	frames FrameSource
	run    runFunc
	log    *slog.Logger
}

// NewAdapter builds the console channel. frames may be nil when the device cannot be mirrored.
func NewAdapter(cfg config.ConsoleConfig, frames FrameSource, log *slog.Logger) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	if strings.TrimSpace(cfg.SenderID) == "" {
		cfg.SenderID = config.DefaultConsoleSenderID
	}

	return &Adapter{
		cfg:    cfg,
		frames: frames,
		run:    consoleui.Run,
		log:    log.With("component", "channel.console"),
	}
}

func (a *Adapter) Name() string {
	return channelName
}

// Run blocks until the operator quits, which returns ErrClosed, or ctx ends.
func (a *Adapter) Run(ctx context.Context, handler channel.Handler) error {
	opts := consoleui.Options{
		Info: consoleui.Info{SenderID: a.cfg.SenderID, Privileged: a.cfg.Privileged},
	}
	if a.frames != nil {
		frames, unsubscribe := a.frames.Subscribe(64)
		defer unsubscribe()
		opts.Frames = frames
	}

	a.log.Info("Console channel started", "sender_id", a.cfg.SenderID, "privileged", a.cfg.Privileged)
	if err := a.run(ctx, a.sender(handler), opts); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return nil
	}
	return ErrClosed
}

func (a *Adapter) sender(handler channel.Handler) consoleui.SendFunc {
	return func(ctx context.Context, text string) (consoleui.Reply, error) {
		inbound := bus.InboundMessage{
			Channel:    channelName,
			SenderID:   a.cfg.SenderID,
			ChatID:     chatID,
			Content:    text,
			RequestID:  uuid.NewString(),
			Privileged: a.cfg.Privileged,
		}

		log := logger.WithMessage(a.log, channelName, inbound.SenderID, inbound.RequestID)
		log.Debug("Console message received", "text_len", len(text))

		reply, err := handler(ctx, inbound)
		if err != nil {
			if !errors.Is(err, channel.ErrNoReply) {
				log.Error("Failed to process console message", "error", err)
			}
			return consoleui.Reply{}, err
		}

		content := strings.TrimSpace(reply.Content)
		if content == "" {
			return consoleui.Reply{Delivered: reply.Deliver}, nil
		}
		return consoleui.Reply{Content: channel.FormatReply(content), Delivered: reply.Deliver}, nil
	}
}
