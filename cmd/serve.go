package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"upsidedown/pkg/channel"
	"upsidedown/pkg/channel/console"
	"upsidedown/pkg/channel/telegram"
	"upsidedown/pkg/config"
	"upsidedown/pkg/display"
	"upsidedown/pkg/logger"

	"github.com/spf13/cobra"
)

const (
	telegramChannelName = "telegram"
	consoleChannelName  = "console"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the wall gateway",
	Long:  "Runs the configured channels, the admission pipeline and the display scheduler with health and readiness endpoints.",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args

		cfg, err := loadConfig()
		if err != nil {
			fmt.Printf("failed to load config: %v\n", err)
			return
		}

		appLogger, err := logger.New(cfg.Logging)
		if err != nil {
			fmt.Printf("failed to initialize logger: %v\n", err)
			return
		}
		slog.SetDefault(appLogger)
		log := slog.Default().With("component", "cmd.serve")

		runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		rt, err := newWallRuntime(runCtx, cfg, appLogger)
		if err != nil {
			log.Error("Failed to prepare wall runtime", "error", err)
			return
		}
		defer rt.close()

		adapters, err := enabledAdapters(cfg, rt.board, appLogger)
		if err != nil {
			log.Error("Gateway configuration invalid", "error", err)
			return
		}

		log.Info("Gateway starting", "channels", enabledChannelNames(adapters), "passwords", rt.passwords.Available())
		if err := rt.run(runCtx, adapters); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Error("Gateway runtime failed", "error", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func enabledAdapters(cfg *config.Config, board *display.Board, log *slog.Logger) ([]channel.Adapter, error) {
	adapters := make([]channel.Adapter, 0, 2)

	if cfg.Channels.Telegram.Enabled {
		adapter, err := telegram.NewAdapter(cfg.Channels.Telegram, log)
		if err != nil {
			return nil, fmt.Errorf("configure %s channel: %w", telegramChannelName, err)
		}
		adapters = append(adapters, adapter)
	}

	if cfg.Channels.Console.Enabled {
		var frames console.FrameSource
		if board != nil {
			frames = board
		}
		adapters = append(adapters, console.NewAdapter(cfg.Channels.Console, frames, log))
	}

	if len(adapters) == 0 {
		return nil, errors.New("no channels are enabled")
	}

	return adapters, nil
}

func enabledChannelNames(adapters []channel.Adapter) string {
	names := make([]string, 0, len(adapters))
	for _, adapter := range adapters {
		names = append(names, adapter.Name())
	}

	return strings.Join(names, ",")
}
