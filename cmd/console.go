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

	"upsidedown/pkg/channel/console"
	"upsidedown/pkg/config"
	"upsidedown/pkg/logger"

	"github.com/spf13/cobra"
)

const defaultConsoleLogFile = "upsidedown-console.log"

var consolePrivileged bool

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Run the wall with a local terminal channel",
	Long:  "Runs the gateway with the console channel in the foreground, mirroring the wall in the terminal. Logs go to a file while the UI is open.",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args

		cfg, err := loadConfig()
		if err != nil {
			fmt.Printf("failed to load config: %v\n", err)
			return
		}
		prepareConsoleConfig(cfg, cmd.Flags().Changed("privileged"), consolePrivileged)

		appLogger, err := logger.New(cfg.Logging)
		if err != nil {
			fmt.Printf("failed to initialize logger: %v\n", err)
			return
		}
		slog.SetDefault(appLogger)
		log := slog.Default().With("component", "cmd.console")

		runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		rt, err := newWallRuntime(runCtx, cfg, appLogger)
		if err != nil {
			fmt.Printf("failed to prepare wall runtime: %v\n", err)
			return
		}
		defer rt.close()

		adapters, err := enabledAdapters(cfg, rt.board, appLogger)
		if err != nil {
			fmt.Printf("gateway configuration invalid: %v\n", err)
			return
		}

		log.Info("Console started", "channels", enabledChannelNames(adapters), "log_file", cfg.Logging.File)
		if err := rt.run(runCtx, adapters); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, console.ErrClosed) {
				return
			}
			log.Error("Gateway runtime failed", "error", err)
			fmt.Printf("gateway stopped: %v\n", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(consoleCmd)
	consoleCmd.Flags().BoolVar(&consolePrivileged, "privileged", false, "send console messages as the wall operator (commands, replies always shown)")
}

// prepareConsoleConfig enables the console channel and moves logs off the terminal.
func prepareConsoleConfig(cfg *config.Config, privilegedSet bool, privileged bool) {
	cfg.Channels.Console.Enabled = true
	if privilegedSet {
		cfg.Channels.Console.Privileged = privileged
	}
	if strings.TrimSpace(cfg.Logging.File) == "" {
		cfg.Logging.File = defaultConsoleLogFile
	}
}
