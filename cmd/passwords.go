package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"upsidedown/pkg/config"
	"upsidedown/pkg/password"
	"upsidedown/pkg/store"

	"github.com/spf13/cobra"
)

var passwordsCmd = &cobra.Command{
	Use:   "passwords",
	Short: "Show password list usage",
	Long:  "Loads the one-time password list and reports how many tokens are available and how many were already consumed.",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args

		cfg, err := loadConfig()
		if err != nil {
			fmt.Printf("failed to load config: %v\n", err)
			return
		}

		if err := reportPasswords(cmd.Context(), cmd.OutOrStdout(), cfg, slog.New(slog.DiscardHandler)); err != nil {
			fmt.Printf("failed to read passwords: %v\n", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(passwordsCmd)
}

func reportPasswords(ctx context.Context, out io.Writer, cfg *config.Config, log *slog.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}

	tokens, err := password.Load(cfg.Passwords.Path)
	if err != nil {
		return err
	}
	pool := password.NewPool(tokens)

	if cfg.Store.Path != "" {
		st, err := store.Open(ctx, cfg.Store, log)
		if err != nil {
			return err
		}
		defer st.Close()

		consumed, err := st.ConsumedTokens(ctx)
		if err != nil {
			return fmt.Errorf("read consumed passwords: %w", err)
		}
		pool.MarkConsumed(consumed)
	}

	fmt.Fprintf(out, "list:      %s\n", cfg.Passwords.Path)
	fmt.Fprintf(out, "loaded:    %d\n", len(tokens))
	fmt.Fprintf(out, "available: %d\n", pool.Available())
	fmt.Fprintf(out, "consumed:  %d\n", pool.Consumed())
	return nil
}
