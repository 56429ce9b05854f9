package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"upsidedown/pkg/channel"
	"upsidedown/pkg/config"
	"upsidedown/pkg/display"
	"upsidedown/pkg/gateway"
	"upsidedown/pkg/password"
	"upsidedown/pkg/store"
)

// wallRuntime holds the collaborators shared by the serve and console commands.
type wallRuntime struct {
	cfg       *config.Config
	log       *slog.Logger
	passwords *password.Pool
	store     *store.Store
	board     *display.Board
	admitted  uint64
}

// newWallRuntime loads the password list and, when configured, restores consumed tokens and
// the admitted count from the store.
func newWallRuntime(ctx context.Context, cfg *config.Config, log *slog.Logger) (*wallRuntime, error) {
	pool, err := loadPasswordPool(cfg.Passwords.Path, log)
	if err != nil {
		return nil, err
	}

	rt := &wallRuntime{
		cfg:       cfg,
		log:       log,
		passwords: pool,
		board:     display.NewBoard(0, log),
	}

	if cfg.Store.Path == "" {
		return rt, nil
	}

	st, err := store.Open(ctx, cfg.Store, log)
	if err != nil {
		return nil, err
	}
	rt.store = st

	consumed, err := st.ConsumedTokens(ctx)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("restore consumed passwords: %w", err)
	}
	pool.MarkConsumed(consumed)

	admitted, err := st.AdmittedCount(ctx)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("restore admitted count: %w", err)
	}
	rt.admitted = admitted

	log.Info("State restored", "consumed_passwords", len(consumed), "admitted", admitted)
	return rt, nil
}

func (rt *wallRuntime) close() {
	if rt.store == nil {
		return
	}
	if err := rt.store.Close(); err != nil {
		rt.log.Warn("Failed to close store", "error", err)
	}
}

func (rt *wallRuntime) dependencies() gateway.Dependencies {
	deps := gateway.Dependencies{
		Device:          rt.board,
		Passwords:       rt.passwords,
		InitialAdmitted: rt.admitted,
	}
	if rt.store != nil {
		deps.Recorder = rt.store
	}

	return deps
}

// run starts the password watcher when enabled and blocks in the gateway.
func (rt *wallRuntime) run(ctx context.Context, adapters []channel.Adapter) error {
	svc, err := gateway.NewService(rt.cfg, adapters, rt.dependencies(), rt.log)
	if err != nil {
		return fmt.Errorf("initialize gateway service: %w", err)
	}

	if rt.cfg.Passwords.Watch {
		go func() {
			if err := password.Watch(ctx, rt.cfg.Passwords.Path, rt.passwords, rt.log); err != nil {
				rt.log.Warn("Password watcher stopped", "error", err)
			}
		}()
	}

	return svc.Run(ctx)
}

// loadPasswordPool reads the word list. A missing list starts an empty pool so the wall still
// runs; every other read error is fatal.
func loadPasswordPool(path string, log *slog.Logger) (*password.Pool, error) {
	tokens, err := password.Load(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Warn("Password list not found, password bypass disabled", "path", path)
			return password.NewPool(nil), nil
		}
		return nil, err
	}

	log.Info("Password list loaded", "path", path, "tokens", len(tokens))
	return password.NewPool(tokens), nil
}
