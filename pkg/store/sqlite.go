// Package store persists consumed password tokens and admitted messages in SQLite, so a
// restart neither revives used tokens nor resets the admitted message count.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"upsidedown/pkg/config"
	"upsidedown/pkg/display"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// Open creates the database file if needed and applies migrations.
func Open(ctx context.Context, cfg config.StoreConfig, log *slog.Logger) (*Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("store.path is required")
	}
	if log == nil {
		log = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db, log: log.With("component", "store.sqlite")}

	pragmas := []string{"PRAGMA journal_mode = WAL", "PRAGMA synchronous = NORMAL"}
	if timeout := cfg.BusyTimeout(); timeout > 0 {
		pragmas = append([]string{fmt.Sprintf("PRAGMA busy_timeout = %d", timeout.Milliseconds())}, pragmas...)
	}
	applyPragmas(ctx, db, pragmas, s.log)
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	s.log.Info("Store opened", "path", path)
	return s, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// applyPragmas runs each pragma and returns how many failed. A failed pragma leaves sqlite on
// its default setting, so it is logged and the store still opens.
func applyPragmas(ctx context.Context, db execer, pragmas []string, log *slog.Logger) int {
	failed := 0
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			log.Warn("Failed to apply sqlite pragma", "pragma", pragma, "error", err)
			failed++
		}
	}
	return failed
}

func (s *Store) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, string(b)); err != nil {
		return fmt.Errorf("migrate store: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RecordConsumed remembers that token was spent by senderID.
func (s *Store) RecordConsumed(ctx context.Context, token string, senderID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO consumed_tokens(token, sender_id, consumed_at) VALUES(?,?,?)
		 ON CONFLICT(token) DO NOTHING`,
		token, senderID, time.Now().UTC().Format(time.RFC3339Nano),
	)
	return err
}

// RecordAdmitted stores one admitted plain message. The text itself is not kept.
func (s *Store) RecordAdmitted(ctx context.Context, req display.Request) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO admissions(request_id, sender_id, channel, priority, length, admitted_at)
		 VALUES(?,?,?,?,?,?)`,
		req.ID, req.Author, req.Channel, req.Priority, len(req.Text), time.Now().UTC().Format(time.RFC3339Nano),
	)
	return err
}

// ConsumedTokens lists every token spent so far.
func (s *Store) ConsumedTokens(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT token FROM consumed_tokens ORDER BY consumed_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
	}
	return tokens, rows.Err()
}

// AdmittedCount returns the number of admitted plain messages.
func (s *Store) AdmittedCount(ctx context.Context) (uint64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM admissions`).Scan(&n); err != nil {
		return 0, err
	}
	return uint64(n), nil
}
