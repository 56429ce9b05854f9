package store

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"upsidedown/pkg/config"
	"upsidedown/pkg/display"
)

func openTestStore(t *testing.T, path string) *Store {
	t.Helper()

	s, err := Open(context.Background(), config.StoreConfig{Path: path, BusyTimeoutMs: 1000}, nil)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	return s
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data", "upsidedown.db")

	s := openTestStore(t, path)
	if err := s.RecordConsumed(ctx, "ALFA", "1"); err != nil {
		t.Fatalf("RecordConsumed error: %v", err)
	}
	if err := s.RecordConsumed(ctx, "ALFA", "2"); err != nil {
		t.Fatalf("RecordConsumed duplicate error: %v", err)
	}
	for _, text := range []string{"HELLO", "WORLD"} {
		req := display.NewTextRequest(display.PriorityPlain, text, "1", "telegram", true)
		if err := s.RecordAdmitted(ctx, req); err != nil {
			t.Fatalf("RecordAdmitted error: %v", err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	s = openTestStore(t, path)
	defer s.Close()

	tokens, err := s.ConsumedTokens(ctx)
	if err != nil {
		t.Fatalf("ConsumedTokens error: %v", err)
	}
	if len(tokens) != 1 || tokens[0] != "ALFA" {
		t.Fatalf("ConsumedTokens = %v, want [ALFA]", tokens)
	}

	n, err := s.AdmittedCount(ctx)
	if err != nil {
		t.Fatalf("AdmittedCount error: %v", err)
	}
	if n != 2 {
		t.Fatalf("AdmittedCount = %d, want 2", n)
	}
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := Open(context.Background(), config.StoreConfig{}, nil); err == nil {
		t.Fatal("expected error for empty path")
	}
}

type failingExecer struct {
	fail    string
	queries []string
}

func (f *failingExecer) ExecContext(_ context.Context, query string, _ ...any) (sql.Result, error) {
	f.queries = append(f.queries, query)
	if query == f.fail {
		return nil, errors.New("pragma rejected")
	}
	return nil, nil
}

func TestApplyPragmasLogsFailuresAndContinues(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	db := &failingExecer{fail: "PRAGMA journal_mode = WAL"}

	failed := applyPragmas(context.Background(), db, []string{"PRAGMA busy_timeout = 1000", "PRAGMA journal_mode = WAL", "PRAGMA synchronous = NORMAL"}, log)
	if failed != 1 {
		t.Fatalf("failed = %d, want 1", failed)
	}
	if len(db.queries) != 3 {
		t.Fatalf("queries = %v, want all three pragmas attempted", db.queries)
	}

	out := buf.String()
	if !strings.Contains(out, "level=WARN") || !strings.Contains(out, "Failed to apply sqlite pragma") {
		t.Fatalf("expected warning log, got %q", out)
	}
	if !strings.Contains(out, "pragma rejected") || !strings.Contains(out, "journal_mode") {
		t.Fatalf("warning should name the pragma and error, got %q", out)
	}
}

func TestOpenAppliesJournalMode(t *testing.T) {
	t.Parallel()

	s := openTestStore(t, filepath.Join(t.TempDir(), "upsidedown.db"))
	defer s.Close()

	var mode string
	if err := s.db.QueryRowContext(context.Background(), "PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("query journal_mode: %v", err)
	}
	if !strings.EqualFold(mode, "wal") {
		t.Fatalf("journal_mode = %q, want wal", mode)
	}
}
