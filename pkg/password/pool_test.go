package password

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestConsumeRemovesToken(t *testing.T) {
	t.Parallel()

	pool := NewPool([]string{"TOKEN123", "AHOJ", "AHOJ", ""})
	if got := pool.Available(); got != 2 {
		t.Fatalf("Available = %d, want 2", got)
	}

	if !pool.Consume("TOKEN123") {
		t.Fatal("expected first consume to succeed")
	}
	if pool.Consume("TOKEN123") {
		t.Fatal("expected second consume to fail")
	}
	if pool.Consume("MISSING") {
		t.Fatal("expected unknown token to fail")
	}
	if got := pool.Consumed(); got != 1 {
		t.Fatalf("Consumed = %d, want 1", got)
	}

	token, ok := pool.Draw()
	if !ok || token != "AHOJ" {
		t.Fatalf("Draw = %q, %v; want AHOJ", token, ok)
	}
	if got := pool.Available(); got != 1 {
		t.Fatalf("Draw must not consume, Available = %d", got)
	}
}

func TestConcurrentConsumeSingleWinner(t *testing.T) {
	t.Parallel()

	pool := NewPool([]string{"ONCE"})
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if pool.Consume("ONCE") {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := wins.Load(); got != 1 {
		t.Fatalf("wins = %d, want 1", got)
	}
}

func TestReloadKeepsConsumedTokensConsumed(t *testing.T) {
	t.Parallel()

	pool := NewPool([]string{"A", "B"})
	pool.Consume("A")
	if got := pool.Reload([]string{"A", "B", "C"}); got != 2 {
		t.Fatalf("Reload = %d, want 2", got)
	}
	if pool.Consume("A") {
		t.Fatal("consumed token came back after reload")
	}

	pool.MarkConsumed([]string{"C", "Z"})
	if pool.Consume("C") {
		t.Fatal("expected marked token to be gone")
	}
	if got := pool.Reload([]string{"Z"}); got != 0 {
		t.Fatalf("Reload with marked token = %d, want 0", got)
	}
}

func TestReturnRestoresToken(t *testing.T) {
	t.Parallel()

	pool := NewPool([]string{"ALFA"})
	pool.Return("ALFA")
	if got := pool.Available(); got != 1 {
		t.Fatalf("Available after returning unused token = %d, want 1", got)
	}

	if !pool.Consume("ALFA") {
		t.Fatal("expected ALFA to be consumable")
	}
	pool.Return("ALFA")
	if pool.Consumed() != 0 || pool.Available() != 1 {
		t.Fatalf("consumed=%d available=%d, want 0 and 1", pool.Consumed(), pool.Available())
	}
	if !pool.Consume("ALFA") {
		t.Fatal("expected returned token to be consumable again")
	}
}

func TestDrawEmptyPool(t *testing.T) {
	t.Parallel()

	if _, ok := NewPool(nil).Draw(); ok {
		t.Fatal("expected empty pool draw to fail")
	}
}

func TestParseNormalizesWords(t *testing.T) {
	t.Parallel()

	tokens, err := Parse(strings.NewReader("ahoj\r\n\n  Žába \nTOKEN123\n"))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	want := []string{"AHOJ", "ZABA", "TOKEN123"}
	if len(tokens) != len(want) {
		t.Fatalf("tokens = %v, want %v", tokens, want)
	}
	for i := range want {
		if tokens[i] != want[i] {
			t.Fatalf("tokens[%d] = %q, want %q", i, tokens[i], want[i])
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Fatal("expected error for missing word list")
	}
}

func TestWatchReloadsOnWrite(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "word-list.txt")
	if err := os.WriteFile(path, []byte("one\n"), 0o600); err != nil {
		t.Fatalf("write word list: %v", err)
	}

	pool := NewPool([]string{"ONE"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- Watch(ctx, path, pool, nil) }()

	// Give the watcher a moment to register the directory.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("one\ntwo\nthree\n"), 0o600); err != nil {
		t.Fatalf("rewrite word list: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) && pool.Available() != 3 {
		time.Sleep(20 * time.Millisecond)
	}
	if got := pool.Available(); got != 3 {
		t.Fatalf("Available after reload = %d, want 3", got)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Watch error: %v", err)
	}
}
