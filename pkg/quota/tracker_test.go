package quota

import (
	"sync"
	"testing"
	"time"
)

func TestTryAcquireRespectsLimit(t *testing.T) {
	t.Parallel()

	tr := NewTracker()
	for i := 1; i <= 5; i++ {
		count, ok := tr.TryAcquire("x", 5)
		if !ok {
			t.Fatalf("acquire %d denied", i)
		}
		if count != i {
			t.Fatalf("count = %d, want %d", count, i)
		}
	}

	count, ok := tr.TryAcquire("x", 5)
	if ok {
		t.Fatal("expected acquire beyond limit to be denied")
	}
	if count != 5 {
		t.Fatalf("count after denial = %d, want 5", count)
	}
	if got := tr.InFlight("y"); got != 0 {
		t.Fatalf("InFlight(y) = %d, want 0", got)
	}
}

func TestReleaseNeverNegative(t *testing.T) {
	t.Parallel()

	tr := NewTracker()
	tr.Release("ghost")
	if got := tr.InFlight("ghost"); got != 0 {
		t.Fatalf("InFlight = %d, want 0", got)
	}

	tr.TryAcquire("x", 5)
	tr.Release("x")
	tr.Release("x")
	if got := tr.InFlight("x"); got != 0 {
		t.Fatalf("InFlight = %d, want 0", got)
	}
	if snap := tr.Snapshot(); len(snap) != 0 {
		t.Fatalf("Snapshot = %v, want empty", snap)
	}
}

func TestCompletionsApplyOnlyOnDrain(t *testing.T) {
	t.Parallel()

	tr := NewTracker()
	tr.TryAcquire("x", 5)
	tr.TryAcquire("x", 5)

	tr.Complete("x")
	if got := tr.InFlight("x"); got != 2 {
		t.Fatalf("InFlight before drain = %d, want 2", got)
	}
	if got := tr.Pending(); got != 1 {
		t.Fatalf("Pending = %d, want 1", got)
	}

	if got := tr.Drain(); got != 1 {
		t.Fatalf("Drain = %d, want 1", got)
	}
	if got := tr.InFlight("x"); got != 1 {
		t.Fatalf("InFlight after drain = %d, want 1", got)
	}
	if got := tr.Drain(); got != 0 {
		t.Fatalf("second Drain = %d, want 0", got)
	}
}

func TestCompleteNeverBlocksWithoutDrain(t *testing.T) {
	t.Parallel()

	tr := NewTracker()
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10000; i++ {
			tr.Complete("x")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Complete blocked without a drain")
	}
	if got := tr.Pending(); got != 10000 {
		t.Fatalf("Pending = %d, want 10000", got)
	}
	if got := tr.Drain(); got != 10000 {
		t.Fatalf("Drain = %d, want 10000", got)
	}
	if got := tr.Pending(); got != 0 {
		t.Fatalf("Pending after drain = %d, want 0", got)
	}
}

func TestConcurrentAcquireNeverExceedsLimit(t *testing.T) {
	t.Parallel()

	tr := NewTracker()
	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := tr.TryAcquire("x", 5); ok {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if granted != 5 {
		t.Fatalf("granted = %d, want 5", granted)
	}
}

func TestLimitsSettersReturnPrevious(t *testing.T) {
	t.Parallel()

	l := NewLimits(25, 5, false)
	if old := l.SetMaxMessageLength(10); old != 25 {
		t.Fatalf("old length = %d, want 25", old)
	}
	if old := l.SetMaxMessagesPerAuthor(3); old != 5 {
		t.Fatalf("old messages = %d, want 5", old)
	}
	if old := l.SetDebug(true); old {
		t.Fatal("old debug = true, want false")
	}

	snap := l.Snapshot()
	if snap.MaxMessageLength != 10 || snap.MaxMessagesPerAuthor != 3 || !snap.Debug {
		t.Fatalf("snapshot = %+v", snap)
	}
}
