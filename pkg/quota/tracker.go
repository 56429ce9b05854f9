package quota

import "sync"

// Tracker counts requests per author that are queued or being rendered.
//
// Completions reported by the display scheduler are not applied immediately: they wait in a
// pending list until Drain is called right before the next admission decision or stats read.
// Reporting a completion never blocks the reporter.
type Tracker struct {
	mu       sync.Mutex
	inFlight map[string]int

	pendingMu sync.Mutex
	pending   []string
}

func NewTracker() *Tracker {
	return &Tracker{
		inFlight: make(map[string]int),
	}
}

// TryAcquire increments the author's count when it is below limit.
// It returns the count after the call and whether the slot was granted.
func (t *Tracker) TryAcquire(author string, limit int) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	count := t.inFlight[author]
	if count >= limit {
		return count, false
	}

	count++
	t.inFlight[author] = count
	return count, true
}

// Release decrements the author's count, never below zero.
func (t *Tracker) Release(author string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.releaseLocked(author)
}

func (t *Tracker) releaseLocked(author string) {
	count := t.inFlight[author]
	if count <= 1 {
		delete(t.inFlight, author)
		return
	}

	t.inFlight[author] = count - 1
}

func (t *Tracker) InFlight(author string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.inFlight[author]
}

// Snapshot returns a copy of all non-zero counts.
func (t *Tracker) Snapshot() map[string]int {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]int, len(t.inFlight))
	for author, count := range t.inFlight {
		out[author] = count
	}
	return out
}

// Complete records that one of author's requests finished rendering.
func (t *Tracker) Complete(author string) {
	t.pendingMu.Lock()
	t.pending = append(t.pending, author)
	t.pendingMu.Unlock()
}

// Drain applies every pending completion and returns how many were applied.
func (t *Tracker) Drain() int {
	t.pendingMu.Lock()
	pending := t.pending
	t.pending = nil
	t.pendingMu.Unlock()

	if len(pending) == 0 {
		return 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, author := range pending {
		t.releaseLocked(author)
	}
	return len(pending)
}

// Pending reports how many completions wait to be drained.
func (t *Tracker) Pending() int {
	t.pendingMu.Lock()
	defer t.pendingMu.Unlock()

	return len(t.pending)
}
