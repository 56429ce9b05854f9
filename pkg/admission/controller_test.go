package admission

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"upsidedown/pkg/display"
	"upsidedown/pkg/normalize"
	"upsidedown/pkg/password"
	"upsidedown/pkg/quota"
	"upsidedown/pkg/rejection"
)

type fakeQueue struct {
	mu   sync.Mutex
	reqs []display.Request
	err  error
}

func (q *fakeQueue) Enqueue(req display.Request) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.err != nil {
		return q.err
	}
	q.reqs = append(q.reqs, req)
	return nil
}

func (q *fakeQueue) last() display.Request {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.reqs[len(q.reqs)-1]
}

type fakeRecorder struct {
	mu       sync.Mutex
	consumed []string
	admitted int
}

func (r *fakeRecorder) RecordConsumed(_ context.Context, token string, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.consumed = append(r.consumed, token)
	return nil
}

func (r *fakeRecorder) RecordAdmitted(context.Context, display.Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.admitted++
	return errors.New("disk full")
}

type fixture struct {
	limits   *quota.Limits
	tracker  *quota.Tracker
	pool     *password.Pool
	queue    *fakeQueue
	recorder *fakeRecorder
	c        *Controller
}

func newFixture(t *testing.T, tokens ...string) *fixture {
	t.Helper()

	f := &fixture{
		limits:   quota.NewLimits(25, 5, false),
		tracker:  quota.NewTracker(),
		pool:     password.NewPool(tokens),
		queue:    &fakeQueue{},
		recorder: &fakeRecorder{},
	}
	f.c = NewController(Options{
		Limits:    f.limits,
		Tracker:   f.tracker,
		Passwords: f.pool,
		Queue:     f.queue,
		Recorder:  f.recorder,
	})
	return f
}

const limitsReply = "You reached one or more of the limits. Max number of characters per message is 25.\nMax number of messages enqueued per user is 5"

func TestPlainMessageAdmitted(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	reply, err := f.c.Submit(context.Background(), "x", "telegram", normalize.Normalize("hello world"))
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	if reply != "Your message was placed into the queue" {
		t.Fatalf("reply = %q", reply)
	}

	req := f.queue.last()
	if req.Text != "HELLOWORLD" || req.Priority != display.PriorityPlain || !req.Counted || req.Channel != "telegram" {
		t.Fatalf("queued request = %+v", req)
	}
	if got := f.tracker.InFlight("x"); got != 1 {
		t.Fatalf("InFlight(x) = %d, want 1", got)
	}
	if got := f.c.Admitted(); got != 1 {
		t.Fatalf("Admitted = %d, want 1", got)
	}
	if f.recorder.admitted != 1 {
		t.Fatalf("recorder admitted = %d, want 1", f.recorder.admitted)
	}
}

func TestPlainMessageAtQuotaRejected(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	for i := range 5 {
		if _, err := f.c.SubmitPlain(ctx, "x", "telegram", fmt.Sprintf("HI %d", i)); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}

	_, err := f.c.SubmitPlain(ctx, "x", "telegram", "ONE MORE")
	if reply, ok := rejection.ReplyFromError(err); !ok || reply != limitsReply {
		t.Fatalf("error = %v, want limits rejection", err)
	}
	if rejection.CategoryFromError(err) != rejection.CategoryPolicy {
		t.Fatalf("category = %q, want policy", rejection.CategoryFromError(err))
	}
	if got := f.tracker.InFlight("x"); got != 5 {
		t.Fatalf("InFlight(x) = %d, want 5", got)
	}
	if got := f.c.Stats().Rejected; got != 1 {
		t.Fatalf("Rejected = %d, want 1", got)
	}

	if _, err := f.c.SubmitPlain(ctx, "y", "telegram", "OTHER"); err != nil {
		t.Fatalf("other author rejected: %v", err)
	}
}

func TestPlainMessageTooLongRejected(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := f.c.SubmitPlain(context.Background(), "x", "telegram", strings.Repeat("A", 26))
	if reply, _ := rejection.ReplyFromError(err); reply != limitsReply {
		t.Fatalf("error = %v, want combined limits rejection", err)
	}
	if got := f.tracker.InFlight("x"); got != 0 {
		t.Fatalf("InFlight(x) = %d, want 0", got)
	}
}

func TestCompletionsDrainedBeforeQuotaCheck(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.limits.SetMaxMessagesPerAuthor(1)
	ctx := context.Background()

	if _, err := f.c.SubmitPlain(ctx, "x", "telegram", "FIRST"); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	f.tracker.Complete("x")

	if _, err := f.c.SubmitPlain(ctx, "x", "telegram", "SECOND"); err != nil {
		t.Fatalf("second submit after completion: %v", err)
	}
	if got := f.tracker.InFlight("x"); got != 1 {
		t.Fatalf("InFlight(x) = %d, want 1", got)
	}
}

func TestNoiseIsIgnored(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	for _, raw := range []string{"", "123 !!", normalize.Normalize("🙂🙂")} {
		if _, err := f.c.Submit(context.Background(), "x", "telegram", raw); !errors.Is(err, ErrEmpty) {
			t.Fatalf("Submit(%q) error = %v, want ErrEmpty", raw, err)
		}
	}
	if got := f.c.Stats(); got != (Stats{}) {
		t.Fatalf("stats changed by noise: %+v", got)
	}
}

func TestPasswordBypassesQuotaOnce(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "TOKEN123")
	f.limits.SetMaxMessagesPerAuthor(1)
	ctx := context.Background()
	if _, err := f.c.SubmitPlain(ctx, "x", "telegram", "FULL"); err != nil {
		t.Fatalf("fill quota: %v", err)
	}

	reply, err := f.c.Submit(ctx, "x", "telegram", "#TOKEN123 HELLO")
	if err != nil {
		t.Fatalf("password submit: %v", err)
	}
	if reply != "Message was placed into the queue without checking" {
		t.Fatalf("reply = %q", reply)
	}
	req := f.queue.last()
	if req.Text != "HELLO" || req.Priority != display.PriorityPassword || req.Counted {
		t.Fatalf("queued request = %+v", req)
	}
	if got := f.tracker.InFlight("x"); got != 1 {
		t.Fatalf("InFlight(x) = %d, want 1 (password path must not count)", got)
	}
	if f.pool.Available() != 0 {
		t.Fatal("expected token removed from pool")
	}
	if len(f.recorder.consumed) != 1 || f.recorder.consumed[0] != "TOKEN123" {
		t.Fatalf("recorded consumed = %v", f.recorder.consumed)
	}

	_, err = f.c.Submit(ctx, "y", "telegram", "#TOKEN123 AGAIN")
	if reply, _ := rejection.ReplyFromError(err); reply != "Invalid password." {
		t.Fatalf("second use error = %v, want Invalid password.", err)
	}
}

func TestPasswordFormat(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "ALFA")
	for _, text := range []string{"#", "#ALFA", "#ALFA 123", "#  "} {
		_, err := f.c.Submit(context.Background(), "x", "telegram", text)
		if reply, _ := rejection.ReplyFromError(err); reply != "Invalid password format" {
			t.Fatalf("Submit(%q) error = %v, want Invalid password format", text, err)
		}
		if rejection.CategoryFromError(err) != rejection.CategoryValidation {
			t.Fatalf("Submit(%q) category = %q", text, rejection.CategoryFromError(err))
		}
	}
	if f.pool.Available() != 1 {
		t.Fatal("malformed submissions must not consume the token")
	}

	reply, err := f.c.Submit(context.Background(), "x", "telegram", "# ALFA  HI 2 YOU!")
	if err != nil {
		t.Fatalf("Submit error: %v (%q)", err, reply)
	}
	if got := f.queue.last().Text; got != "HI  YOU" {
		t.Fatalf("queued text = %q, want digits removed", got)
	}
}

func TestPasswordQueueFullReturnsToken(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "ALFA")
	f.queue.err = display.ErrQueueFull

	_, err := f.c.Submit(context.Background(), "x", "telegram", "#ALFA HI")
	if rejection.CategoryFromError(err) != rejection.CategoryPolicy {
		t.Fatalf("error = %v, want policy rejection", err)
	}
	if f.pool.Available() != 1 {
		t.Fatal("expected token to be returned to the pool")
	}

	_, err = f.c.SubmitPlain(context.Background(), "x", "telegram", "HI")
	if rejection.CategoryFromError(err) != rejection.CategoryPolicy {
		t.Fatalf("error = %v, want policy rejection", err)
	}
	if got := f.tracker.InFlight("x"); got != 0 {
		t.Fatalf("InFlight(x) = %d, want 0 after failed enqueue", got)
	}
}

func TestConcurrentPasswordSingleWinner(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "ALFA")
	var (
		wg  sync.WaitGroup
		won atomic.Int32
	)
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.c.Submit(context.Background(), fmt.Sprint(i), "telegram", "#ALFA HELLO"); err == nil {
				won.Add(1)
			}
		}()
	}
	wg.Wait()

	if won.Load() != 1 {
		t.Fatalf("winners = %d, want 1", won.Load())
	}
}
