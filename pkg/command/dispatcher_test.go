package command

import (
	"context"
	"errors"
	"strings"
	"testing"

	"upsidedown/pkg/display"
	"upsidedown/pkg/password"
	"upsidedown/pkg/quota"
	"upsidedown/pkg/rejection"
)

type fakeQueue struct {
	reqs []display.Request
	err  error
}

func (q *fakeQueue) Enqueue(req display.Request) error {
	if q.err != nil {
		return q.err
	}
	q.reqs = append(q.reqs, req)
	return nil
}

func (q *fakeQueue) Len() int { return len(q.reqs) }

type fixture struct {
	limits  *quota.Limits
	tracker *quota.Tracker
	queue   *fakeQueue
	pool    *password.Pool
	d       *Dispatcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		limits:  quota.NewLimits(25, 5, false),
		tracker: quota.NewTracker(),
		queue:   &fakeQueue{},
		pool:    password.NewPool([]string{"ALFA"}),
	}
	f.d = NewDispatcher(Dependencies{
		Limits:    f.limits,
		Tracker:   f.tracker,
		Queue:     f.queue,
		Passwords: f.pool,
		Admitted:  func() uint64 { return 7 },
	})
	return f
}

var admin = Caller{SenderID: "admin", Channel: "telegram"}

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text     string
		wantKind Kind
		wantArgs string
		wantErr  string
	}{
		{text: "STATS", wantKind: KindStats},
		{text: "MAXMESSAGES 10", wantKind: KindMaxMessages, wantArgs: "10"},
		{text: "SHOW  HELLO WORLD ", wantKind: KindShow, wantArgs: "HELLO WORLD"},
		{text: "PW!", wantKind: KindPassword},
		{text: "DEBUG ", wantKind: KindDebug},
		{text: "123", wantErr: "Wrong command pattern"},
		{text: " STATS", wantErr: "Wrong command pattern"},
		{text: "FOO 1", wantErr: "Command FOO not found"},
	}

	for _, tt := range tests {
		inv, err := Parse(tt.text)
		if tt.wantErr != "" {
			if err == nil || err.Error() != tt.wantErr {
				t.Fatalf("Parse(%q) error = %v, want %q", tt.text, err, tt.wantErr)
			}
			if rejection.CategoryFromError(err) != rejection.CategoryValidation {
				t.Fatalf("Parse(%q) category = %q, want validation", tt.text, rejection.CategoryFromError(err))
			}
			continue
		}
		if err != nil {
			t.Fatalf("Parse(%q) error: %v", tt.text, err)
		}
		if inv.Kind != tt.wantKind || inv.Args != tt.wantArgs {
			t.Fatalf("Parse(%q) = {%s %q}, want {%s %q}", tt.text, inv.Kind.Name(), inv.Args, tt.wantKind.Name(), tt.wantArgs)
		}
	}
}

func TestMaxMessagesGetSet(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	steps := []struct {
		text string
		want string
	}{
		{"MAXMESSAGES", "Max messages per user: 5"},
		{"MAXMESSAGES 10", "Max messages per user is now set to 10 was 5"},
		{"MAXMESSAGES", "Max messages per user: 10"},
		{"MAXLENGTH", "Max message length: 25"},
		{"MAXLENGTH 40", "Max message length is now set to 40 was 25"},
	}
	for _, step := range steps {
		got, err := f.d.Execute(ctx, admin, step.text)
		if err != nil {
			t.Fatalf("Execute(%q) error: %v", step.text, err)
		}
		if got != step.want {
			t.Fatalf("Execute(%q) = %q, want %q", step.text, got, step.want)
		}
	}
	if got := f.limits.Snapshot().MaxMessageLength; got != 40 {
		t.Fatalf("MaxMessageLength = %d, want 40", got)
	}
}

func TestIntegerArgumentErrors(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	for text, want := range map[string]string{
		"MAXMESSAGES ABC": "Parameter has to be an integer",
		"MAXLENGTH X":     "Parameter has to be an integer",
		"MAXMESSAGES 0":   "Parameter has to be a positive integer",
		"DEBUG 2":         "Parameter has to be either 0 or 1.",
		"DEBUG YES":       "Parameter has to be either 0 or 1.",
	} {
		_, err := f.d.Execute(context.Background(), admin, text)
		if reply, ok := rejection.ReplyFromError(err); !ok || reply != want {
			t.Fatalf("Execute(%q) error = %v, want rejection %q", text, err, want)
		}
	}
	if got := f.limits.Snapshot(); got.MaxMessagesPerAuthor != 5 || got.MaxMessageLength != 25 {
		t.Fatalf("limits changed by invalid commands: %+v", got)
	}
}

func TestStatsDrainsCompletions(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.tracker.TryAcquire("x", 5)
	f.tracker.Complete("x")
	f.queue.reqs = append(f.queue.reqs, display.NewTextRequest(display.PriorityPlain, "A", "y", "t", true))

	got, err := f.d.Execute(context.Background(), admin, "STATS")
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if want := "Received message count: 7\nMessages in queue: 1"; got != want {
		t.Fatalf("STATS = %q, want %q", got, want)
	}
	if f.tracker.InFlight("x") != 0 {
		t.Fatalf("InFlight(x) = %d, want 0 after STATS drain", f.tracker.InFlight("x"))
	}
}

func TestStatsIsIdempotentWithoutAdmissions(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.tracker.TryAcquire("x", 5)
	f.tracker.TryAcquire("x", 5)
	f.tracker.Complete("x")
	f.queue.reqs = append(f.queue.reqs,
		display.NewTextRequest(display.PriorityPlain, "A", "x", "t", true),
		display.NewTextRequest(display.PriorityPassword, "B", "y", "t", false),
	)

	first, err := f.d.Execute(context.Background(), admin, "STATS")
	if err != nil {
		t.Fatalf("first STATS error: %v", err)
	}
	inFlight := f.tracker.InFlight("x")

	second, err := f.d.Execute(context.Background(), admin, "STATS")
	if err != nil {
		t.Fatalf("second STATS error: %v", err)
	}

	if first != second {
		t.Fatalf("STATS replies differ: %q then %q", first, second)
	}
	if want := "Received message count: 7\nMessages in queue: 2"; first != want {
		t.Fatalf("STATS = %q, want %q", first, want)
	}
	if got := f.tracker.InFlight("x"); got != inFlight || got != 1 {
		t.Fatalf("InFlight(x) = %d after second STATS, want 1 and unchanged", got)
	}
	if got := f.tracker.Pending(); got != 0 {
		t.Fatalf("Pending = %d, want 0", got)
	}
}

func TestAnimationAndShowEnqueueForced(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	if got, err := f.d.Execute(ctx, admin, "ANIMATION"); err != nil || got != enqueuedWithoutChecking {
		t.Fatalf("ANIMATION = %q, %v", got, err)
	}
	if got, err := f.d.Execute(ctx, admin, "SHOW HI THERE!"); err != nil || got != enqueuedWithoutChecking {
		t.Fatalf("SHOW = %q, %v", got, err)
	}
	if got, err := f.d.Execute(ctx, admin, "SHOW"); err != nil || got != "Nothing to show" {
		t.Fatalf("SHOW without text = %q, %v", got, err)
	}

	if len(f.queue.reqs) != 2 {
		t.Fatalf("queued %d requests, want 2", len(f.queue.reqs))
	}
	anim, show := f.queue.reqs[0], f.queue.reqs[1]
	if anim.Kind != display.KindAnimation || anim.Priority != display.PriorityForced || anim.Counted {
		t.Fatalf("animation request = %+v", anim)
	}
	if show.Text != "HI THERE" || show.Priority != display.PriorityForced || show.Counted || show.Author != "admin" {
		t.Fatalf("show request = %+v", show)
	}
}

func TestShowQueueFull(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.queue.err = display.ErrQueueFull

	_, err := f.d.Execute(context.Background(), admin, "SHOW HI")
	if rejection.CategoryFromError(err) != rejection.CategoryPolicy {
		t.Fatalf("error = %v, want policy rejection", err)
	}

	f.queue.err = errors.New("boom")
	_, err = f.d.Execute(context.Background(), admin, "ANIMATION")
	if rejection.CategoryFromError(err) != rejection.CategoryFailure {
		t.Fatalf("error = %v, want failure", err)
	}
}

func TestHelpListsEveryCommand(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	got, err := f.d.Execute(context.Background(), admin, "HELP")
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	want := "Available commands: MAXMESSAGES\nMAXLENGTH\nSTATS\nANIMATION\nSHOW\nHELP\nDEBUG\nPW"
	if got != want {
		t.Fatalf("HELP = %q, want %q", got, want)
	}
	if strings.Count(got, "\n") != len(Kinds())-1 {
		t.Fatalf("HELP does not list %d commands", len(Kinds()))
	}
}

func TestDebugTransitions(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	steps := []struct {
		text string
		want string
	}{
		{"DEBUG", "Debug output is set to false"},
		{"DEBUG 0", "Debug output stayed unchanged. (disabled)"},
		{"DEBUG 1", "Debug output has been enabled."},
		{"DEBUG 1", "Debug output stayed unchanged. (enabled)"},
		{"DEBUG", "Debug output is set to true"},
		{"DEBUG 0", "Debug output has been disabled."},
	}
	for _, step := range steps {
		got, err := f.d.Execute(context.Background(), admin, step.text)
		if err != nil {
			t.Fatalf("Execute(%q) error: %v", step.text, err)
		}
		if got != step.want {
			t.Fatalf("Execute(%q) = %q, want %q", step.text, got, step.want)
		}
	}
}

func TestPasswordDrawDoesNotConsume(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	for range 2 {
		got, err := f.d.Execute(context.Background(), admin, "PW")
		if err != nil || got != "#ALFA" {
			t.Fatalf("PW = %q, %v; want #ALFA", got, err)
		}
	}
	if f.pool.Available() != 1 {
		t.Fatalf("Available = %d, want 1", f.pool.Available())
	}

	f.pool.Consume("ALFA")
	if got, _ := f.d.Execute(context.Background(), admin, "PW"); got != "No passwords available" {
		t.Fatalf("PW on empty pool = %q", got)
	}
}

func TestKindNames(t *testing.T) {
	t.Parallel()

	for _, kind := range Kinds() {
		got, ok := Lookup(kind.Name())
		if !ok || got != kind {
			t.Fatalf("Lookup(%q) = %v, %v", kind.Name(), got, ok)
		}
	}
	if Kind(99).Name() != "" {
		t.Fatal("unknown kind should have no name")
	}
}
