// Package admission decides whether a non-privileged message reaches the wall.
//
// Messages starting with '#' pay with a one-time password and skip the limits. Everything
// else is a plain message subject to the per-author quota and the length limit.
package admission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync/atomic"

	"upsidedown/pkg/display"
	"upsidedown/pkg/normalize"
	"upsidedown/pkg/quota"
	"upsidedown/pkg/rejection"
)

// PasswordMarker starts a password-gated message.
const PasswordMarker = '#'

const (
	replyQueued          = "Your message was placed into the queue"
	replyQueuedUnchecked = "Message was placed into the queue without checking"
	replyQueueFull       = "Display queue is full, try again later"
)

// ErrEmpty is returned for messages with nothing displayable. Such messages get no reply.
var ErrEmpty = errors.New("nothing to display")

var passwordPattern = regexp.MustCompile(`^\s*([A-Z0-9]+)\s+(.+)$`)

// Queue accepts admitted requests.
type Queue interface {
	Enqueue(req display.Request) error
}

// Passwords is the one-time token pool.
type Passwords interface {
	Consume(token string) bool
	Return(token string)
}

// Recorder persists admission outcomes. Errors are logged and never fail a submission.
type Recorder interface {
	RecordConsumed(ctx context.Context, token string, senderID string) error
	RecordAdmitted(ctx context.Context, req display.Request) error
}

// Stats are the controller's counters.
type Stats struct {
	Admitted         uint64 `json:"admitted"`
	PasswordAdmitted uint64 `json:"password_admitted"`
	Rejected         uint64 `json:"rejected"`
}

// Options wires a Controller.
type Options struct {
	Limits    *quota.Limits
	Tracker   *quota.Tracker
	Passwords Passwords
	Queue     Queue
	// Recorder is optional.
	Recorder Recorder
	// InitialAdmitted restores the admitted counter, for example from the store.
	InitialAdmitted uint64
	Log             *slog.Logger
}

// Controller admits messages onto the display queue.
type Controller struct {
	limits    *quota.Limits
	tracker   *quota.Tracker
	passwords Passwords
	queue     Queue
	recorder  Recorder
	log       *slog.Logger

	admitted         atomic.Uint64
	passwordAdmitted atomic.Uint64
	rejected         atomic.Uint64
}

func NewController(opts Options) *Controller {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}

	c := &Controller{
		limits:    opts.Limits,
		tracker:   opts.Tracker,
		passwords: opts.Passwords,
		queue:     opts.Queue,
		recorder:  opts.Recorder,
		log:       log.With("component", "admission.controller"),
	}
	c.admitted.Store(opts.InitialAdmitted)
	return c
}

// Submit routes normalized text to the password or plain path.
func (c *Controller) Submit(ctx context.Context, senderID string, channel string, text string) (string, error) {
	if strings.HasPrefix(text, string(PasswordMarker)) {
		return c.SubmitPassword(ctx, senderID, channel, text)
	}
	return c.SubmitPlain(ctx, senderID, channel, text)
}

// SubmitPassword admits "#<password> <text>" at password priority when the password is
// unused. Quota and length limits do not apply and the sender's in-flight count is untouched.
func (c *Controller) SubmitPassword(ctx context.Context, senderID string, channel string, text string) (string, error) {
	match := passwordPattern.FindStringSubmatch(normalize.Alphanumeric(text))
	if match == nil {
		return "", c.reject(rejection.Validation("Invalid password format"), senderID)
	}
	token := match[1]
	body := strings.TrimSpace(normalize.LettersAndSpaces(match[2]))
	if normalize.Letters(body) == "" {
		return "", c.reject(rejection.Validation("Invalid password format"), senderID)
	}

	if !c.passwords.Consume(token) {
		return "", c.reject(rejection.Policy("Invalid password."), senderID)
	}

	req := display.NewTextRequest(display.PriorityPassword, body, senderID, channel, false)
	if err := c.queue.Enqueue(req); err != nil {
		c.passwords.Return(token)
		return "", c.enqueueFailed(err, senderID)
	}
	c.passwordAdmitted.Add(1)

	if c.recorder != nil {
		if err := c.recorder.RecordConsumed(ctx, token, senderID); err != nil {
			c.log.Warn("Failed to record consumed password", "sender_id", senderID, "error", err)
		}
	}

	c.log.Info("Password message admitted", "sender_id", senderID, "channel", channel, "request_id", req.ID, "length", len(body))
	return replyQueuedUnchecked, nil
}

// SubmitPlain admits letters-only text at plain priority when the sender is under the
// per-author limit and the text fits the length limit.
func (c *Controller) SubmitPlain(ctx context.Context, senderID string, channel string, text string) (string, error) {
	body := normalize.Letters(text)
	if body == "" {
		return "", ErrEmpty
	}

	if drained := c.tracker.Drain(); drained > 0 {
		c.log.Debug("Applied completions", "count", drained)
	}

	limits := c.limits.Snapshot()
	if len(body) > limits.MaxMessageLength {
		return "", c.reject(limitsExceeded(limits), senderID)
	}
	count, ok := c.tracker.TryAcquire(senderID, limits.MaxMessagesPerAuthor)
	if !ok {
		return "", c.reject(limitsExceeded(limits), senderID)
	}

	req := display.NewTextRequest(display.PriorityPlain, body, senderID, channel, true)
	if err := c.queue.Enqueue(req); err != nil {
		c.tracker.Release(senderID)
		return "", c.enqueueFailed(err, senderID)
	}
	c.admitted.Add(1)

	if c.recorder != nil {
		if err := c.recorder.RecordAdmitted(ctx, req); err != nil {
			c.log.Warn("Failed to record admitted message", "sender_id", senderID, "error", err)
		}
	}

	c.log.Info("Message admitted", "sender_id", senderID, "channel", channel, "request_id", req.ID, "in_flight", count, "length", len(body))
	return replyQueued, nil
}

// Admitted reports how many plain messages were admitted.
func (c *Controller) Admitted() uint64 {
	return c.admitted.Load()
}

func (c *Controller) Stats() Stats {
	return Stats{
		Admitted:         c.admitted.Load(),
		PasswordAdmitted: c.passwordAdmitted.Load(),
		Rejected:         c.rejected.Load(),
	}
}

func (c *Controller) reject(err error, senderID string) error {
	c.rejected.Add(1)
	c.log.Info("Message rejected", "sender_id", senderID, "category", rejection.CategoryFromError(err), "reason", err.Error())
	return err
}

func (c *Controller) enqueueFailed(err error, senderID string) error {
	if errors.Is(err, display.ErrQueueFull) {
		return c.reject(rejection.Policy(replyQueueFull), senderID)
	}
	return fmt.Errorf("enqueue message: %w", err)
}

// limitsExceeded names both limits whichever one was hit.
func limitsExceeded(limits quota.LimitsSnapshot) error {
	return rejection.Policyf(
		"You reached one or more of the limits. Max number of characters per message is %d.\nMax number of messages enqueued per user is %d",
		limits.MaxMessageLength, limits.MaxMessagesPerAuthor,
	)
}
