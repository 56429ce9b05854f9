package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"upsidedown/pkg/display"
	"upsidedown/pkg/normalize"
	"upsidedown/pkg/quota"
	"upsidedown/pkg/rejection"
)

const enqueuedWithoutChecking = "Message was placed into the queue without checking"

// Queue is the display queue commands push to and report on.
type Queue interface {
	Enqueue(req display.Request) error
	Len() int
}

// TokenSource hands out password tokens for the PW command.
type TokenSource interface {
	Draw() (string, bool)
}

// Caller identifies who issued a command.
type Caller struct {
	SenderID string
	Channel  string
}

type handler func(ctx context.Context, caller Caller, inv Invocation) (string, error)

// Dependencies wires the dispatcher to the shared pipeline state.
type Dependencies struct {
	Limits    *quota.Limits
	Tracker   *quota.Tracker
	Queue     Queue
	Passwords TokenSource
	// Admitted returns the number of plain messages admitted so far.
	Admitted func() uint64
	Log      *slog.Logger
}

// Dispatcher runs privileged commands.
type Dispatcher struct {
	deps     Dependencies
	log      *slog.Logger
	handlers map[Kind]handler
}

func NewDispatcher(deps Dependencies) *Dispatcher {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	if deps.Admitted == nil {
		deps.Admitted = func() uint64 { return 0 }
	}

	d := &Dispatcher{
		deps: deps,
		log:  log.With("component", "command.dispatcher"),
	}
	d.handlers = map[Kind]handler{
		KindMaxMessages: d.maxMessages,
		KindMaxLength:   d.maxLength,
		KindStats:       d.stats,
		KindAnimation:   d.animation,
		KindShow:        d.show,
		KindHelp:        d.help,
		KindDebug:       d.debug,
		KindPassword:    d.password,
	}
	for _, kind := range Kinds() {
		if _, ok := d.handlers[kind]; !ok {
			panic(fmt.Sprintf("command: no handler for %s", kind.Name()))
		}
	}
	return d
}

// Execute parses text and runs the command. Bad input is returned as a rejection error whose
// text is the reply.
func (d *Dispatcher) Execute(ctx context.Context, caller Caller, text string) (string, error) {
	inv, err := Parse(text)
	if err != nil {
		d.log.Info("Command rejected", "sender_id", caller.SenderID, "channel", caller.Channel, "error", err)
		return "", err
	}

	reply, err := d.handlers[inv.Kind](ctx, caller, inv)
	if err != nil {
		d.log.Info("Command failed", "command", inv.Kind.Name(), "sender_id", caller.SenderID, "error", err)
		return "", err
	}

	d.log.Info("Command executed", "command", inv.Kind.Name(), "sender_id", caller.SenderID, "channel", caller.Channel)
	return reply, nil
}

func (d *Dispatcher) maxMessages(_ context.Context, _ Caller, inv Invocation) (string, error) {
	if !inv.HasArgs() {
		return fmt.Sprintf("Max messages per user: %d", d.deps.Limits.Snapshot().MaxMessagesPerAuthor), nil
	}

	n, err := positiveInt(inv.Args)
	if err != nil {
		return "", err
	}
	old := d.deps.Limits.SetMaxMessagesPerAuthor(n)
	return fmt.Sprintf("Max messages per user is now set to %d was %d", n, old), nil
}

func (d *Dispatcher) maxLength(_ context.Context, _ Caller, inv Invocation) (string, error) {
	if !inv.HasArgs() {
		return fmt.Sprintf("Max message length: %d", d.deps.Limits.Snapshot().MaxMessageLength), nil
	}

	n, err := positiveInt(inv.Args)
	if err != nil {
		return "", err
	}
	old := d.deps.Limits.SetMaxMessageLength(n)
	return fmt.Sprintf("Max message length is now set to %d was %d", n, old), nil
}

func (d *Dispatcher) stats(context.Context, Caller, Invocation) (string, error) {
	d.deps.Tracker.Drain()
	return fmt.Sprintf("Received message count: %d\nMessages in queue: %d", d.deps.Admitted(), d.deps.Queue.Len()), nil
}

func (d *Dispatcher) animation(_ context.Context, caller Caller, _ Invocation) (string, error) {
	if err := d.enqueue(display.NewAnimationRequest(caller.SenderID, caller.Channel)); err != nil {
		return "", err
	}
	return enqueuedWithoutChecking, nil
}

func (d *Dispatcher) show(_ context.Context, caller Caller, inv Invocation) (string, error) {
	text := strings.TrimSpace(normalize.LettersAndSpaces(inv.Args))
	if text == "" {
		return "Nothing to show", nil
	}

	req := display.NewTextRequest(display.PriorityForced, text, caller.SenderID, caller.Channel, false)
	if err := d.enqueue(req); err != nil {
		return "", err
	}
	return enqueuedWithoutChecking, nil
}

func (d *Dispatcher) help(context.Context, Caller, Invocation) (string, error) {
	names := make([]string, 0, kindCount)
	for _, kind := range Kinds() {
		names = append(names, kind.Name())
	}
	return "Available commands: " + strings.Join(names, "\n"), nil
}

func (d *Dispatcher) debug(_ context.Context, _ Caller, inv Invocation) (string, error) {
	if !inv.HasArgs() {
		return fmt.Sprintf("Debug output is set to %t", d.deps.Limits.Debug()), nil
	}

	var enable bool
	switch inv.Args {
	case "0":
	case "1":
		enable = true
	default:
		return "", rejection.Validation("Parameter has to be either 0 or 1.")
	}

	old := d.deps.Limits.SetDebug(enable)
	switch {
	case old == enable && enable:
		return "Debug output stayed unchanged. (enabled)", nil
	case old == enable:
		return "Debug output stayed unchanged. (disabled)", nil
	case enable:
		return "Debug output has been enabled.", nil
	default:
		return "Debug output has been disabled.", nil
	}
}

func (d *Dispatcher) password(context.Context, Caller, Invocation) (string, error) {
	token, ok := d.deps.Passwords.Draw()
	if !ok {
		return "No passwords available", nil
	}
	return "#" + token, nil
}

func (d *Dispatcher) enqueue(req display.Request) error {
	if err := d.deps.Queue.Enqueue(req); err != nil {
		if errors.Is(err, display.ErrQueueFull) {
			return rejection.Policy("Display queue is full, try again later")
		}
		return fmt.Errorf("enqueue %s request: %w", req.Kind, err)
	}
	return nil
}

func positiveInt(arg string) (int, error) {
	n, err := strconv.Atoi(arg)
	if err != nil {
		return 0, rejection.Validation("Parameter has to be an integer")
	}
	if n <= 0 {
		return 0, rejection.Validation("Parameter has to be a positive integer")
	}
	return n, nil
}
