// Package display schedules admitted requests onto the letter wall.
package display

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var ErrQueueFull = errors.New("display queue full")

// State is the scheduler's current activity.
type State string

const (
	StateIdle       State = "idle"
	StateAnimating  State = "animating"
	StateDisplaying State = "displaying"
)

// Timing holds the fixed pacing of the wall.
type Timing struct {
	CharOn         time.Duration
	CharGap        time.Duration
	Cooldown       time.Duration
	IdleBrightness uint8
	FullBrightness uint8
}

// CompletionFunc is called after a text request has been fully spelled.
type CompletionFunc func(ctx context.Context, req Request)

// Scheduler owns the request queue and is the only caller of the device.
type Scheduler struct {
	device     Device
	timing     Timing
	capacity   int
	onComplete CompletionFunc
	log        *slog.Logger

	wake chan struct{}

	mu        sync.Mutex
	queue     requestHeap
	seq       uint64
	state     State
	current   *Request
	displayed uint64
}

// Options configures a Scheduler.
type Options struct {
	Timing Timing
	// Capacity bounds the number of queued requests; zero means unbounded.
	Capacity   int
	OnComplete CompletionFunc
	Log        *slog.Logger
}

func NewScheduler(device Device, opts Options) *Scheduler {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	if opts.Timing.FullBrightness == 0 {
		opts.Timing.FullBrightness = 255
	}

	return &Scheduler{
		device:     device,
		timing:     opts.Timing,
		capacity:   opts.Capacity,
		onComplete: opts.OnComplete,
		log:        log.With("component", "display.scheduler"),
		wake:       make(chan struct{}, 1),
		state:      StateIdle,
	}
}

// Enqueue adds req to the queue and wakes the scheduler.
func (s *Scheduler) Enqueue(req Request) error {
	s.mu.Lock()
	if s.capacity > 0 && len(s.queue) >= s.capacity {
		s.mu.Unlock()
		return ErrQueueFull
	}
	s.seq++
	req.seq = s.seq
	heap.Push(&s.queue, req)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return nil
}

// Len reports how many requests wait to be displayed.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.queue)
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// Current returns the request being displayed, if any.
func (s *Scheduler) Current() (Request, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return Request{}, false
	}
	return *s.current, true
}

// Displayed reports how many requests have finished rendering.
func (s *Scheduler) Displayed() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.displayed
}

// Run drains the queue until ctx ends. It returns nil on cancellation and the device error
// when the hardware fails.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info("Display scheduler started")
	defer s.setState(StateIdle, nil)

	for {
		if ctx.Err() != nil {
			return nil
		}

		req, ok := s.pop()
		if !ok {
			if err := s.animateUntilWoken(ctx); err != nil {
				return err
			}
			continue
		}

		if err := s.display(ctx, req); err != nil {
			if errors.Is(err, context.Canceled) && ctx.Err() != nil {
				if clearErr := s.device.Clear(); clearErr != nil {
					return fmt.Errorf("clear wall: %w", clearErr)
				}
				return nil
			}
			return err
		}
	}
}

func (s *Scheduler) pop() (Request, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Any wake signal sent before this point is answered by this pop.
	select {
	case <-s.wake:
	default:
	}

	if len(s.queue) == 0 {
		return Request{}, false
	}
	return heap.Pop(&s.queue).(Request), true
}

// animateUntilWoken dims the wall and loops animations on their own goroutine until a
// request arrives or ctx ends, then clears the wall and restores brightness.
func (s *Scheduler) animateUntilWoken(ctx context.Context) error {
	s.setState(StateAnimating, nil)
	if err := s.device.SetBrightness(s.timing.IdleBrightness); err != nil {
		return fmt.Errorf("dim wall: %w", err)
	}

	animCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- s.animateLoop(animCtx)
	}()

	var animErr error
	select {
	case <-s.wake:
		cancel()
		animErr = <-done
	case <-ctx.Done():
		cancel()
		animErr = <-done
	case animErr = <-done:
	}

	if animErr != nil && !errors.Is(animErr, context.Canceled) {
		return fmt.Errorf("animate: %w", animErr)
	}

	if err := s.device.Clear(); err != nil {
		return fmt.Errorf("clear wall: %w", err)
	}
	if err := s.device.SetBrightness(s.timing.FullBrightness); err != nil {
		return fmt.Errorf("restore brightness: %w", err)
	}

	s.log.Debug("Background animation stopped")
	return nil
}

func (s *Scheduler) animateLoop(ctx context.Context) error {
	for {
		if err := s.device.Animate(ctx); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

func (s *Scheduler) display(ctx context.Context, req Request) error {
	s.setState(StateDisplaying, &req)
	log := s.log.With("request_id", req.ID, "sender_id", req.Author, "priority", req.Priority, "kind", req.Kind.String())

	if req.Kind == KindAnimation {
		log.Info("Playing forced animation")
		if err := s.device.Animate(ctx); err != nil {
			return fmt.Errorf("animate: %w", err)
		}
		if err := s.device.Clear(); err != nil {
			return fmt.Errorf("clear wall: %w", err)
		}
		if err := s.device.SetBrightness(s.timing.FullBrightness); err != nil {
			return fmt.Errorf("restore brightness: %w", err)
		}
		s.finish()
		return nil
	}

	log.Info("Displaying message", "text", req.Text)
	for _, letter := range req.Text {
		if letter == ' ' {
			continue
		}
		if err := s.device.Light(letter); err != nil {
			return fmt.Errorf("light %q: %w", letter, err)
		}
		if err := sleep(ctx, s.timing.CharOn); err != nil {
			return err
		}
		if err := s.device.Clear(); err != nil {
			return fmt.Errorf("clear wall: %w", err)
		}
		if err := sleep(ctx, s.timing.CharGap); err != nil {
			return err
		}
	}

	s.finish()
	if s.onComplete != nil {
		s.onComplete(ctx, req)
	}

	return sleep(ctx, s.timing.Cooldown)
}

func (s *Scheduler) finish() {
	s.mu.Lock()
	s.displayed++
	s.current = nil
	s.mu.Unlock()
}

func (s *Scheduler) setState(state State, current *Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = state
	s.current = current
}

// sleep waits for d or until ctx ends.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
