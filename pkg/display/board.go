package display

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/lucasb-eyer/go-colorful"

	"upsidedown/pkg/normalize"
)

// LampCount is the number of lamps on the wall, one per addressable letter.
const LampCount = len(normalize.Wall)

const defaultFrameDelay = 20 * time.Millisecond

// Frame is a snapshot of the wall.
type Frame struct {
	Lamps      [LampCount]colorful.Color
	Lit        [LampCount]bool
	Brightness uint8
	At         time.Time
}

// Board is an in-memory letter wall. It implements Device and lets observers such as the
// console mirror subscribe to every shown frame. A hardware driver implements Device the
// same way, writing the frame to the LED strip in show.
type Board struct {
	frameDelay time.Duration
	log        *slog.Logger

	mu         sync.Mutex
	frame      Frame
	subs       map[uint64]chan Frame
	nextSubID  uint64
	animations []animation
}

// NewBoard creates a dark board. frameDelay paces animations; zero uses the default.
func NewBoard(frameDelay time.Duration, log *slog.Logger) *Board {
	if frameDelay <= 0 {
		frameDelay = defaultFrameDelay
	}
	if log == nil {
		log = slog.Default()
	}

	b := &Board{
		frameDelay: frameDelay,
		log:        log.With("component", "display.board"),
		subs:       make(map[uint64]chan Frame),
	}
	b.frame.Brightness = 255
	b.animations = []animation{theaterChase, rainbow, rainbowCycle, dunDun}
	return b
}

func (b *Board) Light(letter rune) error {
	idx := normalize.Index(letter)
	if idx < 0 {
		b.log.Debug("Letter has no lamp", "letter", string(letter))
		return nil
	}

	b.mu.Lock()
	b.frame.Lamps[idx] = randomColor()
	b.frame.Lit[idx] = true
	b.mu.Unlock()

	b.log.Debug("Lamp on", "letter", string(letter))
	b.show()
	return nil
}

func (b *Board) Clear() error {
	b.mu.Lock()
	b.frame.Lamps = [LampCount]colorful.Color{}
	b.frame.Lit = [LampCount]bool{}
	b.mu.Unlock()

	b.show()
	return nil
}

func (b *Board) SetBrightness(level uint8) error {
	b.mu.Lock()
	b.frame.Brightness = level
	b.mu.Unlock()

	b.show()
	return nil
}

// Animate plays one randomly chosen animation.
func (b *Board) Animate(ctx context.Context) error {
	b.mu.Lock()
	play := b.animations[rand.IntN(len(b.animations))]
	b.mu.Unlock()

	if err := b.Clear(); err != nil {
		return err
	}
	return play(ctx, b)
}

// Snapshot returns the current frame.
func (b *Board) Snapshot() Frame {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.frame
}

// Subscribe returns a channel receiving every shown frame. Slow subscribers miss frames.
func (b *Board) Subscribe(buffer int) (<-chan Frame, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Frame, buffer)

	b.mu.Lock()
	id := b.nextSubID
	b.nextSubID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

func (b *Board) setLamp(i int, c colorful.Color) {
	b.mu.Lock()
	b.frame.Lamps[i] = c
	b.frame.Lit[i] = true
	b.mu.Unlock()
}

func (b *Board) unsetLamp(i int) {
	b.mu.Lock()
	b.frame.Lamps[i] = colorful.Color{}
	b.frame.Lit[i] = false
	b.mu.Unlock()
}

// show publishes the frame. Sends happen under the lock so unsubscribe never closes a
// channel mid-send.
func (b *Board) show() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.frame.At = time.Now().UTC()
	for _, ch := range b.subs {
		select {
		case ch <- b.frame:
		default:
		}
	}
}

// wait sleeps for n frame delays or until ctx ends.
func (b *Board) wait(ctx context.Context, n float64) error {
	return sleep(ctx, time.Duration(n*float64(b.frameDelay)))
}

func randomColor() colorful.Color {
	return colorful.Hsv(rand.Float64()*360, 0.5+rand.Float64()*0.5, 0.7+rand.Float64()*0.3)
}

// wheel maps 0-255 onto a full hue circle.
func wheel(pos int) colorful.Color {
	return colorful.Hsv(float64(pos&255)/256*360, 1, 1)
}
