package display

import "context"

// Device is the physical output the scheduler drives.
//
// Calls are synchronous. An error means the hardware is gone; the scheduler stops and the
// process is expected to exit.
type Device interface {
	// Light turns on the lamp for letter. Letters without a lamp light nothing.
	Light(letter rune) error
	// Clear turns every lamp off.
	Clear() error
	// SetBrightness scales all lamps, 0 to 255.
	SetBrightness(level uint8) error
	// Animate plays one animation cycle. It returns ctx.Err() as soon as ctx is done,
	// checking between frames.
	Animate(ctx context.Context) error
}
