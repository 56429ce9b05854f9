package display

import (
	"context"
	"math"
	"math/rand/v2"
)

// animation plays one cycle on b and returns ctx.Err() when interrupted between frames.
type animation func(ctx context.Context, b *Board) error

func theaterChase(ctx context.Context, b *Board) error {
	color := randomColor()
	for j := 0; j < 20; j++ {
		for q := 0; q < 3; q++ {
			for i := q; i < LampCount; i += 3 {
				b.setLamp(i, color)
			}
			b.show()
			if err := b.wait(ctx, 2.5); err != nil {
				return err
			}
			for i := q; i < LampCount; i += 3 {
				b.unsetLamp(i)
			}
		}
	}
	return nil
}

func rainbow(ctx context.Context, b *Board) error {
	for j := 0; j < 256; j++ {
		for i := 0; i < LampCount; i++ {
			b.setLamp(i, wheel(i+j))
		}
		b.show()
		if err := b.wait(ctx, 1); err != nil {
			return err
		}
	}
	return nil
}

func rainbowCycle(ctx context.Context, b *Board) error {
	for j := 0; j < 256*2; j++ {
		for i := 0; i < LampCount; i++ {
			b.setLamp(i, wheel(i*256/LampCount+j))
		}
		b.show()
		if err := b.wait(ctx, 1); err != nil {
			return err
		}
	}
	return nil
}

// dunDun lights every lamp in random order, each step faster than the last, holds, then
// switches them off in another random order.
func dunDun(ctx context.Context, b *Board) error {
	for step, i := range rand.Perm(LampCount) {
		b.setLamp(i, randomColor())
		b.show()
		if err := b.wait(ctx, 50*math.Pow(0.85, float64(step))); err != nil {
			return err
		}
	}
	if err := b.wait(ctx, 150); err != nil {
		return err
	}
	for _, i := range rand.Perm(LampCount) {
		b.unsetLamp(i)
		b.show()
		if err := b.wait(ctx, 1.5); err != nil {
			return err
		}
	}
	return b.wait(ctx, 15)
}
