// Package console is the terminal UI of the local console channel: a message log, an input
// line, and a live mirror of the wall.
package console

import (
	"context"
	"fmt"
	"io"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"upsidedown/pkg/display"
)

// Reply is what the wall answered to one line of input.
type Reply struct {
	Content   string
	Delivered bool
}

// SendFunc submits one line of input and waits for its reply.
type SendFunc func(ctx context.Context, text string) (Reply, error)

// Info describes who the console speaks as.
type Info struct {
	SenderID   string
	Privileged bool
}

// Options configures Run.
type Options struct {
	Info Info
	// Frames feeds the wall mirror; nil leaves it dark.
	Frames <-chan display.Frame
	Input  io.Reader
	Output io.Writer
}

// Run shows the console until the user quits or ctx ends.
func Run(ctx context.Context, sendFn SendFunc, opts Options) error {
	model := newModel(ctx, sendFn, opts.Info)

	programOpts := []tea.ProgramOption{tea.WithContext(ctx), tea.WithMouseCellMotion()}
	if opts.Input != nil {
		programOpts = append(programOpts, tea.WithInput(opts.Input))
	}
	if opts.Output != nil {
		programOpts = append(programOpts, tea.WithOutput(opts.Output))
	}
	program := tea.NewProgram(model, programOpts...)

	if opts.Frames != nil {
		go forwardFrames(ctx, program, opts.Frames)
	}

	if _, err := program.Run(); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	if opts.Output == nil {
		fmt.Print("\033[H\033[2J")
		fmt.Println(renderGoodbyeBanner())
	}
	return nil
}

func forwardFrames(ctx context.Context, program *tea.Program, frames <-chan display.Frame) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			program.Send(frameMsg(frame))
		}
	}
}

func renderGoodbyeBanner() string {
	style := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("230")).
		Background(lipgloss.Color("88")).
		Padding(1, 2)

	return style.Render("🎄 The lights go dark")
}
