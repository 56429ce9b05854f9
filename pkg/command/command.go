// Package command implements the console of privileged senders: a fixed table of commands
// that read and change the runtime limits and push requests straight onto the wall.
package command

import (
	"strings"

	"upsidedown/pkg/rejection"
)

// Kind identifies a command.
type Kind int

const (
	KindMaxMessages Kind = iota
	KindMaxLength
	KindStats
	KindAnimation
	KindShow
	KindHelp
	KindDebug
	KindPassword

	kindCount
)

var kindNames = [kindCount]string{
	KindMaxMessages: "MAXMESSAGES",
	KindMaxLength:   "MAXLENGTH",
	KindStats:       "STATS",
	KindAnimation:   "ANIMATION",
	KindShow:        "SHOW",
	KindHelp:        "HELP",
	KindDebug:       "DEBUG",
	KindPassword:    "PW",
}

// Kinds lists every command in help order.
func Kinds() []Kind {
	kinds := make([]Kind, 0, kindCount)
	for k := Kind(0); k < kindCount; k++ {
		kinds = append(kinds, k)
	}
	return kinds
}

// Name returns the command word senders type.
func (k Kind) Name() string {
	if k < 0 || k >= kindCount {
		return ""
	}
	return kindNames[k]
}

// Lookup finds the command named name.
func Lookup(name string) (Kind, bool) {
	for k, n := range kindNames {
		if n == name {
			return Kind(k), true
		}
	}
	return 0, false
}

// Invocation is a parsed command line.
type Invocation struct {
	Kind Kind
	// Args is the text after the first run of whitespace, trimmed. Empty means absent.
	Args string
}

// HasArgs reports whether an argument was given.
func (inv Invocation) HasArgs() bool {
	return inv.Args != ""
}

// Parse splits normalized text into a command word and its argument string.
// The command word is the leading run of A-Z.
func Parse(text string) (Invocation, error) {
	end := 0
	for end < len(text) && text[end] >= 'A' && text[end] <= 'Z' {
		end++
	}
	if end == 0 {
		return Invocation{}, rejection.Validation("Wrong command pattern")
	}

	name := text[:end]
	kind, ok := Lookup(name)
	if !ok {
		return Invocation{}, rejection.Validationf("Command %s not found", name)
	}

	inv := Invocation{Kind: kind}
	rest := text[end:]
	if trimmed := strings.TrimLeft(rest, " \t\r\n"); len(trimmed) < len(rest) {
		inv.Args = strings.TrimSpace(trimmed)
	}
	return inv, nil
}
