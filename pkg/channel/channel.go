// Package channel defines the contract between source adapters and the gateway.
package channel

import (
	"context"
	"errors"
	"strings"

	"upsidedown/pkg/bus"
)

// EchoMarker prefixes every reply an adapter posts. Messages from the adapter's own account
// that start with it are the adapter's echoes and must not be processed again.
const EchoMarker = "$"

// ErrNoReply is returned by a Handler when no reply arrived in time. The message was still
// processed; the sender just gets no answer.
var ErrNoReply = errors.New("no reply before timeout")

// Handler processes one inbound channel message and returns an outbound reply.
type Handler func(context.Context, bus.InboundMessage) (bus.OutboundMessage, error)

// Adapter bridges one external transport (for example Telegram) into the pipeline.
type Adapter interface {
	Name() string
	Run(context.Context, Handler) error
}

// FormatReply marks reply text so it is recognised as an echo if it comes back.
func FormatReply(content string) string {
	return EchoMarker + " " + strings.TrimSpace(content)
}

// IsEcho reports whether text is a reply previously posted by an adapter.
func IsEcho(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), EchoMarker)
}
