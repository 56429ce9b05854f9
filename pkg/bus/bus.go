// Package bus carries messages between the source adapters and the processing pipeline.
//
// Inbound messages from every adapter share one stream. Replies are queued per channel so
// each adapter only ever sees answers addressed to it.
package bus

import (
	"context"
	"sync"
)

const defaultBufferSize = 100

type MessageBus struct {
	inbound  chan InboundMessage
	outbound map[string]chan OutboundMessage

	eventSubscribers      map[uint64]chan Event
	nextEventSubscriberID uint64

	done      chan struct{}
	closeOnce sync.Once

	mu sync.RWMutex
}

func NewMessageBus() *MessageBus {
	return &MessageBus{
		inbound:          make(chan InboundMessage, defaultBufferSize),
		outbound:         make(map[string]chan OutboundMessage),
		eventSubscribers: make(map[uint64]chan Event),
		done:             make(chan struct{}),
	}
}

func (mb *MessageBus) PublishInbound(ctx context.Context, msg InboundMessage) bool {
	if ctx == nil {
		ctx = context.Background()
	}

	select {
	case <-ctx.Done():
		return false
	case <-mb.done:
		return false
	default:
	}

	select {
	case <-ctx.Done():
		return false
	case <-mb.done:
		return false
	case mb.inbound <- msg:
		return true
	}
}

func (mb *MessageBus) ConsumeInbound(ctx context.Context) (InboundMessage, bool) {
	if ctx == nil {
		ctx = context.Background()
	}

	select {
	case <-ctx.Done():
		return InboundMessage{}, false
	case <-mb.done:
		return InboundMessage{}, false
	case msg := <-mb.inbound:
		return msg, true
	}
}

// PublishOutbound queues msg for the adapter named by msg.Channel.
func (mb *MessageBus) PublishOutbound(ctx context.Context, msg OutboundMessage) bool {
	if ctx == nil {
		ctx = context.Background()
	}

	select {
	case <-ctx.Done():
		return false
	case <-mb.done:
		return false
	default:
	}

	queue := mb.outboundQueue(msg.Channel)
	select {
	case <-ctx.Done():
		return false
	case <-mb.done:
		return false
	case queue <- msg:
		return true
	}
}

// SubscribeOutbound waits for the next reply addressed to channel.
func (mb *MessageBus) SubscribeOutbound(ctx context.Context, channel string) (OutboundMessage, bool) {
	if ctx == nil {
		ctx = context.Background()
	}

	queue := mb.outboundQueue(channel)
	select {
	case <-ctx.Done():
		return OutboundMessage{}, false
	case <-mb.done:
		return OutboundMessage{}, false
	case msg := <-queue:
		return msg, true
	}
}

// InboundLen reports how many inbound messages wait to be processed.
func (mb *MessageBus) InboundLen() int {
	return len(mb.inbound)
}

func (mb *MessageBus) outboundQueue(channel string) chan OutboundMessage {
	mb.mu.RLock()
	queue, ok := mb.outbound[channel]
	mb.mu.RUnlock()
	if ok {
		return queue
	}

	mb.mu.Lock()
	defer mb.mu.Unlock()
	if queue, ok = mb.outbound[channel]; !ok {
		queue = make(chan OutboundMessage, defaultBufferSize)
		mb.outbound[channel] = queue
	}
	return queue
}

func (mb *MessageBus) Close() {
	mb.closeOnce.Do(func() {
		close(mb.done)

		mb.mu.Lock()
		for id, ch := range mb.eventSubscribers {
			close(ch)
			delete(mb.eventSubscribers, id)
		}
		mb.mu.Unlock()
	})
}
