package display

import (
	"container/heap"

	"github.com/google/uuid"
)

// Priority tiers. Lower renders first.
const (
	PriorityForced   = 0
	PriorityPassword = 1
	PriorityPlain    = 2
)

// AnimationSentinel is the text carried by animation requests in logs and stats.
const AnimationSentinel = "ANIMATION"

// Kind selects how a request is rendered.
type Kind int

const (
	// KindText spells the request text letter by letter.
	KindText Kind = iota
	// KindAnimation plays one full animation cycle instead of spelling text.
	KindAnimation
)

func (k Kind) String() string {
	switch k {
	case KindAnimation:
		return "animation"
	default:
		return "text"
	}
}

// Request is one admitted display job.
type Request struct {
	ID       string
	Priority int
	Kind     Kind
	Text     string
	Author   string
	Channel  string
	// Counted marks requests that hold an in-flight slot of Author.
	Counted bool

	seq uint64
}

// NewTextRequest builds a text request with a fresh id.
func NewTextRequest(priority int, text string, author string, channel string, counted bool) Request {
	return Request{
		ID:       uuid.NewString(),
		Priority: priority,
		Kind:     KindText,
		Text:     text,
		Author:   author,
		Channel:  channel,
		Counted:  counted,
	}
}

// NewAnimationRequest builds a forced animation request.
func NewAnimationRequest(author string, channel string) Request {
	return Request{
		ID:       uuid.NewString(),
		Priority: PriorityForced,
		Kind:     KindAnimation,
		Text:     AnimationSentinel,
		Author:   author,
		Channel:  channel,
	}
}

// requestHeap orders by priority, then by enqueue sequence.
type requestHeap []Request

func (h requestHeap) Len() int { return len(h) }

func (h requestHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	return h[i].seq < h[j].seq
}

func (h requestHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *requestHeap) Push(x any) { *h = append(*h, x.(Request)) }

func (h *requestHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

var _ heap.Interface = (*requestHeap)(nil)
