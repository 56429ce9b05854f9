// Package quota holds the admission state shared by the pipeline: the runtime limits and the
// per-author in-flight counts.
package quota

import "sync"

// Limits is the runtime configuration changed by privileged commands and read by admission.
type Limits struct {
	mu                   sync.RWMutex
	maxMessageLength     int
	maxMessagesPerAuthor int
	debug                bool
}

// LimitsSnapshot is a consistent copy of Limits.
type LimitsSnapshot struct {
	MaxMessageLength     int
	MaxMessagesPerAuthor int
	Debug                bool
}

func NewLimits(maxMessageLength int, maxMessagesPerAuthor int, debug bool) *Limits {
	return &Limits{
		maxMessageLength:     maxMessageLength,
		maxMessagesPerAuthor: maxMessagesPerAuthor,
		debug:                debug,
	}
}

func (l *Limits) Snapshot() LimitsSnapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return LimitsSnapshot{
		MaxMessageLength:     l.maxMessageLength,
		MaxMessagesPerAuthor: l.maxMessagesPerAuthor,
		Debug:                l.debug,
	}
}

// SetMaxMessageLength stores n and returns the previous value.
func (l *Limits) SetMaxMessageLength(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	old := l.maxMessageLength
	l.maxMessageLength = n
	return old
}

// SetMaxMessagesPerAuthor stores n and returns the previous value.
func (l *Limits) SetMaxMessagesPerAuthor(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	old := l.maxMessagesPerAuthor
	l.maxMessagesPerAuthor = n
	return old
}

// SetDebug stores enabled and returns the previous value.
func (l *Limits) SetDebug(enabled bool) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	old := l.debug
	l.debug = enabled
	return old
}

func (l *Limits) Debug() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.debug
}
