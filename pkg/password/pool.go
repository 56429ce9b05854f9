// Package password manages the pool of one-time tokens that let a sender skip admission limits.
package password

import (
	"math/rand/v2"
	"sync"
)

// Pool is a consumable set of one-time tokens. It is safe for concurrent use.
type Pool struct {
	mu        sync.Mutex
	available []string
	index     map[string]int
	consumed  map[string]struct{}
}

func NewPool(tokens []string) *Pool {
	p := &Pool{
		index:    make(map[string]int),
		consumed: make(map[string]struct{}),
	}
	p.Reload(tokens)
	return p
}

// Consume removes token from the pool and reports whether it was available.
// Two concurrent calls with the same token never both succeed.
func (p *Pool) Consume(token string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	i, ok := p.index[token]
	if !ok {
		return false
	}

	last := len(p.available) - 1
	if i != last {
		moved := p.available[last]
		p.available[i] = moved
		p.index[moved] = i
	}
	p.available = p.available[:last]
	delete(p.index, token)
	p.consumed[token] = struct{}{}
	return true
}

// Return makes a consumed token available again. It is used when the request the token paid
// for could not be queued.
func (p *Pool) Return(token string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, used := p.consumed[token]; !used {
		return
	}
	delete(p.consumed, token)
	if _, ok := p.index[token]; ok {
		return
	}
	p.index[token] = len(p.available)
	p.available = append(p.available, token)
}

// Draw returns a random available token without consuming it.
func (p *Pool) Draw() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.available) == 0 {
		return "", false
	}

	return p.available[rand.IntN(len(p.available))], true
}

// Reload replaces the available tokens. Tokens consumed earlier stay consumed.
// It returns the number of available tokens after the reload.
func (p *Pool) Reload(tokens []string) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.available = p.available[:0]
	clear(p.index)
	for _, token := range tokens {
		if token == "" {
			continue
		}
		if _, used := p.consumed[token]; used {
			continue
		}
		if _, dup := p.index[token]; dup {
			continue
		}
		p.index[token] = len(p.available)
		p.available = append(p.available, token)
	}

	return len(p.available)
}

// MarkConsumed removes tokens known to be used, for example ones restored from the store.
func (p *Pool) MarkConsumed(tokens []string) {
	for _, token := range tokens {
		if !p.Consume(token) {
			p.mu.Lock()
			p.consumed[token] = struct{}{}
			p.mu.Unlock()
		}
	}
}

// Available reports how many tokens can still be consumed.
func (p *Pool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.available)
}

// Consumed reports how many tokens have been used.
func (p *Pool) Consumed() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.consumed)
}
