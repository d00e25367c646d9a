// Package reconnect implements C3, the reconnect policy: capped exponential
// backoff between reconnect attempts, with a bounded or unbounded attempt
// ceiling (spec §4.3).
package reconnect

import (
	"math"
	"sync"
	"time"
)

const (
	DefaultBaseDelay         = time.Second
	DefaultMaxDelay          = 300 * time.Second
	DefaultBackoffMultiplier = 2.0
	DefaultMaxAttempts       = 0 // unbounded
)

// Policy is the production ports.ReconnectPolicy. It is safe for concurrent
// use: the dashboard's reconnect trigger calls Reset while the reconnect
// loop drives ShouldAttempt/NextDelay/Attempts.
type Policy struct {
	baseDelay  time.Duration
	maxDelay   time.Duration
	multiplier float64
	maxAttempts int

	mu       sync.Mutex
	attempts int
}

// Config carries the subset of Settings the reconnect policy needs.
type Config struct {
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	MaxAttempts       int
}

// New builds a Policy, applying spec §4.3 defaults for any zero-valued field.
func New(cfg Config) *Policy {
	p := &Policy{
		baseDelay:   cfg.BaseDelay,
		maxDelay:    cfg.MaxDelay,
		multiplier:  cfg.BackoffMultiplier,
		maxAttempts: cfg.MaxAttempts,
	}
	if p.baseDelay <= 0 {
		p.baseDelay = DefaultBaseDelay
	}
	if p.maxDelay <= 0 {
		p.maxDelay = DefaultMaxDelay
	}
	if p.multiplier <= 0 {
		p.multiplier = DefaultBackoffMultiplier
	}
	return p
}

// ShouldAttempt reports whether another reconnect attempt is permitted.
// max_attempts of 0 means unbounded.
func (p *Policy) ShouldAttempt() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.maxAttempts <= 0 {
		return true
	}
	return p.attempts < p.maxAttempts
}

// NextDelay returns the delay preceding the next reconnect attempt and
// advances the internal attempt counter. Per spec §4.3/§8 property 5,
// attempt n (0-indexed, counting from the first post-failure reconnect) is
// preceded by min(base * multiplier^n, max_delay); the very first connect
// attempt of a session has no corresponding NextDelay call at all.
func (p *Policy) NextDelay() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	delay := float64(p.baseDelay) * math.Pow(p.multiplier, float64(p.attempts))
	if delay > float64(p.maxDelay) {
		delay = float64(p.maxDelay)
	}
	p.attempts++

	return time.Duration(delay)
}

// Reset zeroes the attempt counter. Called on successful authentication.
func (p *Policy) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attempts = 0
}

// Attempts returns the number of reconnect attempts since the last Reset.
func (p *Policy) Attempts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts
}
