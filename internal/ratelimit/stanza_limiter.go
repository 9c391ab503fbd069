// Package ratelimit bounds inbound stanza rates on switchboard connections.
package ratelimit

import (
	"sync"
	"time"
)

// Clock abstracts time so limiter behavior is deterministic in tests.
type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

const nanoTokensPerToken int64 = int64(time.Second) // 1e9

const maxInt64 = int64(^uint64(0) >> 1)

// StanzaLimiter is a token bucket holding one burst-second of stanzas. It
// uses fixed-point "nano-tokens" so refill math has no float rounding: one
// stanza costs 1e9 nano-tokens and a rate of X stanzas/sec adds X nano-tokens
// per nanosecond elapsed.
type StanzaLimiter struct {
	mu sync.Mutex

	clock Clock

	// perSecond is both the fill rate and the bucket capacity.
	perSecond int64

	availableNanoTokens int64
	last                time.Time
}

func NewStanzaLimiter(clock Clock, perSecond int) *StanzaLimiter {
	if clock == nil {
		clock = RealClock{}
	}
	rate := int64(perSecond)
	if rate < 0 {
		rate = 0
	}
	return &StanzaLimiter{
		clock:               clock,
		perSecond:           rate,
		availableNanoTokens: saturatingNano(rate),
		last:                clock.Now(),
	}
}

// Allow consumes one stanza's worth of budget if available. A limiter built
// with perSecond <= 0 never allows anything.
func (l *StanzaLimiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refillLocked()

	if l.availableNanoTokens < nanoTokensPerToken {
		return false
	}
	l.availableNanoTokens -= nanoTokensPerToken
	return true
}

func (l *StanzaLimiter) refillLocked() {
	now := l.clock.Now()
	if now.Before(l.last) {
		// Time went backwards; move the reference point without refilling.
		l.last = now
		return
	}

	elapsed := now.Sub(l.last)
	if elapsed <= 0 {
		return
	}
	l.last = now

	if l.perSecond <= 0 {
		return
	}

	capacity := saturatingNano(l.perSecond)
	if l.availableNanoTokens >= capacity {
		l.availableNanoTokens = capacity
		return
	}

	// perSecond stanzas/sec equals perSecond nano-tokens per nanosecond.
	need := capacity - l.availableNanoTokens
	elapsedNanos := elapsed.Nanoseconds()
	maxElapsedToFill := need / l.perSecond
	if maxElapsedToFill <= 0 || elapsedNanos >= maxElapsedToFill {
		l.availableNanoTokens = capacity
		return
	}

	l.availableNanoTokens += elapsedNanos * l.perSecond
	if l.availableNanoTokens > capacity {
		l.availableNanoTokens = capacity
	}
}

func saturatingNano(tokens int64) int64 {
	if tokens <= 0 {
		return 0
	}
	if tokens > maxInt64/nanoTokensPerToken {
		return maxInt64
	}
	return tokens * nanoTokensPerToken
}
