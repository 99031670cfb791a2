// Package ratelimit implements per-source sliding-window request accounting
// with minimum-delay gating and exponential backoff on recorded failures.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"
)

// windowEpsilon pads window-reset waits so the oldest entry has actually
// aged out when the caller retries.
const windowEpsilon = 100 * time.Millisecond

// Config tunes one limiter. Zero hour/day limits disable those windows.
type Config struct {
	RequestsPerMinute int
	RequestsPerHour   int
	RequestsPerDay    int
	MinDelay          time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
}

// DefaultConfig matches a conservative general-purpose API budget.
func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: 60,
		MinDelay:          100 * time.Millisecond,
		MaxDelay:          60 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// Stats is a point-in-time snapshot of a limiter.
type Stats struct {
	Name               string  `json:"name"`
	RequestsLastMinute int     `json:"requests_last_minute"`
	RequestsLastHour   int     `json:"requests_last_hour"`
	RequestsLastDay    int     `json:"requests_last_day"`
	ConsecutiveFails   int     `json:"consecutive_failures"`
	CurrentBackoff     float64 `json:"current_backoff_seconds"`
}

// Limiter is a sliding-window rate limiter. Acquire suspends the caller
// until a request slot is available; it never refuses.
//
// Not reentrant: the lock is released before sleeping and reacquired to
// append the timestamp, so callers must not hold it across Acquire.
type Limiter struct {
	name string
	cfg  Config
	now  func() time.Time

	mu          sync.Mutex
	minute      []time.Time
	hour        []time.Time
	day         []time.Time
	lastRequest time.Time
	failures    int
}

// New creates a limiter with the given name and config.
func New(name string, cfg Config) *Limiter {
	if cfg.BackoffMultiplier <= 0 {
		cfg.BackoffMultiplier = 2.0
	}
	return &Limiter{name: name, cfg: cfg, now: time.Now}
}

// Acquire blocks until a request may proceed, then records the request
// timestamp. Returns early with the context error on cancellation.
func (l *Limiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	now := l.now()
	l.purge(now)
	wait := l.requiredWait(now)
	l.mu.Unlock()

	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return fmt.Errorf("op=ratelimit.Acquire name=%s: %w", l.name, ctx.Err())
		case <-timer.C:
		}
	}

	l.mu.Lock()
	now = l.now()
	l.minute = append(l.minute, now)
	if l.cfg.RequestsPerHour > 0 {
		l.hour = append(l.hour, now)
	}
	if l.cfg.RequestsPerDay > 0 {
		l.day = append(l.day, now)
	}
	l.lastRequest = now
	l.mu.Unlock()
	return nil
}

// requiredWait computes the maximum wait across window resets, the minimum
// inter-request delay, and the failure backoff. Caller holds l.mu.
func (l *Limiter) requiredWait(now time.Time) time.Duration {
	var wait time.Duration

	if l.cfg.RequestsPerMinute > 0 && len(l.minute) >= l.cfg.RequestsPerMinute {
		w := l.minute[0].Add(time.Minute).Sub(now) + windowEpsilon
		if w > wait {
			wait = w
		}
	}
	if l.cfg.RequestsPerHour > 0 && len(l.hour) >= l.cfg.RequestsPerHour {
		w := l.hour[0].Add(time.Hour).Sub(now) + windowEpsilon
		if w > wait {
			wait = w
		}
	}
	if l.cfg.RequestsPerDay > 0 && len(l.day) >= l.cfg.RequestsPerDay {
		w := l.day[0].Add(24*time.Hour).Sub(now) + windowEpsilon
		if w > wait {
			wait = w
		}
	}

	if l.cfg.MinDelay > 0 && !l.lastRequest.IsZero() {
		if w := l.cfg.MinDelay - now.Sub(l.lastRequest); w > wait {
			wait = w
		}
	}

	if l.failures > 0 {
		backoff := time.Duration(float64(l.cfg.MinDelay) * math.Pow(l.cfg.BackoffMultiplier, float64(l.failures)))
		if l.cfg.MaxDelay > 0 && backoff > l.cfg.MaxDelay {
			backoff = l.cfg.MaxDelay
		}
		if backoff > wait {
			wait = backoff
		}
	}

	return wait
}

// purge drops entries that fell out of their windows. Caller holds l.mu.
func (l *Limiter) purge(now time.Time) {
	l.minute = trimBefore(l.minute, now.Add(-time.Minute))
	l.hour = trimBefore(l.hour, now.Add(-time.Hour))
	l.day = trimBefore(l.day, now.Add(-24*time.Hour))
}

func trimBefore(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return ts
	}
	return append(ts[:0], ts[i:]...)
}

// RecordSuccess resets the failure counter.
func (l *Limiter) RecordSuccess() {
	l.mu.Lock()
	l.failures = 0
	l.mu.Unlock()
}

// RecordFailure increments the failure counter, lengthening the backoff.
func (l *Limiter) RecordFailure() {
	l.mu.Lock()
	l.failures++
	l.mu.Unlock()
}

// RecordRateLimitHit applies a heavier penalty than an ordinary failure.
func (l *Limiter) RecordRateLimitHit() {
	l.mu.Lock()
	l.failures += 2
	l.mu.Unlock()
}

// Stats returns a snapshot after purging stale entries.
func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	l.purge(now)
	backoff := 0.0
	if l.failures > 0 {
		b := float64(l.cfg.MinDelay.Seconds()) * math.Pow(l.cfg.BackoffMultiplier, float64(l.failures))
		backoff = math.Min(b, l.cfg.MaxDelay.Seconds())
	}
	return Stats{
		Name:               l.name,
		RequestsLastMinute: len(l.minute),
		RequestsLastHour:   len(l.hour),
		RequestsLastDay:    len(l.day),
		ConsecutiveFails:   l.failures,
		CurrentBackoff:     backoff,
	}
}

// Manager hands out named limiters so every crawler and poster shares one
// limiter per upstream source.
type Manager struct {
	mu       sync.Mutex
	limiters map[string]*Limiter
}

// NewManager creates an empty limiter registry.
func NewManager() *Manager {
	return &Manager{limiters: make(map[string]*Limiter)}
}

// GetOrCreate returns the limiter registered under name, creating it with
// cfg on first use. The config of an existing limiter is not changed.
func (m *Manager) GetOrCreate(name string, cfg Config) *Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.limiters[name]; ok {
		return l
	}
	l := New(name, cfg)
	m.limiters[name] = l
	return l
}

// AllStats snapshots every registered limiter.
func (m *Manager) AllStats() []Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Stats, 0, len(m.limiters))
	for _, l := range m.limiters {
		out = append(out, l.Stats())
	}
	return out
}
