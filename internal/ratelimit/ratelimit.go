// Package ratelimit implements a fixed-window request limiter keyed by
// client address.
package ratelimit

import (
	"sync"
	"time"
)

type window struct {
	count    int
	resetsAt time.Time
}

// Limiter counts requests per key inside fixed windows. Requests over the
// ceiling are rejected immediately; nothing is queued or delayed.
type Limiter struct {
	mu      sync.Mutex
	max     int
	period  time.Duration
	windows map[string]*window
	done    chan struct{}
	now     func() time.Time
}

// New creates a limiter allowing max requests per period for each key and
// starts a background sweep that drops expired windows.
func New(max int, period time.Duration) *Limiter {
	l := &Limiter{
		max:     max,
		period:  period,
		windows: make(map[string]*window),
		done:    make(chan struct{}),
		now:     time.Now,
	}
	go l.sweep()
	return l
}

// Allow records one request for key and reports whether it is within the
// window's ceiling.
func (l *Limiter) Allow(key string) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || now.After(w.resetsAt) {
		l.windows[key] = &window{count: 1, resetsAt: now.Add(l.period)}
		return true
	}

	w.count++
	return w.count <= l.max
}

// Close stops the background sweep.
func (l *Limiter) Close() {
	close(l.done)
}

func (l *Limiter) sweep() {
	ticker := time.NewTicker(l.period)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			now := l.now()
			l.mu.Lock()
			for key, w := range l.windows {
				if now.After(w.resetsAt) {
					delete(l.windows, key)
				}
			}
			l.mu.Unlock()
		}
	}
}
