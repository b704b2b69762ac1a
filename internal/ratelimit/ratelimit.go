// Package ratelimit implements per-client token buckets.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter implements a token bucket rate limiter with per-client tracking
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	lastSeen map[string]time.Time
	rate     rate.Limit
	burst    int
	enabled  bool

	cleanupInterval time.Duration
	maxIdle         time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
}

// Config holds rate limiter configuration
type Config struct {
	Enabled bool

	// RequestsPerMinute sets the sustained rate limit
	RequestsPerMinute int

	// Burst allows short bursts above the sustained rate.
	// Defaults to RequestsPerMinute.
	Burst int

	// CleanupInterval controls how often idle clients are dropped (default 10m)
	CleanupInterval time.Duration

	// MaxIdle is how long a client can be idle before cleanup (default 30m)
	MaxIdle time.Duration
}

// New creates a new rate limiter. A nil config disables limiting.
func New(config *Config) *Limiter {
	if config == nil {
		config = &Config{Enabled: false}
	}

	burst := config.Burst
	if burst == 0 {
		burst = config.RequestsPerMinute
	}

	cleanupInterval := config.CleanupInterval
	if cleanupInterval == 0 {
		cleanupInterval = 10 * time.Minute
	}

	maxIdle := config.MaxIdle
	if maxIdle == 0 {
		maxIdle = 30 * time.Minute
	}

	l := &Limiter{
		limiters:        make(map[string]*rate.Limiter),
		lastSeen:        make(map[string]time.Time),
		rate:            rate.Limit(float64(config.RequestsPerMinute) / 60.0),
		burst:           burst,
		enabled:         config.Enabled,
		cleanupInterval: cleanupInterval,
		maxIdle:         maxIdle,
		stopCleanup:     make(chan struct{}),
	}

	if config.Enabled {
		go l.cleanupWorker()
	}

	return l
}

// Allow reports whether a request from clientID is within its limit
func (l *Limiter) Allow(clientID string) bool {
	if !l.enabled {
		return true
	}
	return l.getLimiter(clientID).Allow()
}

// Clients returns the number of tracked clients
func (l *Limiter) Clients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// Stop stops the cleanup worker. Safe to call more than once.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopCleanup) })
}

func (l *Limiter) getLimiter(clientID string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, exists := l.limiters[clientID]
	if !exists {
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.limiters[clientID] = limiter
	}
	l.lastSeen[clientID] = time.Now()
	return limiter
}

func (l *Limiter) cleanupWorker() {
	ticker := time.NewTicker(l.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.cleanup(time.Now())
		case <-l.stopCleanup:
			return
		}
	}
}

// cleanup removes clients that have been idle longer than maxIdle
func (l *Limiter) cleanup(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for clientID, lastSeen := range l.lastSeen {
		if now.Sub(lastSeen) > l.maxIdle {
			delete(l.limiters, clientID)
			delete(l.lastSeen, clientID)
		}
	}
}
