// Package ratelimit provides per-client token-bucket admission control.
// Budgets are created lazily on first sight of a client identity and
// reaped after a period of inactivity so the client map stays bounded
// under many distinct or spoofed identities.
package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Defaults mirror the recommended budget of one request per second
// sustained with a full-minute burst.
const (
	DefaultPerMinute = 60
	DefaultBurst     = 60
	// DefaultIdleAfter is ten refill windows at the default rate.
	DefaultIdleAfter = 10 * time.Minute
)

// Config configures the limiter.
type Config struct {
	// PerMinute is the sustained admission rate per client.
	PerMinute int
	// Burst is the bucket capacity.
	Burst int
	// IdleAfter is how long an untouched budget survives before reaping.
	IdleAfter time.Duration
	// ReapInterval is how often the background reaper runs.
	// Defaults to IdleAfter / 2.
	ReapInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.PerMinute <= 0 {
		c.PerMinute = DefaultPerMinute
	}
	if c.Burst <= 0 {
		c.Burst = DefaultBurst
	}
	if c.IdleAfter <= 0 {
		c.IdleAfter = DefaultIdleAfter
	}
	if c.ReapInterval <= 0 {
		c.ReapInterval = c.IdleAfter / 2
	}
	return c
}

// clientBudget pairs a token bucket with its last-use time.
type clientBudget struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter is a per-client-identity admission gate. Admit never blocks.
type Limiter struct {
	cfg Config

	mu      sync.Mutex
	clients map[string]*clientBudget

	rejected uint64

	// now is swappable for reaper tests.
	now func() time.Time
}

// New creates a limiter. Run starts the background reaper; without it
// the limiter still works but idle budgets are only reaped on demand.
func New(cfg Config) *Limiter {
	return &Limiter{
		cfg:     cfg.withDefaults(),
		clients: make(map[string]*clientBudget),
		now:     time.Now,
	}
}

// Admit consumes one token from the client's bucket if available.
// A new client starts with a full bucket. Safe for arbitrary concurrency
// across distinct and identical identities.
func (l *Limiter) Admit(clientID string) bool {
	l.mu.Lock()
	b, ok := l.clients[clientID]
	if !ok {
		b = &clientBudget{
			limiter: rate.NewLimiter(rate.Limit(float64(l.cfg.PerMinute)/60.0), l.cfg.Burst),
		}
		l.clients[clientID] = b
	}
	b.lastSeen = l.now()
	l.mu.Unlock()

	// rate.Limiter has its own lock; Allow is safe outside ours.
	allowed := b.limiter.Allow()
	if !allowed {
		l.mu.Lock()
		l.rejected++
		l.mu.Unlock()
		slog.Debug("request_rate_limited", slog.String("client", clientID))
	}
	return allowed
}

// ClientCount returns the number of tracked client budgets.
func (l *Limiter) ClientCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// Rejected returns the total number of rejected admissions.
func (l *Limiter) Rejected() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rejected
}

// Run drives the periodic reaper until ctx is cancelled.
func (l *Limiter) Run(ctx context.Context) {
	ticker := time.NewTicker(l.cfg.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if reaped := l.Reap(); reaped > 0 {
				slog.Debug("client_budgets_reaped",
					slog.Int("reaped", reaped),
					slog.Int("remaining", l.ClientCount()))
			}
		}
	}
}

// Reap removes budgets idle beyond the configured horizon and returns
// how many were removed.
func (l *Limiter) Reap() int {
	cutoff := l.now().Add(-l.cfg.IdleAfter)

	l.mu.Lock()
	defer l.mu.Unlock()

	reaped := 0
	for id, b := range l.clients {
		if b.lastSeen.Before(cutoff) {
			delete(l.clients, id)
			reaped++
		}
	}
	return reaped
}
