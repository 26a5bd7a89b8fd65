// Package ratelimit keeps one token bucket per (scope, client) pair.
package ratelimit

import (
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type Scope string

const (
	ScopeRead  Scope = "read"
	ScopeWrite Scope = "write"
)

// Rule is a sustained rate with a burst allowance. A non-positive RPS
// disables limiting for the scope.
type Rule struct {
	RPS   float64
	Burst int
}

type Config struct {
	Read  Rule
	Write Rule
	// IdleTTL is how long an untouched bucket is kept before it may be evicted.
	IdleTTL time.Duration
}

type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

type key struct {
	scope  Scope
	bucket string
}

type entry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

const defaultMaxEntries = 100000

type Limiter struct {
	cfg        Config
	maxEntries int

	mu      sync.Mutex
	entries map[key]*entry
}

func New(cfg Config) *Limiter {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 10 * time.Minute
	}
	return &Limiter{
		cfg:        cfg,
		maxEntries: defaultMaxEntries,
		entries:    make(map[key]*entry, 4096),
	}
}

func (l *Limiter) rule(scope Scope) Rule {
	if scope == ScopeWrite {
		return l.cfg.Write
	}
	return l.cfg.Read
}

// Take spends one token from the bucket for (scope, bucket) at now.
func (l *Limiter) Take(now time.Time, scope Scope, bucket string) Result {
	rule := l.rule(scope)
	if rule.RPS <= 0 {
		return Result{Allowed: true}
	}
	burst := max(rule.Burst, 1)

	l.mu.Lock()
	k := key{scope: scope, bucket: bucket}
	e, ok := l.entries[k]
	if !ok {
		if len(l.entries) >= l.maxEntries {
			l.cleanup(now.Add(-l.cfg.IdleTTL))
			if len(l.entries) >= l.maxEntries {
				l.evictOldest()
			}
		}
		e = &entry{lim: rate.NewLimiter(rate.Limit(rule.RPS), burst)}
		l.entries[k] = e
	}
	e.lastSeen = now
	l.mu.Unlock()

	r := e.lim.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return Result{Allowed: false, Limit: burst, RetryAfter: delay}
	}
	remaining := int(math.Floor(e.lim.TokensAt(now)))
	return Result{Allowed: true, Limit: burst, Remaining: max(remaining, 0)}
}

// Len reports the number of live buckets.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// evictOldest drops the least recently seen bucket.
func (l *Limiter) evictOldest() {
	var (
		oldest key
		seen   time.Time
		found  bool
	)
	for k, v := range l.entries {
		if !found || v.lastSeen.Before(seen) {
			oldest, seen, found = k, v.lastSeen, true
		}
	}
	if found {
		delete(l.entries, oldest)
	}
}

func (l *Limiter) cleanup(idleBefore time.Time) {
	for k, v := range l.entries {
		if v.lastSeen.Before(idleBefore) {
			delete(l.entries, k)
		}
	}
}
