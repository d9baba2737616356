package paycore

import (
	"context"
	"sync"
	"time"
)

// Decision is the outcome of a rate limit admission check.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// WindowConfig describes one fixed counting window.
type WindowConfig struct {
	Window      time.Duration
	MaxRequests int
}

// DefaultProfiles are the static named limiter configurations. Stricter
// windows guard authentication and payment mutation traffic; general API
// traffic gets the loosest one.
var DefaultProfiles = map[string]WindowConfig{
	"api":      {Window: time.Minute, MaxRequests: 120},
	"payments": {Window: time.Minute, MaxRequests: 30},
	"auth":     {Window: 15 * time.Minute, MaxRequests: 10},
}

// WindowStore counts requests per identifier within a fixed window. Incr
// returns the post-increment count for the identifier's current window and
// how long until that window expires. Implementations decide where the
// counters live: in-process for single-node deployments, Redis for shared
// state across instances.
type WindowStore interface {
	Incr(ctx context.Context, key string, window time.Duration) (count int, expiresIn time.Duration, err error)
}

// RateLimiter performs fixed-window admission control per identifier. Fixed
// windows permit up to 2x the configured burst at a window boundary; that
// imprecision is accepted in exchange for O(1) state per identifier.
type RateLimiter struct {
	store    WindowStore
	profiles map[string]WindowConfig
	fallback WindowConfig
	metrics  *MetricsCollector
	logger   Logger
}

// RateLimiterOption configures a RateLimiter.
type RateLimiterOption func(*RateLimiter)

// WithProfiles replaces the named window configurations.
func WithProfiles(profiles map[string]WindowConfig) RateLimiterOption {
	return func(l *RateLimiter) { l.profiles = profiles }
}

// WithFallbackWindow sets the config used for unknown profile names.
func WithFallbackWindow(cfg WindowConfig) RateLimiterOption {
	return func(l *RateLimiter) { l.fallback = cfg }
}

// WithRateLimiterMetrics attaches a metrics collector.
func WithRateLimiterMetrics(mc *MetricsCollector) RateLimiterOption {
	return func(l *RateLimiter) { l.metrics = mc }
}

// WithRateLimiterLogger attaches a logger.
func WithRateLimiterLogger(logger Logger) RateLimiterOption {
	return func(l *RateLimiter) { l.logger = logger }
}

// NewRateLimiter creates a limiter backed by store. A nil store gets an
// in-memory one.
func NewRateLimiter(store WindowStore, opts ...RateLimiterOption) *RateLimiter {
	if store == nil {
		store = NewMemoryWindowStore()
	}
	l := &RateLimiter{
		store:    store,
		profiles: DefaultProfiles,
		fallback: WindowConfig{Window: time.Minute, MaxRequests: 60},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Admit runs the admission check for identifier under the named profile.
// Store failures fail open: admitting a request during a counter outage is
// cheaper than rejecting legitimate traffic.
func (l *RateLimiter) Admit(ctx context.Context, profile, identifier string) Decision {
	cfg, ok := l.profiles[profile]
	if !ok {
		cfg = l.fallback
	}

	count, expiresIn, err := l.store.Incr(ctx, profile+":"+identifier, cfg.Window)
	if err != nil {
		if l.logger != nil {
			l.logger.Warn("rate limit store unavailable, failing open", "profile", profile, "error", err.Error())
		}
		return Decision{Allowed: true, Remaining: cfg.MaxRequests}
	}

	remaining := cfg.MaxRequests - count
	if remaining < 0 {
		remaining = 0
	}

	if count > cfg.MaxRequests {
		if l.metrics != nil {
			l.metrics.RecordRateLimitRejection(profile)
		}
		return Decision{Allowed: false, Remaining: 0, RetryAfter: expiresIn}
	}

	return Decision{Allowed: true, Remaining: remaining}
}

// LimitError converts a rejecting Decision into the typed error surfaced to
// callers.
func (d Decision) LimitError() *Error {
	return &Error{
		Type:       ErrorTypeRateLimited,
		Message:    "rate limit exceeded",
		RetryAfter: d.RetryAfter,
		Timestamp:  time.Now(),
	}
}

type windowEntry struct {
	count       int
	windowStart time.Time
}

// MemoryWindowStore keeps window counters in a mutex-guarded map. Entries for
// elapsed windows are removed by a periodic sweep so memory stays bounded to
// active identifiers.
type MemoryWindowStore struct {
	mu      sync.Mutex
	entries map[string]*windowEntry
	sweep   time.Duration
	now     func() time.Time
}

// MemoryWindowStoreOption configures a MemoryWindowStore.
type MemoryWindowStoreOption func(*MemoryWindowStore)

// WithSweepInterval sets how often the janitor evicts elapsed windows.
func WithSweepInterval(d time.Duration) MemoryWindowStoreOption {
	return func(s *MemoryWindowStore) { s.sweep = d }
}

// NewMemoryWindowStore returns an in-process window store.
func NewMemoryWindowStore(opts ...MemoryWindowStoreOption) *MemoryWindowStore {
	s := &MemoryWindowStore{
		entries: make(map[string]*windowEntry),
		sweep:   time.Minute,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Incr implements WindowStore.
func (s *MemoryWindowStore) Incr(_ context.Context, key string, window time.Duration) (int, time.Duration, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.entries[key]
	if !ok || now.Sub(ent.windowStart) >= window {
		ent = &windowEntry{count: 1, windowStart: now}
		s.entries[key] = ent
		return 1, window, nil
	}

	ent.count++
	return ent.count, ent.windowStart.Add(window).Sub(now), nil
}

// Sweep removes entries whose window has fully elapsed.
func (s *MemoryWindowStore) Sweep(maxWindow time.Duration) {
	cutoff := s.now().Add(-maxWindow)

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, ent := range s.entries {
		if ent.windowStart.Before(cutoff) {
			delete(s.entries, key)
		}
	}
}

// StartJanitor sweeps periodically until ctx is done. maxWindow should be at
// least the largest configured window so live entries survive the sweep.
func (s *MemoryWindowStore) StartJanitor(ctx context.Context, maxWindow time.Duration) {
	if s.sweep <= 0 {
		return
	}

	t := time.NewTicker(s.sweep)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Sweep(maxWindow)
			}
		}
	}()
}

// Len reports the number of tracked identifiers.
func (s *MemoryWindowStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
