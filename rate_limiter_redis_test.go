package paycore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedisStore(t *testing.T, opts ...RedisWindowStoreOption) (*RedisWindowStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewRedisWindowStore(rdb, opts...), mr
}

func TestRedisWindowStoreCountsWithinWindow(t *testing.T) {
	s, _ := newTestRedisStore(t)

	for i := 1; i <= 3; i++ {
		count, expiresIn, err := s.Incr(context.Background(), "payments:10.0.0.1", time.Minute)
		if err != nil {
			t.Fatalf("Incr() returned error: %v", err)
		}
		if count != i {
			t.Errorf("Expected count %d, got %d", i, count)
		}
		if expiresIn <= 0 || expiresIn > time.Minute {
			t.Errorf("Expected expiry within the window, got %v", expiresIn)
		}
	}
}

func TestRedisWindowStoreLaterIncrementsKeepWindowStart(t *testing.T) {
	s, mr := newTestRedisStore(t)

	if _, _, err := s.Incr(context.Background(), "payments:10.0.0.1", time.Minute); err != nil {
		t.Fatalf("Incr() returned error: %v", err)
	}

	mr.FastForward(40 * time.Second)

	count, expiresIn, err := s.Incr(context.Background(), "payments:10.0.0.1", time.Minute)
	if err != nil {
		t.Fatalf("Incr() returned error: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected count 2 in the same window, got %d", count)
	}
	if expiresIn > 20*time.Second {
		t.Errorf("Expected the remaining window (<=20s), got %v; a later increment must not slide the window", expiresIn)
	}
}

func TestRedisWindowStoreNewWindowResetsCount(t *testing.T) {
	s, mr := newTestRedisStore(t)

	for i := 0; i < 3; i++ {
		if _, _, err := s.Incr(context.Background(), "payments:10.0.0.1", time.Minute); err != nil {
			t.Fatalf("Incr() returned error: %v", err)
		}
	}

	mr.FastForward(time.Minute + time.Second)

	count, expiresIn, err := s.Incr(context.Background(), "payments:10.0.0.1", time.Minute)
	if err != nil {
		t.Fatalf("Incr() returned error: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected count reset to 1 in the new window, got %d", count)
	}
	if expiresIn != time.Minute {
		t.Errorf("Expected a fresh full window, got %v", expiresIn)
	}
}

func TestRedisWindowStoreRepairsStrandedKey(t *testing.T) {
	s, mr := newTestRedisStore(t)

	// A key left without a TTL (crash between INCR and PEXPIRE) must get
	// one on the next increment instead of counting forever.
	if err := mr.Set("ratelimit:payments:10.0.0.1", "5"); err != nil {
		t.Fatalf("seeding key: %v", err)
	}

	count, expiresIn, err := s.Incr(context.Background(), "payments:10.0.0.1", time.Minute)
	if err != nil {
		t.Fatalf("Incr() returned error: %v", err)
	}
	if count != 6 {
		t.Errorf("Expected count 6, got %d", count)
	}
	if expiresIn != time.Minute {
		t.Errorf("Expected the repaired key to carry a full window TTL, got %v", expiresIn)
	}

	mr.FastForward(time.Minute + time.Second)
	if mr.Exists("ratelimit:payments:10.0.0.1") {
		t.Error("Expected the repaired key to expire with the window")
	}
}

func TestRedisWindowStorePrefix(t *testing.T) {
	s, mr := newTestRedisStore(t, WithRedisPrefix("paycore:limits:"))

	if _, _, err := s.Incr(context.Background(), "api:10.0.0.1", time.Minute); err != nil {
		t.Fatalf("Incr() returned error: %v", err)
	}
	if !mr.Exists("paycore:limits:api:10.0.0.1") {
		t.Error("Expected the counter under the configured prefix")
	}
}

func TestRedisWindowStoreErrorSurfacesAndLimiterFailsOpen(t *testing.T) {
	s, mr := newTestRedisStore(t)
	mr.Close()

	if _, _, err := s.Incr(context.Background(), "payments:10.0.0.1", time.Minute); err == nil {
		t.Fatal("Expected an error from a closed server")
	}

	l := NewRateLimiter(s, WithProfiles(map[string]WindowConfig{
		"payments": {Window: time.Minute, MaxRequests: 1},
	}))
	for i := 0; i < 3; i++ {
		if d := l.Admit(context.Background(), "payments", "10.0.0.1"); !d.Allowed {
			t.Fatalf("Request %d: expected fail-open admission during store outage", i+1)
		}
	}
}
