package ratelimit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// newTestLimiter creates a Limiter connected to a local Redis instance.
// Tests are skipped if Redis is unavailable.
func newTestLimiter(t *testing.T) (*Limiter, context.Context) {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // use DB 15 for tests to avoid conflicts
	})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("skipping: Redis not available: %v", err)
	}
	client.FlushDB(ctx)

	t.Cleanup(func() {
		client.FlushDB(ctx)
		client.Close()
	})

	return NewLimiter(client), ctx
}

func TestAllow_UnderLimit(t *testing.T) {
	l, ctx := newTestLimiter(t)
	rule := Rule{Key: "rl:test:", Limit: 3, Window: time.Minute}

	for i := 0; i < rule.Limit; i++ {
		ok, err := l.Allow(ctx, "alice", rule)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !ok {
			t.Fatalf("request %d of %d should be allowed", i+1, rule.Limit)
		}
	}
}

func TestAllow_OverLimit(t *testing.T) {
	l, ctx := newTestLimiter(t)
	rule := Rule{Key: "rl:test:", Limit: 2, Window: time.Minute}

	for i := 0; i < rule.Limit; i++ {
		if ok, _ := l.Allow(ctx, "alice", rule); !ok {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	ok, err := l.Allow(ctx, "alice", rule)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("request over the limit should be denied")
	}
}

func TestAllow_UsersAreIndependent(t *testing.T) {
	l, ctx := newTestLimiter(t)
	rule := Rule{Key: "rl:test:", Limit: 1, Window: time.Minute}

	if ok, _ := l.Allow(ctx, "alice", rule); !ok {
		t.Fatal("alice's first request should be allowed")
	}
	if ok, _ := l.Allow(ctx, "alice", rule); ok {
		t.Fatal("alice's second request should be denied")
	}
	if ok, _ := l.Allow(ctx, "bob", rule); !ok {
		t.Error("bob's first request must not be throttled by alice's usage")
	}
}

func TestAllow_WindowExpires(t *testing.T) {
	l, ctx := newTestLimiter(t)
	rule := Rule{Key: "rl:test:", Limit: 1, Window: time.Second}

	if ok, _ := l.Allow(ctx, "alice", rule); !ok {
		t.Fatal("first request should be allowed")
	}
	if ok, _ := l.Allow(ctx, "alice", rule); ok {
		t.Fatal("second request should be denied")
	}

	time.Sleep(rule.Window + 200*time.Millisecond)
	if ok, _ := l.Allow(ctx, "alice", rule); !ok {
		t.Error("request after the window expired should be allowed")
	}
}

func TestAllow_ManyUsersConcurrently(t *testing.T) {
	l, ctx := newTestLimiter(t)
	rule := Rule{Key: "rl:test:", Limit: 5, Window: time.Minute}

	for i := 0; i < 10; i++ {
		user := fmt.Sprintf("user-%d", i)
		for j := 0; j < rule.Limit; j++ {
			if ok, _ := l.Allow(ctx, user, rule); !ok {
				t.Fatalf("%s request %d should be allowed", user, j+1)
			}
		}
		if ok, _ := l.Allow(ctx, user, rule); ok {
			t.Errorf("%s request over the limit should be denied", user)
		}
	}
}
