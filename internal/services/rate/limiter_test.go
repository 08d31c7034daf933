package rate

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	redrepo "github.com/rfuntusov-a11y/gencontent/internal/repo/redis"
)

func TestLimiterBlocksOn10SecondWindow(t *testing.T) {
	mr, client := newMiniRedisClient(t)
	defer mr.Close()
	defer func() { _ = client.Close() }()

	repo := redrepo.NewRateRepo(client)
	limiter := NewLimiter(repo, 100, 2)

	ctx := context.Background()
	userID := int64(42)

	for i := 0; i < 2; i++ {
		retryAfter, allowed, err := limiter.AllowGeneration(ctx, userID)
		if err != nil {
			t.Fatalf("allow generation #%d: %v", i+1, err)
		}
		if !allowed || retryAfter != 0 {
			t.Fatalf("unexpected result on allow #%d: allowed=%v retry_after=%d", i+1, allowed, retryAfter)
		}
	}

	retryAfter, allowed, err := limiter.AllowGeneration(ctx, userID)
	if err != nil {
		t.Fatalf("allow generation #3: %v", err)
	}
	if allowed {
		t.Fatalf("expected limiter block on third generation in 10s window")
	}
	if retryAfter <= 0 {
		t.Fatalf("expected positive retry_after, got %d", retryAfter)
	}

	mr.FastForward(11 * time.Second)

	retryAfter, allowed, err = limiter.AllowGeneration(ctx, userID)
	if err != nil {
		t.Fatalf("allow generation after 10s window: %v", err)
	}
	if !allowed || retryAfter != 0 {
		t.Fatalf("unexpected result after fast forward: allowed=%v retry_after=%d", allowed, retryAfter)
	}
}

func TestLimiterBlocksOnMinuteWindow(t *testing.T) {
	mr, client := newMiniRedisClient(t)
	defer mr.Close()
	defer func() { _ = client.Close() }()

	repo := redrepo.NewRateRepo(client)
	limiter := NewLimiter(repo, 3, 100)

	ctx := context.Background()
	userID := int64(77)

	for i := 0; i < 3; i++ {
		_, allowed, err := limiter.AllowGeneration(ctx, userID)
		if err != nil {
			t.Fatalf("allow generation #%d: %v", i+1, err)
		}
		if !allowed {
			t.Fatalf("unexpected block on generation #%d", i+1)
		}
	}

	retryAfter, allowed, err := limiter.AllowGeneration(ctx, userID)
	if err != nil {
		t.Fatalf("allow generation #4: %v", err)
	}
	if allowed {
		t.Fatalf("expected limiter block on fourth generation in a minute")
	}
	if retryAfter <= 0 {
		t.Fatalf("expected positive retry_after, got %d", retryAfter)
	}
}

func TestLimiterIsolatesUsers(t *testing.T) {
	mr, client := newMiniRedisClient(t)
	defer mr.Close()
	defer func() { _ = client.Close() }()

	repo := redrepo.NewRateRepo(client)
	limiter := NewLimiter(repo, 100, 1)

	ctx := context.Background()

	if _, allowed, err := limiter.AllowGeneration(ctx, 1); err != nil || !allowed {
		t.Fatalf("user 1 first generation: allowed=%v err=%v", allowed, err)
	}
	if _, allowed, err := limiter.AllowGeneration(ctx, 1); err != nil || allowed {
		t.Fatalf("user 1 should be blocked: allowed=%v err=%v", allowed, err)
	}

	// a different user is unaffected
	if _, allowed, err := limiter.AllowGeneration(ctx, 2); err != nil || !allowed {
		t.Fatalf("user 2 must not share user 1's window: allowed=%v err=%v", allowed, err)
	}
}

func newMiniRedisClient(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}

	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	return mr, client
}
