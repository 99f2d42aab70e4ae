package ratelimit_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sophialabs/mapforge/internal/infrastructure/outbound/ratelimit"
)

func TestBuckets_BurstThenDeny(t *testing.T) {
	b := ratelimit.NewBuckets(time.Minute)
	defer b.Close()
	ctx := context.Background()

	for i := range 3 {
		if !b.Allow(ctx, "MEASUREMENT", 1, 3) {
			t.Fatalf("request %d should be allowed within burst", i+1)
		}
	}
	if b.Allow(ctx, "MEASUREMENT", 1, 3) {
		t.Error("request over burst should be denied")
	}
	if !b.Allow(ctx, "EVENT", 1, 3) {
		t.Error("EVENT must not share the MEASUREMENT bucket")
	}
}

func TestBuckets_WaitHonoursContext(t *testing.T) {
	b := ratelimit.NewBuckets(time.Minute)
	defer b.Close()

	if err := b.Wait(context.Background(), "ALARM", 0.5, 1); err != nil {
		t.Fatalf("first wait should pass: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := b.Wait(ctx, "ALARM", 0.5, 1)
	if err == nil {
		t.Fatal("expected wait to fail before a token is available")
	}
}

func TestBuckets_WaitUnlimited(t *testing.T) {
	b := ratelimit.NewBuckets(time.Minute)
	defer b.Close()

	for range 100 {
		if err := b.Wait(context.Background(), "INVENTORY", 0, 0); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if b.Len() != 0 {
		t.Errorf("unlimited waits must not allocate buckets, got %d", b.Len())
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := b.Wait(ctx, "INVENTORY", 0, 0); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestBuckets_RetuneOnReload(t *testing.T) {
	b := ratelimit.NewBuckets(time.Minute)
	defer b.Close()
	ctx := context.Background()

	b.Allow(ctx, "k", 1, 2)
	b.Allow(ctx, "k", 10, 20)
	if b.Len() != 1 {
		t.Fatalf("expected 1 bucket after retune, got %d", b.Len())
	}
	for b.Allow(ctx, "k", 10, 20) {
	}
	time.Sleep(200 * time.Millisecond)
	if !b.Allow(ctx, "k", 10, 20) {
		t.Error("expected a token after retuned refill")
	}
}

func TestBuckets_Evict(t *testing.T) {
	b := ratelimit.NewBuckets(time.Millisecond)
	defer b.Close()

	b.Allow(context.Background(), "old", 1, 1)
	time.Sleep(10 * time.Millisecond)
	b.Evict()

	if b.Len() != 0 {
		t.Errorf("expected 0 after eviction, got %d", b.Len())
	}
}

func TestBuckets_Concurrent(t *testing.T) {
	b := ratelimit.NewBuckets(time.Minute)
	defer b.Close()
	var wg sync.WaitGroup

	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = b.Wait(context.Background(), "shared", 1000, 100)
		}()
	}
	wg.Wait()

	if b.Len() != 1 {
		t.Errorf("expected 1 bucket, got %d", b.Len())
	}
	b.Close()
}
