package lease

import (
	"context"
	"testing"
	"time"
)

func TestLocalLockerExclusive(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	release, ok, err := l.Acquire(ctx, "sweep", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first Acquire = %v, %v", ok, err)
	}
	if _, ok, _ := l.Acquire(ctx, "sweep", time.Minute); ok {
		t.Fatal("second Acquire succeeded while held")
	}
	if _, ok, _ := l.Acquire(ctx, "other", time.Minute); !ok {
		t.Fatal("independent key blocked")
	}
	if err := release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, ok, _ := l.Acquire(ctx, "sweep", time.Minute); !ok {
		t.Fatal("Acquire after release failed")
	}
}

func TestLocalLockerExpiry(t *testing.T) {
	l := NewLocalLocker()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	stale, ok, _ := l.Acquire(ctx, "sweep", time.Second)
	if !ok {
		t.Fatal("Acquire failed")
	}
	now = now.Add(2 * time.Second)
	if _, ok, _ := l.Acquire(ctx, "sweep", time.Minute); !ok {
		t.Fatal("expired lease not taken over")
	}
	// The stale holder must not release the new holder's lease.
	_ = stale(ctx)
	if _, ok, _ := l.Acquire(ctx, "sweep", time.Minute); ok {
		t.Fatal("stale release dropped the current lease")
	}
}
