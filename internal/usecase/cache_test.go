package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/example/ai-detector/internal/repository"
)

func TestLRUCacheSetIfAbsent(t *testing.T) {
	ctx := context.Background()
	cache := NewLRUCache(4, time.Minute)

	wrote, err := cache.SetIfAbsent(ctx, "k", "first", 0)
	if err != nil || !wrote {
		t.Fatalf("expected first write to succeed, got %v (%v)", wrote, err)
	}
	wrote, err = cache.SetIfAbsent(ctx, "k", "second", 0)
	if err != nil || wrote {
		t.Fatalf("expected second write to be skipped, got %v (%v)", wrote, err)
	}
	if got, _ := cache.Get(ctx, "k"); got != "first" {
		t.Fatalf("expected first value to survive, got %q", got)
	}

	if err := cache.Set(ctx, "k", "third", 0); err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if got, _ := cache.Get(ctx, "k"); got != "third" {
		t.Fatalf("expected Set to overwrite, got %q", got)
	}
	if _, err := cache.Get(ctx, "missing"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected ErrCacheMiss, got %v", err)
	}
}

func TestResultCacheIgnoresStoreAfterInvalidate(t *testing.T) {
	ctx := context.Background()
	rc := newResultCache(NewLRUCache(16, time.Minute), time.Minute, zap.NewNop())
	first := &repository.Detection{ID: "det-1", Status: repository.StatusCompleted}
	second := &repository.Detection{ID: "det-2", Status: repository.StatusFailed}

	rc.store(ctx, first)
	if _, ok := rc.load(ctx, "det-1"); !ok {
		t.Fatal("expected det-1 to be cached")
	}

	rc.invalidate(ctx, "det-1", "det-2")
	rc.store(ctx, first)
	rc.store(ctx, second)

	for _, id := range []string{"det-1", "det-2"} {
		if _, ok := rc.load(ctx, id); ok {
			t.Fatalf("expected %s to stay invalidated", id)
		}
	}
}
