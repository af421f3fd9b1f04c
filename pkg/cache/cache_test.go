package cache

import (
	"context"
	"testing"
	"time"
)

func TestLocalCache(t *testing.T) {
	c := NewLocalCache(LocalConfig{
		DefaultExpiration: 5 * time.Minute,
		CleanupInterval:   10 * time.Minute,
	})
	defer c.Close()

	ctx := context.Background()

	t.Run("Set and Get", func(t *testing.T) {
		if err := c.Set(ctx, "k", "v", time.Minute); err != nil {
			t.Errorf("Failed to set cache: %v", err)
		}
		if got, ok := c.Get(ctx, "k"); !ok {
			t.Error("Cache value not found")
		} else if got != "v" {
			t.Errorf("Expected v, got %v", got)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		_ = c.Set(ctx, "gone", 1, time.Minute)
		if err := c.Delete(ctx, "gone"); err != nil {
			t.Errorf("Failed to delete: %v", err)
		}
		if c.Exists(ctx, "gone") {
			t.Error("key should be gone")
		}
	})

	t.Run("Clear", func(t *testing.T) {
		_ = c.Set(ctx, "a", 1, time.Minute)
		_ = c.Set(ctx, "b", 2, time.Minute)
		if err := c.Clear(ctx); err != nil {
			t.Errorf("Failed to clear: %v", err)
		}
		if c.Exists(ctx, "a") || c.Exists(ctx, "b") {
			t.Error("cache should be empty after clear")
		}
	})
}

func TestFactory(t *testing.T) {
	if _, err := NewCache(Config{Type: "local"}); err != nil {
		t.Fatalf("local cache: %v", err)
	}
	if _, err := NewCache(Config{Type: "nope"}); err == nil {
		t.Fatal("expected error for unsupported type")
	}
}
