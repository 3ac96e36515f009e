package cache

import (
	"testing"
	"time"

	"go.uber.org/zap"
)

func zapNop() *zap.Logger { return zap.NewNop() }

func TestRistrettoCache(t *testing.T) {
	cache, err := NewRistrettoCache(DefaultConfig("test", 100, zapNop()))
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	defer cache.Close()

	t.Run("set-and-get", func(t *testing.T) {
		success := cache.Set("status:m1", true, 1*time.Hour)
		if !success {
			t.Error("expected Set to succeed")
		}

		// Wait for Ristretto to process pending writes
		cache.Wait()

		retrieved, found := cache.Get("status:m1")
		if !found {
			t.Fatal("expected key to be found")
		}
		if retrieved != true {
			t.Errorf("expected true, got %v", retrieved)
		}
	})

	t.Run("get-missing-key", func(t *testing.T) {
		_, found := cache.Get("nonexistent")
		if found {
			t.Error("expected key to not be found")
		}
	})

	t.Run("delete", func(t *testing.T) {
		cache.Set("delete-test", "value", 1*time.Hour)
		cache.Wait()

		cache.Delete("delete-test")

		_, found := cache.Get("delete-test")
		if found {
			t.Error("expected key to be deleted")
		}
	})

	t.Run("ttl-expiration", func(t *testing.T) {
		cache.Set("ttl-test", "value", 200*time.Millisecond)
		cache.Wait()

		_, found := cache.Get("ttl-test")
		if !found {
			t.Error("expected key to exist before TTL expires")
		}

		time.Sleep(1200 * time.Millisecond)

		_, found = cache.Get("ttl-test")
		if found {
			t.Error("expected key to be expired after TTL")
		}
	})

	t.Run("clear", func(t *testing.T) {
		cache.Set("clear-key1", "value1", 1*time.Hour)
		cache.Set("clear-key2", "value2", 1*time.Hour)
		cache.Wait()

		cache.Clear()

		_, found1 := cache.Get("clear-key1")
		_, found2 := cache.Get("clear-key2")
		if found1 || found2 {
			t.Error("expected all keys to be cleared")
		}
	})
}

func TestNewRistrettoCache_RequiresName(t *testing.T) {
	_, err := NewRistrettoCache(DefaultConfig("", 10, zapNop()))
	if err == nil {
		t.Error("expected error for empty name")
	}
}
