package auth

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMemoryRevocationStore_RevokeAndCheck(t *testing.T) {
	store := NewMemoryRevocationStore()
	defer store.Close()
	ctx := context.Background()

	if err := store.Revoke(ctx, "session-1", "user-42", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Revoke: %v", err)
	}

	revoked, err := store.IsRevoked(ctx, "session-1")
	if err != nil || !revoked {
		t.Errorf("expected session-1 revoked, got %v (err %v)", revoked, err)
	}
	revoked, _ = store.IsRevoked(ctx, "unknown")
	if revoked {
		t.Error("expected unknown session to not be revoked")
	}
}

func TestMemoryRevocationStore_CleanupDropsExpired(t *testing.T) {
	store := NewMemoryRevocationStore()
	defer store.Close()
	ctx := context.Background()

	now := time.Now()
	store.Revoke(ctx, "expired", "u", now.Add(-time.Minute))
	store.Revoke(ctx, "live", "u", now.Add(time.Hour))

	store.cleanup(now)

	if store.Count() != 1 {
		t.Fatalf("expected 1 entry after cleanup, got %d", store.Count())
	}
	if revoked, _ := store.IsRevoked(ctx, "live"); !revoked {
		t.Error("expected live entry to survive cleanup")
	}
}

func TestMemoryRevocationStore_CloseTwice(t *testing.T) {
	store := NewMemoryRevocationStore()
	store.Close()
	store.Close()
}

func TestMemoryRevocationStore_Concurrent(t *testing.T) {
	store := NewMemoryRevocationStore()
	defer store.Close()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			store.Revoke(ctx, string(rune('a'+i%26))+"-session", "u", time.Now().Add(time.Hour))
		}(i)
		go func() {
			defer wg.Done()
			store.IsRevoked(ctx, "a-session")
		}()
	}
	wg.Wait()

	if store.Count() != 26 {
		t.Errorf("expected 26 distinct sessions, got %d", store.Count())
	}
}
