package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"trove/api/internal/store"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis, store.User) {
	t.Helper()
	mr := miniredis.RunT(t)
	users := store.NewMemoryStore()
	user, err := users.EnsureUserByName(context.Background(), "Avery")
	if err != nil {
		t.Fatalf("EnsureUserByName() error = %v", err)
	}
	rs, err := NewRedisStore(context.Background(), "redis://"+mr.Addr(), users)
	if err != nil {
		t.Fatalf("NewRedisStore() error = %v", err)
	}
	t.Cleanup(func() { _ = rs.Close() })
	return rs, mr, user
}

func TestNewRedisStoreRejectsBadURL(t *testing.T) {
	if _, err := NewRedisStore(context.Background(), "://nope", store.NewMemoryStore()); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestSaveAndLookupRefreshSession(t *testing.T) {
	rs, mr, user := setupTestRedis(t)
	ctx := context.Background()

	if err := rs.SaveRefreshSession(ctx, "hash-1", user.ID, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("SaveRefreshSession() error = %v", err)
	}
	if !mr.Exists(keyPrefix + "hash-1") {
		t.Fatal("expected prefixed key in redis")
	}

	got, err := rs.LookupRefreshSession(ctx, "hash-1")
	if err != nil {
		t.Fatalf("LookupRefreshSession() error = %v", err)
	}
	if got.ID != user.ID || got.DisplayName != "Avery" {
		t.Fatalf("unexpected user: %+v", got)
	}
}

func TestLookupExpiredSession(t *testing.T) {
	rs, mr, user := setupTestRedis(t)
	ctx := context.Background()

	if err := rs.SaveRefreshSession(ctx, "hash-2", user.ID, time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("SaveRefreshSession() error = %v", err)
	}
	mr.FastForward(2 * time.Minute)

	if _, err := rs.LookupRefreshSession(ctx, "hash-2"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expired lookup error = %v, want ErrNotFound", err)
	}
}

func TestRevokeRefreshSession(t *testing.T) {
	rs, _, user := setupTestRedis(t)
	ctx := context.Background()

	if err := rs.SaveRefreshSession(ctx, "hash-3", user.ID, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("SaveRefreshSession() error = %v", err)
	}
	if err := rs.RevokeRefreshSession(ctx, "hash-3"); err != nil {
		t.Fatalf("RevokeRefreshSession() error = %v", err)
	}
	if _, err := rs.LookupRefreshSession(ctx, "hash-3"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("revoked lookup error = %v, want ErrNotFound", err)
	}
	if err := rs.RevokeRefreshSession(ctx, "never-saved"); err != nil {
		t.Fatalf("revoking unknown token error = %v", err)
	}
}

func TestPastExpiryIsNotStored(t *testing.T) {
	rs, mr, user := setupTestRedis(t)

	if err := rs.SaveRefreshSession(context.Background(), "hash-4", user.ID, time.Now().Add(-time.Second)); err != nil {
		t.Fatalf("SaveRefreshSession() error = %v", err)
	}
	if mr.Exists(keyPrefix + "hash-4") {
		t.Fatal("expired session must not be written")
	}
}
