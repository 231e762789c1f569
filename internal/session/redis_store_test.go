package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	store, err := NewRedisStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	return store, s
}

func TestNewRedisStore(t *testing.T) {
	s := miniredis.RunT(t)
	defer s.Close()

	store, err := NewRedisStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("NewRedisStore failed: %v", err)
	}
	defer store.Close()

	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestSaveAndConsume(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	expiresAt := time.Now().Add(24 * time.Hour)

	if err := store.Save(ctx, "hash-1", "usr_123", expiresAt); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	userID, err := store.Consume(ctx, "hash-1")
	if err != nil {
		t.Fatalf("Consume failed: %v", err)
	}
	if userID != "usr_123" {
		t.Errorf("expected usr_123, got %s", userID)
	}
}

func TestConsumeIsSingleUse(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	if err := store.Save(ctx, "hash-rotate", "usr_1", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if _, err := store.Consume(ctx, "hash-rotate"); err != nil {
		t.Fatalf("first Consume failed: %v", err)
	}

	// Presenting a rotated token again must miss.
	if _, err := store.Consume(ctx, "hash-rotate"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on reuse, got %v", err)
	}
}

func TestConsumeExpiredToken(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	if err := store.Save(ctx, "hash-exp", "usr_456", time.Now().Add(time.Second)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	s.FastForward(2 * time.Second)

	if _, err := store.Consume(ctx, "hash-exp"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for expired token, got %v", err)
	}
}

func TestSaveRejectsPastExpiry(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	if err := store.Save(context.Background(), "hash-past", "usr_1", time.Now().Add(-time.Minute)); err == nil {
		t.Fatal("expected error saving an already-expired token")
	}
}

func TestConsumeNonExistentToken(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	if _, err := store.Consume(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRevoke(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	if err := store.Save(ctx, "hash-revoke", "usr_789", time.Now().Add(24*time.Hour)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if err := store.Revoke(ctx, "hash-revoke"); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}

	if _, err := store.Consume(ctx, "hash-revoke"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after revoke, got %v", err)
	}

	// Revoking an absent token is not an error.
	if err := store.Revoke(ctx, "never-existed"); err != nil {
		t.Errorf("Revoke for absent token failed: %v", err)
	}
}

func TestTokenIsolation(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	expiresAt := time.Now().Add(24 * time.Hour)

	if err := store.Save(ctx, "hash-a", "usr_a", expiresAt); err != nil {
		t.Fatalf("Save a failed: %v", err)
	}
	if err := store.Save(ctx, "hash-b", "usr_b", expiresAt); err != nil {
		t.Fatalf("Save b failed: %v", err)
	}

	if err := store.Revoke(ctx, "hash-a"); err != nil {
		t.Fatalf("Revoke a failed: %v", err)
	}

	userID, err := store.Consume(ctx, "hash-b")
	if err != nil {
		t.Fatalf("Consume b after revoking a failed: %v", err)
	}
	if userID != "usr_b" {
		t.Errorf("expected usr_b, got %s", userID)
	}
}
