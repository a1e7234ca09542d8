package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const testSecret = "test-secret-key-for-unit-tests-only"

func newTestSessions(t *testing.T) (*Sessions, *MemoryRevocationStore) {
	t.Helper()
	store := NewMemoryRevocationStore()
	t.Cleanup(store.Close)
	return NewSessions(testSecret, time.Hour, store), store
}

func TestSessions_IssueAndVerify(t *testing.T) {
	s, _ := newTestSessions(t)
	userID := uuid.New()

	token, claims, err := s.Issue(userID, RoleDoctor)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if claims.ID == "" {
		t.Fatal("expected a session id")
	}

	id, err := s.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if id.UserID != userID || id.Role != RoleDoctor || id.SessionID != claims.ID {
		t.Errorf("unexpected identity: %+v", id)
	}
}

func TestSessions_Expired(t *testing.T) {
	s, _ := newTestSessions(t)
	issued := time.Now().Add(-2 * time.Hour)
	s.now = func() time.Time { return issued }
	token, _, err := s.Issue(uuid.New(), RolePatient)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	s.now = time.Now
	if _, err := s.Verify(context.Background(), token); !errors.Is(err, ErrInvalidSession) {
		t.Errorf("expected ErrInvalidSession, got %v", err)
	}
}

func TestSessions_WrongKey(t *testing.T) {
	s, _ := newTestSessions(t)
	other := NewSessions("another-secret", time.Hour, nil)
	token, _, err := other.Issue(uuid.New(), RolePatient)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := s.Verify(context.Background(), token); !errors.Is(err, ErrInvalidSession) {
		t.Errorf("expected ErrInvalidSession, got %v", err)
	}
}

func TestSessions_RejectsUnknownRole(t *testing.T) {
	s, _ := newTestSessions(t)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "x",
			Subject:   uuid.NewString(),
			Issuer:    "healthnova",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: "superuser",
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := s.Verify(context.Background(), token); !errors.Is(err, ErrInvalidSession) {
		t.Errorf("expected ErrInvalidSession, got %v", err)
	}
}

func TestSessions_Revoke(t *testing.T) {
	s, store := newTestSessions(t)
	token, _, _ := s.Issue(uuid.New(), RoleLab)
	ctx := context.Background()

	id, err := s.Verify(ctx, token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if err := s.Revoke(ctx, id); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if store.Count() != 1 {
		t.Errorf("expected 1 revoked session, got %d", store.Count())
	}
	if _, err := s.Verify(ctx, token); !errors.Is(err, ErrSessionRevoked) {
		t.Errorf("expected ErrSessionRevoked, got %v", err)
	}
}
