package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SessionCookie is the cookie that carries the session token.
const SessionCookie = "healthnova_session"

var (
	ErrInvalidSession = errors.New("invalid session")
	ErrSessionRevoked = errors.New("session revoked")
)

// Claims is the payload of a session token.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// Sessions issues and verifies HS256 session tokens. Logged-out tokens are
// remembered in the revocation store until they expire.
type Sessions struct {
	key    []byte
	ttl    time.Duration
	issuer string
	store  RevocationStore
	now    func() time.Time
}

func NewSessions(secret string, ttl time.Duration, store RevocationStore) *Sessions {
	return &Sessions{
		key:    []byte(secret),
		ttl:    ttl,
		issuer: "healthnova",
		store:  store,
		now:    time.Now,
	}
}

// TTL is how long an issued session stays valid.
func (s *Sessions) TTL() time.Duration { return s.ttl }

// Issue creates a signed token for the user.
func (s *Sessions) Issue(userID uuid.UUID, role string) (string, *Claims, error) {
	now := s.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID.String(),
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		Role: role,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", nil, fmt.Errorf("sign session: %w", err)
	}
	return token, claims, nil
}

// Verify parses the token and checks signature, expiry and revocation.
func (s *Sessions) Verify(ctx context.Context, token string) (Identity, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return s.key, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid {
		return Identity{}, ErrInvalidSession
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil || !validRole(claims.Role) {
		return Identity{}, ErrInvalidSession
	}

	if s.store != nil {
		revoked, err := s.store.IsRevoked(ctx, claims.ID)
		if err != nil {
			return Identity{}, fmt.Errorf("check revocation: %w", err)
		}
		if revoked {
			return Identity{}, ErrSessionRevoked
		}
	}

	return Identity{
		UserID:    userID,
		Role:      claims.Role,
		SessionID: claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Revoke ends the session identified by id.
func (s *Sessions) Revoke(ctx context.Context, id Identity) error {
	if s.store == nil || id.SessionID == "" {
		return nil
	}
	return s.store.Revoke(ctx, id.SessionID, id.UserID.String(), id.ExpiresAt)
}
