package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/adminkit/apiserver/internal/store"
	"github.com/adminkit/apiserver/types"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenType is the scheme clients put in front of the token.
const TokenType = "bearer"

// Session is a freshly issued bearer token.
type Session struct {
	Type      string    `json:"type"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	// ExpiresIn is the validity window in seconds.
	ExpiresIn int64     `json:"expires_in"`
}

// Claims identifies an authenticated bearer token.
type Claims struct {
	TokenID   string
	UserID    uuid.UUID
	ExpiresAt time.Time
}

// SessionService issues, verifies and revokes bearer tokens.
type SessionService struct {
	store       Store
	revocations RevocationStore
	secret      []byte
	ttl         time.Duration
	now         func() time.Time
}

func NewSessionService(st Store, revocations RevocationStore, secret string, ttl time.Duration) *SessionService {
	return &SessionService{
		store:       st,
		revocations: revocations,
		secret:      []byte(secret),
		ttl:         ttl,
		now:         time.Now,
	}
}

// TTL returns the validity window of issued tokens.
func (s *SessionService) TTL() time.Duration {
	return s.ttl
}

// Issue mints a bearer token for user.
func (s *SessionService) Issue(user types.User) (Session, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   user.ID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return Session{}, fmt.Errorf("sign token: %w", err)
	}
	return Session{
		Type:      TokenType,
		Token:     token,
		ExpiresAt: expiresAt.UTC().Truncate(time.Second),
		ExpiresIn: int64(s.ttl / time.Second),
	}, nil
}

// Authenticate verifies tokenString and loads its user with roles and permissions.
func (s *SessionService) Authenticate(ctx context.Context, tokenString string) (types.User, Claims, error) {
	claims, err := s.parse(tokenString)
	if err != nil {
		return types.User{}, Claims{}, ErrUnauthenticated
	}

	if s.revocations != nil {
		revoked, err := s.revocations.IsRevoked(ctx, claims.TokenID)
		if err != nil {
			return types.User{}, Claims{}, fmt.Errorf("check revocation: %w", err)
		}
		if revoked {
			return types.User{}, Claims{}, ErrUnauthenticated
		}
	}

	users := s.store.Users()
	user, err := users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, Claims{}, ErrUnauthenticated
		}
		return types.User{}, Claims{}, err
	}
	if err := users.LoadGrants(ctx, &user); err != nil {
		return types.User{}, Claims{}, err
	}
	return user, claims, nil
}

// Revoke invalidates the token identified by claims.
func (s *SessionService) Revoke(ctx context.Context, claims Claims) error {
	if s.revocations == nil {
		return errors.New("no revocation store configured")
	}
	return s.revocations.Revoke(ctx, claims.TokenID, claims.ExpiresAt)
}

func (s *SessionService) parse(tokenString string) (Claims, error) {
	registered := jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, &registered, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil {
		return Claims{}, err
	}
	if !token.Valid {
		return Claims{}, errors.New("invalid token")
	}
	if strings.TrimSpace(registered.ID) == "" {
		return Claims{}, errors.New("missing token id")
	}
	userID, err := uuid.Parse(registered.Subject)
	if err != nil {
		return Claims{}, errors.New("invalid subject")
	}
	return Claims{
		TokenID:   registered.ID,
		UserID:    userID,
		ExpiresAt: registered.ExpiresAt.Time,
	}, nil
}
