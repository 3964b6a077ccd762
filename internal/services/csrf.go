package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/adminkit/apiserver/internal/codec"
	"github.com/adminkit/apiserver/internal/store"
	"github.com/adminkit/apiserver/types"
	"github.com/google/uuid"
)

// csrfPayload is what the client holds: an encoded reference to the token row.
type csrfPayload struct {
	ID        uuid.UUID `json:"id"`
	IP        string    `json:"ip"`
	ExpiredAt time.Time `json:"expired_at"`
}

// CsrfService issues and consumes single-use, per-IP CSRF tokens.
type CsrfService struct {
	store Store
	codec *codec.Codec
	ttl   time.Duration
	now   func() time.Time
}

func NewCsrfService(st Store, c *codec.Codec, ttl time.Duration) *CsrfService {
	return &CsrfService{store: st, codec: c, ttl: ttl, now: time.Now}
}

// Generate supersedes every live token of ip and issues a new one.
// Concurrent calls for the same ip are serialised by an advisory lock,
// so at most one token per ip is live at any time.
func (s *CsrfService) Generate(ctx context.Context, ip string) (string, error) {
	var issued types.CsrfToken
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Store) error {
		tokens := tx.CsrfTokens()
		if err := tokens.LockIP(ctx, ip); err != nil {
			return err
		}

		now := s.now()
		if _, err := tokens.InvalidateLive(ctx, ip, now); err != nil {
			return err
		}

		created, err := tokens.Create(ctx, types.CsrfToken{IP: ip, ExpiredAt: now.Add(s.ttl)})
		if err != nil {
			return err
		}
		issued = created
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("issue csrf token: %w", err)
	}

	return s.codec.Encode(csrfPayload{ID: issued.ID, IP: issued.IP, ExpiredAt: issued.ExpiredAt})
}

// Validate consumes token for ip. It returns false for absent, malformed,
// unknown, foreign, used or expired tokens; errors are reserved for storage failures.
func (s *CsrfService) Validate(ctx context.Context, token, ip string) (bool, error) {
	if strings.TrimSpace(token) == "" {
		return false, nil
	}

	var payload csrfPayload
	if err := s.codec.Decode(token, &payload); err != nil {
		return false, nil
	}

	accepted := false
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Store) error {
		tokens := tx.CsrfTokens()
		row, err := tokens.GetForUpdate(ctx, payload.ID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil
			}
			return err
		}
		if row.IP != ip || !row.Live(s.now()) {
			return nil
		}
		if err := tokens.MarkUsed(ctx, row.ID); err != nil {
			return err
		}
		accepted = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("validate csrf token: %w", err)
	}
	return accepted, nil
}

// Prune deletes tokens that expired more than grace ago.
func (s *CsrfService) Prune(ctx context.Context, grace time.Duration) (int64, error) {
	return s.store.CsrfTokens().DeleteStale(ctx, s.now().Add(-grace))
}
