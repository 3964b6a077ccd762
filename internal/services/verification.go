package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/adminkit/apiserver/internal/codec"
	"github.com/adminkit/apiserver/internal/events"
	"github.com/adminkit/apiserver/internal/mail"
	"github.com/adminkit/apiserver/internal/store"
	"github.com/adminkit/apiserver/types"
	"github.com/google/uuid"
)

// Emitter publishes domain events.
type Emitter interface {
	Emit(ctx context.Context, name string, payload any) error
}

// signedPayload is the body of verification and reset tokens.
type signedPayload struct {
	ID        uuid.UUID `json:"id"`
	ExpiredAt time.Time `json:"expired_at"`
}

// VerificationService drives email verification and password reset.
// Both flows mint {id, expired_at} tokens, mail them as links and redeem them later.
type VerificationService struct {
	store        Store
	verifyCodec  *codec.Codec
	resetCodec   *codec.Codec
	mailer       mail.Sender
	events       Emitter
	hasher       *PasswordHasher
	logger       *slog.Logger
	baseURL      string
	verifyWindow time.Duration
	resetWindow  time.Duration
	now          func() time.Time
}

// VerificationConfig groups the VerificationService settings.
type VerificationConfig struct {
	BaseURL      string
	VerifyWindow time.Duration
	ResetWindow  time.Duration
}

func NewVerificationService(
	st Store,
	verifyCodec, resetCodec *codec.Codec,
	mailer mail.Sender,
	emitter Emitter,
	hasher *PasswordHasher,
	logger *slog.Logger,
	cfg VerificationConfig,
) *VerificationService {
	return &VerificationService{
		store:        st,
		verifyCodec:  verifyCodec,
		resetCodec:   resetCodec,
		mailer:       mailer,
		events:       emitter,
		hasher:       hasher,
		logger:       logger,
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		verifyWindow: cfg.VerifyWindow,
		resetWindow:  cfg.ResetWindow,
		now:          time.Now,
	}
}

// SendVerification mails user a fresh verification link.
// host overrides the configured base URL of the link when set.
func (s *VerificationService) SendVerification(ctx context.Context, user types.User, host string) error {
	token, err := s.mint(s.verifyCodec, user.ID, s.verifyWindow)
	if err != nil {
		return err
	}
	msg, err := mail.VerificationMessage(user.Email, user.Name, s.link(host, "/verify", token), s.verifyWindow.String())
	if err != nil {
		return err
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("send verification mail: %w", err)
	}
	return nil
}

// Verify redeems a verification token. Already verified accounts succeed
// regardless of expiry. Otherwise an expired token triggers a new
// verification mail and returns ErrTokenExpired.
func (s *VerificationService) Verify(ctx context.Context, token string) (types.User, error) {
	payload, err := s.open(s.verifyCodec, token)
	if err != nil {
		return types.User{}, err
	}

	user, err := s.store.Users().GetByID(ctx, payload.ID)
	if err != nil {
		return types.User{}, err
	}

	if user.Verified() {
		return user, nil
	}

	if !s.now().Before(payload.ExpiredAt) {
		if err := s.SendVerification(ctx, user, ""); err != nil {
			s.logger.Error("resend verification", slog.String("user_id", user.ID.String()), slog.Any("error", err))
		}
		return types.User{}, ErrTokenExpired
	}

	verifiedAt := s.now()
	err = s.store.WithTx(ctx, func(ctx context.Context, tx Store) error {
		return tx.Users().MarkVerified(ctx, user.ID, verifiedAt)
	})
	if err != nil {
		return types.User{}, err
	}
	user.EmailVerifiedAt = &verifiedAt

	s.emit(ctx, events.UserRegistered, user)
	return user, nil
}

// RequestReset mails a reset link when email belongs to an account.
// Unknown addresses are ignored so callers cannot probe for accounts.
func (s *VerificationService) RequestReset(ctx context.Context, email, host string) error {
	user, err := s.store.Users().GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.logger.Info("password reset for unknown email")
			return nil
		}
		return err
	}

	token, err := s.mint(s.resetCodec, user.ID, s.resetWindow)
	if err != nil {
		return err
	}
	msg, err := mail.ResetMessage(user.Email, user.Name, s.link(host, "/forgot-password", token), s.resetWindow.String())
	if err != nil {
		return err
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("send reset mail: %w", err)
	}
	return nil
}

// ResetPassword redeems a reset token and stores password.
func (s *VerificationService) ResetPassword(ctx context.Context, token, password string) error {
	payload, err := s.open(s.resetCodec, token)
	if err != nil {
		return err
	}

	user, err := s.store.Users().GetByID(ctx, payload.ID)
	if err != nil {
		return err
	}
	if !s.now().Before(payload.ExpiredAt) {
		return ErrTokenExpired
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return err
	}
	err = s.store.WithTx(ctx, func(ctx context.Context, tx Store) error {
		return tx.Users().UpdatePassword(ctx, user.ID, hash)
	})
	if err != nil {
		return err
	}

	s.emit(ctx, events.UserReseted, user)
	return nil
}

func (s *VerificationService) mint(c *codec.Codec, id uuid.UUID, window time.Duration) (string, error) {
	return c.Encode(signedPayload{ID: id, ExpiredAt: s.now().Add(window).UTC()})
}

func (s *VerificationService) open(c *codec.Codec, token string) (signedPayload, error) {
	var payload signedPayload
	if strings.TrimSpace(token) == "" {
		return payload, ErrTokenInvalid
	}
	if err := c.Decode(token, &payload); err != nil {
		return payload, ErrTokenInvalid
	}
	if payload.ID == uuid.Nil || payload.ExpiredAt.IsZero() {
		return payload, ErrTokenInvalid
	}
	return payload, nil
}

func (s *VerificationService) link(host, path, token string) string {
	base := strings.TrimRight(strings.TrimSpace(host), "/")
	if base == "" {
		base = s.baseURL
	}
	return base + path + "?token=" + url.QueryEscape(token)
}

func (s *VerificationService) emit(ctx context.Context, name string, user types.User) {
	if s.events == nil {
		return
	}
	if err := s.events.Emit(ctx, name, user); err != nil {
		s.logger.Warn("emit event", slog.String("name", name), slog.Any("error", err))
	}
}
