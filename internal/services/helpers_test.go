package services

import (
	"context"
	"testing"
	"time"

	"github.com/adminkit/apiserver/internal/codec"
	"github.com/adminkit/apiserver/internal/logging"
	"github.com/adminkit/apiserver/types"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testAppKey = "0123456789abcdef0123456789abcdef"

type testEnv struct {
	store        *memStore
	hasher       *PasswordHasher
	mailer       *memMailer
	events       *memEvents
	revocations  *memRevocations
	sessions     *SessionService
	verification *VerificationService
	auth         *AuthService
	csrf         *CsrfService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	newCodec := func(purpose string) *codec.Codec {
		c, err := codec.New(testAppKey, purpose)
		require.NoError(t, err)
		return c
	}

	env := &testEnv{
		store:       newMemStore(),
		hasher:      NewPasswordHasher(bcrypt.MinCost),
		mailer:      &memMailer{},
		events:      &memEvents{},
		revocations: &memRevocations{},
	}
	logger := logging.Discard()
	env.sessions = NewSessionService(env.store, env.revocations, "test-secret", 72*time.Hour)
	env.verification = NewVerificationService(
		env.store,
		newCodec(codec.PurposeEmailVerification),
		newCodec(codec.PurposePasswordReset),
		env.mailer,
		env.events,
		env.hasher,
		logger,
		VerificationConfig{BaseURL: "http://app.test", VerifyWindow: 24 * time.Hour, ResetWindow: 24 * time.Hour},
	)
	env.auth = NewAuthService(env.store, env.sessions, env.verification, env.hasher, logger, AuthOptions{
		Events:          env.events,
		RequireVerified: true,
	})
	env.csrf = NewCsrfService(env.store, newCodec(codec.PurposeCSRF), time.Minute)
	return env
}

// addUser stores a user with password "password".
func (e *testEnv) addUser(t *testing.T, username string, verified bool) types.User {
	t.Helper()
	hash, err := e.hasher.Hash("password")
	require.NoError(t, err)
	user := types.User{Name: username, Email: username + "@example.com", Username: username, PasswordHash: hash}
	if verified {
		now := time.Now()
		user.EmailVerifiedAt = &now
	}
	user, err = e.store.Users().Create(context.Background(), user)
	require.NoError(t, err)
	return user
}

func requireFieldError(t *testing.T, err error, field string) {
	t.Helper()
	var errs validation.Errors
	require.ErrorAs(t, err, &errs)
	require.Contains(t, errs, field)
}
