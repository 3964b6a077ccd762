package services

import (
	"context"
	"errors"
	"testing"

	"github.com/adminkit/apiserver/internal/events"
	"github.com/adminkit/apiserver/types"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginIssuesSessionWithGrants(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.addUser(t, "alice", true)

	role, err := env.store.Roles().Create(ctx, types.Role{Key: "editor"})
	require.NoError(t, err)
	require.NoError(t, env.store.Users().SyncRoles(ctx, user.ID, []uuid.UUID{role.ID}))

	session, got, err := env.auth.Login(ctx, "ALICE", "password")
	require.NoError(t, err)

	assert.Equal(t, TokenType, session.Type)
	assert.NotEmpty(t, session.Token)
	assert.Equal(t, int64(72*60*60), session.ExpiresIn)
	assert.True(t, got.HasRole("editor"))
	assert.Equal(t, []string{events.UserLogin}, env.events.names)
}

func TestLoginFailuresLookAlike(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, "alice", true)

	_, _, unknown := env.auth.Login(context.Background(), "nobody", "password")
	_, _, wrong := env.auth.Login(context.Background(), "alice", "nope")

	requireFieldError(t, unknown, "password")
	requireFieldError(t, wrong, "password")
	assert.Equal(t, unknown.Error(), wrong.Error())
	assert.Empty(t, env.events.names)
}

func TestLoginRequiresVerifiedEmailAfterPassword(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, "bob", false)

	_, _, err := env.auth.Login(context.Background(), "bob", "password")
	assert.ErrorIs(t, err, ErrEmailNotVerified)

	_, _, err = env.auth.Login(context.Background(), "bob", "wrong")
	requireFieldError(t, err, "password")
}

func TestSessionAuthenticateAndRevoke(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.addUser(t, "alice", true)

	session, _, err := env.auth.Login(ctx, "alice", "password")
	require.NoError(t, err)

	got, claims, err := env.sessions.Authenticate(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.Equal(t, user.ID, claims.UserID)

	require.NoError(t, env.auth.Logout(ctx, claims))

	_, _, err = env.sessions.Authenticate(ctx, session.Token)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestSessionRejectsGarbageAndDeletedUsers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.addUser(t, "alice", true)

	_, _, err := env.sessions.Authenticate(ctx, "not-a-token")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	session, err := env.sessions.Issue(user)
	require.NoError(t, err)
	require.NoError(t, env.store.Users().Delete(ctx, user.ID))

	_, _, err = env.sessions.Authenticate(ctx, session.Token)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestRegisterMailsVerificationLink(t *testing.T) {
	env := newTestEnv(t)

	user, err := env.auth.Register(context.Background(), RegisterInput{
		Name:     "Carol",
		Email:    "Carol@Example.com",
		Username: "carol",
		Password: "password1",
		Next:     "https://front.test/",
	})
	require.NoError(t, err)

	assert.Equal(t, "carol@example.com", user.Email)
	assert.False(t, user.Verified())
	require.Equal(t, 1, env.mailer.count())
	assert.Contains(t, env.mailer.sent[0].HTML, "https://front.test/verify?token=")
}

func TestRegisterMailsOnlyAfterCommit(t *testing.T) {
	env := newTestEnv(t)
	env.store.commitErr = errors.New("commit failed")

	_, err := env.auth.Register(context.Background(), RegisterInput{
		Name:     "Dave",
		Email:    "dave@example.com",
		Username: "dave",
		Password: "password1",
	})

	require.Error(t, err)
	assert.Zero(t, env.mailer.count())
}

func TestRegisterKeepsAccountWhenMailFails(t *testing.T) {
	env := newTestEnv(t)
	env.mailer.err = errors.New("smtp down")

	user, err := env.auth.Register(context.Background(), RegisterInput{
		Name:     "Erin",
		Email:    "erin@example.com",
		Username: "erin",
		Password: "password1",
	})
	require.NoError(t, err)

	stored, err := env.store.Users().GetByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.False(t, stored.Verified())
}

func TestRegisterRejectsTakenFields(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, "alice", true)

	_, err := env.auth.Register(context.Background(), RegisterInput{
		Name:     "Alice Again",
		Email:    "ALICE@example.com",
		Username: "Alice",
		Password: "password1",
	})

	var errs validation.Errors
	require.True(t, errors.As(err, &errs))
	assert.Contains(t, errs, "email")
	assert.Contains(t, errs, "username")
	assert.Zero(t, env.mailer.count())
}

func TestUpdateProfileEmailChangeResetsVerification(t *testing.T) {
	env := newTestEnv(t)
	user := env.addUser(t, "alice", true)

	updated, err := env.auth.UpdateProfile(context.Background(), user, ProfileInput{
		Name:     "Alice",
		Email:    "new@example.com",
		Username: "alice",
	})
	require.NoError(t, err)

	assert.False(t, updated.Verified())
	assert.Equal(t, 1, env.mailer.count())
	assert.Contains(t, env.events.names, events.AuthProfileUpdated)
}

func TestUpdatePasswordChecksCurrentPassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.addUser(t, "alice", true)

	err := env.auth.UpdatePassword(ctx, user, "wrong", "newpassword")
	requireFieldError(t, err, "old_password")

	require.NoError(t, env.auth.UpdatePassword(ctx, user, "password", "newpassword"))
	_, _, err = env.auth.Login(ctx, "alice", "newpassword")
	require.NoError(t, err)
}

func TestUpdatePhotoWithoutStorage(t *testing.T) {
	env := newTestEnv(t)
	user := env.addUser(t, "alice", true)

	_, err := env.auth.UpdatePhoto(context.Background(), user, nil, 0, "me.png", "image/png")
	assert.ErrorIs(t, err, ErrStorageUnavailable)
}

func TestPasswordHashesAreSalted(t *testing.T) {
	hasher := NewPasswordHasher(4)

	a, err := hasher.Hash("same")
	require.NoError(t, err)
	b, err := hasher.Hash("same")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.True(t, hasher.Verify(a, "same"))
	assert.True(t, hasher.Verify(b, "same"))
	assert.False(t, hasher.Verify(a, "other"))
}
