package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"praivio-go/internal/model"
	"praivio-go/internal/repository"
	"praivio-go/pkg/token"
)

func createAccount(t *testing.T, f *fixture, username, password string, role model.Role) *model.User {
	t.Helper()
	u, err := NewUserRecord(username, username+"@klinik.example", password, role, "Klinikum")
	require.NoError(t, err)
	require.NoError(t, f.users.Create(u))
	return u
}

func newUserService(f *fixture) UserService {
	return NewUserService(f.users, repository.NewMemoryTokenBlacklist(), token.NewJWTManager("test-secret", 1, 7), f.audit)
}

func TestLoginAuthenticateLogout(t *testing.T) {
	f := newFixture(t)
	createAccount(t, f, "anna", "geheim123", model.RoleManager)
	svc := newUserService(f)
	ctx := context.Background()

	res, err := svc.Login(ctx, testMeta, "anna", "geheim123")
	require.NoError(t, err)
	assert.Equal(t, "bearer", res.TokenType)
	require.NotNil(t, res.User.LastLogin)

	id, err := svc.Authenticate(ctx, res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "anna", id.Username)
	assert.Equal(t, "Klinikum", id.Organization)
	assert.True(t, id.Can(model.CapManageUsers))
	assert.False(t, id.IsAdmin())

	require.NoError(t, svc.Logout(ctx, id, testMeta, res.AccessToken))
	_, err = svc.Authenticate(ctx, res.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	logins := f.auditEvents(t, model.AuditLogin)
	require.Len(t, logins, 1)
	assert.True(t, logins[0].Success)
	assert.Len(t, f.auditEvents(t, model.AuditLogout), 1)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	f := newFixture(t)
	createAccount(t, f, "anna", "geheim123", model.RoleUser)
	svc := newUserService(f)
	ctx := context.Background()

	_, err := svc.Login(ctx, testMeta, "anna", "falsch")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(ctx, testMeta, "niemand", "geheim123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	events := f.auditEvents(t, model.AuditLogin)
	require.Len(t, events, 2)
	for _, e := range events {
		assert.False(t, e.Success)
		assert.Contains(t, e.Details, "invalid_credentials")
	}
}

func TestInactiveUserCannotAuthenticate(t *testing.T) {
	f := newFixture(t)
	u := createAccount(t, f, "anna", "geheim123", model.RoleUser)
	svc := newUserService(f)
	ctx := context.Background()

	res, err := svc.Login(ctx, testMeta, "anna", "geheim123")
	require.NoError(t, err)

	u.IsActive = false
	require.NoError(t, f.users.Update(u))

	_, err = svc.Authenticate(ctx, res.AccessToken)
	assert.ErrorIs(t, err, ErrUserInactive)
	_, err = svc.Login(ctx, testMeta, "anna", "geheim123")
	assert.ErrorIs(t, err, ErrUserInactive)
}

func TestRefreshTokenIssuesNewPair(t *testing.T) {
	f := newFixture(t)
	createAccount(t, f, "anna", "geheim123", model.RoleUser)
	svc := newUserService(f)
	ctx := context.Background()

	res, err := svc.Login(ctx, testMeta, "anna", "geheim123")
	require.NoError(t, err)

	pair, err := svc.RefreshToken(ctx, res.RefreshToken)
	require.NoError(t, err)
	id, err := svc.Authenticate(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "anna", id.Username)

	_, err = svc.RefreshToken(ctx, "kein.gueltiger.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewUserRecordRejectsUnknownRole(t *testing.T) {
	_, err := NewUserRecord("x", "x@example.org", "pw", model.Role("superuser"), "")
	assert.ErrorIs(t, err, ErrInvalidRole)
}
