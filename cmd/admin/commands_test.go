package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"praivio-go/internal/model"
	"praivio-go/internal/repository"
	"praivio-go/internal/testutil"
	"praivio-go/pkg/hash"
)

func runCmd(t *testing.T, users repository.UserRepository, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(func(string) (repository.UserRepository, error) { return users, nil })
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCreateAdmin(t *testing.T) {
	users := repository.NewUserRepository(testutil.OpenDB(t))

	out, err := runCmd(t, users, "", "create-admin", "--username", "root", "--email", "root@example.org", "--password", "geheim123")
	require.NoError(t, err)
	assert.Contains(t, out, "root")

	u, err := users.FindByUsername("root")
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, u.Role)
	assert.Equal(t, "Demo Organisation", u.Organization)
	assert.True(t, u.IsActive)
	assert.True(t, hash.CheckPassword("geheim123", u.PasswordHash, u.PasswordSalt))

	_, err = runCmd(t, users, "", "create-admin", "--username", "root", "--email", "x@example.org", "--password", "geheim123")
	assert.ErrorContains(t, err, "已存在")
}

func TestCreateAdminPasswordFromStdin(t *testing.T) {
	users := repository.NewUserRepository(testutil.OpenDB(t))

	_, err := runCmd(t, users, "langespasswort\nlangespasswort\n", "create-admin", "--username", "ops", "--email", "ops@example.org", "--organization", "Klinik Nord")
	require.NoError(t, err)
	u, err := users.FindByUsername("ops")
	require.NoError(t, err)
	assert.Equal(t, "Klinik Nord", u.Organization)

	_, err = runCmd(t, users, "langespasswort\nanderes1234\n", "create-admin", "--username", "ops2", "--email", "ops2@example.org")
	assert.ErrorContains(t, err, "不一致")
}

func TestCreateAdminRejectsShortPassword(t *testing.T) {
	users := repository.NewUserRepository(testutil.OpenDB(t))

	_, err := runCmd(t, users, "", "create-admin", "--username", "root", "--email", "root@example.org", "--password", "kurz")
	assert.ErrorContains(t, err, "至少")
	all, err := users.FindAll()
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestResetPassword(t *testing.T) {
	db := testutil.OpenDB(t)
	users := repository.NewUserRepository(db)
	existing := testutil.CreateUser(t, db, "anna", model.RoleUser)
	existing.IsActive = false
	require.NoError(t, users.Update(existing))

	_, err := runCmd(t, users, "", "reset-password", "anna", "--password", "neuespasswort")
	require.NoError(t, err)

	u, err := users.FindByUsername("anna")
	require.NoError(t, err)
	assert.True(t, u.IsActive)
	assert.True(t, hash.CheckPassword("neuespasswort", u.PasswordHash, u.PasswordSalt))

	_, err = runCmd(t, users, "", "reset-password", "niemand", "--password", "neuespasswort")
	assert.ErrorContains(t, err, "不存在")
}

func TestListUsers(t *testing.T) {
	db := testutil.OpenDB(t)
	testutil.CreateUser(t, db, "anna", model.RoleUser)
	testutil.CreateUser(t, db, "bernd", model.RoleViewer)

	out, err := runCmd(t, repository.NewUserRepository(db), "", "list-users")
	require.NoError(t, err)
	assert.Contains(t, out, "USERNAME")
	assert.Contains(t, out, "anna")
	assert.Contains(t, out, "bernd")
	assert.Contains(t, out, "viewer")
}

func TestOpenFailureIsReported(t *testing.T) {
	cmd := newRootCmd(func(string) (repository.UserRepository, error) { return nil, errors.New("kaputt") })
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"list-users"})
	assert.ErrorContains(t, cmd.Execute(), "kaputt")
}
