package service

import (
	"context"
	"testing"
	"time"

	"pneumodetect/internal/apperr"
	"pneumodetect/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthService(e *testEnv) (AuthService, *SessionManager) {
	sessions := NewSessionManager(e.kv, time.Hour)
	return NewAuthService(e.users, sessions, e.kv, e.audit, e.cfg, e.logger), sessions
}

func TestRegisterAndLogin(t *testing.T) {
	e := newTestEnv()
	svc, sessions := newAuthService(e)
	ctx := context.Background()

	user, err := svc.Register(ctx, RegisterRequest{
		Username: "alice",
		Email:    "Alice@Example.com",
		Password: "hunter2hunter2",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RolePatient, user.Role)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.True(t, user.IsActive)
	assert.Len(t, e.auditEvents(t, domain.AuditRegister), 1)

	resp, err := svc.Login(ctx, LoginRequest{Username: "alice", Password: "hunter2hunter2"})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Token)

	actor, err := sessions.Get(ctx, resp.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, actor.UserID)
	assert.Equal(t, domain.RolePatient, actor.Role)
	assert.Len(t, e.auditEvents(t, domain.AuditLoginSuccess), 1)
}

func TestRegisterValidation(t *testing.T) {
	e := newTestEnv()
	svc, _ := newAuthService(e)
	ctx := context.Background()

	cases := []RegisterRequest{
		{Username: "ab", Email: "a@b.com", Password: "hunter2hunter2"},
		{Username: "has space", Email: "a@b.com", Password: "hunter2hunter2"},
		{Username: "alice", Email: "not-an-email", Password: "hunter2hunter2"},
		{Username: "alice", Email: "a@b.com", Password: "short1"},
		{Username: "alice", Email: "a@b.com", Password: "nodigitshere"},
		{Username: "alice", Email: "a@b.com", Password: "12345678901"},
	}
	for _, req := range cases {
		_, err := svc.Register(ctx, req)
		assert.True(t, apperr.Is(err, apperr.CodeValidation), "register %+v should fail validation", req)
	}
}

func TestRegisterDuplicateUsername(t *testing.T) {
	e := newTestEnv()
	svc, _ := newAuthService(e)
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterRequest{Username: "alice", Email: "a@b.com", Password: "hunter2hunter2"})
	require.NoError(t, err)

	_, err = svc.Register(ctx, RegisterRequest{Username: "alice", Email: "other@b.com", Password: "hunter2hunter2"})
	assert.True(t, apperr.Is(err, apperr.CodeValidation))
}

func TestLoginUnknownUserAndWrongPassword(t *testing.T) {
	e := newTestEnv()
	svc, _ := newAuthService(e)
	e.addUser(t, "bob", domain.RolePatient, "correct-horse-1")
	ctx := context.Background()

	// Unknown account and wrong password produce the same answer.
	_, err := svc.Login(ctx, LoginRequest{Username: "nobody", Password: "whatever123"})
	assert.True(t, apperr.Is(err, apperr.CodeUnauthorized))

	_, err = svc.Login(ctx, LoginRequest{Username: "bob", Password: "wrong-password-1"})
	assert.True(t, apperr.Is(err, apperr.CodeUnauthorized))

	assert.Len(t, e.auditEvents(t, domain.AuditLoginFailed), 2)
}

func TestLoginLockoutAfterRepeatedFailures(t *testing.T) {
	e := newTestEnv()
	svc, _ := newAuthService(e)
	e.addUser(t, "bob", domain.RolePatient, "correct-horse-1")
	ctx := context.Background()

	for i := 0; i < e.cfg.Login.MaxAttempts; i++ {
		_, err := svc.Login(ctx, LoginRequest{Username: "bob", Password: "wrong-password-1"})
		assert.True(t, apperr.Is(err, apperr.CodeUnauthorized))
	}

	// The window is full: even the correct password is refused now.
	_, err := svc.Login(ctx, LoginRequest{Username: "bob", Password: "correct-horse-1"})
	assert.True(t, apperr.Is(err, apperr.CodeRateLimited))
	assert.NotEmpty(t, e.auditEvents(t, domain.AuditLoginLocked))
}

func TestLoginSuccessResetsFailureCounter(t *testing.T) {
	e := newTestEnv()
	svc, _ := newAuthService(e)
	e.addUser(t, "bob", domain.RolePatient, "correct-horse-1")
	ctx := context.Background()

	for i := 0; i < e.cfg.Login.MaxAttempts-1; i++ {
		_, err := svc.Login(ctx, LoginRequest{Username: "bob", Password: "wrong-password-1"})
		assert.True(t, apperr.Is(err, apperr.CodeUnauthorized))
	}

	_, err := svc.Login(ctx, LoginRequest{Username: "bob", Password: "correct-horse-1"})
	require.NoError(t, err)

	// Counter is cleared: failures start a fresh window.
	_, err = svc.Login(ctx, LoginRequest{Username: "bob", Password: "wrong-password-1"})
	assert.True(t, apperr.Is(err, apperr.CodeUnauthorized))
}

func TestLoginDeactivatedAccount(t *testing.T) {
	e := newTestEnv()
	svc, _ := newAuthService(e)
	user := e.addUser(t, "bob", domain.RolePatient, "correct-horse-1")
	require.NoError(t, e.users.SetActive(context.Background(), user.ID, false))

	_, err := svc.Login(context.Background(), LoginRequest{Username: "bob", Password: "correct-horse-1"})
	assert.True(t, apperr.Is(err, apperr.CodeForbidden))
}

func TestLogoutDestroysSession(t *testing.T) {
	e := newTestEnv()
	svc, sessions := newAuthService(e)
	e.addUser(t, "bob", domain.RolePatient, "correct-horse-1")
	ctx := context.Background()

	resp, err := svc.Login(ctx, LoginRequest{Username: "bob", Password: "correct-horse-1"})
	require.NoError(t, err)

	actor, err := sessions.Get(ctx, resp.Token)
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, *actor, resp.Token, domain.ClientInfo{}))

	_, err = sessions.Get(ctx, resp.Token)
	assert.Error(t, err)
	assert.Len(t, e.auditEvents(t, domain.AuditLogout), 1)
}

func TestChangePassword(t *testing.T) {
	e := newTestEnv()
	svc, _ := newAuthService(e)
	user := e.addUser(t, "bob", domain.RolePatient, "correct-horse-1")
	ctx := context.Background()
	actor := e.actor(user)

	err := svc.ChangePassword(ctx, actor, ChangePasswordRequest{
		CurrentPassword: "wrong-password-1",
		NewPassword:     "new-password-99",
	})
	assert.True(t, apperr.Is(err, apperr.CodeUnauthorized))

	err = svc.ChangePassword(ctx, actor, ChangePasswordRequest{
		CurrentPassword: "correct-horse-1",
		NewPassword:     "new-password-99",
	})
	require.NoError(t, err)

	_, err = svc.Login(ctx, LoginRequest{Username: "bob", Password: "new-password-99"})
	require.NoError(t, err)
	assert.Len(t, e.auditEvents(t, domain.AuditPasswordChanged), 1)
}
