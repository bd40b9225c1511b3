package service

import (
	"context"
	"testing"

	"pneumodetect/internal/apperr"
	"pneumodetect/internal/domain"
	"pneumodetect/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAdminService(e *testEnv) AdminService {
	return NewAdminService(e.users, e.analyses, e.audit, e.cfg, e.logger)
}

func TestSystemStats(t *testing.T) {
	e := newTestEnv()
	svc := newAdminService(e)
	patient := e.addUser(t, "patient1", domain.RolePatient, "secret1234")
	e.addUser(t, "doctor1", domain.RoleDoctor, "secret1234")
	e.addUser(t, "admin1", domain.RoleAdmin, "secret1234")
	e.addPendingAnalysis(t, patient.ID)
	e.addPendingAnalysis(t, patient.ID)

	stats, err := svc.SystemStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalUsers)
	assert.Equal(t, 1, stats.UsersByRole[domain.RoleDoctor])
	assert.Equal(t, 2, stats.TotalAnalyses)
	assert.Equal(t, 2, stats.ByStatus[domain.StatusPending])
	assert.InDelta(t, 1.0, stats.PneumoniaRate, 1e-9)
}

func TestAdminCreateUserWithRole(t *testing.T) {
	e := newTestEnv()
	svc := newAdminService(e)
	admin := e.addUser(t, "admin1", domain.RoleAdmin, "secret1234")
	ctx := context.Background()

	doctor, err := svc.CreateUser(ctx, e.actor(admin), CreateUserRequest{
		Username: "drhouse",
		Email:    "house@example.com",
		Password: "vicodin4ever1",
		Role:     domain.RoleDoctor,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleDoctor, doctor.Role)
	assert.Len(t, e.auditEvents(t, domain.AuditUserCreated), 1)

	_, err = svc.CreateUser(ctx, e.actor(admin), CreateUserRequest{
		Username: "badrole",
		Email:    "bad@example.com",
		Password: "password1234",
		Role:     "superuser",
	})
	assert.True(t, apperr.Is(err, apperr.CodeValidation))
}

func TestSetUserStatus(t *testing.T) {
	e := newTestEnv()
	svc := newAdminService(e)
	admin := e.addUser(t, "admin1", domain.RoleAdmin, "secret1234")
	patient := e.addUser(t, "patient1", domain.RolePatient, "secret1234")
	ctx := context.Background()

	require.NoError(t, svc.SetUserStatus(ctx, e.actor(admin), patient.ID, false, domain.ClientInfo{}))
	got, err := e.users.GetUser(ctx, patient.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	// Admins cannot lock themselves out.
	err = svc.SetUserStatus(ctx, e.actor(admin), admin.ID, false, domain.ClientInfo{})
	assert.True(t, apperr.Is(err, apperr.CodeInvalidState))

	err = svc.SetUserStatus(ctx, e.actor(admin), 404, false, domain.ClientInfo{})
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
}

func TestListUsersFilters(t *testing.T) {
	e := newTestEnv()
	svc := newAdminService(e)
	e.addUser(t, "patient1", domain.RolePatient, "secret1234")
	e.addUser(t, "patient2", domain.RolePatient, "secret1234")
	e.addUser(t, "doctor1", domain.RoleDoctor, "secret1234")

	users, page, err := svc.ListUsers(context.Background(), repository.UserFilters{Role: domain.RolePatient}, 1, 10)
	require.NoError(t, err)
	assert.Len(t, users, 2)
	assert.Equal(t, 2, page.Total)

	users, _, err = svc.ListUsers(context.Background(), repository.UserFilters{Search: "doctor"}, 1, 10)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestAllAnalysesCollectsEveryPage(t *testing.T) {
	e := newTestEnv()
	svc := newAdminService(e)
	patient := e.addUser(t, "patient1", domain.RolePatient, "secret1234")
	for i := 0; i < 7; i++ {
		e.addPendingAnalysis(t, patient.ID)
	}

	all, err := svc.AllAnalyses(context.Background(), repository.AnalysisFilters{})
	require.NoError(t, err)
	assert.Len(t, all, 7)
}
