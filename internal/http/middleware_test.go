package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"pneumodetect/internal/apperr"
	"pneumodetect/internal/domain"
	"pneumodetect/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequireAuthRejectsAnonymous(t *testing.T) {
	e := newAPIEnv(t)

	rec := e.do(httptest.NewRequest(http.MethodGet, "/api/my/results", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	res := decodeResult(t, rec)
	assert.False(t, res.Success)
	assert.Equal(t, string(apperr.CodeUnauthorized), res.ErrorCode)
}

func TestStaleSessionCookieIsAnonymous(t *testing.T) {
	e := newAPIEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/my/results", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookie, Value: "expired-or-forged"})
	rec := e.do(req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCSRFDoubleSubmit(t *testing.T) {
	e := newAPIEnv(t)
	patient := e.addUser(t, "patient1", domain.RolePatient)
	token := e.token(t, patient)
	body := map[string]string{"current_password": "wrong-password", "new_password": "newsecret123"}

	// No CSRF header at all.
	req := httptest.NewRequest(http.MethodPost, "/api/auth/change-password", jsonBody(t, body))
	req.AddCookie(&http.Cookie{Name: sessionCookie, Value: token})
	req.AddCookie(&http.Cookie{Name: csrfCookie, Value: "csrf-test"})
	rec := e.do(req)
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, string(apperr.CodeForbidden), decodeResult(t, rec).ErrorCode)

	// Header present but not matching the cookie.
	req = httptest.NewRequest(http.MethodPost, "/api/auth/change-password", jsonBody(t, body))
	req.AddCookie(&http.Cookie{Name: sessionCookie, Value: token})
	req.AddCookie(&http.Cookie{Name: csrfCookie, Value: "csrf-test"})
	req.Header.Set(csrfHeader, "something-else")
	rec = e.do(req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Matching pair clears CSRF; the wrong current password then fails
	// deeper in the chain.
	rec = e.do(authedRequest(http.MethodPost, "/api/auth/change-password", token, jsonBody(t, body)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCSRFSkipsSafeMethods(t *testing.T) {
	e := newAPIEnv(t)
	patient := e.addUser(t, "patient1", domain.RolePatient)
	token := e.token(t, patient)

	req := httptest.NewRequest(http.MethodGet, "/api/my/results", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookie, Value: token})
	rec := e.do(req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRoleGuardRecordsAccessDenied(t *testing.T) {
	e := newAPIEnv(t)
	patient := e.addUser(t, "patient1", domain.RolePatient)
	token := e.token(t, patient)

	rec := e.do(authedRequest(http.MethodGet, "/api/admin/stats", token, nil))
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, string(apperr.CodeForbidden), decodeResult(t, rec).ErrorCode)

	entries, _, err := e.audit.List(context.Background(),
		repository.AuditFilters{EventType: domain.AuditAccessDenied}, 1, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, patient.ID, entries[0].ActorUserID.Int64)
	assert.Equal(t, domain.SeverityWarning, entries[0].Severity)
	assert.Equal(t, "/api/admin/stats", entries[0].Endpoint.String)
}

func TestDoctorRoutesAllowAdmin(t *testing.T) {
	e := newAPIEnv(t)
	admin := e.addUser(t, "admin1", domain.RoleAdmin)

	rec := e.do(authedRequest(http.MethodGet, "/api/doctor/pending", e.token(t, admin), nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	e := newAPIEnv(t)

	rec := e.do(httptest.NewRequest(http.MethodGet, "/api/auth/login", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
