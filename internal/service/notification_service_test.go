package service

import (
	"context"
	"testing"

	"pneumodetect/internal/apperr"
	"pneumodetect/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotificationListAndMarkRead(t *testing.T) {
	e := newTestEnv()
	reviews := NewReviewService(e.analyses, e.audit, e.cfg, e.logger)
	svc := NewNotificationService(e.notifs, e.audit, e.cfg, e.logger)

	patient := e.addUser(t, "patient1", domain.RolePatient, "secret1234")
	doctor := e.addUser(t, "doctor1", domain.RoleDoctor, "secret1234")
	analysis := e.addPendingAnalysis(t, patient.ID)
	ctx := context.Background()

	_, err := reviews.SubmitReview(ctx, e.actor(doctor), ReviewRequest{
		AnalysisID: analysis.ID,
		Decision:   domain.DecisionApprove,
		Notes:      "Agree with the classifier here.",
	})
	require.NoError(t, err)

	items, unread, page, err := svc.List(ctx, e.actor(patient), 1, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 1, unread)
	assert.Equal(t, 1, page.Total)
	assert.False(t, items[0].IsRead)

	require.NoError(t, svc.MarkRead(ctx, e.actor(patient), items[0].ID, domain.ClientInfo{}))

	items, unread, _, err = svc.List(ctx, e.actor(patient), 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, unread)
	assert.True(t, items[0].IsRead)
	assert.True(t, items[0].ReadAt.Valid)

	// Marking again is a no-op, not an error.
	require.NoError(t, svc.MarkRead(ctx, e.actor(patient), items[0].ID, domain.ClientInfo{}))
}

func TestMarkReadOnlyRecipient(t *testing.T) {
	e := newTestEnv()
	reviews := NewReviewService(e.analyses, e.audit, e.cfg, e.logger)
	svc := NewNotificationService(e.notifs, e.audit, e.cfg, e.logger)

	patient := e.addUser(t, "patient1", domain.RolePatient, "secret1234")
	intruder := e.addUser(t, "patient2", domain.RolePatient, "secret1234")
	doctor := e.addUser(t, "doctor1", domain.RoleDoctor, "secret1234")
	analysis := e.addPendingAnalysis(t, patient.ID)
	ctx := context.Background()

	_, err := reviews.SubmitReview(ctx, e.actor(doctor), ReviewRequest{
		AnalysisID: analysis.ID,
		Decision:   domain.DecisionReject,
		Notes:      "Too much noise in the image.",
	})
	require.NoError(t, err)

	items, _, _, err := svc.List(ctx, e.actor(patient), 1, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)

	err = svc.MarkRead(ctx, e.actor(intruder), items[0].ID, domain.ClientInfo{})
	assert.True(t, apperr.Is(err, apperr.CodeForbidden))
	assert.Len(t, e.auditEvents(t, domain.AuditAccessDenied), 1)

	err = svc.MarkRead(ctx, e.actor(patient), "00000000-0000-0000-0000-000000000000", domain.ClientInfo{})
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
}
