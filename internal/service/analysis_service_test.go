package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"pneumodetect/internal/apperr"
	"pneumodetect/internal/domain"
	"pneumodetect/internal/gateway"
	"pneumodetect/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClassifier returns a canned classification or error.
type fakeClassifier struct {
	cls *gateway.Classification
	err error
}

func (f *fakeClassifier) Classify(ctx context.Context, filename string, image []byte) (*gateway.Classification, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.cls, nil
}

// fakeObjects keeps stored objects in a map.
type fakeObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	nextID  int
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: make(map[string][]byte)}
}

func (f *fakeObjects) Save(ctx context.Context, folder, ext string, data []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	ref := fmt.Sprintf("%s/obj%d.%s", folder, f.nextID, ext)
	f.objects[ref] = data
	return ref, nil
}

func (f *fakeObjects) Open(ctx context.Context, ref string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[ref]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return data, nil
}

func (f *fakeObjects) Delete(ctx context.Context, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, ref)
	return nil
}

func (f *fakeObjects) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects)
}

func pneumoniaClassifier() *fakeClassifier {
	return &fakeClassifier{cls: &gateway.Classification{
		Label:       domain.ResultPneumonia,
		Confidence:  0.93,
		Explanation: "Opacity in the right lower lobe.",
		Saliency:    []byte("fake-saliency-jpeg"),
	}}
}

func newAnalysisService(e *testEnv, classifier gateway.Classifier, objects storage.ObjectStore) AnalysisService {
	return NewAnalysisService(e.analyses, classifier, objects, e.audit, e.cfg, e.logger)
}

func upload() UploadedImage {
	return UploadedImage{Filename: "xray.jpg", Data: []byte("fake-jpeg-bytes")}
}

func TestAnalyzeEphemeral(t *testing.T) {
	e := newTestEnv()
	svc := newAnalysisService(e, pneumoniaClassifier(), newFakeObjects())

	outcome, err := svc.Analyze(context.Background(), upload())
	require.NoError(t, err)
	assert.Equal(t, domain.ResultPneumonia, outcome.Result)
	assert.InDelta(t, 0.93, outcome.Confidence, 1e-9)
	assert.NotEmpty(t, outcome.Saliency)

	// Nothing persisted.
	_, total, err := e.analyses.List(context.Background(), analysisFiltersAll(), 1, 10)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestAnalyzeAndSaveCreatesPendingRecord(t *testing.T) {
	e := newTestEnv()
	objects := newFakeObjects()
	svc := newAnalysisService(e, pneumoniaClassifier(), objects)
	patient := e.addUser(t, "patient1", domain.RolePatient, "secret1234")

	analysis, err := svc.AnalyzeAndSave(context.Background(), e.actor(patient), upload())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, analysis.ReviewStatus)
	assert.Equal(t, patient.ID, analysis.PatientID)
	assert.NotEmpty(t, analysis.ImageRef)
	assert.True(t, analysis.SaliencyRef.Valid)
	assert.Equal(t, 2, objects.count())

	stored, err := e.analyses.Get(context.Background(), analysis.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, stored.ReviewStatus)
	assert.False(t, stored.ReviewerID.Valid)
}

func TestAnalyzeAndSaveModelFailureStoresNothing(t *testing.T) {
	e := newTestEnv()
	objects := newFakeObjects()
	classifier := &fakeClassifier{err: errors.New("connection refused")}
	svc := newAnalysisService(e, classifier, objects)
	patient := e.addUser(t, "patient1", domain.RolePatient, "secret1234")

	_, err := svc.AnalyzeAndSave(context.Background(), e.actor(patient), upload())
	assert.True(t, apperr.Is(err, apperr.CodeModelError))

	_, total, err := e.analyses.List(context.Background(), analysisFiltersAll(), 1, 10)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Zero(t, objects.count())
}

func TestUploadValidation(t *testing.T) {
	e := newTestEnv()
	svc := newAnalysisService(e, pneumoniaClassifier(), newFakeObjects())
	ctx := context.Background()

	_, err := svc.Analyze(ctx, UploadedImage{Filename: "xray.jpg", Data: nil})
	assert.True(t, apperr.Is(err, apperr.CodeValidation))

	_, err = svc.Analyze(ctx, UploadedImage{Filename: "report.pdf", Data: []byte("x")})
	assert.True(t, apperr.Is(err, apperr.CodeValidation))

	big := make([]byte, e.cfg.Upload.MaxBytes+1)
	_, err = svc.Analyze(ctx, UploadedImage{Filename: "xray.jpg", Data: big})
	assert.True(t, apperr.Is(err, apperr.CodeValidation))
}

func TestGetEnforcesOwnership(t *testing.T) {
	e := newTestEnv()
	svc := newAnalysisService(e, pneumoniaClassifier(), newFakeObjects())
	owner := e.addUser(t, "patient1", domain.RolePatient, "secret1234")
	other := e.addUser(t, "patient2", domain.RolePatient, "secret1234")
	doctor := e.addUser(t, "doctor1", domain.RoleDoctor, "secret1234")
	analysis := e.addPendingAnalysis(t, owner.ID)
	ctx := context.Background()

	_, err := svc.Get(ctx, e.actor(owner), analysis.ID, domain.ClientInfo{})
	require.NoError(t, err)

	_, err = svc.Get(ctx, e.actor(doctor), analysis.ID, domain.ClientInfo{})
	require.NoError(t, err)

	_, err = svc.Get(ctx, e.actor(other), analysis.ID, domain.ClientInfo{})
	assert.True(t, apperr.Is(err, apperr.CodeForbidden))
	assert.Len(t, e.auditEvents(t, domain.AuditAccessDenied), 1)
}

func TestListMineEmptyFirstPage(t *testing.T) {
	e := newTestEnv()
	svc := newAnalysisService(e, pneumoniaClassifier(), newFakeObjects())
	patient := e.addUser(t, "patient1", domain.RolePatient, "secret1234")

	items, page, err := svc.ListMine(context.Background(), e.actor(patient), 1, 0)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, 0, page.Total)
	assert.Equal(t, 1, page.Pages)
	assert.Equal(t, e.cfg.Page.PerPage, page.PerPage)
}

func TestListMineSeesOnlyOwnRecords(t *testing.T) {
	e := newTestEnv()
	svc := newAnalysisService(e, pneumoniaClassifier(), newFakeObjects())
	p1 := e.addUser(t, "patient1", domain.RolePatient, "secret1234")
	p2 := e.addUser(t, "patient2", domain.RolePatient, "secret1234")
	e.addPendingAnalysis(t, p1.ID)
	e.addPendingAnalysis(t, p1.ID)
	e.addPendingAnalysis(t, p2.ID)

	items, page, err := svc.ListMine(context.Background(), e.actor(p1), 1, 50)
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Equal(t, 2, page.Total)
	for _, a := range items {
		assert.Equal(t, p1.ID, a.PatientID)
	}
}

func TestListForReviewRequiresReviewerRole(t *testing.T) {
	e := newTestEnv()
	svc := newAnalysisService(e, pneumoniaClassifier(), newFakeObjects())
	patient := e.addUser(t, "patient1", domain.RolePatient, "secret1234")

	_, _, err := svc.ListForReview(context.Background(), e.actor(patient), analysisFiltersAll(), 1, 10, domain.ClientInfo{})
	assert.True(t, apperr.Is(err, apperr.CodeForbidden))
}

func TestDeleteOwnershipAndCascade(t *testing.T) {
	e := newTestEnv()
	objects := newFakeObjects()
	svc := newAnalysisService(e, pneumoniaClassifier(), objects)
	reviews := NewReviewService(e.analyses, e.audit, e.cfg, e.logger)

	owner := e.addUser(t, "patient1", domain.RolePatient, "secret1234")
	other := e.addUser(t, "patient2", domain.RolePatient, "secret1234")
	doctor := e.addUser(t, "doctor1", domain.RoleDoctor, "secret1234")
	admin := e.addUser(t, "admin1", domain.RoleAdmin, "secret1234")
	ctx := context.Background()

	analysis, err := svc.AnalyzeAndSave(ctx, e.actor(owner), upload())
	require.NoError(t, err)

	_, err = reviews.SubmitReview(ctx, e.actor(doctor), ReviewRequest{
		AnalysisID: analysis.ID,
		Decision:   domain.DecisionApprove,
		Notes:      "Confirmed, clear consolidation.",
	})
	require.NoError(t, err)

	// Another patient may not delete it; a doctor may not either.
	err = svc.Delete(ctx, e.actor(other), analysis.ID, domain.ClientInfo{})
	assert.True(t, apperr.Is(err, apperr.CodeForbidden))
	err = svc.Delete(ctx, e.actor(doctor), analysis.ID, domain.ClientInfo{})
	assert.True(t, apperr.Is(err, apperr.CodeForbidden))

	// The admin can. History, notifications, and objects go with it.
	require.NoError(t, svc.Delete(ctx, e.actor(admin), analysis.ID, domain.ClientInfo{}))

	_, err = e.analyses.Get(ctx, analysis.ID)
	assert.Error(t, err)
	notifs, _, err := e.notifs.ListForUser(ctx, owner.ID, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, notifs)
	assert.Zero(t, objects.count())
	assert.Len(t, e.auditEvents(t, domain.AuditAnalysisDeleted), 1)
}

func TestOpenImage(t *testing.T) {
	e := newTestEnv()
	objects := newFakeObjects()
	svc := newAnalysisService(e, pneumoniaClassifier(), objects)
	patient := e.addUser(t, "patient1", domain.RolePatient, "secret1234")

	analysis, err := svc.AnalyzeAndSave(context.Background(), e.actor(patient), upload())
	require.NoError(t, err)

	data, contentType, err := svc.OpenImage(context.Background(), e.actor(patient), analysis.ImageRef)
	require.NoError(t, err)
	assert.Equal(t, []byte("fake-jpeg-bytes"), data)
	assert.Equal(t, "image/jpeg", contentType)

	_, _, err = svc.OpenImage(context.Background(), e.actor(patient), "originals/missing.jpg")
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))
}
