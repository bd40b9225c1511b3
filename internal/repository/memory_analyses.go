package repository

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"
	"time"

	"pneumodetect/internal/domain"

	"github.com/google/uuid"
)

// MemoryAnalysesRepository is the in-memory AnalysesRepository. The whole
// review transition runs under one mutex, which gives the same
// check-and-set guarantee the Postgres conditional UPDATE provides.
type MemoryAnalysesRepository struct {
	mu      sync.RWMutex
	nextID  int64
	items   map[int64]*domain.AnalysisResult
	history map[int64][]*domain.AnalysisHistory
	nextHID int64

	users  *MemoryUsersRepository
	notifs *MemoryNotificationsRepository
}

func NewMemoryAnalysesRepository(users *MemoryUsersRepository, notifs *MemoryNotificationsRepository) *MemoryAnalysesRepository {
	return &MemoryAnalysesRepository{
		nextID:  1,
		nextHID: 1,
		items:   make(map[int64]*domain.AnalysisResult),
		history: make(map[int64][]*domain.AnalysisHistory),
		users:   users,
		notifs:  notifs,
	}
}

var _ AnalysesRepository = (*MemoryAnalysesRepository)(nil)

func (r *MemoryAnalysesRepository) username(userID int64) string {
	if r.users == nil {
		return ""
	}
	u, err := r.users.GetUser(context.Background(), userID)
	if err != nil {
		return ""
	}
	return u.Username
}

func (r *MemoryAnalysesRepository) Create(ctx context.Context, a *domain.AnalysisResult) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a.ID = r.nextID
	r.nextID++
	now := time.Now()
	a.CreatedAt = now
	a.UpdatedAt = now
	a.ReviewStatus = domain.StatusPending
	copied := *a
	r.items[a.ID] = &copied
	return a.ID, nil
}

func (r *MemoryAnalysesRepository) Get(ctx context.Context, analysisID int64) (*domain.AnalysisResult, error) {
	r.mu.RLock()
	a, ok := r.items[analysisID]
	if !ok {
		r.mu.RUnlock()
		return nil, ErrNotFound
	}
	copied := *a
	r.mu.RUnlock()

	copied.PatientUsername = r.username(copied.PatientID)
	if copied.ReviewerID.Valid {
		copied.ReviewerUsername = r.username(copied.ReviewerID.Int64)
	}
	return &copied, nil
}

func (r *MemoryAnalysesRepository) List(ctx context.Context, filters AnalysisFilters, page, size int) ([]*domain.AnalysisResult, int, error) {
	r.mu.RLock()
	var matched []*domain.AnalysisResult
	for _, a := range r.items {
		if filters.PatientID != 0 && a.PatientID != filters.PatientID {
			continue
		}
		if filters.ReviewerID != 0 && (!a.ReviewerID.Valid || a.ReviewerID.Int64 != filters.ReviewerID) {
			continue
		}
		if filters.Status != "" && filters.Status != "all" && a.ReviewStatus != filters.Status {
			continue
		}
		if filters.Result != "" && a.ModelResult != filters.Result {
			continue
		}
		copied := *a
		matched = append(matched, &copied)
	}
	r.mu.RUnlock()

	for _, a := range matched {
		a.PatientUsername = r.username(a.PatientID)
		if a.ReviewerID.Valid {
			a.ReviewerUsername = r.username(a.ReviewerID.Int64)
		}
	}
	if filters.PatientSearch != "" {
		s := strings.ToLower(filters.PatientSearch)
		var filtered []*domain.AnalysisResult
		for _, a := range matched {
			if strings.Contains(strings.ToLower(a.PatientUsername), s) {
				filtered = append(filtered, a)
			}
		}
		matched = filtered
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	total := len(matched)
	return pageSlice(matched, page, size), total, nil
}

func (r *MemoryAnalysesRepository) SubmitReview(ctx context.Context, upd ReviewUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.items[upd.AnalysisID]
	if !ok {
		return ErrNotFound
	}
	if a.ReviewStatus != domain.StatusPending {
		return ErrNotPending
	}

	prev := a.ReviewStatus
	a.ReviewStatus = upd.NewStatus
	a.ReviewerID = sql.NullInt64{Int64: upd.ReviewerID, Valid: true}
	a.DoctorNotes = sql.NullString{String: upd.Notes, Valid: true}
	a.UpdatedAt = time.Now()

	h := &domain.AnalysisHistory{
		ID:             r.nextHID,
		AnalysisID:     upd.AnalysisID,
		PreviousStatus: prev,
		NewStatus:      upd.NewStatus,
		ChangedByID:    upd.ReviewerID,
		ChangeReason:   upd.ChangeReason,
		ChangedAt:      time.Now(),
	}
	r.nextHID++
	r.history[upd.AnalysisID] = append(r.history[upd.AnalysisID], h)

	if r.notifs != nil {
		r.notifs.append(&domain.Notification{
			ID:                uuid.NewString(),
			UserID:            a.PatientID,
			Type:              upd.NotifType,
			Message:           upd.NotifMessage,
			RelatedAnalysisID: sql.NullInt64{Int64: upd.AnalysisID, Valid: true},
			CreatedAt:         time.Now(),
		})
	}
	return nil
}

func (r *MemoryAnalysesRepository) Delete(ctx context.Context, analysisID int64) error {
	r.mu.Lock()
	if _, ok := r.items[analysisID]; !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	delete(r.items, analysisID)
	delete(r.history, analysisID)
	r.mu.Unlock()

	if r.notifs != nil {
		r.notifs.removeForAnalysis(analysisID)
	}
	return nil
}

func (r *MemoryAnalysesRepository) History(ctx context.Context, analysisID int64) ([]*domain.AnalysisHistory, error) {
	r.mu.RLock()
	rows := r.history[analysisID]
	out := make([]*domain.AnalysisHistory, 0, len(rows))
	for _, h := range rows {
		copied := *h
		out = append(out, &copied)
	}
	r.mu.RUnlock()

	for _, h := range out {
		h.ChangedByUsername = r.username(h.ChangedByID)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ChangedAt.After(out[j].ChangedAt)
	})
	return out, nil
}

func (r *MemoryAnalysesRepository) CountByStatus(ctx context.Context) (map[domain.ReviewStatus]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[domain.ReviewStatus]int)
	for _, a := range r.items {
		counts[a.ReviewStatus]++
	}
	return counts, nil
}

func (r *MemoryAnalysesRepository) CountByResult(ctx context.Context) (map[domain.ModelResult]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[domain.ModelResult]int)
	for _, a := range r.items {
		counts[a.ModelResult]++
	}
	return counts, nil
}

func (r *MemoryAnalysesRepository) ReviewerStats(ctx context.Context, reviewerID int64) (ReviewerStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var s ReviewerStats
	for _, a := range r.items {
		if !a.ReviewerID.Valid || a.ReviewerID.Int64 != reviewerID {
			continue
		}
		s.TotalReviewed++
		switch a.ReviewStatus {
		case domain.StatusReviewed:
			s.Reviewed++
		case domain.StatusRejected:
			s.Rejected++
		}
		if a.ModelResult == domain.ResultPneumonia {
			s.PneumoniaCases++
		}
	}
	return s, nil
}
