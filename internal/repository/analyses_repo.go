package repository

import (
	"context"

	"pneumodetect/internal/domain"
)

// AnalysisFilters narrows List. Zero values mean "no filter".
type AnalysisFilters struct {
	PatientID     int64
	ReviewerID    int64
	Status        domain.ReviewStatus // "" or "all" = any
	Result        domain.ModelResult
	PatientSearch string // substring match on patient username
}

// ReviewUpdate is everything one review transition writes: the status
// change itself, the history row, and the patient notification. The
// implementation must apply all of it atomically, and must refuse the
// update when the analysis is no longer pending (ErrNotPending).
type ReviewUpdate struct {
	AnalysisID   int64
	ReviewerID   int64
	Notes        string
	NewStatus    domain.ReviewStatus
	ChangeReason string
	NotifType    string
	NotifMessage string
}

// ReviewerStats aggregates one reviewer's activity for the doctor
// dashboard.
type ReviewerStats struct {
	TotalReviewed  int `json:"total_reviewed"`
	Reviewed       int `json:"reviewed"`
	Rejected       int `json:"rejected"`
	PneumoniaCases int `json:"pneumonia_cases"`
}

// AnalysesRepository is the analysis record store. Review-state writes go
// exclusively through SubmitReview; Create always stores status pending.
type AnalysesRepository interface {
	Create(ctx context.Context, a *domain.AnalysisResult) (int64, error)
	Get(ctx context.Context, analysisID int64) (*domain.AnalysisResult, error)
	// List returns a created_at-descending page plus the unpaged total.
	List(ctx context.Context, filters AnalysisFilters, page, size int) ([]*domain.AnalysisResult, int, error)
	SubmitReview(ctx context.Context, upd ReviewUpdate) error
	// Delete removes the analysis and cascades to its history rows and
	// notifications.
	Delete(ctx context.Context, analysisID int64) error
	History(ctx context.Context, analysisID int64) ([]*domain.AnalysisHistory, error)
	CountByStatus(ctx context.Context) (map[domain.ReviewStatus]int, error)
	CountByResult(ctx context.Context) (map[domain.ModelResult]int, error)
	ReviewerStats(ctx context.Context, reviewerID int64) (ReviewerStats, error)
}
