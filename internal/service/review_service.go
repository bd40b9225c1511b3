package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"pneumodetect/internal/apperr"
	"pneumodetect/internal/config"
	"pneumodetect/internal/domain"
	"pneumodetect/internal/repository"

	"go.uber.org/zap"
)

// ReviewService drives the pending -> reviewed/rejected workflow.
type ReviewService interface {
	SubmitReview(ctx context.Context, actor Actor, req ReviewRequest) (*domain.AnalysisResult, error)
	DoctorStats(ctx context.Context, actor Actor, client domain.ClientInfo) (*DoctorStatsResponse, error)
}

type reviewService struct {
	analyses repository.AnalysesRepository
	audit    *auditor
	cfg      *config.Config
	logger   *zap.Logger
}

func NewReviewService(analyses repository.AnalysesRepository, audit repository.AuditRepository, cfg *config.Config, logger *zap.Logger) ReviewService {
	return &reviewService{
		analyses: analyses,
		audit:    newAuditor(audit, logger),
		cfg:      cfg,
		logger:   logger,
	}
}

type ReviewRequest struct {
	AnalysisID int64
	Decision   domain.ReviewDecision
	Notes      string
	Client     domain.ClientInfo
}

type DoctorStatsResponse struct {
	Pending int                      `json:"pending"`
	Stats   repository.ReviewerStats `json:"stats"`
}

func (s *reviewService) SubmitReview(ctx context.Context, actor Actor, req ReviewRequest) (*domain.AnalysisResult, error) {
	if !actor.Role.CanReview() {
		s.audit.accessDenied(ctx, actor, req.Client, map[string]any{
			"action":      "submit_review",
			"analysis_id": req.AnalysisID,
		})
		return nil, apperr.Forbidden("reviewer role required")
	}

	newStatus, ok := req.Decision.Status()
	if !ok {
		return nil, apperr.Validation("decision must be %q or %q", domain.DecisionApprove, domain.DecisionReject)
	}

	notes := strings.TrimSpace(req.Notes)
	if n := utf8.RuneCountInString(notes); n < s.cfg.Review.NotesMin || n > s.cfg.Review.NotesMax {
		return nil, apperr.Validation("notes must be %d-%d characters", s.cfg.Review.NotesMin, s.cfg.Review.NotesMax)
	}

	upd := repository.ReviewUpdate{
		AnalysisID:   req.AnalysisID,
		ReviewerID:   actor.UserID,
		Notes:        notes,
		NewStatus:    newStatus,
		ChangeReason: truncateRunes(notes, 100),
	}
	switch newStatus {
	case domain.StatusReviewed:
		upd.NotifType = domain.NotificationAnalysisReviewed
		upd.NotifMessage = fmt.Sprintf("Your analysis #%d has been reviewed and confirmed by %s.", req.AnalysisID, actor.Username)
	case domain.StatusRejected:
		upd.NotifType = domain.NotificationAnalysisRejected
		upd.NotifMessage = fmt.Sprintf("Your analysis #%d was rejected by %s. See the reviewer notes for details.", req.AnalysisID, actor.Username)
	}

	analysis, err := s.analyses.Get(ctx, req.AnalysisID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("analysis not found")
		}
		return nil, apperr.Internal(err)
	}

	if err := s.analyses.SubmitReview(ctx, upd); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, apperr.NotFound("analysis not found")
		case errors.Is(err, repository.ErrNotPending):
			return nil, apperr.InvalidState("analysis has already been reviewed")
		default:
			return nil, apperr.Internal(err)
		}
	}

	s.audit.log(ctx, domain.AuditAnalysisReviewed, actor.UserID, map[string]any{
		"analysis_id": req.AnalysisID,
		"new_status":  string(newStatus),
	}, domain.SeverityInfo, req.Client)
	s.logger.Info("Analysis reviewed",
		zap.Int64("analysis_id", req.AnalysisID),
		zap.Int64("reviewer_id", actor.UserID),
		zap.String("new_status", string(newStatus)),
	)

	// The transition is committed at this point; the re-read only
	// refreshes joined fields. A failed re-read must not turn a
	// successful review into an error the client would retry.
	fresh, err := s.analyses.Get(ctx, req.AnalysisID)
	if err != nil {
		s.logger.Warn("Re-read after review failed, answering from committed state",
			zap.Int64("analysis_id", req.AnalysisID),
			zap.Error(err),
		)
		analysis.ReviewStatus = newStatus
		analysis.ReviewerID = nullInt64(actor.UserID)
		analysis.ReviewerUsername = actor.Username
		analysis.DoctorNotes = nullString(notes)
		return analysis, nil
	}
	return fresh, nil
}

func (s *reviewService) DoctorStats(ctx context.Context, actor Actor, client domain.ClientInfo) (*DoctorStatsResponse, error) {
	if !actor.Role.CanReview() {
		s.audit.accessDenied(ctx, actor, client, map[string]any{"action": "doctor_stats"})
		return nil, apperr.Forbidden("reviewer role required")
	}

	byStatus, err := s.analyses.CountByStatus(ctx)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	stats, err := s.analyses.ReviewerStats(ctx, actor.UserID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return &DoctorStatsResponse{
		Pending: byStatus[domain.StatusPending],
		Stats:   stats,
	}, nil
}

// truncateRunes clips s to at most n runes.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
