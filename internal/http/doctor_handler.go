package httpapi

import (
	"net/http"

	"pneumodetect/internal/apperr"
	"pneumodetect/internal/domain"
	"pneumodetect/internal/repository"
	"pneumodetect/internal/service"

	"go.uber.org/zap"
)

// DoctorHandler serves the reviewer work queue and review submission.
type DoctorHandler struct {
	analysisService service.AnalysisService
	reviewService   service.ReviewService
	logger          *zap.Logger
}

func NewDoctorHandler(analysisService service.AnalysisService, reviewService service.ReviewService, logger *zap.Logger) *DoctorHandler {
	return &DoctorHandler{analysisService: analysisService, reviewService: reviewService, logger: logger}
}

// Pending lists analyses still waiting for a review.
func (h *DoctorHandler) Pending(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r)
	q := r.URL.Query()
	filters := repository.AnalysisFilters{Status: domain.StatusPending}

	items, page, err := h.analysisService.ListForReview(r.Context(), actor, filters,
		parseInt(q.Get("page"), 1), parseInt(q.Get("per_page"), 0), clientInfo(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok("pending analyses", listData{Items: newAnalysisViews(items), Page: page}))
}

// Analyses lists all analyses with optional status/result/patient filters.
func (h *DoctorHandler) Analyses(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r)
	q := r.URL.Query()
	filters, err := analysisFiltersFromQuery(q.Get("status"), q.Get("result"), q.Get("patient"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	items, page, err := h.analysisService.ListForReview(r.Context(), actor, filters,
		parseInt(q.Get("page"), 1), parseInt(q.Get("per_page"), 0), clientInfo(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok("analyses", listData{Items: newAnalysisViews(items), Page: page}))
}

// Review submits a decision on one pending analysis. The body carries
// the target status (reviewed or rejected) plus the reviewer notes.
func (h *DoctorHandler) Review(w http.ResponseWriter, r *http.Request, analysisID int64) {
	actor, _ := actorFrom(r)
	var body struct {
		Status string `json:"status"`
		Notes  string `json:"notes"`
	}
	if err := readBodyJSON(r, 1<<20, &body); err != nil {
		writeError(w, h.logger, apperr.Validation("invalid JSON body"))
		return
	}

	var decision domain.ReviewDecision
	switch domain.ReviewStatus(body.Status) {
	case domain.StatusReviewed:
		decision = domain.DecisionApprove
	case domain.StatusRejected:
		decision = domain.DecisionReject
	default:
		writeError(w, h.logger, apperr.Validation("status must be reviewed or rejected"))
		return
	}

	analysis, err := h.reviewService.SubmitReview(r.Context(), actor, service.ReviewRequest{
		AnalysisID: analysisID,
		Decision:   decision,
		Notes:      body.Notes,
		Client:     clientInfo(r),
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok("review submitted", map[string]any{"analysis": newAnalysisView(analysis)}))
}

// Stats returns the reviewer dashboard counters.
func (h *DoctorHandler) Stats(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r)
	stats, err := h.reviewService.DoctorStats(r.Context(), actor, clientInfo(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok("stats", stats))
}
