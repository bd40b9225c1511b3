package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"pneumodetect/internal/apperr"
	"pneumodetect/internal/config"
	"pneumodetect/internal/domain"
	"pneumodetect/internal/repository"
	"pneumodetect/internal/service"

	"go.uber.org/zap"
)

// AdminHandler serves the admin dashboard endpoints. The router mounts
// every route here behind the admin role guard.
type AdminHandler struct {
	adminService service.AdminService
	cfg          *config.Config
	logger       *zap.Logger
}

func NewAdminHandler(adminService service.AdminService, cfg *config.Config, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{adminService: adminService, cfg: cfg, logger: logger}
}

// Stats serves the aggregate dashboard. An empty section returns the
// whole payload; system, users, and analyses narrow it.
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request, section string) {
	stats, err := h.adminService.SystemStats(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	switch section {
	case "":
		writeJSON(w, http.StatusOK, Ok("system stats", stats))
	case "system":
		writeJSON(w, http.StatusOK, Ok("system stats", map[string]any{
			"total_users":    stats.TotalUsers,
			"total_analyses": stats.TotalAnalyses,
			"pneumonia_rate": stats.PneumoniaRate,
		}))
	case "users":
		writeJSON(w, http.StatusOK, Ok("user stats", map[string]any{
			"total":   stats.TotalUsers,
			"by_role": stats.UsersByRole,
		}))
	case "analyses":
		writeJSON(w, http.StatusOK, Ok("analysis stats", map[string]any{
			"total":          stats.TotalAnalyses,
			"by_status":      stats.ByStatus,
			"by_result":      stats.ByResult,
			"pneumonia_rate": stats.PneumoniaRate,
		}))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := repository.UserFilters{Search: q.Get("search")}
	if role := q.Get("role"); role != "" {
		filters.Role = domain.Role(role)
		if !filters.Role.Valid() {
			writeError(w, h.logger, apperr.Validation("unknown role %q", role))
			return
		}
	}

	users, page, err := h.adminService.ListUsers(r.Context(), filters,
		parseInt(q.Get("page"), 1), parseInt(q.Get("per_page"), 0))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	views := make([]userView, 0, len(users))
	for _, u := range users {
		views = append(views, newUserView(u))
	}
	writeJSON(w, http.StatusOK, Ok("users", listData{Items: views, Page: page}))
}

func (h *AdminHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r)
	var body struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}
	if err := readBodyJSON(r, 1<<20, &body); err != nil {
		writeError(w, h.logger, apperr.Validation("invalid JSON body"))
		return
	}

	user, err := h.adminService.CreateUser(r.Context(), actor, service.CreateUserRequest{
		Username: body.Username,
		Email:    body.Email,
		Password: body.Password,
		Role:     domain.Role(body.Role),
		Client:   clientInfo(r),
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, Ok("user created", map[string]any{"user": newUserView(user)}))
}

func (h *AdminHandler) SetUserStatus(w http.ResponseWriter, r *http.Request, userID int64) {
	actor, _ := actorFrom(r)
	var body struct {
		IsActive *bool `json:"is_active"`
	}
	if err := readBodyJSON(r, 1<<20, &body); err != nil || body.IsActive == nil {
		writeError(w, h.logger, apperr.Validation("is_active boolean required"))
		return
	}

	if err := h.adminService.SetUserStatus(r.Context(), actor, userID, *body.IsActive, clientInfo(r)); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok("user status updated", nil))
}

func (h *AdminHandler) ListAnalyses(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters, err := analysisFiltersFromQuery(q.Get("status"), q.Get("result"), q.Get("patient"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	items, page, err := h.adminService.ListAnalyses(r.Context(), filters,
		parseInt(q.Get("page"), 1), parseInt(q.Get("per_page"), 0))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok("analyses", listData{Items: newAnalysisViews(items), Page: page}))
}

func (h *AdminHandler) AuditLog(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := repository.AuditFilters{
		EventType: q.Get("event_type"),
		Severity:  q.Get("severity"),
	}
	if actorID := q.Get("actor_id"); actorID != "" {
		id, err := parseInt64(actorID)
		if err != nil {
			writeError(w, h.logger, apperr.Validation("actor_id must be an integer"))
			return
		}
		filters.ActorUserID = id
	}

	entries, page, err := h.adminService.AuditLog(r.Context(), filters,
		parseInt(q.Get("page"), 1), parseInt(q.Get("per_page"), 0))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	views := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		view := map[string]any{
			"id":         e.ID,
			"event_type": e.EventType,
			"severity":   e.Severity,
			"created_at": e.CreatedAt,
		}
		if e.ActorUserID.Valid {
			view["actor_id"] = e.ActorUserID.Int64
		}
		if e.ActorUsername != "" {
			view["actor"] = e.ActorUsername
		}
		if e.Details.Valid {
			view["details"] = e.Details.String
		}
		if e.ClientIP.Valid {
			view["client_ip"] = e.ClientIP.String
		}
		if e.Endpoint.Valid {
			view["endpoint"] = e.Endpoint.String
		}
		if e.Method.Valid {
			view["method"] = e.Method.String
		}
		views = append(views, view)
	}
	writeJSON(w, http.StatusOK, Ok("audit log", listData{Items: views, Page: page}))
}

// ExportAnalyses downloads every analysis matching the filters as an
// Excel workbook.
func (h *AdminHandler) ExportAnalyses(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters, err := analysisFiltersFromQuery(q.Get("status"), q.Get("result"), q.Get("patient"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	items, err := h.adminService.AllAnalyses(r.Context(), filters)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	payload, err := GenerateAnalysesExport(items)
	if err != nil {
		writeError(w, h.logger, apperr.Internal(err))
		return
	}

	filename := fmt.Sprintf("analyses_%s.xlsx", time.Now().UTC().Format("20060102_150405"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	if _, err := w.Write(payload); err != nil {
		h.logger.Warn("Failed to stream export", zap.Error(err))
	}
}

// Settings echoes the non-secret runtime configuration.
func (h *AdminHandler) Settings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Ok("settings", map[string]any{
		"upload_max_bytes":    h.cfg.Upload.MaxBytes,
		"allowed_extensions":  h.cfg.Upload.AllowedExts,
		"session_ttl_seconds": int(h.cfg.Session.TTL.Seconds()),
		"login_max_attempts":  h.cfg.Login.MaxAttempts,
		"review_notes_min":    h.cfg.Review.NotesMin,
		"review_notes_max":    h.cfg.Review.NotesMax,
		"model_gateway_url":   h.cfg.Gateway.BaseURL,
		"storage_backend":     storageBackend(h.cfg),
	}))
}

func storageBackend(cfg *config.Config) string {
	if cfg.Storage.S3Bucket != "" {
		return "s3"
	}
	return "local"
}

func analysisFiltersFromQuery(status, result, patient string) (repository.AnalysisFilters, error) {
	filters := repository.AnalysisFilters{PatientSearch: patient}
	if status != "" && status != "all" {
		filters.Status = domain.ReviewStatus(status)
		if !filters.Status.Valid() {
			return filters, apperr.Validation("unknown status %q", status)
		}
	}
	if result != "" {
		filters.Result = domain.ModelResult(result)
		if !filters.Result.Valid() {
			return filters, apperr.Validation("unknown result %q", result)
		}
	}
	return filters, nil
}
