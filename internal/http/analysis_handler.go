package httpapi

import (
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"time"

	"pneumodetect/internal/apperr"
	"pneumodetect/internal/config"
	"pneumodetect/internal/domain"
	"pneumodetect/internal/models"
	"pneumodetect/internal/service"

	"go.uber.org/zap"
)

// AnalysisHandler serves upload/classify endpoints and stored-analysis
// reads for patients.
type AnalysisHandler struct {
	analysisService service.AnalysisService
	cfg             *config.Config
	logger          *zap.Logger
}

func NewAnalysisHandler(analysisService service.AnalysisService, cfg *config.Config, logger *zap.Logger) *AnalysisHandler {
	return &AnalysisHandler{analysisService: analysisService, cfg: cfg, logger: logger}
}

type analysisView struct {
	ID               int64     `json:"id"`
	PatientID        int64     `json:"patient_id"`
	PatientUsername  string    `json:"patient_username,omitempty"`
	Result           string    `json:"result"`
	Confidence       float64   `json:"confidence"`
	Explanation      string    `json:"explanation,omitempty"`
	ImageURL         string    `json:"image_url"`
	SaliencyURL      string    `json:"saliency_url,omitempty"`
	ReviewStatus     string    `json:"review_status"`
	ReviewerUsername string    `json:"reviewer,omitempty"`
	DoctorNotes      string    `json:"doctor_notes,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func newAnalysisView(a *domain.AnalysisResult) analysisView {
	v := analysisView{
		ID:              a.ID,
		PatientID:       a.PatientID,
		PatientUsername: a.PatientUsername,
		Result:          string(a.ModelResult),
		Confidence:      a.Confidence,
		ImageURL:        fileURL(a.ImageRef),
		ReviewStatus:    string(a.ReviewStatus),
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
	if a.Explanation.Valid {
		v.Explanation = a.Explanation.String
	}
	if a.SaliencyRef.Valid {
		v.SaliencyURL = fileURL(a.SaliencyRef.String)
	}
	if a.ReviewerUsername != "" {
		v.ReviewerUsername = a.ReviewerUsername
	}
	if a.DoctorNotes.Valid {
		v.DoctorNotes = a.DoctorNotes.String
	}
	return v
}

func newAnalysisViews(items []*domain.AnalysisResult) []analysisView {
	views := make([]analysisView, 0, len(items))
	for _, a := range items {
		views = append(views, newAnalysisView(a))
	}
	return views
}

type historyView struct {
	PreviousStatus string    `json:"previous_status"`
	NewStatus      string    `json:"new_status"`
	ChangedBy      string    `json:"changed_by"`
	ChangeReason   string    `json:"change_reason"`
	ChangedAt      time.Time `json:"changed_at"`
}

// listData flattens page metadata next to the items.
type listData struct {
	Items any `json:"items"`
	models.Page
}

func fileURL(ref string) string {
	return "/api/files/" + ref
}

// readUpload pulls the "file" part out of a multipart form, bounded by
// the configured size limit.
func (h *AnalysisHandler) readUpload(r *http.Request) (service.UploadedImage, error) {
	if err := r.ParseMultipartForm(h.cfg.Upload.MaxBytes + 1<<20); err != nil {
		return service.UploadedImage{}, apperr.Validation("expected multipart form with a file field")
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return service.UploadedImage{}, apperr.Validation("missing file upload")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.cfg.Upload.MaxBytes+1))
	if err != nil {
		return service.UploadedImage{}, apperr.Internal(err)
	}
	return service.UploadedImage{Filename: header.Filename, Data: data}, nil
}

// Analyze classifies without persisting. Open to anonymous callers.
func (h *AnalysisHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	img, err := h.readUpload(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	outcome, err := h.analysisService.Analyze(r.Context(), img)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	data := map[string]any{
		"result":     string(outcome.Result),
		"confidence": outcome.Confidence,
	}
	if outcome.Explanation != "" {
		data["explanation"] = outcome.Explanation
	}
	if len(outcome.Saliency) > 0 {
		data["saliency"] = base64.StdEncoding.EncodeToString(outcome.Saliency)
	}
	writeJSON(w, http.StatusOK, Ok("analyzed", data))
}

// AnalyzeAndSave classifies and stores a pending analysis record.
func (h *AnalysisHandler) AnalyzeAndSave(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r)
	img, err := h.readUpload(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	analysis, err := h.analysisService.AnalyzeAndSave(r.Context(), actor, img)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, Ok("analysis saved", map[string]any{"analysis": newAnalysisView(analysis)}))
}

func (h *AnalysisHandler) MyResults(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r)
	q := r.URL.Query()
	items, page, err := h.analysisService.ListMine(r.Context(), actor, parseInt(q.Get("page"), 1), parseInt(q.Get("per_page"), 0))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok("results", listData{Items: newAnalysisViews(items), Page: page}))
}

func (h *AnalysisHandler) GetResult(w http.ResponseWriter, r *http.Request, analysisID int64) {
	actor, _ := actorFrom(r)
	analysis, err := h.analysisService.Get(r.Context(), actor, analysisID, clientInfo(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok("result", map[string]any{"analysis": newAnalysisView(analysis)}))
}

func (h *AnalysisHandler) History(w http.ResponseWriter, r *http.Request, analysisID int64) {
	actor, _ := actorFrom(r)
	history, err := h.analysisService.History(r.Context(), actor, analysisID, clientInfo(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	views := make([]historyView, 0, len(history))
	for _, entry := range history {
		views = append(views, historyView{
			PreviousStatus: string(entry.PreviousStatus),
			NewStatus:      string(entry.NewStatus),
			ChangedBy:      entry.ChangedByUsername,
			ChangeReason:   entry.ChangeReason,
			ChangedAt:      entry.ChangedAt,
		})
	}
	writeJSON(w, http.StatusOK, Ok("history", map[string]any{"history": views}))
}

func (h *AnalysisHandler) Delete(w http.ResponseWriter, r *http.Request, analysisID int64) {
	actor, _ := actorFrom(r)
	if err := h.analysisService.Delete(r.Context(), actor, analysisID, clientInfo(r)); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok("analysis deleted", nil))
}

// ServeFile streams a stored original or saliency map.
func (h *AnalysisHandler) ServeFile(w http.ResponseWriter, r *http.Request, ref string) {
	actor, _ := actorFrom(r)
	data, contentType, err := h.analysisService.OpenImage(r.Context(), actor, ref)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	if _, err := w.Write(data); err != nil && !errors.Is(err, http.ErrBodyNotAllowed) {
		h.logger.Warn("Failed to stream file", zap.String("ref", ref), zap.Error(err))
	}
}
