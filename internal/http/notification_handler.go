package httpapi

import (
	"net/http"
	"time"

	"pneumodetect/internal/domain"
	"pneumodetect/internal/service"

	"go.uber.org/zap"
)

// NotificationHandler serves the recipient's notification feed.
type NotificationHandler struct {
	notificationService service.NotificationService
	logger              *zap.Logger
}

func NewNotificationHandler(notificationService service.NotificationService, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{notificationService: notificationService, logger: logger}
}

type notificationView struct {
	ID                string     `json:"id"`
	Type              string     `json:"type"`
	Message           string     `json:"message"`
	RelatedAnalysisID *int64     `json:"related_analysis_id,omitempty"`
	IsRead            bool       `json:"is_read"`
	ReadAt            *time.Time `json:"read_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

func newNotificationView(n *domain.Notification) notificationView {
	v := notificationView{
		ID:        n.ID,
		Type:      n.Type,
		Message:   n.Message,
		IsRead:    n.IsRead,
		CreatedAt: n.CreatedAt,
	}
	if n.RelatedAnalysisID.Valid {
		id := n.RelatedAnalysisID.Int64
		v.RelatedAnalysisID = &id
	}
	if n.ReadAt.Valid {
		t := n.ReadAt.Time
		v.ReadAt = &t
	}
	return v
}

func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r)
	q := r.URL.Query()
	items, unread, page, err := h.notificationService.List(r.Context(), actor,
		parseInt(q.Get("page"), 1), parseInt(q.Get("per_page"), 0))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	views := make([]notificationView, 0, len(items))
	for _, n := range items {
		views = append(views, newNotificationView(n))
	}
	writeJSON(w, http.StatusOK, Ok("notifications", map[string]any{
		"items":        views,
		"unread_count": unread,
		"page":         page.Page,
		"per_page":     page.PerPage,
		"total":        page.Total,
		"pages":        page.Pages,
	}))
}

func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request, notificationID string) {
	actor, _ := actorFrom(r)
	if err := h.notificationService.MarkRead(r.Context(), actor, notificationID, clientInfo(r)); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok("notification read", nil))
}
