package httpapi

import (
	"net/http"
	"strings"

	"pneumodetect/internal/domain"

	"go.uber.org/zap"
)

// Router uses the standard library http.ServeMux; the API surface is
// small enough that a third-party router buys nothing.
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

func onlyMethod(method string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != method {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		next(w, req)
	}
}

// RegisterAuthRoutes mounts registration, login, and account endpoints.
// Register and login are CSRF-exempt: the caller holds no token yet.
func (r *Router) RegisterAuthRoutes(m *Middleware, h *AuthHandler) {
	r.Handle("/api/auth/register", onlyMethod(http.MethodPost, m.Public(h.Register)))
	r.Handle("/api/auth/login", onlyMethod(http.MethodPost, m.Public(h.Login)))
	r.Handle("/api/auth/logout", onlyMethod(http.MethodPost, m.WithSession(m.CSRF(h.Logout))))
	r.Handle("/api/auth/status", onlyMethod(http.MethodGet, m.Public(h.Status)))
	r.Handle("/api/auth/profile", onlyMethod(http.MethodGet, m.Protected(h.Profile)))
	r.Handle("/api/auth/change-password", onlyMethod(http.MethodPost, m.Protected(h.ChangePassword)))
}

// RegisterAnalysisRoutes mounts classification and stored-result
// endpoints. The bare analyze endpoint stays open to anonymous callers.
func (r *Router) RegisterAnalysisRoutes(m *Middleware, h *AnalysisHandler) {
	r.Handle("/api/analyze", onlyMethod(http.MethodPost, m.Public(h.Analyze)))
	r.Handle("/api/analyze_and_save", onlyMethod(http.MethodPost, m.Protected(h.AnalyzeAndSave)))
	r.Handle("/api/my/results", onlyMethod(http.MethodGet, m.Protected(h.MyResults)))

	r.Handle("/api/results/", m.Protected(func(w http.ResponseWriter, req *http.Request) {
		rest := strings.TrimPrefix(req.URL.Path, "/api/results/")
		idPart, tail, _ := strings.Cut(rest, "/")
		analysisID, err := parseInt64(idPart)
		if err != nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		switch {
		case tail == "" && req.Method == http.MethodGet:
			h.GetResult(w, req, analysisID)
		case tail == "" && req.Method == http.MethodDelete:
			h.Delete(w, req, analysisID)
		case tail == "history" && req.Method == http.MethodGet:
			h.History(w, req, analysisID)
		case tail == "":
			w.WriteHeader(http.StatusMethodNotAllowed)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	r.Handle("/api/files/", onlyMethod(http.MethodGet, m.WithSession(m.RequireAuth(func(w http.ResponseWriter, req *http.Request) {
		ref := strings.TrimPrefix(req.URL.Path, "/api/files/")
		if ref == "" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.ServeFile(w, req, ref)
	}))))
}

// RegisterNotificationRoutes mounts the notification feed.
func (r *Router) RegisterNotificationRoutes(m *Middleware, h *NotificationHandler) {
	r.Handle("/api/my/notifications", onlyMethod(http.MethodGet, m.Protected(h.List)))

	r.Handle("/api/notifications/", onlyMethod(http.MethodPost, m.Protected(func(w http.ResponseWriter, req *http.Request) {
		rest := strings.TrimPrefix(req.URL.Path, "/api/notifications/")
		id, tail, _ := strings.Cut(rest, "/")
		if id == "" || tail != "read" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.MarkRead(w, req, id)
	})))
}

// RegisterDoctorRoutes mounts the review workflow behind the reviewer
// roles.
func (r *Router) RegisterDoctorRoutes(m *Middleware, h *DoctorHandler) {
	reviewers := []domain.Role{domain.RoleDoctor, domain.RoleAdmin}

	r.Handle("/api/doctor/pending", onlyMethod(http.MethodGet, m.ProtectedRole(h.Pending, reviewers...)))
	r.Handle("/api/doctor/analyses", onlyMethod(http.MethodGet, m.ProtectedRole(h.Analyses, reviewers...)))
	r.Handle("/api/doctor/stats", onlyMethod(http.MethodGet, m.ProtectedRole(h.Stats, reviewers...)))

	r.Handle("/api/doctor/review/", onlyMethod(http.MethodPost, m.ProtectedRole(func(w http.ResponseWriter, req *http.Request) {
		idPart := strings.TrimPrefix(req.URL.Path, "/api/doctor/review/")
		analysisID, err := parseInt64(idPart)
		if err != nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.Review(w, req, analysisID)
	}, reviewers...)))
}

// RegisterAdminRoutes mounts the admin dashboard behind the admin role.
func (r *Router) RegisterAdminRoutes(m *Middleware, h *AdminHandler) {
	admin := func(next http.HandlerFunc) http.HandlerFunc {
		return m.ProtectedRole(next, domain.RoleAdmin)
	}

	r.Handle("/api/admin/stats", onlyMethod(http.MethodGet, admin(func(w http.ResponseWriter, req *http.Request) {
		h.Stats(w, req, "")
	})))
	r.Handle("/api/admin/stats/", onlyMethod(http.MethodGet, admin(func(w http.ResponseWriter, req *http.Request) {
		h.Stats(w, req, strings.TrimPrefix(req.URL.Path, "/api/admin/stats/"))
	})))
	r.Handle("/api/admin/analyses", onlyMethod(http.MethodGet, admin(h.ListAnalyses)))
	r.Handle("/api/admin/report/analyses.xlsx", onlyMethod(http.MethodGet, admin(h.ExportAnalyses)))
	r.Handle("/api/admin/audit-log", onlyMethod(http.MethodGet, admin(h.AuditLog)))
	r.Handle("/api/admin/settings", onlyMethod(http.MethodGet, admin(h.Settings)))

	r.Handle("/api/admin/users", admin(func(w http.ResponseWriter, req *http.Request) {
		switch req.Method {
		case http.MethodGet:
			h.ListUsers(w, req)
		case http.MethodPost:
			h.CreateUser(w, req)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))

	r.Handle("/api/admin/users/", onlyMethod(http.MethodPut, admin(func(w http.ResponseWriter, req *http.Request) {
		rest := strings.TrimPrefix(req.URL.Path, "/api/admin/users/")
		idPart, tail, _ := strings.Cut(rest, "/")
		userID, err := parseInt64(idPart)
		if err != nil || tail != "status" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.SetUserStatus(w, req, userID)
	})))
}
