package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"

	"pneumodetect/internal/apperr"
	"pneumodetect/internal/config"
	"pneumodetect/internal/domain"
	"pneumodetect/internal/repository"
	"pneumodetect/internal/service"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	sessionCookie = "session_token"
	csrfCookie    = "csrf_token"
	csrfHeader    = "X-CSRF-Token"
)

type ctxKey int

const actorKey ctxKey = iota

// actorFrom returns the authenticated actor attached by WithSession.
func actorFrom(r *http.Request) (service.Actor, bool) {
	actor, ok := r.Context().Value(actorKey).(service.Actor)
	return actor, ok
}

// Middleware resolves sessions and enforces auth, role, and CSRF rules
// in front of the handlers.
type Middleware struct {
	sessions *service.SessionManager
	audit    repository.AuditRepository
	cfg      *config.Config
	logger   *zap.Logger
}

func NewMiddleware(sessions *service.SessionManager, audit repository.AuditRepository, cfg *config.Config, logger *zap.Logger) *Middleware {
	return &Middleware{sessions: sessions, audit: audit, cfg: cfg, logger: logger}
}

// WithSession attaches the actor to the request context when a valid
// session cookie is present. It never rejects; anonymous requests pass
// through without an actor.
func (m *Middleware) WithSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(sessionCookie)
		if err == nil && cookie.Value != "" {
			actor, err := m.sessions.Get(r.Context(), cookie.Value)
			if err == nil {
				ctx := context.WithValue(r.Context(), actorKey, *actor)
				r = r.WithContext(ctx)
			}
		}
		next(w, r)
	}
}

// RequireAuth rejects requests without a resolved session.
func (m *Middleware) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := actorFrom(r); !ok {
			writeError(w, m.logger, apperr.Unauthorized("authentication required"))
			return
		}
		next(w, r)
	}
}

// RequireRole rejects authenticated requests whose role is not in the
// allow list, recording the attempt in the audit log.
func (m *Middleware) RequireRole(next http.HandlerFunc, roles ...domain.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(r)
		if !ok {
			writeError(w, m.logger, apperr.Unauthorized("authentication required"))
			return
		}
		for _, role := range roles {
			if actor.Role == role {
				next(w, r)
				return
			}
		}
		m.recordAccessDenied(r, actor)
		writeError(w, m.logger, apperr.Forbidden("insufficient role"))
	}
}

// CSRF enforces the double-submit check on state-changing methods: the
// csrf_token cookie must match the X-CSRF-Token header.
func (m *Middleware) CSRF(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
			cookie, err := r.Cookie(csrfCookie)
			if err != nil || cookie.Value == "" || cookie.Value != r.Header.Get(csrfHeader) {
				writeError(w, m.logger, apperr.Forbidden("CSRF token missing or mismatched"))
				return
			}
		}
		next(w, r)
	}
}

// Protected is the standard chain for authenticated endpoints.
func (m *Middleware) Protected(next http.HandlerFunc) http.HandlerFunc {
	return m.WithSession(m.CSRF(m.RequireAuth(next)))
}

// ProtectedRole is Protected plus a role allow list.
func (m *Middleware) ProtectedRole(next http.HandlerFunc, roles ...domain.Role) http.HandlerFunc {
	return m.WithSession(m.CSRF(m.RequireRole(next, roles...)))
}

// Public attaches the session when present but requires nothing. Used
// by register, login, and the anonymous analyze endpoint, which cannot
// carry a CSRF token yet.
func (m *Middleware) Public(next http.HandlerFunc) http.HandlerFunc {
	return m.WithSession(next)
}

func (m *Middleware) recordAccessDenied(r *http.Request, actor service.Actor) {
	details, _ := json.Marshal(map[string]any{"role": string(actor.Role)})
	entry := &domain.AuditEntry{
		EventType:   domain.AuditAccessDenied,
		ActorUserID: sql.NullInt64{Int64: actor.UserID, Valid: true},
		Details:     sql.NullString{String: string(details), Valid: true},
		Severity:    domain.SeverityWarning,
		ClientIP:    sql.NullString{String: getClientIP(r), Valid: true},
		UserAgent:   sql.NullString{String: r.UserAgent(), Valid: true},
		Endpoint:    sql.NullString{String: r.URL.Path, Valid: true},
		Method:      sql.NullString{String: r.Method, Valid: true},
	}
	if err := m.audit.Append(r.Context(), entry); err != nil {
		m.logger.Warn("Failed to append audit entry", zap.Error(err))
	}
}

// setSessionCookie writes the HttpOnly session cookie plus a fresh
// readable CSRF cookie for the double-submit check.
func (m *Middleware) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(m.cfg.Session.TTL.Seconds()),
		HttpOnly: true,
		Secure:   m.cfg.Session.CookieSecure,
		SameSite: m.sameSite(),
	})
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookie,
		Value:    uuid.NewString(),
		Path:     "/",
		MaxAge:   int(m.cfg.Session.TTL.Seconds()),
		HttpOnly: false,
		Secure:   m.cfg.Session.CookieSecure,
		SameSite: m.sameSite(),
	})
}

func (m *Middleware) clearSessionCookie(w http.ResponseWriter) {
	for _, name := range []string{sessionCookie, csrfCookie} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: name == sessionCookie,
			Secure:   m.cfg.Session.CookieSecure,
			SameSite: m.sameSite(),
		})
	}
}

func (m *Middleware) sameSite() http.SameSite {
	switch m.cfg.Session.SameSite {
	case "none":
		return http.SameSiteNoneMode
	case "strict":
		return http.SameSiteStrictMode
	default:
		return http.SameSiteLaxMode
	}
}
