package httpapi

import (
	"net/http"
	"time"

	"pneumodetect/internal/apperr"
	"pneumodetect/internal/domain"
	"pneumodetect/internal/service"

	"go.uber.org/zap"
)

// AuthHandler serves registration, login, and account endpoints.
type AuthHandler struct {
	authService service.AuthService
	mw          *Middleware
	logger      *zap.Logger
}

func NewAuthHandler(authService service.AuthService, mw *Middleware, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{authService: authService, mw: mw, logger: logger}
}

type userView struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

func newUserView(u *domain.User) userView {
	return userView{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Role:      string(u.Role),
		IsActive:  u.IsActive,
		CreatedAt: u.CreatedAt,
	}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := readBodyJSON(r, 1<<20, &body); err != nil {
		writeError(w, h.logger, apperr.Validation("invalid JSON body"))
		return
	}

	user, err := h.authService.Register(r.Context(), service.RegisterRequest{
		Username: body.Username,
		Email:    body.Email,
		Password: body.Password,
		Client:   clientInfo(r),
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, Ok("registered", map[string]any{"user": newUserView(user)}))
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := readBodyJSON(r, 1<<20, &body); err != nil {
		writeError(w, h.logger, apperr.Validation("invalid JSON body"))
		return
	}

	resp, err := h.authService.Login(r.Context(), service.LoginRequest{
		Username: body.Username,
		Password: body.Password,
		Client:   clientInfo(r),
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.mw.setSessionCookie(w, resp.Token)
	writeJSON(w, http.StatusOK, Ok("logged in", map[string]any{"user": newUserView(resp.User)}))
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r)
	token := ""
	if cookie, err := r.Cookie(sessionCookie); err == nil {
		token = cookie.Value
	}
	if token != "" {
		if err := h.authService.Logout(r.Context(), actor, token, clientInfo(r)); err != nil {
			writeError(w, h.logger, err)
			return
		}
	}
	h.mw.clearSessionCookie(w)
	writeJSON(w, http.StatusOK, Ok("logged out", nil))
}

// Status reports whether the caller holds a valid session. Anonymous
// callers get authenticated=false, not an error.
func (h *AuthHandler) Status(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		writeJSON(w, http.StatusOK, Ok("anonymous", map[string]any{"authenticated": false}))
		return
	}
	writeJSON(w, http.StatusOK, Ok("authenticated", map[string]any{
		"authenticated": true,
		"user": map[string]any{
			"id":       actor.UserID,
			"username": actor.Username,
			"role":     string(actor.Role),
		},
	}))
}

func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r)
	user, err := h.authService.Profile(r.Context(), actor)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok("profile", map[string]any{"user": newUserView(user)}))
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r)
	var body struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if err := readBodyJSON(r, 1<<20, &body); err != nil {
		writeError(w, h.logger, apperr.Validation("invalid JSON body"))
		return
	}

	err := h.authService.ChangePassword(r.Context(), actor, service.ChangePasswordRequest{
		CurrentPassword: body.CurrentPassword,
		NewPassword:     body.NewPassword,
		Client:          clientInfo(r),
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok("password changed", nil))
}
