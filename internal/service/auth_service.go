package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"pneumodetect/internal/apperr"
	"pneumodetect/internal/config"
	"pneumodetect/internal/domain"
	"pneumodetect/internal/repository"
	"pneumodetect/internal/store"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// AuthService covers account lifecycle and session issue/teardown.
type AuthService interface {
	Register(ctx context.Context, req RegisterRequest) (*domain.User, error)
	Login(ctx context.Context, req LoginRequest) (*LoginResponse, error)
	Logout(ctx context.Context, actor Actor, token string, client domain.ClientInfo) error
	Profile(ctx context.Context, actor Actor) (*domain.User, error)
	ChangePassword(ctx context.Context, actor Actor, req ChangePasswordRequest) error
}

type authService struct {
	users    repository.UsersRepository
	sessions *SessionManager
	kv       store.KV
	audit    *auditor
	cfg      *config.Config
	logger   *zap.Logger
}

func NewAuthService(users repository.UsersRepository, sessions *SessionManager, kv store.KV, audit repository.AuditRepository, cfg *config.Config, logger *zap.Logger) AuthService {
	return &authService{
		users:    users,
		sessions: sessions,
		kv:       kv,
		audit:    newAuditor(audit, logger),
		cfg:      cfg,
		logger:   logger,
	}
}

// RegisterRequest creates a patient account. Doctors and admins are
// provisioned through the admin API, never by self-registration.
type RegisterRequest struct {
	Username string
	Email    string
	Password string
	Client   domain.ClientInfo
}

type LoginRequest struct {
	Username string
	Password string
	Client   domain.ClientInfo
}

type LoginResponse struct {
	Token string
	User  *domain.User
}

type ChangePasswordRequest struct {
	CurrentPassword string
	NewPassword     string
	Client          domain.ClientInfo
}

func (s *authService) Register(ctx context.Context, req RegisterRequest) (*domain.User, error) {
	username := strings.TrimSpace(req.Username)
	email := strings.ToLower(strings.TrimSpace(req.Email))

	if !domain.ValidUsername(username) {
		return nil, apperr.Validation("username must be 3-64 characters of letters, digits, '_' or '-'")
	}
	if !domain.ValidEmail(email) {
		return nil, apperr.Validation("invalid email address")
	}
	if err := validPassword(req.Password); err != nil {
		return nil, err
	}

	hash, err := hashPassword(req.Password)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	user := &domain.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         domain.RolePatient,
		IsActive:     true,
	}
	id, err := s.users.CreateUser(ctx, user)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperr.Validation("username or email is already taken")
		}
		return nil, apperr.Internal(err)
	}
	user.ID = id

	s.audit.log(ctx, domain.AuditRegister, id, map[string]any{
		"username": username,
	}, domain.SeverityInfo, req.Client)
	s.logger.Info("User registered",
		zap.Int64("user_id", id),
		zap.String("username", username),
	)
	return user, nil
}

func (s *authService) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		return nil, apperr.Validation("username and password are required")
	}

	lockKey := loginFailKey(username)
	if raw, err := s.kv.Get(ctx, lockKey); err == nil {
		if n := parseCount(raw); n >= int64(s.cfg.Login.MaxAttempts) {
			s.audit.log(ctx, domain.AuditLoginLocked, 0, map[string]any{
				"username": username,
			}, domain.SeverityWarning, req.Client)
			return nil, apperr.RateLimited("too many failed login attempts, try again later")
		}
	}

	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, s.failLogin(ctx, username, "unknown_user", req.Client)
		}
		return nil, apperr.Internal(err)
	}
	if !user.IsActive {
		s.audit.log(ctx, domain.AuditLoginFailed, user.ID, map[string]any{
			"username": username,
			"reason":   "account_deactivated",
		}, domain.SeverityWarning, req.Client)
		return nil, apperr.Forbidden("account is deactivated")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, s.failLogin(ctx, username, "wrong_password", req.Client)
	}

	// Successful login closes the failure window.
	_ = s.kv.Del(ctx, lockKey)

	token, err := s.sessions.Create(ctx, Actor{UserID: user.ID, Username: user.Username, Role: user.Role})
	if err != nil {
		return nil, apperr.Internal(err)
	}

	s.audit.log(ctx, domain.AuditLoginSuccess, user.ID, map[string]any{
		"username": username,
		"role":     string(user.Role),
	}, domain.SeverityInfo, req.Client)
	s.logger.Info("User login successful",
		zap.Int64("user_id", user.ID),
		zap.String("username", username),
		zap.String("role", string(user.Role)),
		zap.String("ip_address", req.Client.IP),
		zap.Time("login_time", time.Now()),
	)
	return &LoginResponse{Token: token, User: user}, nil
}

// failLogin bumps the failure counter and returns the uniform
// invalid-credentials error. The caller cannot tell an unknown account
// from a wrong password.
func (s *authService) failLogin(ctx context.Context, username, reason string, client domain.ClientInfo) error {
	n, err := s.kv.Incr(ctx, loginFailKey(username), s.cfg.Login.Window)
	if err != nil {
		s.logger.Warn("Failed to bump login failure counter",
			zap.String("username", username),
			zap.Error(err),
		)
	}
	s.audit.log(ctx, domain.AuditLoginFailed, 0, map[string]any{
		"username": username,
		"reason":   reason,
		"failures": n,
	}, domain.SeverityWarning, client)
	if err == nil && n == int64(s.cfg.Login.MaxAttempts) {
		s.audit.log(ctx, domain.AuditLoginLocked, 0, map[string]any{
			"username": username,
		}, domain.SeverityWarning, client)
	}
	return apperr.Unauthorized("invalid credentials")
}

func (s *authService) Logout(ctx context.Context, actor Actor, token string, client domain.ClientInfo) error {
	if err := s.sessions.Destroy(ctx, token); err != nil {
		return apperr.Internal(err)
	}
	s.audit.log(ctx, domain.AuditLogout, actor.UserID, nil, domain.SeverityInfo, client)
	return nil
}

func (s *authService) Profile(ctx context.Context, actor Actor) (*domain.User, error) {
	user, err := s.users.GetUser(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.Unauthorized("account no longer exists")
		}
		return nil, apperr.Internal(err)
	}
	return user, nil
}

func (s *authService) ChangePassword(ctx context.Context, actor Actor, req ChangePasswordRequest) error {
	user, err := s.users.GetUser(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.Unauthorized("account no longer exists")
		}
		return apperr.Internal(err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.CurrentPassword)); err != nil {
		return apperr.Unauthorized("current password is incorrect")
	}
	if err := validPassword(req.NewPassword); err != nil {
		return err
	}

	hash, err := hashPassword(req.NewPassword)
	if err != nil {
		return apperr.Internal(err)
	}
	if err := s.users.UpdatePassword(ctx, actor.UserID, hash); err != nil {
		return apperr.Internal(err)
	}

	s.audit.log(ctx, domain.AuditPasswordChanged, actor.UserID, nil, domain.SeverityInfo, req.Client)
	return nil
}

// validPassword enforces the minimum credential strength: at least 8
// characters with a letter and a digit.
func validPassword(password string) error {
	if len(password) < 8 {
		return apperr.Validation("password must be at least 8 characters")
	}
	if len(password) > 128 {
		return apperr.Validation("password must be at most 128 characters")
	}
	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasLetter || !hasDigit {
		return apperr.Validation("password must contain at least one letter and one digit")
	}
	return nil
}

func loginFailKey(username string) string {
	return "login:fail:" + strings.ToLower(username)
}

func parseCount(raw string) int64 {
	var n int64
	_, err := fmt.Sscanf(raw, "%d", &n)
	if err != nil {
		return 0
	}
	return n
}
