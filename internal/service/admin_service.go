package service

import (
	"context"
	"errors"
	"strings"

	"pneumodetect/internal/apperr"
	"pneumodetect/internal/config"
	"pneumodetect/internal/domain"
	"pneumodetect/internal/models"
	"pneumodetect/internal/repository"

	"go.uber.org/zap"
)

// AdminService backs the admin dashboard. Role enforcement happens at
// the router; the self-deactivation rule lives here because it depends
// on the acting user.
type AdminService interface {
	SystemStats(ctx context.Context) (*SystemStats, error)
	ListUsers(ctx context.Context, filters repository.UserFilters, page, perPage int) ([]*domain.User, models.Page, error)
	CreateUser(ctx context.Context, actor Actor, req CreateUserRequest) (*domain.User, error)
	SetUserStatus(ctx context.Context, actor Actor, userID int64, active bool, client domain.ClientInfo) error
	ListAnalyses(ctx context.Context, filters repository.AnalysisFilters, page, perPage int) ([]*domain.AnalysisResult, models.Page, error)
	AuditLog(ctx context.Context, filters repository.AuditFilters, page, perPage int) ([]*domain.AuditEntry, models.Page, error)
	// AllAnalyses streams every record matching filters, for exports.
	AllAnalyses(ctx context.Context, filters repository.AnalysisFilters) ([]*domain.AnalysisResult, error)
}

type adminService struct {
	users    repository.UsersRepository
	analyses repository.AnalysesRepository
	audit    *auditor
	auditLog repository.AuditRepository
	cfg      *config.Config
	logger   *zap.Logger
}

func NewAdminService(users repository.UsersRepository, analyses repository.AnalysesRepository, auditLog repository.AuditRepository, cfg *config.Config, logger *zap.Logger) AdminService {
	return &adminService{
		users:    users,
		analyses: analyses,
		audit:    newAuditor(auditLog, logger),
		auditLog: auditLog,
		cfg:      cfg,
		logger:   logger,
	}
}

// SystemStats is the admin dashboard headline block.
type SystemStats struct {
	TotalUsers    int                         `json:"total_users"`
	UsersByRole   map[domain.Role]int         `json:"users_by_role"`
	TotalAnalyses int                         `json:"total_analyses"`
	ByStatus      map[domain.ReviewStatus]int `json:"by_status"`
	ByResult      map[domain.ModelResult]int  `json:"by_result"`
	PneumoniaRate float64                     `json:"pneumonia_rate"`
}

type CreateUserRequest struct {
	Username string
	Email    string
	Password string
	Role     domain.Role
	Client   domain.ClientInfo
}

func (s *adminService) SystemStats(ctx context.Context) (*SystemStats, error) {
	byRole, err := s.users.CountByRole(ctx)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	byStatus, err := s.analyses.CountByStatus(ctx)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	byResult, err := s.analyses.CountByResult(ctx)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	stats := &SystemStats{
		UsersByRole: byRole,
		ByStatus:    byStatus,
		ByResult:    byResult,
	}
	for _, n := range byRole {
		stats.TotalUsers += n
	}
	for _, n := range byStatus {
		stats.TotalAnalyses += n
	}
	if stats.TotalAnalyses > 0 {
		stats.PneumoniaRate = float64(byResult[domain.ResultPneumonia]) / float64(stats.TotalAnalyses)
	}
	return stats, nil
}

func (s *adminService) ListUsers(ctx context.Context, filters repository.UserFilters, page, perPage int) ([]*domain.User, models.Page, error) {
	page, perPage = models.Clamp(page, perPage, s.cfg.Page.PerPageAdmin, s.cfg.Page.PerPageMax)
	items, total, err := s.users.ListUsers(ctx, filters, page, perPage)
	if err != nil {
		return nil, models.Page{}, apperr.Internal(err)
	}
	return items, models.NewPage(page, perPage, total), nil
}

func (s *adminService) CreateUser(ctx context.Context, actor Actor, req CreateUserRequest) (*domain.User, error) {
	username := strings.TrimSpace(req.Username)
	email := strings.ToLower(strings.TrimSpace(req.Email))

	if !domain.ValidUsername(username) {
		return nil, apperr.Validation("username must be 3-64 characters of letters, digits, '_' or '-'")
	}
	if !domain.ValidEmail(email) {
		return nil, apperr.Validation("invalid email address")
	}
	if !req.Role.Valid() {
		return nil, apperr.Validation("unknown role %q", req.Role)
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
		Role:         req.Role,
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

	s.audit.log(ctx, domain.AuditUserCreated, actor.UserID, map[string]any{
		"created_user_id": id,
		"username":        username,
		"role":            string(req.Role),
	}, domain.SeverityInfo, req.Client)
	return user, nil
}

func (s *adminService) SetUserStatus(ctx context.Context, actor Actor, userID int64, active bool, client domain.ClientInfo) error {
	if userID == actor.UserID && !active {
		return apperr.InvalidState("cannot deactivate your own account")
	}
	if err := s.users.SetActive(ctx, userID, active); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("user not found")
		}
		return apperr.Internal(err)
	}

	s.audit.log(ctx, domain.AuditUserStatusChanged, actor.UserID, map[string]any{
		"target_user_id": userID,
		"is_active":      active,
	}, domain.SeverityInfo, client)
	return nil
}

func (s *adminService) ListAnalyses(ctx context.Context, filters repository.AnalysisFilters, page, perPage int) ([]*domain.AnalysisResult, models.Page, error) {
	page, perPage = models.Clamp(page, perPage, s.cfg.Page.PerPageAdmin, s.cfg.Page.PerPageMax)
	items, total, err := s.analyses.List(ctx, filters, page, perPage)
	if err != nil {
		return nil, models.Page{}, apperr.Internal(err)
	}
	return items, models.NewPage(page, perPage, total), nil
}

func (s *adminService) AuditLog(ctx context.Context, filters repository.AuditFilters, page, perPage int) ([]*domain.AuditEntry, models.Page, error) {
	page, perPage = models.Clamp(page, perPage, s.cfg.Page.PerPageAdmin, s.cfg.Page.PerPageMax)
	items, total, err := s.auditLog.List(ctx, filters, page, perPage)
	if err != nil {
		return nil, models.Page{}, apperr.Internal(err)
	}
	return items, models.NewPage(page, perPage, total), nil
}

func (s *adminService) AllAnalyses(ctx context.Context, filters repository.AnalysisFilters) ([]*domain.AnalysisResult, error) {
	const chunk = 500
	var all []*domain.AnalysisResult
	for page := 1; ; page++ {
		items, total, err := s.analyses.List(ctx, filters, page, chunk)
		if err != nil {
			return nil, apperr.Internal(err)
		}
		all = append(all, items...)
		if len(all) >= total || len(items) == 0 {
			break
		}
	}
	return all, nil
}
