package service

import (
	"context"
	"errors"

	"pneumodetect/internal/apperr"
	"pneumodetect/internal/config"
	"pneumodetect/internal/domain"
	"pneumodetect/internal/models"
	"pneumodetect/internal/repository"

	"go.uber.org/zap"
)

// NotificationService reads the notifications the review workflow writes.
type NotificationService interface {
	List(ctx context.Context, actor Actor, page, perPage int) ([]*domain.Notification, int, models.Page, error)
	MarkRead(ctx context.Context, actor Actor, notificationID string, client domain.ClientInfo) error
}

type notificationService struct {
	notifications repository.NotificationsRepository
	audit         *auditor
	cfg           *config.Config
	logger        *zap.Logger
}

func NewNotificationService(notifications repository.NotificationsRepository, audit repository.AuditRepository, cfg *config.Config, logger *zap.Logger) NotificationService {
	return &notificationService{
		notifications: notifications,
		audit:         newAuditor(audit, logger),
		cfg:           cfg,
		logger:        logger,
	}
}

// List returns the actor's notifications plus their unread count.
func (s *notificationService) List(ctx context.Context, actor Actor, page, perPage int) ([]*domain.Notification, int, models.Page, error) {
	page, perPage = models.Clamp(page, perPage, s.cfg.Page.PerPage, s.cfg.Page.PerPageMax)
	items, total, err := s.notifications.ListForUser(ctx, actor.UserID, page, perPage)
	if err != nil {
		return nil, 0, models.Page{}, apperr.Internal(err)
	}
	unread, err := s.notifications.UnreadCount(ctx, actor.UserID)
	if err != nil {
		return nil, 0, models.Page{}, apperr.Internal(err)
	}
	return items, unread, models.NewPage(page, perPage, total), nil
}

// MarkRead flips a notification to read. Only the recipient may do so.
func (s *notificationService) MarkRead(ctx context.Context, actor Actor, notificationID string, client domain.ClientInfo) error {
	n, err := s.notifications.Get(ctx, notificationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("notification not found")
		}
		return apperr.Internal(err)
	}
	if n.UserID != actor.UserID {
		s.audit.accessDenied(ctx, actor, client, map[string]any{
			"action":          "mark_notification_read",
			"notification_id": notificationID,
		})
		return apperr.Forbidden("not your notification")
	}
	if n.IsRead {
		return nil
	}
	if err := s.notifications.MarkRead(ctx, notificationID); err != nil {
		return apperr.Internal(err)
	}
	return nil
}
