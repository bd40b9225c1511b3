package repository

import (
	"context"

	"pneumodetect/internal/domain"
)

// NotificationsRepository reads the notifications the review workflow
// writes (inside SubmitReview). MarkRead is the only mutation.
type NotificationsRepository interface {
	Get(ctx context.Context, notificationID string) (*domain.Notification, error)
	ListForUser(ctx context.Context, userID int64, page, size int) ([]*domain.Notification, int, error)
	UnreadCount(ctx context.Context, userID int64) (int, error)
	MarkRead(ctx context.Context, notificationID string) error
}
