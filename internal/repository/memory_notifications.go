package repository

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"pneumodetect/internal/domain"
)

// MemoryNotificationsRepository is the in-memory NotificationsRepository.
// The analyses repository appends into it during SubmitReview so the
// "one transition, one notification" invariant holds in-memory too.
type MemoryNotificationsRepository struct {
	mu    sync.RWMutex
	items map[string]*domain.Notification
}

func NewMemoryNotificationsRepository() *MemoryNotificationsRepository {
	return &MemoryNotificationsRepository{items: make(map[string]*domain.Notification)}
}

var _ NotificationsRepository = (*MemoryNotificationsRepository)(nil)

// append is called by MemoryAnalysesRepository under its own transition
// lock.
func (r *MemoryNotificationsRepository) append(n *domain.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *n
	r.items[n.ID] = &copied
}

// removeForAnalysis cascades an analysis delete.
func (r *MemoryNotificationsRepository) removeForAnalysis(analysisID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, n := range r.items {
		if n.RelatedAnalysisID.Valid && n.RelatedAnalysisID.Int64 == analysisID {
			delete(r.items, id)
		}
	}
}

func (r *MemoryNotificationsRepository) Get(ctx context.Context, notificationID string) (*domain.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.items[notificationID]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *n
	return &copied, nil
}

func (r *MemoryNotificationsRepository) ListForUser(ctx context.Context, userID int64, page, size int) ([]*domain.Notification, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*domain.Notification
	for _, n := range r.items {
		if n.UserID == userID {
			copied := *n
			matched = append(matched, &copied)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	total := len(matched)
	return pageSlice(matched, page, size), total, nil
}

func (r *MemoryNotificationsRepository) UnreadCount(ctx context.Context, userID int64) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, n := range r.items {
		if n.UserID == userID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (r *MemoryNotificationsRepository) MarkRead(ctx context.Context, notificationID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.items[notificationID]
	if !ok {
		return ErrNotFound
	}
	n.IsRead = true
	n.ReadAt = sql.NullTime{Time: time.Now(), Valid: true}
	return nil
}
