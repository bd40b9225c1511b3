package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"pneumodetect/internal/domain"
)

// MemoryAuditRepository is the in-memory AuditRepository.
type MemoryAuditRepository struct {
	mu     sync.RWMutex
	nextID int64
	items  []*domain.AuditEntry
}

func NewMemoryAuditRepository() *MemoryAuditRepository {
	return &MemoryAuditRepository{nextID: 1}
}

var _ AuditRepository = (*MemoryAuditRepository)(nil)

func (r *MemoryAuditRepository) Append(ctx context.Context, entry *domain.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry.ID = r.nextID
	r.nextID++
	entry.CreatedAt = time.Now()
	copied := *entry
	r.items = append(r.items, &copied)
	return nil
}

func (r *MemoryAuditRepository) List(ctx context.Context, filters AuditFilters, page, size int) ([]*domain.AuditEntry, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*domain.AuditEntry
	for _, e := range r.items {
		if filters.EventType != "" && e.EventType != filters.EventType {
			continue
		}
		if filters.Severity != "" && e.Severity != filters.Severity {
			continue
		}
		if filters.ActorUserID != 0 && (!e.ActorUserID.Valid || e.ActorUserID.Int64 != filters.ActorUserID) {
			continue
		}
		copied := *e
		matched = append(matched, &copied)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	total := len(matched)
	return pageSlice(matched, page, size), total, nil
}
