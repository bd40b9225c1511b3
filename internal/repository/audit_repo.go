package repository

import (
	"context"

	"pneumodetect/internal/domain"
)

// AuditFilters narrows List.
type AuditFilters struct {
	EventType   string
	Severity    string
	ActorUserID int64
}

// AuditRepository is append-only: rows are never updated or deleted.
type AuditRepository interface {
	Append(ctx context.Context, entry *domain.AuditEntry) error
	List(ctx context.Context, filters AuditFilters, page, size int) ([]*domain.AuditEntry, int, error)
}
