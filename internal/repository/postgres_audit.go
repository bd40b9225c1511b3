package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"pneumodetect/internal/domain"
)

// PostgresAuditRepository implements AuditRepository on the audit_log
// table. Append-only: no UPDATE or DELETE statements exist here.
type PostgresAuditRepository struct {
	db *sql.DB
}

func NewPostgresAuditRepository(db *sql.DB) *PostgresAuditRepository {
	return &PostgresAuditRepository{db: db}
}

var _ AuditRepository = (*PostgresAuditRepository)(nil)

func (r *PostgresAuditRepository) Append(ctx context.Context, entry *domain.AuditEntry) error {
	query := `
		INSERT INTO audit_log
			(event_type, actor_user_id, details, severity, client_ip, user_agent, endpoint, method)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`

	return r.db.QueryRowContext(ctx, query,
		entry.EventType, entry.ActorUserID, entry.Details, entry.Severity,
		entry.ClientIP, entry.UserAgent, entry.Endpoint, entry.Method,
	).Scan(&entry.ID, &entry.CreatedAt)
}

func (r *PostgresAuditRepository) List(ctx context.Context, filters AuditFilters, page, size int) ([]*domain.AuditEntry, int, error) {
	where := []string{"TRUE"}
	args := []any{}
	n := 0

	if filters.EventType != "" {
		n++
		where = append(where, fmt.Sprintf("l.event_type = $%d", n))
		args = append(args, filters.EventType)
	}
	if filters.Severity != "" {
		n++
		where = append(where, fmt.Sprintf("l.severity = $%d", n))
		args = append(args, filters.Severity)
	}
	if filters.ActorUserID != 0 {
		n++
		where = append(where, fmt.Sprintf("l.actor_user_id = $%d", n))
		args = append(args, filters.ActorUserID)
	}

	whereClause := strings.Join(where, " AND ")

	var total int
	countQuery := `SELECT COUNT(*) FROM audit_log l WHERE ` + whereClause
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`
		SELECT l.id, l.event_type, l.actor_user_id, l.details, l.severity,
		       l.client_ip, l.user_agent, l.endpoint, l.method, l.created_at,
		       COALESCE(u.username, '')
		FROM audit_log l
		LEFT JOIN users u ON u.id = l.actor_user_id
		WHERE %s ORDER BY l.created_at DESC LIMIT $%d OFFSET $%d`,
		whereClause, n+1, n+2,
	)
	args = append(args, size, (page-1)*size)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		if err := rows.Scan(
			&e.ID, &e.EventType, &e.ActorUserID, &e.Details, &e.Severity,
			&e.ClientIP, &e.UserAgent, &e.Endpoint, &e.Method, &e.CreatedAt,
			&e.ActorUsername,
		); err != nil {
			return nil, 0, err
		}
		items = append(items, &e)
	}
	return items, total, rows.Err()
}
