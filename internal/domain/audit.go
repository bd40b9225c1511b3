package domain

import (
	"database/sql"
	"time"
)

// Audit event types written by the access-control layer and the review
// workflow.
const (
	AuditLoginSuccess      = "LOGIN_SUCCESS"
	AuditLoginFailed       = "LOGIN_FAILED"
	AuditLoginLocked       = "LOGIN_LOCKED"
	AuditLogout            = "LOGOUT"
	AuditRegister          = "USER_REGISTERED"
	AuditAccessDenied      = "access_denied"
	AuditAnalysisReviewed  = "ANALYSIS_REVIEWED"
	AuditAnalysisDeleted   = "ANALYSIS_DELETED"
	AuditUserStatusChanged = "USER_STATUS_CHANGED"
	AuditUserCreated       = "USER_CREATED"
	AuditPasswordChanged   = "PASSWORD_CHANGED"
)

// Audit severities.
const (
	SeverityInfo    = "INFO"
	SeverityWarning = "WARNING"
	SeverityError   = "ERROR"
)

// AuditEntry is one immutable row of the audit_log table.
type AuditEntry struct {
	ID          int64          `db:"id"`
	EventType   string         `db:"event_type"`
	ActorUserID sql.NullInt64  `db:"actor_user_id"`
	Details     sql.NullString `db:"details"` // JSON-encoded
	Severity    string         `db:"severity"`
	ClientIP    sql.NullString `db:"client_ip"`
	UserAgent   sql.NullString `db:"user_agent"`
	Endpoint    sql.NullString `db:"endpoint"`
	Method      sql.NullString `db:"method"`
	CreatedAt   time.Time      `db:"created_at"`

	ActorUsername string `db:"-"`
}

// ClientInfo carries request metadata into audit rows.
type ClientInfo struct {
	IP        string
	UserAgent string
	Endpoint  string
	Method    string
}
