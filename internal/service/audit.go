package service

import (
	"context"
	"encoding/json"

	"pneumodetect/internal/domain"
	"pneumodetect/internal/repository"

	"go.uber.org/zap"
)

// auditor writes security- and workflow-relevant events to the audit log.
// Audit writes never fail the operation they describe; a failed append is
// logged and dropped.
type auditor struct {
	repo   repository.AuditRepository
	logger *zap.Logger
}

func newAuditor(repo repository.AuditRepository, logger *zap.Logger) *auditor {
	return &auditor{repo: repo, logger: logger}
}

func (a *auditor) log(ctx context.Context, eventType string, actorUserID int64, details map[string]any, severity string, client domain.ClientInfo) {
	entry := &domain.AuditEntry{
		EventType: eventType,
		Severity:  severity,
	}
	if actorUserID != 0 {
		entry.ActorUserID = nullInt64(actorUserID)
	}
	if len(details) > 0 {
		if raw, err := json.Marshal(details); err == nil {
			entry.Details = nullString(string(raw))
		}
	}
	if client.IP != "" {
		entry.ClientIP = nullString(client.IP)
	}
	if client.UserAgent != "" {
		entry.UserAgent = nullString(client.UserAgent)
	}
	if client.Endpoint != "" {
		entry.Endpoint = nullString(client.Endpoint)
	}
	if client.Method != "" {
		entry.Method = nullString(client.Method)
	}

	if err := a.repo.Append(ctx, entry); err != nil {
		a.logger.Warn("Failed to append audit entry",
			zap.String("event_type", eventType),
			zap.Error(err),
		)
	}
}

// accessDenied records a role/ownership violation.
func (a *auditor) accessDenied(ctx context.Context, actor Actor, client domain.ClientInfo, details map[string]any) {
	if details == nil {
		details = map[string]any{}
	}
	details["role"] = string(actor.Role)
	a.log(ctx, domain.AuditAccessDenied, actor.UserID, details, domain.SeverityWarning, client)
}
