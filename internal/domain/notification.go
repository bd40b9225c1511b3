package domain

import (
	"database/sql"
	"time"
)

// Notification types surfaced to users.
const (
	NotificationAnalysisReviewed = "ANALYSIS_REVIEWED"
	NotificationAnalysisRejected = "ANALYSIS_REJECTED"
)

// Notification (notifications table). Created by the review workflow;
// the only mutation afterwards is flipping IsRead.
type Notification struct {
	ID                string        `db:"id"` // uuid
	UserID            int64         `db:"user_id"`
	Type              string        `db:"notification_type"`
	Message           string        `db:"message"`
	RelatedAnalysisID sql.NullInt64 `db:"related_analysis_id"`
	IsRead            bool          `db:"is_read"`
	ReadAt            sql.NullTime  `db:"read_at"`
	CreatedAt         time.Time     `db:"created_at"`
}
