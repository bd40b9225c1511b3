package domain

import (
	"database/sql"
	"time"
)

// ModelResult is the classifier label.
type ModelResult string

const (
	ResultNormal    ModelResult = "NORMAL"
	ResultPneumonia ModelResult = "PNEUMONIA"
)

// Valid reports whether m is a label the classifier may return.
func (m ModelResult) Valid() bool {
	return m == ResultNormal || m == ResultPneumonia
}

// AnalysisResult is one stored classification of an uploaded X-ray
// (analysis_results table). PatientID is immutable after creation; the
// review fields are written only by the review workflow.
type AnalysisResult struct {
	ID           int64          `db:"id"`
	PatientID    int64          `db:"patient_id"`
	ReviewerID   sql.NullInt64  `db:"reviewer_id"`
	ModelResult  ModelResult    `db:"model_result"`
	Confidence   float64        `db:"confidence"` // [0,1]
	Explanation  sql.NullString `db:"explanation"`
	ImageRef     string         `db:"image_ref"`
	SaliencyRef  sql.NullString `db:"saliency_ref"`
	DoctorNotes  sql.NullString `db:"doctor_notes"`
	ReviewStatus ReviewStatus   `db:"review_status"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`

	// Joined for list/detail views, not columns of analysis_results.
	PatientUsername  string `db:"-"`
	ReviewerUsername string `db:"-"`
}

// AnalysisHistory is one append-only transition row (analysis_history
// table). Rows for an analysis, ordered by ChangedAt, replay its path
// through the state machine.
type AnalysisHistory struct {
	ID             int64        `db:"id"`
	AnalysisID     int64        `db:"analysis_id"`
	PreviousStatus ReviewStatus `db:"previous_status"`
	NewStatus      ReviewStatus `db:"new_status"`
	ChangedByID    int64        `db:"changed_by_id"`
	ChangeReason   string       `db:"change_reason"`
	ChangedAt      time.Time    `db:"changed_at"`

	ChangedByUsername string `db:"-"`
}
