package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"pneumodetect/internal/domain"

	"github.com/google/uuid"
)

// PostgresAnalysesRepository implements AnalysesRepository on the
// analysis_results, analysis_history and notifications tables.
type PostgresAnalysesRepository struct {
	db *sql.DB
}

func NewPostgresAnalysesRepository(db *sql.DB) *PostgresAnalysesRepository {
	return &PostgresAnalysesRepository{db: db}
}

var _ AnalysesRepository = (*PostgresAnalysesRepository)(nil)

const analysisColumns = `
	a.id, a.patient_id, a.reviewer_id, a.model_result, a.confidence,
	a.explanation, a.image_ref, a.saliency_ref, a.doctor_notes,
	a.review_status, a.created_at, a.updated_at,
	p.username, COALESCE(d.username, '')`

const analysisJoins = `
	FROM analysis_results a
	JOIN users p ON p.id = a.patient_id
	LEFT JOIN users d ON d.id = a.reviewer_id`

func scanAnalysis(row interface{ Scan(...any) error }) (*domain.AnalysisResult, error) {
	var a domain.AnalysisResult
	err := row.Scan(
		&a.ID, &a.PatientID, &a.ReviewerID, &a.ModelResult, &a.Confidence,
		&a.Explanation, &a.ImageRef, &a.SaliencyRef, &a.DoctorNotes,
		&a.ReviewStatus, &a.CreatedAt, &a.UpdatedAt,
		&a.PatientUsername, &a.ReviewerUsername,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (r *PostgresAnalysesRepository) Create(ctx context.Context, a *domain.AnalysisResult) (int64, error) {
	// Status is forced pending at creation regardless of what the caller
	// set; only SubmitReview moves it.
	query := `
		INSERT INTO analysis_results
			(patient_id, model_result, confidence, explanation, image_ref, saliency_ref, review_status)
		VALUES ($1, $2, $3, $4, $5, $6, 'pending')
		RETURNING id, created_at, updated_at`

	var id int64
	err := r.db.QueryRowContext(ctx, query,
		a.PatientID, string(a.ModelResult), a.Confidence,
		a.Explanation, a.ImageRef, a.SaliencyRef,
	).Scan(&id, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return 0, err
	}
	a.ID = id
	a.ReviewStatus = domain.StatusPending
	return id, nil
}

func (r *PostgresAnalysesRepository) Get(ctx context.Context, analysisID int64) (*domain.AnalysisResult, error) {
	query := `SELECT ` + analysisColumns + analysisJoins + ` WHERE a.id = $1`
	return scanAnalysis(r.db.QueryRowContext(ctx, query, analysisID))
}

func (r *PostgresAnalysesRepository) List(ctx context.Context, filters AnalysisFilters, page, size int) ([]*domain.AnalysisResult, int, error) {
	where := []string{"TRUE"}
	args := []any{}
	n := 0

	if filters.PatientID != 0 {
		n++
		where = append(where, fmt.Sprintf("a.patient_id = $%d", n))
		args = append(args, filters.PatientID)
	}
	if filters.ReviewerID != 0 {
		n++
		where = append(where, fmt.Sprintf("a.reviewer_id = $%d", n))
		args = append(args, filters.ReviewerID)
	}
	if filters.Status != "" && filters.Status != "all" {
		n++
		where = append(where, fmt.Sprintf("a.review_status = $%d", n))
		args = append(args, string(filters.Status))
	}
	if filters.Result != "" {
		n++
		where = append(where, fmt.Sprintf("a.model_result = $%d", n))
		args = append(args, string(filters.Result))
	}
	if filters.PatientSearch != "" {
		n++
		where = append(where, fmt.Sprintf("p.username ILIKE $%d", n))
		args = append(args, "%"+filters.PatientSearch+"%")
	}

	whereClause := strings.Join(where, " AND ")

	var total int
	countQuery := `SELECT COUNT(*)` + analysisJoins + ` WHERE ` + whereClause
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(
		`SELECT `+analysisColumns+analysisJoins+` WHERE %s ORDER BY a.created_at DESC LIMIT $%d OFFSET $%d`,
		whereClause, n+1, n+2,
	)
	args = append(args, size, (page-1)*size)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*domain.AnalysisResult
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}

// SubmitReview applies one review transition in a single transaction. The
// conditional UPDATE on review_status = 'pending' is the serialization
// point: of two concurrent reviewers exactly one sees a row updated, the
// other gets ErrNotPending.
func (r *PostgresAnalysesRepository) SubmitReview(ctx context.Context, upd ReviewUpdate) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var patientID int64
	var prevStatus string
	err = tx.QueryRowContext(ctx, `
		UPDATE analysis_results
		SET review_status = $2,
		    reviewer_id = $3,
		    doctor_notes = $4,
		    updated_at = NOW()
		WHERE id = $1 AND review_status = 'pending'
		RETURNING patient_id, 'pending'`,
		upd.AnalysisID, string(upd.NewStatus), upd.ReviewerID, upd.Notes,
	).Scan(&patientID, &prevStatus)
	if err == sql.ErrNoRows {
		// Zero rows: either the id is unknown or the record already left
		// pending. Distinguish so the caller can report NOT_FOUND vs
		// INVALID_STATE.
		var exists bool
		if probeErr := r.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM analysis_results WHERE id = $1)`,
			upd.AnalysisID,
		).Scan(&exists); probeErr != nil {
			return probeErr
		}
		if !exists {
			return ErrNotFound
		}
		return ErrNotPending
	}
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO analysis_history (analysis_id, previous_status, new_status, changed_by_id, change_reason)
		VALUES ($1, $2, $3, $4, $5)`,
		upd.AnalysisID, prevStatus, string(upd.NewStatus), upd.ReviewerID, upd.ChangeReason,
	)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, notification_type, message, related_analysis_id)
		VALUES ($1, $2, $3, $4, $5)`,
		uuid.NewString(), patientID, upd.NotifType, upd.NotifMessage, upd.AnalysisID,
	)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (r *PostgresAnalysesRepository) Delete(ctx context.Context, analysisID int64) error {
	// History and notifications go with it via ON DELETE CASCADE.
	res, err := r.db.ExecContext(ctx, `DELETE FROM analysis_results WHERE id = $1`, analysisID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *PostgresAnalysesRepository) History(ctx context.Context, analysisID int64) ([]*domain.AnalysisHistory, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT h.id, h.analysis_id, h.previous_status, h.new_status,
		       h.changed_by_id, h.change_reason, h.changed_at, u.username
		FROM analysis_history h
		JOIN users u ON u.id = h.changed_by_id
		WHERE h.analysis_id = $1
		ORDER BY h.changed_at DESC`,
		analysisID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*domain.AnalysisHistory
	for rows.Next() {
		var h domain.AnalysisHistory
		if err := rows.Scan(
			&h.ID, &h.AnalysisID, &h.PreviousStatus, &h.NewStatus,
			&h.ChangedByID, &h.ChangeReason, &h.ChangedAt, &h.ChangedByUsername,
		); err != nil {
			return nil, err
		}
		items = append(items, &h)
	}
	return items, rows.Err()
}

func (r *PostgresAnalysesRepository) CountByStatus(ctx context.Context) (map[domain.ReviewStatus]int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT review_status, COUNT(*) FROM analysis_results GROUP BY review_status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.ReviewStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[domain.ReviewStatus(status)] = count
	}
	return counts, rows.Err()
}

func (r *PostgresAnalysesRepository) CountByResult(ctx context.Context) (map[domain.ModelResult]int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT model_result, COUNT(*) FROM analysis_results GROUP BY model_result`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.ModelResult]int)
	for rows.Next() {
		var result string
		var count int
		if err := rows.Scan(&result, &count); err != nil {
			return nil, err
		}
		counts[domain.ModelResult(result)] = count
	}
	return counts, rows.Err()
}

func (r *PostgresAnalysesRepository) ReviewerStats(ctx context.Context, reviewerID int64) (ReviewerStats, error) {
	var s ReviewerStats
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE review_status = 'reviewed'),
		       COUNT(*) FILTER (WHERE review_status = 'rejected'),
		       COUNT(*) FILTER (WHERE model_result = 'PNEUMONIA')
		FROM analysis_results
		WHERE reviewer_id = $1`,
		reviewerID,
	).Scan(&s.TotalReviewed, &s.Reviewed, &s.Rejected, &s.PneumoniaCases)
	return s, err
}
