package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/healthy-futures/contest-api/internal/models"
)

// ReportRepository aggregates contest progress per school and persists
// export job metadata.
type ReportRepository struct {
	db *sqlx.DB
}

// NewReportRepository constructs the repository.
func NewReportRepository(db *sqlx.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// SchoolSummary returns one row per active student of the school with their
// contest totals over the given window. Completion thresholds are applied
// in SQL so the report and the calendar agree on what a complete day is.
func (r *ReportRepository) SchoolSummary(ctx context.Context, school string, start, end time.Time, minExerciseMinutes, maxSugaryDrinks int) ([]models.SchoolReportRow, error) {
	const query = `SELECT u.id AS student_id,
       u.full_name AS student_name,
       u.grade,
       COUNT(e.id) AS days_logged,
       COUNT(e.id) FILTER (WHERE e.minutes_moderate + e.minutes_vigorous >= $4 AND e.sugary_drinks <= $5) AS days_complete,
       COALESCE(SUM(e.minutes_moderate + e.minutes_vigorous), 0) AS exercise_minutes
FROM users u
LEFT JOIN entries e ON e.author_id = u.id AND e.entry_date >= $2 AND e.entry_date < $3
WHERE u.role = 'STUDENT' AND u.school = $1 AND u.active = TRUE
GROUP BY u.id, u.full_name, u.grade
ORDER BY u.full_name ASC`

	var rows []models.SchoolReportRow
	if err := r.db.SelectContext(ctx, &rows, query, school, start, end, minExerciseMinutes, maxSugaryDrinks); err != nil {
		return nil, fmt.Errorf("school summary: %w", err)
	}
	return rows, nil
}

// Schools lists the distinct school keys of active students.
func (r *ReportRepository) Schools(ctx context.Context) ([]string, error) {
	const query = `SELECT DISTINCT school FROM users WHERE role = 'STUDENT' AND active = TRUE AND school <> '' ORDER BY school ASC`
	var schools []string
	if err := r.db.SelectContext(ctx, &schools, query); err != nil {
		return nil, fmt.Errorf("list schools: %w", err)
	}
	return schools, nil
}

// CreateJob persists a new export job.
func (r *ReportRepository) CreateJob(ctx context.Context, job *models.ReportJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO report_jobs (id, params, status, result_url, created_by, created_at, finished_at, error_message) VALUES (:id, :params, :status, :result_url, :created_by, :created_at, :finished_at, :error_message)`
	if _, err := r.db.NamedExecContext(ctx, query, job); err != nil {
		return fmt.Errorf("create report job: %w", err)
	}
	return nil
}

// FindJobByID returns a job by identifier.
func (r *ReportRepository) FindJobByID(ctx context.Context, id string) (*models.ReportJob, error) {
	const query = `SELECT id, params, status, result_url, created_by, created_at, finished_at, error_message FROM report_jobs WHERE id = $1 LIMIT 1`
	var job models.ReportJob
	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find report job: %w", err)
	}
	return &job, nil
}

// UpdateJobParams captures the mutable job fields.
type UpdateJobParams struct {
	Status       *models.ReportStatus
	ResultURL    *string
	ErrorMessage *string
	FinishedAt   *time.Time
}

// UpdateJob applies the provided mutations to a job row.
func (r *ReportRepository) UpdateJob(ctx context.Context, id string, params UpdateJobParams) error {
	const query = `UPDATE report_jobs SET
       status = COALESCE($2, status),
       result_url = COALESCE($3, result_url),
       error_message = COALESCE($4, error_message),
       finished_at = COALESCE($5, finished_at)
WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, params.Status, params.ResultURL, params.ErrorMessage, params.FinishedAt); err != nil {
		return fmt.Errorf("update report job: %w", err)
	}
	return nil
}

// ListQueuedJobs returns jobs still waiting for a worker, oldest first.
// Used to recover jobs that were queued when the process stopped.
func (r *ReportRepository) ListQueuedJobs(ctx context.Context, limit int) ([]models.ReportJob, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `SELECT id, params, status, result_url, created_by, created_at, finished_at, error_message FROM report_jobs WHERE status = $1 ORDER BY created_at ASC LIMIT $2`
	var jobs []models.ReportJob
	if err := r.db.SelectContext(ctx, &jobs, query, models.ReportStatusQueued, limit); err != nil {
		return nil, fmt.Errorf("list queued report jobs: %w", err)
	}
	return jobs, nil
}
