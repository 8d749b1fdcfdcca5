package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// SchoolReportRow aggregates one student's contest progress.
type SchoolReportRow struct {
	StudentID       string `db:"student_id" json:"student_id"`
	StudentName     string `db:"student_name" json:"student_name"`
	Grade           string `db:"grade" json:"grade"`
	DaysLogged      int    `db:"days_logged" json:"days_logged"`
	DaysComplete    int    `db:"days_complete" json:"days_complete"`
	ExerciseMinutes int    `db:"exercise_minutes" json:"exercise_minutes"`
}

// SchoolReport is the cached per-school report payload.
type SchoolReport struct {
	School               string            `json:"school"`
	Year                 int               `json:"year"`
	Month                time.Month        `json:"month"`
	Students             []SchoolReportRow `json:"students"`
	TotalDaysLogged      int               `json:"total_days_logged"`
	TotalDaysComplete    int               `json:"total_days_complete"`
	TotalExerciseMinutes int               `json:"total_exercise_minutes"`
	GeneratedAt          time.Time         `json:"generated_at"`
}

// ReportFormat enumerates supported export formats.
type ReportFormat string

const (
	ReportFormatCSV ReportFormat = "csv"
	ReportFormatPDF ReportFormat = "pdf"
)

// Valid reports whether the format is supported.
func (f ReportFormat) Valid() bool {
	return f == ReportFormatCSV || f == ReportFormatPDF
}

// ReportStatus captures background job lifecycle states.
type ReportStatus string

const (
	ReportStatusQueued     ReportStatus = "QUEUED"
	ReportStatusProcessing ReportStatus = "PROCESSING"
	ReportStatusFinished   ReportStatus = "FINISHED"
	ReportStatusFailed     ReportStatus = "FAILED"
)

// ReportJob persists background export job metadata.
type ReportJob struct {
	ID           string          `db:"id" json:"id"`
	Params       ReportJobParams `db:"params" json:"params"`
	Status       ReportStatus    `db:"status" json:"status"`
	ResultURL    *string         `db:"result_url" json:"result_url,omitempty"`
	CreatedBy    string          `db:"created_by" json:"created_by"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	FinishedAt   *time.Time      `db:"finished_at" json:"finished_at,omitempty"`
	ErrorMessage *string         `db:"error_message" json:"error_message,omitempty"`
}

// ReportJobParams stores request-scoped options persisted as JSONB.
type ReportJobParams struct {
	School string       `json:"school"`
	Format ReportFormat `json:"format"`
}

// Value marshals params to JSON for persistence.
func (p ReportJobParams) Value() (driver.Value, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal report job params: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the params struct.
func (p *ReportJobParams) Scan(value interface{}) error {
	if value == nil {
		*p = ReportJobParams{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for ReportJobParams", value)
	}
	if len(data) == 0 {
		*p = ReportJobParams{}
		return nil
	}
	if err := json.Unmarshal(data, p); err != nil {
		return fmt.Errorf("unmarshal report job params: %w", err)
	}
	return nil
}
