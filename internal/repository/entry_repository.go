package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/healthy-futures/contest-api/internal/models"
)

const entryColumns = `id, author_id, entry_date, minutes_moderate, minutes_vigorous, sugary_drinks, fruit_veggies, notes, created_at, updated_at`

// EntryRepository handles persistence for daily activity entries.
type EntryRepository struct {
	db *sqlx.DB
}

// NewEntryRepository constructs the repository.
func NewEntryRepository(db *sqlx.DB) *EntryRepository {
	return &EntryRepository{db: db}
}

// FindByID returns an entry by identifier.
func (r *EntryRepository) FindByID(ctx context.Context, id string) (*models.Entry, error) {
	query := fmt.Sprintf(`SELECT %s FROM entries WHERE id = $1 LIMIT 1`, entryColumns)
	var entry models.Entry
	if err := r.db.GetContext(ctx, &entry, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find entry by id: %w", err)
	}
	return &entry, nil
}

// FindByAuthorAndDate returns the entry a student logged for a calendar date.
func (r *EntryRepository) FindByAuthorAndDate(ctx context.Context, authorID string, date time.Time) (*models.Entry, error) {
	query := fmt.Sprintf(`SELECT %s FROM entries WHERE author_id = $1 AND entry_date = $2 LIMIT 1`, entryColumns)
	var entry models.Entry
	if err := r.db.GetContext(ctx, &entry, query, authorID, date); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find entry by author and date: %w", err)
	}
	return &entry, nil
}

// List returns entries matching the provided filter ordered by date.
func (r *EntryRepository) List(ctx context.Context, filter models.EntryFilter) ([]models.Entry, int, error) {
	base := `FROM entries WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.AuthorID != "" {
		conditions = append(conditions, fmt.Sprintf("author_id = $%d", len(args)+1))
		args = append(args, filter.AuthorID)
	}
	if filter.DateFrom != nil {
		conditions = append(conditions, fmt.Sprintf("entry_date >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		conditions = append(conditions, fmt.Sprintf("entry_date <= $%d", len(args)+1))
		args = append(args, *filter.DateTo)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 31
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY entry_date ASC LIMIT %d OFFSET %d", entryColumns, base, pageSize, offset)

	var entries []models.Entry
	if err := r.db.SelectContext(ctx, &entries, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list entries: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count entries: %w", err)
	}

	return entries, total, nil
}

// ListByAuthorMonth returns all entries a student logged in the given month.
func (r *EntryRepository) ListByAuthorMonth(ctx context.Context, authorID string, year int, month time.Month) ([]models.Entry, error) {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	query := fmt.Sprintf(`SELECT %s FROM entries WHERE author_id = $1 AND entry_date >= $2 AND entry_date < $3 ORDER BY entry_date ASC`, entryColumns)

	var entries []models.Entry
	if err := r.db.SelectContext(ctx, &entries, query, authorID, start, end); err != nil {
		return nil, fmt.Errorf("list entries by month: %w", err)
	}
	return entries, nil
}

// Create inserts a new entry. The unique (author_id, entry_date) index
// rejects a second entry for the same day.
func (r *EntryRepository) Create(ctx context.Context, entry *models.Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now

	const query = `INSERT INTO entries (id, author_id, entry_date, minutes_moderate, minutes_vigorous, sugary_drinks, fruit_veggies, notes, created_at, updated_at) VALUES (:id, :author_id, :entry_date, :minutes_moderate, :minutes_vigorous, :sugary_drinks, :fruit_veggies, :notes, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("create entry: %w", err)
	}
	return nil
}

// Update updates the mutable fields of an entry.
func (r *EntryRepository) Update(ctx context.Context, entry *models.Entry) error {
	entry.UpdatedAt = time.Now().UTC()
	const query = `UPDATE entries SET minutes_moderate = :minutes_moderate, minutes_vigorous = :minutes_vigorous, sugary_drinks = :sugary_drinks, fruit_veggies = :fruit_veggies, notes = :notes, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("update entry: %w", err)
	}
	return nil
}

// Delete removes an entry.
func (r *EntryRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM entries WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	return nil
}
