package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/healthy-futures/contest-api/internal/authz"
	"github.com/healthy-futures/contest-api/internal/contest"
	"github.com/healthy-futures/contest-api/internal/models"
	"github.com/healthy-futures/contest-api/pkg/config"
	appErrors "github.com/healthy-futures/contest-api/pkg/errors"
)

// CalendarService builds the per-student month view of the contest.
type CalendarService struct {
	entries  entryRepository
	users    entryUserDirectory
	schedule *contest.Schedule
	contest  config.ContestConfig
	logger   *zap.Logger
	now      func() time.Time
}

// NewCalendarService constructs the service.
func NewCalendarService(entries entryRepository, users entryUserDirectory, schedule *contest.Schedule, cfg config.ContestConfig, logger *zap.Logger) *CalendarService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CalendarService{
		entries:  entries,
		users:    users,
		schedule: schedule,
		contest:  cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Month returns the contest month for a student with one cell per day.
// Students see their own calendar; a teacher sees the calendars of their
// students, the boss sees anyone's.
func (s *CalendarService) Month(ctx context.Context, sub authz.Subject, studentID string) (*models.CalendarMonth, error) {
	if studentID == "" {
		studentID = sub.ActiveID
	}

	if studentID != sub.ActorID && studentID != sub.ActiveID {
		actor, err := s.loadUser(ctx, sub.ActorID)
		if err != nil {
			return nil, err
		}
		target, err := s.loadUser(ctx, studentID)
		if err != nil {
			return nil, err
		}
		if actor.Role != models.RoleBoss && !authz.Owns(actor, target) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed")
		}
	}

	entries, err := s.entries.ListByAuthorMonth(ctx, studentID, s.contest.Year, s.contest.Month)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load entries")
	}

	byDay := make(map[string]*models.Entry, len(entries))
	for i := range entries {
		byDay[entries[i].Date.Format("2006-01-02")] = &entries[i]
	}

	start, end := s.schedule.Window()
	today := s.now().UTC().Truncate(24 * time.Hour)

	month := &models.CalendarMonth{
		StudentID: studentID,
		Year:      s.contest.Year,
		Month:     s.contest.Month,
		Days:      make([]models.CalendarDay, 0, s.schedule.Days()),
	}

	for day := start; day.Before(end); day = day.AddDate(0, 0, 1) {
		cell := models.CalendarDay{
			Date:   day,
			Future: day.After(today),
		}
		if entry, ok := byDay[day.Format("2006-01-02")]; ok {
			cell.EntryID = entry.ID
			cell.Logged = true
			cell.Complete = entry.Complete(s.contest.MinExerciseMinutes, s.contest.MaxSugaryDrinks)
			month.DaysLogged++
			if cell.Complete {
				month.DaysComplete++
			}
		}
		month.Days = append(month.Days, cell)
	}

	return month, nil
}

func (s *CalendarService) loadUser(ctx context.Context, id string) (*models.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}
