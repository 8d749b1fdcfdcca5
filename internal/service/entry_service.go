package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/healthy-futures/contest-api/internal/authz"
	"github.com/healthy-futures/contest-api/internal/contest"
	"github.com/healthy-futures/contest-api/internal/daydef"
	"github.com/healthy-futures/contest-api/internal/models"
	appErrors "github.com/healthy-futures/contest-api/pkg/errors"
)

type entryRepository interface {
	FindByID(ctx context.Context, id string) (*models.Entry, error)
	FindByAuthorAndDate(ctx context.Context, authorID string, date time.Time) (*models.Entry, error)
	ListByAuthorMonth(ctx context.Context, authorID string, year int, month time.Month) ([]models.Entry, error)
	Create(ctx context.Context, entry *models.Entry) error
	Update(ctx context.Context, entry *models.Entry) error
	Delete(ctx context.Context, id string) error
}

type entryUserDirectory interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type reportInvalidator interface {
	InvalidateSchool(ctx context.Context, school string)
}

// EntryRequest is the payload for logging or editing a day.
type EntryRequest struct {
	Date            string `json:"date" validate:"required,datetime=2006-01-02"`
	MinutesModerate int    `json:"minutes_moderate" validate:"min=0"`
	MinutesVigorous int    `json:"minutes_vigorous" validate:"min=0"`
	SugaryDrinks    int    `json:"sugary_drinks" validate:"min=0"`
	FruitVeggies    int    `json:"fruit_veggies" validate:"min=0"`
	Notes           string `json:"notes" validate:"max=2000"`
}

// EntryService manages daily activity entries. Writes always happen as
// the active identity, so a teacher acting as a student logs days that
// belong to the student.
type EntryService struct {
	repo        entryRepository
	users       entryUserDirectory
	evaluator   *authz.Evaluator
	schedule    *contest.Schedule
	definition  *daydef.Definition
	invalidator reportInvalidator
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewEntryService constructs the service.
func NewEntryService(repo entryRepository, users entryUserDirectory, evaluator *authz.Evaluator, schedule *contest.Schedule, definition *daydef.Definition, invalidator reportInvalidator, validate *validator.Validate, logger *zap.Logger) *EntryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if definition == nil {
		definition = daydef.Default()
	}
	return &EntryService{
		repo:        repo,
		users:       users,
		evaluator:   evaluator,
		schedule:    schedule,
		definition:  definition,
		invalidator: invalidator,
		validator:   validate,
		logger:      logger,
	}
}

// Definition exposes the day schema for clients to render the entry form.
func (s *EntryService) Definition() *daydef.Definition {
	return s.definition
}

// Get returns a single entry the subject may review.
func (s *EntryService) Get(ctx context.Context, sub authz.Subject, id string) (*models.Entry, error) {
	if err := s.authorize(ctx, sub, authz.ActionReview, id); err != nil {
		return nil, err
	}
	return s.loadEntry(ctx, id)
}

// Create logs a new day for the active identity.
func (s *EntryService) Create(ctx context.Context, sub authz.Subject, req EntryRequest) (*models.Entry, error) {
	if err := s.authorize(ctx, sub, authz.ActionCreate, authz.IDNew); err != nil {
		return nil, err
	}

	entry, err := s.buildEntry(sub.ActiveID, req)
	if err != nil {
		return nil, err
	}

	if !s.schedule.Contains(entry.Date) {
		return nil, appErrors.Clone(appErrors.ErrContestClosed, "date is outside the contest month")
	}

	if _, err := s.repo.FindByAuthorAndDate(ctx, entry.AuthorID, entry.Date); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "an entry for this day already exists")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing entry")
	}

	if err := s.repo.Create(ctx, entry); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create entry")
	}

	s.invalidate(ctx, entry.AuthorID)
	return entry, nil
}

// Update edits an existing entry. The date of an entry is fixed; only
// the logged values change.
func (s *EntryService) Update(ctx context.Context, sub authz.Subject, id string, req EntryRequest) (*models.Entry, error) {
	if err := s.authorize(ctx, sub, authz.ActionEdit, id); err != nil {
		return nil, err
	}

	entry, err := s.loadEntry(ctx, id)
	if err != nil {
		return nil, err
	}

	entry.MinutesModerate = req.MinutesModerate
	entry.MinutesVigorous = req.MinutesVigorous
	entry.SugaryDrinks = req.SugaryDrinks
	entry.FruitVeggies = req.FruitVeggies
	entry.Notes = req.Notes

	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid entry payload")
	}
	if err := s.definition.Validate(entry); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}

	if err := s.repo.Update(ctx, entry); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update entry")
	}

	s.invalidate(ctx, entry.AuthorID)
	return entry, nil
}

// Delete removes an entry.
func (s *EntryService) Delete(ctx context.Context, sub authz.Subject, id string) error {
	if err := s.authorize(ctx, sub, authz.ActionDelete, id); err != nil {
		return err
	}

	entry, err := s.loadEntry(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete entry")
	}

	s.invalidate(ctx, entry.AuthorID)
	return nil
}

func (s *EntryService) authorize(ctx context.Context, sub authz.Subject, action authz.Action, objectID string) error {
	allowed, err := s.evaluator.Can(ctx, sub, action, authz.ObjectEntry, objectID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "authorization check failed")
	}
	if !allowed {
		return appErrors.Clone(appErrors.ErrForbidden, "not allowed")
	}
	return nil
}

func (s *EntryService) buildEntry(authorID string, req EntryRequest) (*models.Entry, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid entry payload")
	}

	date, err := time.ParseInLocation("2006-01-02", req.Date, time.UTC)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid entry date")
	}

	entry := &models.Entry{
		AuthorID:        authorID,
		Date:            date,
		MinutesModerate: req.MinutesModerate,
		MinutesVigorous: req.MinutesVigorous,
		SugaryDrinks:    req.SugaryDrinks,
		FruitVeggies:    req.FruitVeggies,
		Notes:           req.Notes,
	}

	if err := s.definition.Validate(entry); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}
	return entry, nil
}

func (s *EntryService) loadEntry(ctx context.Context, id string) (*models.Entry, error) {
	entry, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "entry not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load entry")
	}
	return entry, nil
}

// invalidate drops the cached report of the author's school.
func (s *EntryService) invalidate(ctx context.Context, authorID string) {
	if s.invalidator == nil {
		return
	}
	author, err := s.users.FindByID(ctx, authorID)
	if err != nil {
		s.logger.Warn("failed to load author for cache invalidation", zap.Error(err))
		return
	}
	if author.School == "" {
		return
	}
	s.invalidator.InvalidateSchool(ctx, author.School)
}
