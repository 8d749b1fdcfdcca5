package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/healthy-futures/contest-api/internal/authz"
	"github.com/healthy-futures/contest-api/internal/contest"
	"github.com/healthy-futures/contest-api/internal/models"
	"github.com/healthy-futures/contest-api/internal/repository"
	"github.com/healthy-futures/contest-api/pkg/config"
	appErrors "github.com/healthy-futures/contest-api/pkg/errors"
	"github.com/healthy-futures/contest-api/pkg/jobs"
)

type reportRepository interface {
	SchoolSummary(ctx context.Context, school string, start, end time.Time, minExerciseMinutes, maxSugaryDrinks int) ([]models.SchoolReportRow, error)
	Schools(ctx context.Context) ([]string, error)
	CreateJob(ctx context.Context, job *models.ReportJob) error
	FindJobByID(ctx context.Context, id string) (*models.ReportJob, error)
	UpdateJob(ctx context.Context, id string, params repository.UpdateJobParams) error
	ListQueuedJobs(ctx context.Context, limit int) ([]models.ReportJob, error)
}

type reportCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// ReportService serves school progress reports. Fresh aggregates are
// cached in Redis for a short TTL and invalidated whenever a student of
// the school saves a day.
type ReportService struct {
	repo      reportRepository
	cache     reportCache
	evaluator *authz.Evaluator
	exporter  *ExportService
	queue     jobEnqueuer
	schedule  *contest.Schedule
	contest   config.ContestConfig
	cacheTTL  time.Duration
	metrics   *MetricsService
	logger    *zap.Logger
}

// NewReportService constructs the service. The queue may be nil in tests;
// exports then fail fast instead of hanging.
func NewReportService(repo reportRepository, cache reportCache, evaluator *authz.Evaluator, exporter *ExportService, queue jobEnqueuer, schedule *contest.Schedule, contestCfg config.ContestConfig, cacheTTL time.Duration, metrics *MetricsService, logger *zap.Logger) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}
	return &ReportService{
		repo:      repo,
		cache:     cache,
		evaluator: evaluator,
		exporter:  exporter,
		queue:     queue,
		schedule:  schedule,
		contest:   contestCfg,
		cacheTTL:  cacheTTL,
		metrics:   metrics,
		logger:    logger,
	}
}

// School returns the aggregated contest report for a school.
func (s *ReportService) School(ctx context.Context, sub authz.Subject, school string) (*models.SchoolReport, error) {
	if err := s.authorize(ctx, sub, school); err != nil {
		return nil, err
	}

	key := cacheKeyForSchool(school)
	if s.cache != nil {
		var cached models.SchoolReport
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			s.metrics.RecordCacheOperation(true)
			return &cached, nil
		} else if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("report cache lookup failed", zap.Error(err))
		}
		s.metrics.RecordCacheOperation(false)
	}

	report, err := s.build(ctx, school)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, report, s.cacheTTL); err != nil {
			s.logger.Warn("report cache store failed", zap.Error(err))
		}
	}
	return report, nil
}

// Schools returns the report scopes visible to the subject. The boss
// sees every school; a teacher sees only their own.
func (s *ReportService) Schools(ctx context.Context, actor *models.User) ([]string, error) {
	switch actor.Role {
	case models.RoleBoss:
		schools, err := s.repo.Schools(ctx)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list schools")
		}
		return schools, nil
	case models.RoleTeacher:
		if actor.School == "" {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed")
		}
		return []string{actor.School}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed")
	}
}

// InvalidateSchool drops the cached report for a school.
func (s *ReportService) InvalidateSchool(ctx context.Context, school string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, cacheKeyForSchool(school)); err != nil {
		s.logger.Warn("report cache invalidation failed", zap.String("school", school), zap.Error(err))
	}
}

// CreateExport queues a background export of the school report.
func (s *ReportService) CreateExport(ctx context.Context, sub authz.Subject, school string, format models.ReportFormat) (*models.ReportJob, error) {
	if !format.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}
	if err := s.authorize(ctx, sub, school); err != nil {
		return nil, err
	}

	job := &models.ReportJob{
		Params:    models.ReportJobParams{School: school, Format: format},
		Status:    models.ReportStatusQueued,
		CreatedBy: sub.ActorID,
	}
	if err := s.repo.CreateJob(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create export job")
	}

	if s.queue == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "export queue unavailable")
	}
	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: "report_export"}); err != nil {
		s.failJob(ctx, job.ID, err.Error())
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue export job")
	}
	return job, nil
}

// RecoverQueuedJobs re-enqueues export jobs a previous process left in the
// queued state, oldest first. Called once at startup, after the queue is
// running.
func (s *ReportService) RecoverQueuedJobs(ctx context.Context, limit int) (int, error) {
	if s.queue == nil {
		return 0, nil
	}
	queued, err := s.repo.ListQueuedJobs(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("list queued export jobs: %w", err)
	}
	recovered := 0
	for _, job := range queued {
		if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: "report_export"}); err != nil {
			s.failJob(ctx, job.ID, err.Error())
			s.logger.Warn("failed to re-enqueue export job", zap.String("job_id", job.ID), zap.Error(err))
			continue
		}
		recovered++
	}
	return recovered, nil
}

// GetExport returns the status of an export job. Only the creator and
// subjects allowed to read the school's report may see it.
func (s *ReportService) GetExport(ctx context.Context, sub authz.Subject, id string) (*models.ReportJob, error) {
	job, err := s.repo.FindJobByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load export job")
	}

	if job.CreatedBy != sub.ActorID {
		if err := s.authorize(ctx, sub, job.Params.School); err != nil {
			return nil, err
		}
	}
	return job, nil
}

// ProcessJob is the queue handler for report exports.
func (s *ReportService) ProcessJob(ctx context.Context, job jobs.Job) error {
	started := time.Now()

	stored, err := s.repo.FindJobByID(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("load export job %s: %w", job.ID, err)
	}

	processing := models.ReportStatusProcessing
	if err := s.repo.UpdateJob(ctx, job.ID, repository.UpdateJobParams{Status: &processing}); err != nil {
		s.logger.Warn("failed to mark export job processing", zap.Error(err))
	}

	report, err := s.build(ctx, stored.Params.School)
	if err != nil {
		s.failJob(ctx, job.ID, err.Error())
		s.metrics.ObserveExport(string(stored.Params.Format), "failed", time.Since(started))
		return err
	}

	url, err := s.exporter.Export(job.ID, report, stored.Params.Format)
	if err != nil {
		s.failJob(ctx, job.ID, err.Error())
		s.metrics.ObserveExport(string(stored.Params.Format), "failed", time.Since(started))
		return err
	}

	finished := models.ReportStatusFinished
	now := time.Now().UTC()
	if err := s.repo.UpdateJob(ctx, job.ID, repository.UpdateJobParams{Status: &finished, ResultURL: &url, FinishedAt: &now}); err != nil {
		return fmt.Errorf("finalize export job %s: %w", job.ID, err)
	}

	s.metrics.ObserveExport(string(stored.Params.Format), "finished", time.Since(started))
	s.logger.Info("report export finished",
		zap.String("job_id", job.ID),
		zap.String("school", stored.Params.School),
		zap.String("format", string(stored.Params.Format)))
	return nil
}

func (s *ReportService) build(ctx context.Context, school string) (*models.SchoolReport, error) {
	start, end := s.schedule.Window()
	rows, err := s.repo.SchoolSummary(ctx, school, start, end, s.contest.MinExerciseMinutes, s.contest.MaxSugaryDrinks)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate school report")
	}

	report := &models.SchoolReport{
		School:      school,
		Year:        s.contest.Year,
		Month:       s.contest.Month,
		Students:    rows,
		GeneratedAt: time.Now().UTC(),
	}
	for _, row := range rows {
		report.TotalDaysLogged += row.DaysLogged
		report.TotalDaysComplete += row.DaysComplete
		report.TotalExerciseMinutes += row.ExerciseMinutes
	}
	return report, nil
}

func (s *ReportService) authorize(ctx context.Context, sub authz.Subject, school string) error {
	allowed, err := s.evaluator.Can(ctx, sub, authz.ActionReview, authz.ObjectReport, school)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "authorization check failed")
	}
	if !allowed {
		return appErrors.Clone(appErrors.ErrForbidden, "not allowed")
	}
	return nil
}

func (s *ReportService) failJob(ctx context.Context, id, message string) {
	failed := models.ReportStatusFailed
	now := time.Now().UTC()
	if err := s.repo.UpdateJob(ctx, id, repository.UpdateJobParams{Status: &failed, ErrorMessage: &message, FinishedAt: &now}); err != nil {
		s.logger.Warn("failed to mark export job failed", zap.Error(err))
	}
}

func cacheKeyForSchool(school string) string {
	return fmt.Sprintf("report:school:%s", school)
}
