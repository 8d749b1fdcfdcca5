package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/healthy-futures/contest-api/internal/authz"
	"github.com/healthy-futures/contest-api/internal/identity"
	"github.com/healthy-futures/contest-api/internal/models"
	appErrors "github.com/healthy-futures/contest-api/pkg/errors"
)

type userRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, id string) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// CreateUserRequest represents payload for creating users.
type CreateUserRequest struct {
	Email    string          `json:"email" validate:"required,email"`
	FullName string          `json:"full_name" validate:"required"`
	Role     models.UserRole `json:"role" validate:"required,oneof=STUDENT TEACHER BOSS"`
	School   string          `json:"school"`
	Grade    string          `json:"grade"`
	Goal     string          `json:"goal"`
	Active   bool            `json:"active"`
	Password string          `json:"password" validate:"required,min=6"`
}

// UpdateUserRequest payload for updating users.
type UpdateUserRequest struct {
	FullName string `json:"full_name" validate:"required"`
	School   string `json:"school"`
	Grade    string `json:"grade"`
	Goal     string `json:"goal"`
	Active   *bool  `json:"active"`
}

// UserService handles user management workflows. Every mutating operation
// is gated through the evaluator before it touches the repository.
type UserService struct {
	repo      userRepository
	evaluator *authz.Evaluator
	resolver  *identity.Resolver
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService creates an instance of UserService.
func NewUserService(repo userRepository, evaluator *authz.Evaluator, resolver *identity.Resolver, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &UserService{repo: repo, evaluator: evaluator, resolver: resolver, validator: validate, logger: logger}
}

func (s *UserService) authorize(ctx context.Context, sub authz.Subject, action authz.Action, object authz.ObjectType, objectID string) error {
	allowed, err := s.evaluator.Can(ctx, sub, action, object, objectID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "authorization check failed")
	}
	if !allowed {
		return appErrors.Clone(appErrors.ErrForbidden, "not allowed")
	}
	return nil
}

// List returns paginated users. Teachers only see their own school; the
// boss sees everyone.
func (s *UserService) List(ctx context.Context, sub authz.Subject, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	if err := s.authorize(ctx, sub, authz.ActionReview, authz.ObjectUser, authz.IDAll); err != nil {
		return nil, nil, err
	}

	actor, err := s.loadUser(ctx, sub.ActorID)
	if err != nil {
		return nil, nil, err
	}
	if actor.Role == models.RoleTeacher {
		filter.School = actor.School
	}

	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	pagination := &models.Pagination{
		Page:       page,
		PageSize:   pageSize,
		TotalCount: total,
	}

	return users, pagination, nil
}

// Get returns a user by ID. Users can always read themselves and the
// identity they act as; teachers can read their students, the boss anyone.
func (s *UserService) Get(ctx context.Context, sub authz.Subject, id string) (*models.User, error) {
	target, err := s.loadUser(ctx, id)
	if err != nil {
		return nil, err
	}

	if id != sub.ActorID && id != sub.ActiveID {
		actor, err := s.loadUser(ctx, sub.ActorID)
		if err != nil {
			return nil, err
		}
		if actor.Role != models.RoleBoss && !authz.Owns(actor, target) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed")
		}
	}

	return target, nil
}

// Create adds a new user. Teachers can only enroll students into their
// own school.
func (s *UserService) Create(ctx context.Context, sub authz.Subject, req CreateUserRequest, meta models.RequestMeta) (*models.User, error) {
	if err := s.authorize(ctx, sub, authz.ActionCreate, authz.ObjectUser, authz.IDNew); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid create user payload")
	}

	actor, err := s.loadUser(ctx, sub.ActorID)
	if err != nil {
		return nil, err
	}
	if actor.Role == models.RoleTeacher {
		if req.Role != models.RoleStudent {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "teachers can only enroll students")
		}
		req.School = actor.School
	}

	if _, err := s.repo.FindByEmail(ctx, req.Email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already exists")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email uniqueness")
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Email:        strings.ToLower(req.Email),
		FullName:     req.FullName,
		PasswordHash: string(passwordHash),
		Role:         req.Role,
		School:       req.School,
		Grade:        req.Grade,
		Goal:         req.Goal,
		Active:       req.Active,
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	s.audit(ctx, sub.ActorID, models.AuditActionUserCreate, user.ID, user, meta)
	return user, nil
}

// Update edits a user profile. The evaluator only allows editing the
// identity the subject currently acts as.
func (s *UserService) Update(ctx context.Context, sub authz.Subject, id string, req UpdateUserRequest, meta models.RequestMeta) (*models.User, error) {
	if err := s.authorize(ctx, sub, authz.ActionEdit, authz.ObjectUser, id); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid update user payload")
	}

	user, err := s.loadUser(ctx, id)
	if err != nil {
		return nil, err
	}

	user.FullName = req.FullName
	user.School = req.School
	user.Grade = req.Grade
	user.Goal = req.Goal
	if req.Active != nil {
		user.Active = *req.Active
	}

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update user")
	}

	s.audit(ctx, sub.ActorID, models.AuditActionUserUpdate, user.ID, user, meta)
	return user, nil
}

// Delete deactivates a user account.
func (s *UserService) Delete(ctx context.Context, sub authz.Subject, id string, meta models.RequestMeta) error {
	if err := s.authorize(ctx, sub, authz.ActionDelete, authz.ObjectUser, id); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete user")
	}

	s.audit(ctx, sub.ActorID, models.AuditActionUserDelete, id, nil, meta)
	return nil
}

// Switch changes the acting identity. Switching to yourself clears the
// token; switching to an owned student issues a fresh one.
func (s *UserService) Switch(ctx context.Context, sub authz.Subject, carrier identity.Carrier, targetID string, meta models.RequestMeta) (identity.SwitchResult, error) {
	if err := s.authorize(ctx, sub, authz.ActionSwitch, authz.ObjectUser, targetID); err != nil {
		return identity.SwitchResult{}, err
	}

	result, err := s.resolver.Switch(carrier, sub.ActorID, targetID)
	if err != nil {
		return identity.SwitchResult{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to switch identity")
	}

	s.audit(ctx, sub.ActorID, models.AuditActionIdentitySwitch, targetID, result, meta)
	return result, nil
}

func (s *UserService) loadUser(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

func (s *UserService) audit(ctx context.Context, actorID, action, resourceID string, payload interface{}, meta models.RequestMeta) {
	var body []byte
	if payload != nil {
		body, _ = json.Marshal(payload)
	}
	if err := s.repo.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     action,
		Resource:   "user",
		ResourceID: &resourceID,
		NewValues:  body,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", action), zap.Error(err))
	}
}
