package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/healthy-futures/contest-api/internal/authz"
	"github.com/healthy-futures/contest-api/internal/contest"
	"github.com/healthy-futures/contest-api/internal/identity"
	"github.com/healthy-futures/contest-api/internal/middleware"
	"github.com/healthy-futures/contest-api/internal/models"
	"github.com/healthy-futures/contest-api/internal/service"
	"github.com/healthy-futures/contest-api/pkg/config"
)

// fakeStore implements the user and entry repository surfaces the
// services need, backed by plain maps.
type fakeStore struct {
	users   map[string]*models.User
	byEmail map[string]*models.User
	entries map[string]*models.Entry
	tokens  map[string]*models.RefreshToken
	audits  []*models.AuditLog
}

func newFakeStore(users ...*models.User) *fakeStore {
	s := &fakeStore{
		users:   make(map[string]*models.User),
		byEmail: make(map[string]*models.User),
		entries: make(map[string]*models.Entry),
		tokens:  make(map[string]*models.RefreshToken),
	}
	for _, u := range users {
		s.users[u.ID] = u
		s.byEmail[u.Email] = u
	}
	return s
}

func (s *fakeStore) FindByID(ctx context.Context, id string) (*models.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return u, nil
}

func (s *fakeStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	u, ok := s.byEmail[email]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return u, nil
}

func (s *fakeStore) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	return nil, 0, nil
}

func (s *fakeStore) Create(ctx context.Context, user *models.User) error {
	s.users[user.ID] = user
	s.byEmail[user.Email] = user
	return nil
}

func (s *fakeStore) Update(ctx context.Context, user *models.User) error {
	s.users[user.ID] = user
	return nil
}

func (s *fakeStore) Delete(ctx context.Context, id string) error {
	delete(s.users, id)
	return nil
}

func (s *fakeStore) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error { return nil }

func (s *fakeStore) UpdatePassword(ctx context.Context, id, hash string, updatedAt time.Time) error {
	return nil
}

func (s *fakeStore) RevokeUserRefreshTokens(ctx context.Context, userID string) error { return nil }

func (s *fakeStore) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	s.tokens[token.Token] = token
	return nil
}

func (s *fakeStore) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	rt, ok := s.tokens[token]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return rt, nil
}

func (s *fakeStore) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	return nil
}

func (s *fakeStore) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	s.audits = append(s.audits, log)
	return nil
}

func (s *fakeStore) auditCount(action string) int {
	n := 0
	for _, log := range s.audits {
		if log.Action == action {
			n++
		}
	}
	return n
}

type fakeEntryStore struct {
	entries map[string]*models.Entry
}

func (s *fakeEntryStore) FindByID(ctx context.Context, id string) (*models.Entry, error) {
	e, ok := s.entries[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return e, nil
}

func (s *fakeEntryStore) FindByAuthorAndDate(ctx context.Context, authorID string, date time.Time) (*models.Entry, error) {
	for _, e := range s.entries {
		if e.AuthorID == authorID && e.Date.Equal(date) {
			return e, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *fakeEntryStore) ListByAuthorMonth(ctx context.Context, authorID string, year int, month time.Month) ([]models.Entry, error) {
	return nil, nil
}

func (s *fakeEntryStore) Create(ctx context.Context, entry *models.Entry) error {
	if entry.ID == "" {
		entry.ID = "e-created"
	}
	s.entries[entry.ID] = entry
	return nil
}

func (s *fakeEntryStore) Update(ctx context.Context, entry *models.Entry) error {
	s.entries[entry.ID] = entry
	return nil
}

func (s *fakeEntryStore) Delete(ctx context.Context, id string) error {
	delete(s.entries, id)
	return nil
}

func hashFor(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func buildRouter(t *testing.T, store *fakeStore, entryStore *fakeEntryStore) (*gin.Engine, *service.AuthService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	identityCfg := config.IdentityConfig{
		CookieName:  "active_user",
		CookiePath:  "/",
		TokenSecret: "switch-secret",
		TokenTTL:    time.Hour,
	}
	contestCfg := config.ContestConfig{
		Year:               2026,
		Month:              time.September,
		MinExerciseMinutes: 60,
		MaxSugaryDrinks:    2,
		ForceOpen:          true,
	}

	schedule := contest.NewSchedule(contestCfg)
	evaluator := authz.NewEvaluator(store, entryStore, schedule)
	resolver := identity.NewResolver(identity.NewTokenSigner(identityCfg.TokenSecret), identityCfg.TokenTTL, nil)

	authSvc := service.NewAuthService(store, nil, nil, service.AuthConfig{
		AccessTokenSecret:  "access-secret",
		AccessTokenExpiry:  time.Hour,
		RefreshTokenExpiry: 24 * time.Hour,
	})
	userSvc := service.NewUserService(store, evaluator, resolver, nil, nil)
	entrySvc := service.NewEntryService(entryStore, store, evaluator, schedule, nil, nil, nil, nil)

	userHandler := NewUserHandler(userSvc, identityCfg, false)
	entryHandler := NewEntryHandler(entrySvc)

	router := gin.New()
	authed := router.Group("/", middleware.JWT(authSvc), middleware.ActiveIdentity(resolver, identityCfg, false))
	authed.POST("/users", userHandler.Create)
	authed.POST("/users/:id/switch", userHandler.Switch)
	authed.POST("/entries", middleware.Audit(store, models.AuditActionEntryCreate, "entry"), entryHandler.Create)

	return router, authSvc
}

func TestSwitchAndActAsStudent(t *testing.T) {
	teacher := &models.User{ID: "t1", Email: "teach@school.test", PasswordHash: hashFor(t, "secret123"), FullName: "Teacher", Role: models.RoleTeacher, School: "colony", Active: true}
	student := &models.User{ID: "s1", Email: "kid@school.test", FullName: "Kid", Role: models.RoleStudent, School: "colony", Grade: "6", Active: true}
	store := newFakeStore(teacher, student)
	entryStore := &fakeEntryStore{entries: make(map[string]*models.Entry)}

	router, authSvc := buildRouter(t, store, entryStore)

	login, err := authSvc.Login(context.Background(), models.LoginRequest{Email: "teach@school.test", Password: "secret123"})
	require.NoError(t, err)
	bearer := "Bearer " + login.AccessToken

	// switch into the student
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/users/s1/switch", nil)
	req.Header.Set("Authorization", bearer)
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)
	var switchCookie *http.Cookie
	for _, ck := range cookies {
		if ck.Name == "active_user" {
			switchCookie = ck
		}
	}
	require.NotNil(t, switchCookie)
	assert.NotEmpty(t, switchCookie.Value)

	// logging a day now writes it for the student
	payload, _ := json.Marshal(map[string]interface{}{
		"date":             "2026-09-03",
		"minutes_moderate": 45,
		"minutes_vigorous": 20,
	})
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/entries", bytes.NewReader(payload))
	req.Header.Set("Authorization", bearer)
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(switchCookie)
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	require.Len(t, entryStore.entries, 1)
	for _, entry := range entryStore.entries {
		assert.Equal(t, "s1", entry.AuthorID)
	}

	// switching back to yourself clears the cookie
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/users/t1/switch", nil)
	req.Header.Set("Authorization", bearer)
	req.AddCookie(switchCookie)
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	cleared := false
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == "active_user" && ck.MaxAge < 0 {
			cleared = true
		}
	}
	assert.True(t, cleared)
}

func TestSwitchDeniedForForeignStudent(t *testing.T) {
	teacher := &models.User{ID: "t1", Email: "teach@school.test", PasswordHash: hashFor(t, "secret123"), FullName: "Teacher", Role: models.RoleTeacher, School: "colony", Active: true}
	foreign := &models.User{ID: "s2", Email: "far@school.test", FullName: "Far", Role: models.RoleStudent, School: "goldenview", Grade: "7", Active: true}
	store := newFakeStore(teacher, foreign)
	entryStore := &fakeEntryStore{entries: make(map[string]*models.Entry)}

	router, authSvc := buildRouter(t, store, entryStore)

	login, err := authSvc.Login(context.Background(), models.LoginRequest{Email: "teach@school.test", Password: "secret123"})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/users/s2/switch", nil)
	req.Header.Set("Authorization", "Bearer "+login.AccessToken)
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestUserCreateWritesSingleAuditRow(t *testing.T) {
	teacher := &models.User{ID: "t1", Email: "teach@school.test", PasswordHash: hashFor(t, "secret123"), FullName: "Teacher", Role: models.RoleTeacher, School: "colony", Active: true}
	store := newFakeStore(teacher)
	entryStore := &fakeEntryStore{entries: make(map[string]*models.Entry)}
	router, authSvc := buildRouter(t, store, entryStore)

	login, err := authSvc.Login(context.Background(), models.LoginRequest{Email: "teach@school.test", Password: "secret123"})
	require.NoError(t, err)

	payload, _ := json.Marshal(map[string]interface{}{
		"email":     "kid@school.test",
		"full_name": "New Kid",
		"role":      "STUDENT",
		"grade":     "6",
		"password":  "secret123",
	})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/users", bytes.NewReader(payload))
	req.Header.Set("Authorization", "Bearer "+login.AccessToken)
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// the service writes the trail row itself; no middleware doubles it
	assert.Equal(t, 1, store.auditCount(models.AuditActionUserCreate))
}

func TestEntryCreateIsAudited(t *testing.T) {
	student := &models.User{ID: "s1", Email: "kid@school.test", PasswordHash: hashFor(t, "secret123"), FullName: "Kid", Role: models.RoleStudent, School: "colony", Grade: "6", Active: true}
	store := newFakeStore(student)
	entryStore := &fakeEntryStore{entries: make(map[string]*models.Entry)}
	router, authSvc := buildRouter(t, store, entryStore)

	login, err := authSvc.Login(context.Background(), models.LoginRequest{Email: "kid@school.test", Password: "secret123"})
	require.NoError(t, err)

	payload, _ := json.Marshal(map[string]interface{}{"date": "2026-09-04", "minutes_moderate": 30})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/entries", bytes.NewReader(payload))
	req.Header.Set("Authorization", "Bearer "+login.AccessToken)
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	assert.Equal(t, 1, store.auditCount(models.AuditActionEntryCreate))
}

func TestRequestWithoutTokenIsUnauthorized(t *testing.T) {
	store := newFakeStore()
	entryStore := &fakeEntryStore{entries: make(map[string]*models.Entry)}
	router, _ := buildRouter(t, store, entryStore)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/entries", nil)
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
