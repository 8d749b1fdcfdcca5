package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/healthy-futures/contest-api/internal/identity"
	"github.com/healthy-futures/contest-api/internal/models"
	"github.com/healthy-futures/contest-api/internal/service"
	"github.com/healthy-futures/contest-api/pkg/config"
	appErrors "github.com/healthy-futures/contest-api/pkg/errors"
	"github.com/healthy-futures/contest-api/pkg/response"
)

// UserHandler handles user CRUD and identity switch endpoints.
type UserHandler struct {
	service  *service.UserService
	identity config.IdentityConfig
	secure   bool
}

// NewUserHandler creates a new user handler.
func NewUserHandler(svc *service.UserService, identityCfg config.IdentityConfig, secure bool) *UserHandler {
	return &UserHandler{service: svc, identity: identityCfg, secure: secure}
}

// List returns users with pagination and filtering.
func (h *UserHandler) List(c *gin.Context) {
	var filter models.UserFilter

	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("page_size", "20")); err == nil {
		filter.PageSize = size
	}

	if role := c.Query("role"); role != "" {
		r := models.UserRole(role)
		filter.Role = &r
	}

	if active := c.Query("active"); active != "" {
		if val, err := strconv.ParseBool(active); err == nil {
			filter.Active = &val
		}
	}

	filter.School = c.Query("school")
	filter.Search = c.Query("search")
	filter.SortBy = c.Query("sort_by")
	filter.SortOrder = c.Query("sort_order")

	users, pagination, err := h.service.List(c.Request.Context(), subjectFromContext(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, users, pagination)
}

// Get returns a single user.
func (h *UserHandler) Get(c *gin.Context) {
	user, err := h.service.Get(c.Request.Context(), subjectFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, user, nil)
}

// Create adds a new user.
func (h *UserHandler) Create(c *gin.Context) {
	var req service.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	user, err := h.service.Create(c.Request.Context(), subjectFromContext(c), req, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, user)
}

// Update edits a user profile.
func (h *UserHandler) Update(c *gin.Context) {
	var req service.UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	user, err := h.service.Update(c.Request.Context(), subjectFromContext(c), c.Param("id"), req, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, user, nil)
}

// Delete deactivates a user account.
func (h *UserHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), subjectFromContext(c), c.Param("id"), requestMeta(c)); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// Switch changes the acting identity to the target user and redirects
// the client home so the whole UI re-renders as that identity.
func (h *UserHandler) Switch(c *gin.Context) {
	carrier := identity.NewCookieCarrier(c, h.identity, h.secure)

	result, err := h.service.Switch(c.Request.Context(), subjectFromContext(c), carrier, c.Param("id"), requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, result, nil)
}
