package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/healthy-futures/contest-api/internal/service"
	appErrors "github.com/healthy-futures/contest-api/pkg/errors"
	"github.com/healthy-futures/contest-api/pkg/response"
)

// EntryHandler handles daily entry endpoints.
type EntryHandler struct {
	service *service.EntryService
}

// NewEntryHandler creates a new entry handler.
func NewEntryHandler(svc *service.EntryService) *EntryHandler {
	return &EntryHandler{service: svc}
}

// Definition returns the day schema used to render the entry form.
func (h *EntryHandler) Definition(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.service.Definition(), nil)
}

// Get returns a single entry.
func (h *EntryHandler) Get(c *gin.Context) {
	entry, err := h.service.Get(c.Request.Context(), subjectFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, entry, nil)
}

// Create logs a new day for the active identity.
func (h *EntryHandler) Create(c *gin.Context) {
	var req service.EntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	entry, err := h.service.Create(c.Request.Context(), subjectFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, entry)
}

// Update edits an existing entry.
func (h *EntryHandler) Update(c *gin.Context) {
	var req service.EntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	entry, err := h.service.Update(c.Request.Context(), subjectFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, entry, nil)
}

// Delete removes an entry.
func (h *EntryHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), subjectFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}
