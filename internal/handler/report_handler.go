package handler

import (
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/healthy-futures/contest-api/internal/models"
	"github.com/healthy-futures/contest-api/internal/service"
	appErrors "github.com/healthy-futures/contest-api/pkg/errors"
	"github.com/healthy-futures/contest-api/pkg/response"
)

// ReportHandler serves school reports and export jobs.
type ReportHandler struct {
	service  *service.ReportService
	exporter *service.ExportService
}

// NewReportHandler creates a new report handler.
func NewReportHandler(svc *service.ReportService, exporter *service.ExportService) *ReportHandler {
	return &ReportHandler{service: svc, exporter: exporter}
}

// Schools lists the report scopes visible to the caller.
func (h *ReportHandler) Schools(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	schools, err := h.service.Schools(c.Request.Context(), &models.User{
		ID:     claims.UserID,
		Role:   claims.Role,
		School: claims.School,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, schools, nil)
}

// School returns the aggregated contest report for one school.
func (h *ReportHandler) School(c *gin.Context) {
	report, err := h.service.School(c.Request.Context(), subjectFromContext(c), c.Param("school"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, report, nil)
}

// CreateExport queues a background export of a school report.
func (h *ReportHandler) CreateExport(c *gin.Context) {
	var req struct {
		Format models.ReportFormat `json:"format" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	job, err := h.service.CreateExport(c.Request.Context(), subjectFromContext(c), c.Param("school"), req.Format)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusAccepted, job, nil)
}

// GetExport returns the status of an export job.
func (h *ReportHandler) GetExport(c *gin.Context) {
	job, err := h.service.GetExport(c.Request.Context(), subjectFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, job, nil)
}

// Download streams a finished export. The token in the URL is the only
// credential, so finished reports can be fetched from a plain link.
func (h *ReportHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "missing download token"))
		return
	}

	path, err := h.exporter.Open(token)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.FileAttachment(path, filepath.Base(path))
}
