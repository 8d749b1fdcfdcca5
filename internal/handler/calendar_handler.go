package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/healthy-futures/contest-api/internal/service"
	"github.com/healthy-futures/contest-api/pkg/response"
)

// CalendarHandler serves the contest month view.
type CalendarHandler struct {
	service *service.CalendarService
}

// NewCalendarHandler creates a new calendar handler.
func NewCalendarHandler(svc *service.CalendarService) *CalendarHandler {
	return &CalendarHandler{service: svc}
}

// Month returns the contest calendar. Without a student query parameter
// it shows the active identity's own month.
func (h *CalendarHandler) Month(c *gin.Context) {
	month, err := h.service.Month(c.Request.Context(), subjectFromContext(c), c.Query("student"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, month, nil)
}
