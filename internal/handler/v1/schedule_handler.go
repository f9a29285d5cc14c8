package v1

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/slotwise-health/slotwise/internal/domain/schedule"
	"github.com/slotwise-health/slotwise/internal/handler/middleware"
	"github.com/slotwise-health/slotwise/internal/service"
)

type ScheduleHandler struct {
	scheduleSvc *service.ScheduleService
}

func NewScheduleHandler(scheduleSvc *service.ScheduleService) *ScheduleHandler {
	return &ScheduleHandler{scheduleSvc: scheduleSvc}
}

type applyTemplateRequest struct {
	RepeatUntil time.Time               `json:"repeat_until" binding:"required"`
	Template    schedule.WeeklyTemplate `json:"template" binding:"required"`
}

// ApplyTemplate expands a weekly availability template into dated slots for
// one doctor, replacing each generated day.
func (h *ScheduleHandler) ApplyTemplate(c *gin.Context) {
	claims := middleware.ClaimsFrom(c)

	doctorID, ok := parseUUID(c, "doctorId")
	if !ok {
		return
	}

	var req applyTemplateRequest
	if !bindJSON(c, &req) {
		return
	}

	n, err := h.scheduleSvc.ApplyWeeklyTemplate(c.Request.Context(), doctorID, req.RepeatUntil, req.Template, claims.UserID, string(claims.Role), c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, APIResponse[any]{
		Data: gin.H{"slots_generated": n},
	})
}

func (h *ScheduleHandler) GetDay(c *gin.Context) {
	doctorID, ok := parseUUID(c, "doctorId")
	if !ok {
		return
	}
	date, ok := parseQueryDate(c, "date")
	if !ok {
		return
	}

	day, err := h.scheduleSvc.GetDay(c.Request.Context(), doctorID, date)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, day)
}
