package v1

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/slotwise-health/slotwise/internal/domain/appointment"
	"github.com/slotwise-health/slotwise/internal/domain/doctor"
	"github.com/slotwise-health/slotwise/internal/domain/patient"
	"github.com/slotwise-health/slotwise/internal/domain/schedule"
	"github.com/slotwise-health/slotwise/internal/service"
)

type APIResponse[T any] struct {
	Data    T      `json:"data"`
	Message string `json:"message,omitempty"`
}

type ErrorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

type ValidationErrorResponse struct {
	Error  string   `json:"error"`
	Fields []string `json:"fields"`
}

func respondOK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, APIResponse[any]{Data: data})
}

func respondCreated(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, APIResponse[any]{Data: data})
}

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, ErrorResponse{Error: message})
}

func respondServiceError(c *gin.Context, err error) {
	var validErr *service.ValidationError
	if errors.As(err, &validErr) {
		c.JSON(http.StatusBadRequest, ValidationErrorResponse{
			Error:  "validation failed",
			Fields: validErr.Fields,
		})
		return
	}

	switch {
	case errors.Is(err, patient.ErrPatientNotFound),
		errors.Is(err, appointment.ErrAppointmentNotFound),
		errors.Is(err, doctor.ErrDoctorNotFound),
		errors.Is(err, doctor.ErrServiceNotFound),
		errors.Is(err, doctor.ErrSpecialtyNotFound),
		errors.Is(err, schedule.ErrScheduleNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})

	case errors.Is(err, schedule.ErrNoMatchingStart),
		errors.Is(err, schedule.ErrInsufficientContiguousSlots):
		c.JSON(http.StatusConflict, ErrorResponse{
			Error: "the requested time cannot accommodate this service",
			Code:  "SLOT_UNAVAILABLE",
		})

	case errors.Is(err, patient.ErrPatientAlreadyExists),
		errors.Is(err, schedule.ErrDayHasBookings):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})

	case errors.Is(err, schedule.ErrConcurrentModification):
		c.JSON(http.StatusConflict, ErrorResponse{
			Error: "the schedule is being updated, please retry",
			Code:  "CONCURRENT_UPDATE",
		})

	case errors.Is(err, appointment.ErrScheduledInPast),
		errors.Is(err, appointment.ErrInvalidStatusTransition),
		errors.Is(err, appointment.ErrAppointmentNotActive),
		errors.Is(err, schedule.ErrInvalidTimeRange),
		errors.Is(err, patient.ErrPatientDeceased),
		errors.Is(err, patient.ErrPatientInactive),
		errors.Is(err, patient.ErrInvalidGender),
		errors.Is(err, doctor.ErrDoctorInactive),
		errors.Is(err, doctor.ErrServiceInactive):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})

	case errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "access denied"})

	case errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid credentials"})

	case errors.Is(err, service.ErrAccountLocked):
		c.JSON(http.StatusTooManyRequests, ErrorResponse{
			Error: "account temporarily locked",
			Code:  "ACCOUNT_LOCKED",
		})

	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})

	}
}

func bindJSON(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request: " + err.Error()})
		return false
	}

	return true
}

func parseUUID(c *gin.Context, param string) (uuid.UUID, bool) {
	raw := c.Param(param)
	id, err := uuid.Parse(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid " + param + ": must be a valid UUID"})
		return uuid.Nil, false
	}
	return id, true
}

func parseQueryInt(c *gin.Context, key string, defaultVal int) int {
	if raw := c.Query(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			return v
		}
	}
	return defaultVal
}

// parseQueryDate reads a required "date" query param in YYYY-MM-DD form.
func parseQueryDate(c *gin.Context, key string) (time.Time, bool) {
	raw := c.Query(key)
	if raw == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: key + " query parameter is required (YYYY-MM-DD)"})
		return time.Time{}, false
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid " + key + ": must be YYYY-MM-DD"})
		return time.Time{}, false
	}
	return t, true
}
