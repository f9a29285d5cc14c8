package v1

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/slotwise-health/slotwise/internal/domain/appointment"
	"github.com/slotwise-health/slotwise/internal/handler/middleware"
	"github.com/slotwise-health/slotwise/internal/service"
)

type BookingHandler struct {
	bookingSvc *service.BookingService
}

func NewBookingHandler(bookingSvc *service.BookingService) *BookingHandler {
	return &BookingHandler{bookingSvc: bookingSvc}
}

type bookRequest struct {
	PatientID      uuid.UUID `json:"patient_id" binding:"required"`
	DoctorID       uuid.UUID `json:"doctor_id" binding:"required"`
	ServiceID      uuid.UUID `json:"service_id" binding:"required"`
	RequestedStart time.Time `json:"requested_start" binding:"required"`
	Notes          string    `json:"notes"`
}

func (h *BookingHandler) Book(c *gin.Context) {
	claims := middleware.ClaimsFrom(c)

	var req bookRequest
	if !bindJSON(c, &req) {
		return
	}

	// Patients book for themselves only.
	if claims.Role == "patient" {
		if claims.PatientID == nil || *claims.PatientID != req.PatientID {
			respondError(c, http.StatusForbidden, "access denied")
			return
		}
	}

	appt, err := h.bookingSvc.Book(c.Request.Context(), &appointment.BookCommand{
		PatientID:      req.PatientID,
		DoctorID:       req.DoctorID,
		ServiceID:      req.ServiceID,
		RequestedStart: req.RequestedStart,
		Notes:          req.Notes,
		CreatedBy:      claims.UserID,
	}, claims.UserID, string(claims.Role), c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondCreated(c, appt)
}

func (h *BookingHandler) Get(c *gin.Context) {
	claims := middleware.ClaimsFrom(c)

	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	appt, err := h.bookingSvc.GetAppointment(c.Request.Context(), id, string(claims.Role), claims.PatientID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, appt)
}

func (h *BookingHandler) List(c *gin.Context) {
	claims := middleware.ClaimsFrom(c)

	q := &appointment.ListQuery{
		Page:     parseQueryInt(c, "page", 1),
		PageSize: parseQueryInt(c, "page_size", 20),
	}
	if d := c.Query("doctor_id"); d != "" {
		id, err := uuid.Parse(d)
		if err != nil {
			respondError(c, http.StatusBadRequest, "invalid doctor_id")
			return
		}
		q.DoctorID = &id
	}
	if p := c.Query("patient_id"); p != "" {
		id, err := uuid.Parse(p)
		if err != nil {
			respondError(c, http.StatusBadRequest, "invalid patient_id")
			return
		}
		q.PatientID = &id
	}
	if s := c.Query("status"); s != "" {
		st := appointment.Status(s)
		q.Status = &st
	}
	if from, ok := parseOptionalDate(c, "from"); ok {
		q.DateFrom = from
	} else {
		return
	}
	if to, ok := parseOptionalDate(c, "to"); ok {
		q.DateTo = to
	} else {
		return
	}

	page, err := h.bookingSvc.ListAppointments(c.Request.Context(), q, string(claims.Role), claims.PatientID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, page)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *BookingHandler) Cancel(c *gin.Context) {
	claims := middleware.ClaimsFrom(c)

	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	var req cancelRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}

	appt, err := h.bookingSvc.Cancel(c.Request.Context(), id, &appointment.CancelCommand{
		Reason:      req.Reason,
		CancelledBy: claims.UserID,
	}, claims.UserID, string(claims.Role), claims.PatientID, c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, appt)
}

type rescheduleRequest struct {
	NewStart     *time.Time `json:"new_start"`
	NewServiceID *uuid.UUID `json:"new_service_id"`
}

func (h *BookingHandler) Reschedule(c *gin.Context) {
	claims := middleware.ClaimsFrom(c)

	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	var req rescheduleRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.NewStart == nil && req.NewServiceID == nil {
		respondError(c, http.StatusBadRequest, "new_start or new_service_id is required")
		return
	}

	appt, err := h.bookingSvc.Reschedule(c.Request.Context(), id, &appointment.RescheduleCommand{
		NewStart:     req.NewStart,
		NewServiceID: req.NewServiceID,
		RequestedBy:  claims.UserID,
	}, claims.UserID, string(claims.Role), claims.PatientID, c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, appt)
}

type suggestResponse struct {
	DoctorID  uuid.UUID `json:"doctor_id"`
	ServiceID uuid.UUID `json:"service_id"`
	Start     time.Time `json:"start"`
}

// Suggest returns the earliest bookable start for a service on a given day.
func (h *BookingHandler) Suggest(c *gin.Context) {
	doctorID, ok := parseUUID(c, "doctorId")
	if !ok {
		return
	}
	serviceID, err := uuid.Parse(c.Query("service_id"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid service_id")
		return
	}
	date, ok := parseQueryDate(c, "date")
	if !ok {
		return
	}

	start, err := h.bookingSvc.Suggest(c.Request.Context(), doctorID, serviceID, date)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, suggestResponse{DoctorID: doctorID, ServiceID: serviceID, Start: start})
}

// parseOptionalDate reads a YYYY-MM-DD query param; nil when absent. The
// second return is false only when the param is present but malformed.
func parseOptionalDate(c *gin.Context, key string) (*time.Time, bool) {
	raw := c.Query(key)
	if raw == "" {
		return nil, true
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid "+key+": must be YYYY-MM-DD")
		return nil, false
	}
	return &t, true
}
