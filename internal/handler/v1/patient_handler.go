package v1

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/slotwise-health/slotwise/internal/domain/patient"
	"github.com/slotwise-health/slotwise/internal/handler/middleware"
	"github.com/slotwise-health/slotwise/internal/service"
)

type PatientHandler struct {
	patientSvc *service.PatientService
}

func NewPatientHandler(patientSvc *service.PatientService) *PatientHandler {
	return &PatientHandler{patientSvc: patientSvc}
}

type createPatientRequest struct {
	FirstName        string                    `json:"first_name" binding:"required"`
	LastName         string                    `json:"last_name" binding:"required"`
	DateOfBirth      time.Time                 `json:"date_of_birth" binding:"required"`
	Gender           patient.Gender            `json:"gender" binding:"required"`
	NationalID       string                    `json:"national_id" binding:"required"`
	Phone            string                    `json:"phone"`
	Email            string                    `json:"email"`
	Address          string                    `json:"address"`
	City             string                    `json:"city"`
	ZipCode          string                    `json:"zip_code"`
	Country          string                    `json:"country"`
	EmergencyContact *patient.EmergencyContact `json:"emergency_contact"`
	AssignedDoctorID *uuid.UUID                `json:"assigned_doctor_id"`
	Notes            string                    `json:"notes"`
}

func (h *PatientHandler) Create(c *gin.Context) {
	claims := middleware.ClaimsFrom(c)

	var req createPatientRequest
	if !bindJSON(c, &req) {
		return
	}

	p, err := h.patientSvc.CreatePatient(c.Request.Context(), &patient.CreatePatientCommand{
		FirstName:        req.FirstName,
		LastName:         req.LastName,
		DateOfBirth:      req.DateOfBirth,
		Gender:           req.Gender,
		NationalID:       req.NationalID,
		Phone:            req.Phone,
		Email:            req.Email,
		Address:          req.Address,
		City:             req.City,
		ZipCode:          req.ZipCode,
		Country:          req.Country,
		EmergencyContact: req.EmergencyContact,
		AssignedDoctorID: req.AssignedDoctorID,
		Notes:            req.Notes,
		CreatedBy:        claims.UserID,
	}, claims.UserID, string(claims.Role), c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondCreated(c, p)
}

func (h *PatientHandler) Get(c *gin.Context) {
	claims := middleware.ClaimsFrom(c)

	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	p, err := h.patientSvc.GetPatient(c.Request.Context(), id, claims.UserID, string(claims.Role), claims.PatientID, c.ClientIP())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, p)
}

func (h *PatientHandler) Deactivate(c *gin.Context) {
	claims := middleware.ClaimsFrom(c)

	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	if err := h.patientSvc.DeactivatePatient(c.Request.Context(), id, claims.UserID, string(claims.Role), c.ClientIP()); err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, APIResponse[any]{Message: "patient deactivated"})
}

func (h *PatientHandler) List(c *gin.Context) {
	claims := middleware.ClaimsFrom(c)

	q := &patient.ListPatientsQuery{
		Search:    c.Query("search"),
		Page:      parseQueryInt(c, "page", 1),
		PageSize:  parseQueryInt(c, "page_size", 20),
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
	}
	if s := c.Query("status"); s != "" {
		st := patient.Status(s)
		q.Status = &st
	}
	if d := c.Query("doctor_id"); d != "" {
		id, err := uuid.Parse(d)
		if err != nil {
			respondError(c, http.StatusBadRequest, "invalid doctor_id")
			return
		}
		q.AssignedDoctorID = &id
	}

	page, err := h.patientSvc.ListPatients(c.Request.Context(), q, claims.UserID, string(claims.Role))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, page)
}
