package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/slotwise-health/slotwise/internal/domain/doctor"
)

// DoctorHandler exposes the read-only clinical catalog: doctors,
// specialties and the bookable services under each.
type DoctorHandler struct {
	doctors doctor.Repository
}

func NewDoctorHandler(doctors doctor.Repository) *DoctorHandler {
	return &DoctorHandler{doctors: doctors}
}

func (h *DoctorHandler) List(c *gin.Context) {
	var specialtyID *uuid.UUID
	if s := c.Query("specialty_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			respondError(c, http.StatusBadRequest, "invalid specialty_id")
			return
		}
		specialtyID = &id
	}

	doctors, err := h.doctors.List(c.Request.Context(), specialtyID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, doctors)
}

func (h *DoctorHandler) Get(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	d, err := h.doctors.GetByID(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, d)
}

func (h *DoctorHandler) ListSpecialties(c *gin.Context) {
	sps, err := h.doctors.ListSpecialties(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, sps)
}

func (h *DoctorHandler) ListServices(c *gin.Context) {
	specialtyID, ok := parseUUID(c, "id")
	if !ok {
		return
	}

	services, err := h.doctors.ListServices(c.Request.Context(), specialtyID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, services)
}
