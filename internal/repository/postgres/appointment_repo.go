package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/slotwise-health/slotwise/internal/domain/appointment"
)

type AppointmentRepo struct {
	db *gorm.DB
}

func NewAppointmentRepo(db *gorm.DB) *AppointmentRepo {
	return &AppointmentRepo{db: db}
}

func (r *AppointmentRepo) GetByID(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	var appt appointment.Appointment
	err := r.db.WithContext(ctx).First(&appt, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, appointment.ErrAppointmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading appointment: %w", err)
	}
	return &appt, nil
}

func (r *AppointmentRepo) List(ctx context.Context, q *appointment.ListQuery) (*appointment.Paged, error) {
	db := r.db.WithContext(ctx).Model(&appointment.Appointment{})

	if q.PatientID != nil {
		db = db.Where("patient_id = ?", *q.PatientID)
	}
	if q.DoctorID != nil {
		db = db.Where("doctor_id = ?", *q.DoctorID)
	}
	if q.Status != nil {
		db = db.Where("status = ?", *q.Status)
	}
	if q.DateFrom != nil {
		db = db.Where("starts_at >= ?", *q.DateFrom)
	}
	if q.DateTo != nil {
		db = db.Where("starts_at < ?", *q.DateTo)
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("counting appointments: %w", err)
	}

	var appts []*appointment.Appointment
	err := db.Order("starts_at ASC").
		Offset((q.Page - 1) * q.PageSize).
		Limit(q.PageSize).
		Find(&appts).Error
	if err != nil {
		return nil, fmt.Errorf("listing appointments: %w", err)
	}

	totalPages := int((total + int64(q.PageSize) - 1) / int64(q.PageSize))
	return &appointment.Paged{
		Appointments: appts,
		TotalCount:   total,
		Page:         q.Page,
		PageSize:     q.PageSize,
		TotalPages:   totalPages,
	}, nil
}

func (r *AppointmentRepo) UpdateStatus(ctx context.Context, a *appointment.Appointment) error {
	res := r.db.WithContext(ctx).Model(&appointment.Appointment{}).
		Where("id = ?", a.ID).
		Updates(map[string]any{
			"status":              a.Status,
			"cancelled_at":        a.CancelledAt,
			"cancellation_reason": a.CancellationReason,
			"cancelled_by":        a.CancelledBy,
		})
	if res.Error != nil {
		return fmt.Errorf("updating appointment status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return appointment.ErrAppointmentNotFound
	}
	return nil
}

func (r *AppointmentRepo) CountActiveInRange(ctx context.Context, doctorID uuid.UUID, from, to time.Time) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&appointment.Appointment{}).
		Where("doctor_id = ? AND starts_at >= ? AND starts_at < ?", doctorID, from, to).
		Where("status IN ?", []appointment.Status{appointment.StatusScheduled, appointment.StatusConfirmed}).
		Where("deleted_at IS NULL").
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("counting active appointments: %w", err)
	}
	return n, nil
}
