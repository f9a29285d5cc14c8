package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/slotwise-health/slotwise/internal/domain/patient"
)

type PatientRepo struct {
	db *gorm.DB
}

func NewPatientRepo(db *gorm.DB) *PatientRepo {
	return &PatientRepo{db: db}
}

func (r *PatientRepo) Create(ctx context.Context, p *patient.Patient) error {
	err := r.db.WithContext(ctx).Create(p).Error
	if err != nil && strings.Contains(err.Error(), "duplicate key") {
		return patient.ErrPatientAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("creating patient: %w", err)
	}
	return nil
}

func (r *PatientRepo) GetByID(ctx context.Context, id uuid.UUID) (*patient.Patient, error) {
	var p patient.Patient
	err := r.db.WithContext(ctx).First(&p, "id = ? AND deleted_at IS NULL", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, patient.ErrPatientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading patient: %w", err)
	}
	return &p, nil
}

func (r *PatientRepo) GetByNationalID(ctx context.Context, nationalID string) (*patient.Patient, error) {
	var p patient.Patient
	err := r.db.WithContext(ctx).
		First(&p, "national_id = ? AND deleted_at IS NULL", nationalID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, patient.ErrPatientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading patient by national ID: %w", err)
	}
	return &p, nil
}

func (r *PatientRepo) Update(ctx context.Context, id uuid.UUID, cmd *patient.UpdatePatientCommand) (*patient.Patient, error) {
	updates := map[string]any{}
	if cmd.FirstName != nil {
		updates["first_name"] = *cmd.FirstName
	}
	if cmd.LastName != nil {
		updates["last_name"] = *cmd.LastName
	}
	if cmd.Gender != nil {
		updates["gender"] = *cmd.Gender
	}
	if cmd.Phone != nil {
		updates["phone"] = *cmd.Phone
	}
	if cmd.Email != nil {
		updates["email"] = strings.ToLower(*cmd.Email)
	}
	if cmd.Address != nil {
		updates["address"] = *cmd.Address
	}
	if cmd.City != nil {
		updates["city"] = *cmd.City
	}
	if cmd.ZipCode != nil {
		updates["zip_code"] = *cmd.ZipCode
	}
	if cmd.Country != nil {
		updates["country"] = *cmd.Country
	}
	if cmd.AssignedDoctorID != nil {
		updates["assigned_doctor_id"] = *cmd.AssignedDoctorID
	}
	if cmd.Notes != nil {
		updates["notes"] = *cmd.Notes
	}

	if len(updates) > 0 {
		res := r.db.WithContext(ctx).Model(&patient.Patient{}).
			Where("id = ? AND deleted_at IS NULL", id).
			Updates(updates)
		if res.Error != nil {
			return nil, fmt.Errorf("updating patient: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil, patient.ErrPatientNotFound
		}
	}

	if cmd.EmergencyContact != nil {
		if err := r.db.WithContext(ctx).Model(&patient.Patient{}).
			Where("id = ?", id).
			Update("emergency_contact", cmd.EmergencyContact).Error; err != nil {
			return nil, fmt.Errorf("updating emergency contact: %w", err)
		}
	}

	return r.GetByID(ctx, id)
}

func (r *PatientRepo) SoftDelete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Model(&patient.Patient{}).
		Where("id = ? AND deleted_at IS NULL", id).
		Updates(map[string]any{
			"deleted_at": time.Now(),
			"status":     patient.StatusInactive,
		})
	if res.Error != nil {
		return fmt.Errorf("soft-deleting patient: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return patient.ErrPatientNotFound
	}
	return nil
}

func (r *PatientRepo) List(ctx context.Context, q *patient.ListPatientsQuery) (*patient.PagedPatients, error) {
	db := r.db.WithContext(ctx).Model(&patient.Patient{}).Where("deleted_at IS NULL")

	if q.Search != "" {
		// Backed by the trigram index on (first_name || ' ' || last_name).
		search := "%" + strings.ToLower(q.Search) + "%"
		db = db.Where("LOWER(first_name || ' ' || last_name) LIKE ?", search)
	}
	if q.Status != nil {
		db = db.Where("status = ?", *q.Status)
	}
	if q.AssignedDoctorID != nil {
		db = db.Where("assigned_doctor_id = ?", *q.AssignedDoctorID)
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("counting patients: %w", err)
	}

	sortBy := "created_at"
	switch q.SortBy {
	case "last_name", "first_name", "date_of_birth", "created_at":
		sortBy = q.SortBy
	}
	order := "DESC"
	if strings.EqualFold(q.SortOrder, "asc") {
		order = "ASC"
	}

	var patients []*patient.Patient
	err := db.Order(sortBy + " " + order).
		Offset((q.Page - 1) * q.PageSize).
		Limit(q.PageSize).
		Find(&patients).Error
	if err != nil {
		return nil, fmt.Errorf("listing patients: %w", err)
	}

	totalPages := int((total + int64(q.PageSize) - 1) / int64(q.PageSize))
	return &patient.PagedPatients{
		Patients:   patients,
		TotalCount: total,
		Page:       q.Page,
		PageSize:   q.PageSize,
		TotalPages: totalPages,
	}, nil
}

func (r *PatientRepo) ExistsByNationalID(ctx context.Context, nationalID string, excludeID *uuid.UUID) (bool, error) {
	db := r.db.WithContext(ctx).Model(&patient.Patient{}).
		Where("national_id = ?", nationalID)
	if excludeID != nil {
		db = db.Where("id <> ?", *excludeID)
	}

	var n int64
	if err := db.Count(&n).Error; err != nil {
		return false, fmt.Errorf("checking national ID: %w", err)
	}
	return n > 0, nil
}
