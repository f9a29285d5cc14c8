package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/slotwise-health/slotwise/internal/domain/doctor"
)

type DoctorRepo struct {
	db *gorm.DB
}

func NewDoctorRepo(db *gorm.DB) *DoctorRepo {
	return &DoctorRepo{db: db}
}

func (r *DoctorRepo) GetByID(ctx context.Context, id uuid.UUID) (*doctor.Doctor, error) {
	var d doctor.Doctor
	err := r.db.WithContext(ctx).First(&d, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, doctor.ErrDoctorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading doctor: %w", err)
	}
	return &d, nil
}

func (r *DoctorRepo) List(ctx context.Context, specialtyID *uuid.UUID) ([]*doctor.Doctor, error) {
	db := r.db.WithContext(ctx).Where("active = true")
	if specialtyID != nil {
		db = db.Where("specialty_id = ?", *specialtyID)
	}

	var doctors []*doctor.Doctor
	if err := db.Order("last_name ASC, first_name ASC").Find(&doctors).Error; err != nil {
		return nil, fmt.Errorf("listing doctors: %w", err)
	}
	return doctors, nil
}

func (r *DoctorRepo) ListSynced(ctx context.Context) ([]*doctor.Doctor, error) {
	var doctors []*doctor.Doctor
	err := r.db.WithContext(ctx).
		Where("active = true AND fhir_practitioner_id <> ''").
		Find(&doctors).Error
	if err != nil {
		return nil, fmt.Errorf("listing synced doctors: %w", err)
	}
	return doctors, nil
}

func (r *DoctorRepo) GetService(ctx context.Context, id uuid.UUID) (*doctor.HospitalService, error) {
	var svc doctor.HospitalService
	err := r.db.WithContext(ctx).First(&svc, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, doctor.ErrServiceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading hospital service: %w", err)
	}
	return &svc, nil
}

func (r *DoctorRepo) ListServices(ctx context.Context, specialtyID uuid.UUID) ([]*doctor.HospitalService, error) {
	var services []*doctor.HospitalService
	err := r.db.WithContext(ctx).
		Where("specialty_id = ? AND active = true", specialtyID).
		Order("name ASC").
		Find(&services).Error
	if err != nil {
		return nil, fmt.Errorf("listing services: %w", err)
	}
	return services, nil
}

func (r *DoctorRepo) GetSpecialty(ctx context.Context, id uuid.UUID) (*doctor.Specialty, error) {
	var sp doctor.Specialty
	err := r.db.WithContext(ctx).First(&sp, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, doctor.ErrSpecialtyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading specialty: %w", err)
	}
	return &sp, nil
}

func (r *DoctorRepo) ListSpecialties(ctx context.Context) ([]*doctor.Specialty, error) {
	var sps []*doctor.Specialty
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&sps).Error; err != nil {
		return nil, fmt.Errorf("listing specialties: %w", err)
	}
	return sps, nil
}
