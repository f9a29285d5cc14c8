package doctor

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Specialty struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`

	Name        string `gorm:"column:name;type:varchar(100);uniqueIndex;not null"`
	Description string `gorm:"column:description;type:text"`
}

func (Specialty) TableName() string {
	return "clinical.specialties"
}

// HospitalService is a bookable service within a specialty. Its duration is
// the size parameter the slot allocator converts to a required slot count.
type HospitalService struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`

	SpecialtyID uuid.UUID `gorm:"column:specialty_id;type:uuid;not null;index"`

	Name         string `gorm:"column:name;type:varchar(150);not null"`
	DurationMins int    `gorm:"column:duration_mins;not null;default:15"`
	Active       bool   `gorm:"column:active;not null;default:true;index"`
}

func (HospitalService) TableName() string {
	return "clinical.hospital_services"
}

type Doctor struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CreatedAt time.Time  `gorm:"autoCreateTime"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime"`
	DeletedAt *time.Time `gorm:"index"`

	FirstName   string    `gorm:"column:first_name;type:varchar(100);not null"`
	LastName    string    `gorm:"column:last_name;type:varchar(100);not null"`
	SpecialtyID uuid.UUID `gorm:"column:specialty_id;type:uuid;not null;index"`
	LicenseNo   string    `gorm:"column:license_no;type:varchar(50);uniqueIndex"`

	// External practitioner reference used by the FHIR sync to pair this
	// doctor with a remote Schedule resource. Empty when not synced.
	FHIRPractitionerID string `gorm:"column:fhir_practitioner_id;type:varchar(64);index"`

	Active bool `gorm:"column:active;not null;default:true;index"`
}

func (Doctor) TableName() string {
	return "clinical.doctors"
}

func (d *Doctor) FullName() string {
	return strings.TrimSpace(d.FirstName + " " + d.LastName)
}

func (d *Doctor) IsActive() bool {
	return d.Active && d.DeletedAt == nil
}
