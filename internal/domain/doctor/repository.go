package doctor

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	List(ctx context.Context, specialtyID *uuid.UUID) ([]*Doctor, error)

	// ListSynced returns active doctors carrying a FHIR practitioner
	// reference — the set the sync runner pulls schedules for.
	ListSynced(ctx context.Context) ([]*Doctor, error)

	GetService(ctx context.Context, id uuid.UUID) (*HospitalService, error)
	ListServices(ctx context.Context, specialtyID uuid.UUID) ([]*HospitalService, error)

	GetSpecialty(ctx context.Context, id uuid.UUID) (*Specialty, error)
	ListSpecialties(ctx context.Context) ([]*Specialty, error)
}
