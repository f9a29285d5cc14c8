package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	List(ctx context.Context, q *ListQuery) (*Paged, error)

	// UpdateStatus persists a status transition already applied in memory.
	UpdateStatus(ctx context.Context, a *Appointment) error

	// CountActiveInRange counts live appointments for a doctor whose block
	// starts inside [from, to). Used to guard full-day slot replacement.
	CountActiveInRange(ctx context.Context, doctorID uuid.UUID, from, to time.Time) (int64, error)
}
