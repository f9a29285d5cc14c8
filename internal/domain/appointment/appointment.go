package appointment

import (
	"time"

	"github.com/google/uuid"
)

// State transitions possibilities:
//
//	scheduled → confirmed → completed
//	scheduled → cancelled
//	confirmed → cancelled
//	confirmed → no_show (if patient doesn't arrive)
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no_show"
)

// Appointment occupies a contiguous block of time slots. AnchorSlotID
// references the first slot of the block; BlockLen is the number of slots
// the service duration required at booking time. While the appointment is
// active, every slot in the block must be booked and contiguous.
type Appointment struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CreatedAt time.Time  `gorm:"autoCreateTime;index"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime"`
	DeletedAt *time.Time `gorm:"index"`

	PatientID   uuid.UUID `gorm:"column:patient_id;type:uuid;not null;index"`
	DoctorID    uuid.UUID `gorm:"column:doctor_id;type:uuid;not null;index"`
	SpecialtyID uuid.UUID `gorm:"column:specialty_id;type:uuid;not null;index"`
	ServiceID   uuid.UUID `gorm:"column:service_id;type:uuid;not null;index"`

	AnchorSlotID uuid.UUID `gorm:"column:anchor_slot_id;type:uuid;not null;uniqueIndex"`
	BlockLen     int       `gorm:"column:block_len;not null;default:1"`

	// Denormalized from the anchor slot so listings avoid a join.
	StartsAt     time.Time `gorm:"column:starts_at;not null;index"`
	DurationMins int       `gorm:"column:duration_mins;not null;default:15"`

	Status Status `gorm:"column:status;type:varchar(30);not null;default:'scheduled';index"`
	Notes  string `gorm:"column:notes;type:text"`

	CancelledAt        *time.Time `gorm:"column:cancelled_at"`
	CancellationReason string     `gorm:"column:cancellation_reason;type:text"`
	CancelledBy        *uuid.UUID `gorm:"column:cancelled_by;type:uuid"`

	CreatedBy uuid.UUID `gorm:"column:created_by;type:uuid;not null"`
}

func (Appointment) TableName() string {
	return "clinical.appointments"
}

func (a *Appointment) EndsAt() time.Time {
	return a.StartsAt.Add(time.Duration(a.DurationMins) * time.Minute)
}

// IsActive reports whether the appointment still holds its slot block.
func (a *Appointment) IsActive() bool {
	switch a.Status {
	case StatusScheduled, StatusConfirmed:
		return a.DeletedAt == nil
	}
	return false
}

func (a *Appointment) CanTransitionTo(newStatus Status) bool {
	allowed := map[Status][]Status{
		StatusScheduled: {StatusConfirmed, StatusCancelled},
		StatusConfirmed: {StatusCompleted, StatusNoShow, StatusCancelled},
		StatusCompleted: {},
		StatusCancelled: {},
		StatusNoShow:    {},
	}

	for _, s := range allowed[a.Status] {
		if s == newStatus {
			return true
		}
	}
	return false
}

func (a *Appointment) Cancel(reason string, cancelledBy uuid.UUID) error {
	if !a.CanTransitionTo(StatusCancelled) {
		return ErrInvalidStatusTransition
	}
	now := time.Now()
	a.Status = StatusCancelled
	a.CancelledAt = &now
	a.CancellationReason = reason
	a.CancelledBy = &cancelledBy
	return nil
}

type BookCommand struct {
	PatientID      uuid.UUID
	DoctorID       uuid.UUID
	ServiceID      uuid.UUID
	RequestedStart time.Time
	Notes          string
	CreatedBy      uuid.UUID
}

type CancelCommand struct {
	Reason      string
	CancelledBy uuid.UUID
}

// RescheduleCommand moves an appointment to a new start and/or service. Nil
// fields keep the current value.
type RescheduleCommand struct {
	NewStart     *time.Time
	NewServiceID *uuid.UUID
	RequestedBy  uuid.UUID
}

type ListQuery struct {
	PatientID *uuid.UUID
	DoctorID  *uuid.UUID
	Status    *Status
	DateFrom  *time.Time
	DateTo    *time.Time
	Page      int
	PageSize  int
}

type Paged struct {
	Appointments []*Appointment
	TotalCount   int64
	Page         int
	PageSize     int
	TotalPages   int
}
