package schedule

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	// GetDay loads the schedule with its ordered slots for one doctor and
	// date. Returns ErrScheduleNotFound when no schedule exists.
	GetDay(ctx context.Context, doctorID uuid.UUID, date time.Time) (*DoctorSchedule, error)

	// ReplaceDay upserts the schedule for (sched.DoctorID, sched.Date),
	// deletes all existing slots for that day, and inserts sched.Slots.
	// Full-day replacement; partial edits are not supported.
	ReplaceDay(ctx context.Context, sched *DoctorSchedule) error

	// SaveSlotFlags persists the booked flags of the given slots and bumps
	// the schedule's version. Returns ErrConcurrentModification when the
	// schedule's version no longer matches expectedVersion.
	SaveSlotFlags(ctx context.Context, scheduleID uuid.UUID, expectedVersion int64, slots []*TimeSlot) error
}
