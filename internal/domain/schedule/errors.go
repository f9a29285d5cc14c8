package schedule

import "errors"

var (
	// ErrNoMatchingStart means no slot in the schedule begins exactly at
	// the requested start time.
	ErrNoMatchingStart = errors.New("no slot matches the requested start time")

	// ErrInsufficientContiguousSlots means the chain of free slots broke
	// (booked slot or time gap) before the required count was reached.
	ErrInsufficientContiguousSlots = errors.New("not enough contiguous free slots at the requested start time")

	// ErrCorruptBlock means an appointment's stored anchor no longer yields
	// its expected contiguous booked run. Indicates inconsistent data; must
	// be surfaced, never auto-repaired.
	ErrCorruptBlock = errors.New("appointment slot block is corrupt")

	// ErrInvalidTimeRange is returned by template expansion when an active
	// day's window has start >= end or an unparseable time string.
	ErrInvalidTimeRange = errors.New("invalid time range in availability template")

	// ErrConcurrentModification means another writer changed the schedule
	// between read and commit. Callers may retry a bounded number of times.
	ErrConcurrentModification = errors.New("schedule was modified concurrently")

	ErrScheduleNotFound = errors.New("no schedule exists for this doctor and date")

	// ErrDayHasBookings blocks full-day slot replacement for a date that
	// still carries active appointments, which would orphan their anchors.
	ErrDayHasBookings = errors.New("day has active appointments and cannot be regenerated")
)
