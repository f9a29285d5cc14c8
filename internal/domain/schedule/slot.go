package schedule

import (
	"time"

	"github.com/google/uuid"
)

// GranularityMins is the fixed slot length. Every slot in the system is
// exactly this long; services that need more time occupy a block of
// consecutive slots.
const GranularityMins = 15

const Granularity = GranularityMins * time.Minute

type TimeSlot struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"-"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"-"`

	ScheduleID uuid.UUID `gorm:"column:schedule_id;type:uuid;not null;index;uniqueIndex:idx_slots_schedule_start,priority:1" json:"schedule_id"`

	StartTime time.Time `gorm:"column:start_time;not null;uniqueIndex:idx_slots_schedule_start,priority:2" json:"start_time"`
	EndTime   time.Time `gorm:"column:end_time;not null" json:"end_time"`
	IsBooked  bool      `gorm:"column:is_booked;not null;default:false;index" json:"is_booked"`

	// Optional tag linking the slot to a service category (e.g. slots a
	// FHIR sync reserves for walk-in triage).
	ServiceCategory string `gorm:"column:service_category;type:varchar(100)" json:"service_category,omitempty"`
}

func (TimeSlot) TableName() string {
	return "scheduling.time_slots"
}

// DoctorSchedule is the full set of slots for one doctor on one calendar
// date. At most one schedule exists per (doctor, date); the Version column
// backs the optimistic-concurrency check on every slot mutation.
type DoctorSchedule struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"-"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"-"`

	DoctorID uuid.UUID `gorm:"column:doctor_id;type:uuid;not null;uniqueIndex:idx_schedules_doctor_date,priority:1" json:"doctor_id"`
	Date     time.Time `gorm:"column:date;type:date;not null;uniqueIndex:idx_schedules_doctor_date,priority:2" json:"date"`

	Version int64 `gorm:"column:version;not null;default:0" json:"-"`

	Slots []*TimeSlot `gorm:"foreignKey:ScheduleID" json:"slots"`
}

func (DoctorSchedule) TableName() string {
	return "scheduling.doctor_schedules"
}

// SortedSlots reports whether the slot list is ascending by start time with
// no duplicates. Allocator entry points require this ordering.
func SortedSlots(slots []*TimeSlot) bool {
	for i := 1; i < len(slots); i++ {
		if !slots[i-1].StartTime.Before(slots[i].StartTime) {
			return false
		}
	}
	return true
}

// FreeCount returns the number of unbooked slots in the schedule.
func (s *DoctorSchedule) FreeCount() int {
	n := 0
	for _, sl := range s.Slots {
		if !sl.IsBooked {
			n++
		}
	}
	return n
}

// SlotByID returns the slot with the given ID, or nil.
func (s *DoctorSchedule) SlotByID(id uuid.UUID) *TimeSlot {
	for _, sl := range s.Slots {
		if sl.ID == id {
			return sl
		}
	}
	return nil
}

// DayOf normalizes a timestamp to its calendar date (midnight, same
// location). Schedules are keyed by this value.
func DayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
