package schedule

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DayWindow is one weekday's availability in a weekly template. Start and
// End use "HH:MM" wall-clock strings, the format the scheduling UI submits.
type DayWindow struct {
	Active bool   `json:"active"`
	Start  string `json:"start"`
	End    string `json:"end"`
}

// WeeklyTemplate maps each weekday to its availability window. Absent or
// inactive weekdays are skipped entirely during expansion.
type WeeklyTemplate map[time.Weekday]DayWindow

const wallClockLayout = "15:04"

// Validate parses every active window and rejects start >= end.
func (t WeeklyTemplate) Validate() error {
	for wd, w := range t {
		if !w.Active {
			continue
		}
		start, end, err := w.parse()
		if err != nil {
			return err
		}
		if !start.Before(end) {
			return fmt.Errorf("%w: %s %s-%s", ErrInvalidTimeRange, wd, w.Start, w.End)
		}
	}
	return nil
}

func (w DayWindow) parse() (time.Time, time.Time, error) {
	start, err := time.Parse(wallClockLayout, w.Start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: start %q", ErrInvalidTimeRange, w.Start)
	}
	end, err := time.Parse(wallClockLayout, w.End)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: end %q", ErrInvalidTimeRange, w.End)
	}
	return start, end, nil
}

// ExpandTemplate walks every calendar date from today through repeatUntil
// inclusive and produces a fresh DoctorSchedule (with unbooked slots) for
// each date whose weekday is active in the template. Dates with inactive or
// absent weekdays produce nothing, leaving any existing schedule untouched.
//
// Slots are cut in fixed steps of Granularity from the window start; the
// walk stops as soon as the next slot would run past the window end, so a
// trailing partial shorter than one slot is dropped rather than created.
func ExpandTemplate(doctorID uuid.UUID, today, repeatUntil time.Time, template WeeklyTemplate) ([]*DoctorSchedule, error) {
	if err := template.Validate(); err != nil {
		return nil, err
	}

	var out []*DoctorSchedule
	first := DayOf(today)
	last := DayOf(repeatUntil)

	for date := first; !date.After(last); date = date.AddDate(0, 0, 1) {
		window, ok := template[date.Weekday()]
		if !ok || !window.Active {
			continue
		}

		start, end, err := window.parse()
		if err != nil {
			return nil, err
		}

		sched := &DoctorSchedule{
			ID:       uuid.New(),
			DoctorID: doctorID,
			Date:     date,
		}

		cur := time.Date(date.Year(), date.Month(), date.Day(),
			start.Hour(), start.Minute(), 0, 0, date.Location())
		dayEnd := time.Date(date.Year(), date.Month(), date.Day(),
			end.Hour(), end.Minute(), 0, 0, date.Location())

		for !cur.Add(Granularity).After(dayEnd) {
			sched.Slots = append(sched.Slots, &TimeSlot{
				ID:         uuid.New(),
				ScheduleID: sched.ID,
				StartTime:  cur,
				EndTime:    cur.Add(Granularity),
			})
			cur = cur.Add(Granularity)
		}

		out = append(out, sched)
	}

	return out, nil
}
