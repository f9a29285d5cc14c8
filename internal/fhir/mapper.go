package fhir

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/slotwise-health/slotwise/internal/domain/schedule"
)

// MapResult is one practitioner's slots regrouped into day schedules, plus
// counters for what the mapper had to drop.
type MapResult struct {
	Days    []*schedule.DoctorSchedule
	Slots   int
	Skipped int
}

// MapSlots converts upstream Slot resources into day schedules for one
// doctor. Upstream slots longer than the fixed granularity are cut into
// granularity-sized pieces when they divide evenly; ragged slots are
// skipped and counted. "busy" upstream slots come through booked so local
// search never offers them.
func MapSlots(doctorID uuid.UUID, slots []Resource) MapResult {
	byDay := make(map[time.Time]*schedule.DoctorSchedule)
	res := MapResult{}

	for _, s := range slots {
		if s.ResourceType != "Slot" || s.Start.IsZero() || s.End.IsZero() {
			res.Skipped++
			continue
		}
		dur := s.End.Sub(s.Start)
		if dur <= 0 || dur%schedule.Granularity != 0 {
			res.Skipped++
			continue
		}

		booked := s.Status != SlotStatusFree

		var category string
		if len(s.ServiceCategory) > 0 {
			category = s.ServiceCategory[0].Text
		}

		for cur := s.Start; cur.Before(s.End); cur = cur.Add(schedule.Granularity) {
			date := schedule.DayOf(cur)
			day, ok := byDay[date]
			if !ok {
				day = &schedule.DoctorSchedule{
					ID:       uuid.New(),
					DoctorID: doctorID,
					Date:     date,
				}
				byDay[date] = day
			}

			day.Slots = append(day.Slots, &schedule.TimeSlot{
				ID:              uuid.New(),
				ScheduleID:      day.ID,
				StartTime:       cur,
				EndTime:         cur.Add(schedule.Granularity),
				IsBooked:        booked,
				ServiceCategory: category,
			})
			res.Slots++
		}
	}

	for _, day := range byDay {
		sort.Slice(day.Slots, func(i, j int) bool {
			return day.Slots[i].StartTime.Before(day.Slots[j].StartTime)
		})
		// Overlapping upstream slots collapse to the earliest occurrence;
		// a day never carries two slots with the same start.
		day.Slots = dedupeByStart(day.Slots)
		res.Days = append(res.Days, day)
	}
	sort.Slice(res.Days, func(i, j int) bool {
		return res.Days[i].Date.Before(res.Days[j].Date)
	})
	return res
}

func dedupeByStart(slots []*schedule.TimeSlot) []*schedule.TimeSlot {
	out := slots[:0]
	for i, s := range slots {
		if i > 0 && s.StartTime.Equal(slots[i-1].StartTime) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// PractitionerRef extracts the practitioner ID from a Schedule resource's
// actor list, or "" when none is present.
func PractitionerRef(sched Resource) string {
	const prefix = "Practitioner/"
	for _, a := range sched.Actor {
		if len(a.Reference) > len(prefix) && a.Reference[:len(prefix)] == prefix {
			return a.Reference[len(prefix):]
		}
	}
	return ""
}
