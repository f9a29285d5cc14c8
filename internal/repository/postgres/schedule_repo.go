// Package postgres implements the domain repository interfaces on GORM.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/slotwise-health/slotwise/internal/domain/appointment"
	"github.com/slotwise-health/slotwise/internal/domain/schedule"
)

type ScheduleRepo struct {
	db *gorm.DB
}

func NewScheduleRepo(db *gorm.DB) *ScheduleRepo {
	return &ScheduleRepo{db: db}
}

func (r *ScheduleRepo) GetDay(ctx context.Context, doctorID uuid.UUID, date time.Time) (*schedule.DoctorSchedule, error) {
	return getDay(ctx, r.db, doctorID, date, false)
}

func getDay(ctx context.Context, db *gorm.DB, doctorID uuid.UUID, date time.Time, forUpdate bool) (*schedule.DoctorSchedule, error) {
	q := db.WithContext(ctx)
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var sched schedule.DoctorSchedule
	err := q.
		Preload("Slots", func(db *gorm.DB) *gorm.DB {
			return db.Order("start_time ASC")
		}).
		Where("doctor_id = ? AND date = ?", doctorID, schedule.DayOf(date)).
		First(&sched).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, schedule.ErrScheduleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading day schedule: %w", err)
	}
	return &sched, nil
}

// ReplaceDay swaps a day's slots wholesale: the schedule row is upserted,
// its old slots deleted and the new ones inserted, in one transaction. The
// version bump invalidates any concurrent booking built on the old slots.
func (r *ScheduleRepo) ReplaceDay(ctx context.Context, sched *schedule.DoctorSchedule) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing schedule.DoctorSchedule
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("doctor_id = ? AND date = ?", sched.DoctorID, sched.Date).
			First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := tx.Omit("Slots").Create(sched).Error; err != nil {
				return fmt.Errorf("creating schedule row: %w", err)
			}
		case err != nil:
			return fmt.Errorf("locking schedule row: %w", err)
		default:
			sched.ID = existing.ID
			sched.Version = existing.Version + 1
			if err := tx.Model(&schedule.DoctorSchedule{}).
				Where("id = ?", existing.ID).
				Update("version", sched.Version).Error; err != nil {
				return fmt.Errorf("bumping schedule version: %w", err)
			}
			if err := tx.Where("schedule_id = ?", existing.ID).
				Delete(&schedule.TimeSlot{}).Error; err != nil {
				return fmt.Errorf("deleting old slots: %w", err)
			}
		}

		for _, s := range sched.Slots {
			s.ScheduleID = sched.ID
		}
		if len(sched.Slots) > 0 {
			if err := tx.CreateInBatches(sched.Slots, 200).Error; err != nil {
				return fmt.Errorf("inserting slots: %w", err)
			}
		}
		return nil
	})
}

func (r *ScheduleRepo) SaveSlotFlags(ctx context.Context, scheduleID uuid.UUID, expectedVersion int64, slots []*schedule.TimeSlot) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return saveSlotFlags(tx, scheduleID, expectedVersion, slots)
	})
}

// saveSlotFlags bumps the schedule version iff it still matches
// expectedVersion, then writes the booked flags. Zero rows affected on the
// version bump means someone else committed first.
func saveSlotFlags(tx *gorm.DB, scheduleID uuid.UUID, expectedVersion int64, slots []*schedule.TimeSlot) error {
	res := tx.Model(&schedule.DoctorSchedule{}).
		Where("id = ? AND version = ?", scheduleID, expectedVersion).
		Update("version", expectedVersion+1)
	if res.Error != nil {
		return fmt.Errorf("bumping schedule version: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return schedule.ErrConcurrentModification
	}

	for _, s := range slots {
		if err := tx.Model(&schedule.TimeSlot{}).
			Where("id = ?", s.ID).
			Update("is_booked", s.IsBooked).Error; err != nil {
			return fmt.Errorf("updating slot %s: %w", s.ID, err)
		}
	}
	return nil
}

// BookingStore combines schedule reads with the appointment writes the
// booking path commits atomically.
type BookingStore struct {
	db *gorm.DB
}

func NewBookingStore(db *gorm.DB) *BookingStore {
	return &BookingStore{db: db}
}

func (s *BookingStore) GetDay(ctx context.Context, doctorID uuid.UUID, date time.Time) (*schedule.DoctorSchedule, error) {
	return getDay(ctx, s.db, doctorID, date, false)
}

func (s *BookingStore) CreateBooking(ctx context.Context, sched *schedule.DoctorSchedule, block schedule.Block, appt *appointment.Appointment) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := saveSlotFlags(tx, sched.ID, sched.Version, block); err != nil {
			return err
		}
		if err := tx.Create(appt).Error; err != nil {
			return fmt.Errorf("creating appointment: %w", err)
		}
		sched.Version++
		return nil
	})
}

func (s *BookingStore) ReleaseBooking(ctx context.Context, sched *schedule.DoctorSchedule, block schedule.Block, appt *appointment.Appointment) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := saveSlotFlags(tx, sched.ID, sched.Version, block); err != nil {
			return err
		}
		if err := tx.Model(&appointment.Appointment{}).
			Where("id = ?", appt.ID).
			Updates(map[string]any{
				"status":              appt.Status,
				"cancelled_at":        appt.CancelledAt,
				"cancellation_reason": appt.CancellationReason,
				"cancelled_by":        appt.CancelledBy,
			}).Error; err != nil {
			return fmt.Errorf("updating appointment: %w", err)
		}
		sched.Version++
		return nil
	})
}

func (s *BookingStore) MoveBooking(ctx context.Context, oldSched *schedule.DoctorSchedule, oldBlock schedule.Block,
	newSched *schedule.DoctorSchedule, newBlock schedule.Block, appt *appointment.Appointment) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := saveSlotFlags(tx, oldSched.ID, oldSched.Version, oldBlock); err != nil {
			return err
		}
		if newSched.ID != oldSched.ID {
			if err := saveSlotFlags(tx, newSched.ID, newSched.Version, newBlock); err != nil {
				return err
			}
		} else {
			// Same day: the first bump already covered the version; only the
			// new block's flags still need writing.
			for _, sl := range newBlock {
				if err := tx.Model(&schedule.TimeSlot{}).
					Where("id = ?", sl.ID).
					Update("is_booked", sl.IsBooked).Error; err != nil {
					return fmt.Errorf("updating slot %s: %w", sl.ID, err)
				}
			}
		}

		if err := tx.Model(&appointment.Appointment{}).
			Where("id = ?", appt.ID).
			Updates(map[string]any{
				"anchor_slot_id": appt.AnchorSlotID,
				"block_len":      appt.BlockLen,
				"starts_at":      appt.StartsAt,
				"duration_mins":  appt.DurationMins,
				"service_id":     appt.ServiceID,
			}).Error; err != nil {
			return fmt.Errorf("updating appointment: %w", err)
		}

		oldSched.Version++
		if newSched.ID != oldSched.ID {
			newSched.Version++
		}
		return nil
	})
}
