package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/slotwise-health/slotwise/internal/cache"
	"github.com/slotwise-health/slotwise/internal/domain/appointment"
	"github.com/slotwise-health/slotwise/internal/domain/doctor"
	"github.com/slotwise-health/slotwise/internal/domain/patient"
	"github.com/slotwise-health/slotwise/internal/domain/schedule"
	"github.com/slotwise-health/slotwise/pkg/keylock"
	"github.com/slotwise-health/slotwise/pkg/metrics"
)

// BookingStore is the transactional boundary of the booking path. Each
// method commits slot-flag changes and the appointment write in a single
// database transaction, guarded by the schedule's version: a mismatch
// surfaces as schedule.ErrConcurrentModification and nothing is persisted.
type BookingStore interface {
	GetDay(ctx context.Context, doctorID uuid.UUID, date time.Time) (*schedule.DoctorSchedule, error)

	CreateBooking(ctx context.Context, sched *schedule.DoctorSchedule, block schedule.Block, appt *appointment.Appointment) error
	ReleaseBooking(ctx context.Context, sched *schedule.DoctorSchedule, block schedule.Block, appt *appointment.Appointment) error

	// MoveBooking persists a reschedule: the old block freed, the new block
	// booked, and the appointment row updated, atomically. oldSched and
	// newSched may be the same schedule.
	MoveBooking(ctx context.Context, oldSched *schedule.DoctorSchedule, oldBlock schedule.Block,
		newSched *schedule.DoctorSchedule, newBlock schedule.Block, appt *appointment.Appointment) error
}

type BookingService struct {
	store       BookingStore
	appts       appointment.Repository
	doctors     doctor.Repository
	patients    patient.Repository
	locks       *keylock.KeyedMutex
	cache       *cache.ScheduleCache
	metrics     *metrics.Collector
	auditSvc    *AuditService
	log         *zap.Logger
	maxRetries  int
	clock       func() time.Time
}

func NewBookingService(
	store BookingStore,
	appts appointment.Repository,
	doctors doctor.Repository,
	patients patient.Repository,
	locks *keylock.KeyedMutex,
	scheduleCache *cache.ScheduleCache,
	m *metrics.Collector,
	auditSvc *AuditService,
	log *zap.Logger,
	maxRetries int,
) *BookingService {
	return &BookingService{
		store:      store,
		appts:      appts,
		doctors:    doctors,
		patients:   patients,
		locks:      locks,
		cache:      scheduleCache,
		metrics:    m,
		auditSvc:   auditSvc,
		log:        log,
		maxRetries: maxRetries,
		clock:      time.Now,
	}
}

// WithClock overrides the service's time source. Tests use it to pin "now".
func (s *BookingService) WithClock(clock func() time.Time) *BookingService {
	s.clock = clock
	return s
}

func lockKey(doctorID uuid.UUID, date time.Time) string {
	return doctorID.String() + "|" + date.Format("2006-01-02")
}

// Book reserves a contiguous block for the requested service and creates
// the appointment referencing its anchor slot. The whole
// read-find-reserve-write sequence is serialized per (doctor, date) and
// retried a bounded number of times when a concurrent writer bumps the
// schedule version first.
func (s *BookingService) Book(ctx context.Context, cmd *appointment.BookCommand, callerID uuid.UUID, callerRole string, ip string) (*appointment.Appointment, error) {
	now := s.clock()
	if cmd.RequestedStart.Before(now) {
		return nil, appointment.ErrScheduledInPast
	}

	p, err := s.patients.GetByID(ctx, cmd.PatientID)
	if err != nil {
		return nil, fmt.Errorf("verifying patient: %w", err)
	}
	if !p.IsActive() {
		return nil, patient.ErrPatientInactive
	}

	doc, err := s.doctors.GetByID(ctx, cmd.DoctorID)
	if err != nil {
		return nil, fmt.Errorf("verifying doctor: %w", err)
	}
	if !doc.IsActive() {
		return nil, doctor.ErrDoctorInactive
	}

	svc, err := s.doctors.GetService(ctx, cmd.ServiceID)
	if err != nil {
		return nil, fmt.Errorf("resolving service: %w", err)
	}
	if !svc.Active {
		return nil, doctor.ErrServiceInactive
	}

	required := schedule.RequiredSlots(svc.DurationMins)
	date := schedule.DayOf(cmd.RequestedStart)

	key := lockKey(cmd.DoctorID, date)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	var appt *appointment.Appointment
	err = s.withConflictRetry(ctx, func() error {
		sched, err := s.store.GetDay(ctx, cmd.DoctorID, date)
		if err != nil {
			return err
		}

		block, err := schedule.FindConsecutiveBlock(sched.Slots, cmd.RequestedStart, required)
		if err != nil {
			s.countSearchFailure(err)
			return err
		}
		schedule.Reserve(block)

		appt = &appointment.Appointment{
			PatientID:    cmd.PatientID,
			DoctorID:     cmd.DoctorID,
			SpecialtyID:  doc.SpecialtyID,
			ServiceID:    cmd.ServiceID,
			AnchorSlotID: block.Anchor().ID,
			BlockLen:     required,
			StartsAt:     block.Anchor().StartTime,
			DurationMins: svc.DurationMins,
			Status:       appointment.StatusScheduled,
			Notes:        cmd.Notes,
			CreatedBy:    cmd.CreatedBy,
		}

		if err := s.store.CreateBooking(ctx, sched, block, appt); err != nil {
			// Undo the in-memory reserve before a retry re-reads the day.
			schedule.Release(block)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.cache.Invalidate(cmd.DoctorID, date)
	s.metrics.BookingsTotal.WithLabelValues("booked").Inc()

	s.auditSvc.LogAsync(ctx, AuditEntry{
		UserID:       callerID,
		UserRole:     callerRole,
		Action:       "create",
		ResourceType: "appointment",
		ResourceID:   appt.ID.String(),
		IPAddress:    ip,
	})

	s.log.Info("appointment booked",
		zap.String("appointment_id", appt.ID.String()),
		zap.String("doctor_id", cmd.DoctorID.String()),
		zap.Time("starts_at", appt.StartsAt),
		zap.Int("block_len", required),
	)

	return appt, nil
}

// Cancel releases the appointment's slot block and marks it cancelled. The
// block is reconstructed from the stored anchor; a run that no longer
// matches the appointment is corruption and is surfaced, never repaired.
func (s *BookingService) Cancel(ctx context.Context, id uuid.UUID, cmd *appointment.CancelCommand, callerID uuid.UUID, callerRole string, callerPatientID *uuid.UUID, ip string) (*appointment.Appointment, error) {
	appt, err := s.appts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if callerRole == "patient" {
		if callerPatientID == nil || *callerPatientID != appt.PatientID {
			return nil, ErrForbidden
		}
	}

	if err := appt.Cancel(cmd.Reason, cmd.CancelledBy); err != nil {
		return nil, err
	}

	date := schedule.DayOf(appt.StartsAt)
	key := lockKey(appt.DoctorID, date)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	err = s.withConflictRetry(ctx, func() error {
		sched, err := s.store.GetDay(ctx, appt.DoctorID, date)
		if err != nil {
			return err
		}

		block, err := schedule.RecomputeBlock(sched.Slots, appt.AnchorSlotID, appt.BlockLen)
		if err != nil {
			s.log.Error("corrupt slot block on cancel",
				zap.String("appointment_id", appt.ID.String()),
				zap.String("anchor_slot_id", appt.AnchorSlotID.String()),
				zap.Int("block_len", appt.BlockLen),
			)
			return err
		}

		schedule.Release(block)
		if err := s.store.ReleaseBooking(ctx, sched, block, appt); err != nil {
			schedule.Reserve(block)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.cache.Invalidate(appt.DoctorID, date)
	s.metrics.BookingsTotal.WithLabelValues("cancelled").Inc()

	s.auditSvc.LogAsync(ctx, AuditEntry{
		UserID:       callerID,
		UserRole:     callerRole,
		Action:       "update",
		ResourceType: "appointment",
		ResourceID:   id.String(),
		IPAddress:    ip,
		Changes:      fmt.Sprintf(`{"status":"cancelled","reason":%q}`, cmd.Reason),
	})

	return appt, nil
}

// Reschedule moves an appointment to a new start and/or service. The new
// block is reserved before the old one is released, and both changes plus
// the appointment update commit in one transaction — a failed reservation
// leaves the old block untouched.
func (s *BookingService) Reschedule(ctx context.Context, id uuid.UUID, cmd *appointment.RescheduleCommand, callerID uuid.UUID, callerRole string, callerPatientID *uuid.UUID, ip string) (*appointment.Appointment, error) {
	appt, err := s.appts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if callerRole == "patient" {
		if callerPatientID == nil || *callerPatientID != appt.PatientID {
			return nil, ErrForbidden
		}
	}

	if !appt.IsActive() {
		return nil, appointment.ErrAppointmentNotActive
	}

	newStart := appt.StartsAt
	if cmd.NewStart != nil {
		newStart = *cmd.NewStart
	}
	serviceID := appt.ServiceID
	if cmd.NewServiceID != nil {
		serviceID = *cmd.NewServiceID
	}
	if newStart.Equal(appt.StartsAt) && serviceID == appt.ServiceID {
		return appt, nil
	}
	if newStart.Before(s.clock()) {
		return nil, appointment.ErrScheduledInPast
	}

	svc, err := s.doctors.GetService(ctx, serviceID)
	if err != nil {
		return nil, fmt.Errorf("resolving service: %w", err)
	}
	if !svc.Active {
		return nil, doctor.ErrServiceInactive
	}
	required := schedule.RequiredSlots(svc.DurationMins)

	oldDate := schedule.DayOf(appt.StartsAt)
	newDate := schedule.DayOf(newStart)

	// Both days lock in deterministic order so two opposing reschedules
	// cannot deadlock.
	keys := []string{lockKey(appt.DoctorID, oldDate)}
	if !newDate.Equal(oldDate) {
		keys = append(keys, lockKey(appt.DoctorID, newDate))
		if keys[1] < keys[0] {
			keys[0], keys[1] = keys[1], keys[0]
		}
	}
	for _, k := range keys {
		s.locks.Lock(k)
	}
	defer func() {
		for i := len(keys) - 1; i >= 0; i-- {
			s.locks.Unlock(keys[i])
		}
	}()

	err = s.withConflictRetry(ctx, func() error {
		oldSched, err := s.store.GetDay(ctx, appt.DoctorID, oldDate)
		if err != nil {
			return err
		}
		oldBlock, err := schedule.RecomputeBlock(oldSched.Slots, appt.AnchorSlotID, appt.BlockLen)
		if err != nil {
			s.log.Error("corrupt slot block on reschedule",
				zap.String("appointment_id", appt.ID.String()),
				zap.String("anchor_slot_id", appt.AnchorSlotID.String()),
			)
			return err
		}

		newSched := oldSched
		if !newDate.Equal(oldDate) {
			newSched, err = s.store.GetDay(ctx, appt.DoctorID, newDate)
			if err != nil {
				return err
			}
		}

		// Free the old block in memory first so a same-day move into an
		// overlapping window can succeed; nothing is persisted yet, so a
		// failed search leaves the old reservation intact.
		schedule.Release(oldBlock)
		newBlock, err := schedule.FindConsecutiveBlock(newSched.Slots, newStart, required)
		if err != nil {
			schedule.Reserve(oldBlock)
			s.countSearchFailure(err)
			return err
		}
		schedule.Reserve(newBlock)

		prev := *appt
		appt.AnchorSlotID = newBlock.Anchor().ID
		appt.BlockLen = required
		appt.StartsAt = newBlock.Anchor().StartTime
		appt.DurationMins = svc.DurationMins
		appt.ServiceID = serviceID

		if err := s.store.MoveBooking(ctx, oldSched, oldBlock, newSched, newBlock, appt); err != nil {
			*appt = prev
			schedule.Release(newBlock)
			schedule.Reserve(oldBlock)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.cache.Invalidate(appt.DoctorID, oldDate)
	if !newDate.Equal(oldDate) {
		s.cache.Invalidate(appt.DoctorID, newDate)
	}
	s.metrics.BookingsTotal.WithLabelValues("rescheduled").Inc()

	s.auditSvc.LogAsync(ctx, AuditEntry{
		UserID:       callerID,
		UserRole:     callerRole,
		Action:       "update",
		ResourceType: "appointment",
		ResourceID:   id.String(),
		IPAddress:    ip,
		Changes:      fmt.Sprintf(`{"starts_at":%q}`, appt.StartsAt.Format(time.RFC3339)),
	})

	return appt, nil
}

// Suggest returns the earliest start time from which the service's full
// block can be reserved on the given day. Built on top of the anchored
// search; it never reserves anything.
func (s *BookingService) Suggest(ctx context.Context, doctorID, serviceID uuid.UUID, date time.Time) (time.Time, error) {
	svc, err := s.doctors.GetService(ctx, serviceID)
	if err != nil {
		return time.Time{}, fmt.Errorf("resolving service: %w", err)
	}
	required := schedule.RequiredSlots(svc.DurationMins)

	day := schedule.DayOf(date)
	sched, err := s.store.GetDay(ctx, doctorID, day)
	if err != nil {
		return time.Time{}, err
	}

	// Past starts are excluded when suggesting for today.
	after := day
	if now := s.clock(); now.After(after) {
		after = now
	}

	start, ok := schedule.NextAvailableStart(sched.Slots, after, required)
	if !ok {
		return time.Time{}, schedule.ErrInsufficientContiguousSlots
	}
	return start, nil
}

func (s *BookingService) GetAppointment(ctx context.Context, id uuid.UUID, callerRole string, callerPatientID *uuid.UUID) (*appointment.Appointment, error) {
	appt, err := s.appts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if callerRole == "patient" {
		if callerPatientID == nil || *callerPatientID != appt.PatientID {
			return nil, ErrForbidden
		}
	}
	return appt, nil
}

func (s *BookingService) ListAppointments(ctx context.Context, q *appointment.ListQuery, callerRole string, callerPatientID *uuid.UUID) (*appointment.Paged, error) {
	// Patients can only see their own appointments
	if callerRole == "patient" && callerPatientID != nil {
		q.PatientID = callerPatientID
	}
	if q.PageSize <= 0 || q.PageSize > 100 {
		q.PageSize = 20
	}
	if q.Page <= 0 {
		q.Page = 1
	}
	return s.appts.List(ctx, q)
}

// withConflictRetry re-runs fn while it fails with
// schedule.ErrConcurrentModification, up to the configured retry budget.
// The keyed lock already serializes writers within this process; the retry
// covers writers on other instances racing through the version check.
func (s *BookingService) withConflictRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if err = ctx.Err(); err != nil {
			return err
		}
		err = fn()
		if err == nil || !errors.Is(err, schedule.ErrConcurrentModification) {
			return err
		}
		s.metrics.BookingConflictsTotal.Inc()
		s.log.Warn("schedule version conflict, retrying", zap.Int("attempt", attempt+1))
	}
	return err
}

func (s *BookingService) countSearchFailure(err error) {
	switch {
	case errors.Is(err, schedule.ErrNoMatchingStart):
		s.metrics.SlotSearchFailures.WithLabelValues("no_start").Inc()
	case errors.Is(err, schedule.ErrInsufficientContiguousSlots):
		s.metrics.SlotSearchFailures.WithLabelValues("insufficient").Inc()
	}
}
