package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/slotwise-health/slotwise/internal/cache"
	"github.com/slotwise-health/slotwise/internal/domain/appointment"
	"github.com/slotwise-health/slotwise/internal/domain/doctor"
	"github.com/slotwise-health/slotwise/internal/domain/schedule"
	"github.com/slotwise-health/slotwise/pkg/keylock"
	"github.com/slotwise-health/slotwise/pkg/metrics"
)

type ScheduleService struct {
	schedules schedule.Repository
	appts     appointment.Repository
	doctors   doctor.Repository
	locks     *keylock.KeyedMutex
	cache     *cache.ScheduleCache
	metrics   *metrics.Collector
	auditSvc  *AuditService
	log       *zap.Logger
	clock     func() time.Time
}

func NewScheduleService(
	schedules schedule.Repository,
	appts appointment.Repository,
	doctors doctor.Repository,
	locks *keylock.KeyedMutex,
	scheduleCache *cache.ScheduleCache,
	m *metrics.Collector,
	auditSvc *AuditService,
	log *zap.Logger,
) *ScheduleService {
	return &ScheduleService{
		schedules: schedules,
		appts:     appts,
		doctors:   doctors,
		locks:     locks,
		cache:     scheduleCache,
		metrics:   m,
		auditSvc:  auditSvc,
		log:       log,
		clock:     time.Now,
	}
}

func (s *ScheduleService) WithClock(clock func() time.Time) *ScheduleService {
	s.clock = clock
	return s
}

// ApplyWeeklyTemplate expands the weekly template from today through
// repeatUntil and replaces each generated day's slots wholesale. Days whose
// weekday is inactive in the template are left alone, and any day that
// already holds a live appointment is refused rather than silently
// rebuilt under it.
func (s *ScheduleService) ApplyWeeklyTemplate(ctx context.Context, doctorID uuid.UUID, repeatUntil time.Time, template schedule.WeeklyTemplate, callerID uuid.UUID, callerRole string, ip string) (int, error) {
	doc, err := s.doctors.GetByID(ctx, doctorID)
	if err != nil {
		return 0, fmt.Errorf("verifying doctor: %w", err)
	}
	if !doc.IsActive() {
		return 0, doctor.ErrDoctorInactive
	}

	now := s.clock()
	if schedule.DayOf(repeatUntil).Before(schedule.DayOf(now)) {
		return 0, schedule.ErrInvalidTimeRange
	}

	days, err := schedule.ExpandTemplate(doctorID, now, repeatUntil, template)
	if err != nil {
		return 0, err
	}

	var slotCount int
	for _, day := range days {
		if err := s.replaceDay(ctx, day); err != nil {
			return slotCount, err
		}
		slotCount += len(day.Slots)
	}

	s.metrics.SlotsGeneratedTotal.Add(float64(slotCount))

	s.auditSvc.LogAsync(ctx, AuditEntry{
		UserID:       callerID,
		UserRole:     callerRole,
		Action:       "update",
		ResourceType: "doctor_schedule",
		ResourceID:   doctorID.String(),
		IPAddress:    ip,
		Changes:      fmt.Sprintf(`{"days":%d,"slots":%d}`, len(days), slotCount),
	})

	s.log.Info("weekly template applied",
		zap.String("doctor_id", doctorID.String()),
		zap.Int("days", len(days)),
		zap.Int("slots", slotCount),
	)

	return slotCount, nil
}

func (s *ScheduleService) replaceDay(ctx context.Context, day *schedule.DoctorSchedule) error {
	key := day.DoctorID.String() + "|" + day.Date.Format("2006-01-02")
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	n, err := s.appts.CountActiveInRange(ctx, day.DoctorID, day.Date, day.Date.AddDate(0, 0, 1))
	if err != nil {
		return fmt.Errorf("checking bookings for %s: %w", day.Date.Format("2006-01-02"), err)
	}
	if n > 0 {
		return fmt.Errorf("%w: %s has %d active appointment(s)", schedule.ErrDayHasBookings, day.Date.Format("2006-01-02"), n)
	}

	if err := s.schedules.ReplaceDay(ctx, day); err != nil {
		return fmt.Errorf("replacing day %s: %w", day.Date.Format("2006-01-02"), err)
	}
	s.cache.Invalidate(day.DoctorID, day.Date)
	return nil
}

// GetDay returns one doctor's day schedule, served from the LRU when the
// day has not been mutated since it was cached.
func (s *ScheduleService) GetDay(ctx context.Context, doctorID uuid.UUID, date time.Time) (*schedule.DoctorSchedule, error) {
	day := schedule.DayOf(date)

	if sched, ok := s.cache.Get(doctorID, day); ok {
		s.metrics.ScheduleCacheHits.WithLabelValues("hit").Inc()
		return sched, nil
	}
	s.metrics.ScheduleCacheHits.WithLabelValues("miss").Inc()

	sched, err := s.schedules.GetDay(ctx, doctorID, day)
	if err != nil {
		return nil, err
	}
	s.cache.Put(sched)
	return sched, nil
}
