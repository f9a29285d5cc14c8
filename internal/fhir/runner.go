package fhir

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/slotwise-health/slotwise/internal/cache"
	"github.com/slotwise-health/slotwise/internal/domain/appointment"
	"github.com/slotwise-health/slotwise/internal/domain/doctor"
	"github.com/slotwise-health/slotwise/internal/domain/schedule"
	"github.com/slotwise-health/slotwise/pkg/keylock"
	"github.com/slotwise-health/slotwise/pkg/metrics"
)

// Runner periodically pulls availability for every synced doctor and
// replaces the affected local days. Days that already carry active
// appointments are left alone: regenerating them would orphan the
// appointments' slot anchors.
type Runner struct {
	client    *Client
	doctors   doctor.Repository
	schedules schedule.Repository
	appts     appointment.Repository
	locks     *keylock.KeyedMutex
	cache     *cache.ScheduleCache
	metrics   *metrics.Collector
	log       *zap.Logger

	interval time.Duration
	horizon  time.Duration
	clock    func() time.Time
}

func NewRunner(
	client *Client,
	doctors doctor.Repository,
	schedules schedule.Repository,
	appts appointment.Repository,
	locks *keylock.KeyedMutex,
	scheduleCache *cache.ScheduleCache,
	m *metrics.Collector,
	log *zap.Logger,
	interval time.Duration,
	horizonDays int,
) *Runner {
	return &Runner{
		client:    client,
		doctors:   doctors,
		schedules: schedules,
		appts:     appts,
		locks:     locks,
		cache:     scheduleCache,
		metrics:   m,
		log:       log,
		interval:  interval,
		horizon:   time.Duration(horizonDays) * 24 * time.Hour,
		clock:     time.Now,
	}
}

// Run loops until the context is cancelled. The first sync fires
// immediately, then on every interval tick.
func (r *Runner) Run(ctx context.Context) {
	r.log.Info("fhir sync runner started",
		zap.Duration("interval", r.interval),
		zap.Duration("horizon", r.horizon),
	)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		r.syncOnce(ctx)
		select {
		case <-ctx.Done():
			r.log.Info("fhir sync runner stopped")
			return
		case <-ticker.C:
		}
	}
}

func (r *Runner) syncOnce(ctx context.Context) {
	start := r.clock()

	doctors, err := r.doctors.ListSynced(ctx)
	if err != nil {
		r.log.Error("fhir sync: listing synced doctors", zap.Error(err))
		r.metrics.FHIRSyncRuns.WithLabelValues("error").Inc()
		return
	}
	if len(doctors) == 0 {
		r.metrics.FHIRSyncRuns.WithLabelValues("ok").Inc()
		return
	}

	var synced, failed int
	for _, doc := range doctors {
		if ctx.Err() != nil {
			return
		}
		if err := r.syncDoctor(ctx, doc); err != nil {
			failed++
			r.log.Error("fhir sync: doctor failed",
				zap.String("doctor_id", doc.ID.String()),
				zap.String("practitioner", doc.FHIRPractitionerID),
				zap.Error(err),
			)
			continue
		}
		synced++
	}

	outcome := "ok"
	switch {
	case failed > 0 && synced == 0:
		outcome = "error"
	case failed > 0:
		outcome = "partial"
	}
	r.metrics.FHIRSyncRuns.WithLabelValues(outcome).Inc()

	r.log.Info("fhir sync run complete",
		zap.Int("doctors_synced", synced),
		zap.Int("doctors_failed", failed),
		zap.Duration("took", r.clock().Sub(start)),
	)
}

func (r *Runner) syncDoctor(ctx context.Context, doc *doctor.Doctor) error {
	scheds, err := r.client.SearchSchedules(ctx, doc.FHIRPractitionerID)
	if err != nil {
		return fmt.Errorf("searching schedules: %w", err)
	}

	from := schedule.DayOf(r.clock())
	to := from.Add(r.horizon)

	for _, sched := range scheds {
		slots, err := r.client.SearchSlots(ctx, sched.ID, from, to)
		if err != nil {
			return fmt.Errorf("searching slots for schedule %s: %w", sched.ID, err)
		}

		res := MapSlots(doc.ID, slots)
		if res.Skipped > 0 {
			r.log.Warn("fhir sync: skipped unmappable slots",
				zap.String("doctor_id", doc.ID.String()),
				zap.Int("skipped", res.Skipped),
			)
		}

		for _, day := range res.Days {
			if err := r.applyDay(ctx, day); err != nil {
				if errors.Is(err, schedule.ErrDayHasBookings) {
					r.log.Info("fhir sync: day kept, has active appointments",
						zap.String("doctor_id", doc.ID.String()),
						zap.String("date", day.Date.Format("2006-01-02")),
					)
					continue
				}
				return err
			}
			r.metrics.FHIRSyncSlots.Add(float64(len(day.Slots)))
		}
	}
	return nil
}

func (r *Runner) applyDay(ctx context.Context, day *schedule.DoctorSchedule) error {
	key := day.DoctorID.String() + "|" + day.Date.Format("2006-01-02")
	r.locks.Lock(key)
	defer r.locks.Unlock(key)

	n, err := r.appts.CountActiveInRange(ctx, day.DoctorID, day.Date, day.Date.AddDate(0, 0, 1))
	if err != nil {
		return fmt.Errorf("checking bookings: %w", err)
	}
	if n > 0 {
		return schedule.ErrDayHasBookings
	}

	if err := r.schedules.ReplaceDay(ctx, day); err != nil {
		return fmt.Errorf("replacing day %s: %w", day.Date.Format("2006-01-02"), err)
	}
	r.cache.Invalidate(day.DoctorID, day.Date)
	return nil
}
