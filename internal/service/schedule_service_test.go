package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/slotwise-health/slotwise/internal/cache"
	"github.com/slotwise-health/slotwise/internal/domain/appointment"
	"github.com/slotwise-health/slotwise/internal/domain/doctor"
	"github.com/slotwise-health/slotwise/internal/domain/schedule"
	"github.com/slotwise-health/slotwise/pkg/keylock"
)

type fakeScheduleRepo struct {
	days     map[string]*schedule.DoctorSchedule
	getCalls int
}

func newFakeScheduleRepo() *fakeScheduleRepo {
	return &fakeScheduleRepo{days: make(map[string]*schedule.DoctorSchedule)}
}

func (r *fakeScheduleRepo) GetDay(_ context.Context, doctorID uuid.UUID, date time.Time) (*schedule.DoctorSchedule, error) {
	r.getCalls++
	sched, ok := r.days[cache.Key(doctorID, date)]
	if !ok {
		return nil, schedule.ErrScheduleNotFound
	}
	return sched, nil
}

func (r *fakeScheduleRepo) ReplaceDay(_ context.Context, sched *schedule.DoctorSchedule) error {
	r.days[cache.Key(sched.DoctorID, sched.Date)] = sched
	return nil
}

func (r *fakeScheduleRepo) SaveSlotFlags(context.Context, uuid.UUID, int64, []*schedule.TimeSlot) error {
	return errors.New("not implemented")
}

type scheduleFixture struct {
	svc      *ScheduleService
	repo     *fakeScheduleRepo
	appts    *fakeApptRepo
	doctorID uuid.UUID
	now      time.Time
	caller   uuid.UUID
}

func newScheduleFixture(t *testing.T) *scheduleFixture {
	t.Helper()

	f := &scheduleFixture{
		repo:     newFakeScheduleRepo(),
		appts:    newFakeApptRepo(),
		doctorID: uuid.New(),
		caller:   uuid.New(),
		// A Monday.
		now: time.Date(2026, 3, 2, 7, 0, 0, 0, time.UTC),
	}

	doctors := &fakeDoctorRepo{
		doctors: map[uuid.UUID]*doctor.Doctor{
			f.doctorID: {ID: f.doctorID, FirstName: "Ana", LastName: "Reyes", Active: true},
		},
	}

	log := zap.NewNop()
	scheduleCache, err := cache.NewScheduleCache(16, log)
	if err != nil {
		t.Fatalf("NewScheduleCache: %v", err)
	}
	auditSvc := NewAuditService(fakeAuditRepo{}, testMetrics, log)
	t.Cleanup(auditSvc.Shutdown)

	f.svc = NewScheduleService(
		f.repo, f.appts, doctors, keylock.New(), scheduleCache, testMetrics, auditSvc, log,
	).WithClock(func() time.Time { return f.now })

	return f
}

func weekdaysOnly(start, end string) schedule.WeeklyTemplate {
	tmpl := schedule.WeeklyTemplate{}
	for wd := time.Monday; wd <= time.Friday; wd++ {
		tmpl[wd] = schedule.DayWindow{Active: true, Start: start, End: end}
	}
	return tmpl
}

func TestScheduleService_ApplyWeeklyTemplate(t *testing.T) {
	f := newScheduleFixture(t)

	// Monday through Sunday: five active days of 09:00-11:00, eight slots
	// each.
	until := time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)
	n, err := f.svc.ApplyWeeklyTemplate(context.Background(), f.doctorID, until, weekdaysOnly("09:00", "11:00"), f.caller, "admin", "")
	if err != nil {
		t.Fatalf("ApplyWeeklyTemplate: %v", err)
	}
	if n != 40 {
		t.Errorf("generated slots = %d, want 40", n)
	}
	if len(f.repo.days) != 5 {
		t.Errorf("stored days = %d, want 5", len(f.repo.days))
	}

	sat := time.Date(2026, 3, 7, 0, 0, 0, 0, time.UTC)
	if _, err := f.repo.GetDay(context.Background(), f.doctorID, sat); !errors.Is(err, schedule.ErrScheduleNotFound) {
		t.Errorf("Saturday should have no schedule, got err = %v", err)
	}
}

func TestScheduleService_ApplyWeeklyTemplate_Idempotent(t *testing.T) {
	f := newScheduleFixture(t)

	until := time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)
	tmpl := weekdaysOnly("09:00", "10:00")

	if _, err := f.svc.ApplyWeeklyTemplate(context.Background(), f.doctorID, until, tmpl, f.caller, "admin", ""); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	n, err := f.svc.ApplyWeeklyTemplate(context.Background(), f.doctorID, until, tmpl, f.caller, "admin", "")
	if err != nil {
		t.Fatalf("second apply: %v", err)
	}
	if n != 20 {
		t.Errorf("generated slots = %d, want 20", n)
	}
	if len(f.repo.days) != 5 {
		t.Errorf("stored days = %d, want 5 (replacement, not accumulation)", len(f.repo.days))
	}
}

func TestScheduleService_ApplyWeeklyTemplate_RefusesBookedDay(t *testing.T) {
	f := newScheduleFixture(t)

	// An active appointment on Tuesday blocks the whole apply.
	f.appts.byID[uuid.New()] = activeAppt(f.doctorID, time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC))

	until := time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)
	_, err := f.svc.ApplyWeeklyTemplate(context.Background(), f.doctorID, until, weekdaysOnly("09:00", "11:00"), f.caller, "admin", "")
	if !errors.Is(err, schedule.ErrDayHasBookings) {
		t.Fatalf("err = %v, want ErrDayHasBookings", err)
	}
}

func TestScheduleService_ApplyWeeklyTemplate_InvalidWindow(t *testing.T) {
	f := newScheduleFixture(t)

	until := time.Date(2026, 3, 8, 0, 0, 0, 0, time.UTC)
	_, err := f.svc.ApplyWeeklyTemplate(context.Background(), f.doctorID, until, schedule.WeeklyTemplate{
		time.Monday: {Active: true, Start: "17:00", End: "09:00"},
	}, f.caller, "admin", "")
	if !errors.Is(err, schedule.ErrInvalidTimeRange) {
		t.Fatalf("err = %v, want ErrInvalidTimeRange", err)
	}
}

func TestScheduleService_ApplyWeeklyTemplate_EndBeforeToday(t *testing.T) {
	f := newScheduleFixture(t)

	until := f.now.AddDate(0, 0, -1)
	_, err := f.svc.ApplyWeeklyTemplate(context.Background(), f.doctorID, until, weekdaysOnly("09:00", "11:00"), f.caller, "admin", "")
	if !errors.Is(err, schedule.ErrInvalidTimeRange) {
		t.Fatalf("err = %v, want ErrInvalidTimeRange", err)
	}
}

func TestScheduleService_GetDay_Caches(t *testing.T) {
	f := newScheduleFixture(t)

	until := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	if _, err := f.svc.ApplyWeeklyTemplate(context.Background(), f.doctorID, until, weekdaysOnly("09:00", "11:00"), f.caller, "admin", ""); err != nil {
		t.Fatalf("ApplyWeeklyTemplate: %v", err)
	}

	date := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	first, err := f.svc.GetDay(context.Background(), f.doctorID, date)
	if err != nil {
		t.Fatalf("GetDay: %v", err)
	}
	callsAfterMiss := f.repo.getCalls

	second, err := f.svc.GetDay(context.Background(), f.doctorID, date)
	if err != nil {
		t.Fatalf("GetDay (cached): %v", err)
	}
	if f.repo.getCalls != callsAfterMiss {
		t.Errorf("repo hit on cached read: calls went %d -> %d", callsAfterMiss, f.repo.getCalls)
	}
	if second != first {
		t.Error("cached read should return the same schedule")
	}
}

func activeAppt(doctorID uuid.UUID, startsAt time.Time) *appointment.Appointment {
	return &appointment.Appointment{
		ID:           uuid.New(),
		DoctorID:     doctorID,
		PatientID:    uuid.New(),
		AnchorSlotID: uuid.New(),
		BlockLen:     1,
		StartsAt:     startsAt,
		DurationMins: 15,
		Status:       appointment.StatusScheduled,
	}
}
