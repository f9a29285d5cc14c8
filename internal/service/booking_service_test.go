package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/slotwise-health/slotwise/internal/cache"
	"github.com/slotwise-health/slotwise/internal/domain"
	"github.com/slotwise-health/slotwise/internal/domain/appointment"
	"github.com/slotwise-health/slotwise/internal/domain/doctor"
	"github.com/slotwise-health/slotwise/internal/domain/patient"
	"github.com/slotwise-health/slotwise/internal/domain/schedule"
	"github.com/slotwise-health/slotwise/pkg/keylock"
	"github.com/slotwise-health/slotwise/pkg/metrics"
)

// prometheus collectors register globally, so the package shares one.
var testMetrics = metrics.NewCollector("slotwise_test")

type fakeApptRepo struct {
	byID map[uuid.UUID]*appointment.Appointment
}

func newFakeApptRepo() *fakeApptRepo {
	return &fakeApptRepo{byID: make(map[uuid.UUID]*appointment.Appointment)}
}

func (r *fakeApptRepo) GetByID(_ context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	a, ok := r.byID[id]
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	return a, nil
}

func (r *fakeApptRepo) List(_ context.Context, q *appointment.ListQuery) (*appointment.Paged, error) {
	var out []*appointment.Appointment
	for _, a := range r.byID {
		if q.PatientID != nil && a.PatientID != *q.PatientID {
			continue
		}
		out = append(out, a)
	}
	return &appointment.Paged{Appointments: out, TotalCount: int64(len(out)), Page: q.Page, PageSize: q.PageSize}, nil
}

func (r *fakeApptRepo) UpdateStatus(_ context.Context, a *appointment.Appointment) error {
	r.byID[a.ID] = a
	return nil
}

func (r *fakeApptRepo) CountActiveInRange(_ context.Context, doctorID uuid.UUID, from, to time.Time) (int64, error) {
	var n int64
	for _, a := range r.byID {
		if a.DoctorID == doctorID && a.IsActive() && !a.StartsAt.Before(from) && a.StartsAt.Before(to) {
			n++
		}
	}
	return n, nil
}

// fakeBookingStore keeps day schedules in memory and mirrors the
// transactional contract: it can be told to fail the next N commits with
// ErrConcurrentModification.
type fakeBookingStore struct {
	days        map[string]*schedule.DoctorSchedule
	appts       *fakeApptRepo
	failCommits int
	commits     int
}

func newFakeBookingStore(appts *fakeApptRepo) *fakeBookingStore {
	return &fakeBookingStore{days: make(map[string]*schedule.DoctorSchedule), appts: appts}
}

func (s *fakeBookingStore) addDay(sched *schedule.DoctorSchedule) {
	s.days[cache.Key(sched.DoctorID, sched.Date)] = sched
}

func (s *fakeBookingStore) GetDay(_ context.Context, doctorID uuid.UUID, date time.Time) (*schedule.DoctorSchedule, error) {
	sched, ok := s.days[cache.Key(doctorID, date)]
	if !ok {
		return nil, schedule.ErrScheduleNotFound
	}
	return sched, nil
}

func (s *fakeBookingStore) commit() error {
	if s.failCommits > 0 {
		s.failCommits--
		return schedule.ErrConcurrentModification
	}
	s.commits++
	return nil
}

func (s *fakeBookingStore) CreateBooking(_ context.Context, sched *schedule.DoctorSchedule, _ schedule.Block, appt *appointment.Appointment) error {
	if err := s.commit(); err != nil {
		return err
	}
	appt.ID = uuid.New()
	sched.Version++
	s.appts.byID[appt.ID] = appt
	return nil
}

func (s *fakeBookingStore) ReleaseBooking(_ context.Context, sched *schedule.DoctorSchedule, _ schedule.Block, appt *appointment.Appointment) error {
	if err := s.commit(); err != nil {
		return err
	}
	sched.Version++
	s.appts.byID[appt.ID] = appt
	return nil
}

func (s *fakeBookingStore) MoveBooking(_ context.Context, oldSched *schedule.DoctorSchedule, _ schedule.Block, newSched *schedule.DoctorSchedule, _ schedule.Block, appt *appointment.Appointment) error {
	if err := s.commit(); err != nil {
		return err
	}
	oldSched.Version++
	if newSched != oldSched {
		newSched.Version++
	}
	s.appts.byID[appt.ID] = appt
	return nil
}

type fakeDoctorRepo struct {
	doctors  map[uuid.UUID]*doctor.Doctor
	services map[uuid.UUID]*doctor.HospitalService
}

func (r *fakeDoctorRepo) GetByID(_ context.Context, id uuid.UUID) (*doctor.Doctor, error) {
	d, ok := r.doctors[id]
	if !ok {
		return nil, doctor.ErrDoctorNotFound
	}
	return d, nil
}

func (r *fakeDoctorRepo) List(context.Context, *uuid.UUID) ([]*doctor.Doctor, error) {
	return nil, errors.New("not implemented")
}

func (r *fakeDoctorRepo) ListSynced(context.Context) ([]*doctor.Doctor, error) {
	return nil, errors.New("not implemented")
}

func (r *fakeDoctorRepo) GetService(_ context.Context, id uuid.UUID) (*doctor.HospitalService, error) {
	svc, ok := r.services[id]
	if !ok {
		return nil, doctor.ErrServiceNotFound
	}
	return svc, nil
}

func (r *fakeDoctorRepo) ListServices(context.Context, uuid.UUID) ([]*doctor.HospitalService, error) {
	return nil, errors.New("not implemented")
}

func (r *fakeDoctorRepo) GetSpecialty(context.Context, uuid.UUID) (*doctor.Specialty, error) {
	return nil, errors.New("not implemented")
}

func (r *fakeDoctorRepo) ListSpecialties(context.Context) ([]*doctor.Specialty, error) {
	return nil, errors.New("not implemented")
}

type fakePatientRepo struct {
	patients map[uuid.UUID]*patient.Patient
}

func (r *fakePatientRepo) Create(context.Context, *patient.Patient) error {
	return errors.New("not implemented")
}

func (r *fakePatientRepo) GetByID(_ context.Context, id uuid.UUID) (*patient.Patient, error) {
	p, ok := r.patients[id]
	if !ok {
		return nil, patient.ErrPatientNotFound
	}
	return p, nil
}

func (r *fakePatientRepo) GetByNationalID(context.Context, string) (*patient.Patient, error) {
	return nil, errors.New("not implemented")
}

func (r *fakePatientRepo) Update(context.Context, uuid.UUID, *patient.UpdatePatientCommand) (*patient.Patient, error) {
	return nil, errors.New("not implemented")
}

func (r *fakePatientRepo) SoftDelete(context.Context, uuid.UUID) error {
	return errors.New("not implemented")
}

func (r *fakePatientRepo) List(context.Context, *patient.ListPatientsQuery) (*patient.PagedPatients, error) {
	return nil, errors.New("not implemented")
}

func (r *fakePatientRepo) ExistsByNationalID(context.Context, string, *uuid.UUID) (bool, error) {
	return false, errors.New("not implemented")
}

type fakeAuditRepo struct{}

func (fakeAuditRepo) Create(context.Context, *domain.AuditLog) error { return nil }

type bookingFixture struct {
	svc       *BookingService
	store     *fakeBookingStore
	appts     *fakeApptRepo
	day       *schedule.DoctorSchedule
	doctorID  uuid.UUID
	patientID uuid.UUID
	svc15     uuid.UUID // one-slot service
	svc30     uuid.UUID // two-slot service
	svc60     uuid.UUID // four-slot service
	now       time.Time
	caller    uuid.UUID
}

// newBookingFixture seeds one doctor with a free 09:00-11:00 Monday and
// three services of 15, 30 and 60 minutes.
func newBookingFixture(t *testing.T) *bookingFixture {
	t.Helper()

	f := &bookingFixture{
		doctorID:  uuid.New(),
		patientID: uuid.New(),
		svc15:     uuid.New(),
		svc30:     uuid.New(),
		svc60:     uuid.New(),
		caller:    uuid.New(),
		now:       time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC),
	}

	specialtyID := uuid.New()
	doctors := &fakeDoctorRepo{
		doctors: map[uuid.UUID]*doctor.Doctor{
			f.doctorID: {ID: f.doctorID, FirstName: "Ana", LastName: "Reyes", SpecialtyID: specialtyID, Active: true},
		},
		services: map[uuid.UUID]*doctor.HospitalService{
			f.svc15: {ID: f.svc15, SpecialtyID: specialtyID, DurationMins: 15, Active: true},
			f.svc30: {ID: f.svc30, SpecialtyID: specialtyID, DurationMins: 30, Active: true},
			f.svc60: {ID: f.svc60, SpecialtyID: specialtyID, DurationMins: 60, Active: true},
		},
	}

	patients := &fakePatientRepo{
		patients: map[uuid.UUID]*patient.Patient{
			f.patientID: {ID: f.patientID, FirstName: "Luis", LastName: "Mora", Status: patient.StatusActive},
		},
	}

	date := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	f.day = &schedule.DoctorSchedule{ID: uuid.New(), DoctorID: f.doctorID, Date: date}
	for i := 0; i < 8; i++ {
		start := date.Add(9*time.Hour + time.Duration(i)*schedule.Granularity)
		f.day.Slots = append(f.day.Slots, &schedule.TimeSlot{
			ID:         uuid.New(),
			ScheduleID: f.day.ID,
			StartTime:  start,
			EndTime:    start.Add(schedule.Granularity),
		})
	}

	f.appts = newFakeApptRepo()
	f.store = newFakeBookingStore(f.appts)
	f.store.addDay(f.day)

	log := zap.NewNop()
	scheduleCache, err := cache.NewScheduleCache(16, log)
	if err != nil {
		t.Fatalf("NewScheduleCache: %v", err)
	}
	auditSvc := NewAuditService(fakeAuditRepo{}, testMetrics, log)
	t.Cleanup(auditSvc.Shutdown)

	f.svc = NewBookingService(
		f.store, f.appts, doctors, patients,
		keylock.New(), scheduleCache, testMetrics, auditSvc, log, 3,
	).WithClock(func() time.Time { return f.now })

	return f
}

func (f *bookingFixture) at(hour, min int) time.Time {
	return time.Date(2026, 3, 2, hour, min, 0, 0, time.UTC)
}

func (f *bookingFixture) book(t *testing.T, serviceID uuid.UUID, start time.Time) *appointment.Appointment {
	t.Helper()
	appt, err := f.svc.Book(context.Background(), &appointment.BookCommand{
		PatientID:      f.patientID,
		DoctorID:       f.doctorID,
		ServiceID:      serviceID,
		RequestedStart: start,
		CreatedBy:      f.caller,
	}, f.caller, "receptionist", "10.0.0.1")
	if err != nil {
		t.Fatalf("Book(%s): %v", start.Format("15:04"), err)
	}
	return appt
}

func (f *bookingFixture) bookedStarts() []string {
	var out []string
	for _, s := range f.day.Slots {
		if s.IsBooked {
			out = append(out, s.StartTime.Format("15:04"))
		}
	}
	return out
}

func TestBookingService_Book(t *testing.T) {
	f := newBookingFixture(t)

	appt := f.book(t, f.svc30, f.at(9, 0))

	if appt.BlockLen != 2 {
		t.Errorf("BlockLen = %d, want 2", appt.BlockLen)
	}
	if !appt.StartsAt.Equal(f.at(9, 0)) {
		t.Errorf("StartsAt = %v, want 09:00", appt.StartsAt)
	}
	if appt.AnchorSlotID != f.day.Slots[0].ID {
		t.Error("anchor should be the 09:00 slot")
	}
	if appt.Status != appointment.StatusScheduled {
		t.Errorf("Status = %q, want scheduled", appt.Status)
	}

	got := f.bookedStarts()
	if len(got) != 2 || got[0] != "09:00" || got[1] != "09:15" {
		t.Errorf("booked slots = %v, want [09:00 09:15]", got)
	}
	if f.store.commits != 1 {
		t.Errorf("commits = %d, want 1", f.store.commits)
	}
}

func TestBookingService_Book_PastStart(t *testing.T) {
	f := newBookingFixture(t)
	f.now = f.at(9, 30)

	_, err := f.svc.Book(context.Background(), &appointment.BookCommand{
		PatientID:      f.patientID,
		DoctorID:       f.doctorID,
		ServiceID:      f.svc15,
		RequestedStart: f.at(9, 0),
	}, f.caller, "receptionist", "")
	if !errors.Is(err, appointment.ErrScheduledInPast) {
		t.Fatalf("err = %v, want ErrScheduledInPast", err)
	}
}

func TestBookingService_Book_NoSlotAtRequestedStart(t *testing.T) {
	f := newBookingFixture(t)

	_, err := f.svc.Book(context.Background(), &appointment.BookCommand{
		PatientID:      f.patientID,
		DoctorID:       f.doctorID,
		ServiceID:      f.svc15,
		RequestedStart: f.at(9, 7),
	}, f.caller, "receptionist", "")
	if !errors.Is(err, schedule.ErrNoMatchingStart) {
		t.Fatalf("err = %v, want ErrNoMatchingStart", err)
	}
	if f.store.commits != 0 {
		t.Errorf("commits = %d, want 0", f.store.commits)
	}
}

func TestBookingService_Book_RunsPastEndOfDay(t *testing.T) {
	f := newBookingFixture(t)

	// 10:45 is the last slot; a 30-minute service cannot fit.
	_, err := f.svc.Book(context.Background(), &appointment.BookCommand{
		PatientID:      f.patientID,
		DoctorID:       f.doctorID,
		ServiceID:      f.svc30,
		RequestedStart: f.at(10, 45),
	}, f.caller, "receptionist", "")
	if !errors.Is(err, schedule.ErrInsufficientContiguousSlots) {
		t.Fatalf("err = %v, want ErrInsufficientContiguousSlots", err)
	}
}

func TestBookingService_Book_RetriesVersionConflict(t *testing.T) {
	f := newBookingFixture(t)
	f.store.failCommits = 2

	appt := f.book(t, f.svc30, f.at(9, 0))

	if f.store.commits != 1 {
		t.Errorf("commits = %d, want 1", f.store.commits)
	}
	got := f.bookedStarts()
	if len(got) != 2 {
		t.Errorf("booked slots = %v, want exactly the two reserved ones", got)
	}
	if appt.BlockLen != 2 {
		t.Errorf("BlockLen = %d, want 2", appt.BlockLen)
	}
}

func TestBookingService_Book_RetriesExhausted(t *testing.T) {
	f := newBookingFixture(t)
	f.store.failCommits = 10

	_, err := f.svc.Book(context.Background(), &appointment.BookCommand{
		PatientID:      f.patientID,
		DoctorID:       f.doctorID,
		ServiceID:      f.svc15,
		RequestedStart: f.at(9, 0),
	}, f.caller, "receptionist", "")
	if !errors.Is(err, schedule.ErrConcurrentModification) {
		t.Fatalf("err = %v, want ErrConcurrentModification", err)
	}
	// Failed attempts must leave no reservation behind.
	if got := f.bookedStarts(); len(got) != 0 {
		t.Errorf("booked slots after failure = %v, want none", got)
	}
}

func TestBookingService_Cancel_ReleasesBlock(t *testing.T) {
	f := newBookingFixture(t)

	appt := f.book(t, f.svc30, f.at(9, 0))

	got, err := f.svc.Cancel(context.Background(), appt.ID, &appointment.CancelCommand{
		Reason:      "patient request",
		CancelledBy: f.caller,
	}, f.caller, "receptionist", nil, "")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if got.Status != appointment.StatusCancelled {
		t.Errorf("Status = %q, want cancelled", got.Status)
	}
	if n := len(f.bookedStarts()); n != 0 {
		t.Errorf("booked slots after cancel = %d, want 0", n)
	}

	// The freed block must be bookable again at the same start.
	again := f.book(t, f.svc30, f.at(9, 0))
	if !again.StartsAt.Equal(f.at(9, 0)) {
		t.Errorf("rebook StartsAt = %v, want 09:00", again.StartsAt)
	}
}

func TestBookingService_Cancel_OtherPatientForbidden(t *testing.T) {
	f := newBookingFixture(t)

	appt := f.book(t, f.svc15, f.at(9, 0))

	other := uuid.New()
	_, err := f.svc.Cancel(context.Background(), appt.ID, &appointment.CancelCommand{
		Reason: "nope", CancelledBy: other,
	}, other, "patient", &other, "")
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
	if len(f.bookedStarts()) != 1 {
		t.Error("block must stay reserved after a forbidden cancel")
	}
}

func TestBookingService_Cancel_AlreadyCancelled(t *testing.T) {
	f := newBookingFixture(t)

	appt := f.book(t, f.svc15, f.at(9, 0))
	if _, err := f.svc.Cancel(context.Background(), appt.ID, &appointment.CancelCommand{CancelledBy: f.caller}, f.caller, "admin", nil, ""); err != nil {
		t.Fatalf("first Cancel: %v", err)
	}

	_, err := f.svc.Cancel(context.Background(), appt.ID, &appointment.CancelCommand{CancelledBy: f.caller}, f.caller, "admin", nil, "")
	if !errors.Is(err, appointment.ErrInvalidStatusTransition) {
		t.Fatalf("err = %v, want ErrInvalidStatusTransition", err)
	}
}

func TestBookingService_Reschedule_OverlappingSameDay(t *testing.T) {
	f := newBookingFixture(t)

	// 09:00-10:00 booked, then moved to 09:30-10:30. The target overlaps
	// the current block, so the move only works if the old block is freed
	// before the new search runs.
	appt := f.book(t, f.svc60, f.at(9, 0))

	newStart := f.at(9, 30)
	got, err := f.svc.Reschedule(context.Background(), appt.ID, &appointment.RescheduleCommand{
		NewStart:    &newStart,
		RequestedBy: f.caller,
	}, f.caller, "receptionist", nil, "")
	if err != nil {
		t.Fatalf("Reschedule: %v", err)
	}
	if !got.StartsAt.Equal(newStart) {
		t.Errorf("StartsAt = %v, want 09:30", got.StartsAt)
	}
	if got.AnchorSlotID != f.day.Slots[2].ID {
		t.Error("anchor should be the 09:30 slot")
	}

	want := []string{"09:30", "09:45", "10:00", "10:15"}
	got2 := f.bookedStarts()
	if len(got2) != len(want) {
		t.Fatalf("booked slots = %v, want %v", got2, want)
	}
	for i := range want {
		if got2[i] != want[i] {
			t.Fatalf("booked slots = %v, want %v", got2, want)
		}
	}
}

func TestBookingService_Reschedule_FailureKeepsOldBlock(t *testing.T) {
	f := newBookingFixture(t)

	appt := f.book(t, f.svc60, f.at(9, 0))

	// 10:45 leaves only one slot before end of day; the 60-minute block
	// cannot fit, so the original reservation must survive untouched.
	newStart := f.at(10, 45)
	_, err := f.svc.Reschedule(context.Background(), appt.ID, &appointment.RescheduleCommand{
		NewStart:    &newStart,
		RequestedBy: f.caller,
	}, f.caller, "receptionist", nil, "")
	if !errors.Is(err, schedule.ErrInsufficientContiguousSlots) {
		t.Fatalf("err = %v, want ErrInsufficientContiguousSlots", err)
	}

	want := []string{"09:00", "09:15", "09:30", "09:45"}
	got := f.bookedStarts()
	if len(got) != len(want) {
		t.Fatalf("booked slots = %v, want %v", got, want)
	}
	kept, err := f.appts.GetByID(context.Background(), appt.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if !kept.StartsAt.Equal(f.at(9, 0)) {
		t.Errorf("StartsAt = %v, want original 09:00", kept.StartsAt)
	}
}

func TestBookingService_Reschedule_RetriesVersionConflict(t *testing.T) {
	f := newBookingFixture(t)

	appt := f.book(t, f.svc30, f.at(9, 0))
	f.store.failCommits = 1

	newStart := f.at(10, 0)
	got, err := f.svc.Reschedule(context.Background(), appt.ID, &appointment.RescheduleCommand{
		NewStart:    &newStart,
		RequestedBy: f.caller,
	}, f.caller, "receptionist", nil, "")
	if err != nil {
		t.Fatalf("Reschedule after conflict: %v", err)
	}
	if !got.StartsAt.Equal(newStart) {
		t.Errorf("StartsAt = %v, want 10:00", got.StartsAt)
	}

	want := []string{"10:00", "10:15"}
	got2 := f.bookedStarts()
	if len(got2) != len(want) || got2[0] != want[0] || got2[1] != want[1] {
		t.Errorf("booked slots = %v, want %v", got2, want)
	}
}

func TestBookingService_Reschedule_ServiceChangeResizesBlock(t *testing.T) {
	f := newBookingFixture(t)

	appt := f.book(t, f.svc30, f.at(9, 0))

	if _, err := f.svc.Reschedule(context.Background(), appt.ID, &appointment.RescheduleCommand{
		NewServiceID: &f.svc60,
		RequestedBy:  f.caller,
	}, f.caller, "receptionist", nil, ""); err != nil {
		t.Fatalf("Reschedule: %v", err)
	}

	updated, _ := f.appts.GetByID(context.Background(), appt.ID)
	if updated.BlockLen != 4 {
		t.Errorf("BlockLen = %d, want 4", updated.BlockLen)
	}
	if updated.DurationMins != 60 {
		t.Errorf("DurationMins = %d, want 60", updated.DurationMins)
	}
	if n := len(f.bookedStarts()); n != 4 {
		t.Errorf("booked slots = %d, want 4", n)
	}
}

func TestBookingService_Suggest(t *testing.T) {
	f := newBookingFixture(t)

	f.book(t, f.svc30, f.at(9, 0))

	got, err := f.svc.Suggest(context.Background(), f.doctorID, f.svc30, f.at(0, 0))
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if !got.Equal(f.at(9, 30)) {
		t.Errorf("Suggest = %v, want 09:30", got)
	}
}

func TestBookingService_Suggest_NoCapacity(t *testing.T) {
	f := newBookingFixture(t)

	// Book 09:00-10:00 and 10:15-11:00, leaving one lone free slot at
	// 10:00 — too small for a 30-minute service.
	f.book(t, f.svc60, f.at(9, 0))
	f.book(t, f.svc30, f.at(10, 15))
	f.book(t, f.svc15, f.at(10, 45))

	_, err := f.svc.Suggest(context.Background(), f.doctorID, f.svc30, f.at(0, 0))
	if !errors.Is(err, schedule.ErrInsufficientContiguousSlots) {
		t.Fatalf("err = %v, want ErrInsufficientContiguousSlots", err)
	}
}

func TestBookingService_Suggest_SkipsPastStarts(t *testing.T) {
	f := newBookingFixture(t)
	f.now = f.at(9, 10)

	got, err := f.svc.Suggest(context.Background(), f.doctorID, f.svc15, f.at(0, 0))
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if !got.Equal(f.at(9, 15)) {
		t.Errorf("Suggest = %v, want 09:15", got)
	}
}
