package appointments

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/citasalud/citasalud-api/internal/directory"
	"github.com/citasalud/citasalud-api/internal/schedule"
	"github.com/citasalud/citasalud-api/pkg/logging"
)

// Monday 2026-03-02 08:00 UTC; the doctor works Mondays 09:00-12:00.
var serviceNow = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

type serviceFixture struct {
	service *Service
	repo    *InMemoryRepository
	doctor  *directory.Doctor
	patient *directory.Patient
}

func newServiceFixture(t *testing.T) *serviceFixture {
	return newServiceFixtureIn(t, time.UTC)
}

func newServiceFixtureIn(t *testing.T, loc *time.Location) *serviceFixture {
	t.Helper()

	docs := directory.NewInMemoryRepository()
	doctor := docs.AddDoctor(directory.Doctor{FullName: "Dr. Carmen Ortiz", Specialty: "general", Active: true})
	patient := docs.AddPatient(directory.Patient{FullName: "Pablo Medina", Active: true})

	schedules := schedule.NewInMemoryRepository()
	rule := &schedule.Rule{
		DoctorID:     doctor.ID,
		Weekday:      time.Monday,
		StartMinutes: 9 * 60,
		EndMinutes:   12 * 60,
		Active:       true,
	}
	if err := schedules.CreateRule(context.Background(), rule); err != nil {
		t.Fatalf("seed rule: %v", err)
	}

	repo := NewInMemoryRepository()
	policy := Policy{MinLeadTime: time.Hour, DefaultSlotMinutes: 30, Location: loc}
	svc := NewService(repo, schedules, docs, policy, logging.New("error")).
		WithClock(func() time.Time { return serviceNow })

	return &serviceFixture{service: svc, repo: repo, doctor: doctor, patient: patient}
}

func (f *serviceFixture) booking(start time.Time) *BookingRequest {
	return &BookingRequest{
		DoctorID:        f.doctor.ID,
		PatientID:       f.patient.ID,
		StartAt:         start,
		DurationMinutes: 30,
		Reason:          "consultation",
	}
}

func TestListAvailableSlots(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	slots, err := f.service.ListAvailableSlots(ctx, f.doctor.ID, serviceNow, 30)
	if err != nil {
		t.Fatalf("list slots: %v", err)
	}

	// With now=08:00 and a one-hour lead, 09:00 is too soon; the window
	// yields 09:30 through 11:30.
	want := []time.Time{
		serviceNow.Add(90 * time.Minute),
		serviceNow.Add(120 * time.Minute),
		serviceNow.Add(150 * time.Minute),
		serviceNow.Add(180 * time.Minute),
		serviceNow.Add(210 * time.Minute),
	}
	if len(slots) != len(want) {
		t.Fatalf("got %d slots, want %d: %v", len(slots), len(want), slots)
	}
	for i := range want {
		if !slots[i].Equal(want[i]) {
			t.Errorf("slot[%d] = %v, want %v", i, slots[i], want[i])
		}
	}
}

func TestListAvailableSlotsExcludesBooked(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	if _, err := f.service.RequestBooking(ctx, f.booking(serviceNow.Add(2*time.Hour))); err != nil {
		t.Fatalf("booking: %v", err)
	}

	slots, err := f.service.ListAvailableSlots(ctx, f.doctor.ID, serviceNow, 30)
	if err != nil {
		t.Fatalf("list slots: %v", err)
	}
	for _, s := range slots {
		if s.Equal(serviceNow.Add(2 * time.Hour)) {
			t.Fatal("booked slot still offered")
		}
	}
	if len(slots) != 4 {
		t.Errorf("got %d slots, want 4", len(slots))
	}
}

func TestListAvailableSlotsDeterministic(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	first, err := f.service.ListAvailableSlots(ctx, f.doctor.ID, serviceNow, 30)
	if err != nil {
		t.Fatalf("list slots: %v", err)
	}
	second, err := f.service.ListAvailableSlots(ctx, f.doctor.ID, serviceNow, 30)
	if err != nil {
		t.Fatalf("list slots again: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("slot counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if !first[i].Equal(second[i]) {
			t.Errorf("slot[%d] differs: %v vs %v", i, first[i], second[i])
		}
	}
}

func TestListAvailableSlotsUnknownDoctor(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.service.ListAvailableSlots(context.Background(), uuid.New(), serviceNow, 30)
	wantRejection(t, err, KindNotFound)
}

func TestListAvailableSlotsWestOfUTC(t *testing.T) {
	loc := time.FixedZone("UTC-6", -6*3600)
	f := newServiceFixtureIn(t, loc)
	ctx := context.Background()

	// serviceNow is 02:00 Monday in the practice zone, so the whole local
	// 09:00-12:00 window clears the one-hour lead.
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, loc)
	slots, err := f.service.ListAvailableSlots(ctx, f.doctor.ID, day, 30)
	if err != nil {
		t.Fatalf("list slots: %v", err)
	}
	if len(slots) != 6 {
		t.Fatalf("got %d slots, want 6: %v", len(slots), slots)
	}
	if !slots[0].Equal(time.Date(2026, 3, 2, 9, 0, 0, 0, loc)) {
		t.Errorf("first slot = %v, want local Monday 09:00", slots[0])
	}
}

type failingScheduleStore struct {
	err error
}

func (s failingScheduleStore) CalendarFor(context.Context, uuid.UUID) (schedule.Calendar, error) {
	return schedule.Calendar{}, s.err
}

func TestStorageFaultTaggedUnavailable(t *testing.T) {
	docs := directory.NewInMemoryRepository()
	doctor := docs.AddDoctor(directory.Doctor{FullName: "Dr. Carmen Ortiz", Specialty: "general", Active: true})
	patient := docs.AddPatient(directory.Patient{FullName: "Pablo Medina", Active: true})
	store := failingScheduleStore{err: errors.New("connection refused")}
	svc := NewService(NewInMemoryRepository(), store, docs, Policy{MinLeadTime: time.Hour, DefaultSlotMinutes: 30}, logging.New("error")).
		WithClock(func() time.Time { return serviceNow })
	ctx := context.Background()

	_, err := svc.ListAvailableSlots(ctx, doctor.ID, serviceNow, 30)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("list slots err = %v, want ErrUnavailable", err)
	}
	if _, ok := AsRejection(err); ok {
		t.Fatal("an infrastructure fault must not surface as a rejection")
	}

	_, err = svc.RequestBooking(ctx, &BookingRequest{
		DoctorID:        doctor.ID,
		PatientID:       patient.ID,
		StartAt:         serviceNow.Add(2 * time.Hour),
		DurationMinutes: 30,
		Reason:          "consultation",
	})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("booking err = %v, want ErrUnavailable", err)
	}
}

func TestRequestBooking(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	a, err := f.service.RequestBooking(ctx, f.booking(serviceNow.Add(2*time.Hour)))
	if err != nil {
		t.Fatalf("booking: %v", err)
	}
	if a.Status != StatusPending {
		t.Errorf("new booking status = %s, want pending", a.Status)
	}
	if a.ID == uuid.Nil {
		t.Error("booking has no id")
	}

	stored, err := f.service.GetAppointment(ctx, a.ID)
	if err != nil {
		t.Fatalf("get appointment: %v", err)
	}
	if !stored.StartAt.Equal(a.StartAt) {
		t.Errorf("stored start = %v, want %v", stored.StartAt, a.StartAt)
	}
}

func TestRequestBookingConcurrentSameSlot(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	start := serviceNow.Add(2 * time.Hour)

	const attempts = 16
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.service.RequestBooking(ctx, f.booking(start))
		}(i)
	}
	wg.Wait()

	accepted := 0
	for _, err := range errs {
		if err == nil {
			accepted++
			continue
		}
		rej, ok := AsRejection(err)
		if !ok || rej.Kind != KindSlotTaken {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if accepted != 1 {
		t.Fatalf("accepted %d bookings for one slot, want exactly 1", accepted)
	}
}

func TestBookingLifecycle(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	a, err := f.service.RequestBooking(ctx, f.booking(serviceNow.Add(2*time.Hour)))
	if err != nil {
		t.Fatalf("booking: %v", err)
	}

	doctor := Actor{ID: f.doctor.ID, Role: RoleDoctor}
	confirmed, err := f.service.ConfirmAppointment(ctx, a.ID, doctor)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if confirmed.Status != StatusConfirmed {
		t.Errorf("status = %s, want confirmed", confirmed.Status)
	}

	completed, err := f.service.CompleteAppointment(ctx, a.ID, doctor, Outcome{Diagnosis: "mild flu", Treatment: "rest"})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if completed.Status != StatusCompleted || completed.Diagnosis != "mild flu" {
		t.Errorf("unexpected completed appointment: %+v", completed)
	}

	// A completed appointment rejects further transitions.
	_, err = f.service.CancelAppointment(ctx, a.ID, doctor, "too late")
	wantRejection(t, err, KindInvalidState)
}

func TestCancelFreesSlot(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	start := serviceNow.Add(2 * time.Hour)

	a, err := f.service.RequestBooking(ctx, f.booking(start))
	if err != nil {
		t.Fatalf("booking: %v", err)
	}

	_, err = f.service.RequestBooking(ctx, f.booking(start))
	wantRejection(t, err, KindSlotTaken)

	patient := Actor{ID: f.patient.ID, Role: RolePatient}
	if _, err := f.service.CancelAppointment(ctx, a.ID, patient, "schedule conflict"); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	if _, err := f.service.RequestBooking(ctx, f.booking(start)); err != nil {
		t.Fatalf("slot should be free after cancellation, got %v", err)
	}
}

func TestReschedule(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	a, err := f.service.RequestBooking(ctx, f.booking(serviceNow.Add(2*time.Hour)))
	if err != nil {
		t.Fatalf("booking: %v", err)
	}

	patient := Actor{ID: f.patient.ID, Role: RolePatient}
	newStart := serviceNow.Add(3 * time.Hour)
	moved, err := f.service.RescheduleAppointment(ctx, a.ID, newStart, patient)
	if err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if moved.ID != a.ID {
		t.Error("reschedule changed the appointment's identity")
	}
	if !moved.StartAt.Equal(newStart) {
		t.Errorf("start = %v, want %v", moved.StartAt, newStart)
	}

	// The old slot is free again.
	if _, err := f.service.RequestBooking(ctx, f.booking(serviceNow.Add(2*time.Hour))); err != nil {
		t.Fatalf("old slot should be free, got %v", err)
	}
}

func TestRescheduleOntoSelfOverlap(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	a, err := f.service.RequestBooking(ctx, f.booking(serviceNow.Add(2*time.Hour)))
	if err != nil {
		t.Fatalf("booking: %v", err)
	}

	// Shifting by 15 minutes overlaps the appointment's own old interval,
	// which must not count as a conflict.
	patient := Actor{ID: f.patient.ID, Role: RolePatient}
	if _, err := f.service.RescheduleAppointment(ctx, a.ID, serviceNow.Add(2*time.Hour+15*time.Minute), patient); err != nil {
		t.Fatalf("self-overlapping reschedule should succeed, got %v", err)
	}
}

func TestRescheduleOutsideAvailability(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	a, err := f.service.RequestBooking(ctx, f.booking(serviceNow.Add(2*time.Hour)))
	if err != nil {
		t.Fatalf("booking: %v", err)
	}

	patient := Actor{ID: f.patient.ID, Role: RolePatient}
	_, err = f.service.RescheduleAppointment(ctx, a.ID, serviceNow.AddDate(0, 0, 1).Add(2*time.Hour), patient)
	wantRejection(t, err, KindOutOfAvailability)
}

func TestNextAvailableSlots(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	slots, err := f.service.NextAvailableSlots(ctx, f.doctor.ID, 8)
	if err != nil {
		t.Fatalf("next slots: %v", err)
	}
	// Five slots remain this Monday, the rest come from next Monday.
	if len(slots) != 8 {
		t.Fatalf("got %d slots, want 8", len(slots))
	}
	if !slots[0].Equal(serviceNow.Add(90 * time.Minute)) {
		t.Errorf("first slot = %v, want 09:30", slots[0])
	}
	if !slots[5].Equal(serviceNow.AddDate(0, 0, 7).Add(time.Hour)) {
		t.Errorf("sixth slot = %v, want next Monday 09:00", slots[5])
	}
	for i := 1; i < len(slots); i++ {
		if !slots[i].After(slots[i-1]) {
			t.Errorf("slots out of order at %d: %v then %v", i, slots[i-1], slots[i])
		}
	}
}

type countingCache struct {
	mu          sync.Mutex
	entries     map[string][]time.Time
	gets, puts  int
	invalidates int
}

func newCountingCache() *countingCache {
	return &countingCache{entries: make(map[string][]time.Time)}
}

func (c *countingCache) key(doctorID uuid.UUID, day time.Time, durationMinutes int) string {
	return fmt.Sprintf("%s:%s:%d", doctorID, day.Format("2006-01-02"), durationMinutes)
}

func (c *countingCache) Get(_ context.Context, doctorID uuid.UUID, day time.Time, durationMinutes int) ([]time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	slots, ok := c.entries[c.key(doctorID, day, durationMinutes)]
	return slots, ok
}

func (c *countingCache) Put(_ context.Context, doctorID uuid.UUID, day time.Time, durationMinutes int, slots []time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.puts++
	c.entries[c.key(doctorID, day, durationMinutes)] = slots
}

func (c *countingCache) Invalidate(_ context.Context, _ uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidates++
	c.entries = make(map[string][]time.Time)
}

func TestSlotCacheUsage(t *testing.T) {
	f := newServiceFixture(t)
	cache := newCountingCache()
	f.service.WithCache(cache)
	ctx := context.Background()

	if _, err := f.service.ListAvailableSlots(ctx, f.doctor.ID, serviceNow, 30); err != nil {
		t.Fatalf("first list: %v", err)
	}
	if cache.puts != 1 {
		t.Fatalf("puts = %d, want 1", cache.puts)
	}

	slots, err := f.service.ListAvailableSlots(ctx, f.doctor.ID, serviceNow, 30)
	if err != nil {
		t.Fatalf("second list: %v", err)
	}
	if cache.puts != 1 {
		t.Error("second read should be served from cache")
	}
	if len(slots) != 5 {
		t.Errorf("got %d slots, want 5", len(slots))
	}

	if _, err := f.service.RequestBooking(ctx, f.booking(serviceNow.Add(2*time.Hour))); err != nil {
		t.Fatalf("booking: %v", err)
	}
	if cache.invalidates != 1 {
		t.Errorf("invalidates = %d, want 1 after booking", cache.invalidates)
	}
}
