package schedule

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func mondayRule(doctorID uuid.UUID, start, end string) Rule {
	s, err := ParseClock(start)
	if err != nil {
		panic(err)
	}
	e, err := ParseClock(end)
	if err != nil {
		panic(err)
	}
	return Rule{
		ID:           uuid.New(),
		DoctorID:     doctorID,
		Weekday:      time.Monday,
		StartMinutes: s,
		EndMinutes:   e,
		Active:       true,
	}
}

// 2026-03-02 is a Monday.
var monday = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func TestRuleValidate(t *testing.T) {
	doctorID := uuid.New()

	valid := mondayRule(doctorID, "09:00", "12:00")
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid rule rejected: %v", err)
	}

	inverted := mondayRule(doctorID, "12:00", "09:00")
	if err := inverted.Validate(); !errors.Is(err, ErrInvalidWindow) {
		t.Fatalf("expected ErrInvalidWindow for inverted window, got %v", err)
	}

	empty := mondayRule(doctorID, "09:00", "09:00")
	if err := empty.Validate(); !errors.Is(err, ErrInvalidWindow) {
		t.Fatalf("expected ErrInvalidWindow for empty window, got %v", err)
	}

	noDoctor := mondayRule(uuid.Nil, "09:00", "12:00")
	if err := noDoctor.Validate(); !errors.Is(err, ErrMissingDoctor) {
		t.Fatalf("expected ErrMissingDoctor, got %v", err)
	}
}

func TestRuleOverlapsRule(t *testing.T) {
	doctorID := uuid.New()
	morning := mondayRule(doctorID, "09:00", "12:00")

	adjacent := mondayRule(doctorID, "12:00", "15:00")
	if morning.OverlapsRule(adjacent) {
		t.Error("back-to-back rules must not overlap")
	}

	colliding := mondayRule(doctorID, "11:00", "13:00")
	if !morning.OverlapsRule(colliding) {
		t.Error("expected overlap for 11:00-13:00 against 09:00-12:00")
	}

	otherDay := colliding
	otherDay.Weekday = time.Tuesday
	if morning.OverlapsRule(otherDay) {
		t.Error("rules on different weekdays never overlap")
	}
}

func TestCalendarIsAvailable(t *testing.T) {
	doctorID := uuid.New()
	cal := Calendar{Rules: []Rule{mondayRule(doctorID, "09:00", "12:00")}}

	at := func(h, m int) time.Time {
		return time.Date(2026, 3, 2, h, m, 0, 0, time.UTC)
	}

	if !cal.IsAvailable(at(9, 0)) {
		t.Error("window start should be available")
	}
	if !cal.IsAvailable(at(11, 59)) {
		t.Error("11:59 should be available")
	}
	if cal.IsAvailable(at(12, 0)) {
		t.Error("window end is exclusive")
	}
	if cal.IsAvailable(at(8, 59)) {
		t.Error("before window should be unavailable")
	}
	// Tuesday has no rules at all.
	if cal.IsAvailable(time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC)) {
		t.Error("weekday without rules must be unavailable")
	}
}

func TestCalendarInactiveRuleIgnored(t *testing.T) {
	doctorID := uuid.New()
	rule := mondayRule(doctorID, "09:00", "12:00")
	rule.Active = false
	cal := Calendar{Rules: []Rule{rule}}

	if cal.IsAvailable(monday.Add(10 * time.Hour)) {
		t.Error("inactive rule must not grant availability")
	}
	if got := cal.WindowsOn(monday); len(got) != 0 {
		t.Errorf("expected no windows, got %v", got)
	}
}

func TestCalendarExceptionSuppressesDay(t *testing.T) {
	doctorID := uuid.New()
	cal := Calendar{
		Rules:      []Rule{mondayRule(doctorID, "09:00", "12:00")},
		Exceptions: []Exception{{ID: uuid.New(), DoctorID: doctorID, Day: monday, Reason: "holiday"}},
	}

	if !cal.HasException(monday) {
		t.Fatal("expected exception on the blocked Monday")
	}
	if cal.IsAvailable(monday.Add(10 * time.Hour)) {
		t.Error("exception day must be fully unavailable")
	}
	if got := cal.WindowsOn(monday); len(got) != 0 {
		t.Errorf("expected no windows on exception day, got %v", got)
	}

	// The following Monday is unaffected.
	next := monday.AddDate(0, 0, 7)
	if !cal.IsAvailable(next.Add(10 * time.Hour)) {
		t.Error("exception must only block its own date")
	}
}

func TestCalendarExceptionCivilDateWestOfUTC(t *testing.T) {
	doctorID := uuid.New()
	loc := time.FixedZone("UTC-6", -6*3600)
	cal := Calendar{
		Rules:      []Rule{mondayRule(doctorID, "09:00", "12:00")},
		Exceptions: []Exception{{ID: uuid.New(), DoctorID: doctorID, Day: monday, Reason: "holiday"}},
		Location:   loc,
	}

	// The exception day is stored at UTC midnight. Shifting it into the
	// practice zone would land on Sunday and leave the blocked Monday open.
	localMonday := time.Date(2026, 3, 2, 10, 0, 0, 0, loc)
	if !cal.HasException(localMonday) {
		t.Fatal("expected exception to block the local Monday")
	}
	if got := cal.WindowsOn(localMonday); len(got) != 0 {
		t.Errorf("expected no windows on blocked day, got %v", got)
	}

	// The following Monday keeps its window, at local wall-clock times.
	next := time.Date(2026, 3, 9, 0, 0, 0, 0, loc)
	windows := cal.WindowsOn(next)
	if len(windows) != 1 {
		t.Fatalf("expected 1 window, got %d", len(windows))
	}
	if !windows[0].Start.Equal(time.Date(2026, 3, 9, 9, 0, 0, 0, loc)) {
		t.Errorf("window start = %v, want local 09:00", windows[0].Start)
	}
}

func TestCalendarWindowsSorted(t *testing.T) {
	doctorID := uuid.New()
	cal := Calendar{Rules: []Rule{
		mondayRule(doctorID, "14:00", "18:00"),
		mondayRule(doctorID, "09:00", "12:00"),
	}}

	windows := cal.WindowsOn(monday)
	if len(windows) != 2 {
		t.Fatalf("expected 2 windows, got %d", len(windows))
	}
	if !windows[0].Start.Before(windows[1].Start) {
		t.Error("windows must be sorted by start time")
	}
}

func TestCalendarCovers(t *testing.T) {
	doctorID := uuid.New()
	cal := Calendar{Rules: []Rule{mondayRule(doctorID, "09:00", "12:00")}}

	inside := NewInterval(monday.Add(11*time.Hour+30*time.Minute), 30*time.Minute)
	if !cal.Covers(inside) {
		t.Error("11:30-12:00 fits the 09:00-12:00 window")
	}
	spilling := NewInterval(monday.Add(11*time.Hour+45*time.Minute), 30*time.Minute)
	if cal.Covers(spilling) {
		t.Error("11:45-12:15 spills past the window end")
	}
}

func TestWeekdayBoundaryTranslation(t *testing.T) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := WeekdayName(d)
		parsed, err := ParseWeekday(name)
		if err != nil {
			t.Fatalf("round-trip failed for %s: %v", name, err)
		}
		if parsed != d {
			t.Fatalf("expected %v, got %v", d, parsed)
		}
	}
	if _, err := ParseWeekday("lunes"); err == nil {
		t.Error("non-English day names must be rejected at the boundary")
	}
}

func TestParseClock(t *testing.T) {
	min, err := ParseClock("09:30")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if min != 9*60+30 {
		t.Fatalf("expected 570, got %d", min)
	}
	if ClockString(min) != "09:30" {
		t.Fatalf("round trip failed: %s", ClockString(min))
	}
	if _, err := ParseClock("25:00"); err == nil {
		t.Error("expected error for 25:00")
	}
	if _, err := ParseClock(""); err == nil {
		t.Error("expected error for empty clock")
	}
}
