package schedule

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestGenerateSlotsWalksWindow(t *testing.T) {
	doctorID := uuid.New()
	cal := Calendar{Rules: []Rule{mondayRule(doctorID, "09:00", "12:00")}}
	now := monday.Add(8 * time.Hour) // Monday 08:00

	slots := GenerateSlots(cal, monday, 30*time.Minute, now, time.Hour)

	// 09:00 is excluded: 08:00 + 1h lead means only strictly later starts.
	want := []string{"09:30", "10:00", "10:30", "11:00", "11:30"}
	if len(slots) != len(want) {
		t.Fatalf("expected %d slots, got %d (%v)", len(want), len(slots), slots)
	}
	for i, w := range want {
		if got := slots[i].Format("15:04"); got != w {
			t.Errorf("slot %d: expected %s, got %s", i, w, got)
		}
	}
}

func TestGenerateSlotsNoLeadPressure(t *testing.T) {
	doctorID := uuid.New()
	cal := Calendar{Rules: []Rule{mondayRule(doctorID, "09:00", "12:00")}}
	now := monday.AddDate(0, 0, -3) // several days earlier

	slots := GenerateSlots(cal, monday, 30*time.Minute, now, time.Hour)
	if len(slots) != 6 {
		t.Fatalf("expected 6 slots for a 3h window of 30m slots, got %d", len(slots))
	}
	if got := slots[0].Format("15:04"); got != "09:00" {
		t.Errorf("expected first slot 09:00, got %s", got)
	}
	if got := slots[5].Format("15:04"); got != "11:30" {
		t.Errorf("expected last slot 11:30, got %s", got)
	}
}

func TestGenerateSlotsPartialSlotDropped(t *testing.T) {
	doctorID := uuid.New()
	// 09:00-10:15 holds two 30-minute slots; the trailing 15 minutes are dead.
	cal := Calendar{Rules: []Rule{mondayRule(doctorID, "09:00", "10:15")}}
	now := monday.AddDate(0, 0, -1)

	slots := GenerateSlots(cal, monday, 30*time.Minute, now, time.Hour)
	if len(slots) != 2 {
		t.Fatalf("expected 2 slots, got %d (%v)", len(slots), slots)
	}
}

func TestGenerateSlotsExceptionDay(t *testing.T) {
	doctorID := uuid.New()
	cal := Calendar{
		Rules:      []Rule{mondayRule(doctorID, "09:00", "12:00")},
		Exceptions: []Exception{{DoctorID: doctorID, Day: monday}},
	}
	now := monday.AddDate(0, 0, -1)

	if slots := GenerateSlots(cal, monday, 30*time.Minute, now, time.Hour); len(slots) != 0 {
		t.Fatalf("expected no slots on exception day, got %v", slots)
	}
}

func TestGenerateSlotsMultipleWindows(t *testing.T) {
	doctorID := uuid.New()
	cal := Calendar{Rules: []Rule{
		mondayRule(doctorID, "15:00", "16:00"),
		mondayRule(doctorID, "09:00", "10:00"),
	}}
	now := monday.AddDate(0, 0, -1)

	slots := GenerateSlots(cal, monday, 30*time.Minute, now, time.Hour)
	want := []string{"09:00", "09:30", "15:00", "15:30"}
	if len(slots) != len(want) {
		t.Fatalf("expected %d slots, got %v", len(want), slots)
	}
	for i, w := range want {
		if got := slots[i].Format("15:04"); got != w {
			t.Errorf("slot %d: expected %s, got %s", i, w, got)
		}
	}
}

func TestGenerateSlotsDeterministic(t *testing.T) {
	doctorID := uuid.New()
	cal := Calendar{Rules: []Rule{
		mondayRule(doctorID, "09:00", "12:00"),
		mondayRule(doctorID, "14:00", "18:00"),
	}}
	now := monday.Add(8 * time.Hour)

	first := GenerateSlots(cal, monday, 30*time.Minute, now, time.Hour)
	second := GenerateSlots(cal, monday, 30*time.Minute, now, time.Hour)

	if len(first) != len(second) {
		t.Fatalf("lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if !first[i].Equal(second[i]) {
			t.Fatalf("slot %d differs: %v vs %v", i, first[i], second[i])
		}
	}
}

func TestGenerateSlotsNonPositiveDuration(t *testing.T) {
	doctorID := uuid.New()
	cal := Calendar{Rules: []Rule{mondayRule(doctorID, "09:00", "12:00")}}
	if slots := GenerateSlots(cal, monday, 0, monday, time.Hour); slots != nil {
		t.Fatalf("expected nil for zero duration, got %v", slots)
	}
}

func TestFilterBooked(t *testing.T) {
	doctorID := uuid.New()
	cal := Calendar{Rules: []Rule{mondayRule(doctorID, "09:00", "12:00")}}
	now := monday.AddDate(0, 0, -1)
	slots := GenerateSlots(cal, monday, 30*time.Minute, now, time.Hour)

	busy := []Interval{NewInterval(monday.Add(10*time.Hour), 30*time.Minute)} // 10:00-10:30
	free := FilterBooked(slots, 30*time.Minute, busy)

	want := []string{"09:00", "09:30", "10:30", "11:00", "11:30"}
	if len(free) != len(want) {
		t.Fatalf("expected %d free slots, got %v", len(want), free)
	}
	for i, w := range want {
		if got := free[i].Format("15:04"); got != w {
			t.Errorf("slot %d: expected %s, got %s", i, w, got)
		}
	}
}
