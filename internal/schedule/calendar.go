package schedule

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

const minutesPerDay = 24 * 60

// Rule is one recurring weekly availability block for a doctor. Times are
// minutes from midnight in the practice timezone, so a rule is independent of
// any particular calendar date.
type Rule struct {
	ID           uuid.UUID `json:"id"`
	DoctorID     uuid.UUID `json:"doctorId"`
	Weekday      time.Weekday `json:"-"`
	StartMinutes int       `json:"-"`
	EndMinutes   int       `json:"-"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Validate checks the rule invariants before persistence.
func (r Rule) Validate() error {
	if r.DoctorID == uuid.Nil {
		return ErrMissingDoctor
	}
	if r.Weekday < time.Sunday || r.Weekday > time.Saturday {
		return fmt.Errorf("%w: weekday %d", ErrInvalidWindow, r.Weekday)
	}
	if r.StartMinutes < 0 || r.EndMinutes > minutesPerDay || r.StartMinutes >= r.EndMinutes {
		return fmt.Errorf("%w: %s-%s", ErrInvalidWindow, ClockString(r.StartMinutes), ClockString(r.EndMinutes))
	}
	return nil
}

// WindowOn projects the rule onto a concrete date. The caller is responsible
// for checking that the date's weekday matches.
func (r Rule) WindowOn(day time.Time, loc *time.Location) Interval {
	if loc == nil {
		loc = time.UTC
	}
	midnight := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)
	return Interval{
		Start: midnight.Add(time.Duration(r.StartMinutes) * time.Minute),
		End:   midnight.Add(time.Duration(r.EndMinutes) * time.Minute),
	}
}

// OverlapsRule reports whether two rules on the same weekday collide.
func (r Rule) OverlapsRule(other Rule) bool {
	if r.Weekday != other.Weekday {
		return false
	}
	return r.StartMinutes < other.EndMinutes && other.StartMinutes < r.EndMinutes
}

// Exception suppresses all availability for one doctor on one calendar date
// (vacation, holiday). Exceptions are created and deleted, never edited.
// Day carries a civil date: only its year, month and day fields matter, and
// they are never reinterpreted in another zone.
type Exception struct {
	ID        uuid.UUID `json:"id"`
	DoctorID  uuid.UUID `json:"doctorId"`
	Day       time.Time `json:"day"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Calendar is a doctor's availability: active weekly rules plus exception
// dates. It is a pure value; queries have no side effects.
type Calendar struct {
	Rules      []Rule
	Exceptions []Exception
	Location   *time.Location
}

func (c Calendar) loc() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}

// HasException reports whether the given date is fully blocked. The stored
// exception day is compared as a civil date: converting it into the practice
// zone would shift a UTC-midnight date onto the previous local day.
func (c Calendar) HasException(day time.Time) bool {
	day = day.In(c.loc())
	for _, e := range c.Exceptions {
		if sameDate(e.Day, day) {
			return true
		}
	}
	return false
}

// WindowsOn returns the concrete availability windows for a date, sorted by
// start time. An exception date has no windows regardless of rules.
func (c Calendar) WindowsOn(day time.Time) []Interval {
	day = day.In(c.loc())
	if c.HasException(day) {
		return nil
	}
	var windows []Interval
	for _, r := range c.Rules {
		if !r.Active || r.Weekday != day.Weekday() {
			continue
		}
		windows = append(windows, r.WindowOn(day, c.loc()))
	}
	sort.Slice(windows, func(i, j int) bool { return windows[i].Start.Before(windows[j].Start) })
	return windows
}

// IsAvailable reports whether the instant falls inside an availability window.
func (c Calendar) IsAvailable(at time.Time) bool {
	at = at.In(c.loc())
	for _, w := range c.WindowsOn(at) {
		if !at.Before(w.Start) && at.Before(w.End) {
			return true
		}
	}
	return false
}

// Covers reports whether the whole interval fits inside a single window.
func (c Calendar) Covers(iv Interval) bool {
	for _, w := range c.WindowsOn(iv.Start.In(c.loc())) {
		if w.Contains(iv) {
			return true
		}
	}
	return false
}

// ClockString renders minutes-from-midnight as HH:MM.
func ClockString(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// ParseClock parses an HH:MM wall-clock string into minutes from midnight.
func ParseClock(v string) (int, error) {
	if v == "" {
		return 0, fmt.Errorf("schedule: empty clock")
	}
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, fmt.Errorf("schedule: parse clock %q: %w", v, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// ParseWeekday translates a lowercase English day name used by the API into
// the internal representation. The ordinal never crosses the boundary.
func ParseWeekday(v string) (time.Weekday, error) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if weekdayNames[d] == v {
			return d, nil
		}
	}
	return 0, fmt.Errorf("schedule: unknown weekday %q", v)
}

// WeekdayName is the inverse of ParseWeekday.
func WeekdayName(d time.Weekday) string {
	if d < time.Sunday || d > time.Saturday {
		return ""
	}
	return weekdayNames[d]
}

var weekdayNames = [7]string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"}

func sameDate(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}
