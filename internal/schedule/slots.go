package schedule

import (
	"sort"
	"time"
)

// GenerateSlots walks every availability window of the given date in
// fixed-duration steps and returns the candidate start times, in
// chronological order. A step is emitted only when its whole interval fits
// inside the window and its start is strictly after now+minLead. The result
// is fully determined by the inputs; existing bookings are not consulted.
func GenerateSlots(cal Calendar, day time.Time, duration time.Duration, now time.Time, minLead time.Duration) []time.Time {
	if duration <= 0 {
		return nil
	}
	cutoff := now.Add(minLead)
	slots := make([]time.Time, 0)
	for _, w := range cal.WindowsOn(day) {
		for start := w.Start; !start.Add(duration).After(w.End); start = start.Add(duration) {
			if start.After(cutoff) {
				slots = append(slots, start)
			}
		}
	}
	// Windows are sorted, but rules for a day are not guaranteed disjoint.
	sort.Slice(slots, func(i, j int) bool { return slots[i].Before(slots[j]) })
	return slots
}

// FilterBooked removes candidate slots whose interval overlaps any busy
// interval, preserving order.
func FilterBooked(slots []time.Time, duration time.Duration, busy []Interval) []time.Time {
	if len(busy) == 0 {
		return slots
	}
	free := make([]time.Time, 0, len(slots))
	for _, s := range slots {
		if ConflictsWith(NewInterval(s, duration), busy) == nil {
			free = append(free, s)
		}
	}
	return free
}
