package schedule

import "time"

// Interval is a half-open time range [Start, End). Half-open ranges make
// back-to-back scheduling natural: an interval ending exactly when another
// begins does not overlap it.
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewInterval builds the interval occupied by an appointment of the given
// duration.
func NewInterval(start time.Time, duration time.Duration) Interval {
	return Interval{Start: start, End: start.Add(duration)}
}

// Overlaps reports whether two half-open intervals intersect.
func (i Interval) Overlaps(other Interval) bool {
	return i.Start.Before(other.End) && other.Start.Before(i.End)
}

// Contains reports whether other lies entirely within i.
func (i Interval) Contains(other Interval) bool {
	return !other.Start.Before(i.Start) && !other.End.After(i.End)
}

// Duration returns the interval length.
func (i Interval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}

// ConflictsWith returns the first busy interval overlapping the candidate, or
// nil. Busy intervals are the doctor's active appointments for the affected
// day; the scan is linear, lookups are expected to be scoped by doctor and
// date range before reaching this point.
func ConflictsWith(candidate Interval, busy []Interval) *Interval {
	for _, b := range busy {
		if candidate.Overlaps(b) {
			hit := b
			return &hit
		}
	}
	return nil
}
