package datamodel

import "time"

// TimeSpan is a fixed-width microsecond-resolution duration, per spec §3.
type TimeSpan int64

// Microseconds per unit.
const microsecond = TimeSpan(1)
const Second = 1_000_000 * microsecond

// Time is a UTC time point at microsecond resolution. The zero value is
// the Unix epoch, not NullTime; NullTime is the designated epoch-far-past
// sentinel (spec §3: "nullable via a sentinel Null time point").
type Time struct {
	micros int64
}

// NullTime is the sentinel representing "no time set".
var NullTime = Time{}

// nullSentinel is chosen far in the past so that any real observation
// compares greater than it, matching the spec's "equal to a designated
// epoch-far-past" wording without colliding with the Unix epoch itself
// (which is a legitimate value for historic catalogue data).
const nullSentinel = int64(-1 << 62)

func init() {
	NullTime = Time{micros: nullSentinel}
}

// FromTime converts a standard library time.Time to a Time.
func FromTime(t time.Time) Time {
	return Time{micros: t.UnixMicro()}
}

// Std converts back to a standard library time.Time (UTC).
func (t Time) Std() time.Time {
	if t.IsNull() {
		return time.Time{}
	}
	return time.UnixMicro(t.micros).UTC()
}

// IsNull reports whether t is the null sentinel.
func (t Time) IsNull() bool { return t.micros == nullSentinel }

// Before reports whether t is strictly before u.
func (t Time) Before(u Time) bool { return t.micros < u.micros }

// After reports whether t is strictly after u.
func (t Time) After(u Time) bool { return t.micros > u.micros }

// Equal reports exact equality (no tolerance).
func (t Time) Equal(u Time) bool { return t.micros == u.micros }

// Add returns t+d.
func (t Time) Add(d TimeSpan) Time { return Time{micros: t.micros + int64(d)} }

// Sub returns the TimeSpan between t and u (t-u).
func (t Time) Sub(u Time) TimeSpan { return TimeSpan(t.micros - u.micros) }

// TimeWindow is the half-open interval [Start, End), per spec §3.
type TimeWindow struct {
	Start Time
	End   Time
}

// NewTimeWindow constructs a window, or the empty window if end precedes
// start.
func NewTimeWindow(start, end Time) TimeWindow {
	if end.Before(start) {
		end = start
	}
	return TimeWindow{Start: start, End: end}
}

// IsEmpty reports whether Start == End.
func (w TimeWindow) IsEmpty() bool { return w.Start.Equal(w.End) }

// Contains reports whether t falls within [Start, End).
func (w TimeWindow) Contains(t Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Overlaps reports whether w and o share any instant.
func (w TimeWindow) Overlaps(o TimeWindow) bool {
	return w.Start.Before(o.End) && o.Start.Before(w.End)
}

// Union returns the smallest window containing both w and o. The two
// windows need not overlap; callers wanting a strict union should check
// Overlaps or Contiguous first.
func (w TimeWindow) Union(o TimeWindow) TimeWindow {
	start := w.Start
	if o.Start.Before(start) {
		start = o.Start
	}
	end := w.End
	if o.End.After(end) {
		end = o.End
	}
	return TimeWindow{Start: start, End: end}
}

// Intersection returns the overlap between w and o, or, if they do not
// overlap, the empty window at the later of the two starts.
func (w TimeWindow) Intersection(o TimeWindow) TimeWindow {
	start := w.Start
	if o.Start.After(start) {
		start = o.Start
	}
	end := w.End
	if o.End.Before(end) {
		end = o.End
	}
	if end.Before(start) {
		return TimeWindow{Start: start, End: start}
	}
	return TimeWindow{Start: start, End: end}
}

// Contiguous reports whether w and o touch or overlap within tolerance
// (e.g. w.End and o.Start differ by no more than tolerance).
func (w TimeWindow) Contiguous(o TimeWindow, tolerance TimeSpan) bool {
	if w.Overlaps(o) {
		return true
	}
	gap := o.Start.Sub(w.End)
	if gap < 0 {
		gap = w.Start.Sub(o.End)
	}
	return gap <= tolerance
}

// EqualWithTolerance reports whether w and o have start/end pairs within
// tolerance of one another.
func (w TimeWindow) EqualWithTolerance(o TimeWindow, tolerance TimeSpan) bool {
	startDiff := w.Start.Sub(o.Start)
	if startDiff < 0 {
		startDiff = -startDiff
	}
	endDiff := w.End.Sub(o.End)
	if endDiff < 0 {
		endDiff = -endDiff
	}
	return startDiff <= tolerance && endDiff <= tolerance
}
