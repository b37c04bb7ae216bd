package billing

import "time"

// ElapsedMinutes returns the whole minutes between start and end. A nil end means the
// interval is still running and now is used instead.
func ElapsedMinutes(start time.Time, end *time.Time, now time.Time) (int, error) {
	effectiveEnd := now
	if end != nil {
		effectiveEnd = *end
	}
	if effectiveEnd.Before(start) {
		return 0, ErrInvalidInterval
	}
	seconds := int64(effectiveEnd.Sub(start) / time.Second)
	return int(seconds / 60), nil
}

// overlap clips [start, end) to [from, to) and reports whether anything is left.
func overlap(start, end, from, to time.Time) (time.Time, time.Time, bool) {
	if start.Before(from) {
		start = from
	}
	if end.After(to) {
		end = to
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}
