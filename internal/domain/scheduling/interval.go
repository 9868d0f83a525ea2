package scheduling

import (
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

// Slot is a calendar day plus a half-open [Start, End) time-of-day range.
type Slot struct {
	Day   civil.Date `json:"day"`
	Start civil.Time `json:"start_time"`
	End   civil.Time `json:"end_time"`
}

// Validate checks that the slot names a real day and that Start < End.
func (s Slot) Validate() error {
	if !s.Day.IsValid() {
		return &ValidationError{Field: "day", Reason: "must be a valid calendar date"}
	}
	if !s.Start.IsValid() {
		return &ValidationError{Field: "start_time", Reason: "must be a valid time of day"}
	}
	if !s.End.IsValid() {
		return &ValidationError{Field: "end_time", Reason: "must be a valid time of day"}
	}
	if s.Start.Nanosecond%int(time.Microsecond) != 0 {
		return &ValidationError{Field: "start_time", Reason: "must not be finer than a microsecond"}
	}
	if s.End.Nanosecond%int(time.Microsecond) != 0 {
		return &ValidationError{Field: "end_time", Reason: "must not be finer than a microsecond"}
	}
	if clockNanos(s.Start) >= clockNanos(s.End) {
		return &ValidationError{Field: "end_time", Reason: "must be after start_time"}
	}
	return nil
}

// Overlaps reports whether two slots on the same day share any instant.
// Back-to-back slots (one ends exactly when the other starts) do not overlap.
func (s Slot) Overlaps(o Slot) bool {
	if s.Day != o.Day {
		return false
	}
	return clockNanos(s.Start) < clockNanos(o.End) && clockNanos(o.Start) < clockNanos(s.End)
}

func (s Slot) String() string {
	return fmt.Sprintf("%s %s-%s", s.Day, formatClock(s.Start), formatClock(s.End))
}

func clockNanos(t civil.Time) int64 {
	return int64(t.Hour)*int64(time.Hour) +
		int64(t.Minute)*int64(time.Minute) +
		int64(t.Second)*int64(time.Second) +
		int64(t.Nanosecond)
}

func formatClock(t civil.Time) string {
	if t.Second == 0 && t.Nanosecond == 0 {
		return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
	}
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}

// ParseClock accepts "15:04" or "15:04:05" (with optional fractional seconds).
// Fractions are truncated to microseconds, the precision the store keeps.
func ParseClock(s string) (civil.Time, error) {
	s = strings.TrimSpace(s)
	if strings.Count(s, ":") == 1 {
		s += ":00"
	}
	t, err := civil.ParseTime(s)
	if err != nil {
		return civil.Time{}, fmt.Errorf("invalid time of day %q", s)
	}
	t.Nanosecond -= t.Nanosecond % int(time.Microsecond)
	return t, nil
}

// ParseDay accepts an ISO calendar date ("2006-01-02").
func ParseDay(s string) (civil.Date, error) {
	d, err := civil.ParseDate(strings.TrimSpace(s))
	if err != nil {
		return civil.Date{}, fmt.Errorf("invalid date %q", s)
	}
	return d, nil
}
