package models

import (
	"fmt"
	"time"
)

// TimeWindow is an immutable [Min, Max] interval. It bounds scheduled-event
// discovery ranges and firing checks; it is never persisted.
type TimeWindow struct {
	Min time.Time
	Max time.Time
}

// NewTimeWindow builds a validated window. Min must not be after Max.
func NewTimeWindow(min, max time.Time) (TimeWindow, error) {
	if min.After(max) {
		return TimeWindow{}, fmt.Errorf("invalid time window: min %s after max %s", min.Format(time.RFC3339), max.Format(time.RFC3339))
	}
	return TimeWindow{Min: min, Max: max}, nil
}

// Contains reports whether t falls inside the window. Both bounds are
// inclusive on Min and exclusive on Max, so back-to-back windows never
// overlap and a fire time lands in exactly one of them.
func (w TimeWindow) Contains(t time.Time) bool {
	return !t.Before(w.Min) && t.Before(w.Max)
}

// Shift returns a copy of the window moved by d.
func (w TimeWindow) Shift(d time.Duration) TimeWindow {
	return TimeWindow{Min: w.Min.Add(d), Max: w.Max.Add(d)}
}

func (w TimeWindow) String() string {
	return fmt.Sprintf("[%s, %s)", w.Min.Format(time.RFC3339), w.Max.Format(time.RFC3339))
}
