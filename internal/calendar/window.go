// Package calendar answers the two temporal questions the rule engine
// asks: is a timestamp inside a configured business-hours window, and
// has a duration elapsed since an earlier timestamp. It holds no state.
package calendar

import (
	"errors"
	"fmt"
	"time"
)

// Window is a daily business-hours range, e.g. 08:00-20:00.
// Start and End are "HH:MM" local to Timezone. A window whose End is
// before its Start spans midnight (22:00-06:30 covers the night).
type Window struct {
	Start    string         `json:"start"`
	End      string         `json:"end"`
	Timezone string         `json:"timezone,omitempty"`
	Days     []time.Weekday `json:"days,omitempty"` // empty means every day
}

// Validate checks the window fields parse.
func (w *Window) Validate() error {
	if _, _, err := parseClock(w.Start); err != nil {
		return fmt.Errorf("window start: %w", err)
	}
	if _, _, err := parseClock(w.End); err != nil {
		return fmt.Errorf("window end: %w", err)
	}
	if w.Timezone != "" {
		if _, err := time.LoadLocation(w.Timezone); err != nil {
			return fmt.Errorf("window timezone: %w", err)
		}
	}
	return nil
}

// Contains reports whether t falls inside the window.
func (w *Window) Contains(t time.Time) bool {
	loc := time.Local
	if w.Timezone != "" {
		if l, err := time.LoadLocation(w.Timezone); err == nil {
			loc = l
		}
	}
	local := t.In(loc)

	startH, startM, err := parseClock(w.Start)
	if err != nil {
		return false
	}
	endH, endM, err := parseClock(w.End)
	if err != nil {
		return false
	}

	minutes := local.Hour()*60 + local.Minute()
	start := startH*60 + startM
	end := endH*60 + endM

	if start <= end {
		if minutes < start || minutes >= end {
			return false
		}
		return w.dayAllowed(local.Weekday())
	}

	// Overnight span: the portion after midnight belongs to the
	// previous calendar day for day-of-week purposes.
	if minutes >= start {
		return w.dayAllowed(local.Weekday())
	}
	if minutes < end {
		return w.dayAllowed(local.AddDate(0, 0, -1).Weekday())
	}
	return false
}

func (w *Window) dayAllowed(d time.Weekday) bool {
	if len(w.Days) == 0 {
		return true
	}
	for _, allowed := range w.Days {
		if allowed == d {
			return true
		}
	}
	return false
}

// Elapsed reports whether at least d has passed between since and now.
func Elapsed(since, now time.Time, d time.Duration) bool {
	return !since.IsZero() && now.Sub(since) >= d
}

func parseClock(s string) (int, int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, 0, errors.New("expected HH:MM")
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, 0, errors.New("clock out of range")
	}
	return h, m, nil
}
