package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWindow_Contains(t *testing.T) {
	w := &Window{Start: "08:00", End: "20:00", Timezone: "UTC"}

	require.True(t, w.Contains(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)))
	require.True(t, w.Contains(time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)))
	require.False(t, w.Contains(time.Date(2026, 3, 2, 20, 0, 0, 0, time.UTC)))
	require.False(t, w.Contains(time.Date(2026, 3, 2, 22, 0, 0, 0, time.UTC)))
	require.False(t, w.Contains(time.Date(2026, 3, 2, 7, 59, 0, 0, time.UTC)))
}

func TestWindow_ContainsOvernight(t *testing.T) {
	w := &Window{Start: "22:00", End: "06:30", Timezone: "UTC"}

	require.True(t, w.Contains(time.Date(2026, 3, 2, 23, 0, 0, 0, time.UTC)))
	require.True(t, w.Contains(time.Date(2026, 3, 3, 2, 0, 0, 0, time.UTC)))
	require.True(t, w.Contains(time.Date(2026, 3, 3, 6, 29, 0, 0, time.UTC)))
	require.False(t, w.Contains(time.Date(2026, 3, 3, 6, 30, 0, 0, time.UTC)))
	require.False(t, w.Contains(time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)))
}

func TestWindow_ContainsWeekdays(t *testing.T) {
	w := &Window{
		Start:    "08:00",
		End:      "20:00",
		Timezone: "UTC",
		Days: []time.Weekday{
			time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday,
		},
	}

	// 2026-03-02 is a Monday, 2026-03-07 a Saturday.
	require.True(t, w.Contains(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)))
	require.False(t, w.Contains(time.Date(2026, 3, 7, 10, 0, 0, 0, time.UTC)))
}

func TestWindow_OvernightWeekdayBelongsToStartDay(t *testing.T) {
	// Friday night shift runs into Saturday morning; the Saturday 02:00
	// portion still counts as the Friday window.
	w := &Window{
		Start:    "22:00",
		End:      "06:00",
		Timezone: "UTC",
		Days:     []time.Weekday{time.Friday},
	}

	// 2026-03-06 is a Friday.
	require.True(t, w.Contains(time.Date(2026, 3, 6, 23, 0, 0, 0, time.UTC)))
	require.True(t, w.Contains(time.Date(2026, 3, 7, 2, 0, 0, 0, time.UTC)))
	require.False(t, w.Contains(time.Date(2026, 3, 8, 2, 0, 0, 0, time.UTC)))
}

func TestWindow_Validate(t *testing.T) {
	require.NoError(t, (&Window{Start: "08:00", End: "20:00"}).Validate())
	require.Error(t, (&Window{Start: "25:00", End: "20:00"}).Validate())
	require.Error(t, (&Window{Start: "08:00", End: "20:61"}).Validate())
	require.Error(t, (&Window{Start: "08:00", End: "20:00", Timezone: "Mars/Olympus"}).Validate())
}

func TestElapsed(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	require.True(t, Elapsed(now.Add(-5*time.Minute), now, 5*time.Minute))
	require.False(t, Elapsed(now.Add(-4*time.Minute), now, 5*time.Minute))
	require.False(t, Elapsed(time.Time{}, now, 5*time.Minute))
}
