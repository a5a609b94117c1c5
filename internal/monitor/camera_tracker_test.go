package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/heyhotcake/shelfeye/internal/model"
)

func report(cameraID, status string, at time.Time) *model.CameraReport {
	return &model.CameraReport{
		CameraID:       cameraID,
		Timestamp:      at,
		Status:         status,
		SlotsProcessed: 12,
	}
}

func TestCameraTracker_FailureStreak(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	tracker := NewCameraTracker(logger)
	base := time.Date(2026, 8, 3, 10, 0, 0, 0, time.UTC)

	require.Nil(t, tracker.Signal("cam-1"))

	fail := report("cam-1", "failed", base)
	fail.Errors = []string{"capture timeout"}
	tracker.Observe(fail)
	tracker.Observe(report("cam-1", "failed", base.Add(time.Minute)))

	signal := tracker.Signal("cam-1")
	require.NotNil(t, signal)
	require.Equal(t, 2, signal.ConsecutiveFailures)
	require.Equal(t, base.Add(time.Minute), signal.LastSeen)

	// A successful cycle resets the streak.
	tracker.Observe(report("cam-1", "success", base.Add(2*time.Minute)))
	signal = tracker.Signal("cam-1")
	require.Zero(t, signal.ConsecutiveFailures)
	require.Empty(t, signal.LastError)
}

func TestCameraTracker_ReprojectionError(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	tracker := NewCameraTracker(logger)
	base := time.Date(2026, 8, 3, 10, 0, 0, 0, time.UTC)

	ok := report("cam-1", "success", base)
	ok.ReprojectionError = 1.8
	tracker.Observe(ok)

	signal := tracker.Signal("cam-1")
	require.InDelta(t, 1.8, signal.ReprojectionError, 1e-9)

	// A report without a calibration reading keeps the last one.
	tracker.Observe(report("cam-1", "success", base.Add(time.Minute)))
	signal = tracker.Signal("cam-1")
	require.InDelta(t, 1.8, signal.ReprojectionError, 1e-9)
}

func TestCameraTracker_Snapshot(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	tracker := NewCameraTracker(logger)
	base := time.Date(2026, 8, 3, 10, 0, 0, 0, time.UTC)

	tracker.Observe(report("cam-1", "success", base))
	tracker.Observe(report("cam-2", "failed", base))

	snapshot := tracker.Snapshot()
	require.Len(t, snapshot, 2)

	// Snapshot copies do not alias tracker state.
	for _, signal := range snapshot {
		signal.ConsecutiveFailures = 99
	}
	require.NotEqual(t, 99, tracker.Signal("cam-1").ConsecutiveFailures)
}
