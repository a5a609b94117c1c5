package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/heyhotcake/shelfeye/internal/model"
	"github.com/heyhotcake/shelfeye/internal/monitor"
	"github.com/heyhotcake/shelfeye/internal/storage"
	"github.com/heyhotcake/shelfeye/internal/testutil"
)

func TestConsumer_Observations(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	_, js, cleanup := testutil.StartJetStream(t)
	defer cleanup()

	store := storage.NewMemoryStore()
	tracker := monitor.NewCameraTracker(logger)

	consumer, err := NewConsumer(logger, js, store.History, tracker)
	require.NoError(t, err)
	require.NoError(t, testutil.WaitForStream(t, js, "CAPTURE", 5*time.Second))
	require.NoError(t, consumer.Start(context.Background()))
	defer consumer.Stop()

	publisher := NewPublisher(logger, js)

	base := time.Date(2026, 8, 3, 10, 0, 0, 0, time.UTC)
	err = publisher.PublishObservation(&model.DetectionObservation{
		SlotID:    "slot-A1",
		CameraID:  "cam-1",
		Timestamp: base,
		State:     model.SlotStateEmpty,
	})
	require.NoError(t, err)

	// A malformed observation is dropped, not fatal.
	_, err = js.Publish("detection.observation", []byte(`{"slot_id":""}`))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := store.History.Query(context.Background(), "slot-A1", base)
		return err == nil && len(got) == 1
	}, 5*time.Second, 50*time.Millisecond)

	got, err := store.History.Query(context.Background(), "slot-A1", base)
	require.NoError(t, err)
	require.Equal(t, model.SlotStateEmpty, got[0].State)
	require.Equal(t, "cam-1", got[0].CameraID)
}

func TestConsumer_CameraReports(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	_, js, cleanup := testutil.StartJetStream(t)
	defer cleanup()

	store := storage.NewMemoryStore()
	tracker := monitor.NewCameraTracker(logger)

	consumer, err := NewConsumer(logger, js, store.History, tracker)
	require.NoError(t, err)
	require.NoError(t, consumer.Start(context.Background()))
	defer consumer.Stop()

	publisher := NewPublisher(logger, js)
	err = publisher.PublishCameraReport(&model.CameraReport{
		CameraID:       "cam-1",
		Timestamp:      time.Date(2026, 8, 3, 10, 0, 0, 0, time.UTC),
		Status:         "failed",
		SlotsProcessed: 0,
		Errors:         []string{"capture timeout"},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		signal := tracker.Signal("cam-1")
		return signal != nil && signal.ConsecutiveFailures == 1
	}, 5*time.Second, 50*time.Millisecond)

	signal := tracker.Signal("cam-1")
	require.Equal(t, "capture timeout", signal.LastError)
}
