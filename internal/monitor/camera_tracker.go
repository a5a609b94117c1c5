// Package monitor tracks camera health from capture reports and
// samples resource usage on the monitoring host.
package monitor

import (
	"sync"

	"go.uber.org/zap"

	"github.com/heyhotcake/shelfeye/internal/metrics"
	"github.com/heyhotcake/shelfeye/internal/model"
)

// CameraTracker folds capture reports into per-camera health signals
// for camera_health rules. State is rebuilt from the report stream;
// nothing is persisted.
type CameraTracker struct {
	logger *zap.Logger

	mu      sync.RWMutex
	cameras map[string]*model.CameraHealthSignal
}

// NewCameraTracker creates an empty tracker.
func NewCameraTracker(logger *zap.Logger) *CameraTracker {
	return &CameraTracker{
		logger:  logger.Named("camera-tracker"),
		cameras: make(map[string]*model.CameraHealthSignal),
	}
}

// Observe folds one capture report into the camera's signal. A
// successful cycle resets the failure streak; a failed one extends it.
func (t *CameraTracker) Observe(report *model.CameraReport) {
	if report == nil || report.CameraID == "" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	signal, ok := t.cameras[report.CameraID]
	if !ok {
		signal = &model.CameraHealthSignal{CameraID: report.CameraID}
		t.cameras[report.CameraID] = signal
	}

	signal.LastSeen = report.Timestamp
	if report.OK() {
		signal.ConsecutiveFailures = 0
		signal.LastError = ""
		if report.ReprojectionError > 0 {
			signal.ReprojectionError = report.ReprojectionError
		}
	} else {
		signal.ConsecutiveFailures++
		if len(report.Errors) > 0 {
			signal.LastError = report.Errors[len(report.Errors)-1]
		}
		t.logger.Warn("Camera capture cycle failed",
			zap.String("camera_id", report.CameraID),
			zap.Int("consecutive_failures", signal.ConsecutiveFailures),
			zap.Strings("errors", report.Errors))
	}

	metrics.CameraConsecutiveFailures.WithLabelValues(report.CameraID).Set(float64(signal.ConsecutiveFailures))
	metrics.CameraReprojectionError.WithLabelValues(report.CameraID).Set(signal.ReprojectionError)
}

// Signal returns the current health signal for one camera, or nil when
// the camera has never reported.
func (t *CameraTracker) Signal(cameraID string) *model.CameraHealthSignal {
	t.mu.RLock()
	defer t.mu.RUnlock()

	signal, ok := t.cameras[cameraID]
	if !ok {
		return nil
	}
	cp := *signal
	return &cp
}

// Snapshot returns the current signal for every known camera.
func (t *CameraTracker) Snapshot() []*model.CameraHealthSignal {
	t.mu.RLock()
	defer t.mu.RUnlock()

	signals := make([]*model.CameraHealthSignal, 0, len(t.cameras))
	for _, signal := range t.cameras {
		cp := *signal
		signals = append(signals, &cp)
	}
	return signals
}
