package ingest

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/heyhotcake/shelfeye/internal/model"
)

// Publisher is the capture-side counterpart of Consumer. Edge agents
// use it to push observations and camera reports onto the capture
// stream.
type Publisher struct {
	logger *zap.Logger
	js     nats.JetStreamContext
}

// NewPublisher creates a capture publisher.
func NewPublisher(logger *zap.Logger, js nats.JetStreamContext) *Publisher {
	return &Publisher{
		logger: logger.Named("publisher"),
		js:     js,
	}
}

// PublishObservation publishes one slot observation.
func (p *Publisher) PublishObservation(obs *model.DetectionObservation) error {
	data, err := json.Marshal(obs)
	if err != nil {
		return fmt.Errorf("failed to marshal observation: %w", err)
	}

	if _, err := p.js.Publish(observationSubject, data); err != nil {
		p.logger.Error("Failed to publish observation",
			zap.String("slot_id", obs.SlotID),
			zap.Error(err))
		return err
	}

	p.logger.Debug("Observation published",
		zap.String("slot_id", obs.SlotID),
		zap.String("state", string(obs.State)))
	return nil
}

// PublishCameraReport publishes one capture cycle report.
func (p *Publisher) PublishCameraReport(report *model.CameraReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal camera report: %w", err)
	}

	if _, err := p.js.Publish(cameraReportSubject, data); err != nil {
		p.logger.Error("Failed to publish camera report",
			zap.String("camera_id", report.CameraID),
			zap.Error(err))
		return err
	}
	return nil
}
