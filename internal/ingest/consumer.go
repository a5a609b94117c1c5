// Package ingest consumes the vision pipeline's capture output from
// JetStream and feeds it into detection history and camera health
// tracking.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/heyhotcake/shelfeye/internal/metrics"
	"github.com/heyhotcake/shelfeye/internal/model"
	"github.com/heyhotcake/shelfeye/internal/monitor"
	"github.com/heyhotcake/shelfeye/internal/storage"
)

const (
	captureStreamName   = "CAPTURE"
	observationSubject  = "detection.observation"
	cameraReportSubject = "camera.report"
	streamMaxAge        = 72 * time.Hour // keep raw capture output for three days
	operationTimeout    = 30 * time.Second
)

// Consumer subscribes to the capture subjects and writes observations
// into history. Malformed messages are logged and dropped; ingestion
// never crashes the process on bad input.
type Consumer struct {
	logger  *zap.Logger
	js      nats.JetStreamContext
	history storage.DetectionHistory
	tracker *monitor.CameraTracker
	subs    []*nats.Subscription
}

// NewConsumer creates the capture consumer and ensures the stream
// exists.
func NewConsumer(logger *zap.Logger, js nats.JetStreamContext, history storage.DetectionHistory, tracker *monitor.CameraTracker) (*Consumer, error) {
	consumer := &Consumer{
		logger:  logger.Named("ingest"),
		js:      js,
		history: history,
		tracker: tracker,
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	if err := consumer.setupStream(ctx); err != nil {
		return nil, fmt.Errorf("failed to setup capture stream: %w", err)
	}
	return consumer, nil
}

func (c *Consumer) setupStream(ctx context.Context) error {
	_, err := c.js.AddStream(&nats.StreamConfig{
		Name:     captureStreamName,
		Subjects: []string{"detection.*", "camera.*"},
		Storage:  nats.FileStorage,
		MaxAge:   streamMaxAge,
	}, nats.Context(ctx))

	if err != nil {
		if err == nats.ErrStreamNameAlreadyInUse {
			c.logger.Info("Stream already exists", zap.String("stream", captureStreamName))
			return nil
		}
		return err
	}

	c.logger.Info("Stream created successfully", zap.String("stream", captureStreamName))
	return nil
}

// Start subscribes to the capture subjects.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("Starting capture consumer")

	obsSub, err := c.js.Subscribe(observationSubject, c.handleObservation, nats.Context(ctx))
	if err != nil {
		return fmt.Errorf("failed to subscribe to observations: %w", err)
	}
	c.subs = append(c.subs, obsSub)

	reportSub, err := c.js.Subscribe(cameraReportSubject, c.handleCameraReport, nats.Context(ctx))
	if err != nil {
		return fmt.Errorf("failed to subscribe to camera reports: %w", err)
	}
	c.subs = append(c.subs, reportSub)

	return nil
}

// Stop drains the subscriptions.
func (c *Consumer) Stop() {
	c.logger.Info("Stopping capture consumer")
	for _, sub := range c.subs {
		if err := sub.Unsubscribe(); err != nil {
			c.logger.Warn("Failed to unsubscribe", zap.Error(err))
		}
	}
	c.subs = nil
}

func (c *Consumer) handleObservation(msg *nats.Msg) {
	var obs model.DetectionObservation
	if err := json.Unmarshal(msg.Data, &obs); err != nil {
		c.logger.Error("Failed to unmarshal observation", zap.Error(err))
		metrics.ObservationsTotal.WithLabelValues("unknown", "rejected").Inc()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	if err := c.history.Append(ctx, &obs); err != nil {
		if errors.Is(err, storage.ErrValidation) {
			c.logger.Warn("Dropping invalid observation",
				zap.String("slot_id", obs.SlotID),
				zap.String("camera_id", obs.CameraID),
				zap.Error(err))
			metrics.ObservationsTotal.WithLabelValues(obs.CameraID, "rejected").Inc()
			return
		}
		c.logger.Error("Failed to append observation",
			zap.String("slot_id", obs.SlotID),
			zap.Error(err))
		return
	}

	metrics.ObservationsTotal.WithLabelValues(obs.CameraID, "accepted").Inc()
	c.logger.Debug("Observation ingested",
		zap.String("slot_id", obs.SlotID),
		zap.String("state", string(obs.State)))
}

func (c *Consumer) handleCameraReport(msg *nats.Msg) {
	var report model.CameraReport
	if err := json.Unmarshal(msg.Data, &report); err != nil {
		c.logger.Error("Failed to unmarshal camera report", zap.Error(err))
		return
	}
	if report.CameraID == "" {
		c.logger.Warn("Dropping camera report without camera id")
		return
	}

	c.tracker.Observe(&report)
	metrics.CameraReportsTotal.WithLabelValues(report.CameraID, report.Status).Inc()
	c.logger.Debug("Camera report ingested",
		zap.String("camera_id", report.CameraID),
		zap.String("status", report.Status),
		zap.Int("slots_processed", report.SlotsProcessed))
}
