package model

import (
	"time"
)

// SlotState represents the detected state of a storage slot
type SlotState string

const (
	SlotStateItemPresent     SlotState = "ITEM_PRESENT"
	SlotStateEmpty           SlotState = "EMPTY"
	SlotStateCheckedOut      SlotState = "CHECKED_OUT"
	SlotStateOccupiedNoQR    SlotState = "OCCUPIED_NO_QR"
	SlotStateTrainingError   SlotState = "TRAINING_ERROR"
	SlotStateWrongItem       SlotState = "WRONG_ITEM"
	SlotStateProcessingError SlotState = "PROCESSING_ERROR"
)

// Valid returns true when the state is one the vision pipeline can emit.
func (s SlotState) Valid() bool {
	switch s {
	case SlotStateItemPresent, SlotStateEmpty, SlotStateCheckedOut,
		SlotStateOccupiedNoQR, SlotStateTrainingError,
		SlotStateWrongItem, SlotStateProcessingError:
		return true
	default:
		return false
	}
}

// DetectionObservation is one per-slot result of a capture cycle.
// Observations are append-only; they are never mutated once written.
type DetectionObservation struct {
	SlotID        string    `json:"slot_id"`
	CameraID      string    `json:"camera_id"`
	Timestamp     time.Time `json:"timestamp"`
	State         SlotState `json:"state"`
	Confidence    float64   `json:"confidence"`
	QRPayload     string    `json:"qr_payload,omitempty"`
	FailureReason string    `json:"failure_reason,omitempty"`

	// SSIM scores against the slot's empty/full baselines, kept as
	// trigger evidence.
	SSIMEmpty *float64 `json:"ssim_empty,omitempty"`
	SSIMFull  *float64 `json:"ssim_full,omitempty"`
}

// QRFailed reports whether this observation counts toward a QR failure
// streak. A decoded payload always breaks the streak.
func (o *DetectionObservation) QRFailed() bool {
	if o.QRPayload != "" {
		return false
	}
	return o.State == SlotStateTrainingError ||
		o.State == SlotStateProcessingError ||
		o.FailureReason != ""
}

// CameraReport is the per-camera capture summary published by the
// vision pipeline alongside slot observations.
type CameraReport struct {
	CameraID          string    `json:"camera_id"`
	Timestamp         time.Time `json:"timestamp"`
	Status            string    `json:"status"` // "success" or "failed"
	SlotsProcessed    int       `json:"slots_processed"`
	ReprojectionError float64   `json:"reprojection_error,omitempty"`
	Errors            []string  `json:"errors,omitempty"`
}

// OK reports whether the capture cycle succeeded for this camera.
func (r *CameraReport) OK() bool {
	return r.Status == "success"
}
