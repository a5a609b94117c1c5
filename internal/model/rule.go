package model

import (
	"errors"
	"time"
)

// RuleType represents the kind of condition an alert rule watches for
type RuleType string

const (
	RuleTypeToolMissing  RuleType = "tool_missing"
	RuleTypeQRFailure    RuleType = "qr_failure"
	RuleTypeCameraHealth RuleType = "camera_health"
)

// Valid returns true when the rule type is supported.
func (t RuleType) Valid() bool {
	switch t {
	case RuleTypeToolMissing, RuleTypeQRFailure, RuleTypeCameraHealth:
		return true
	default:
		return false
	}
}

// Priority represents the operator-facing urgency of a rule
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Valid returns true when the priority is supported.
func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	default:
		return false
	}
}

// ToolMissingConditions are the thresholds specific to tool_missing rules.
type ToolMissingConditions struct {
	// TreatNoQRAsMissing counts OCCUPIED_NO_QR observations as missing
	// instead of unknown.
	TreatNoQRAsMissing bool `json:"treat_no_qr_as_missing"`

	// Debounce delays first delivery after the trigger edge.
	Debounce time.Duration `json:"debounce,omitempty"`
}

// QRFailureConditions are the thresholds specific to qr_failure rules.
type QRFailureConditions struct {
	// ConsecutiveFailures is the streak length that fires the rule.
	ConsecutiveFailures int `json:"consecutive_failures"`
}

// DefaultConsecutiveQRFailures applies when a qr_failure rule does not
// set a streak length.
const DefaultConsecutiveQRFailures = 3

// DefaultConsecutiveCaptureFailures applies when a camera_health rule
// does not set a capture failure streak.
const DefaultConsecutiveCaptureFailures = 3

// CameraHealthConditions are the thresholds specific to camera_health rules.
type CameraHealthConditions struct {
	// MaxReprojectionError in pixels; 0 disables the calibration check.
	MaxReprojectionError float64 `json:"max_reprojection_error,omitempty"`

	// ConsecutiveFailures is the capture failure streak that fires the rule.
	ConsecutiveFailures int `json:"consecutive_failures,omitempty"`
}

// RuleConditions carries exactly one variant, matching the rule's type.
type RuleConditions struct {
	ToolMissing  *ToolMissingConditions  `json:"tool_missing,omitempty"`
	QRFailure    *QRFailureConditions    `json:"qr_failure,omitempty"`
	CameraHealth *CameraHealthConditions `json:"camera_health,omitempty"`
}

// AlertRule defines a condition that raises operator alerts.
// Rules are operator configuration, read-only to the evaluator.
type AlertRule struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Type    RuleType `json:"type"`
	Enabled bool     `json:"enabled"`

	// VerificationWindow is how long a tool_missing condition must hold
	// continuously before the rule fires.
	VerificationWindow time.Duration `json:"verification_window,omitempty"`

	// BusinessHoursOnly gates the rule to the configured business hours.
	BusinessHoursOnly bool `json:"business_hours_only"`

	Priority   Priority       `json:"priority"`
	Conditions RuleConditions `json:"conditions"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks rule invariants.
func (r *AlertRule) Validate() error {
	if r.ID == "" {
		return errors.New("alert rule: empty id")
	}
	if r.Name == "" {
		return errors.New("alert rule: empty name")
	}
	if !r.Type.Valid() {
		return errors.New("alert rule: invalid type")
	}
	if !r.Priority.Valid() {
		return errors.New("alert rule: invalid priority")
	}
	switch r.Type {
	case RuleTypeToolMissing:
		if r.VerificationWindow <= 0 {
			return errors.New("alert rule: tool_missing requires a positive verification window")
		}
		if r.Conditions.QRFailure != nil || r.Conditions.CameraHealth != nil {
			return errors.New("alert rule: conditions do not match rule type")
		}
	case RuleTypeQRFailure:
		if r.Conditions.ToolMissing != nil || r.Conditions.CameraHealth != nil {
			return errors.New("alert rule: conditions do not match rule type")
		}
		if c := r.Conditions.QRFailure; c != nil && c.ConsecutiveFailures < 0 {
			return errors.New("alert rule: negative failure streak")
		}
	case RuleTypeCameraHealth:
		if r.Conditions.ToolMissing != nil || r.Conditions.QRFailure != nil {
			return errors.New("alert rule: conditions do not match rule type")
		}
		if c := r.Conditions.CameraHealth; c != nil && c.MaxReprojectionError < 0 {
			return errors.New("alert rule: negative reprojection threshold")
		}
	}
	return nil
}

// QRFailureStreak returns the configured streak length, applying the default.
func (r *AlertRule) QRFailureStreak() int {
	if c := r.Conditions.QRFailure; c != nil && c.ConsecutiveFailures > 0 {
		return c.ConsecutiveFailures
	}
	return DefaultConsecutiveQRFailures
}

// Debounce returns the delivery debounce for this rule, if any.
func (r *AlertRule) Debounce() time.Duration {
	if c := r.Conditions.ToolMissing; c != nil {
		return c.Debounce
	}
	return 0
}

// CaptureFailureStreak returns the configured capture failure streak,
// applying the default.
func (r *AlertRule) CaptureFailureStreak() int {
	if c := r.Conditions.CameraHealth; c != nil && c.ConsecutiveFailures > 0 {
		return c.ConsecutiveFailures
	}
	return DefaultConsecutiveCaptureFailures
}

// MaxReprojectionError returns the calibration threshold in pixels,
// or 0 when the check is disabled.
func (r *AlertRule) MaxReprojectionError() float64 {
	if c := r.Conditions.CameraHealth; c != nil {
		return c.MaxReprojectionError
	}
	return 0
}
