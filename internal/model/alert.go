package model

import "time"

// AlertStatus represents the delivery state of a queue entry
type AlertStatus string

const (
	AlertStatusPending    AlertStatus = "pending"
	AlertStatusSent       AlertStatus = "sent"
	AlertStatusFailed     AlertStatus = "failed"
	AlertStatusSuppressed AlertStatus = "suppressed"
)

// Valid returns true when the status is part of the state machine.
func (s AlertStatus) Valid() bool {
	switch s {
	case AlertStatusPending, AlertStatusSent, AlertStatusFailed, AlertStatusSuppressed:
		return true
	default:
		return false
	}
}

// SubjectKind tells whether an alert is about a slot or a camera
type SubjectKind string

const (
	SubjectSlot   SubjectKind = "slot"
	SubjectCamera SubjectKind = "camera"
)

// AlertQueueEntry is one alert episode moving through the delivery
// pipeline. Entries are created by the queue manager, advanced by the
// dispatcher, and retained indefinitely for audit.
type AlertQueueEntry struct {
	ID          string      `json:"id"`
	RuleID      string      `json:"rule_id"`
	Type        RuleType    `json:"type"`
	SubjectKind SubjectKind `json:"subject_kind"`
	SubjectID   string      `json:"subject_id"`
	Message     string      `json:"message"`
	Status      AlertStatus `json:"status"`
	Priority    Priority    `json:"priority"`

	CreatedAt   time.Time  `json:"created_at"`
	ScheduledAt time.Time  `json:"scheduled_at"`
	SentAt      *time.Time `json:"sent_at,omitempty"`

	RetryCount int    `json:"retry_count"`
	LastError  string `json:"last_error,omitempty"`
}

// Open reports whether this entry still blocks a new episode for its
// (rule type, subject) pair: pending, or failed with retries left.
func (e *AlertQueueEntry) Open(maxRetries int) bool {
	switch e.Status {
	case AlertStatusPending:
		return true
	case AlertStatusFailed:
		return e.RetryCount < maxRetries
	default:
		return false
	}
}

// RuleTrigger is the evaluator's verdict that a rule condition became
// true for a subject during this evaluation pass.
type RuleTrigger struct {
	Rule        *AlertRule
	SubjectKind SubjectKind
	SubjectID   string
	Message     string

	// Evidence is a human-readable summary of what fired the rule,
	// carried into the audit trail.
	Evidence string
}

// Transition is one audit row recording a queue entry state change.
type Transition struct {
	ID      string      `json:"id"`
	EntryID string      `json:"entry_id"`
	From    AlertStatus `json:"from,omitempty"`
	To      AlertStatus `json:"to"`
	Reason  string      `json:"reason,omitempty"`
	At      time.Time   `json:"at"`
}
