package storage

import (
	"context"
	"errors"
	"time"

	"github.com/heyhotcake/shelfeye/internal/model"
)

var (
	// ErrValidation is returned when a record is structurally invalid.
	// Callers log and drop; it never crashes the evaluation loop.
	ErrValidation = errors.New("validation error")

	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
)

// DetectionHistory is the append-only, time-ordered log of observations
// per slot. The engine only requires this query contract; the backing
// store is interchangeable (SQLite in production, memory in tests).
type DetectionHistory interface {
	// Append stores one observation. Observations are never mutated.
	Append(ctx context.Context, obs *model.DetectionObservation) error

	// Query returns observations for a slot with timestamp >= since,
	// ordered by timestamp ascending.
	Query(ctx context.Context, slotID string, since time.Time) ([]model.DetectionObservation, error)

	// LatestBefore returns the most recent observation for a slot at or
	// before t, or nil when the slot has none.
	LatestBefore(ctx context.Context, slotID string, t time.Time) (*model.DetectionObservation, error)
}

// AlertFilters narrows List results on the alert store.
type AlertFilters struct {
	Status    model.AlertStatus
	Type      model.RuleType
	SubjectID string
}

// AlertStore persists queue entries. Entries are never deleted, only
// transitioned; the history view reads terminal entries from here.
type AlertStore interface {
	Create(ctx context.Context, entry *model.AlertQueueEntry) error
	Update(ctx context.Context, entry *model.AlertQueueEntry) error
	Get(ctx context.Context, id string) (*model.AlertQueueEntry, error)

	// FindOpen returns the open entry for a (rule type, subject) pair,
	// or nil when no episode is open. Open means pending, or failed
	// with retry_count < maxRetries.
	FindOpen(ctx context.Context, ruleType model.RuleType, subjectID string, maxRetries int) (*model.AlertQueueEntry, error)

	// ListDue returns open entries whose scheduled_at <= now.
	ListDue(ctx context.Context, now time.Time, maxRetries int) ([]*model.AlertQueueEntry, error)

	// List returns entries for the operator history view, most recent
	// first.
	List(ctx context.Context, filters AlertFilters, offset, limit int) ([]*model.AlertQueueEntry, error)
}

// RuleStore is the operator-facing rule configuration store, consumed
// read-only by the evaluator.
type RuleStore interface {
	ListEnabled(ctx context.Context) ([]*model.AlertRule, error)
	List(ctx context.Context) ([]*model.AlertRule, error)
	Get(ctx context.Context, id string) (*model.AlertRule, error)
	Upsert(ctx context.Context, rule *model.AlertRule) error
	Delete(ctx context.Context, id string) error
}

// SlotStore holds the slot registry.
type SlotStore interface {
	List(ctx context.Context) ([]*model.Slot, error)
	Get(ctx context.Context, id string) (*model.Slot, error)
	Upsert(ctx context.Context, slot *model.Slot) error
}

// AuditSink records every queue entry state transition, append-only.
type AuditSink interface {
	Record(ctx context.Context, tr *model.Transition) error
	ListByEntry(ctx context.Context, entryID string) ([]model.Transition, error)
}

func validateObservation(obs *model.DetectionObservation) error {
	if obs == nil {
		return ErrValidation
	}
	if obs.SlotID == "" || obs.Timestamp.IsZero() || !obs.State.Valid() {
		return ErrValidation
	}
	return nil
}
