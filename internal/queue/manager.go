// Package queue owns the alert lifecycle: deduplicated episode
// creation, retry scheduling with backoff, and the audit trail of
// every status transition.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/heyhotcake/shelfeye/internal/model"
	"github.com/heyhotcake/shelfeye/internal/storage"
)

// DefaultMaxRetries is the delivery retry ceiling applied when the
// configuration does not set one.
const DefaultMaxRetries = 5

// Manager is the only writer of AlertQueueEntry records. All status
// transitions flow through it so the dedup invariant and the audit
// trail stay consistent.
type Manager struct {
	logger     *zap.Logger
	alerts     storage.AlertStore
	audit      storage.AuditSink
	strategy   RetryStrategy
	maxRetries int

	// mu serializes the open-entry check in Submit and Resolve against
	// concurrent callers. Store reads and writes are not atomic across
	// the find-then-create pair without it.
	mu sync.Mutex
}

// NewManager creates a queue manager. strategy may be nil for the
// default exponential backoff; maxRetries <= 0 selects the default
// ceiling.
func NewManager(logger *zap.Logger, alerts storage.AlertStore, audit storage.AuditSink, strategy RetryStrategy, maxRetries int) *Manager {
	if strategy == nil {
		strategy = DefaultBackoff()
	}
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Manager{
		logger:     logger.Named("queue"),
		alerts:     alerts,
		audit:      audit,
		strategy:   strategy,
		maxRetries: maxRetries,
	}
}

// MaxRetries returns the configured retry ceiling.
func (m *Manager) MaxRetries() int {
	return m.maxRetries
}

// Submit opens an alert episode for a trigger, or returns the already
// open entry for the same (rule type, subject) pair untouched. The
// second return value reports whether a new entry was created.
func (m *Manager) Submit(ctx context.Context, trigger *model.RuleTrigger, now time.Time) (*model.AlertQueueEntry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, err := m.alerts.FindOpen(ctx, trigger.Rule.Type, trigger.SubjectID, m.maxRetries)
	if err != nil {
		return nil, false, fmt.Errorf("failed to check for open entry: %w", err)
	}
	if existing != nil {
		return existing, false, nil
	}

	entry := &model.AlertQueueEntry{
		ID:          uuid.New().String(),
		RuleID:      trigger.Rule.ID,
		Type:        trigger.Rule.Type,
		SubjectKind: trigger.SubjectKind,
		SubjectID:   trigger.SubjectID,
		Message:     trigger.Message,
		Status:      model.AlertStatusPending,
		Priority:    trigger.Rule.Priority,
		CreatedAt:   now,
		ScheduledAt: now.Add(trigger.Rule.Debounce()),
	}
	if err := m.alerts.Create(ctx, entry); err != nil {
		return nil, false, fmt.Errorf("failed to create queue entry: %w", err)
	}
	m.recordTransition(ctx, entry.ID, "", model.AlertStatusPending, trigger.Evidence, now)

	m.logger.Info("Alert episode opened",
		zap.String("entry_id", entry.ID),
		zap.String("rule_type", string(entry.Type)),
		zap.String("subject_id", entry.SubjectID),
		zap.Time("scheduled_at", entry.ScheduledAt))
	return entry, true, nil
}

// MarkSent records a successful delivery. The entry becomes terminal.
func (m *Manager) MarkSent(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, err := m.get(ctx, id)
	if err != nil {
		return err
	}
	if !entry.Open(m.maxRetries) {
		return ErrTerminalState
	}

	from := entry.Status
	entry.Status = model.AlertStatusSent
	entry.SentAt = &at
	if err := m.alerts.Update(ctx, entry); err != nil {
		return fmt.Errorf("failed to mark entry sent: %w", err)
	}
	m.recordTransition(ctx, entry.ID, from, model.AlertStatusSent, "delivered", at)

	m.logger.Info("Alert delivered",
		zap.String("entry_id", entry.ID),
		zap.String("subject_id", entry.SubjectID),
		zap.Int("retry_count", entry.RetryCount))
	return nil
}

// MarkFailed records a delivery failure and decides the retry. It
// returns true when another attempt was scheduled, false when the
// entry hit the retry ceiling and became terminal.
func (m *Manager) MarkFailed(ctx context.Context, id string, reason string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, err := m.get(ctx, id)
	if err != nil {
		return false, err
	}
	if !entry.Open(m.maxRetries) {
		return false, ErrTerminalState
	}

	from := entry.Status
	entry.Status = model.AlertStatusFailed
	entry.RetryCount++
	entry.LastError = reason

	retrying := entry.RetryCount < m.maxRetries
	if retrying {
		delay := m.strategy.NextRetry(entry.RetryCount)
		entry.ScheduledAt = now.Add(delay)
		m.logger.Warn("Alert delivery failed, retry scheduled",
			zap.String("entry_id", entry.ID),
			zap.String("subject_id", entry.SubjectID),
			zap.Int("retry_count", entry.RetryCount),
			zap.Duration("backoff", delay),
			zap.String("reason", reason))
	} else {
		m.logger.Error("Alert delivery exhausted retries",
			zap.String("entry_id", entry.ID),
			zap.String("subject_id", entry.SubjectID),
			zap.Int("retry_count", entry.RetryCount),
			zap.String("reason", reason))
	}

	if err := m.alerts.Update(ctx, entry); err != nil {
		return false, fmt.Errorf("failed to mark entry failed: %w", err)
	}
	m.recordTransition(ctx, entry.ID, from, model.AlertStatusFailed, reason, now)
	return retrying, nil
}

// MarkFailedPermanent closes an entry as terminal failed without
// consuming the retry schedule, for channel errors retries cannot fix.
func (m *Manager) MarkFailedPermanent(ctx context.Context, id string, reason string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, err := m.get(ctx, id)
	if err != nil {
		return err
	}
	if !entry.Open(m.maxRetries) {
		return ErrTerminalState
	}

	from := entry.Status
	entry.Status = model.AlertStatusFailed
	entry.RetryCount = m.maxRetries
	entry.LastError = reason
	if err := m.alerts.Update(ctx, entry); err != nil {
		return fmt.Errorf("failed to mark entry permanently failed: %w", err)
	}
	m.recordTransition(ctx, entry.ID, from, model.AlertStatusFailed, "permanent: "+reason, now)

	m.logger.Error("Alert delivery failed permanently",
		zap.String("entry_id", entry.ID),
		zap.String("subject_id", entry.SubjectID),
		zap.String("reason", reason))
	return nil
}

// Resolve closes the open episode for a (rule type, subject) pair
// because the underlying condition stopped holding. An undelivered
// entry is suppressed; already terminal entries stay as historical
// record. It returns true when an entry was suppressed.
func (m *Manager) Resolve(ctx context.Context, ruleType model.RuleType, subjectID string, reason string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, err := m.alerts.FindOpen(ctx, ruleType, subjectID, m.maxRetries)
	if err != nil {
		return false, fmt.Errorf("failed to find open entry: %w", err)
	}
	if entry == nil {
		return false, nil
	}

	from := entry.Status
	entry.Status = model.AlertStatusSuppressed
	if err := m.alerts.Update(ctx, entry); err != nil {
		return false, fmt.Errorf("failed to suppress entry: %w", err)
	}
	m.recordTransition(ctx, entry.ID, from, model.AlertStatusSuppressed, reason, now)

	m.logger.Info("Alert episode suppressed",
		zap.String("entry_id", entry.ID),
		zap.String("rule_type", string(ruleType)),
		zap.String("subject_id", subjectID),
		zap.String("reason", reason))
	return true, nil
}

// HasOpen reports whether an episode is currently open for the
// (rule type, subject) pair.
func (m *Manager) HasOpen(ctx context.Context, ruleType model.RuleType, subjectID string) (bool, error) {
	entry, err := m.alerts.FindOpen(ctx, ruleType, subjectID, m.maxRetries)
	if err != nil {
		return false, fmt.Errorf("failed to find open entry: %w", err)
	}
	return entry != nil, nil
}

// ListDue returns open entries ready for a delivery attempt at now,
// oldest scheduled first.
func (m *Manager) ListDue(ctx context.Context, now time.Time) ([]*model.AlertQueueEntry, error) {
	return m.alerts.ListDue(ctx, now, m.maxRetries)
}

func (m *Manager) get(ctx context.Context, id string) (*model.AlertQueueEntry, error) {
	entry, err := m.alerts.Get(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrUnknownEntry
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load queue entry: %w", err)
	}
	return entry, nil
}

// recordTransition appends an audit row. Audit write failures are
// logged, not propagated; the queue state change has already happened.
func (m *Manager) recordTransition(ctx context.Context, entryID string, from, to model.AlertStatus, reason string, at time.Time) {
	tr := &model.Transition{
		ID:      uuid.New().String(),
		EntryID: entryID,
		From:    from,
		To:      to,
		Reason:  reason,
		At:      at,
	}
	if err := m.audit.Record(ctx, tr); err != nil {
		m.logger.Error("Failed to record audit transition",
			zap.String("entry_id", entryID),
			zap.String("to", string(to)),
			zap.Error(err))
	}
}
