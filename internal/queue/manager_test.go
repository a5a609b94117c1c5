package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/heyhotcake/shelfeye/internal/model"
	"github.com/heyhotcake/shelfeye/internal/storage"
)

func newTestManager(t *testing.T) (*Manager, *storage.MemoryStore) {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	store := storage.NewMemoryStore()
	manager := NewManager(logger, store.Alerts, store.Audit, DefaultBackoff(), 5)
	return manager, store
}

func missingTrigger(subjectID string) *model.RuleTrigger {
	return &model.RuleTrigger{
		Rule: &model.AlertRule{
			ID:                 "rule-missing",
			Name:               "missing tools",
			Type:               model.RuleTypeToolMissing,
			Enabled:            true,
			VerificationWindow: 5 * time.Minute,
			Priority:           model.PriorityHigh,
			Conditions:         model.RuleConditions{ToolMissing: &model.ToolMissingConditions{}},
		},
		SubjectKind: model.SubjectSlot,
		SubjectID:   subjectID,
		Message:     "tool missing from slot " + subjectID,
		Evidence:    "non-present since capture cycle",
	}
}

func TestSubmit_Deduplicates(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 3, 10, 0, 0, 0, time.UTC)

	first, created, err := manager.Submit(ctx, missingTrigger("slot-A1"), now)
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, model.AlertStatusPending, first.Status)
	require.Equal(t, now, first.ScheduledAt)

	// Re-submitting the same condition on later capture cycles returns
	// the open entry untouched, never a second one.
	for i := 1; i <= 3; i++ {
		entry, created, err := manager.Submit(ctx, missingTrigger("slot-A1"), now.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
		require.False(t, created)
		require.Equal(t, first.ID, entry.ID)
	}

	// A different subject opens its own episode.
	other, created, err := manager.Submit(ctx, missingTrigger("slot-B2"), now)
	require.NoError(t, err)
	require.True(t, created)
	require.NotEqual(t, first.ID, other.ID)
}

func TestSubmit_Debounce(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 3, 10, 0, 0, 0, time.UTC)

	trigger := missingTrigger("slot-A1")
	trigger.Rule.Conditions.ToolMissing.Debounce = 2 * time.Minute

	entry, _, err := manager.Submit(ctx, trigger, now)
	require.NoError(t, err)
	require.Equal(t, now.Add(2*time.Minute), entry.ScheduledAt)

	due, err := manager.ListDue(ctx, now)
	require.NoError(t, err)
	require.Empty(t, due)

	due, err = manager.ListDue(ctx, now.Add(2*time.Minute))
	require.NoError(t, err)
	require.Len(t, due, 1)
}

func TestMarkSent(t *testing.T) {
	manager, store := newTestManager(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 3, 10, 0, 0, 0, time.UTC)

	entry, _, err := manager.Submit(ctx, missingTrigger("slot-A1"), now)
	require.NoError(t, err)

	sentAt := now.Add(time.Minute)
	require.NoError(t, manager.MarkSent(ctx, entry.ID, sentAt))

	got, err := store.Alerts.Get(ctx, entry.ID)
	require.NoError(t, err)
	require.Equal(t, model.AlertStatusSent, got.Status)
	require.NotNil(t, got.SentAt)
	require.Equal(t, sentAt, *got.SentAt)

	// Terminal entries reject further transitions.
	require.ErrorIs(t, manager.MarkSent(ctx, entry.ID, sentAt), ErrTerminalState)
	_, err = manager.MarkFailed(ctx, entry.ID, "late failure", sentAt)
	require.ErrorIs(t, err, ErrTerminalState)

	// The audit trail shows the full episode.
	trail, err := store.Audit.ListByEntry(ctx, entry.ID)
	require.NoError(t, err)
	require.Len(t, trail, 2)
	require.Equal(t, model.AlertStatusPending, trail[0].To)
	require.Equal(t, model.AlertStatusSent, trail[1].To)
}

func TestMarkFailed_BackoffProgression(t *testing.T) {
	manager, store := newTestManager(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 3, 10, 0, 0, 0, time.UTC)

	entry, _, err := manager.Submit(ctx, missingTrigger("slot-A1"), now)
	require.NoError(t, err)

	// 1m, 2m, 4m, 8m then the ceiling.
	wantDelays := []time.Duration{time.Minute, 2 * time.Minute, 4 * time.Minute, 8 * time.Minute}
	for i, want := range wantDelays {
		retrying, err := manager.MarkFailed(ctx, entry.ID, "smtp timeout", now)
		require.NoError(t, err)
		require.True(t, retrying, "attempt %d should retry", i+1)

		got, err := store.Alerts.Get(ctx, entry.ID)
		require.NoError(t, err)
		require.Equal(t, model.AlertStatusFailed, got.Status)
		require.Equal(t, i+1, got.RetryCount)
		require.Equal(t, now.Add(want), got.ScheduledAt)
	}
}

func TestMarkFailed_RetryCeiling(t *testing.T) {
	manager, store := newTestManager(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 3, 10, 0, 0, 0, time.UTC)

	entry, _, err := manager.Submit(ctx, missingTrigger("slot-A1"), now)
	require.NoError(t, err)

	for i := 1; i <= 4; i++ {
		retrying, err := manager.MarkFailed(ctx, entry.ID, "smtp timeout", now)
		require.NoError(t, err)
		require.True(t, retrying)
	}

	// The fifth failure is terminal.
	retrying, err := manager.MarkFailed(ctx, entry.ID, "smtp timeout", now)
	require.NoError(t, err)
	require.False(t, retrying)

	got, err := store.Alerts.Get(ctx, entry.ID)
	require.NoError(t, err)
	require.Equal(t, 5, got.RetryCount)
	require.False(t, got.Open(manager.MaxRetries()))

	// No sixth attempt is ever scheduled.
	due, err := manager.ListDue(ctx, now.Add(24*time.Hour))
	require.NoError(t, err)
	require.Empty(t, due)

	_, err = manager.MarkFailed(ctx, entry.ID, "smtp timeout", now)
	require.ErrorIs(t, err, ErrTerminalState)
}

func TestResolve_SuppressesUndelivered(t *testing.T) {
	manager, store := newTestManager(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 3, 10, 0, 0, 0, time.UTC)

	entry, _, err := manager.Submit(ctx, missingTrigger("slot-A1"), now)
	require.NoError(t, err)

	suppressed, err := manager.Resolve(ctx, model.RuleTypeToolMissing, "slot-A1", "slot became present", now.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, suppressed)

	got, err := store.Alerts.Get(ctx, entry.ID)
	require.NoError(t, err)
	require.Equal(t, model.AlertStatusSuppressed, got.Status)
	require.Nil(t, got.SentAt)

	// Resolving again is a no-op.
	suppressed, err = manager.Resolve(ctx, model.RuleTypeToolMissing, "slot-A1", "slot became present", now.Add(2*time.Minute))
	require.NoError(t, err)
	require.False(t, suppressed)
}

func TestResolve_SuppressesFailedRetrying(t *testing.T) {
	manager, store := newTestManager(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 3, 10, 0, 0, 0, time.UTC)

	entry, _, err := manager.Submit(ctx, missingTrigger("slot-A1"), now)
	require.NoError(t, err)
	_, err = manager.MarkFailed(ctx, entry.ID, "smtp timeout", now)
	require.NoError(t, err)

	// A failed entry still waiting on backoff is undelivered; the
	// condition resolving suppresses it too.
	suppressed, err := manager.Resolve(ctx, model.RuleTypeToolMissing, "slot-A1", "slot became present", now.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, suppressed)

	got, err := store.Alerts.Get(ctx, entry.ID)
	require.NoError(t, err)
	require.Equal(t, model.AlertStatusSuppressed, got.Status)
}

func TestResolve_LeavesSentAlone(t *testing.T) {
	manager, store := newTestManager(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 3, 10, 0, 0, 0, time.UTC)

	entry, _, err := manager.Submit(ctx, missingTrigger("slot-A1"), now)
	require.NoError(t, err)
	require.NoError(t, manager.MarkSent(ctx, entry.ID, now.Add(time.Minute)))

	// A delivered alert is history; resolution does not revoke it.
	suppressed, err := manager.Resolve(ctx, model.RuleTypeToolMissing, "slot-A1", "slot became present", now.Add(2*time.Minute))
	require.NoError(t, err)
	require.False(t, suppressed)

	got, err := store.Alerts.Get(ctx, entry.ID)
	require.NoError(t, err)
	require.Equal(t, model.AlertStatusSent, got.Status)
}

func TestSubmit_ReentryAfterClosure(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()
	now := time.Date(2026, 8, 3, 10, 0, 0, 0, time.UTC)

	first, _, err := manager.Submit(ctx, missingTrigger("slot-A1"), now)
	require.NoError(t, err)
	require.NoError(t, manager.MarkSent(ctx, first.ID, now.Add(time.Minute)))

	// A fresh false→true edge opens a new, independent entry; the old
	// one is not resurrected.
	second, created, err := manager.Submit(ctx, missingTrigger("slot-A1"), now.Add(time.Hour))
	require.NoError(t, err)
	require.True(t, created)
	require.NotEqual(t, first.ID, second.ID)
	require.Equal(t, model.AlertStatusPending, second.Status)
	require.Zero(t, second.RetryCount)
}

func TestExponentialBackoff_Cap(t *testing.T) {
	strategy := DefaultBackoff()

	require.Equal(t, time.Minute, strategy.NextRetry(1))
	require.Equal(t, 2*time.Minute, strategy.NextRetry(2))
	require.Equal(t, 16*time.Minute, strategy.NextRetry(5))
	require.Equal(t, 30*time.Minute, strategy.NextRetry(6))
	require.Equal(t, 30*time.Minute, strategy.NextRetry(20))
}
