package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/heyhotcake/shelfeye/internal/model"
)

// stores holds one set of store implementations under test. Both the
// SQLite and in-memory backends must pass the same contract.
type stores struct {
	History DetectionHistory
	Alerts  AlertStore
	Rules   RuleStore
	Slots   SlotStore
	Audit   AuditSink
}

func eachBackend(t *testing.T, fn func(t *testing.T, s stores)) {
	t.Run("sqlite", func(t *testing.T) {
		logger, _ := zap.NewDevelopment()
		dbPath := filepath.Join(t.TempDir(), "shelfeye.db")
		store, err := NewSQLiteStore(logger, dbPath)
		require.NoError(t, err)
		defer store.Close()

		fn(t, stores{
			History: store.History,
			Alerts:  store.Alerts,
			Rules:   store.Rules,
			Slots:   store.Slots,
			Audit:   store.Audit,
		})
	})

	t.Run("memory", func(t *testing.T) {
		store := NewMemoryStore()
		fn(t, stores{
			History: store.History,
			Alerts:  store.Alerts,
			Rules:   store.Rules,
			Slots:   store.Slots,
			Audit:   store.Audit,
		})
	})
}

func observation(slotID string, at time.Time, state model.SlotState) *model.DetectionObservation {
	return &model.DetectionObservation{
		SlotID:    slotID,
		CameraID:  "cam-1",
		Timestamp: at,
		State:     state,
	}
}

func TestDetectionHistory_AppendAndQuery(t *testing.T) {
	eachBackend(t, func(t *testing.T, s stores) {
		ctx := context.Background()
		base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)

		// Insert out of order. Query must return ascending by timestamp.
		require.NoError(t, s.History.Append(ctx, observation("slot-1", base.Add(2*time.Minute), model.SlotStateEmpty)))
		require.NoError(t, s.History.Append(ctx, observation("slot-1", base, model.SlotStateItemPresent)))
		require.NoError(t, s.History.Append(ctx, observation("slot-1", base.Add(time.Minute), model.SlotStateEmpty)))
		require.NoError(t, s.History.Append(ctx, observation("slot-2", base, model.SlotStateItemPresent)))

		got, err := s.History.Query(ctx, "slot-1", base)
		require.NoError(t, err)
		require.Len(t, got, 3)
		require.Equal(t, model.SlotStateItemPresent, got[0].State)
		require.Equal(t, model.SlotStateEmpty, got[1].State)
		require.True(t, got[0].Timestamp.Before(got[1].Timestamp))
		require.True(t, got[1].Timestamp.Before(got[2].Timestamp))

		// since bound is inclusive of equal timestamps and excludes older rows.
		got, err = s.History.Query(ctx, "slot-1", base.Add(time.Minute))
		require.NoError(t, err)
		require.Len(t, got, 2)

		// Unknown slot yields an empty result, not an error.
		got, err = s.History.Query(ctx, "slot-99", base)
		require.NoError(t, err)
		require.Empty(t, got)
	})
}

func TestDetectionHistory_LatestBefore(t *testing.T) {
	eachBackend(t, func(t *testing.T, s stores) {
		ctx := context.Background()
		base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)

		require.NoError(t, s.History.Append(ctx, observation("slot-1", base, model.SlotStateItemPresent)))
		require.NoError(t, s.History.Append(ctx, observation("slot-1", base.Add(5*time.Minute), model.SlotStateEmpty)))

		obs, err := s.History.LatestBefore(ctx, "slot-1", base.Add(3*time.Minute))
		require.NoError(t, err)
		require.NotNil(t, obs)
		require.Equal(t, model.SlotStateItemPresent, obs.State)

		obs, err = s.History.LatestBefore(ctx, "slot-1", base.Add(time.Hour))
		require.NoError(t, err)
		require.NotNil(t, obs)
		require.Equal(t, model.SlotStateEmpty, obs.State)

		obs, err = s.History.LatestBefore(ctx, "slot-1", base.Add(-time.Second))
		require.NoError(t, err)
		require.Nil(t, obs)
	})
}

func TestDetectionHistory_RejectsInvalid(t *testing.T) {
	eachBackend(t, func(t *testing.T, s stores) {
		ctx := context.Background()

		err := s.History.Append(ctx, &model.DetectionObservation{
			CameraID:  "cam-1",
			Timestamp: time.Now(),
			State:     model.SlotStateEmpty,
		})
		require.ErrorIs(t, err, ErrValidation)

		err = s.History.Append(ctx, observation("slot-1", time.Now(), model.SlotState("melted")))
		require.ErrorIs(t, err, ErrValidation)
	})
}

func entry(ruleType model.RuleType, subjectID string, status model.AlertStatus, createdAt time.Time) *model.AlertQueueEntry {
	return &model.AlertQueueEntry{
		ID:          uuid.New().String(),
		RuleID:      "rule-1",
		Type:        ruleType,
		SubjectKind: model.SubjectSlot,
		SubjectID:   subjectID,
		Message:     "tool missing from slot",
		Status:      status,
		Priority:    model.PriorityHigh,
		CreatedAt:   createdAt,
		ScheduledAt: createdAt,
	}
}

func TestAlertStore_FindOpen(t *testing.T) {
	eachBackend(t, func(t *testing.T, s stores) {
		ctx := context.Background()
		base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
		const maxRetries = 5

		// Nothing open yet.
		got, err := s.Alerts.FindOpen(ctx, model.RuleTypeToolMissing, "slot-1", maxRetries)
		require.NoError(t, err)
		require.Nil(t, got)

		// Pending entry is open.
		pending := entry(model.RuleTypeToolMissing, "slot-1", model.AlertStatusPending, base)
		require.NoError(t, s.Alerts.Create(ctx, pending))

		got, err = s.Alerts.FindOpen(ctx, model.RuleTypeToolMissing, "slot-1", maxRetries)
		require.NoError(t, err)
		require.NotNil(t, got)
		require.Equal(t, pending.ID, got.ID)

		// Different subject or type does not match.
		got, err = s.Alerts.FindOpen(ctx, model.RuleTypeToolMissing, "slot-2", maxRetries)
		require.NoError(t, err)
		require.Nil(t, got)
		got, err = s.Alerts.FindOpen(ctx, model.RuleTypeQRFailure, "slot-1", maxRetries)
		require.NoError(t, err)
		require.Nil(t, got)

		// Sent entries are closed.
		pending.Status = model.AlertStatusSent
		now := base.Add(time.Minute)
		pending.SentAt = &now
		require.NoError(t, s.Alerts.Update(ctx, pending))

		got, err = s.Alerts.FindOpen(ctx, model.RuleTypeToolMissing, "slot-1", maxRetries)
		require.NoError(t, err)
		require.Nil(t, got)

		// Failed with retries left is still open.
		failed := entry(model.RuleTypeToolMissing, "slot-1", model.AlertStatusFailed, base.Add(2*time.Minute))
		failed.RetryCount = maxRetries - 1
		failed.LastError = "smtp timeout"
		require.NoError(t, s.Alerts.Create(ctx, failed))

		got, err = s.Alerts.FindOpen(ctx, model.RuleTypeToolMissing, "slot-1", maxRetries)
		require.NoError(t, err)
		require.NotNil(t, got)
		require.Equal(t, failed.ID, got.ID)

		// Failed at the retry ceiling is terminal.
		failed.RetryCount = maxRetries
		require.NoError(t, s.Alerts.Update(ctx, failed))

		got, err = s.Alerts.FindOpen(ctx, model.RuleTypeToolMissing, "slot-1", maxRetries)
		require.NoError(t, err)
		require.Nil(t, got)
	})
}

func TestAlertStore_ListDue(t *testing.T) {
	eachBackend(t, func(t *testing.T, s stores) {
		ctx := context.Background()
		base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
		const maxRetries = 5

		early := entry(model.RuleTypeToolMissing, "slot-1", model.AlertStatusPending, base)
		early.ScheduledAt = base
		require.NoError(t, s.Alerts.Create(ctx, early))

		later := entry(model.RuleTypeQRFailure, "slot-2", model.AlertStatusFailed, base)
		later.RetryCount = 1
		later.ScheduledAt = base.Add(10 * time.Minute)
		require.NoError(t, s.Alerts.Create(ctx, later))

		future := entry(model.RuleTypeCameraHealth, "cam-1", model.AlertStatusPending, base)
		future.SubjectKind = model.SubjectCamera
		future.ScheduledAt = base.Add(time.Hour)
		require.NoError(t, s.Alerts.Create(ctx, future))

		suppressed := entry(model.RuleTypeToolMissing, "slot-3", model.AlertStatusSuppressed, base)
		require.NoError(t, s.Alerts.Create(ctx, suppressed))

		due, err := s.Alerts.ListDue(ctx, base.Add(15*time.Minute), maxRetries)
		require.NoError(t, err)
		require.Len(t, due, 2)
		require.Equal(t, early.ID, due[0].ID)
		require.Equal(t, later.ID, due[1].ID)
	})
}

func TestAlertStore_List(t *testing.T) {
	eachBackend(t, func(t *testing.T, s stores) {
		ctx := context.Background()
		base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)

		for i := 0; i < 3; i++ {
			e := entry(model.RuleTypeToolMissing, "slot-1", model.AlertStatusPending, base.Add(time.Duration(i)*time.Minute))
			require.NoError(t, s.Alerts.Create(ctx, e))
		}
		sent := entry(model.RuleTypeQRFailure, "slot-2", model.AlertStatusSent, base.Add(time.Hour))
		require.NoError(t, s.Alerts.Create(ctx, sent))

		// Newest first, no filters.
		all, err := s.Alerts.List(ctx, AlertFilters{}, 0, 10)
		require.NoError(t, err)
		require.Len(t, all, 4)
		require.Equal(t, sent.ID, all[0].ID)

		// Status filter.
		pending, err := s.Alerts.List(ctx, AlertFilters{Status: model.AlertStatusPending}, 0, 10)
		require.NoError(t, err)
		require.Len(t, pending, 3)

		// Subject filter combined with type.
		bySubject, err := s.Alerts.List(ctx, AlertFilters{Type: model.RuleTypeQRFailure, SubjectID: "slot-2"}, 0, 10)
		require.NoError(t, err)
		require.Len(t, bySubject, 1)

		// Pagination.
		page, err := s.Alerts.List(ctx, AlertFilters{}, 2, 10)
		require.NoError(t, err)
		require.Len(t, page, 2)
	})
}

func TestAlertStore_GetAndUpdate(t *testing.T) {
	eachBackend(t, func(t *testing.T, s stores) {
		ctx := context.Background()

		_, err := s.Alerts.Get(ctx, "missing")
		require.ErrorIs(t, err, ErrNotFound)

		err = s.Alerts.Update(ctx, entry(model.RuleTypeToolMissing, "slot-1", model.AlertStatusPending, time.Now()))
		require.ErrorIs(t, err, ErrNotFound)

		e := entry(model.RuleTypeToolMissing, "slot-1", model.AlertStatusPending, time.Now().UTC().Truncate(time.Second))
		require.NoError(t, s.Alerts.Create(ctx, e))

		e.Status = model.AlertStatusFailed
		e.RetryCount = 2
		e.LastError = "connection refused"
		require.NoError(t, s.Alerts.Update(ctx, e))

		got, err := s.Alerts.Get(ctx, e.ID)
		require.NoError(t, err)
		require.Equal(t, model.AlertStatusFailed, got.Status)
		require.Equal(t, 2, got.RetryCount)
		require.Equal(t, "connection refused", got.LastError)
	})
}

func rule(id string, enabled bool) *model.AlertRule {
	window := 10 * time.Minute
	return &model.AlertRule{
		ID:                 id,
		Name:               "missing tools",
		Type:               model.RuleTypeToolMissing,
		Enabled:            enabled,
		VerificationWindow: window,
		Priority:           model.PriorityHigh,
		Conditions: model.RuleConditions{
			ToolMissing: &model.ToolMissingConditions{TreatNoQRAsMissing: true},
		},
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
}

func TestRuleStore_CRUD(t *testing.T) {
	eachBackend(t, func(t *testing.T, s stores) {
		ctx := context.Background()

		require.NoError(t, s.Rules.Upsert(ctx, rule("rule-1", true)))
		require.NoError(t, s.Rules.Upsert(ctx, rule("rule-2", false)))

		all, err := s.Rules.List(ctx)
		require.NoError(t, err)
		require.Len(t, all, 2)

		enabled, err := s.Rules.ListEnabled(ctx)
		require.NoError(t, err)
		require.Len(t, enabled, 1)
		require.Equal(t, "rule-1", enabled[0].ID)

		// Upsert replaces an existing rule.
		updated := rule("rule-2", true)
		updated.Name = "renamed"
		require.NoError(t, s.Rules.Upsert(ctx, updated))

		got, err := s.Rules.Get(ctx, "rule-2")
		require.NoError(t, err)
		require.Equal(t, "renamed", got.Name)
		require.True(t, got.Enabled)

		// Invalid rules are rejected before they touch the store.
		bad := rule("rule-3", true)
		bad.Conditions = model.RuleConditions{
			QRFailure: &model.QRFailureConditions{ConsecutiveFailures: 3},
		}
		err = s.Rules.Upsert(ctx, bad)
		require.ErrorIs(t, err, ErrValidation)

		require.NoError(t, s.Rules.Delete(ctx, "rule-1"))
		require.ErrorIs(t, s.Rules.Delete(ctx, "rule-1"), ErrNotFound)
		_, err = s.Rules.Get(ctx, "rule-1")
		require.ErrorIs(t, err, ErrNotFound)
	})
}

func TestSlotStore_CRUD(t *testing.T) {
	eachBackend(t, func(t *testing.T, s stores) {
		ctx := context.Background()

		slot := &model.Slot{
			SlotID:       "slot-1",
			CameraID:     "cam-1",
			ExpectedTool: "torque wrench",
		}
		require.NoError(t, s.Slots.Upsert(ctx, slot))
		require.NoError(t, s.Slots.Upsert(ctx, &model.Slot{SlotID: "slot-2", CameraID: "cam-1"}))

		all, err := s.Slots.List(ctx)
		require.NoError(t, err)
		require.Len(t, all, 2)

		got, err := s.Slots.Get(ctx, "slot-1")
		require.NoError(t, err)
		require.Equal(t, "torque wrench", got.ExpectedTool)

		_, err = s.Slots.Get(ctx, "slot-9")
		require.ErrorIs(t, err, ErrNotFound)
	})
}

func TestAuditSink_RecordAndList(t *testing.T) {
	eachBackend(t, func(t *testing.T, s stores) {
		ctx := context.Background()
		base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)

		entryID := uuid.New().String()
		transitions := []model.Transition{
			{ID: uuid.New().String(), EntryID: entryID, From: "", To: model.AlertStatusPending, Reason: "rule triggered", At: base},
			{ID: uuid.New().String(), EntryID: entryID, From: model.AlertStatusPending, To: model.AlertStatusFailed, Reason: "smtp timeout", At: base.Add(time.Minute)},
			{ID: uuid.New().String(), EntryID: entryID, From: model.AlertStatusFailed, To: model.AlertStatusSent, Reason: "delivered", At: base.Add(2 * time.Minute)},
		}
		for i := range transitions {
			require.NoError(t, s.Audit.Record(ctx, &transitions[i]))
		}

		got, err := s.Audit.ListByEntry(ctx, entryID)
		require.NoError(t, err)
		require.Len(t, got, 3)
		require.Equal(t, model.AlertStatusPending, got[0].To)
		require.Equal(t, model.AlertStatusSent, got[2].To)

		other, err := s.Audit.ListByEntry(ctx, "unknown")
		require.NoError(t, err)
		require.Empty(t, other)

		err = s.Audit.Record(ctx, &model.Transition{ID: uuid.New().String(), EntryID: entryID, To: "bogus", At: base})
		require.ErrorIs(t, err, ErrValidation)
	})
}
