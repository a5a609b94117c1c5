// Package engine drives the evaluation loop: on every tick it runs
// the rule evaluator over slots and cameras, opens and resolves alert
// episodes through the queue, and dispatches due entries.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/heyhotcake/shelfeye/internal/dispatch"
	"github.com/heyhotcake/shelfeye/internal/evaluator"
	"github.com/heyhotcake/shelfeye/internal/metrics"
	"github.com/heyhotcake/shelfeye/internal/model"
	"github.com/heyhotcake/shelfeye/internal/monitor"
	"github.com/heyhotcake/shelfeye/internal/queue"
	"github.com/heyhotcake/shelfeye/internal/storage"
)

// historyLookback pads the query horizon past the longest verification
// window so streak checks see enough of the recent past.
const historyLookback = 24 * time.Hour

// Options tunes the engine.
type Options struct {
	// TickSchedule is a cron expression, e.g. "@every 30s".
	TickSchedule string

	// ParallelSlots bounds concurrent slot evaluation within a tick.
	ParallelSlots int

	// DispatchTimeout is the soft deadline for delivering the due set;
	// entries not reached stay due for the next tick.
	DispatchTimeout time.Duration

	// SuppressOnCameraAlert skips slot rules for slots whose camera
	// has an open camera_health alert.
	SuppressOnCameraAlert bool
}

// Engine wires the evaluator, queue, tracker and dispatcher together
// behind a single Tick entry point.
type Engine struct {
	logger     *zap.Logger
	opts       Options
	eval       *evaluator.Evaluator
	queue      *queue.Manager
	dispatcher *dispatch.Dispatcher
	tracker    *monitor.CameraTracker
	rules      storage.RuleStore
	slots      storage.SlotStore
	history    storage.DetectionHistory
	cron       *cron.Cron

	// tickMu keeps ticks from overlapping when a slow tick outlives
	// the schedule interval.
	tickMu sync.Mutex
}

// cronLogger adapts zap.Logger to cron.Logger
type cronLogger struct {
	logger *zap.Logger
}

func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Info(msg)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, zap.Error(err))
}

// New creates the engine.
func New(logger *zap.Logger, opts Options, eval *evaluator.Evaluator, q *queue.Manager, d *dispatch.Dispatcher, tracker *monitor.CameraTracker, rules storage.RuleStore, slots storage.SlotStore, history storage.DetectionHistory) *Engine {
	if opts.ParallelSlots <= 0 {
		opts.ParallelSlots = 8
	}
	if opts.DispatchTimeout <= 0 {
		opts.DispatchTimeout = time.Minute
	}

	clog := &cronLogger{logger: logger.Named("cron")}
	return &Engine{
		logger:     logger.Named("engine"),
		opts:       opts,
		eval:       eval,
		queue:      q,
		dispatcher: d,
		tracker:    tracker,
		rules:      rules,
		slots:      slots,
		history:    history,
		cron:       cron.New(cron.WithChain(cron.Recover(clog))),
	}
}

// Start schedules Tick on the configured cadence.
func (e *Engine) Start(ctx context.Context) error {
	schedule := e.opts.TickSchedule
	if schedule == "" {
		schedule = "@every 30s"
	}

	_, err := e.cron.AddFunc(schedule, func() {
		if err := e.Tick(ctx, time.Now().UTC()); err != nil {
			e.logger.Error("Tick failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule tick: %w", err)
	}

	e.cron.Start()
	e.logger.Info("Engine started", zap.String("schedule", schedule))
	return nil
}

// Stop stops the tick schedule and waits for a running tick.
func (e *Engine) Stop() {
	e.logger.Info("Stopping engine")
	<-e.cron.Stop().Done()

	// Wait for an in-flight tick before returning.
	e.tickMu.Lock()
	defer e.tickMu.Unlock()
}

// Tick runs one evaluation pass at now: camera rules first, then slot
// rules in parallel, then delivery of the due set. A single slot or
// entry failing never aborts the tick.
func (e *Engine) Tick(ctx context.Context, now time.Time) error {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()

	started := time.Now()
	defer func() {
		metrics.TickDuration.Observe(time.Since(started).Seconds())
	}()

	e.dispatcher.BeginTick()

	rules, err := e.rules.ListEnabled(ctx)
	if err != nil {
		return fmt.Errorf("failed to load rules: %w", err)
	}

	suppressedCameras := e.evaluateCameras(ctx, rules, now)
	e.evaluateSlots(ctx, rules, suppressedCameras, now)
	e.dispatchDue(ctx, now)
	return nil
}

// evaluateCameras runs camera rules over the tracker snapshot and
// returns the cameras with an open health alert, for optional slot
// suppression.
func (e *Engine) evaluateCameras(ctx context.Context, rules []*model.AlertRule, now time.Time) map[string]bool {
	suppressed := make(map[string]bool)

	cameraRules := rulesOfType(rules, model.RuleTypeCameraHealth)
	ungated := ungatedCopy(cameraRules)
	for _, signal := range e.tracker.Snapshot() {
		triggers := e.eval.EvaluateCamera(signal, cameraRules, now)
		e.applyTriggers(ctx, triggers, now)

		// Same rule as slots: resolution ignores the business hours gate.
		if len(cameraRules) > 0 && len(e.eval.EvaluateCamera(signal, ungated, now)) == 0 {
			e.resolve(ctx, model.RuleTypeCameraHealth, signal.CameraID, "camera recovered", now)
		}

		if e.opts.SuppressOnCameraAlert {
			open, err := e.queue.HasOpen(ctx, model.RuleTypeCameraHealth, signal.CameraID)
			if err != nil {
				e.logger.Error("Failed to check camera alert state",
					zap.String("camera_id", signal.CameraID),
					zap.Error(err))
				continue
			}
			if open {
				suppressed[signal.CameraID] = true
			}
		}
	}
	return suppressed
}

// evaluateSlots fans the evaluator out over all slots with bounded
// parallelism. Distinct slots share no mutable state; the queue
// manager serializes its own writes.
func (e *Engine) evaluateSlots(ctx context.Context, rules []*model.AlertRule, suppressedCameras map[string]bool, now time.Time) {
	slots, err := e.slots.List(ctx)
	if err != nil {
		e.logger.Error("Failed to load slots", zap.Error(err))
		return
	}

	slotRules := append(rulesOfType(rules, model.RuleTypeToolMissing),
		rulesOfType(rules, model.RuleTypeQRFailure)...)
	if len(slotRules) == 0 {
		return
	}

	sem := make(chan struct{}, e.opts.ParallelSlots)
	var wg sync.WaitGroup
	for _, slot := range slots {
		if suppressedCameras[slot.CameraID] {
			e.logger.Debug("Skipping slot on unhealthy camera",
				zap.String("slot_id", slot.SlotID),
				zap.String("camera_id", slot.CameraID))
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(slot *model.Slot) {
			defer wg.Done()
			defer func() { <-sem }()
			e.evaluateSlot(ctx, slot, slotRules, now)
		}(slot)
	}
	wg.Wait()
}

func (e *Engine) evaluateSlot(ctx context.Context, slot *model.Slot, slotRules []*model.AlertRule, now time.Time) {
	lookback := historyLookback
	for _, rule := range slotRules {
		if rule.VerificationWindow > 0 && rule.VerificationWindow+time.Hour > lookback {
			lookback = rule.VerificationWindow + time.Hour
		}
	}

	history, err := e.history.Query(ctx, slot.SlotID, now.Add(-lookback))
	if err != nil {
		e.logger.Error("Failed to load slot history",
			zap.String("slot_id", slot.SlotID),
			zap.Error(err))
		return
	}

	triggers := e.eval.EvaluateSlot(slot, history, slotRules, now)
	e.applyTriggers(ctx, triggers, now)

	// Resolution ignores the business hours gate: an episode closes
	// only when the underlying condition stopped holding, not when the
	// clock walked out of the window.
	ungated := ungatedCopy(slotRules)
	openTypes := triggerTypes(e.eval.EvaluateSlot(slot, history, ungated, now))
	for _, ruleType := range []model.RuleType{model.RuleTypeToolMissing, model.RuleTypeQRFailure} {
		if len(rulesOfType(slotRules, ruleType)) == 0 || openTypes[ruleType] {
			continue
		}
		e.resolve(ctx, ruleType, slot.SlotID, "condition cleared", now)
	}
}

// applyTriggers submits each trigger to the queue.
func (e *Engine) applyTriggers(ctx context.Context, triggers []model.RuleTrigger, now time.Time) {
	for i := range triggers {
		trigger := &triggers[i]
		metrics.TriggersTotal.WithLabelValues(string(trigger.Rule.Type)).Inc()

		_, created, err := e.queue.Submit(ctx, trigger, now)
		if err != nil {
			e.logger.Error("Failed to submit trigger",
				zap.String("rule_id", trigger.Rule.ID),
				zap.String("subject_id", trigger.SubjectID),
				zap.Error(err))
			continue
		}
		if created {
			metrics.EpisodesOpenedTotal.WithLabelValues(
				string(trigger.Rule.Type), string(trigger.Rule.Priority)).Inc()
		}
	}
}

func (e *Engine) resolve(ctx context.Context, ruleType model.RuleType, subjectID, reason string, now time.Time) {
	suppressed, err := e.queue.Resolve(ctx, ruleType, subjectID, reason, now)
	if err != nil {
		e.logger.Error("Failed to resolve episode",
			zap.String("rule_type", string(ruleType)),
			zap.String("subject_id", subjectID),
			zap.Error(err))
		return
	}
	if suppressed {
		metrics.EpisodesClosedTotal.WithLabelValues(string(ruleType), "suppressed").Inc()
	}
}

// dispatchDue delivers the due set under the soft deadline. One stuck
// entry cannot starve the rest; once the deadline passes, remaining
// entries wait for the next tick.
func (e *Engine) dispatchDue(ctx context.Context, now time.Time) {
	due, err := e.queue.ListDue(ctx, now)
	if err != nil {
		e.logger.Error("Failed to list due entries", zap.Error(err))
		return
	}
	if len(due) == 0 {
		return
	}

	dispatchCtx, cancel := context.WithTimeout(ctx, e.opts.DispatchTimeout)
	defer cancel()

	for _, entry := range due {
		if dispatchCtx.Err() != nil {
			e.logger.Warn("Dispatch deadline reached, deferring remaining entries",
				zap.Int("remaining", len(due)))
			return
		}
		e.deliver(dispatchCtx, entry, now)
	}
}

func (e *Engine) deliver(ctx context.Context, entry *model.AlertQueueEntry, now time.Time) {
	started := time.Now()
	result := e.dispatcher.Dispatch(ctx, entry)

	for _, outcome := range result.Outcomes {
		status := "ok"
		if outcome.Err != nil {
			status = "error"
		}
		metrics.DeliveryAttemptsTotal.WithLabelValues(outcome.Channel, status).Inc()
		metrics.DeliveryDuration.WithLabelValues(outcome.Channel).Observe(time.Since(started).Seconds())
	}

	switch {
	case result.Delivered():
		if err := e.queue.MarkSent(ctx, entry.ID, now); err != nil {
			e.logger.Error("Failed to mark entry sent",
				zap.String("entry_id", entry.ID),
				zap.Error(err))
			return
		}
		metrics.EpisodesClosedTotal.WithLabelValues(string(entry.Type), "sent").Inc()

	case result.Permanent():
		if err := e.queue.MarkFailedPermanent(ctx, entry.ID, result.FailureSummary(), now); err != nil {
			e.logger.Error("Failed to mark entry permanently failed",
				zap.String("entry_id", entry.ID),
				zap.Error(err))
			return
		}
		metrics.EpisodesClosedTotal.WithLabelValues(string(entry.Type), "exhausted").Inc()

	default:
		retrying, err := e.queue.MarkFailed(ctx, entry.ID, result.FailureSummary(), now)
		if err != nil {
			e.logger.Error("Failed to mark entry failed",
				zap.String("entry_id", entry.ID),
				zap.Error(err))
			return
		}
		if !retrying {
			metrics.EpisodesClosedTotal.WithLabelValues(string(entry.Type), "exhausted").Inc()
		}
	}
}

func rulesOfType(rules []*model.AlertRule, ruleType model.RuleType) []*model.AlertRule {
	var out []*model.AlertRule
	for _, rule := range rules {
		if rule.Type == ruleType {
			out = append(out, rule)
		}
	}
	return out
}

// ungatedCopy clones rules with the business hours gate cleared, for
// resolution checks.
func ungatedCopy(rules []*model.AlertRule) []*model.AlertRule {
	out := make([]*model.AlertRule, len(rules))
	for i, rule := range rules {
		cp := *rule
		cp.BusinessHoursOnly = false
		out[i] = &cp
	}
	return out
}

func triggerTypes(triggers []model.RuleTrigger) map[model.RuleType]bool {
	types := make(map[model.RuleType]bool)
	for _, trigger := range triggers {
		types[trigger.Rule.Type] = true
	}
	return types
}
