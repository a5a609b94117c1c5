// Package evaluator turns detection history and camera health signals
// into rule triggers. It is pure: history and rule sets are passed in,
// never fetched, so every predicate is unit-testable without storage.
package evaluator

import (
	"time"

	"go.uber.org/zap"

	"github.com/heyhotcake/shelfeye/internal/calendar"
	"github.com/heyhotcake/shelfeye/internal/model"
)

// Evaluator applies alert rules to slot histories and camera signals.
type Evaluator struct {
	logger *zap.Logger

	// hours is the station-wide business hours window, overridable per
	// slot. A nil window means rules gated on business hours always
	// pass the gate.
	hours *calendar.Window
}

// New creates an evaluator. hours may be nil when the station runs
// around the clock.
func New(logger *zap.Logger, hours *calendar.Window) *Evaluator {
	return &Evaluator{
		logger: logger.Named("evaluator"),
		hours:  hours,
	}
}

// EvaluateSlot runs every enabled slot-scoped rule against one slot's
// history and returns the triggers that fired. history must be ordered
// by timestamp ascending and contain only observations at or before
// now. Camera rules are skipped here; see EvaluateCamera.
func (e *Evaluator) EvaluateSlot(slot *model.Slot, history []model.DetectionObservation, rules []*model.AlertRule, now time.Time) []model.RuleTrigger {
	if slot == nil {
		return nil
	}

	var triggers []model.RuleTrigger
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		if rule.BusinessHoursOnly && !e.withinHours(slot, now) {
			continue
		}

		var trigger *model.RuleTrigger
		switch rule.Type {
		case model.RuleTypeToolMissing:
			trigger = e.evaluateToolMissing(rule, slot, history, now)
		case model.RuleTypeQRFailure:
			trigger = e.evaluateQRFailure(rule, slot, history)
		default:
			continue
		}

		if trigger != nil {
			triggers = append(triggers, *trigger)
		}
	}
	return triggers
}

// EvaluateCamera runs every enabled camera_health rule against one
// camera's rolled-up signal.
func (e *Evaluator) EvaluateCamera(signal *model.CameraHealthSignal, rules []*model.AlertRule, now time.Time) []model.RuleTrigger {
	if signal == nil {
		return nil
	}

	var triggers []model.RuleTrigger
	for _, rule := range rules {
		if !rule.Enabled || rule.Type != model.RuleTypeCameraHealth {
			continue
		}
		if rule.BusinessHoursOnly && !e.withinHours(nil, now) {
			continue
		}
		if trigger := e.evaluateCameraHealth(rule, signal); trigger != nil {
			triggers = append(triggers, *trigger)
		}
	}
	return triggers
}

// withinHours checks the business hours gate, preferring the slot's
// own window over the station default.
func (e *Evaluator) withinHours(slot *model.Slot, now time.Time) bool {
	window := e.hours
	if slot != nil && slot.Hours != nil {
		window = slot.Hours
	}
	if window == nil {
		return true
	}
	return window.Contains(now)
}
