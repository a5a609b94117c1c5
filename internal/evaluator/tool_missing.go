package evaluator

import (
	"fmt"
	"time"

	"github.com/heyhotcake/shelfeye/internal/calendar"
	"github.com/heyhotcake/shelfeye/internal/model"
)

// presence classifies one observation for the missing-tool check.
type presence int

const (
	presenceUnknown presence = iota
	presencePresent
	presenceMissing
)

// classify maps a slot state to a presence verdict. Unknown states
// (vision errors, unreadable occupancy) neither extend nor reset a
// missing span; only a confirmed present observation resets it.
func classify(slot *model.Slot, obs *model.DetectionObservation, treatNoQRAsMissing bool) presence {
	switch obs.State {
	case model.SlotStateItemPresent:
		return presencePresent
	case model.SlotStateCheckedOut:
		if slot.AllowCheckout {
			return presencePresent
		}
		return presenceMissing
	case model.SlotStateEmpty, model.SlotStateWrongItem:
		return presenceMissing
	case model.SlotStateOccupiedNoQR:
		if treatNoQRAsMissing {
			return presenceMissing
		}
		return presenceUnknown
	default:
		return presenceUnknown
	}
}

// evaluateToolMissing fires when the slot has been continuously
// non-present for at least the rule's verification window. Gaps and
// unknown observations do not reset the span; a single present
// observation does.
func (e *Evaluator) evaluateToolMissing(rule *model.AlertRule, slot *model.Slot, history []model.DetectionObservation, now time.Time) *model.RuleTrigger {
	if len(history) == 0 {
		return nil
	}

	treatNoQR := false
	if c := rule.Conditions.ToolMissing; c != nil {
		treatNoQR = c.TreatNoQRAsMissing
	}

	// Walk backwards from the most recent observation until a present
	// one resets the candidate span, tracking the oldest missing
	// observation seen on the way.
	var earliestMissing *time.Time
scan:
	for i := len(history) - 1; i >= 0; i-- {
		obs := history[i]
		switch classify(slot, &obs, treatNoQR) {
		case presencePresent:
			break scan
		case presenceMissing:
			t := obs.Timestamp
			earliestMissing = &t
		}
	}

	if earliestMissing == nil {
		return nil
	}
	if !calendar.Elapsed(*earliestMissing, now, rule.VerificationWindow) {
		return nil
	}
	missingFor := now.Sub(*earliestMissing)

	message := fmt.Sprintf("tool missing from slot %s", slot.SlotID)
	if slot.ExpectedTool != "" {
		message = fmt.Sprintf("%s missing from slot %s", slot.ExpectedTool, slot.SlotID)
	}
	return &model.RuleTrigger{
		Rule:        rule,
		SubjectKind: model.SubjectSlot,
		SubjectID:   slot.SlotID,
		Message:     message,
		Evidence: fmt.Sprintf("non-present since %s (%s, window %s)",
			earliestMissing.Format(time.RFC3339), missingFor.Round(time.Second), rule.VerificationWindow),
	}
}
