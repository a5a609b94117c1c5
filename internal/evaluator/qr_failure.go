package evaluator

import (
	"fmt"

	"github.com/heyhotcake/shelfeye/internal/model"
)

// evaluateQRFailure fires when the most recent observations form an
// unbroken failure streak of the configured length. A single
// successful read resets the streak, regardless of how long ago the
// failures happened.
func (e *Evaluator) evaluateQRFailure(rule *model.AlertRule, slot *model.Slot, history []model.DetectionObservation) *model.RuleTrigger {
	needed := rule.QRFailureStreak()

	streak := 0
	for i := len(history) - 1; i >= 0; i-- {
		obs := history[i]
		if !obs.QRFailed() {
			break
		}
		streak++
		if streak >= needed {
			break
		}
	}
	if streak < needed {
		return nil
	}

	return &model.RuleTrigger{
		Rule:        rule,
		SubjectKind: model.SubjectSlot,
		SubjectID:   slot.SlotID,
		Message:     fmt.Sprintf("repeated QR read failures on slot %s", slot.SlotID),
		Evidence:    fmt.Sprintf("%d consecutive failed reads (threshold %d)", streak, needed),
	}
}
