package evaluator

import (
	"fmt"

	"github.com/heyhotcake/shelfeye/internal/model"
)

// evaluateCameraHealth fires on a capture failure streak or a
// reprojection error above the rule's calibration threshold.
func (e *Evaluator) evaluateCameraHealth(rule *model.AlertRule, signal *model.CameraHealthSignal) *model.RuleTrigger {
	if streak := rule.CaptureFailureStreak(); signal.ConsecutiveFailures >= streak {
		evidence := fmt.Sprintf("%d consecutive capture failures (threshold %d)",
			signal.ConsecutiveFailures, streak)
		if signal.LastError != "" {
			evidence += ": " + signal.LastError
		}
		return &model.RuleTrigger{
			Rule:        rule,
			SubjectKind: model.SubjectCamera,
			SubjectID:   signal.CameraID,
			Message:     fmt.Sprintf("camera %s failing capture cycles", signal.CameraID),
			Evidence:    evidence,
		}
	}

	if max := rule.MaxReprojectionError(); max > 0 && signal.ReprojectionError > max {
		return &model.RuleTrigger{
			Rule:        rule,
			SubjectKind: model.SubjectCamera,
			SubjectID:   signal.CameraID,
			Message:     fmt.Sprintf("camera %s calibration degraded", signal.CameraID),
			Evidence: fmt.Sprintf("reprojection error %.2fpx exceeds %.2fpx",
				signal.ReprojectionError, max),
		}
	}

	return nil
}
