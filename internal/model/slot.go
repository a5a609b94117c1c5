package model

import "github.com/heyhotcake/shelfeye/internal/calendar"

// Slot is a named physical storage location with an expected tool
// identity. Identity is immutable; policy fields are operator
// configuration and are never written by the engine.
type Slot struct {
	SlotID       string `json:"slot_id"`
	CameraID     string `json:"camera_id"`
	ExpectedTool string `json:"expected_tool,omitempty"`

	// AllowCheckout marks slots whose tool may be legitimately taken;
	// a CHECKED_OUT observation then cancels a missing-tool candidate.
	AllowCheckout bool `json:"allow_checkout"`

	// Hours overrides the station-wide business hours window for this
	// slot when set.
	Hours *calendar.Window `json:"hours,omitempty"`
}
