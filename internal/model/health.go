package model

import "time"

// CameraHealthSignal is the monitor's rolled-up view of one camera,
// fed to camera_health rules. It is rebuilt from capture reports and
// carries no history of its own.
type CameraHealthSignal struct {
	CameraID            string    `json:"camera_id"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	ReprojectionError   float64   `json:"reprojection_error"`
	LastSeen            time.Time `json:"last_seen"`
	LastError           string    `json:"last_error,omitempty"`
}
