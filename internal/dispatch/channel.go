// Package dispatch fans alerts out to notification channels with
// per-channel timeouts and bounded concurrency.
package dispatch

import (
	"context"
	"errors"

	"github.com/heyhotcake/shelfeye/internal/model"
)

// Channel delivers one alert over a single transport. Send must be
// idempotent-safe: delivery is at-least-once and a retried entry may
// reach the same channel twice.
type Channel interface {
	Name() string
	Send(ctx context.Context, entry *model.AlertQueueEntry) error
}

// ErrNotConfigured is returned by a channel missing required
// credentials. The dispatcher skips the channel for every entry and
// logs it once per tick
var ErrNotConfigured = errors.New("channel not configured")

// PermanentError marks a channel failure that retries cannot fix,
// such as an invalid recipient. The queue closes the entry as
// terminal failed instead of scheduling backoff.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return "permanent: " + e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent wraps err as non-retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err carries a PermanentError anywhere in
// its chain.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}
