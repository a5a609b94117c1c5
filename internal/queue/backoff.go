package queue

import "time"

// RetryStrategy defines the interface for delivery retry strategies
type RetryStrategy interface {
	// NextRetry calculates the delay before the given retry attempt
	NextRetry(attempt int) time.Duration
}

// ExponentialBackoff implements exponential backoff retry strategy
type ExponentialBackoff struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// NextRetry calculates the next retry delay using exponential backoff
func (s *ExponentialBackoff) NextRetry(attempt int) time.Duration {
	delay := float64(s.InitialDelay)
	for i := 1; i < attempt; i++ {
		delay *= s.Multiplier
	}

	if delay > float64(s.MaxDelay) {
		return s.MaxDelay
	}
	return time.Duration(delay)
}

// DefaultBackoff returns the standard delivery backoff: 1 minute base,
// doubling, capped at 30 minutes.
func DefaultBackoff() RetryStrategy {
	return &ExponentialBackoff{
		InitialDelay: time.Minute,
		MaxDelay:     30 * time.Minute,
		Multiplier:   2.0,
	}
}
