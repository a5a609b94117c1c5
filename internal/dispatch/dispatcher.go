package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/heyhotcake/shelfeye/internal/model"
)

const (
	// DefaultChannelTimeout bounds one channel call.
	DefaultChannelTimeout = 10 * time.Second

	// DefaultWorkers bounds concurrent channel calls across entries.
	DefaultWorkers = 4
)

// Outcome is the result of one channel attempt for one entry.
type Outcome struct {
	Channel  string
	Optional bool
	Err      error
}

// Result aggregates the per-channel outcomes for one entry.
type Result struct {
	Outcomes []Outcome
}

// Delivered reports whether every mandatory channel succeeded.
// Unconfigured channels do not count against delivery.
func (r Result) Delivered() bool {
	for _, o := range r.Outcomes {
		if o.Optional {
			continue
		}
		if o.Err != nil && !errors.Is(o.Err, ErrNotConfigured) {
			return false
		}
	}
	return true
}

// Permanent reports whether any mandatory channel failed permanently.
func (r Result) Permanent() bool {
	for _, o := range r.Outcomes {
		if !o.Optional && IsPermanent(o.Err) {
			return true
		}
	}
	return false
}

// FailureSummary lists the failing mandatory channels with their
// errors, for the retry audit record.
func (r Result) FailureSummary() string {
	var parts []string
	for _, o := range r.Outcomes {
		if o.Optional || o.Err == nil || errors.Is(o.Err, ErrNotConfigured) {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %v", o.Channel, o.Err))
	}
	return strings.Join(parts, "; ")
}

type registration struct {
	channel  Channel
	optional bool
}

// Dispatcher delivers queue entries over every registered channel.
// Channels for one entry run concurrently; total concurrency across
// entries is bounded by a worker semaphore.
type Dispatcher struct {
	logger  *zap.Logger
	timeout time.Duration
	sem     chan struct{}

	mu       sync.Mutex
	channels []registration

	// loggedUnconfigured tracks which channels were already reported
	// missing this tick, so a misconfigured channel produces one log
	// line per tick rather than one per entry.
	loggedUnconfigured map[string]bool
}

// NewDispatcher creates a dispatcher. timeout <= 0 and workers <= 0
// select the defaults.
func NewDispatcher(logger *zap.Logger, timeout time.Duration, workers int) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultChannelTimeout
	}
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Dispatcher{
		logger:             logger.Named("dispatch"),
		timeout:            timeout,
		sem:                make(chan struct{}, workers),
		loggedUnconfigured: make(map[string]bool),
	}
}

// Register adds a channel. Optional channels never block an entry
// from being marked sent.
func (d *Dispatcher) Register(ch Channel, optional bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.channels = append(d.channels, registration{channel: ch, optional: optional})
}

// BeginTick resets the once-per-tick log suppression.
func (d *Dispatcher) BeginTick() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.loggedUnconfigured = make(map[string]bool)
}

// Dispatch attempts delivery of one entry over all channels and
// returns the joined outcomes. A failure or timeout on one channel
// does not block the others.
func (d *Dispatcher) Dispatch(ctx context.Context, entry *model.AlertQueueEntry) Result {
	d.mu.Lock()
	channels := make([]registration, len(d.channels))
	copy(channels, d.channels)
	d.mu.Unlock()

	outcomes := make([]Outcome, len(channels))
	var wg sync.WaitGroup
	for i, reg := range channels {
		wg.Add(1)
		go func(i int, reg registration) {
			defer wg.Done()
			err := d.send(ctx, reg.channel, entry)
			outcomes[i] = Outcome{
				Channel:  reg.channel.Name(),
				Optional: reg.optional,
				Err:      err,
			}
		}(i, reg)
	}
	wg.Wait()

	for _, o := range outcomes {
		switch {
		case o.Err == nil:
		case errors.Is(o.Err, ErrNotConfigured):
			d.logUnconfiguredOnce(o.Channel)
		default:
			d.logger.Warn("Channel delivery failed",
				zap.String("entry_id", entry.ID),
				zap.String("channel", o.Channel),
				zap.Bool("optional", o.Optional),
				zap.Error(o.Err))
		}
	}
	return Result{Outcomes: outcomes}
}

// send runs one channel call under the worker semaphore and the
// per-channel timeout. A channel that ignores its context is abandoned
// at the deadline and recorded as failed rather than blocking the
// dispatch loop.
func (d *Dispatcher) send(ctx context.Context, ch Channel, entry *model.AlertQueueEntry) error {
	select {
	case d.sem <- struct{}{}:
		defer func() { <-d.sem }()
	case <-ctx.Done():
		return ctx.Err()
	}

	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- ch.Send(callCtx, entry)
	}()

	select {
	case err := <-done:
		return err
	case <-callCtx.Done():
		return fmt.Errorf("channel %s timed out after %s: %w", ch.Name(), d.timeout, callCtx.Err())
	}
}

func (d *Dispatcher) logUnconfiguredOnce(channel string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.loggedUnconfigured[channel] {
		return
	}
	d.loggedUnconfigured[channel] = true
	d.logger.Warn("Channel skipped, missing configuration",
		zap.String("channel", channel))
}
