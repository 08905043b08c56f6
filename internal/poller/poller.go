// Package poller repeatedly probes a value until a predicate accepts it or a
// time budget runs out.
package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"jordanella.com/paws-farm-go/internal/logging"
)

// Clock returns the current time.
type Clock func() time.Time

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Poller probes with Probe every Interval until Until returns true or
// Duration has elapsed. Build one with New and the chained setters.
type Poller[T any] struct {
	duration  time.Duration
	interval  time.Duration
	probe     func(ctx context.Context) (T, error)
	until     func(T) bool
	onTimeout func() error
	ignore    func(error) bool
	now       Clock
	sleep     Sleeper
	logger    *logging.Logger
	name      string
}

// Result describes how a Poll finished.
type Result[T any] struct {
	Value    T
	OK       bool
	Attempts int
}

// New creates a poller around probe. Until defaults to accepting any value.
func New[T any](name string, probe func(ctx context.Context) (T, error)) *Poller[T] {
	return &Poller[T]{
		name:   name,
		probe:  probe,
		until:  func(T) bool { return true },
		ignore: func(error) bool { return false },
		now:    time.Now,
		sleep:  SleepContext,
		logger: logging.NewLogger("Poller"),
	}
}

// Timing sets the total budget and the pause between probes.
func (p *Poller[T]) Timing(duration, interval time.Duration) *Poller[T] {
	p.duration = duration
	p.interval = interval
	return p
}

// Until sets the success predicate.
func (p *Poller[T]) Until(pred func(T) bool) *Poller[T] {
	p.until = pred
	return p
}

// OnTimeout sets the action invoked once when the budget is exhausted. A
// non-nil error it returns is propagated from Poll.
func (p *Poller[T]) OnTimeout(fn func() error) *Poller[T] {
	p.onTimeout = fn
	return p
}

// Ignoring suppresses probe errors matching any of targets (errors.Is).
func (p *Poller[T]) Ignoring(targets ...error) *Poller[T] {
	return p.IgnoringFunc(func(err error) bool {
		for _, t := range targets {
			if errors.Is(err, t) {
				return true
			}
		}
		return false
	})
}

// IgnoringFunc suppresses probe errors for which match returns true.
func (p *Poller[T]) IgnoringFunc(match func(error) bool) *Poller[T] {
	p.ignore = match
	return p
}

// WithClock swaps the time source and sleeper, mostly for tests.
func (p *Poller[T]) WithClock(now Clock, sleep Sleeper) *Poller[T] {
	if now != nil {
		p.now = now
	}
	if sleep != nil {
		p.sleep = sleep
	}
	return p
}

// WithLogger replaces the logger used for suppressed errors.
func (p *Poller[T]) WithLogger(logger *logging.Logger) *Poller[T] {
	p.logger = logger
	return p
}

// Poll runs the probe loop. The probe always runs at least once. On timeout
// the timeout action runs exactly once and Poll returns a Result with OK
// false and a zero Value. A probe error that is not suppressed aborts the
// loop and is returned.
func (p *Poller[T]) Poll(ctx context.Context) (Result[T], error) {
	var res Result[T]
	deadline := p.now().Add(p.duration)

	for {
		res.Attempts++
		value, err := p.probe(ctx)
		if err != nil {
			if !p.ignore(err) {
				return Result[T]{Attempts: res.Attempts}, err
			}
			p.logger.WarnWithContext("suppressed probe error", map[string]interface{}{
				"poller":  p.name,
				"attempt": res.Attempts,
				"error":   err.Error(),
			})
		} else if p.until(value) {
			res.Value = value
			res.OK = true
			return res, nil
		}

		if p.now().Add(p.interval).After(deadline) {
			if p.onTimeout != nil {
				if err := p.onTimeout(); err != nil {
					return Result[T]{Attempts: res.Attempts}, err
				}
			}
			return Result[T]{Attempts: res.Attempts}, nil
		}

		if err := p.sleep(ctx, p.interval); err != nil {
			return Result[T]{Attempts: res.Attempts}, fmt.Errorf("poller %s interrupted: %w", p.name, err)
		}
	}
}

// SleepContext waits for d or until ctx is canceled.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
