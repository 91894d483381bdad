// Vibebackup - Hierarchical Project Backup and Retention
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vibebackup

package backup

import (
	"context"
	"errors"
	"time"

	"github.com/juju/clock"
	"github.com/juju/retry"

	"github.com/tomtom215/vibebackup/internal/logging"
	"github.com/tomtom215/vibebackup/internal/metrics"
)

// defaultRetryDelay applies when a retrier is built with a non-positive delay
const defaultRetryDelay = time.Second

// Retrier runs fallible operations with a bounded number of attempts and a
// constant delay between them. It performs no cleanup of partial state; callers
// roll back their own side effects.
type Retrier struct {
	MaxAttempts int
	Delay       time.Duration
	Clock       clock.Clock
}

// NewRetrier creates a retrier, applying defaults for zero values
func NewRetrier(maxAttempts int, delay time.Duration, clk clock.Clock) *Retrier {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if delay <= 0 {
		delay = defaultRetryDelay
	}
	if clk == nil {
		clk = clock.WallClock
	}
	return &Retrier{
		MaxAttempts: maxAttempts,
		Delay:       delay,
		Clock:       clk,
	}
}

// canceled stops the retry loop when ctx is done before an attempt starts
type canceled struct{ err error }

func (c canceled) Error() string { return c.err.Error() }

// Do executes op until it succeeds, returns a Permanent error, or attempts are
// exhausted. The final failure is a *RetryError naming label and the last error.
func (r *Retrier) Do(ctx context.Context, label string, op func(ctx context.Context) error) error {
	log := logging.Ctx(ctx)

	attempts := 0
	var lastErr error
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			if err := ctx.Err(); err != nil {
				return canceled{err: err}
			}
			attempts++
			if attempts > 1 {
				metrics.RetryAttempts.WithLabelValues(label).Inc()
				log.Info().
					Str("operation", label).
					Int("attempt", attempts).
					Int("max_attempts", r.MaxAttempts).
					Msg("Retrying operation")
			}
			lastErr = op(ctx)
			return lastErr
		},
		IsFatalError: func(err error) bool {
			var c canceled
			return isPermanent(err) || errors.As(err, &c)
		},
		NotifyFunc: func(err error, attempt int) {
			log.Warn().
				Err(err).
				Str("operation", label).
				Int("attempt", attempt).
				Dur("delay", r.Delay).
				Msg("Operation attempt failed")
		},
		Attempts: r.MaxAttempts,
		Delay:    r.Delay,
		Clock:    r.Clock,
		Stop:     ctx.Done(),
	})

	switch {
	case err == nil:
		return nil
	case isPermanent(lastErr):
		return lastErr
	case attempts == 0:
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return &RetryError{Label: label, Attempts: attempts, Err: lastErr}
}
