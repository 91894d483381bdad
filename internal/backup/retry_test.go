// Vibebackup - Hierarchical Project Backup and Retention
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vibebackup

package backup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/juju/clock"
)

func TestRetrier_Do(t *testing.T) {
	errFlaky := errors.New("disk busy")

	tests := []struct {
		name         string
		failures     int
		failWith     error
		wantCalls    int
		wantWaits    int
		wantErr      bool
		wantRetryErr bool
	}{
		{"succeeds first time", 0, errFlaky, 1, 0, false, false},
		{"succeeds on second attempt", 1, errFlaky, 2, 1, false, false},
		{"succeeds on last attempt", 2, errFlaky, 3, 2, false, false},
		{"exhausts attempts", 5, errFlaky, 3, 2, true, true},
		{"permanent error stops immediately", 5, Permanent(errFlaky), 1, 0, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock(time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC))
			r := NewRetrier(3, 5*time.Second, clock)

			calls := 0
			err := r.Do(context.Background(), "build proj", func(context.Context) error {
				calls++
				if calls <= tt.failures {
					return tt.failWith
				}
				return nil
			})

			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
			if got := len(clock.Waits()); got != tt.wantWaits {
				t.Errorf("waits = %d, want %d", got, tt.wantWaits)
			}
			for _, d := range clock.Waits() {
				if d != 5*time.Second {
					t.Errorf("sleep = %v, want constant 5s", d)
				}
			}
			if (err != nil) != tt.wantErr {
				t.Fatalf("Do() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				return
			}
			if !errors.Is(err, errFlaky) {
				t.Errorf("error should wrap the operation error: %v", err)
			}

			var retryErr *RetryError
			if errors.As(err, &retryErr) != tt.wantRetryErr {
				t.Errorf("errors.As(RetryError) = %v, want %v", !tt.wantRetryErr, tt.wantRetryErr)
			}
			if tt.wantRetryErr {
				if retryErr.Attempts != 3 || retryErr.Label != "build proj" {
					t.Errorf("RetryError = %+v", retryErr)
				}
				if !errors.Is(err, ErrTransientIO) {
					t.Error("exhausted retries should match ErrTransientIO")
				}
			}
		})
	}
}

func TestRetrier_Canceled(t *testing.T) {
	t.Run("before the first attempt", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		calls := 0
		err := NewRetrier(3, time.Second, newFakeClock(time.Now())).Do(ctx, "move", func(context.Context) error {
			calls++
			return nil
		})

		if calls != 0 {
			t.Errorf("calls = %d, want 0", calls)
		}
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Do() error = %v, want context.Canceled", err)
		}
	})

	t.Run("between attempts", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		calls := 0
		err := NewRetrier(3, time.Second, newFakeClock(time.Now())).Do(ctx, "move", func(context.Context) error {
			calls++
			cancel()
			return errors.New("rename failed")
		})

		if calls != 1 {
			t.Errorf("calls = %d, want 1", calls)
		}
		var retryErr *RetryError
		if !errors.As(err, &retryErr) {
			t.Fatalf("Do() error = %v, want *RetryError", err)
		}
		if retryErr.Attempts != 1 {
			t.Errorf("Attempts = %d, want 1", retryErr.Attempts)
		}
	})
}

func TestNewRetrier_Defaults(t *testing.T) {
	r := NewRetrier(0, 0, nil)
	if r.MaxAttempts != 1 {
		t.Errorf("MaxAttempts = %d, want 1", r.MaxAttempts)
	}
	if r.Delay != defaultRetryDelay {
		t.Errorf("Delay = %v, want %v", r.Delay, defaultRetryDelay)
	}
	if r.Clock != clock.WallClock {
		t.Errorf("Clock = %T, want the wall clock", r.Clock)
	}
}

func TestPermanent(t *testing.T) {
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) should be nil")
	}
	err := Permanent(ErrNothingToBackup)
	if !isPermanent(err) {
		t.Error("isPermanent() = false for a Permanent error")
	}
	if !errors.Is(err, ErrNothingToBackup) {
		t.Error("Permanent should unwrap to the original error")
	}
	if isPermanent(ErrNothingToBackup) {
		t.Error("isPermanent() = true for a plain error")
	}
}
