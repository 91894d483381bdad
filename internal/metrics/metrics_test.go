// Vibebackup - Hierarchical Project Backup and Retention
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/vibebackup

package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// TestCounterVecs tests that labelled counters increment independently
func TestCounterVecs(t *testing.T) {
	tests := []struct {
		name   string
		vec    *prometheus.CounterVec
		labels []string
	}{
		{name: "runs success", vec: RunsTotal, labels: []string{"success"}},
		{name: "runs locked", vec: RunsTotal, labels: []string{"locked"}},
		{name: "source failed", vec: SourceBackups, labels: []string{"failed"}},
		{name: "retry build", vec: RetryAttempts, labels: []string{"build proj"}},
		{name: "consolidation monthly", vec: Consolidations, labels: []string{"Monthly", "success"}},
		{name: "sweep completed", vec: SweepOutcomes, labels: []string{"completed"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.vec.WithLabelValues(tt.labels...)
			before := testutil.ToFloat64(c)
			c.Inc()
			if got := testutil.ToFloat64(c); got != before+1 {
				t.Errorf("counter = %v, want %v", got, before+1)
			}
		})
	}
}

// TestConcurrentIncrements tests that metrics are safe for concurrent use
func TestConcurrentIncrements(t *testing.T) {
	before := testutil.ToFloat64(ArchivesDeleted)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ArchivesDeleted.Inc()
		}()
	}
	wg.Wait()

	if got := testutil.ToFloat64(ArchivesDeleted); got != before+50 {
		t.Errorf("ArchivesDeleted = %v, want %v", got, before+50)
	}
}

// TestGauges tests gauge updates
func TestGauges(t *testing.T) {
	PendingMarkers.Set(3)
	if got := testutil.ToFloat64(PendingMarkers); got != 3 {
		t.Errorf("PendingMarkers = %v, want 3", got)
	}

	LastSuccessTimestamp.Set(1736899200)
	if got := testutil.ToFloat64(LastSuccessTimestamp); got != 1736899200 {
		t.Errorf("LastSuccessTimestamp = %v, want 1736899200", got)
	}
}

// TestWriteTextfileFrom tests textfile export
func TestWriteTextfileFrom(t *testing.T) {
	t.Run("writes registered metrics", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		c := prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vibebackup_test_total",
			Help: "Test counter",
		})
		reg.MustRegister(c)
		c.Add(2)

		path := filepath.Join(t.TempDir(), "nested", "vibebackup.prom")
		if err := WriteTextfileFrom(reg, path); err != nil {
			t.Fatalf("WriteTextfileFrom() error = %v", err)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("failed to read textfile: %v", err)
		}
		if !strings.Contains(string(data), "vibebackup_test_total 2") {
			t.Errorf("textfile missing counter value:\n%s", data)
		}
	})

	t.Run("empty path", func(t *testing.T) {
		if err := WriteTextfileFrom(prometheus.NewRegistry(), ""); err == nil {
			t.Error("expected error for empty path")
		}
	})

	t.Run("default gatherer", func(t *testing.T) {
		RunsTotal.WithLabelValues("success").Inc()

		path := filepath.Join(t.TempDir(), "default.prom")
		if err := WriteTextfile(path); err != nil {
			t.Fatalf("WriteTextfile() error = %v", err)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("failed to read textfile: %v", err)
		}
		if !strings.Contains(string(data), "vibebackup_runs_total") {
			t.Error("textfile missing vibebackup_runs_total")
		}
	})
}
