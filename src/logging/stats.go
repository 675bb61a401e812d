// Copyright (c) 2026 Khaled Abbas
//
// This source code is licensed under the Business Source License 1.1.
//
// Change Date: 4 years after the first public release of this version.
// Change License: MIT
//
// On the Change Date, this version of the code automatically converts
// to the MIT License. Prior to that date, use is subject to the
// Additional Use Grant. See the LICENSE file for details.

package logging

import (
	"context"
	"sync"
	"time"

	"lintworker/src/model"

	"go.opentelemetry.io/otel/metric"
)

// StatusResponse for JSON output
type StatusResponse struct {
	ID             string     `json:"id"`
	StartTime      time.Time  `json:"start_time"`
	Uptime         string     `json:"uptime"`
	RunsProcessed  uint64     `json:"runs_processed"`
	RunsSuccessful uint64     `json:"runs_successful"`
	RunsFailed     uint64     `json:"runs_failed"`
	RunsSuperseded uint64     `json:"runs_superseded"`
	OffensesFound  uint64     `json:"offenses_found"`
	SinkFailures   uint64     `json:"sink_failures"`
	PendingRuns    int        `json:"pending_runs"`
	CurrentRun     *model.Run `json:"current_run,omitempty"`
}

// StatsDelta is added to the running totals by UpdateStats.
type StatsDelta struct {
	Processed    uint64
	Success      uint64
	Failed       uint64
	Superseded   uint64
	Offenses     uint64
	SinkFailures uint64
}

// WorkerStats tracks the internal state of the worker
type WorkerStats struct {
	mu             sync.RWMutex
	statusResponse StatusResponse
	pending        func() int

	processed  metric.Float64Counter
	failed     metric.Float64Counter
	succeeded  metric.Float64Counter
	superseded metric.Float64Counter
	offenses   metric.Float64Counter
	sinkFailed metric.Float64Counter
}

func NewWorkerStats(id string) *WorkerStats {
	s := &WorkerStats{
		statusResponse: StatusResponse{
			ID:        id,
			StartTime: time.Now(),
		},
	}
	s.processed, _ = InitializeFloatCounter("worker_runs_total", "Total number of analysis runs executed by the worker", "Run")
	s.failed, _ = InitializeFloatCounter("worker_runs_failed", "Number of analysis runs that failed", "Run")
	s.succeeded, _ = InitializeFloatCounter("worker_runs_succeeded", "Number of analysis runs that published diagnostics", "Run")
	s.superseded, _ = InitializeFloatCounter("worker_runs_superseded", "Number of analysis runs discarded after cancellation", "Run")
	s.offenses, _ = InitializeFloatCounter("worker_offenses_total", "Number of offenses reported by the analyzer", "Offense")
	s.sinkFailed, _ = InitializeFloatCounter("worker_sink_update_failures", "Number of failed diagnostics sink updates", "Update")
	return s
}

// SetPendingFunc installs the callback used to report the queue depth.
func (s *WorkerStats) SetPendingFunc(fn func() int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = fn
}

// UpdateStats updates the worker statistics
func (s *WorkerStats) UpdateStats(d StatsDelta) {
	s.mu.Lock()
	s.statusResponse.RunsProcessed += d.Processed
	s.statusResponse.RunsSuccessful += d.Success
	s.statusResponse.RunsFailed += d.Failed
	s.statusResponse.RunsSuperseded += d.Superseded
	s.statusResponse.OffensesFound += d.Offenses
	s.statusResponse.SinkFailures += d.SinkFailures
	s.mu.Unlock()

	ctx := context.Background()
	add := func(c metric.Float64Counter, v uint64) {
		if c != nil && v > 0 {
			c.Add(ctx, float64(v))
		}
	}
	add(s.processed, d.Processed)
	add(s.succeeded, d.Success)
	add(s.failed, d.Failed)
	add(s.superseded, d.Superseded)
	add(s.offenses, d.Offenses)
	add(s.sinkFailed, d.SinkFailures)
}

// SetCurrent records the run occupying the worker, nil when idle.
func (s *WorkerStats) SetCurrent(run *model.Run) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statusResponse.CurrentRun = run
}

// GetStats returns the current statistics as a response struct
func (s *WorkerStats) GetStats() StatusResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()

	resp := s.statusResponse
	if resp.CurrentRun != nil {
		run := *resp.CurrentRun
		resp.CurrentRun = &run
	}
	if s.pending != nil {
		resp.PendingRuns = s.pending()
	}
	resp.Uptime = time.Since(s.statusResponse.StartTime).Truncate(time.Second).String()
	return resp
}
