// Package monitor provides the live observability surface for the frame
// pipeline: throughput counters, a bounded frame history, debug charts,
// an HTML status page, and after-run plot generation.
package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/workfloor-data/activity.report/internal/pose/pipeline"
	"github.com/workfloor-data/activity.report/internal/timeutil"
)

// DefaultLogInterval is how often Run logs throughput.
const DefaultLogInterval = 30 * time.Second

// Monitor bundles the pipeline observability state. Its OnFrame method is
// wired as a pipeline observer; skipped ticks and failed passes never
// reach observers, so the host loop reports those through RecordSkipped
// and RecordError.
type Monitor struct {
	History *History
	Stats   *FrameStats
	clock   timeutil.Clock
}

func NewMonitor(capacity int) *Monitor {
	return &Monitor{
		History: NewHistory(capacity),
		Stats:   NewFrameStats(),
		clock:   timeutil.RealClock{},
	}
}

// OnFrame records a processed frame result.
func (m *Monitor) OnFrame(result pipeline.FrameResult) {
	if !result.Processed {
		return
	}
	m.History.OnFrame(result)
	m.Stats.AddFrame(len(result.Detections))
}

// RecordSkipped counts a tick the driver declined to process.
func (m *Monitor) RecordSkipped() { m.Stats.AddSkipped() }

// RecordError counts a failed pipeline pass.
func (m *Monitor) RecordError() { m.Stats.AddError() }

// Run logs throughput on the given interval until the context is
// cancelled. Zero or negative intervals select the default.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultLogInterval
	}
	ticker := m.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C():
			m.Stats.LogStats()
		case <-ctx.Done():
			return
		}
	}
}

// AttachRoutes registers the debug dashboard, charts, and status page.
func (m *Monitor) AttachRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/debug/activity", m.handleDashboard)
	mux.HandleFunc("/debug/activity/status", m.handleStatusPage)
	mux.HandleFunc("/debug/activity/timeline", m.handleTimelineChart)
	mux.HandleFunc("/debug/activity/motion", m.handleMotionChart)
	mux.HandleFunc("/debug/activity/throughput", m.handleThroughputChart)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
