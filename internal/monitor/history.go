package monitor

import (
	"sync"

	"github.com/workfloor-data/activity.report/internal/pose"
	"github.com/workfloor-data/activity.report/internal/pose/pipeline"
)

// DefaultHistoryCapacity bounds the per-series point count. At two passes
// per second that covers half an hour of footage.
const DefaultHistoryCapacity = 3600

// maxMotionTracks bounds how many per-track motion series are retained.
// When a new track would exceed it, the series that went quiet first is
// evicted.
const maxMotionTracks = 64

// CountPoint is one frame's people counts on the timeline.
type CountPoint struct {
	Seq          int64
	TimestampSec float64
	Total        int
	Working      int
	Idle         int
	TracksLive   int
}

// MotionPoint is one track's normalized motion at one frame.
type MotionPoint struct {
	TimestampSec float64
	Motion       float64
	Working      bool
}

// History retains a bounded window of recent frame results for the debug
// charts and the status page. It is fed from the pipeline goroutine and
// read from request handlers.
type History struct {
	mu       sync.Mutex
	capacity int

	points []CountPoint
	motion map[int64][]MotionPoint

	latest     CountPoint
	haveLatest bool
}

func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	return &History{
		capacity: capacity,
		motion:   make(map[int64][]MotionPoint),
	}
}

// OnFrame appends the frame's counts and per-track motion to the window.
// Ticks that did not process a frame carry no data and are ignored.
func (h *History) OnFrame(result pipeline.FrameResult) {
	if !result.Processed {
		return
	}

	point := CountPoint{
		Seq:          result.Seq,
		TimestampSec: result.TimestampSec,
		Total:        result.Counts.Total,
		Working:      result.Counts.Working,
		Idle:         result.Counts.Idle,
		TracksLive:   result.TracksLive,
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.points = append(h.points, point)
	if len(h.points) > h.capacity {
		h.points = h.points[len(h.points)-h.capacity:]
	}

	for _, det := range result.Detections {
		series := append(h.motion[det.TrackID], MotionPoint{
			TimestampSec: result.TimestampSec,
			Motion:       det.Motion,
			Working:      det.Status == pose.StatusWorking,
		})
		if len(series) > h.capacity {
			series = series[len(series)-h.capacity:]
		}
		h.motion[det.TrackID] = series
	}
	h.evictQuietTracks()

	h.latest = point
	h.haveLatest = true
}

// evictQuietTracks drops whole motion series until the track cap holds.
// Caller must hold mu.
func (h *History) evictQuietTracks() {
	for len(h.motion) > maxMotionTracks {
		var quietest int64
		oldest := 0.0
		first := true
		for id, series := range h.motion {
			last := series[len(series)-1].TimestampSec
			if first || last < oldest || (last == oldest && id < quietest) {
				quietest = id
				oldest = last
				first = false
			}
		}
		delete(h.motion, quietest)
	}
}

// CountPoints returns a copy of the buffered timeline, oldest first.
func (h *History) CountPoints() []CountPoint {
	h.mu.Lock()
	defer h.mu.Unlock()
	points := make([]CountPoint, len(h.points))
	copy(points, h.points)
	return points
}

// MotionSeries returns a copy of the buffered per-track motion series.
func (h *History) MotionSeries() map[int64][]MotionPoint {
	h.mu.Lock()
	defer h.mu.Unlock()
	series := make(map[int64][]MotionPoint, len(h.motion))
	for id, pts := range h.motion {
		cp := make([]MotionPoint, len(pts))
		copy(cp, pts)
		series[id] = cp
	}
	return series
}

// Latest returns the most recent timeline point.
func (h *History) Latest() (CountPoint, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.latest, h.haveLatest
}

// Len returns the number of buffered timeline points.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.points)
}
