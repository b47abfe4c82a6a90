package activitydb

import (
	"sync"
	"time"

	"github.com/workfloor-data/activity.report/internal/pose"
	"github.com/workfloor-data/activity.report/internal/pose/pipeline"
	"github.com/workfloor-data/activity.report/internal/timeutil"
)

// DefaultCountsFlushInterval is used when no flush interval is configured.
const DefaultCountsFlushInterval = 30 * time.Second

// trackAccum accumulates the lifetime stats for one track between frames.
type trackAccum struct {
	status        pose.Status
	firstSeenSec  float64
	lastSeenSec   float64
	framesMatched int64
	workingSec    float64
	idleSec       float64
	lastMotion    float64
}

// StatusRecorder is a pipeline observer that persists tracking output for one
// session: a status_transitions row whenever a track's judgement changes, a
// count_samples row on the flush cadence, and a track_summaries row per track
// when the recorder is closed.
//
// Write failures are sticky: the first error is kept and reported by Err so a
// long replay is not interrupted by one bad insert.
type StatusRecorder struct {
	db        *ActivityDB
	sessionID string
	clock     timeutil.Clock
	interval  time.Duration

	mu         sync.Mutex
	tracks     map[int64]*trackAccum
	lastCounts pose.Counts
	lastTime   float64
	frames     int64
	lastFlush  time.Time
	haveCounts bool
	closed     bool
	lastErr    error
}

// NewStatusRecorder creates a recorder for the given session. A nil clock
// uses the wall clock; a non-positive flush interval falls back to
// DefaultCountsFlushInterval.
func NewStatusRecorder(db *ActivityDB, sessionID string, flushInterval time.Duration, clock timeutil.Clock) *StatusRecorder {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if flushInterval <= 0 {
		flushInterval = DefaultCountsFlushInterval
	}
	return &StatusRecorder{
		db:        db,
		sessionID: sessionID,
		clock:     clock,
		interval:  flushInterval,
		tracks:    make(map[int64]*trackAccum),
		lastFlush: clock.Now(),
	}
}

// OnFrame records transitions and counts for one processed frame.
func (r *StatusRecorder) OnFrame(result pipeline.FrameResult) {
	if !result.Processed {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}

	r.frames++
	r.lastCounts = result.Counts
	r.lastTime = result.TimestampSec
	r.haveCounts = true

	for _, det := range result.Detections {
		acc := r.tracks[det.TrackID]
		if acc == nil {
			r.tracks[det.TrackID] = &trackAccum{
				status:        det.Status,
				firstSeenSec:  result.TimestampSec,
				lastSeenSec:   result.TimestampSec,
				framesMatched: 1,
				lastMotion:    det.Motion,
			}
			r.record(det.TrackID, det.Status, "", result.TimestampSec, det.Motion)
			continue
		}

		// time since the last sighting counts toward the status the track
		// held over that span
		dt := result.TimestampSec - acc.lastSeenSec
		if dt > 0 {
			if acc.status == pose.StatusWorking {
				acc.workingSec += dt
			} else {
				acc.idleSec += dt
			}
		}

		if det.Status != acc.status {
			r.record(det.TrackID, det.Status, string(acc.status), result.TimestampSec, det.Motion)
		}

		acc.status = det.Status
		acc.lastSeenSec = result.TimestampSec
		acc.framesMatched++
		acc.lastMotion = det.Motion
	}

	if r.clock.Now().Sub(r.lastFlush) >= r.interval {
		r.flushCountsLocked()
	}
}

func (r *StatusRecorder) record(trackID int64, status pose.Status, previous string, videoTimeSec, motion float64) {
	err := r.db.RecordStatusTransition(r.sessionID, trackID, string(status), previous, videoTimeSec, motion)
	if err != nil && r.lastErr == nil {
		r.lastErr = err
	}
}

func (r *StatusRecorder) flushCountsLocked() {
	if !r.haveCounts {
		return
	}
	err := r.db.RecordCountSample(r.sessionID, r.lastTime,
		r.lastCounts.Total, r.lastCounts.Working, r.lastCounts.Idle)
	if err != nil && r.lastErr == nil {
		r.lastErr = err
	}
	r.lastFlush = r.clock.Now()
	r.haveCounts = false
}

// Frames returns the number of processed frames observed so far.
func (r *StatusRecorder) Frames() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

// Err returns the first write error encountered, if any.
func (r *StatusRecorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

// Close flushes any pending count sample, writes the per-track summaries,
// and ends the session. Close is idempotent.
func (r *StatusRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return r.lastErr
	}
	r.closed = true

	r.flushCountsLocked()

	for id, acc := range r.tracks {
		err := r.db.RecordTrackSummary(TrackSummary{
			SessionID:     r.sessionID,
			TrackID:       id,
			FirstSeenSec:  acc.firstSeenSec,
			LastSeenSec:   acc.lastSeenSec,
			FramesMatched: acc.framesMatched,
			WorkingSec:    acc.workingSec,
			IdleSec:       acc.idleSec,
			FinalStatus:   string(acc.status),
		})
		if err != nil && r.lastErr == nil {
			r.lastErr = err
		}
	}

	if err := r.db.EndSession(r.sessionID, r.frames); err != nil && r.lastErr == nil {
		r.lastErr = err
	}

	return r.lastErr
}
