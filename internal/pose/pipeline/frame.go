// Package pipeline runs the per-frame pose pipeline: inference, decode,
// track association, sampling, and classification, driven one timestamp at
// a time by a host scheduler.
package pipeline

import "github.com/workfloor-data/activity.report/internal/pose"

// Frame is one scheduling tick's input to the driver.
type Frame struct {
	// Seq is the acquisition sequence number, for logging only.
	Seq int64

	// TimestampSec is the video timestamp in seconds. The driver processes
	// each distinct timestamp at most once.
	TimestampSec float64

	// Paused and Ended report the video source state. Either being true
	// leaves the driver idle for this tick.
	Paused bool
	Ended  bool

	// Input is the payload handed to the Predictor: an image tensor for
	// live inference, or an already-encoded prediction block for replay
	// sources paired with a Passthrough predictor.
	Input []float32

	// Ratios map the prediction's model space to display pixels.
	Ratios pose.Ratios
}

// TrackedDetection pairs one decoded detection with its resolved track
// identity and status, in surviving-anchor order, ready for rendering.
type TrackedDetection struct {
	TrackID int64
	Status  pose.Status
	Created bool // the detection spawned a new track this frame

	// Motion is the normalized motion behind the status judgement.
	Motion float64

	Detection pose.Detection
}

// FrameResult is the driver's per-tick report. Ticks that did not process
// a frame (paused, ended, repeated timestamp) return Processed false with
// zero counts.
type FrameResult struct {
	Seq          int64
	TimestampSec float64
	Processed    bool

	Counts     pose.Counts
	Detections []TrackedDetection

	// Registry churn for this pass.
	TracksExpired int
	TracksLive    int
}
