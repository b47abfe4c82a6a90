package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/workfloor-data/activity.report/internal/pose"
)

// ErrStopped is returned by Step after Stop has been called.
var ErrStopped = errors.New("pipeline: driver stopped")

// Config carries everything the driver needs besides the Predictor.
type Config struct {
	Decoder pose.DecoderParams
	Match   pose.MatchParams
	Sampler pose.SamplerParams

	// MotionThreshold is the normalized-motion boundary between working
	// and idle. Zero or negative selects the default.
	MotionThreshold float64

	// ExpirySeconds is how long a track may go unobserved before it is
	// removed at the start of a pass.
	ExpirySeconds float64

	// Observer, when set, receives every FrameResult the driver emits.
	Observer FrameObserver
}

// DefaultConfig returns the tuned production configuration.
func DefaultConfig() Config {
	return Config{
		Decoder:         pose.DefaultDecoderParams(),
		Match:           pose.DefaultMatchParams(),
		Sampler:         pose.DefaultSamplerParams(),
		MotionThreshold: pose.DefaultMotionThreshold,
		ExpirySeconds:   pose.DefaultExpirySeconds,
	}
}

// Stats counts driver activity since construction or the last Reset.
type Stats struct {
	FramesProcessed int64
	FramesSkipped   int64
	FrameErrors     int64
	TracksCreated   int64
	TracksExpired   int64
}

// Driver owns the per-frame pipeline state: the track registry and the
// stage components around it. It is single-threaded: the host calls Step
// once per scheduling tick and never concurrently.
type Driver struct {
	predictor  Predictor
	decoder    *pose.Decoder
	registry   *pose.Registry
	associator *pose.Associator
	sampler    *pose.Sampler
	classifier *pose.MotionClassifier
	observer   FrameObserver

	expirySeconds float64

	// lastTimestamp is the most recent consumed timestamp. Repeated ticks
	// at the same timestamp are no-ops.
	lastTimestamp float64
	haveLast      bool
	stopped       bool

	stats Stats
}

// NewDriver builds a driver around the given predictor. A nil predictor
// panics: replay hosts that carry pre-encoded blocks should pass
// Passthrough, not nil.
func NewDriver(predictor Predictor, cfg Config) *Driver {
	if isNilInterface(predictor) {
		panic("pipeline: nil predictor")
	}
	expiry := cfg.ExpirySeconds
	if expiry <= 0 {
		expiry = pose.DefaultExpirySeconds
	}
	var observer FrameObserver
	if !isNilInterface(cfg.Observer) {
		observer = cfg.Observer
	}
	return &Driver{
		predictor:     predictor,
		decoder:       pose.NewDecoder(cfg.Decoder),
		registry:      pose.NewRegistry(),
		associator:    pose.NewAssociator(cfg.Match),
		sampler:       pose.NewSampler(cfg.Sampler),
		classifier:    pose.NewMotionClassifier(cfg.MotionThreshold),
		observer:      observer,
		expirySeconds: expiry,
	}
}

// Step runs one pipeline pass for the given frame and reports the result.
//
// A pass only happens for a running source at a timestamp the driver has
// not consumed yet; otherwise the result comes back with Processed false.
// When inference or decoding fails the timestamp still counts as consumed,
// the registry is left untouched, no result is emitted to the observer,
// and the error is returned for the host to log.
func (d *Driver) Step(ctx context.Context, frame Frame) (FrameResult, error) {
	result := FrameResult{Seq: frame.Seq, TimestampSec: frame.TimestampSec}
	if d.stopped {
		return result, ErrStopped
	}
	if frame.Paused || frame.Ended {
		d.stats.FramesSkipped++
		tracef("seq=%d t=%.3f skipped (paused=%v ended=%v)", frame.Seq, frame.TimestampSec, frame.Paused, frame.Ended)
		return result, nil
	}
	if d.haveLast && frame.TimestampSec == d.lastTimestamp {
		d.stats.FramesSkipped++
		tracef("seq=%d t=%.3f skipped (timestamp already processed)", frame.Seq, frame.TimestampSec)
		return result, nil
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}

	// The timestamp is consumed even if the pass fails below: a transient
	// frame failure is skipped, not retried.
	d.lastTimestamp = frame.TimestampSec
	d.haveLast = true

	block, err := d.predictor.Predict(ctx, frame.Input)
	if err != nil {
		d.stats.FrameErrors++
		diagf("seq=%d t=%.3f inference failed: %v", frame.Seq, frame.TimestampSec, err)
		return result, fmt.Errorf("inference: %w", err)
	}

	boxes, scores, err := d.decoder.Candidates(block)
	if err != nil {
		d.stats.FrameErrors++
		diagf("seq=%d t=%.3f decode failed: %v", frame.Seq, frame.TimestampSec, err)
		return result, fmt.Errorf("decode: %w", err)
	}
	keep := pose.Suppress(boxes, scores, d.decoder.Params.ScoreThreshold, d.decoder.Params.IoUThreshold)
	if max := d.decoder.Params.MaxDetections; max > 0 && len(keep) > max {
		keep = keep[:max]
	}
	detections, err := d.decoder.Decode(block, frame.Ratios, keep)
	if err != nil {
		d.stats.FrameErrors++
		diagf("seq=%d t=%.3f decode failed: %v", frame.Seq, frame.TimestampSec, err)
		return result, fmt.Errorf("decode: %w", err)
	}

	now := frame.TimestampSec
	expired := d.registry.Expire(now, d.expirySeconds)
	d.stats.TracksExpired += int64(expired)

	assignments := d.associator.Associate(d.registry, detections, now)

	// Sample the matched tracks, then advance every live track's window
	// and reclassify, so tracks that missed this frame still go stale.
	matched := make(map[int64]bool, len(assignments))
	for i, a := range assignments {
		if a.Created {
			d.stats.TracksCreated++
			continue
		}
		matched[a.TrackID] = true
		d.sampler.Record(d.registry.Tracks[a.TrackID], detections[i], now)
	}
	classified := make(map[int64]pose.ClassificationResult, d.registry.Len())
	for _, id := range d.registry.SortedIDs() {
		track := d.registry.Tracks[id]
		if !matched[id] {
			d.sampler.Evict(track, now)
		}
		classified[id] = d.classifier.ClassifyAndUpdate(track)
	}

	result.Processed = true
	result.TracksExpired = expired
	result.TracksLive = d.registry.Len()
	result.Detections = make([]TrackedDetection, len(detections))
	result.Counts.Total = len(detections)
	for i, a := range assignments {
		status := d.registry.Tracks[a.TrackID].Status
		result.Detections[i] = TrackedDetection{
			TrackID:   a.TrackID,
			Status:    status,
			Created:   a.Created,
			Motion:    classified[a.TrackID].Features.NormalizedMotion,
			Detection: detections[i],
		}
		switch status {
		case pose.StatusWorking:
			result.Counts.Working++
		default:
			result.Counts.Idle++
		}
	}
	d.stats.FramesProcessed++
	tracef("seq=%d t=%.3f detections=%d live=%d expired=%d working=%d idle=%d",
		frame.Seq, frame.TimestampSec, len(detections), result.TracksLive, expired,
		result.Counts.Working, result.Counts.Idle)

	if d.observer != nil {
		d.observer.OnFrame(result)
	}
	return result, nil
}

// Stop puts the driver in its terminal state. One final empty result is
// emitted so downstream consumers (renderers, counters) clear their
// overlays; subsequent Step calls return ErrStopped.
func (d *Driver) Stop() {
	if d.stopped {
		return
	}
	d.stopped = true
	opsf("driver stopped after %d frames (%d skipped, %d errors)",
		d.stats.FramesProcessed, d.stats.FramesSkipped, d.stats.FrameErrors)
	if d.observer != nil {
		d.observer.OnFrame(FrameResult{TimestampSec: d.lastTimestamp})
	}
}

// Stopped reports whether Stop has been called.
func (d *Driver) Stopped() bool { return d.stopped }

// Reset discards all track state and the consumed-timestamp watermark.
// Hosts that seek the video source call Reset so the pass after the seek
// starts from an empty registry instead of matching against pre-seek
// tracks. Stats are preserved.
func (d *Driver) Reset() {
	d.registry = pose.NewRegistry()
	d.haveLast = false
	d.lastTimestamp = 0
	opsf("driver reset: registry cleared")
}

// Retune rebuilds the stage components from cfg while keeping the
// registry, the consumed-timestamp watermark, and the stats. Live tracks
// are reclassified under the new thresholds on their next pass. Retune
// follows the same ownership rule as Step: only the goroutine that owns
// the driver may call it, between passes. The predictor and observer are
// structural and stay as constructed.
func (d *Driver) Retune(cfg Config) {
	expiry := cfg.ExpirySeconds
	if expiry <= 0 {
		expiry = pose.DefaultExpirySeconds
	}
	d.decoder = pose.NewDecoder(cfg.Decoder)
	d.associator = pose.NewAssociator(cfg.Match)
	d.sampler = pose.NewSampler(cfg.Sampler)
	d.classifier = pose.NewMotionClassifier(cfg.MotionThreshold)
	d.expirySeconds = expiry
	opsf("driver retuned: score=%.2f iou=%.2f motion=%.3f expiry=%.1fs",
		d.decoder.Params.ScoreThreshold, d.decoder.Params.IoUThreshold,
		d.classifier.Threshold, d.expirySeconds)
}

// Tracks returns a snapshot copy of the live tracks, ordered by ID.
func (d *Driver) Tracks() []pose.Track {
	return d.registry.Snapshot()
}

// Stats returns the driver's activity counters.
func (d *Driver) Stats() Stats { return d.stats }
