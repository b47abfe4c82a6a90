package pipeline

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/workfloor-data/activity.report/internal/pose"
)

// personAt builds a detection for an upright person with an optional
// confidently-observed left wrist.
func personAt(cx, cy, w, h float64, leftWrist *pose.Point) pose.Detection {
	kps := make([]pose.Keypoint, pose.NumKeypoints)
	if leftWrist != nil {
		kps[pose.KeypointLeftWrist] = pose.Keypoint{X: leftWrist.X, Y: leftWrist.Y, Conf: 0.9}
	}
	return pose.Detection{
		Box:       pose.Box{X1: cx - w/2, Y1: cy - h/2, X2: cx + w/2, Y2: cy + h/2},
		Score:     0.9,
		Keypoints: kps,
	}
}

// frameWith encodes the detections into a prediction block so they travel
// the full candidate/dedup/decode path inside the driver.
func frameWith(seq int64, ts float64, dets ...pose.Detection) Frame {
	return Frame{
		Seq:          seq,
		TimestampSec: ts,
		Input:        pose.EncodeBlock(dets, pose.DefaultDecoderParams(), pose.IdentityRatios()),
		Ratios:       pose.IdentityRatios(),
	}
}

type recordingObserver struct {
	results []FrameResult
}

func (r *recordingObserver) OnFrame(res FrameResult) { r.results = append(r.results, res) }

type flakyPredictor struct {
	fail bool
}

func (p *flakyPredictor) Predict(_ context.Context, input []float32) ([]float32, error) {
	if p.fail {
		return nil, errors.New("inference timeout")
	}
	return input, nil
}

// TestDriver_EndToEnd_TwoFrames walks one person across two frames half a
// second apart: the first frame creates the track, the second matches it,
// records a wrist sample, and flips the status to working.
func TestDriver_EndToEnd_TwoFrames(t *testing.T) {
	d := NewDriver(Passthrough{}, DefaultConfig())

	// Frame A: one person, box 100x200, left wrist at (120, 150).
	resA, err := d.Step(context.Background(), frameWith(1, 10.0,
		personAt(150, 200, 100, 200, &pose.Point{X: 120, Y: 150})))
	if err != nil {
		t.Fatalf("frame A: %v", err)
	}
	if !resA.Processed {
		t.Fatal("frame A should process")
	}
	if len(resA.Detections) != 1 || !resA.Detections[0].Created {
		t.Fatalf("frame A should create one track, got %+v", resA.Detections)
	}
	if resA.Detections[0].Status != pose.StatusIdle {
		t.Errorf("new track should start idle, got %s", resA.Detections[0].Status)
	}
	if resA.Counts != (pose.Counts{Total: 1, Working: 0, Idle: 1}) {
		t.Errorf("frame A counts = %+v", resA.Counts)
	}

	// Frame B: same person two pixels over, wrist moved 25px down. With a
	// 200px-tall box the normalized motion is 0.125, above the threshold.
	resB, err := d.Step(context.Background(), frameWith(2, 10.5,
		personAt(152, 200, 100, 200, &pose.Point{X: 120, Y: 175})))
	if err != nil {
		t.Fatalf("frame B: %v", err)
	}
	if len(resB.Detections) != 1 {
		t.Fatalf("frame B should keep one detection, got %d", len(resB.Detections))
	}
	got := resB.Detections[0]
	if got.Created || got.TrackID != resA.Detections[0].TrackID {
		t.Errorf("frame B should match the existing track, got %+v", got)
	}
	if got.Status != pose.StatusWorking {
		t.Errorf("frame B status = %s, want working", got.Status)
	}
	if math.Abs(got.Motion-0.125) > 1e-9 {
		t.Errorf("frame B motion = %f, want 0.125", got.Motion)
	}
	if resB.Counts != (pose.Counts{Total: 1, Working: 1, Idle: 0}) {
		t.Errorf("frame B counts = %+v", resB.Counts)
	}
	if resB.TracksLive != 1 {
		t.Errorf("TracksLive = %d, want 1", resB.TracksLive)
	}
}

// TestDriver_CountsSplitByStatus runs two people through two frames: one
// moves a wrist, one holds still.
func TestDriver_CountsSplitByStatus(t *testing.T) {
	d := NewDriver(Passthrough{}, DefaultConfig())

	_, err := d.Step(context.Background(), frameWith(1, 0.0,
		personAt(150, 200, 100, 200, &pose.Point{X: 120, Y: 150}),
		personAt(600, 200, 100, 200, &pose.Point{X: 570, Y: 150})))
	if err != nil {
		t.Fatalf("frame A: %v", err)
	}

	res, err := d.Step(context.Background(), frameWith(2, 0.5,
		personAt(152, 200, 100, 200, &pose.Point{X: 120, Y: 175}),
		personAt(600, 200, 100, 200, &pose.Point{X: 570, Y: 150})))
	if err != nil {
		t.Fatalf("frame B: %v", err)
	}
	if res.Counts != (pose.Counts{Total: 2, Working: 1, Idle: 1}) {
		t.Errorf("counts = %+v, want 2/1/1", res.Counts)
	}
	if res.Detections[0].Status != pose.StatusWorking || res.Detections[1].Status != pose.StatusIdle {
		t.Errorf("statuses = %s/%s, want working/idle",
			res.Detections[0].Status, res.Detections[1].Status)
	}
}

// TestDriver_RepeatedTimestampIsNoOp feeds the same timestamp twice; the
// second tick must not touch the registry.
func TestDriver_RepeatedTimestampIsNoOp(t *testing.T) {
	d := NewDriver(Passthrough{}, DefaultConfig())

	if _, err := d.Step(context.Background(), frameWith(1, 4.0,
		personAt(150, 200, 100, 200, nil))); err != nil {
		t.Fatalf("first tick: %v", err)
	}
	res, err := d.Step(context.Background(), frameWith(2, 4.0,
		personAt(150, 200, 100, 200, nil)))
	if err != nil {
		t.Fatalf("second tick: %v", err)
	}
	if res.Processed {
		t.Error("repeated timestamp should not process")
	}
	tracks := d.Tracks()
	if len(tracks) != 1 || tracks[0].ObservationCount != 1 {
		t.Errorf("registry should be untouched, got %+v", tracks)
	}
	st := d.Stats()
	if st.FramesProcessed != 1 || st.FramesSkipped != 1 {
		t.Errorf("stats = %+v, want 1 processed / 1 skipped", st)
	}
}

// TestDriver_PausedAndEndedFramesSkip verifies source-state ticks leave the
// driver idle without consuming the timestamp.
func TestDriver_PausedAndEndedFramesSkip(t *testing.T) {
	d := NewDriver(Passthrough{}, DefaultConfig())

	paused := frameWith(1, 3.0, personAt(150, 200, 100, 200, nil))
	paused.Paused = true
	res, err := d.Step(context.Background(), paused)
	if err != nil || res.Processed {
		t.Fatalf("paused tick: processed=%v err=%v", res.Processed, err)
	}

	// The paused tick did not consume t=3.0, so a running tick there works.
	res, err = d.Step(context.Background(), frameWith(2, 3.0,
		personAt(150, 200, 100, 200, nil)))
	if err != nil || !res.Processed {
		t.Fatalf("running tick after pause: processed=%v err=%v", res.Processed, err)
	}

	ended := frameWith(3, 3.5)
	ended.Ended = true
	res, err = d.Step(context.Background(), ended)
	if err != nil || res.Processed {
		t.Fatalf("ended tick: processed=%v err=%v", res.Processed, err)
	}
	if len(d.Tracks()) != 1 {
		t.Errorf("tracks = %d, want 1", len(d.Tracks()))
	}
}

// TestDriver_InferenceErrorLeavesTracksUntouched covers the transient
// failure path: the frame is consumed, the error surfaces, and no track
// state changes.
func TestDriver_InferenceErrorLeavesTracksUntouched(t *testing.T) {
	p := &flakyPredictor{}
	d := NewDriver(p, DefaultConfig())

	if _, err := d.Step(context.Background(), frameWith(1, 1.0,
		personAt(150, 200, 100, 200, nil))); err != nil {
		t.Fatalf("frame 1: %v", err)
	}

	p.fail = true
	res, err := d.Step(context.Background(), frameWith(2, 1.5,
		personAt(150, 200, 100, 200, nil)))
	if err == nil {
		t.Fatal("expected inference error")
	}
	if res.Processed {
		t.Error("failed frame should not report processed")
	}
	tracks := d.Tracks()
	if len(tracks) != 1 || tracks[0].ObservationCount != 1 || tracks[0].LastUpdateSec != 1.0 {
		t.Errorf("registry mutated by failed frame: %+v", tracks)
	}

	// The failed timestamp was consumed; a retry there is a no-op.
	p.fail = false
	res, err = d.Step(context.Background(), frameWith(3, 1.5,
		personAt(150, 200, 100, 200, nil)))
	if err != nil || res.Processed {
		t.Fatalf("retry at consumed timestamp: processed=%v err=%v", res.Processed, err)
	}

	// The next timestamp matches the surviving track.
	res, err = d.Step(context.Background(), frameWith(4, 2.0,
		personAt(150, 200, 100, 200, nil)))
	if err != nil || !res.Processed {
		t.Fatalf("frame after failure: processed=%v err=%v", res.Processed, err)
	}
	if d.Tracks()[0].ObservationCount != 2 {
		t.Errorf("track should have matched after recovery, got %+v", d.Tracks()[0])
	}
	if d.Stats().FrameErrors != 1 {
		t.Errorf("FrameErrors = %d, want 1", d.Stats().FrameErrors)
	}
}

// TestDriver_EmptyFrameExpiresStaleTracks feeds a detection-free frame past
// the expiry horizon.
func TestDriver_EmptyFrameExpiresStaleTracks(t *testing.T) {
	d := NewDriver(Passthrough{}, DefaultConfig())

	if _, err := d.Step(context.Background(), frameWith(1, 0.0,
		personAt(150, 200, 100, 200, nil))); err != nil {
		t.Fatalf("frame 1: %v", err)
	}

	res, err := d.Step(context.Background(), frameWith(2, 2.5))
	if err != nil {
		t.Fatalf("empty frame: %v", err)
	}
	if !res.Processed {
		t.Fatal("empty frame should still process")
	}
	if res.TracksExpired != 1 || res.TracksLive != 0 {
		t.Errorf("expired=%d live=%d, want 1/0", res.TracksExpired, res.TracksLive)
	}
	if res.Counts != (pose.Counts{}) {
		t.Errorf("counts = %+v, want zero", res.Counts)
	}
}

// TestDriver_StopEmitsFinalEmptyResult verifies the terminal state: one
// clearing result to the observer, then ErrStopped forever.
func TestDriver_StopEmitsFinalEmptyResult(t *testing.T) {
	rec := &recordingObserver{}
	cfg := DefaultConfig()
	cfg.Observer = rec
	d := NewDriver(Passthrough{}, cfg)

	if _, err := d.Step(context.Background(), frameWith(1, 1.0,
		personAt(150, 200, 100, 200, nil))); err != nil {
		t.Fatalf("frame 1: %v", err)
	}
	if len(rec.results) != 1 {
		t.Fatalf("observer results = %d, want 1", len(rec.results))
	}

	d.Stop()
	if !d.Stopped() {
		t.Error("Stopped() should report true")
	}
	if len(rec.results) != 2 {
		t.Fatalf("observer results after Stop = %d, want 2", len(rec.results))
	}
	final := rec.results[1]
	if final.Processed || len(final.Detections) != 0 || final.Counts != (pose.Counts{}) {
		t.Errorf("final result should be empty, got %+v", final)
	}

	// Stop is idempotent and Step refuses further frames.
	d.Stop()
	if len(rec.results) != 2 {
		t.Errorf("second Stop emitted again: %d results", len(rec.results))
	}
	if _, err := d.Step(context.Background(), frameWith(2, 2.0)); !errors.Is(err, ErrStopped) {
		t.Errorf("Step after Stop = %v, want ErrStopped", err)
	}
}

// TestDriver_ResetStartsFreshPass verifies a seek host can replay earlier
// timestamps against an empty registry.
func TestDriver_ResetStartsFreshPass(t *testing.T) {
	d := NewDriver(Passthrough{}, DefaultConfig())

	if _, err := d.Step(context.Background(), frameWith(1, 5.0,
		personAt(150, 200, 100, 200, nil))); err != nil {
		t.Fatalf("frame 1: %v", err)
	}

	d.Reset()
	if len(d.Tracks()) != 0 {
		t.Fatalf("Reset should clear tracks, got %d", len(d.Tracks()))
	}

	// The same timestamp processes again after Reset.
	res, err := d.Step(context.Background(), frameWith(2, 5.0,
		personAt(150, 200, 100, 200, nil)))
	if err != nil || !res.Processed {
		t.Fatalf("post-reset tick: processed=%v err=%v", res.Processed, err)
	}
	if res.TracksLive != 1 || !res.Detections[0].Created {
		t.Errorf("post-reset pass should create a fresh track, got %+v", res)
	}
}

// TestDriver_RetuneAppliesBetweenPasses raises the motion threshold mid
// stream: the same wrist travel that read working before reads idle after,
// while the track and counters survive.
func TestDriver_RetuneAppliesBetweenPasses(t *testing.T) {
	d := NewDriver(Passthrough{}, DefaultConfig())

	if _, err := d.Step(context.Background(), frameWith(1, 0.0,
		personAt(150, 200, 100, 200, &pose.Point{X: 120, Y: 150}))); err != nil {
		t.Fatalf("frame A: %v", err)
	}
	resB, err := d.Step(context.Background(), frameWith(2, 0.5,
		personAt(150, 200, 100, 200, &pose.Point{X: 120, Y: 175})))
	if err != nil {
		t.Fatalf("frame B: %v", err)
	}
	if resB.Detections[0].Status != pose.StatusWorking {
		t.Fatalf("frame B status = %s, want working", resB.Detections[0].Status)
	}

	cfg := DefaultConfig()
	cfg.MotionThreshold = 0.2
	d.Retune(cfg)

	resC, err := d.Step(context.Background(), frameWith(3, 1.0,
		personAt(150, 200, 100, 200, &pose.Point{X: 120, Y: 150})))
	if err != nil {
		t.Fatalf("frame C: %v", err)
	}
	got := resC.Detections[0]
	if got.Created || got.TrackID != resB.Detections[0].TrackID {
		t.Errorf("retune should keep the track, got %+v", got)
	}
	if got.Status != pose.StatusIdle {
		t.Errorf("frame C status = %s, want idle under the raised threshold", got.Status)
	}
	if math.Abs(got.Motion-0.125) > 1e-9 {
		t.Errorf("frame C motion = %f, want 0.125", got.Motion)
	}
	if d.Stats().FramesProcessed != 3 {
		t.Errorf("FramesProcessed = %d, want 3", d.Stats().FramesProcessed)
	}
}

func TestMultiObserver_FansOut(t *testing.T) {
	a := &recordingObserver{}
	b := &recordingObserver{}
	m := MultiObserver{a, nil, b}
	m.OnFrame(FrameResult{TimestampSec: 1.0})
	if len(a.results) != 1 || len(b.results) != 1 {
		t.Errorf("fan-out reached %d/%d observers, want 1/1", len(a.results), len(b.results))
	}
}

func TestNewDriver_NilPredictorPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for nil predictor")
		}
	}()
	NewDriver(nil, DefaultConfig())
}

func TestIsNilInterface(t *testing.T) {
	if !isNilInterface(nil) {
		t.Error("nil value should be nil")
	}
	var p *recordingObserver
	if !isNilInterface(p) {
		t.Error("typed nil pointer should be nil")
	}
	if isNilInterface(&recordingObserver{}) {
		t.Error("live pointer should not be nil")
	}
	if isNilInterface(Passthrough{}) {
		t.Error("struct value should not be nil")
	}
}
