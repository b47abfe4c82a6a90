package pose

import (
	"math"
	"testing"
)

// trackWithWristPath builds a track with a 200px-tall box and one left-wrist
// sample per entry of xs, spaced at the default sample interval.
func trackWithWristPath(xs ...float64) *Track {
	track := &Track{
		ID:      1,
		LastBox: Box{X1: 0, Y1: 0, X2: 100, Y2: 200},
		Status:  StatusIdle,
	}
	for i, x := range xs {
		track.Samples = append(track.Samples, Sample{
			TimestampSec: float64(i) * DefaultSampleIntervalSeconds,
			LeftWrist:    &Point{X: x, Y: 100},
		})
	}
	return track
}

func TestMotionClassifier_ThresholdBoundary(t *testing.T) {
	c := NewMotionClassifier(DefaultMotionThreshold)

	// 20px displacement on a 200px box is exactly the 0.1 cutoff: working.
	working := trackWithWristPath(100, 120)
	if got := c.ClassifyAndUpdate(working); got.Status != StatusWorking {
		t.Errorf("expected working at exactly threshold, got %s (motion %v)", got.Status, got.Features.NormalizedMotion)
	}

	// 19.9px falls just below: idle.
	idle := trackWithWristPath(100, 119.9)
	if got := c.ClassifyAndUpdate(idle); got.Status != StatusIdle {
		t.Errorf("expected idle just below threshold, got %s (motion %v)", got.Status, got.Features.NormalizedMotion)
	}
}

func TestMotionClassifier_InsufficientSamples(t *testing.T) {
	c := NewMotionClassifier(DefaultMotionThreshold)

	track := trackWithWristPath(100)
	track.Status = StatusWorking // stale status from an earlier window

	got := c.ClassifyAndUpdate(track)
	if got.Status != StatusIdle {
		t.Errorf("expected idle with fewer than 2 samples, got %s", got.Status)
	}
	if track.Status != StatusIdle {
		t.Errorf("expected track status written back, got %s", track.Status)
	}
}

func TestMotionClassifier_AbsentWristsExcluded(t *testing.T) {
	c := NewMotionClassifier(DefaultMotionThreshold)

	// Three samples; the middle one lost the wrist below the keypoint
	// threshold. Neither pair has both endpoints, so there is no evidence.
	track := &Track{
		LastBox: Box{X1: 0, Y1: 0, X2: 100, Y2: 200},
		Samples: []Sample{
			{TimestampSec: 0, LeftWrist: &Point{X: 100, Y: 100}},
			{TimestampSec: 0.5},
			{TimestampSec: 1.0, LeftWrist: &Point{X: 200, Y: 100}},
		},
	}

	got := c.Classify(track)
	if got.Features.PairCount != 0 {
		t.Errorf("expected no contributing pairs, got %d", got.Features.PairCount)
	}
	if got.Status != StatusIdle {
		t.Errorf("expected idle without wrist evidence, got %s", got.Status)
	}
}

func TestExtractMotion_BothWristsOnePair(t *testing.T) {
	// Both wrists moving in one pair: distances sum, the pair counts once.
	track := &Track{
		LastBox: Box{X1: 0, Y1: 0, X2: 100, Y2: 200},
		Samples: []Sample{
			{TimestampSec: 0, LeftWrist: &Point{X: 100, Y: 100}, RightWrist: &Point{X: 160, Y: 100}},
			{TimestampSec: 0.5, LeftWrist: &Point{X: 130, Y: 100}, RightWrist: &Point{X: 170, Y: 100}},
		},
	}

	features := ExtractMotion(track)
	if features.PairCount != 1 {
		t.Errorf("expected 1 contributing pair, got %d", features.PairCount)
	}
	if math.Abs(features.TotalDistance-40) > 1e-9 {
		t.Errorf("expected total distance 40, got %v", features.TotalDistance)
	}
	if math.Abs(features.NormalizedMotion-0.2) > 1e-9 {
		t.Errorf("expected normalized motion 0.2, got %v", features.NormalizedMotion)
	}
}

func TestExtractMotion_BoxHeightFloor(t *testing.T) {
	// Degenerate box: height floored to 1 so motion stays finite.
	track := &Track{
		LastBox: Box{X1: 0, Y1: 100, X2: 100, Y2: 100},
		Samples: []Sample{
			{TimestampSec: 0, LeftWrist: &Point{X: 0, Y: 0}},
			{TimestampSec: 0.5, LeftWrist: &Point{X: 3, Y: 4}},
		},
	}

	features := ExtractMotion(track)
	if features.BoxHeight != 1 {
		t.Errorf("expected floored box height 1, got %v", features.BoxHeight)
	}
	if math.Abs(features.NormalizedMotion-5) > 1e-9 {
		t.Errorf("expected normalized motion 5, got %v", features.NormalizedMotion)
	}
}

func TestMotionClassifier_ConfigurableThreshold(t *testing.T) {
	// A stricter threshold flips the same evidence to idle.
	strict := NewMotionClassifier(0.3)
	track := trackWithWristPath(100, 120)
	if got := strict.Classify(track); got.Status != StatusIdle {
		t.Errorf("expected idle under 0.3 threshold, got %s", got.Status)
	}

	loose := NewMotionClassifier(0.05)
	if got := loose.Classify(track); got.Status != StatusWorking {
		t.Errorf("expected working under 0.05 threshold, got %s", got.Status)
	}
}
