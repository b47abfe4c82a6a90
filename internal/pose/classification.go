package pose

import "math"

// Classification thresholds (configurable for tuning).
const (
	// DefaultMotionThreshold is the normalized-motion cutoff for "working":
	// average per-sampled-interval wrist displacement of at least 10% of the
	// body-box height. Empirically tuned, not derived.
	DefaultMotionThreshold = 0.1

	// MinSamplesForMotion is the minimum sample count for a motion
	// judgement; below it the status is forced to idle.
	MinSamplesForMotion = 2

	// MinBoxHeightPx floors the normalizing box height so degenerate boxes
	// cannot inflate motion.
	MinBoxHeightPx = 1.0
)

// MotionFeatures holds the measurements behind one status judgement.
type MotionFeatures struct {
	SampleCount   int
	PairCount     int     // consecutive sample pairs that contributed a wrist
	TotalDistance float64 // summed wrist displacement over contributing pairs
	BoxHeight     float64 // normalizing box height (floored)

	// NormalizedMotion is the average displacement per contributing pair
	// divided by BoxHeight, making the threshold scale-invariant across
	// near and far subjects.
	NormalizedMotion float64
}

// ClassificationResult pairs a status with the features that produced it.
type ClassificationResult struct {
	Status   Status
	Features MotionFeatures
}

// MotionClassifier reduces a track's retained samples to a binary
// working/idle status. Status is a pure function of the samples and the
// track's current box height; it is never set from geometry alone.
type MotionClassifier struct {
	Threshold float64
}

// NewMotionClassifier creates a classifier with the given normalized-motion
// threshold. Non-positive thresholds fall back to the default.
func NewMotionClassifier(threshold float64) *MotionClassifier {
	if threshold <= 0 {
		threshold = DefaultMotionThreshold
	}
	return &MotionClassifier{Threshold: threshold}
}

// ExtractMotion computes the motion features for a track's current samples.
func ExtractMotion(track *Track) MotionFeatures {
	features := MotionFeatures{
		SampleCount: len(track.Samples),
		BoxHeight:   math.Max(MinBoxHeightPx, track.LastBox.Height()),
	}
	if features.SampleCount < MinSamplesForMotion {
		return features
	}

	for i := 1; i < len(track.Samples); i++ {
		prev := track.Samples[i-1]
		cur := track.Samples[i]
		contributed := false

		if prev.LeftWrist != nil && cur.LeftWrist != nil {
			features.TotalDistance += prev.LeftWrist.DistanceTo(*cur.LeftWrist)
			contributed = true
		}
		if prev.RightWrist != nil && cur.RightWrist != nil {
			features.TotalDistance += prev.RightWrist.DistanceTo(*cur.RightWrist)
			contributed = true
		}
		if contributed {
			features.PairCount++
		}
	}

	if features.PairCount > 0 {
		features.NormalizedMotion = (features.TotalDistance / float64(features.PairCount)) / features.BoxHeight
	}
	return features
}

// Classify determines the status for a track without mutating it.
func (c *MotionClassifier) Classify(track *Track) ClassificationResult {
	result := ClassificationResult{
		Status:   StatusIdle,
		Features: ExtractMotion(track),
	}
	if result.Features.SampleCount < MinSamplesForMotion {
		return result
	}
	if result.Features.NormalizedMotion >= c.Threshold {
		result.Status = StatusWorking
	}
	return result
}

// ClassifyAndUpdate classifies a track and writes the status back to it.
// Called for every live track on every frame after sampling.
func (c *MotionClassifier) ClassifyAndUpdate(track *Track) ClassificationResult {
	result := c.Classify(track)
	track.Status = result.Status
	return result
}
