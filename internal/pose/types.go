// Package pose turns raw pose-model predictions into tracked people with a
// working/idle behavior judgement. It covers prediction decoding, box
// deduplication, greedy track association, wrist sampling, and motion
// classification. Frame orchestration lives in the pipeline subpackage.
package pose

import "math"

// Status labels a track's current behavior judgement.
type Status string

const (
	// StatusWorking indicates sustained wrist motion over the sample window.
	StatusWorking Status = "working"
	// StatusIdle indicates insufficient evidence of motion.
	StatusIdle Status = "idle"
)

// Standard COCO keypoint indices as emitted by YOLOv8-pose models.
const (
	KeypointNose          = 0
	KeypointLeftEye       = 1
	KeypointRightEye      = 2
	KeypointLeftEar       = 3
	KeypointRightEar      = 4
	KeypointLeftShoulder  = 5
	KeypointRightShoulder = 6
	KeypointLeftElbow     = 7
	KeypointRightElbow    = 8
	KeypointLeftWrist     = 9
	KeypointRightWrist    = 10
	KeypointLeftHip       = 11
	KeypointRightHip      = 12
	KeypointLeftKnee      = 13
	KeypointRightKnee     = 14
	KeypointLeftAnkle     = 15
	KeypointRightAnkle    = 16

	// NumKeypoints is the COCO joint count per person.
	NumKeypoints = 17
)

// Point is a position in display-pixel space.
type Point struct {
	X float64
	Y float64
}

// DistanceTo returns the Euclidean distance to q.
func (p Point) DistanceTo(q Point) float64 {
	dx := p.X - q.X
	dy := p.Y - q.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// Box is an axis-aligned bounding box in display-pixel space.
// X1,Y1 is the top-left corner and X2,Y2 the bottom-right corner.
type Box struct {
	X1 float64
	Y1 float64
	X2 float64
	Y2 float64
}

// Center returns the box midpoint.
func (b Box) Center() Point {
	return Point{X: (b.X1 + b.X2) / 2, Y: (b.Y1 + b.Y2) / 2}
}

// Width returns the horizontal extent.
func (b Box) Width() float64 { return b.X2 - b.X1 }

// Height returns the vertical extent.
func (b Box) Height() float64 { return b.Y2 - b.Y1 }

// Diagonal returns the corner-to-corner length.
func (b Box) Diagonal() float64 {
	w := b.Width()
	h := b.Height()
	return math.Sqrt(w*w + h*h)
}

// Area returns the box area, zero for degenerate boxes.
func (b Box) Area() float64 {
	w := b.Width()
	h := b.Height()
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// Keypoint is one model joint in display-pixel space with its confidence.
type Keypoint struct {
	X    float64
	Y    float64
	Conf float64
}

// Detection is one decoded person for a single frame. Detections are
// created fresh by the Decoder every frame and discarded at end of frame;
// only Tracks persist.
type Detection struct {
	Box    Box
	Center Point
	Score  float64

	// Keypoints holds all joints in COCO order for rendering.
	Keypoints []Keypoint

	// LeftWrist and RightWrist are set only when the joint's confidence
	// met the keypoint threshold at decode time.
	LeftWrist  *Point
	RightWrist *Point
}

// Sample is a timestamped snapshot of a track's wrist positions. A wrist
// is nil when the joint was not confidently observed that frame.
type Sample struct {
	TimestampSec float64
	LeftWrist    *Point
	RightWrist   *Point
}

// Track is a persistent identity for one person across frames. Tracks are
// owned by the Registry: geometry and time fields are written by the
// Associator, samples by the Sampler, and status by the MotionClassifier.
type Track struct {
	// ID is unique for the lifetime of the owning Registry and never reused.
	ID int64

	// Most recent matched detection geometry.
	LastBox    Box
	LastCenter Point

	// Video timestamps, in seconds.
	FirstSeenSec  float64
	LastUpdateSec float64
	LastSampleSec float64

	// Samples is ordered by non-decreasing timestamp and bounded to the
	// retention window by the Sampler.
	Samples []Sample

	Status Status

	// ObservationCount is the number of frames this track was matched,
	// including the founding frame.
	ObservationCount int
}

// Counts is the per-frame aggregate reported to collaborators.
type Counts struct {
	Total   int
	Working int
	Idle    int
}
