package recorder

import (
	"math"
	"math/rand"

	"github.com/workfloor-data/activity.report/internal/pose"
)

// Actor scripts one synthetic person: a drifting bounding box plus work
// phases during which the wrists oscillate. Times are video seconds.
type Actor struct {
	EnterSec float64
	ExitSec  float64 // zero or negative means the actor never leaves

	Start    pose.Point // box center at EnterSec
	Velocity pose.Point // drift in px/sec

	BoxW  float64
	BoxH  float64
	Score float64

	// WorkPhases lists [from, to) intervals of wrist activity.
	WorkPhases [][2]float64

	// WristAmplitudePx and WristHz shape the oscillation while working.
	WristAmplitudePx float64
	WristHz          float64
}

func (a Actor) active(t float64) bool {
	if t < a.EnterSec {
		return false
	}
	return a.ExitSec <= 0 || t < a.ExitSec
}

func (a Actor) working(t float64) bool {
	for _, p := range a.WorkPhases {
		if t >= p[0] && t < p[1] {
			return true
		}
	}
	return false
}

// DefaultScript returns a three-actor scene: a steady worker, a person who
// starts a task partway through, and a slow walker who never works.
func DefaultScript() []Actor {
	return []Actor{
		{
			EnterSec:         0,
			Start:            pose.Point{X: 320, Y: 360},
			BoxW:             120,
			BoxH:             260,
			Score:            0.88,
			WorkPhases:       [][2]float64{{0, 3600}},
			WristAmplitudePx: 34,
			WristHz:          0.8,
		},
		{
			EnterSec:         0,
			Start:            pose.Point{X: 640, Y: 380},
			BoxW:             110,
			BoxH:             240,
			Score:            0.84,
			WorkPhases:       [][2]float64{{10, 20}},
			WristAmplitudePx: 30,
			WristHz:          1.1,
		},
		{
			EnterSec: 8,
			ExitSec:  22,
			Start:    pose.Point{X: 900, Y: 400},
			Velocity: pose.Point{X: 16, Y: 0},
			BoxW:     100,
			BoxH:     220,
			Score:    0.8,
		},
	}
}

// SyntheticGenerator produces FrameRecords for a scripted scene, for
// fixtures and demos. Frames are timestamped seq/fps, so a given script
// and seed always generate the same log.
type SyntheticGenerator struct {
	Width    int
	Height   int
	FPS      float64
	Actors   []Actor
	JitterPx float64

	seq int64
	rng *rand.Rand
}

// NewSyntheticGenerator creates a generator for the given scene. A nil
// actors slice selects DefaultScript.
func NewSyntheticGenerator(width, height int, fps float64, actors []Actor) *SyntheticGenerator {
	if actors == nil {
		actors = DefaultScript()
	}
	return &SyntheticGenerator{
		Width:    width,
		Height:   height,
		FPS:      fps,
		Actors:   actors,
		JitterPx: 0.5,
		rng:      rand.New(rand.NewSource(1)),
	}
}

// NextFrame generates the next frame of the scene.
func (g *SyntheticGenerator) NextFrame() FrameRecord {
	t := float64(g.seq) / g.FPS
	rec := FrameRecord{Seq: g.seq, TimestampSec: t}

	for _, a := range g.Actors {
		if !a.active(t) {
			continue
		}
		elapsed := t - a.EnterSec
		center := pose.Point{
			X: a.Start.X + a.Velocity.X*elapsed + g.jitter(),
			Y: a.Start.Y + a.Velocity.Y*elapsed + g.jitter(),
		}
		det := pose.Detection{
			Box: pose.Box{
				X1: center.X - a.BoxW/2,
				Y1: center.Y - a.BoxH/2,
				X2: center.X + a.BoxW/2,
				Y2: center.Y + a.BoxH/2,
			},
			Score:     a.Score,
			Keypoints: g.skeleton(a, center, t),
		}
		det.Center = det.Box.Center()
		rec.Detections = append(rec.Detections, RecordFromDetection(det))
	}

	g.seq++
	return rec
}

func (g *SyntheticGenerator) jitter() float64 {
	if g.JitterPx <= 0 {
		return 0
	}
	return (g.rng.Float64()*2 - 1) * g.JitterPx
}

// skeleton lays the 17 COCO joints out proportionally inside the actor's
// box. While the actor works, both wrists trace an oscillation around
// their rest position.
func (g *SyntheticGenerator) skeleton(a Actor, center pose.Point, t float64) []pose.Keypoint {
	w := a.BoxW
	h := a.BoxH
	top := center.Y - h/2

	joints := make([]pose.Keypoint, pose.NumKeypoints)
	place := func(idx int, dx, dy float64) {
		joints[idx] = pose.Keypoint{
			X:    center.X + dx*w + g.jitter(),
			Y:    top + dy*h + g.jitter(),
			Conf: 0.88 + g.rng.Float64()*0.1,
		}
	}

	place(pose.KeypointNose, 0, 0.08)
	place(pose.KeypointLeftEye, 0.04, 0.06)
	place(pose.KeypointRightEye, -0.04, 0.06)
	place(pose.KeypointLeftEar, 0.08, 0.08)
	place(pose.KeypointRightEar, -0.08, 0.08)
	place(pose.KeypointLeftShoulder, 0.20, 0.25)
	place(pose.KeypointRightShoulder, -0.20, 0.25)
	place(pose.KeypointLeftElbow, 0.27, 0.42)
	place(pose.KeypointRightElbow, -0.27, 0.42)
	place(pose.KeypointLeftWrist, 0.30, 0.55)
	place(pose.KeypointRightWrist, -0.30, 0.55)
	place(pose.KeypointLeftHip, 0.12, 0.56)
	place(pose.KeypointRightHip, -0.12, 0.56)
	place(pose.KeypointLeftKnee, 0.13, 0.75)
	place(pose.KeypointRightKnee, -0.13, 0.75)
	place(pose.KeypointLeftAnkle, 0.14, 0.95)
	place(pose.KeypointRightAnkle, -0.14, 0.95)

	if a.working(t) {
		phase := 2 * math.Pi * a.WristHz * t
		dx := a.WristAmplitudePx * math.Sin(phase)
		dy := a.WristAmplitudePx * 0.5 * math.Cos(phase)
		joints[pose.KeypointLeftWrist].X += dx
		joints[pose.KeypointLeftWrist].Y += dy
		joints[pose.KeypointRightWrist].X -= dx
		joints[pose.KeypointRightWrist].Y += dy
	}

	return joints
}
