package video

import (
	"fmt"
	"sync"

	"gocv.io/x/gocv"
)

// SyntheticSource yields blank frames on a fixed timeline, for driving the
// live pipeline without a camera attached.
type SyntheticSource struct {
	mu        sync.Mutex
	mat       gocv.Mat
	fps       float64
	maxFrames int64
	seq       int64
	paused    bool
	closed    bool
}

// NewSyntheticSource creates a source of width x height frames at the
// given rate. maxFrames of zero means unbounded.
func NewSyntheticSource(width, height int, fps float64, maxFrames int64) (*SyntheticSource, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", width, height)
	}
	if fps <= 0 {
		return nil, fmt.Errorf("invalid frame rate %f", fps)
	}
	return &SyntheticSource{
		mat:       gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC3),
		fps:       fps,
		maxFrames: maxFrames,
	}, nil
}

// Read returns the next blank frame, timestamped seq/fps.
func (s *SyntheticSource) Read() (Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Frame{}, fmt.Errorf("source is closed")
	}
	last := float64(s.seq) / s.fps
	if s.maxFrames > 0 && s.seq >= s.maxFrames {
		return Frame{Seq: s.seq, TimestampSec: last, Ended: true}, nil
	}
	if s.paused {
		return Frame{Seq: s.seq, TimestampSec: last, Paused: true}, nil
	}

	ts := float64(s.seq) / s.fps
	s.seq++
	return Frame{Seq: s.seq, TimestampSec: ts, Image: s.mat}, nil
}

// SetPaused pauses or resumes the source.
func (s *SyntheticSource) SetPaused(paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = paused
}

// Close releases the frame buffer.
func (s *SyntheticSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		s.mat.Close()
	}
	return nil
}
