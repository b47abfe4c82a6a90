// Package video provides frame sources for the activity pipeline: video
// files with container timestamps and live cameras timed against a clock.
package video

import (
	"fmt"
	"sync"

	"gocv.io/x/gocv"

	"github.com/workfloor-data/activity.report/internal/timeutil"
)

// Frame is one acquired video frame. Image references a buffer owned by
// the source and is only valid until the next Read.
type Frame struct {
	Seq          int64
	TimestampSec float64
	Paused       bool
	Ended        bool
	Image        gocv.Mat
}

// Source yields frames in presentation order.
type Source interface {
	// Read returns the next frame. Paused sources return a frame with
	// Paused set and no image; exhausted sources return Ended.
	Read() (Frame, error)
	Close() error
}

// FileSource reads a video file. Timestamps come from the container, so
// replayed files report the same timeline on every run.
type FileSource struct {
	mu      sync.Mutex
	capture *gocv.VideoCapture
	mat     gocv.Mat
	seq     int64
	lastSec float64
	paused  bool
	ended   bool
}

// OpenFile opens a video file as a frame source.
func OpenFile(path string) (*FileSource, error) {
	capture, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open video %s: %w", path, err)
	}
	return &FileSource{
		capture: capture,
		mat:     gocv.NewMat(),
	}, nil
}

// Read decodes the next frame. Once the file is exhausted every further
// Read reports Ended.
func (s *FileSource) Read() (Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		return Frame{Seq: s.seq, TimestampSec: s.lastSec, Ended: true}, nil
	}
	if s.paused {
		return Frame{Seq: s.seq, TimestampSec: s.lastSec, Paused: true}, nil
	}

	if ok := s.capture.Read(&s.mat); !ok || s.mat.Empty() {
		s.ended = true
		return Frame{Seq: s.seq, TimestampSec: s.lastSec, Ended: true}, nil
	}

	s.seq++
	s.lastSec = s.capture.Get(gocv.VideoCapturePosMsec) / 1000
	return Frame{Seq: s.seq, TimestampSec: s.lastSec, Image: s.mat}, nil
}

// SetPaused pauses or resumes the source. Paused sources hold their
// position; no frames are dropped.
func (s *FileSource) SetPaused(paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = paused
}

// Paused reports whether the source is paused.
func (s *FileSource) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// Seek repositions the file to the given video timestamp. The caller owns
// resetting any downstream track state across the jump.
func (s *FileSource) Seek(sec float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sec < 0 {
		return fmt.Errorf("cannot seek to negative timestamp %f", sec)
	}
	if ok := s.capture.Set(gocv.VideoCapturePosMsec, sec*1000); !ok {
		return fmt.Errorf("seek to %fs failed", sec)
	}
	s.ended = false
	return nil
}

// FPS returns the container's frame rate, or 0 when unknown.
func (s *FileSource) FPS() float64 {
	return s.capture.Get(gocv.VideoCaptureFPS)
}

// Close releases the capture and scratch buffers.
func (s *FileSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mat.Close()
	return s.capture.Close()
}

// CameraSource reads a live capture device. Cameras carry no container
// timeline, so timestamps are seconds since the source was opened,
// measured on the injected clock.
type CameraSource struct {
	mu      sync.Mutex
	capture *gocv.VideoCapture
	mat     gocv.Mat
	clock   timeutil.Clock
	started bool
	start   int64 // ns on the clock at first frame
	seq     int64
	lastSec float64
	paused  bool
}

// OpenCamera opens a capture device as a frame source. A nil clock uses
// the real clock.
func OpenCamera(deviceID int, clock timeutil.Clock) (*CameraSource, error) {
	capture, err := gocv.VideoCaptureDevice(deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to open camera %d: %w", deviceID, err)
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &CameraSource{
		capture: capture,
		mat:     gocv.NewMat(),
		clock:   clock,
	}, nil
}

// Read grabs the next camera frame. A camera that stops delivering frames
// reports Ended.
func (s *CameraSource) Read() (Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.paused {
		return Frame{Seq: s.seq, TimestampSec: s.lastSec, Paused: true}, nil
	}

	if ok := s.capture.Read(&s.mat); !ok || s.mat.Empty() {
		return Frame{Seq: s.seq, TimestampSec: s.lastSec, Ended: true}, nil
	}

	now := s.clock.Now().UnixNano()
	if !s.started {
		s.started = true
		s.start = now
	}

	s.seq++
	s.lastSec = float64(now-s.start) / 1e9
	return Frame{Seq: s.seq, TimestampSec: s.lastSec, Image: s.mat}, nil
}

// SetPaused pauses or resumes the source. Frames arriving while paused are
// dropped by the device driver.
func (s *CameraSource) SetPaused(paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = paused
}

// Paused reports whether the source is paused.
func (s *CameraSource) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// Close releases the capture and scratch buffers.
func (s *CameraSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mat.Close()
	return s.capture.Close()
}
