package monitor

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// FrameStatsSnapshot represents a snapshot of recent pipeline throughput
type FrameStatsSnapshot struct {
	FramesPerSec     float64
	DetectionsPerSec float64
	SkippedCount     int64
	ErrorCount       int64
	Timestamp        time.Time
}

// FrameStats tracks pipeline throughput with thread-safe operations
type FrameStats struct {
	mu             sync.Mutex
	frameCount     int64
	detectionCount int64
	skippedCount   int64
	errorCount     int64
	lastReset      time.Time
	startTime      time.Time
	latestSnapshot *FrameStatsSnapshot
}

// NewFrameStats creates a new FrameStats instance
func NewFrameStats() *FrameStats {
	now := time.Now()
	return &FrameStats{
		lastReset: now,
		startTime: now,
	}
}

// AddFrame increments the frame count and adds its detection count
func (fs *FrameStats) AddFrame(detections int) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.frameCount++
	fs.detectionCount += int64(detections)
}

// AddSkipped increments the skipped-tick count
func (fs *FrameStats) AddSkipped() {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.skippedCount++
}

// AddError increments the failed-pass count
func (fs *FrameStats) AddError() {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.errorCount++
}

// GetAndReset returns current counters and resets them
func (fs *FrameStats) GetAndReset() (frames, detections, skipped, errs int64, duration time.Duration) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	now := time.Now()
	duration = now.Sub(fs.lastReset)
	frames = fs.frameCount
	detections = fs.detectionCount
	skipped = fs.skippedCount
	errs = fs.errorCount

	fs.frameCount = 0
	fs.detectionCount = 0
	fs.skippedCount = 0
	fs.errorCount = 0
	fs.lastReset = now

	return
}

// LogStats logs formatted throughput and stores a snapshot for the web
// interface
func (fs *FrameStats) LogStats() {
	frames, detections, skipped, errs, duration := fs.GetAndReset()
	if frames == 0 && skipped == 0 && errs == 0 {
		return
	}

	framesPerSec := float64(frames) / duration.Seconds()
	detectionsPerSec := float64(detections) / duration.Seconds()

	// Store snapshot for web interface
	fs.mu.Lock()
	fs.latestSnapshot = &FrameStatsSnapshot{
		FramesPerSec:     framesPerSec,
		DetectionsPerSec: detectionsPerSec,
		SkippedCount:     skipped,
		ErrorCount:       errs,
		Timestamp:        time.Now(),
	}
	fs.mu.Unlock()

	logMsg := fmt.Sprintf("Pipeline stats (/sec): %.1f frames, %.1f detections",
		framesPerSec, detectionsPerSec)
	if skipped > 0 {
		logMsg += fmt.Sprintf(", %d skipped", skipped)
	}
	if errs > 0 {
		logMsg += fmt.Sprintf(", %d errors", errs)
	}

	log.Print(logMsg)
}

// GetUptime returns the time since the stats were created
func (fs *FrameStats) GetUptime() time.Duration {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return time.Since(fs.startTime)
}

// GetLatestSnapshot returns the most recent throughput snapshot for the web
// interface
func (fs *FrameStats) GetLatestSnapshot() *FrameStatsSnapshot {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.latestSnapshot == nil {
		return nil
	}
	// Return a copy to avoid race conditions
	snapshot := *fs.latestSnapshot
	return &snapshot
}
