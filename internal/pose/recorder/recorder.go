// Package recorder provides recording and replay of per-frame pose
// detections, so captured shifts can be re-driven through the pipeline
// without the camera or the model.
package recorder

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/workfloor-data/activity.report/internal/pose"
	"github.com/workfloor-data/activity.report/internal/pose/pipeline"
)

// FileExtension is the extension for activity.report pose log directories.
const FileExtension = ".poselog"

// ChunkSize is the number of frames per chunk file.
const ChunkSize = 1000

// LogHeader contains metadata about a recorded log.
type LogHeader struct {
	Version     string  `json:"version"`
	RunID       string  `json:"run_id"`
	CreatedNs   int64   `json:"created_ns"`
	CameraID    string  `json:"camera_id"`
	TotalFrames uint64  `json:"total_frames"`
	StartSec    float64 `json:"start_sec"`
	EndSec      float64 `json:"end_sec"`
	Model       struct {
		InputWidth  int `json:"input_width"`
		InputHeight int `json:"input_height"`
	} `json:"model"`
}

// DetectionRecord is the wire form of one decoded detection: display-pixel
// geometry plus the full keypoint set, enough to re-encode a prediction
// block on replay.
type DetectionRecord struct {
	Box       [4]float64   `json:"box"` // x1, y1, x2, y2
	Score     float64      `json:"score"`
	Keypoints [][3]float64 `json:"keypoints,omitempty"` // x, y, confidence
}

// FrameRecord is the wire form of one recorded frame.
type FrameRecord struct {
	Seq          int64             `json:"seq"`
	TimestampSec float64           `json:"t"`
	Detections   []DetectionRecord `json:"detections,omitempty"`
}

// RecordFromDetection converts a decoded detection to its wire form.
func RecordFromDetection(det pose.Detection) DetectionRecord {
	rec := DetectionRecord{
		Box:       [4]float64{det.Box.X1, det.Box.Y1, det.Box.X2, det.Box.Y2},
		Score:     det.Score,
		Keypoints: make([][3]float64, len(det.Keypoints)),
	}
	for i, kp := range det.Keypoints {
		rec.Keypoints[i] = [3]float64{kp.X, kp.Y, kp.Conf}
	}
	return rec
}

// Detection converts the wire form back to a decoded detection. Wrist
// presence is not stored; it is re-derived by the decoder on replay.
func (r DetectionRecord) Detection() pose.Detection {
	det := pose.Detection{
		Box:       pose.Box{X1: r.Box[0], Y1: r.Box[1], X2: r.Box[2], Y2: r.Box[3]},
		Score:     r.Score,
		Keypoints: make([]pose.Keypoint, len(r.Keypoints)),
	}
	det.Center = det.Box.Center()
	for i, kp := range r.Keypoints {
		det.Keypoints[i] = pose.Keypoint{X: kp[0], Y: kp[1], Conf: kp[2]}
	}
	return det
}

// PipelineFrame encodes the record into a driver frame. Recorded geometry
// is already in display pixels, so the frame carries identity ratios and a
// Passthrough predictor completes the path.
func (r FrameRecord) PipelineFrame(params pose.DecoderParams) pipeline.Frame {
	dets := make([]pose.Detection, len(r.Detections))
	for i, d := range r.Detections {
		dets[i] = d.Detection()
	}
	return pipeline.Frame{
		Seq:          r.Seq,
		TimestampSec: r.TimestampSec,
		Input:        pose.EncodeBlock(dets, params, pose.IdentityRatios()),
		Ratios:       pose.IdentityRatios(),
	}
}

// Recorder writes FrameRecords to a log directory.
type Recorder struct {
	basePath string
	cameraID string

	header       LogHeader
	index        []indexEntry
	currentChunk int
	chunkFile    *os.File
	chunkOffset  uint32

	frameCount uint64
	startSec   float64
	endSec     float64

	mu      sync.Mutex
	closed  bool
	lastErr error
}

// indexEntry is an entry in the seek index. Fixed-size so the index file
// round-trips through encoding/binary.
type indexEntry struct {
	FrameID      uint64
	TimestampSec float64
	ChunkID      uint32
	Offset       uint32
}

// NewRecorder creates a new Recorder that writes to the given directory.
// If path is empty, a timestamped directory is created in /tmp.
func NewRecorder(basePath, cameraID string, inputWidth, inputHeight int) (*Recorder, error) {
	if basePath == "" {
		basePath = filepath.Join(os.TempDir(), fmt.Sprintf("poselog_%s_%d", cameraID, time.Now().Unix()))
	}

	// Create directory structure
	if err := os.MkdirAll(filepath.Join(basePath, "frames"), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	r := &Recorder{
		basePath:     basePath,
		cameraID:     cameraID,
		currentChunk: -1,
		index:        make([]indexEntry, 0),
		header: LogHeader{
			Version:   "1.0",
			RunID:     "rec_" + uuid.NewString(),
			CreatedNs: time.Now().UnixNano(),
			CameraID:  cameraID,
		},
	}
	r.header.Model.InputWidth = inputWidth
	r.header.Model.InputHeight = inputHeight

	return r, nil
}

// Record writes a FrameRecord to the log.
func (r *Recorder) Record(frame FrameRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return fmt.Errorf("recorder is closed")
	}

	// Track timestamps
	if r.frameCount == 0 {
		r.startSec = frame.TimestampSec
	}
	r.endSec = frame.TimestampSec

	// Open new chunk if needed
	chunkIdx := int(r.frameCount / ChunkSize)
	if chunkIdx != r.currentChunk {
		if err := r.rotateChunk(chunkIdx); err != nil {
			return err
		}
	}

	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("failed to serialize frame: %w", err)
	}

	// Write length-prefixed frame
	lenBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(lenBuf, uint32(len(data)))
	if _, err := r.chunkFile.Write(lenBuf); err != nil {
		return fmt.Errorf("failed to write frame length: %w", err)
	}
	if _, err := r.chunkFile.Write(data); err != nil {
		return fmt.Errorf("failed to write frame data: %w", err)
	}

	// Add to index
	r.index = append(r.index, indexEntry{
		FrameID:      r.frameCount,
		TimestampSec: frame.TimestampSec,
		ChunkID:      uint32(chunkIdx),
		Offset:       r.chunkOffset,
	})

	r.chunkOffset += uint32(4 + len(data))
	r.frameCount++

	return nil
}

// OnFrame records the decoded detections behind a processed frame result,
// so the recorder can hang off the driver as an observer. Write errors are
// remembered and reported by Err.
func (r *Recorder) OnFrame(res pipeline.FrameResult) {
	if !res.Processed {
		return
	}
	rec := FrameRecord{
		Seq:          res.Seq,
		TimestampSec: res.TimestampSec,
		Detections:   make([]DetectionRecord, len(res.Detections)),
	}
	for i, td := range res.Detections {
		rec.Detections[i] = RecordFromDetection(td.Detection)
	}
	if err := r.Record(rec); err != nil {
		r.mu.Lock()
		r.lastErr = err
		r.mu.Unlock()
	}
}

// Err returns the most recent observer write failure, if any.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

// rotateChunk closes the current chunk and opens a new one.
func (r *Recorder) rotateChunk(chunkIdx int) error {
	if r.chunkFile != nil {
		if err := r.chunkFile.Close(); err != nil {
			return err
		}
	}

	chunkPath := filepath.Join(r.basePath, "frames", fmt.Sprintf("chunk_%04d.bin", chunkIdx))
	f, err := os.Create(chunkPath)
	if err != nil {
		return fmt.Errorf("failed to create chunk file: %w", err)
	}

	r.chunkFile = f
	r.currentChunk = chunkIdx
	r.chunkOffset = 0

	return nil
}

// Close finalises the log and writes the header and index.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	// Close current chunk
	if r.chunkFile != nil {
		r.chunkFile.Close()
	}

	// Write header
	r.header.TotalFrames = r.frameCount
	r.header.StartSec = r.startSec
	r.header.EndSec = r.endSec

	headerPath := filepath.Join(r.basePath, "header.json")
	headerData, err := json.MarshalIndent(r.header, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}
	if err := os.WriteFile(headerPath, headerData, 0644); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	// Write index
	indexPath := filepath.Join(r.basePath, "index.bin")
	indexFile, err := os.Create(indexPath)
	if err != nil {
		return fmt.Errorf("failed to create index file: %w", err)
	}
	defer indexFile.Close()

	for _, entry := range r.index {
		if err := binary.Write(indexFile, binary.LittleEndian, entry); err != nil {
			return err
		}
	}

	return nil
}

// Path returns the base path of the log.
func (r *Recorder) Path() string {
	return r.basePath
}

// RunID returns the unique id assigned to this recording.
func (r *Recorder) RunID() string {
	return r.header.RunID
}

// FrameCount returns the number of frames recorded.
func (r *Recorder) FrameCount() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frameCount
}
