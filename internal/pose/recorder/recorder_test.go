package recorder

import (
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/workfloor-data/activity.report/internal/pose"
	"github.com/workfloor-data/activity.report/internal/pose/pipeline"
)

func sampleDetection() pose.Detection {
	kps := make([]pose.Keypoint, pose.NumKeypoints)
	kps[pose.KeypointLeftWrist] = pose.Keypoint{X: 120, Y: 150, Conf: 0.9}
	det := pose.Detection{
		Box:       pose.Box{X1: 100, Y1: 100, X2: 200, Y2: 300},
		Score:     0.9,
		Keypoints: kps,
	}
	det.Center = det.Box.Center()
	return det
}

func TestRecorderReplayRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "shift"+FileExtension)

	rec, err := NewRecorder(dir, "cam01", 640, 640)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	if !strings.HasPrefix(rec.RunID(), "rec_") {
		t.Errorf("RunID = %q, want rec_ prefix", rec.RunID())
	}

	frames := []FrameRecord{
		{Seq: 1, TimestampSec: 0.0},
		{Seq: 2, TimestampSec: 0.5, Detections: []DetectionRecord{RecordFromDetection(sampleDetection())}},
		{Seq: 3, TimestampSec: 1.0},
	}
	for _, f := range frames {
		if err := rec.Record(f); err != nil {
			t.Fatalf("Record seq %d: %v", f.Seq, err)
		}
	}
	if rec.FrameCount() != 3 {
		t.Errorf("FrameCount = %d, want 3", rec.FrameCount())
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	rep, err := NewReplayer(dir)
	if err != nil {
		t.Fatalf("NewReplayer: %v", err)
	}
	hdr := rep.Header()
	if hdr.CameraID != "cam01" || hdr.TotalFrames != 3 {
		t.Errorf("header = %+v", hdr)
	}
	if hdr.StartSec != 0.0 || hdr.EndSec != 1.0 {
		t.Errorf("header time range = %f..%f, want 0..1", hdr.StartSec, hdr.EndSec)
	}
	if hdr.Model.InputWidth != 640 || hdr.Model.InputHeight != 640 {
		t.Errorf("header model dims = %+v", hdr.Model)
	}

	for i, want := range frames {
		got, err := rep.ReadFrame()
		if err != nil {
			t.Fatalf("ReadFrame %d: %v", i, err)
		}
		if got.Seq != want.Seq || got.TimestampSec != want.TimestampSec {
			t.Errorf("frame %d = %+v, want %+v", i, got, want)
		}
		if len(got.Detections) != len(want.Detections) {
			t.Errorf("frame %d detections = %d, want %d", i, len(got.Detections), len(want.Detections))
		}
	}
	if _, err := rep.ReadFrame(); err != io.EOF {
		t.Errorf("past-end read = %v, want io.EOF", err)
	}
}

func TestReplayerSeek(t *testing.T) {
	dir := t.TempDir()
	rec, err := NewRecorder(dir, "cam01", 640, 640)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	for i := 0; i < 5; i++ {
		if err := rec.Record(FrameRecord{Seq: int64(i), TimestampSec: float64(i) * 0.5}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	rep, err := NewReplayer(dir)
	if err != nil {
		t.Fatalf("NewReplayer: %v", err)
	}

	if err := rep.Seek(3); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	f, err := rep.ReadFrame()
	if err != nil || f.TimestampSec != 1.5 {
		t.Errorf("frame after Seek(3) = %+v err=%v, want t=1.5", f, err)
	}

	// SeekToTimestamp lands on the first frame at or after the target.
	if err := rep.SeekToTimestamp(0.6); err != nil {
		t.Fatalf("SeekToTimestamp: %v", err)
	}
	f, err = rep.ReadFrame()
	if err != nil || f.TimestampSec != 1.0 {
		t.Errorf("frame after SeekToTimestamp(0.6) = %+v err=%v, want t=1.0", f, err)
	}

	// Beyond the log clamps to the last frame.
	if err := rep.SeekToTimestamp(99); err != nil {
		t.Fatalf("SeekToTimestamp past end: %v", err)
	}
	f, err = rep.ReadFrame()
	if err != nil || f.TimestampSec != 2.0 {
		t.Errorf("frame after SeekToTimestamp(99) = %+v err=%v, want t=2.0", f, err)
	}

	if err := rep.Seek(5); err == nil {
		t.Error("Seek(5) on a 5-frame log should fail")
	}
}

func TestRecorderChunkRotation(t *testing.T) {
	dir := t.TempDir()
	rec, err := NewRecorder(dir, "cam01", 640, 640)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	const n = ChunkSize + 500
	for i := 0; i < n; i++ {
		if err := rec.Record(FrameRecord{Seq: int64(i), TimestampSec: float64(i) / 30}); err != nil {
			t.Fatalf("Record %d: %v", i, err)
		}
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	for _, chunk := range []string{"chunk_0000.bin", "chunk_0001.bin"} {
		if _, err := os.Stat(filepath.Join(dir, "frames", chunk)); err != nil {
			t.Errorf("missing %s: %v", chunk, err)
		}
	}

	rep, err := NewReplayer(dir)
	if err != nil {
		t.Fatalf("NewReplayer: %v", err)
	}

	// Read across the chunk boundary.
	if err := rep.Seek(ChunkSize - 1); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	for i := ChunkSize - 1; i < ChunkSize+1; i++ {
		f, err := rep.ReadFrame()
		if err != nil {
			t.Fatalf("ReadFrame %d: %v", i, err)
		}
		if f.Seq != int64(i) {
			t.Errorf("frame seq = %d, want %d", f.Seq, i)
		}
	}

	// Count the remainder.
	count := ChunkSize + 1
	for {
		_, err := rep.ReadFrame()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("ReadFrame: %v", err)
		}
		count++
	}
	if count != n {
		t.Errorf("replayed %d frames, want %d", count, n)
	}
}

func TestRecorderOnFrame(t *testing.T) {
	dir := t.TempDir()
	rec, err := NewRecorder(dir, "cam01", 640, 640)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}

	rec.OnFrame(pipeline.FrameResult{
		Seq:          7,
		TimestampSec: 2.5,
		Processed:    true,
		Detections: []pipeline.TrackedDetection{
			{TrackID: 1, Status: pose.StatusIdle, Detection: sampleDetection()},
		},
	})
	// Unprocessed results are not recorded.
	rec.OnFrame(pipeline.FrameResult{Seq: 8, TimestampSec: 2.5})

	if rec.FrameCount() != 1 {
		t.Errorf("FrameCount = %d, want 1", rec.FrameCount())
	}
	if err := rec.Err(); err != nil {
		t.Errorf("Err = %v", err)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	rep, err := NewReplayer(dir)
	if err != nil {
		t.Fatalf("NewReplayer: %v", err)
	}
	f, err := rep.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if f.Seq != 7 || len(f.Detections) != 1 {
		t.Errorf("recorded frame = %+v", f)
	}
}

func TestFrameRecordPipelineFrame(t *testing.T) {
	rec := FrameRecord{
		Seq:          1,
		TimestampSec: 0.5,
		Detections:   []DetectionRecord{RecordFromDetection(sampleDetection())},
	}
	params := pose.DefaultDecoderParams()
	frame := rec.PipelineFrame(params)

	if frame.Seq != 1 || frame.TimestampSec != 0.5 {
		t.Errorf("frame meta = %+v", frame)
	}
	if frame.Ratios != pose.IdentityRatios() {
		t.Errorf("frame ratios = %+v, want identity", frame.Ratios)
	}

	// The encoded block decodes back to the recorded geometry.
	dec := pose.NewDecoder(params)
	boxes, scores, err := dec.Candidates(frame.Input)
	if err != nil {
		t.Fatalf("Candidates: %v", err)
	}
	keep := pose.Suppress(boxes, scores, params.ScoreThreshold, params.IoUThreshold)
	dets, err := dec.Decode(frame.Input, frame.Ratios, keep)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(dets) != 1 {
		t.Fatalf("decoded %d detections, want 1", len(dets))
	}
	if math.Abs(dets[0].Box.X1-100) > 1e-3 || math.Abs(dets[0].Box.Y2-300) > 1e-3 {
		t.Errorf("decoded box = %+v", dets[0].Box)
	}
	if dets[0].LeftWrist == nil || math.Abs(dets[0].LeftWrist.X-120) > 1e-3 {
		t.Errorf("decoded left wrist = %+v", dets[0].LeftWrist)
	}
	if dets[0].RightWrist != nil {
		t.Errorf("right wrist should be absent, got %+v", dets[0].RightWrist)
	}
}
