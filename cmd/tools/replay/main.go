// Package main provides an offline analysis tool for recorded pose logs.
// It replays a log through the tracking pipeline and reports per-track
// outcomes and aggregate activity statistics.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"time"

	"github.com/cheggaaa/pb/v3"

	"github.com/workfloor-data/activity.report/internal/config"
	"github.com/workfloor-data/activity.report/internal/pose"
	"github.com/workfloor-data/activity.report/internal/pose/pipeline"
	"github.com/workfloor-data/activity.report/internal/pose/recorder"
)

// Config holds configuration for the replay analysis.
type Config struct {
	LogPath    string
	ConfigPath string
	OutputJSON string
	NoProgress bool
}

// TrackOutcome summarizes one track over the whole log.
type TrackOutcome struct {
	TrackID         int64   `json:"track_id"`
	FirstSeenSec    float64 `json:"first_seen_sec"`
	LastSeenSec     float64 `json:"last_seen_sec"`
	FramesMatched   int64   `json:"frames_matched"`
	WorkingObs      int64   `json:"working_obs"`
	IdleObs         int64   `json:"idle_obs"`
	WorkingFraction float64 `json:"working_fraction"`
	StatusFlips     int64   `json:"status_flips"`
	FinalStatus     string  `json:"final_status"`
}

// ReplayResult holds the results of a replay analysis.
type ReplayResult struct {
	LogPath        string         `json:"log_path"`
	RunID          string         `json:"run_id"`
	CameraID       string         `json:"camera_id"`
	DurationSecs   float64        `json:"duration_secs"`
	TotalFrames    uint64         `json:"total_frames"`
	Processed      int64          `json:"processed"`
	Skipped        int64          `json:"skipped"`
	Errors         int64          `json:"errors"`
	SpanSec        float64        `json:"span_sec"`
	PeakPeople     int            `json:"peak_people"`
	MeanWorking    float64        `json:"mean_working"`
	TracksObserved int            `json:"tracks_observed"`
	Tracks         []TrackOutcome `json:"tracks"`
}

// tally accumulates per-track outcomes from frame results, including
// tracks that expire mid-log and never appear in the final registry.
type tally struct {
	tracks     map[int64]*TrackOutcome
	lastStatus map[int64]pose.Status

	processed  int64
	firstSec   float64
	lastSec    float64
	peakPeople int
	workingSum int64
}

func newTally() *tally {
	return &tally{
		tracks:     make(map[int64]*TrackOutcome),
		lastStatus: make(map[int64]pose.Status),
	}
}

func (t *tally) OnFrame(res pipeline.FrameResult) {
	if !res.Processed {
		return
	}
	if t.processed == 0 {
		t.firstSec = res.TimestampSec
	}
	t.processed++
	t.lastSec = res.TimestampSec
	t.workingSum += int64(res.Counts.Working)
	if res.Counts.Total > t.peakPeople {
		t.peakPeople = res.Counts.Total
	}

	for _, det := range res.Detections {
		out := t.tracks[det.TrackID]
		if out == nil {
			out = &TrackOutcome{TrackID: det.TrackID, FirstSeenSec: res.TimestampSec}
			t.tracks[det.TrackID] = out
		}
		out.LastSeenSec = res.TimestampSec
		out.FramesMatched++
		if det.Status == pose.StatusWorking {
			out.WorkingObs++
		} else {
			out.IdleObs++
		}
		if prev, ok := t.lastStatus[det.TrackID]; ok && prev != det.Status {
			out.StatusFlips++
		}
		t.lastStatus[det.TrackID] = det.Status
		out.FinalStatus = string(det.Status)
	}
}

func (t *tally) outcomes() []TrackOutcome {
	outs := make([]TrackOutcome, 0, len(t.tracks))
	for _, out := range t.tracks {
		if obs := out.WorkingObs + out.IdleObs; obs > 0 {
			out.WorkingFraction = float64(out.WorkingObs) / float64(obs)
		}
		outs = append(outs, *out)
	}
	sort.Slice(outs, func(a, b int) bool { return outs[a].TrackID < outs[b].TrackID })
	return outs
}

func newProgressBar(total int) *pb.ProgressBar {
	template := `{{counters . "%s/%s"}} {{bar . }} {{percent . }} {{etime . "%s elapsed"}} {{rtime . "%s remain"}}`
	return pb.ProgressBarTemplate(template).Start(total)
}

func runReplay(cfg Config) (*ReplayResult, error) {
	rep, err := recorder.NewReplayer(cfg.LogPath)
	if err != nil {
		return nil, fmt.Errorf("open pose log: %w", err)
	}

	tuning := config.DefaultTuningConfig()
	if cfg.ConfigPath != "" {
		tuning, err = config.LoadTuningConfig(cfg.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("load tuning config: %w", err)
		}
	}

	acc := newTally()
	pcfg := pipeline.ConfigFromTuning(tuning)
	pcfg.Observer = acc
	driver := pipeline.NewDriver(pipeline.Passthrough{}, pcfg)

	var bar *pb.ProgressBar
	if !cfg.NoProgress {
		bar = newProgressBar(int(rep.TotalFrames()))
	}

	start := time.Now()
	var skipped, errCount int64
	ctx := context.Background()
	for {
		rec, err := rep.ReadFrame()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read frame: %w", err)
		}

		result, err := driver.Step(ctx, rec.PipelineFrame(pcfg.Decoder))
		if err != nil {
			errCount++
		} else if !result.Processed {
			skipped++
		}
		if bar != nil {
			bar.Increment()
		}
	}
	if bar != nil {
		bar.Finish()
	}
	driver.Stop()

	header := rep.Header()
	return &ReplayResult{
		LogPath:        cfg.LogPath,
		RunID:          header.RunID,
		CameraID:       header.CameraID,
		DurationSecs:   time.Since(start).Seconds(),
		TotalFrames:    rep.TotalFrames(),
		Processed:      acc.processed,
		Skipped:        skipped,
		Errors:         errCount,
		SpanSec:        acc.lastSec - acc.firstSec,
		PeakPeople:     acc.peakPeople,
		MeanWorking:    meanWorking(acc),
		TracksObserved: len(acc.tracks),
		Tracks:         acc.outcomes(),
	}, nil
}

func meanWorking(t *tally) float64 {
	if t.processed == 0 {
		return 0
	}
	return float64(t.workingSum) / float64(t.processed)
}

func printReport(result *ReplayResult) {
	fmt.Printf("Pose Log: %s\n", result.LogPath)
	fmt.Printf("Run: %s (camera %s)\n", result.RunID, result.CameraID)
	fmt.Printf("Processing Time: %.2fs\n", result.DurationSecs)
	fmt.Printf("Frames: %d total, %d processed, %d skipped, %d errors\n",
		result.TotalFrames, result.Processed, result.Skipped, result.Errors)
	fmt.Printf("Video Span: %.1fs\n", result.SpanSec)
	fmt.Printf("Peak People: %d\n", result.PeakPeople)
	fmt.Printf("Mean Working: %.2f\n", result.MeanWorking)
	fmt.Printf("Tracks Observed: %d\n", result.TracksObserved)

	for _, tr := range result.Tracks {
		fmt.Printf("\nTrack #%d:\n", tr.TrackID)
		fmt.Printf("  Seen: %.1fs - %.1fs (%d frames)\n", tr.FirstSeenSec, tr.LastSeenSec, tr.FramesMatched)
		fmt.Printf("  Working: %.1f%% (%d working / %d idle observations)\n",
			tr.WorkingFraction*100, tr.WorkingObs, tr.IdleObs)
		fmt.Printf("  Status Flips: %d\n", tr.StatusFlips)
		fmt.Printf("  Final Status: %s\n", tr.FinalStatus)
	}
}

func main() {
	var cfg Config
	flag.StringVar(&cfg.LogPath, "log", "", "Pose log directory to analyze")
	flag.StringVar(&cfg.ConfigPath, "config", "", "Tuning config JSON")
	flag.StringVar(&cfg.OutputJSON, "json", "", "Output JSON filename (e.g., report.json)")
	flag.BoolVar(&cfg.NoProgress, "no-progress", false, "Disable the progress bar")
	flag.Parse()

	if cfg.LogPath == "" {
		log.Fatal("-log is required")
	}

	result, err := runReplay(cfg)
	if err != nil {
		log.Fatalf("Replay failed: %v", err)
	}

	printReport(result)

	if cfg.OutputJSON != "" {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			log.Fatalf("Failed to marshal report: %v", err)
		}
		if err := os.WriteFile(cfg.OutputJSON, data, 0644); err != nil {
			log.Fatalf("Failed to write report: %v", err)
		}
		log.Printf("Report exported to: %s", cfg.OutputJSON)
	}
}
