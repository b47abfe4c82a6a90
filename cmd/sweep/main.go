// Package main provides a motion-threshold sweep over a recorded pose log.
// It replays the log once, captures every per-observation motion value,
// then reclassifies the observations across a threshold grid so tuning can
// see how the working/idle split responds without re-running the pipeline.
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

	"gonum.org/v1/gonum/stat"

	"github.com/workfloor-data/activity.report/internal/config"
	"github.com/workfloor-data/activity.report/internal/pose/pipeline"
	"github.com/workfloor-data/activity.report/internal/pose/recorder"
)

// Config holds configuration for the threshold sweep.
type Config struct {
	LogPath    string
	ConfigPath string
	OutputJSON string
	Start      float64
	End        float64
	Step       float64
}

// MotionDistribution summarizes the observed motion values.
type MotionDistribution struct {
	Observations int     `json:"observations"`
	Mean         float64 `json:"mean"`
	P50          float64 `json:"p50"`
	P90          float64 `json:"p90"`
	P99          float64 `json:"p99"`
	Max          float64 `json:"max"`
}

// SweepRow is the outcome of one threshold value.
type SweepRow struct {
	Threshold            float64 `json:"threshold"`
	WorkingObs           int     `json:"working_obs"`
	WorkingFraction      float64 `json:"working_fraction"`
	TracksMostlyWorking  int     `json:"tracks_mostly_working"`
	MeanTrackWorkingFrac float64 `json:"mean_track_working_fraction"`
	StatusFlips          int     `json:"status_flips"`
}

// SweepResult holds the full sweep report.
type SweepResult struct {
	LogPath string             `json:"log_path"`
	Tracks  int                `json:"tracks"`
	Motion  MotionDistribution `json:"motion"`
	Rows    []SweepRow         `json:"rows"`
}

// collector captures every classified observation's motion value, in pass
// order per track. Classification is a pure threshold over these values,
// so the sweep can replay it without touching the registry.
type collector struct {
	perTrack map[int64][]float64
	order    []int64
}

func newCollector() *collector {
	return &collector{perTrack: make(map[int64][]float64)}
}

func (c *collector) OnFrame(res pipeline.FrameResult) {
	if !res.Processed {
		return
	}
	for _, det := range res.Detections {
		if _, ok := c.perTrack[det.TrackID]; !ok {
			c.order = append(c.order, det.TrackID)
		}
		c.perTrack[det.TrackID] = append(c.perTrack[det.TrackID], det.Motion)
	}
}

func (c *collector) allMotions() []float64 {
	var out []float64
	for _, id := range c.order {
		out = append(out, c.perTrack[id]...)
	}
	return out
}

// replayLog runs the pipeline over the whole log with the tuning config's
// decode and tracking parameters; the motion threshold itself does not
// matter here because the collector stores raw motion values.
func replayLog(cfg Config) (*collector, error) {
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

	acc := newCollector()
	pcfg := pipeline.ConfigFromTuning(tuning)
	pcfg.Observer = acc
	driver := pipeline.NewDriver(pipeline.Passthrough{}, pcfg)

	ctx := context.Background()
	for {
		rec, err := rep.ReadFrame()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read frame: %w", err)
		}
		if _, err := driver.Step(ctx, rec.PipelineFrame(pcfg.Decoder)); err != nil {
			log.Printf("frame %d failed: %v", rec.Seq, err)
		}
	}
	driver.Stop()
	return acc, nil
}

func distribution(motions []float64) MotionDistribution {
	d := MotionDistribution{Observations: len(motions)}
	if len(motions) == 0 {
		return d
	}
	sorted := append([]float64(nil), motions...)
	sort.Float64s(sorted)
	d.Mean = stat.Mean(sorted, nil)
	d.P50 = stat.Quantile(0.5, stat.Empirical, sorted, nil)
	d.P90 = stat.Quantile(0.9, stat.Empirical, sorted, nil)
	d.P99 = stat.Quantile(0.99, stat.Empirical, sorted, nil)
	d.Max = sorted[len(sorted)-1]
	return d
}

// evaluate reclassifies the captured observations at one threshold. The
// classifier rule is motion >= threshold; motion is zero whenever a track
// had too few samples for a judgement, so those observations stay idle.
func evaluate(acc *collector, threshold float64) SweepRow {
	row := SweepRow{Threshold: threshold}

	var total int
	var trackFracs []float64
	for _, id := range acc.order {
		motions := acc.perTrack[id]
		working := 0
		lastWorking := false
		for i, m := range motions {
			w := m >= threshold
			if w {
				working++
				row.WorkingObs++
			}
			if i > 0 && w != lastWorking {
				row.StatusFlips++
			}
			lastWorking = w
		}
		total += len(motions)
		frac := float64(working) / float64(len(motions))
		trackFracs = append(trackFracs, frac)
		if frac >= 0.5 {
			row.TracksMostlyWorking++
		}
	}

	if total > 0 {
		row.WorkingFraction = float64(row.WorkingObs) / float64(total)
	}
	if len(trackFracs) > 0 {
		row.MeanTrackWorkingFrac = stat.Mean(trackFracs, nil)
	}
	return row
}

func main() {
	var cfg Config
	flag.StringVar(&cfg.LogPath, "log", "", "Pose log directory to sweep")
	flag.StringVar(&cfg.ConfigPath, "config", "", "Tuning config JSON for decode/tracking parameters")
	flag.StringVar(&cfg.OutputJSON, "json", "", "Output JSON filename (e.g., sweep.json)")
	flag.Float64Var(&cfg.Start, "start", 0.02, "Start motion threshold")
	flag.Float64Var(&cfg.End, "end", 0.30, "End motion threshold")
	flag.Float64Var(&cfg.Step, "step", 0.02, "Threshold step increment")
	flag.Parse()

	if cfg.LogPath == "" {
		log.Fatal("-log is required")
	}
	if cfg.Step <= 0 || cfg.End < cfg.Start {
		log.Fatal("invalid threshold grid")
	}

	acc, err := replayLog(cfg)
	if err != nil {
		log.Fatalf("Sweep failed: %v", err)
	}

	motions := acc.allMotions()
	dist := distribution(motions)
	fmt.Printf("# %d observations across %d tracks\n", dist.Observations, len(acc.order))
	fmt.Printf("# motion: mean=%.4f p50=%.4f p90=%.4f p99=%.4f max=%.4f\n",
		dist.Mean, dist.P50, dist.P90, dist.P99, dist.Max)

	result := &SweepResult{LogPath: cfg.LogPath, Tracks: len(acc.order), Motion: dist}
	fmt.Println("threshold,working_obs,working_fraction,tracks_mostly_working,mean_track_working_fraction,status_flips")
	for v := cfg.Start; v <= cfg.End+1e-9; v += cfg.Step {
		row := evaluate(acc, v)
		result.Rows = append(result.Rows, row)
		fmt.Printf("%.3f,%d,%.4f,%d,%.4f,%d\n",
			row.Threshold, row.WorkingObs, row.WorkingFraction,
			row.TracksMostlyWorking, row.MeanTrackWorkingFrac, row.StatusFlips)
	}

	if cfg.OutputJSON != "" {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			log.Fatalf("Failed to marshal sweep result: %v", err)
		}
		if err := os.WriteFile(cfg.OutputJSON, data, 0644); err != nil {
			log.Fatalf("Failed to write sweep result: %v", err)
		}
		log.Printf("Sweep exported to: %s", cfg.OutputJSON)
	}
}
