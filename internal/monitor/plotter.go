package monitor

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/workfloor-data/activity.report/internal/pose"
	"github.com/workfloor-data/activity.report/internal/pose/pipeline"
)

// SessionPlotter records frame results over a run and turns them into PNG
// plots afterwards: people counts over time and per-track wrist motion.
// Enable it with Start() before the run and call GeneratePlots() after.
type SessionPlotter struct {
	mu        sync.Mutex
	enabled   bool
	outputDir string

	counts []CountPoint
	motion map[int64][]MotionPoint
}

func NewSessionPlotter() *SessionPlotter {
	return &SessionPlotter{
		motion: make(map[int64][]MotionPoint),
	}
}

// Start initializes the plotter for a new run.
// outputDir should be a timestamped directory (e.g., "plots/shift-a/20260822_093000")
func (sp *SessionPlotter) Start(outputDir string) error {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	sp.outputDir = outputDir
	sp.enabled = true
	sp.counts = nil
	sp.motion = make(map[int64][]MotionPoint)
	return nil
}

// Stop disables sampling. Call GeneratePlots() to produce output files.
func (sp *SessionPlotter) Stop() {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	sp.enabled = false
}

// IsEnabled returns true if the plotter is currently recording.
func (sp *SessionPlotter) IsEnabled() bool {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	return sp.enabled
}

// OnFrame captures one processed frame result. Call once per frame, or
// wire the plotter in as a pipeline observer.
func (sp *SessionPlotter) OnFrame(result pipeline.FrameResult) {
	if !result.Processed {
		return
	}

	sp.mu.Lock()
	defer sp.mu.Unlock()

	if !sp.enabled {
		return
	}

	sp.counts = append(sp.counts, CountPoint{
		Seq:          result.Seq,
		TimestampSec: result.TimestampSec,
		Total:        result.Counts.Total,
		Working:      result.Counts.Working,
		Idle:         result.Counts.Idle,
		TracksLive:   result.TracksLive,
	})
	for _, det := range result.Detections {
		sp.motion[det.TrackID] = append(sp.motion[det.TrackID], MotionPoint{
			TimestampSec: result.TimestampSec,
			Motion:       det.Motion,
			Working:      det.Status == pose.StatusWorking,
		})
	}
}

// SampleCount returns the number of captured frames.
func (sp *SessionPlotter) SampleCount() int {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	return len(sp.counts)
}

// GetOutputDir returns the current output directory for plots.
func (sp *SessionPlotter) GetOutputDir() string {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	return sp.outputDir
}

// GeneratePlots creates the PNG files for the captured run.
// Returns the number of plots generated and any error.
func (sp *SessionPlotter) GeneratePlots() (int, error) {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	if sp.outputDir == "" {
		return 0, fmt.Errorf("no output directory configured")
	}
	if len(sp.counts) == 0 {
		return 0, nil
	}

	written := 0
	if err := sp.generateCountsPlot(filepath.Join(sp.outputDir, "counts.png")); err != nil {
		return written, fmt.Errorf("counts plot: %w", err)
	}
	written++

	if len(sp.motion) > 0 {
		if err := sp.generateMotionPlot(filepath.Join(sp.outputDir, "motion.png")); err != nil {
			return written, fmt.Errorf("motion plot: %w", err)
		}
		written++
	}

	return written, nil
}

// generateCountsPlot draws total/working/idle people counts over video time.
func (sp *SessionPlotter) generateCountsPlot(file string) error {
	p := plot.New()
	p.Title.Text = "People by Status"
	p.X.Label.Text = "Video time (s)"
	p.Y.Label.Text = "People"

	totalPts := make(plotter.XYs, 0, len(sp.counts))
	workingPts := make(plotter.XYs, 0, len(sp.counts))
	idlePts := make(plotter.XYs, 0, len(sp.counts))
	for _, c := range sp.counts {
		totalPts = append(totalPts, plotter.XY{X: c.TimestampSec, Y: float64(c.Total)})
		workingPts = append(workingPts, plotter.XY{X: c.TimestampSec, Y: float64(c.Working)})
		idlePts = append(idlePts, plotter.XY{X: c.TimestampSec, Y: float64(c.Idle)})
	}

	series := []struct {
		label string
		pts   plotter.XYs
		clr   color.Color
	}{
		{"total", totalPts, color.RGBA{R: 158, G: 158, B: 158, A: 255}},
		{"working", workingPts, color.RGBA{R: 72, G: 249, B: 10, A: 255}},
		{"idle", idlePts, color.RGBA{R: 255, G: 178, B: 29, A: 255}},
	}
	for _, s := range series {
		line, err := plotter.NewLine(s.pts)
		if err != nil {
			return err
		}
		line.Color = s.clr
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(s.label, line)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	if err := p.Save(14*vg.Inch, 6*vg.Inch, file); err != nil {
		return fmt.Errorf("save counts plot: %w", err)
	}
	return nil
}

// generateMotionPlot draws one normalized-motion line per track.
func (sp *SessionPlotter) generateMotionPlot(file string) error {
	p := plot.New()
	p.Title.Text = "Wrist Motion per Track"
	p.X.Label.Text = "Video time (s)"
	p.Y.Label.Text = "Normalized motion"

	// Sort track IDs for a consistent legend
	var ids []int64
	for id := range sp.motion {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })

	colors := generateColors(len(ids))

	for i, id := range ids {
		samples := sp.motion[id]
		if len(samples) == 0 {
			continue
		}

		pts := make(plotter.XYs, 0, len(samples))
		for _, s := range samples {
			pts = append(pts, plotter.XY{X: s.TimestampSec, Y: s.Motion})
		}

		line, err := plotter.NewLine(pts)
		if err != nil {
			return err
		}
		line.Color = colors[i]
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("#%d", id), line)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	if err := p.Save(14*vg.Inch, 6*vg.Inch, file); err != nil {
		return fmt.Errorf("save motion plot: %w", err)
	}
	return nil
}

// generateColors creates a palette of distinct colors for track lines
func generateColors(n int) []color.Color {
	if n <= 0 {
		return nil
	}

	colors := make([]color.Color, n)
	for i := 0; i < n; i++ {
		hue := float64(i) / float64(n)
		r, g, b := hslToRGB(hue, 0.7, 0.5)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

// hslToRGB converts HSL to RGB (0-255 range)
func hslToRGB(h, s, l float64) (r, g, b uint8) {
	var rf, gf, bf float64

	if s == 0 {
		rf, gf, bf = l, l, l
	} else {
		var q float64
		if l < 0.5 {
			q = l * (1 + s)
		} else {
			q = l + s - l*s
		}
		p := 2*l - q
		rf = hueToRGB(p, q, h+1.0/3.0)
		gf = hueToRGB(p, q, h)
		bf = hueToRGB(p, q, h-1.0/3.0)
	}

	return uint8(rf * 255), uint8(gf * 255), uint8(bf * 255)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t += 1
	}
	if t > 1 {
		t -= 1
	}
	if t < 1.0/6.0 {
		return p + (q-p)*6*t
	}
	if t < 1.0/2.0 {
		return q
	}
	if t < 2.0/3.0 {
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}

// FormatTimestamp generates a timestamp string for directory naming.
func FormatTimestamp(t time.Time) string {
	return t.Format("20060102_150405")
}

// MakePlotOutputDir creates a timestamped output directory path for plots.
// For video files: plots/<video_basename>/<timestamp>
// For live capture: plots/live_<timestamp>
func MakePlotOutputDir(baseDir, videoFile string) string {
	ts := FormatTimestamp(time.Now())
	if videoFile != "" {
		base := filepath.Base(videoFile)
		ext := filepath.Ext(base)
		name := base[:len(base)-len(ext)]
		return filepath.Join(baseDir, name, ts)
	}
	return filepath.Join(baseDir, "live_"+ts)
}
