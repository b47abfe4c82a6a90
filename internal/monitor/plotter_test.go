package monitor

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/workfloor-data/activity.report/internal/pose"
	"github.com/workfloor-data/activity.report/internal/pose/pipeline"
)

func TestSessionPlotterStartStop(t *testing.T) {
	sp := NewSessionPlotter()
	if sp.IsEnabled() {
		t.Error("Expected plotter to start disabled")
	}

	dir := filepath.Join(t.TempDir(), "run")
	if err := sp.Start(dir); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !sp.IsEnabled() {
		t.Error("Expected plotter enabled after Start")
	}
	if sp.GetOutputDir() != dir {
		t.Errorf("Expected output dir %s, got %s", dir, sp.GetOutputDir())
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("Expected output dir to exist: %v", err)
	}

	sp.Stop()
	if sp.IsEnabled() {
		t.Error("Expected plotter disabled after Stop")
	}
}

func TestSessionPlotterIgnoresWhenDisabled(t *testing.T) {
	sp := NewSessionPlotter()

	sp.OnFrame(frameResult(1, 0.0, trackedDet(1, pose.StatusWorking, 0.2)))
	if sp.SampleCount() != 0 {
		t.Errorf("Expected no samples before Start, got %d", sp.SampleCount())
	}

	if err := sp.Start(t.TempDir()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	sp.OnFrame(frameResult(2, 0.5, trackedDet(1, pose.StatusWorking, 0.2)))
	sp.OnFrame(pipeline.FrameResult{Seq: 3, Processed: false})
	sp.Stop()
	sp.OnFrame(frameResult(4, 1.0, trackedDet(1, pose.StatusWorking, 0.2)))

	if sp.SampleCount() != 1 {
		t.Errorf("Expected exactly 1 sample, got %d", sp.SampleCount())
	}
}

func TestSessionPlotterRestartResets(t *testing.T) {
	sp := NewSessionPlotter()
	if err := sp.Start(t.TempDir()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	sp.OnFrame(frameResult(1, 0.0, trackedDet(1, pose.StatusWorking, 0.2)))

	if err := sp.Start(t.TempDir()); err != nil {
		t.Fatalf("Restart failed: %v", err)
	}
	if sp.SampleCount() != 0 {
		t.Errorf("Expected samples cleared on restart, got %d", sp.SampleCount())
	}
}

func TestGeneratePlots(t *testing.T) {
	sp := NewSessionPlotter()
	dir := t.TempDir()
	if err := sp.Start(dir); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	for i := 0; i < 6; i++ {
		sp.OnFrame(frameResult(int64(i), float64(i)*0.5,
			trackedDet(1, pose.StatusWorking, 0.2+float64(i)*0.01),
			trackedDet(2, pose.StatusIdle, 0.02)))
	}
	sp.Stop()

	n, err := sp.GeneratePlots()
	if err != nil {
		t.Fatalf("GeneratePlots failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Expected 2 plots, got %d", n)
	}

	for _, name := range []string{"counts.png", "motion.png"} {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil {
			t.Errorf("Expected %s to exist: %v", name, err)
			continue
		}
		if info.Size() == 0 {
			t.Errorf("Expected %s to be non-empty", name)
		}
	}
}

func TestGeneratePlotsNoSamples(t *testing.T) {
	sp := NewSessionPlotter()
	if err := sp.Start(t.TempDir()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	n, err := sp.GeneratePlots()
	if err != nil {
		t.Errorf("Expected no error on empty run, got %v", err)
	}
	if n != 0 {
		t.Errorf("Expected 0 plots on empty run, got %d", n)
	}
}

func TestGeneratePlotsWithoutStart(t *testing.T) {
	sp := NewSessionPlotter()
	if _, err := sp.GeneratePlots(); err == nil {
		t.Error("Expected error when no output directory was configured")
	}
}

func TestGenerateColors(t *testing.T) {
	if got := generateColors(0); got != nil {
		t.Errorf("Expected nil palette for 0 tracks, got %v", got)
	}

	colors := generateColors(8)
	if len(colors) != 8 {
		t.Fatalf("Expected 8 colors, got %d", len(colors))
	}
	seen := make(map[string]bool)
	for _, c := range colors {
		r, g, b, _ := c.RGBA()
		key := fmt.Sprintf("%d-%d-%d", r, g, b)
		if seen[key] {
			t.Error("Expected distinct palette colors")
		}
		seen[key] = true
	}
}

func TestMakePlotOutputDir(t *testing.T) {
	dir := MakePlotOutputDir("plots", "/footage/shift-a.mp4")
	if !strings.Contains(dir, filepath.Join("plots", "shift-a")) {
		t.Errorf("Expected video basename in path, got %s", dir)
	}
	if strings.Contains(dir, ".mp4") {
		t.Errorf("Expected extension stripped, got %s", dir)
	}

	live := MakePlotOutputDir("plots", "")
	if !strings.Contains(live, "live_") {
		t.Errorf("Expected live_ prefix, got %s", live)
	}
}
