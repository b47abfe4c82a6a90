// Command gen-poselog generates sample pose-log recordings for testing
// replay and the threshold sweep tool.
package main

import (
	"flag"
	"log"

	"github.com/workfloor-data/activity.report/internal/pose/recorder"
)

func main() {
	output := flag.String("o", "sample_poselog", "output directory")
	frames := flag.Int("n", 300, "number of frames")
	fps := flag.Float64("fps", 10, "frames per second of the generated timeline")
	width := flag.Int("width", 1280, "scene width in pixels")
	height := flag.Int("height", 720, "scene height in pixels")
	flag.Parse()

	rec, err := recorder.NewRecorder(*output, "synthetic", 640, 640)
	if err != nil {
		log.Fatalf("failed to create recorder: %v", err)
	}
	defer rec.Close()

	gen := recorder.NewSyntheticGenerator(*width, *height, *fps, nil)
	for i := 0; i < *frames; i++ {
		if err := rec.Record(gen.NextFrame()); err != nil {
			log.Fatalf("failed to record frame %d: %v", i, err)
		}
		if (i+1)%100 == 0 {
			log.Printf("%d/%d frames", i+1, *frames)
		}
	}
	log.Printf("✓ Created: %s (run %s)", rec.Path(), rec.RunID())
}
