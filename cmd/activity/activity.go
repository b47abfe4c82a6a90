package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"gocv.io/x/gocv"
	_ "modernc.org/sqlite"

	"github.com/workfloor-data/activity.report/internal/activitydb"
	"github.com/workfloor-data/activity.report/internal/api"
	"github.com/workfloor-data/activity.report/internal/config"
	"github.com/workfloor-data/activity.report/internal/infer"
	"github.com/workfloor-data/activity.report/internal/monitor"
	"github.com/workfloor-data/activity.report/internal/pose/pipeline"
	"github.com/workfloor-data/activity.report/internal/pose/recorder"
	"github.com/workfloor-data/activity.report/internal/render"
	"github.com/workfloor-data/activity.report/internal/timeutil"
	"github.com/workfloor-data/activity.report/internal/video"
)

var (
	listen      = flag.String("listen", ":8080", "HTTP listen address")
	videoFile   = flag.String("video", "", "Video file to process")
	cameraID    = flag.Int("camera", -1, "Camera device index for live capture")
	poselogPath = flag.String("poselog", "", "Recorded pose log directory to replay without inference")
	modelPath   = flag.String("model", "yolov8n-pose.onnx", "ONNX pose model path")
	ortLibrary  = flag.String("ort-lib", "", "ONNX Runtime shared library path (default: platform lookup)")
	dbFile      = flag.String("db", "activity_data.db", "Path to the SQLite database file")
	configPath  = flag.String("config", "", "Tuning config JSON; unset fields fall back to defaults")
	recordPath  = flag.String("record", "", "Record decoded poses to this log directory")
	plotsDir    = flag.String("plots", "", "Write post-run PNG plots under this directory")
	notes       = flag.String("notes", "", "Session notes stored with the run")
	display     = flag.Bool("display", false, "Show the annotated video in a window")
	debug       = flag.Bool("debug", false, "Enable per-frame diagnostic logging from the pipeline")
	replayRate  = flag.Float64("rate", 1, "Replay pacing for -poselog as a multiple of recorded speed (0 = as fast as possible)")
	logInterval = flag.Int("log-interval", 30, "Throughput logging interval in seconds")
)

// drainTuning applies the most recent queued tuning update to the driver.
// Runs on the frame-loop goroutine, between passes, so the driver's
// single-owner rule holds.
func drainTuning(driver *pipeline.Driver, ch <-chan config.TuningConfig) *config.TuningConfig {
	var latest *config.TuningConfig
	for {
		select {
		case tc := <-ch:
			latest = &tc
		default:
			if latest != nil {
				driver.Retune(pipeline.ConfigFromTuning(latest))
			}
			return latest
		}
	}
}

// loopDeps carries what the frame loops need besides the source.
type loopDeps struct {
	driver   *pipeline.Driver
	feed     *api.StatusFeed
	mon      *monitor.Monitor
	tuning   *config.TuningConfig
	tuningCh <-chan config.TuningConfig
	clock    timeutil.Clock
	window   *gocv.Window
}

// stepFrame runs one pipeline pass and does the per-frame host bookkeeping:
// skip/error counting and the live-track snapshot for the API.
func (d *loopDeps) stepFrame(ctx context.Context, frame pipeline.Frame) (pipeline.FrameResult, bool) {
	result, err := d.driver.Step(ctx, frame)
	if err != nil {
		d.mon.RecordError()
		log.Printf("frame %d (t=%.3fs) failed: %v", frame.Seq, frame.TimestampSec, err)
		return result, false
	}
	if !result.Processed {
		d.mon.RecordSkipped()
		return result, false
	}
	d.feed.UpdateRegistry(d.driver.Tracks(), d.driver.Stats())
	return result, true
}

// runVideoLoop drives the pipeline from a live video source through the
// inference engine until the source ends or ctx is cancelled.
func runVideoLoop(ctx context.Context, deps *loopDeps, src video.Source, pre *infer.Preprocessor) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if tc := drainTuning(deps.driver, deps.tuningCh); tc != nil {
			deps.tuning = tc
		}

		frame, err := src.Read()
		if err != nil {
			return fmt.Errorf("video read: %w", err)
		}
		if frame.Ended {
			log.Printf("video source ended after %d frames", frame.Seq)
			return nil
		}
		if frame.Paused {
			deps.mon.RecordSkipped()
			continue
		}

		tensor, ratios, err := pre.Tensor(frame.Image)
		if err != nil {
			deps.mon.RecordError()
			log.Printf("frame %d preprocess failed: %v", frame.Seq, err)
			continue
		}

		result, processed := deps.stepFrame(ctx, pipeline.Frame{
			Seq:          frame.Seq,
			TimestampSec: frame.TimestampSec,
			Input:        tensor,
			Ratios:       ratios,
		})

		if processed && deps.window != nil {
			render.Overlay(&frame.Image, result, deps.tuning.GetKeypointConfThreshold())
			deps.window.IMShow(frame.Image)
			if deps.window.WaitKey(1) == 27 { // esc
				log.Print("display window closed, stopping")
				return nil
			}
		}
	}
}

// runReplayLoop drives the pipeline from a recorded pose log. Recorded
// geometry is already decoded, so frames run through Passthrough. When
// paced, frames are spaced by their recorded timestamps over the replay
// rate so the live surfaces update at a realistic speed.
func runReplayLoop(ctx context.Context, deps *loopDeps, rep *recorder.Replayer, paced bool) error {
	params := pipeline.ConfigFromTuning(deps.tuning).Decoder
	lastSec := -1.0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if tc := drainTuning(deps.driver, deps.tuningCh); tc != nil {
			deps.tuning = tc
			params = pipeline.ConfigFromTuning(tc).Decoder
		}

		rec, err := rep.ReadFrame()
		if errors.Is(err, io.EOF) {
			log.Printf("pose log ended after %d frames", rep.CurrentFrame())
			return nil
		}
		if err != nil {
			return fmt.Errorf("pose log read: %w", err)
		}

		if paced && lastSec >= 0 && rec.TimestampSec > lastSec {
			dt := (rec.TimestampSec - lastSec) / rep.Rate()
			deps.clock.Sleep(time.Duration(dt * float64(time.Second)))
		}
		lastSec = rec.TimestampSec

		deps.stepFrame(ctx, rec.PipelineFrame(params))
	}
}

// Main
func main() {
	flag.Parse()

	if *listen == "" {
		log.Fatal("HTTP listen address is required")
	}

	if *debug {
		pipeline.SetLogWriters(os.Stderr, os.Stderr, nil)
	} else {
		pipeline.SetLogWriters(os.Stderr, nil, nil)
	}

	sources := 0
	for _, selected := range []bool{*videoFile != "", *cameraID >= 0, *poselogPath != ""} {
		if selected {
			sources++
		}
	}
	if sources != 1 {
		log.Fatal("exactly one of -video, -camera, or -poselog is required")
	}

	// Load tuning configuration
	tuning := config.DefaultTuningConfig()
	if *configPath != "" {
		var err error
		tuning, err = config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load tuning config: %v", err)
		}
		log.Printf("Loaded tuning config from %s", *configPath)
	}

	// Initialize database
	db, err := activitydb.NewActivityDB(*dbFile)
	if err != nil {
		log.Fatalf("Failed to connect to activity database: %v", err)
	}
	defer db.Close()

	var sourceDesc string
	switch {
	case *videoFile != "":
		sourceDesc = "file:" + *videoFile
	case *cameraID >= 0:
		sourceDesc = fmt.Sprintf("camera:%d", *cameraID)
	default:
		sourceDesc = "poselog:" + *poselogPath
	}

	sessionID, err := db.StartSession(sourceDesc, *notes)
	if err != nil {
		log.Fatalf("Failed to start session: %v", err)
	}
	log.Printf("Started session %s (%s)", sessionID, sourceDesc)

	// Observers: API feed, monitor, database recorder, then the optional
	// pose log and plotter.
	feed := api.NewStatusFeed()
	mon := monitor.NewMonitor(0)
	statusRec := activitydb.NewStatusRecorder(db, sessionID, tuning.GetCountsFlushInterval(), timeutil.RealClock{})
	observers := pipeline.MultiObserver{feed, mon, statusRec}

	var poseRec *recorder.Recorder
	if *recordPath != "" {
		camera := filepath.Base(sourceDesc)
		poseRec, err = recorder.NewRecorder(*recordPath, camera, tuning.GetModelInputWidth(), tuning.GetModelInputHeight())
		if err != nil {
			log.Fatalf("Failed to create pose recorder: %v", err)
		}
		observers = append(observers, poseRec)
		log.Printf("Recording poses to %s (run %s)", poseRec.Path(), poseRec.RunID())
	}

	var plotter *monitor.SessionPlotter
	if *plotsDir != "" {
		plotter = monitor.NewSessionPlotter()
		outDir := monitor.MakePlotOutputDir(*plotsDir, *videoFile)
		if err := plotter.Start(outDir); err != nil {
			log.Fatalf("Failed to start plotter: %v", err)
		}
		observers = append(observers, plotter)
		log.Printf("Plot output directory: %s", outDir)
	}

	pcfg := pipeline.ConfigFromTuning(tuning)
	pcfg.Observer = observers

	// Predictor: replay feeds pre-encoded blocks through Passthrough;
	// live sources run the ONNX engine.
	var predictor pipeline.Predictor
	var replayer *recorder.Replayer
	if *poselogPath != "" {
		replayer, err = recorder.NewReplayer(*poselogPath)
		if err != nil {
			log.Fatalf("Failed to open pose log: %v", err)
		}
		replayer.SetRate(*replayRate)
		log.Printf("Replaying %d frames from %s (camera %s)",
			replayer.TotalFrames(), *poselogPath, replayer.Header().CameraID)
		predictor = pipeline.Passthrough{}
	} else {
		icfg := infer.DefaultConfig(*modelPath)
		icfg.LibraryPath = *ortLibrary
		icfg.InputWidth = tuning.GetModelInputWidth()
		icfg.InputHeight = tuning.GetModelInputHeight()
		icfg.RowLen = 4 + pcfg.Decoder.NumClasses + 3*pcfg.Decoder.NumKeypoints
		engine, err := infer.NewEngine(icfg)
		if err != nil {
			log.Fatalf("Failed to load pose model: %v", err)
		}
		defer engine.Close()
		log.Printf("Loaded pose model %s (%d anchors)", *modelPath, engine.NumAnchors())
		predictor = engine
	}

	driver := pipeline.NewDriver(predictor, pcfg)

	// Tuning updates from the API are queued here and applied by the
	// frame loop between passes.
	tuningCh := make(chan config.TuningConfig, 4)
	srv := api.NewServer(api.ServerConfig{
		Feed:      feed,
		DB:        db,
		SessionID: sessionID,
		Tuning:    tuning,
		OnTuningChange: func(tc config.TuningConfig) {
			select {
			case tuningCh <- tc:
			default:
				log.Print("tuning update queue full, dropping")
			}
		},
	})

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		ws := api.NewWebServer(*listen, srv, mon.AttachRoutes)
		if err := ws.Start(ctx); err != nil {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	// Periodic throughput logging
	wg.Add(1)
	go func() {
		defer wg.Done()
		mon.Run(ctx, time.Duration(*logInterval)*time.Second)
	}()

	// Frame loop goroutine; owns the driver.
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer driver.Stop()

		// The loop reads its tuning without a lock, so it gets its own
		// copy; API updates arrive as values over tuningCh.
		loopTuning := *tuning
		deps := &loopDeps{
			driver:   driver,
			feed:     feed,
			mon:      mon,
			tuning:   &loopTuning,
			tuningCh: tuningCh,
			clock:    timeutil.RealClock{},
		}
		if *display {
			deps.window = gocv.NewWindow("activity")
			defer deps.window.Close()
		}

		var err error
		if replayer != nil {
			err = runReplayLoop(ctx, deps, replayer, *replayRate > 0)
		} else {
			var src video.Source
			var pre *infer.Preprocessor
			if *videoFile != "" {
				src, err = video.OpenFile(*videoFile)
			} else {
				src, err = video.OpenCamera(*cameraID, timeutil.RealClock{})
			}
			if err != nil {
				log.Printf("Failed to open video source: %v", err)
				stop()
				return
			}
			defer src.Close()

			pre = infer.NewPreprocessor(tuning.GetModelInputWidth(), tuning.GetModelInputHeight())
			defer pre.Close()

			err = runVideoLoop(ctx, deps, src, pre)
		}
		if err != nil && ctx.Err() == nil {
			log.Printf("frame loop error: %v", err)
		}
		log.Print("frame loop terminated")
		stop()
	}()

	// Wait for all goroutines to finish
	wg.Wait()

	// The frame loop has stopped; flush and close in dependency order.
	stats := driver.Stats()
	if err := statusRec.Close(); err != nil {
		log.Printf("status recorder close error: %v", err)
	}
	if poseRec != nil {
		if err := poseRec.Close(); err != nil {
			log.Printf("pose recorder close error: %v", err)
		} else {
			log.Printf("Recorded %d frames to %s", poseRec.FrameCount(), poseRec.Path())
		}
	}
	if plotter != nil {
		plotter.Stop()
		if n, err := plotter.GeneratePlots(); err != nil {
			log.Printf("plot generation error: %v", err)
		} else if n > 0 {
			log.Printf("Wrote %d plots to %s", n, plotter.GetOutputDir())
		}
	}
	feed.Close()

	log.Printf("Session %s: %d frames processed, %d skipped, %d errors, %d tracks created",
		sessionID, stats.FramesProcessed, stats.FramesSkipped, stats.FrameErrors, stats.TracksCreated)
	log.Printf("Graceful shutdown complete")
}
