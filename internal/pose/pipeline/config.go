package pipeline

import (
	"github.com/workfloor-data/activity.report/internal/config"
)

// ConfigFromTuning builds a driver Config from the runtime tuning file.
// Nil tuning yields the defaults, so callers can pass through an optional
// -config flag unconditionally.
func ConfigFromTuning(tc *config.TuningConfig) Config {
	cfg := DefaultConfig()
	if tc == nil {
		return cfg
	}
	cfg.Decoder.ScoreThreshold = tc.GetScoreThreshold()
	cfg.Decoder.IoUThreshold = tc.GetIoUThreshold()
	cfg.Decoder.KeypointConfThreshold = tc.GetKeypointConfThreshold()
	cfg.Decoder.MaxDetections = tc.GetMaxDetections()
	cfg.Match.StaleForMatchSeconds = tc.GetStaleForMatchSeconds()
	cfg.Match.DistanceFloorPx = tc.GetMatchDistanceFloorPx()
	cfg.Match.DistanceBoxFactor = tc.GetMatchDistanceBoxFactor()
	cfg.Sampler.IntervalSeconds = tc.GetSampleIntervalSeconds()
	cfg.Sampler.WindowSeconds = tc.GetWindowSeconds()
	cfg.MotionThreshold = tc.GetMotionThreshold()
	cfg.ExpirySeconds = tc.GetTrackExpirySeconds()
	return cfg
}
