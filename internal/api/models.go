package api

import (
	"github.com/workfloor-data/activity.report/internal/pose"
	"github.com/workfloor-data/activity.report/internal/pose/pipeline"
)

// The pipeline types carry no JSON tags; the *API structs below control the
// wire format so internal renames cannot leak into responses.

// CountsAPI is the wire form of a per-frame status count.
type CountsAPI struct {
	Total   int `json:"total"`
	Working int `json:"working"`
	Idle    int `json:"idle"`
}

func countsToAPI(c pose.Counts) CountsAPI {
	return CountsAPI{Total: c.Total, Working: c.Working, Idle: c.Idle}
}

// BoxAPI is the wire form of a bounding box: [x1, y1, x2, y2].
type BoxAPI [4]float64

func boxToAPI(b pose.Box) BoxAPI {
	return BoxAPI{b.X1, b.Y1, b.X2, b.Y2}
}

// TrackAPI is the wire form of one live track.
type TrackAPI struct {
	ID            int64   `json:"id"`
	Status        string  `json:"status"`
	Box           BoxAPI  `json:"box"`
	FirstSeenSec  float64 `json:"first_seen_sec"`
	LastSeenSec   float64 `json:"last_seen_sec"`
	LastSampleSec float64 `json:"last_sample_sec"`
	Samples       int     `json:"samples"`
	Observations  int     `json:"observations"`
}

func trackToAPI(t pose.Track) TrackAPI {
	return TrackAPI{
		ID:            t.ID,
		Status:        string(t.Status),
		Box:           boxToAPI(t.LastBox),
		FirstSeenSec:  t.FirstSeenSec,
		LastSeenSec:   t.LastUpdateSec,
		LastSampleSec: t.LastSampleSec,
		Samples:       len(t.Samples),
		Observations:  t.ObservationCount,
	}
}

// DetectionAPI is the wire form of one tracked detection in a frame event.
type DetectionAPI struct {
	TrackID int64   `json:"track_id"`
	Status  string  `json:"status"`
	Created bool    `json:"created,omitempty"`
	Motion  float64 `json:"motion"`
	Box     BoxAPI  `json:"box"`
	Score   float64 `json:"score"`
}

// FrameEventAPI is the wire form of one processed frame, used for the live
// event stream.
type FrameEventAPI struct {
	Seq           int64          `json:"seq"`
	TimestampSec  float64        `json:"timestamp_sec"`
	Counts        CountsAPI      `json:"counts"`
	Detections    []DetectionAPI `json:"detections"`
	TracksExpired int            `json:"tracks_expired,omitempty"`
	TracksLive    int            `json:"tracks_live"`
}

func frameEventToAPI(result pipeline.FrameResult) FrameEventAPI {
	event := FrameEventAPI{
		Seq:           result.Seq,
		TimestampSec:  result.TimestampSec,
		Counts:        countsToAPI(result.Counts),
		Detections:    make([]DetectionAPI, 0, len(result.Detections)),
		TracksExpired: result.TracksExpired,
		TracksLive:    result.TracksLive,
	}
	for _, det := range result.Detections {
		event.Detections = append(event.Detections, DetectionAPI{
			TrackID: det.TrackID,
			Status:  string(det.Status),
			Created: det.Created,
			Motion:  det.Motion,
			Box:     boxToAPI(det.Detection.Box),
			Score:   det.Detection.Score,
		})
	}
	return event
}

// StatsAPI is the wire form of the driver's lifetime counters.
type StatsAPI struct {
	FramesProcessed int64 `json:"frames_processed"`
	FramesSkipped   int64 `json:"frames_skipped"`
	FrameErrors     int64 `json:"frame_errors"`
	TracksCreated   int64 `json:"tracks_created"`
	TracksExpired   int64 `json:"tracks_expired"`
}

func statsToAPI(s pipeline.Stats) StatsAPI {
	return StatsAPI{
		FramesProcessed: s.FramesProcessed,
		FramesSkipped:   s.FramesSkipped,
		FrameErrors:     s.FrameErrors,
		TracksCreated:   s.TracksCreated,
		TracksExpired:   s.TracksExpired,
	}
}

// StatusAPI is the wire form of the /api/status response.
type StatusAPI struct {
	Service       string    `json:"service"`
	SessionID     string    `json:"session_id,omitempty"`
	LastTimestamp float64   `json:"last_timestamp_sec"`
	LastSeq       int64     `json:"last_seq"`
	Counts        CountsAPI `json:"counts"`
	TracksLive    int       `json:"tracks_live"`
	Stats         StatsAPI  `json:"stats"`
}
