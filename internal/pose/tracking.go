package pose

import (
	"math"
	"sort"
)

// Tracking defaults. Video timestamps are seconds, distances display pixels.
const (
	// DefaultStaleForMatchSeconds is the maximum track age to remain
	// matchable during association.
	DefaultStaleForMatchSeconds = 1.5
	// DefaultExpirySeconds is the maximum track age before removal.
	DefaultExpirySeconds = 2.0
	// DefaultMatchDistanceFloorPx is the minimum adaptive matching gate,
	// keeping association usable for very small boxes.
	DefaultMatchDistanceFloorPx = 80.0
	// DefaultMatchDistanceBoxFactor scales the last box diagonal into the
	// matching gate.
	DefaultMatchDistanceBoxFactor = 0.5
)

// MatchParams holds configuration for detection-to-track association.
type MatchParams struct {
	StaleForMatchSeconds float64 // max age of a track to remain matchable
	DistanceFloorPx      float64 // minimum matching gate (display pixels)
	DistanceBoxFactor    float64 // multiplier on last box diagonal for the gate
}

// DefaultMatchParams returns the default association parameters.
func DefaultMatchParams() MatchParams {
	return MatchParams{
		StaleForMatchSeconds: DefaultStaleForMatchSeconds,
		DistanceFloorPx:      DefaultMatchDistanceFloorPx,
		DistanceBoxFactor:    DefaultMatchDistanceBoxFactor,
	}
}

// Gate returns the matching gate for a track: the box-proportional radius
// with the configured floor.
func (p MatchParams) Gate(lastBox Box) float64 {
	gate := p.DistanceBoxFactor * lastBox.Diagonal()
	if gate < p.DistanceFloorPx {
		gate = p.DistanceFloorPx
	}
	return gate
}

// Registry owns the live track set for one pipeline instance. It is not a
// process-wide singleton: each driver constructs its own. All operations
// are synchronous map mutations; the single-threaded frame loop is the
// only caller, so no locking is needed.
type Registry struct {
	Tracks      map[int64]*Track
	NextTrackID int64
}

// NewRegistry creates an empty registry. Track ids start at 1 and are
// never reused.
func NewRegistry() *Registry {
	return &Registry{
		Tracks:      make(map[int64]*Track),
		NextTrackID: 1,
	}
}

// Len returns the number of live tracks.
func (r *Registry) Len() int { return len(r.Tracks) }

// Get returns a track by id, or nil if not present.
func (r *Registry) Get(id int64) *Track { return r.Tracks[id] }

// Create mints a new track from an unmatched detection. The founding
// detection contributes the first wrist sample, so a second sample one
// interval later is enough for a motion judgement.
func (r *Registry) Create(det Detection, timestampSec float64) *Track {
	track := &Track{
		ID:            r.NextTrackID,
		LastBox:       det.Box,
		LastCenter:    det.Center,
		FirstSeenSec:  timestampSec,
		LastUpdateSec: timestampSec,
		LastSampleSec: timestampSec,
		Samples: []Sample{{
			TimestampSec: timestampSec,
			LeftWrist:    det.LeftWrist,
			RightWrist:   det.RightWrist,
		}},
		Status:           StatusIdle,
		ObservationCount: 1,
	}
	r.NextTrackID++
	r.Tracks[track.ID] = track
	return track
}

// Upsert overwrites a track's geometry and update time with a matched
// detection. Unknown ids create a track under that id with the same
// founding sample as Create, bumping the id counter past it so
// uniqueness holds.
func (r *Registry) Upsert(id int64, det Detection, timestampSec float64) *Track {
	track, ok := r.Tracks[id]
	if !ok {
		track = &Track{
			ID:            id,
			FirstSeenSec:  timestampSec,
			LastSampleSec: timestampSec,
			Samples: []Sample{{
				TimestampSec: timestampSec,
				LeftWrist:    det.LeftWrist,
				RightWrist:   det.RightWrist,
			}},
			Status: StatusIdle,
		}
		r.Tracks[id] = track
		if id >= r.NextTrackID {
			r.NextTrackID = id + 1
		}
	}
	track.LastBox = det.Box
	track.LastCenter = det.Center
	track.LastUpdateSec = timestampSec
	track.ObservationCount++
	return track
}

// Expire removes every track whose last update is older than
// now − thresholdSeconds and returns the number removed. It runs once per
// frame, before association, so stale tracks never compete for matches.
func (r *Registry) Expire(nowSec, thresholdSeconds float64) int {
	var toRemove []int64
	for id, track := range r.Tracks {
		if nowSec-track.LastUpdateSec > thresholdSeconds {
			toRemove = append(toRemove, id)
		}
	}
	for _, id := range toRemove {
		delete(r.Tracks, id)
	}
	return len(toRemove)
}

// SortedIDs returns the live track ids in ascending order. Association
// iterates in this order so tie-breaks are stable.
func (r *Registry) SortedIDs() []int64 {
	ids := make([]int64, 0, len(r.Tracks))
	for id := range r.Tracks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Snapshot returns value copies of all live tracks ordered by id, for
// reporting outside the frame loop. Sample slices are copied; callers may
// hold the result across frames.
func (r *Registry) Snapshot() []Track {
	ids := r.SortedIDs()
	out := make([]Track, 0, len(ids))
	for _, id := range ids {
		track := *r.Tracks[id]
		track.Samples = append([]Sample(nil), track.Samples...)
		out = append(out, track)
	}
	return out
}

// Assignment records the association outcome for one detection.
type Assignment struct {
	TrackID int64
	Created bool    // true when the detection spawned a new track
	Dist    float64 // center distance for matched tracks, 0 for created
}

// Associator performs greedy nearest-center matching between a frame's
// detections and the registry's live tracks. Centroid distance gated by
// box size gives scale-invariant association without appearance features
// or a motion model; the trade is weak re-identification across long
// occlusions, which expiry handles instead.
type Associator struct {
	Params MatchParams
}

// NewAssociator creates an associator with the given parameters.
func NewAssociator(params MatchParams) *Associator {
	return &Associator{Params: params}
}

// Associate matches detections (in decode order) one-to-one against the
// registry and applies the results: matched tracks get their geometry
// overwritten, unmatched detections spawn new tracks. Returns one
// assignment per detection, in detection order.
//
// A track is a candidate when it is unclaimed this frame, its last update
// is within StaleForMatchSeconds of now, and the center distance is
// strictly below the gate. Ties on distance keep the first candidate in
// ascending id order.
func (a *Associator) Associate(reg *Registry, dets []Detection, nowSec float64) []Assignment {
	ids := reg.SortedIDs()
	claimed := make(map[int64]bool, len(ids))
	assignments := make([]Assignment, len(dets))

	for di, det := range dets {
		var bestID int64
		bestDist := math.Inf(1)

		for _, id := range ids {
			if claimed[id] {
				continue
			}
			track := reg.Tracks[id]
			if nowSec-track.LastUpdateSec > a.Params.StaleForMatchSeconds {
				continue
			}
			dist := det.Center.DistanceTo(track.LastCenter)
			if dist >= a.Params.Gate(track.LastBox) {
				continue
			}
			if dist < bestDist {
				bestDist = dist
				bestID = id
			}
		}

		if bestID != 0 {
			claimed[bestID] = true
			reg.Upsert(bestID, det, nowSec)
			assignments[di] = Assignment{TrackID: bestID, Dist: bestDist}
			continue
		}

		track := reg.Create(det, nowSec)
		assignments[di] = Assignment{TrackID: track.ID, Created: true}
	}

	return assignments
}
