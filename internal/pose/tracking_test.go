package pose

import (
	"math"
	"testing"
)

// detAt builds a detection centered at (cx, cy) with the given box extents.
func detAt(cx, cy, w, h float64) Detection {
	box := Box{X1: cx - w/2, Y1: cy - h/2, X2: cx + w/2, Y2: cy + h/2}
	return Detection{Box: box, Center: box.Center(), Score: 0.9}
}

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry()
	if reg.Tracks == nil {
		t.Error("expected non-nil tracks map")
	}
	if reg.NextTrackID != 1 {
		t.Errorf("expected NextTrackID=1, got %d", reg.NextTrackID)
	}
}

func TestRegistry_Create(t *testing.T) {
	reg := NewRegistry()
	det := detAt(100, 100, 40, 100)
	det.LeftWrist = &Point{X: 90, Y: 80}

	track := reg.Create(det, 10.0)

	if track.ID != 1 {
		t.Errorf("expected first track id 1, got %d", track.ID)
	}
	if track.Status != StatusIdle {
		t.Errorf("expected new track status idle, got %s", track.Status)
	}
	if track.LastUpdateSec != 10.0 || track.LastSampleSec != 10.0 {
		t.Errorf("expected timestamps 10.0, got update=%v sample=%v", track.LastUpdateSec, track.LastSampleSec)
	}

	// The founding detection contributes the first sample.
	if len(track.Samples) != 1 {
		t.Fatalf("expected 1 founding sample, got %d", len(track.Samples))
	}
	if track.Samples[0].LeftWrist == nil || track.Samples[0].LeftWrist.X != 90 {
		t.Errorf("expected founding sample to carry the left wrist")
	}
}

func TestRegistry_MonotonicIDs(t *testing.T) {
	reg := NewRegistry()

	reg.Create(detAt(100, 100, 40, 100), 0)
	reg.Create(detAt(300, 100, 40, 100), 0)
	reg.Create(detAt(500, 100, 40, 100), 0)

	// Expire everything, then create again: ids keep climbing.
	reg.Expire(10.0, 2.0)
	if reg.Len() != 0 {
		t.Fatalf("expected empty registry after expiry, got %d tracks", reg.Len())
	}

	track := reg.Create(detAt(100, 100, 40, 100), 10.0)
	if track.ID != 4 {
		t.Errorf("expected id 4 after three earlier tracks, got %d", track.ID)
	}
}

func TestRegistry_Expire_Boundary(t *testing.T) {
	const threshold = 2.0
	const eps = 0.001

	// Updated threshold-eps ago: survives.
	reg := NewRegistry()
	reg.Create(detAt(100, 100, 40, 100), 10.0)
	reg.Expire(10.0+threshold-eps, threshold)
	if reg.Len() != 1 {
		t.Errorf("expected track to survive at threshold-eps, got %d tracks", reg.Len())
	}

	// Updated threshold+eps ago: removed.
	reg = NewRegistry()
	reg.Create(detAt(100, 100, 40, 100), 10.0)
	removed := reg.Expire(10.0+threshold+eps, threshold)
	if removed != 1 || reg.Len() != 0 {
		t.Errorf("expected track removed at threshold+eps, removed=%d len=%d", removed, reg.Len())
	}
}

func TestRegistry_Upsert(t *testing.T) {
	reg := NewRegistry()
	track := reg.Create(detAt(100, 100, 40, 100), 0)

	det := detAt(120, 110, 44, 104)
	reg.Upsert(track.ID, det, 0.2)

	if track.LastCenter != (Point{X: 120, Y: 110}) {
		t.Errorf("expected center overwritten to (120,110), got %+v", track.LastCenter)
	}
	if track.LastUpdateSec != 0.2 {
		t.Errorf("expected LastUpdateSec 0.2, got %v", track.LastUpdateSec)
	}
	if track.ObservationCount != 2 {
		t.Errorf("expected 2 observations, got %d", track.ObservationCount)
	}
	// Geometry updates do not record samples.
	if len(track.Samples) != 1 {
		t.Errorf("expected samples untouched by upsert, got %d", len(track.Samples))
	}
}

func TestRegistry_Upsert_UnknownIDFoundsTrack(t *testing.T) {
	reg := NewRegistry()

	det := detAt(100, 100, 40, 100)
	det.LeftWrist = &Point{X: 90, Y: 80}
	track := reg.Upsert(7, det, 5.0)

	if track.ID != 7 || reg.Get(7) != track {
		t.Fatalf("expected track minted under id 7, got %+v", track)
	}
	if reg.NextTrackID != 8 {
		t.Errorf("expected NextTrackID bumped to 8, got %d", reg.NextTrackID)
	}
	if track.FirstSeenSec != 5.0 || track.LastSampleSec != 5.0 || track.ObservationCount != 1 {
		t.Errorf("unexpected founding fields: %+v", track)
	}

	// Same founding-sample rule as Create: one more sample an interval
	// later is enough for a motion judgement.
	if len(track.Samples) != 1 {
		t.Fatalf("expected 1 founding sample, got %d", len(track.Samples))
	}
	if track.Samples[0].TimestampSec != 5.0 || track.Samples[0].LeftWrist == nil ||
		track.Samples[0].LeftWrist.X != 90 {
		t.Errorf("expected founding sample to carry the left wrist, got %+v", track.Samples[0])
	}
}

func TestMatchParams_Gate(t *testing.T) {
	p := DefaultMatchParams()

	// Small box: the 80px floor applies.
	small := Box{X1: 0, Y1: 0, X2: 30, Y2: 40} // diagonal 50
	if got := p.Gate(small); got != 80 {
		t.Errorf("expected floor gate 80, got %v", got)
	}

	// Large box: proportional to the diagonal.
	large := Box{X1: 0, Y1: 0, X2: 180, Y2: 240} // diagonal 300
	if got := p.Gate(large); got != 150 {
		t.Errorf("expected proportional gate 150, got %v", got)
	}
}

func TestAssociator_GateBoundary_Floor(t *testing.T) {
	const eps = 0.1
	assoc := NewAssociator(DefaultMatchParams())

	// Track with a small box: gate floored at 80px.
	reg := NewRegistry()
	track := reg.Create(detAt(100, 100, 30, 40), 0)

	// Inside the gate: matched to the existing track.
	got := assoc.Associate(reg, []Detection{detAt(100+80-eps, 100, 30, 40)}, 0.1)
	if got[0].Created || got[0].TrackID != track.ID {
		t.Errorf("expected match inside floor gate, got %+v", got[0])
	}

	// Outside the gate: spawns a new track.
	got = assoc.Associate(reg, []Detection{detAt(100+80+eps, 100, 30, 40)}, 0.2)
	if !got[0].Created {
		t.Errorf("expected new track outside floor gate, got %+v", got[0])
	}
}

func TestAssociator_GateBoundary_Proportional(t *testing.T) {
	const eps = 0.1
	assoc := NewAssociator(DefaultMatchParams())

	// Track with a large box: gate is 0.5 x diagonal = 150px.
	reg := NewRegistry()
	track := reg.Create(detAt(500, 500, 180, 240), 0)

	got := assoc.Associate(reg, []Detection{detAt(500+150-eps, 500, 180, 240)}, 0.1)
	if got[0].Created || got[0].TrackID != track.ID {
		t.Errorf("expected match inside proportional gate, got %+v", got[0])
	}

	got = assoc.Associate(reg, []Detection{detAt(500+150+eps, 500, 180, 240)}, 0.2)
	if !got[0].Created {
		t.Errorf("expected new track outside proportional gate, got %+v", got[0])
	}
}

func TestAssociator_OneToOne(t *testing.T) {
	assoc := NewAssociator(DefaultMatchParams())
	reg := NewRegistry()
	track := reg.Create(detAt(100, 100, 40, 100), 0)

	// Two detections both near the single track: only one may claim it.
	dets := []Detection{
		detAt(105, 100, 40, 100),
		detAt(110, 100, 40, 100),
	}
	got := assoc.Associate(reg, dets, 0.1)

	if got[0].Created || got[0].TrackID != track.ID {
		t.Errorf("expected first detection to claim track %d, got %+v", track.ID, got[0])
	}
	if !got[1].Created {
		t.Errorf("expected second detection to spawn a new track, got %+v", got[1])
	}
	if got[0].TrackID == got[1].TrackID {
		t.Error("expected distinct track ids for one-to-one matching")
	}
	if reg.Len() != 2 {
		t.Errorf("expected 2 tracks after frame, got %d", reg.Len())
	}
}

func TestAssociator_NearestWins(t *testing.T) {
	assoc := NewAssociator(DefaultMatchParams())
	reg := NewRegistry()

	far := reg.Create(detAt(160, 100, 40, 100), 0)
	near := reg.Create(detAt(110, 100, 40, 100), 0)

	got := assoc.Associate(reg, []Detection{detAt(100, 100, 40, 100)}, 0.1)
	if got[0].TrackID != near.ID {
		t.Errorf("expected nearest track %d to win, got %d", near.ID, got[0].TrackID)
	}
	if math.Abs(got[0].Dist-10) > 1e-9 {
		t.Errorf("expected match distance 10, got %v", got[0].Dist)
	}
	if far.ObservationCount != 1 {
		t.Errorf("expected far track untouched, got %d observations", far.ObservationCount)
	}
}

func TestAssociator_StaleTracksNotMatchable(t *testing.T) {
	assoc := NewAssociator(DefaultMatchParams())
	reg := NewRegistry()
	reg.Create(detAt(100, 100, 40, 100), 0)

	// 1.6s later the track is past the 1.5s staleness limit but not yet
	// expired: the detection must start a new identity.
	got := assoc.Associate(reg, []Detection{detAt(100, 100, 40, 100)}, 1.6)
	if !got[0].Created {
		t.Errorf("expected stale track to be unmatchable, got %+v", got[0])
	}
	if reg.Len() != 2 {
		t.Errorf("expected 2 tracks, got %d", reg.Len())
	}
}

func TestRegistry_Snapshot_Copies(t *testing.T) {
	reg := NewRegistry()
	track := reg.Create(detAt(100, 100, 40, 100), 0)

	snap := reg.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("expected 1 snapshot track, got %d", len(snap))
	}

	// Mutating the snapshot must not touch the registry.
	snap[0].Samples = append(snap[0].Samples, Sample{TimestampSec: 99})
	snap[0].Status = StatusWorking

	if len(track.Samples) != 1 {
		t.Errorf("expected registry samples unchanged, got %d", len(track.Samples))
	}
	if track.Status != StatusIdle {
		t.Errorf("expected registry status unchanged, got %s", track.Status)
	}
}
