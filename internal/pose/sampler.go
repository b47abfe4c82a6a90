package pose

// Sampling defaults.
const (
	// DefaultSampleIntervalSeconds is the wrist sampling cadence per track.
	DefaultSampleIntervalSeconds = 0.5
	// DefaultWindowSeconds is the retained sample history per track.
	DefaultWindowSeconds = 3.0
)

// SamplerParams holds the sampling cadence and retention window.
type SamplerParams struct {
	IntervalSeconds float64
	WindowSeconds   float64
}

// DefaultSamplerParams returns the default sampling parameters. The 3s/0.5s
// ratio bounds retained samples per track to ceil(window/interval)+1.
func DefaultSamplerParams() SamplerParams {
	return SamplerParams{
		IntervalSeconds: DefaultSampleIntervalSeconds,
		WindowSeconds:   DefaultWindowSeconds,
	}
}

// MaxRetained returns the retained-sample bound implied by the parameters.
func (p SamplerParams) MaxRetained() int {
	if p.IntervalSeconds <= 0 {
		return 1
	}
	n := int(p.WindowSeconds / p.IntervalSeconds)
	if float64(n)*p.IntervalSeconds < p.WindowSeconds {
		n++
	}
	return n + 1
}

// Sampler records wrist positions per track at a fixed cadence. Sampling
// on a cadence rather than every frame bounds memory and smooths
// frame-rate jitter.
type Sampler struct {
	Params SamplerParams
}

// NewSampler creates a sampler with the given parameters.
func NewSampler(params SamplerParams) *Sampler {
	return &Sampler{Params: params}
}

// Record appends a sample when at least one interval has elapsed since the
// track's last sample, then evicts samples outside the retention window.
// Returns whether a sample was appended.
func (s *Sampler) Record(track *Track, det Detection, nowSec float64) bool {
	appended := false
	if nowSec-track.LastSampleSec >= s.Params.IntervalSeconds {
		track.Samples = append(track.Samples, Sample{
			TimestampSec: nowSec,
			LeftWrist:    det.LeftWrist,
			RightWrist:   det.RightWrist,
		})
		track.LastSampleSec = nowSec
		appended = true
	}
	s.Evict(track, nowSec)
	return appended
}

// Evict drops every sample older than nowSec − WindowSeconds. It runs for
// unmatched tracks too, so sample windows stay current while a track
// coasts toward expiry.
func (s *Sampler) Evict(track *Track, nowSec float64) {
	cutoff := nowSec - s.Params.WindowSeconds
	first := 0
	for first < len(track.Samples) && track.Samples[first].TimestampSec < cutoff {
		first++
	}
	if first > 0 {
		track.Samples = track.Samples[first:]
	}
}
