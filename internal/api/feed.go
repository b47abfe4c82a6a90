package api

import (
	crand "crypto/rand"
	"encoding/hex"
	"encoding/json"
	"sync"

	"github.com/workfloor-data/activity.report/internal/pose"
	"github.com/workfloor-data/activity.report/internal/pose/pipeline"
)

// StatusFeed connects the frame pipeline to the HTTP layer. It observes
// frame results, keeps the latest state for the status endpoints, and fans
// pre-encoded events out to live event-stream subscribers.
//
// OnFrame runs on the pipeline goroutine. UpdateRegistry must be called by
// the same goroutine that owns the driver, typically right after each Step.
type StatusFeed struct {
	mu          sync.Mutex
	lastResult  pipeline.FrameResult
	haveResult  bool
	tracks      []pose.Track
	stats       pipeline.Stats
	subscribers map[string]chan string
	closed      bool
}

func NewStatusFeed() *StatusFeed {
	return &StatusFeed{
		subscribers: make(map[string]chan string),
	}
}

// randomID generates a random channel ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

// OnFrame caches the result and publishes it to event subscribers. Ticks
// that did not process a frame are not published.
func (f *StatusFeed) OnFrame(result pipeline.FrameResult) {
	if !result.Processed {
		return
	}

	payload, err := json.Marshal(frameEventToAPI(result))
	if err != nil {
		return
	}
	event := string(payload)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}

	f.lastResult = result
	f.haveResult = true

	for _, ch := range f.subscribers {
		select {
		case ch <- event:
		default:
			// a slow subscriber drops events rather than stalling the pipeline
		}
	}
}

// UpdateRegistry caches the current track registry and driver statistics.
func (f *StatusFeed) UpdateRegistry(tracks []pose.Track, stats pipeline.Stats) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tracks = tracks
	f.stats = stats
}

// LatestResult returns the most recent processed frame result.
func (f *StatusFeed) LatestResult() (pipeline.FrameResult, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastResult, f.haveResult
}

// RegistrySnapshot returns the cached track registry and driver statistics.
func (f *StatusFeed) RegistrySnapshot() ([]pose.Track, pipeline.Stats) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tracks := make([]pose.Track, len(f.tracks))
	copy(tracks, f.tracks)
	return tracks, f.stats
}

// Subscribe creates a new channel receiving encoded frame events. The
// returned ID identifies the channel when unsubscribing.
func (f *StatusFeed) Subscribe() (string, chan string) {
	id := randomID()
	ch := make(chan string, 16)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a channel from the list of subscribers.
func (f *StatusFeed) Unsubscribe(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ch, ok := f.subscribers[id]; ok {
		close(ch)
		delete(f.subscribers, id)
	}
}

// Close closes all subscriber channels. Further frames are dropped.
func (f *StatusFeed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	for id, ch := range f.subscribers {
		close(ch)
		delete(f.subscribers, id)
	}
}
