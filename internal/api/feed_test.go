package api

import (
	"encoding/json"
	"testing"

	"github.com/workfloor-data/activity.report/internal/pose"
	"github.com/workfloor-data/activity.report/internal/pose/pipeline"
)

func TestFeedLatestResult(t *testing.T) {
	feed := NewStatusFeed()

	if _, ok := feed.LatestResult(); ok {
		t.Error("Expected no result before any frame")
	}

	// Ticks that did not process a frame are not cached.
	feed.OnFrame(pipeline.FrameResult{Seq: 1, Processed: false})
	if _, ok := feed.LatestResult(); ok {
		t.Error("Expected unprocessed ticks to be ignored")
	}

	feed.OnFrame(testFrameResult(2, 1.0))
	result, ok := feed.LatestResult()
	if !ok {
		t.Fatal("Expected a cached result")
	}
	if result.Seq != 2 || result.TimestampSec != 1.0 {
		t.Errorf("Unexpected cached result: seq=%d t=%f", result.Seq, result.TimestampSec)
	}
}

func TestFeedSubscribeReceives(t *testing.T) {
	feed := NewStatusFeed()
	id, ch := feed.Subscribe()
	defer feed.Unsubscribe(id)

	feed.OnFrame(pipeline.FrameResult{Seq: 1, Processed: false})
	select {
	case payload := <-ch:
		t.Fatalf("Unexpected event for unprocessed tick: %q", payload)
	default:
	}

	feed.OnFrame(testFrameResult(5, 2.5))
	select {
	case payload := <-ch:
		var event FrameEventAPI
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			t.Fatalf("Failed to decode event: %v", err)
		}
		if event.Seq != 5 || event.Counts.Total != 2 {
			t.Errorf("Unexpected event: %+v", event)
		}
	default:
		t.Fatal("Expected an event for the processed frame")
	}
}

// TestFeedSlowSubscriberDrops tests that a full subscriber channel never
// blocks the pipeline goroutine.
func TestFeedSlowSubscriberDrops(t *testing.T) {
	feed := NewStatusFeed()
	id, ch := feed.Subscribe()
	defer feed.Unsubscribe(id)

	for i := 0; i < 2*cap(ch); i++ {
		feed.OnFrame(testFrameResult(int64(i), float64(i)*0.5))
	}

	if len(ch) != cap(ch) {
		t.Errorf("Expected a full channel of %d events, got %d", cap(ch), len(ch))
	}

	// The oldest events survive; overflow is dropped.
	payload := <-ch
	var event FrameEventAPI
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		t.Fatalf("Failed to decode event: %v", err)
	}
	if event.Seq != 0 {
		t.Errorf("Expected first queued event, got seq %d", event.Seq)
	}
}

func TestFeedUnsubscribe(t *testing.T) {
	feed := NewStatusFeed()
	id, ch := feed.Subscribe()

	feed.Unsubscribe(id)

	if _, ok := <-ch; ok {
		t.Error("Expected channel closed after unsubscribe")
	}

	// Unsubscribing twice is harmless.
	feed.Unsubscribe(id)

	feed.OnFrame(testFrameResult(1, 0.5))
}

func TestFeedClose(t *testing.T) {
	feed := NewStatusFeed()
	_, ch1 := feed.Subscribe()
	_, ch2 := feed.Subscribe()

	feed.OnFrame(testFrameResult(1, 0.5))
	feed.Close()

	// Buffered events drain, then the channels report closed.
	for _, ch := range []chan string{ch1, ch2} {
		if _, ok := <-ch; !ok {
			t.Fatal("Expected the buffered event before close")
		}
		if _, ok := <-ch; ok {
			t.Error("Expected channel closed after Close")
		}
	}

	// Frames after Close are dropped without updating the cache.
	feed.OnFrame(testFrameResult(9, 4.5))
	result, ok := feed.LatestResult()
	if !ok || result.Seq != 1 {
		t.Errorf("Expected cached result frozen at seq 1, got ok=%v seq=%d", ok, result.Seq)
	}
}

func TestFeedRegistrySnapshotCopies(t *testing.T) {
	feed := NewStatusFeed()
	feed.UpdateRegistry(testTracks(), pipeline.Stats{FramesProcessed: 10})

	tracks, stats := feed.RegistrySnapshot()
	if len(tracks) != 2 || stats.FramesProcessed != 10 {
		t.Fatalf("Unexpected snapshot: %d tracks, %d frames", len(tracks), stats.FramesProcessed)
	}

	// Mutating the returned slice must not affect the cached registry.
	tracks[0].ID = 99
	tracks[0].Status = pose.StatusIdle

	again, _ := feed.RegistrySnapshot()
	if again[0].ID != 1 || again[0].Status != pose.StatusWorking {
		t.Errorf("Snapshot shares memory with the cache: %+v", again[0])
	}
}

func TestRandomIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := randomID()
		if len(id) != 16 {
			t.Fatalf("Expected 16 hex chars, got %q", id)
		}
		if seen[id] {
			t.Fatalf("Duplicate ID generated: %q", id)
		}
		seen[id] = true
	}
}
