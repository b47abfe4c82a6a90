package monitor

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/workfloor-data/activity.report/internal/pose"
)

func setupTestMonitor(t *testing.T) (*Monitor, *http.ServeMux) {
	t.Helper()
	m := NewMonitor(64)
	mux := http.NewServeMux()
	m.AttachRoutes(mux)
	return m, mux
}

func getPage(t *testing.T, mux *http.ServeMux, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func TestTimelineChartEmptyHistory(t *testing.T) {
	_, mux := setupTestMonitor(t)

	w := getPage(t, mux, "/debug/activity/timeline")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestTimelineChart(t *testing.T) {
	m, mux := setupTestMonitor(t)
	m.OnFrame(frameResult(1, 0.0, trackedDet(1, pose.StatusWorking, 0.2)))
	m.OnFrame(frameResult(2, 0.5, trackedDet(1, pose.StatusIdle, 0.03)))

	w := getPage(t, mux, "/debug/activity/timeline")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "text/html") {
		t.Errorf("Expected HTML content type, got %q", ct)
	}
	body := w.Body.String()
	if !strings.Contains(body, "People by Status") {
		t.Error("Expected chart title in response body")
	}
	if !strings.Contains(body, "working") {
		t.Error("Expected working series in response body")
	}
}

func TestMotionChartEmptyHistory(t *testing.T) {
	_, mux := setupTestMonitor(t)

	w := getPage(t, mux, "/debug/activity/motion")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestMotionChart(t *testing.T) {
	m, mux := setupTestMonitor(t)
	m.OnFrame(frameResult(1, 0.0, trackedDet(1, pose.StatusWorking, 0.25), trackedDet(2, pose.StatusIdle, 0.01)))

	w := getPage(t, mux, "/debug/activity/motion")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "Wrist Motion per Observation") {
		t.Error("Expected chart title in response body")
	}
}

func TestThroughputChartWithoutSnapshot(t *testing.T) {
	// Renders zeros before the first stats interval elapses.
	_, mux := setupTestMonitor(t)

	w := getPage(t, mux, "/debug/activity/throughput")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Pipeline Throughput") {
		t.Error("Expected chart title in response body")
	}
}

func TestThroughputChartWithSnapshot(t *testing.T) {
	m, mux := setupTestMonitor(t)
	m.OnFrame(frameResult(1, 0.0, trackedDet(1, pose.StatusWorking, 0.2)))
	m.RecordSkipped()
	m.Stats.LogStats()

	w := getPage(t, mux, "/debug/activity/throughput")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Skipped (recent)") {
		t.Error("Expected skipped axis label in response body")
	}
}

func TestDashboard(t *testing.T) {
	_, mux := setupTestMonitor(t)

	w := getPage(t, mux, "/debug/activity")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	body := w.Body.String()
	for _, frag := range []string{"/debug/activity/timeline", "/debug/activity/motion", "/debug/activity/throughput"} {
		if !strings.Contains(body, frag) {
			t.Errorf("Expected dashboard to link %s", frag)
		}
	}
}

func TestStatusPageEmpty(t *testing.T) {
	_, mux := setupTestMonitor(t)

	w := getPage(t, mux, "/debug/activity/status")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "No frames processed yet") {
		t.Error("Expected empty-state message in status page")
	}
}

func TestStatusPageWithTraffic(t *testing.T) {
	m, mux := setupTestMonitor(t)
	m.OnFrame(frameResult(3, 1.5, trackedDet(1, pose.StatusWorking, 0.2), trackedDet(2, pose.StatusIdle, 0.01)))
	m.Stats.LogStats()

	w := getPage(t, mux, "/debug/activity/status")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "1.5s") {
		t.Error("Expected latest video time in status page")
	}
	if !strings.Contains(body, "Live tracks") {
		t.Error("Expected counts table in status page")
	}
	if !strings.Contains(body, "Frames/s") {
		t.Error("Expected throughput table in status page")
	}
}
