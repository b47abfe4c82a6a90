package monitor

import (
	"bytes"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// viridisColors is the shared visual-map gradient for the scatter charts.
var viridisColors = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

// handleTimelineChart renders a line chart (HTML) of people counts by status
// over the buffered history using go-echarts. This is a debugging-only
// endpoint (no auth) to eyeball a run without the full UI.
func (m *Monitor) handleTimelineChart(w http.ResponseWriter, r *http.Request) {
	points := m.History.CountPoints()
	if len(points) == 0 {
		writeJSONError(w, http.StatusNotFound, "no frame history available")
		return
	}

	x := make([]string, len(points))
	working := make([]opts.LineData, len(points))
	idle := make([]opts.LineData, len(points))
	total := make([]opts.LineData, len(points))
	for i, p := range points {
		x[i] = fmt.Sprintf("%.1f", p.TimestampSec)
		working[i] = opts.LineData{Value: p.Working}
		idle[i] = opts.LineData{Value: p.Idle}
		total[i] = opts.LineData{Value: p.Total}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Activity Timeline", Theme: "dark", Width: "1400px", Height: "600px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "People by Status", Subtitle: fmt.Sprintf("frames=%d span=%.1fs..%.1fs", len(points), points[0].TimestampSec, points[len(points)-1].TimestampSec)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Video time (s)"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "People"}),
	)

	line.SetXAxis(x).
		AddSeries("working", working, charts.WithItemStyleOpts(opts.ItemStyle{Color: "#48f90a"})).
		AddSeries("idle", idle, charts.WithItemStyleOpts(opts.ItemStyle{Color: "#ffb21d"})).
		AddSeries("total", total, charts.WithItemStyleOpts(opts.ItemStyle{Color: "#9e9e9e"}))

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleMotionChart renders every buffered (time, motion) observation as a
// scatter colored by motion value.
func (m *Monitor) handleMotionChart(w http.ResponseWriter, r *http.Request) {
	series := m.History.MotionSeries()
	if len(series) == 0 {
		writeJSONError(w, http.StatusNotFound, "no motion history available")
		return
	}

	ids := make([]int64, 0, len(series))
	for id := range series {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })

	data := make([]opts.ScatterData, 0, 256)
	maxMotion := 0.0
	for _, id := range ids {
		for _, p := range series[id] {
			if p.Motion > maxMotion {
				maxMotion = p.Motion
			}
			data = append(data, opts.ScatterData{Value: []interface{}{p.TimestampSec, p.Motion, p.Motion}})
		}
	}
	if maxMotion == 0 {
		maxMotion = 1.0
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Track Motion", Theme: "dark", Width: "1400px", Height: "600px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Wrist Motion per Observation", Subtitle: fmt.Sprintf("tracks=%d points=%d", len(ids), len(data))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Video time (s)"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Normalized motion"}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(maxMotion),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: viridisColors},
		}),
	)
	scatter.AddSeries("motion", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render motion chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleThroughputChart renders a simple bar chart of pipeline throughput.
func (m *Monitor) handleThroughputChart(w http.ResponseWriter, r *http.Request) {
	snap := m.Stats.GetLatestSnapshot()
	if snap == nil {
		snap = &FrameStatsSnapshot{Timestamp: time.Now()}
	}

	x := []string{"Frames/s", "Detections/s", "Skipped (recent)", "Errors (recent)"}
	y := []opts.BarData{
		{Value: snap.FramesPerSec},
		{Value: snap.DetectionsPerSec},
		{Value: snap.SkippedCount},
		{Value: snap.ErrorCount},
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "720px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Pipeline Throughput", Subtitle: snap.Timestamp.Format(time.RFC3339)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x).
		AddSeries("throughput", y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)

	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsPrefix)
	page.AddCharts(bar)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("render error: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleDashboard renders a simple dashboard with iframes to the debug
// charts.
func (m *Monitor) handleDashboard(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(dashboardHTML))
}

const dashboardHTML = `<!DOCTYPE html>
<html>
<head>
<title>Activity Debug Dashboard</title>
<style>
body { background: #111; color: #ddd; font-family: sans-serif; margin: 1em; }
a { color: #6ece58; }
iframe { border: 1px solid #333; background: #1e1e1e; width: 100%; height: 640px; margin-bottom: 1em; }
</style>
</head>
<body>
<h1>Activity Debug Dashboard</h1>
<p><a href="/debug/activity/status">status page</a> &middot; <a href="/api/status">status JSON</a> &middot; <a href="/api/events">event stream</a></p>
<iframe src="/debug/activity/timeline"></iframe>
<iframe src="/debug/activity/motion"></iframe>
<iframe src="/debug/activity/throughput"></iframe>
</body>
</html>
`
