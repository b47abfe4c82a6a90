package monitor

import (
	"embed"
	"html/template"
	"net/http"
	"time"
)

//go:embed status.html
var StatusHTML embed.FS

// handleStatusPage handles the human-readable status page endpoint
func (m *Monitor) handleStatusPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")

	// Load and parse the HTML template from embedded filesystem
	tmpl, err := template.ParseFS(StatusHTML, "status.html")
	if err != nil {
		http.Error(w, "Error loading template: "+err.Error(), http.StatusInternalServerError)
		return
	}

	latest, haveLatest := m.History.Latest()

	data := struct {
		Uptime     string
		Frames     int
		Latest     CountPoint
		HaveLatest bool
		Stats      *FrameStatsSnapshot
	}{
		Uptime:     m.Stats.GetUptime().Round(time.Second).String(),
		Frames:     m.History.Len(),
		Latest:     latest,
		HaveLatest: haveLatest,
		Stats:      m.Stats.GetLatestSnapshot(),
	}

	if err := tmpl.Execute(w, data); err != nil {
		http.Error(w, "Error executing template: "+err.Error(), http.StatusInternalServerError)
		return
	}
}
