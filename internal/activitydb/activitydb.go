// Package activitydb persists activity tracking output to SQLite: tracking
// sessions, per-track status transitions, periodic people-count samples, and
// end-of-session track summaries. The schema is managed by embedded
// migrations.
package activitydb

import (
	"database/sql"
	"fmt"
	"log"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

type ActivityDB struct {
	*sql.DB
}

// OpenActivityDB opens the database and applies connection pragmas without
// touching the schema. Use NewActivityDB unless migrations are being managed
// externally.
func OpenActivityDB(path string) (*ActivityDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		PRAGMA journal_mode = WAL;
		PRAGMA busy_timeout = 5000;
		PRAGMA synchronous = NORMAL;
		PRAGMA temp_store = MEMORY;
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %v", err)
	}

	return &ActivityDB{db}, nil
}

// NewActivityDB opens the database and brings the schema up to the latest
// migration version.
func NewActivityDB(path string) (*ActivityDB, error) {
	db, err := OpenActivityDB(path)
	if err != nil {
		return nil, err
	}

	fsys, err := getMigrationsFS()
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := db.MigrateUp(fsys); err != nil {
		db.Close()
		return nil, err
	}

	log.Println("initialized activity database schema")

	return db, nil
}

// StartSession creates a new tracking session record and returns its id.
func (db *ActivityDB) StartSession(source, notes string) (string, error) {
	id := "ses_" + uuid.NewString()

	query := `
		INSERT INTO sessions (id, source, notes)
		VALUES (?, ?, ?)
	`

	_, err := db.Exec(query, id, source, notes)
	if err != nil {
		return "", fmt.Errorf("failed to start session: %v", err)
	}

	return id, nil
}

// EndSession closes a tracking session and records how many frames it
// processed.
func (db *ActivityDB) EndSession(id string, framesProcessed int64) error {
	query := `
		UPDATE sessions
		SET end_timestamp = UNIXEPOCH('subsec'), frames_processed = ?
		WHERE id = ?
	`

	_, err := db.Exec(query, framesProcessed, id)
	if err != nil {
		return fmt.Errorf("failed to end session: %v", err)
	}

	return nil
}

// RecordStatusTransition stores one track status change.
func (db *ActivityDB) RecordStatusTransition(sessionID string, trackID int64, status, previousStatus string, videoTimeSec, motion float64) error {
	query := `
		INSERT INTO status_transitions (session_id, track_id, status, previous_status, video_time_sec, motion)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := db.Exec(query, sessionID, trackID, status, previousStatus, videoTimeSec, motion)
	if err != nil {
		return fmt.Errorf("failed to insert status transition: %v", err)
	}

	return nil
}

// RecordCountSample stores one people-count sample.
func (db *ActivityDB) RecordCountSample(sessionID string, videoTimeSec float64, total, working, idle int) error {
	query := `
		INSERT INTO count_samples (session_id, video_time_sec, total, working, idle)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := db.Exec(query, sessionID, videoTimeSec, total, working, idle)
	if err != nil {
		return fmt.Errorf("failed to insert count sample: %v", err)
	}

	return nil
}

// RecordTrackSummary stores or replaces the lifetime summary for one track.
func (db *ActivityDB) RecordTrackSummary(s TrackSummary) error {
	query := `
		INSERT OR REPLACE INTO track_summaries
			(session_id, track_id, first_seen_sec, last_seen_sec, frames_matched, working_sec, idle_sec, final_status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.Exec(query, s.SessionID, s.TrackID, s.FirstSeenSec, s.LastSeenSec,
		s.FramesMatched, s.WorkingSec, s.IdleSec, s.FinalStatus)
	if err != nil {
		return fmt.Errorf("failed to insert track summary: %v", err)
	}

	return nil
}

// Session represents one tracking session.
type Session struct {
	ID              string   `json:"id"`
	StartTimestamp  float64  `json:"start_timestamp"`
	EndTimestamp    *float64 `json:"end_timestamp,omitempty"`
	Source          string   `json:"source"`
	FramesProcessed int64    `json:"frames_processed"`
	Notes           string   `json:"notes"`
}

// StatusTransition represents one recorded track status change.
type StatusTransition struct {
	ID             int64   `json:"id"`
	SessionID      string  `json:"session_id"`
	TrackID        int64   `json:"track_id"`
	Status         string  `json:"status"`
	PreviousStatus string  `json:"previous_status"`
	VideoTimeSec   float64 `json:"video_time_sec"`
	Motion         float64 `json:"motion"`
	RecordedAt     float64 `json:"recorded_at"`
}

// CountSample represents one stored people-count sample.
type CountSample struct {
	ID           int64   `json:"id"`
	SessionID    string  `json:"session_id"`
	VideoTimeSec float64 `json:"video_time_sec"`
	Total        int     `json:"total"`
	Working      int     `json:"working"`
	Idle         int     `json:"idle"`
	RecordedAt   float64 `json:"recorded_at"`
}

// TrackSummary represents the lifetime summary of one track.
type TrackSummary struct {
	SessionID     string  `json:"session_id"`
	TrackID       int64   `json:"track_id"`
	FirstSeenSec  float64 `json:"first_seen_sec"`
	LastSeenSec   float64 `json:"last_seen_sec"`
	FramesMatched int64   `json:"frames_matched"`
	WorkingSec    float64 `json:"working_sec"`
	IdleSec       float64 `json:"idle_sec"`
	FinalStatus   string  `json:"final_status"`
}

// Sessions retrieves the most recently started sessions.
func (db *ActivityDB) Sessions(limit int) ([]Session, error) {
	rows, err := db.Query(`
		SELECT id, start_timestamp, end_timestamp, source, frames_processed, notes
		FROM sessions ORDER BY start_timestamp DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %v", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var s Session
		if err := rows.Scan(&s.ID, &s.StartTimestamp, &s.EndTimestamp, &s.Source,
			&s.FramesProcessed, &s.Notes); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %v", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return sessions, nil
}

// RecentTransitions retrieves the latest status transitions for a session,
// newest first.
func (db *ActivityDB) RecentTransitions(sessionID string, limit int) ([]StatusTransition, error) {
	rows, err := db.Query(`
		SELECT id, session_id, track_id, status, previous_status, video_time_sec, motion, recorded_at
		FROM status_transitions
		WHERE session_id = ?
		ORDER BY video_time_sec DESC, id DESC LIMIT ?
	`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query status transitions: %v", err)
	}
	defer rows.Close()

	var transitions []StatusTransition
	for rows.Next() {
		var tr StatusTransition
		if err := rows.Scan(&tr.ID, &tr.SessionID, &tr.TrackID, &tr.Status, &tr.PreviousStatus,
			&tr.VideoTimeSec, &tr.Motion, &tr.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transition row: %v", err)
		}
		transitions = append(transitions, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return transitions, nil
}

// CountSamplesSince retrieves count samples at or after sinceSec of video
// time, oldest first.
func (db *ActivityDB) CountSamplesSince(sessionID string, sinceSec float64, limit int) ([]CountSample, error) {
	rows, err := db.Query(`
		SELECT id, session_id, video_time_sec, total, working, idle, recorded_at
		FROM count_samples
		WHERE session_id = ? AND video_time_sec >= ?
		ORDER BY video_time_sec ASC LIMIT ?
	`, sessionID, sinceSec, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query count samples: %v", err)
	}
	defer rows.Close()

	var samples []CountSample
	for rows.Next() {
		var cs CountSample
		if err := rows.Scan(&cs.ID, &cs.SessionID, &cs.VideoTimeSec, &cs.Total, &cs.Working,
			&cs.Idle, &cs.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan count sample row: %v", err)
		}
		samples = append(samples, cs)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return samples, nil
}

// TrackSummaries retrieves all track summaries for a session ordered by
// track id.
func (db *ActivityDB) TrackSummaries(sessionID string) ([]TrackSummary, error) {
	rows, err := db.Query(`
		SELECT session_id, track_id, first_seen_sec, last_seen_sec, frames_matched, working_sec, idle_sec, final_status
		FROM track_summaries
		WHERE session_id = ?
		ORDER BY track_id ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query track summaries: %v", err)
	}
	defer rows.Close()

	var summaries []TrackSummary
	for rows.Next() {
		var ts TrackSummary
		if err := rows.Scan(&ts.SessionID, &ts.TrackID, &ts.FirstSeenSec, &ts.LastSeenSec,
			&ts.FramesMatched, &ts.WorkingSec, &ts.IdleSec, &ts.FinalStatus); err != nil {
			return nil, fmt.Errorf("failed to scan track summary row: %v", err)
		}
		summaries = append(summaries, ts)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return summaries, nil
}
