package domain

import (
	"time"

	"github.com/google/uuid"
)

// DownloadState is the lifecycle state of a progressive download.
type DownloadState string

const (
	StateIdle        DownloadState = "idle"
	StateStarting    DownloadState = "starting"
	StateDownloading DownloadState = "downloading"
	StateBuffered    DownloadState = "buffered"
	StateStopped     DownloadState = "stopped"
	StateFailed      DownloadState = "failed"
)

// IsActive reports whether a transfer may be running in this state.
func (s DownloadState) IsActive() bool {
	return s == StateStarting || s == StateDownloading || s == StateBuffered
}

// PlaybackSnapshot is the externally visible state of the download session.
type PlaybackSnapshot struct {
	SessionID        string        `json:"session_id,omitempty"`
	MovieID          int           `json:"movie_id,omitempty"`
	Title            string        `json:"title,omitempty"`
	Quality          string        `json:"quality,omitempty"`
	State            DownloadState `json:"state"`
	Progress         float64       `json:"progress"`
	RateBytesPerSec  int64         `json:"rate_bytes_per_sec"`
	BufferedFilePath string        `json:"buffered_file_path,omitempty"`
	SavePath         string        `json:"save_path,omitempty"`
	Error            string        `json:"error,omitempty"`
}

// PlaybackRecord is the persisted history entry of one playback session.
type PlaybackRecord struct {
	ID           string        `json:"id" gorm:"primaryKey"`
	MovieID      int           `json:"movie_id" gorm:"not null;index"`
	Title        string        `json:"title"`
	Quality      string        `json:"quality"`
	Source       string        `json:"source"`
	SavePath     string        `json:"save_path"`
	Status       DownloadState `json:"status" gorm:"not null;index"`
	Progress     float64       `json:"progress"`
	BufferedPath string        `json:"buffered_path,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
	CreatedAt    time.Time     `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt    time.Time     `json:"updated_at" gorm:"autoUpdateTime"`
	BufferedAt   *time.Time    `json:"buffered_at,omitempty"`
	FinishedAt   *time.Time    `json:"finished_at,omitempty"`
}

// NewSessionID returns a fresh playback session identifier.
func NewSessionID() string {
	return uuid.New().String()
}

// NewPlaybackRecord creates a history entry for a session that is starting.
func NewPlaybackRecord(ev DownloadStarting) *PlaybackRecord {
	id := ev.SessionID
	if id == "" {
		id = NewSessionID()
	}
	now := time.Now()
	return &PlaybackRecord{
		ID:        id,
		MovieID:   ev.MovieID,
		Title:     ev.Title,
		Quality:   ev.Quality,
		Source:    ev.Source,
		SavePath:  ev.SavePath,
		Status:    StateStarting,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// MarkBuffered marks the session as playable
func (r *PlaybackRecord) MarkBuffered(path string) {
	r.Status = StateBuffered
	r.BufferedPath = path
	now := time.Now()
	r.BufferedAt = &now
	r.UpdatedAt = now
}

// MarkStopped marks the session as finished, by the user or by completion
func (r *PlaybackRecord) MarkStopped(completed bool) {
	r.Status = StateStopped
	if completed {
		r.Progress = 100
	}
	now := time.Now()
	r.FinishedAt = &now
	r.UpdatedAt = now
}

// MarkFailed marks the session as failed
func (r *PlaybackRecord) MarkFailed(reason string) {
	r.Status = StateFailed
	r.ErrorMessage = reason
	now := time.Now()
	r.FinishedAt = &now
	r.UpdatedAt = now
}

// UpdateProgress keeps the highest progress seen.
func (r *PlaybackRecord) UpdateProgress(percent float64) {
	if percent > r.Progress {
		r.Progress = percent
		if r.Status == StateStarting {
			r.Status = StateDownloading
		}
		r.UpdatedAt = time.Now()
	}
}

// IsTerminal checks if the session has ended
func (r *PlaybackRecord) IsTerminal() bool {
	return r.Status == StateStopped || r.Status == StateFailed
}
