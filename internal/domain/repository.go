package domain

// PlaybackRepository defines the interface for playback history persistence
type PlaybackRepository interface {
	// Create creates a new record
	Create(record *PlaybackRecord) error

	// Update updates an existing record
	Update(record *PlaybackRecord) error

	// FindByID finds a record by session ID
	FindByID(id string) (*PlaybackRecord, error)

	// FindByStatus finds records by status
	FindByStatus(status DownloadState) ([]*PlaybackRecord, error)

	// FindRecent returns the newest records first
	FindRecent(limit int) ([]*PlaybackRecord, error)

	// GetStats returns playback statistics
	GetStats() (*PlaybackStats, error)
}

// PlaybackStats represents playback history statistics
type PlaybackStats struct {
	Total       int64 `json:"total"`
	Active      int64 `json:"active"`
	Buffered    int64 `json:"buffered"`
	Stopped     int64 `json:"stopped"`
	Failed      int64 `json:"failed"`
	UniqueFilms int64 `json:"unique_films"`
}
