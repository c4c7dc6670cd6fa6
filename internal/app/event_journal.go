package app

import (
	"go.uber.org/zap"

	"github.com/garycarlyle/TVShow/internal/domain"
	"github.com/garycarlyle/TVShow/pkg/logger"
)

// EventJournal writes every event to the category log it belongs to.
// Progress events are skipped; they are reflected in the history instead.
type EventJournal struct {
	logs *logger.MultiLogger
}

// NewEventJournal creates a journal writing to logs
func NewEventJournal(logs *logger.MultiLogger) *EventJournal {
	return &EventJournal{logs: logs}
}

// Observe implements EventObserver.
func (j *EventJournal) Observe(ev domain.Event) {
	switch e := ev.(type) {
	case domain.CatalogLoading:
		j.logs.Catalog().Info(string(ev.Kind()))
	case domain.CatalogLoaded:
		j.logs.Catalog().Info(string(ev.Kind()),
			zap.Int("items_added", e.ItemsAdded),
			zap.Bool("had_error", e.HadError))
	case domain.ConnectionError:
		j.logs.Catalog().Info(string(ev.Kind()),
			zap.Bool("is_in_error", e.IsInError))
	case domain.DownloadStarting:
		j.logs.Playback().Info(string(ev.Kind()),
			zap.String("session_id", e.SessionID),
			zap.Int("movie_id", e.MovieID),
			zap.String("title", e.Title),
			zap.String("quality", e.Quality),
			zap.String("save_path", e.SavePath))
	case domain.DownloadBuffered:
		j.logs.Playback().Info(string(ev.Kind()),
			zap.String("session_id", e.SessionID),
			zap.String("file_path", e.FilePath))
	case domain.DownloadStopped:
		j.logs.Playback().Info(string(ev.Kind()),
			zap.String("session_id", e.SessionID),
			zap.Bool("completed", e.Completed))
	case domain.DownloadFailed:
		j.logs.Playback().Info(string(ev.Kind()),
			zap.String("session_id", e.SessionID),
			zap.String("reason", e.Reason))
	case domain.FeatureFailed:
		j.logs.LogAppError("feature disabled",
			zap.String("feature", e.Feature),
			zap.String("reason", e.Reason))
	}
}
