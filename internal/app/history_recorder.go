package app

import (
	"sync"

	"go.uber.org/zap"

	"github.com/garycarlyle/TVShow/internal/domain"
)

// HistoryRecorder persists playback sessions from download events.
// Progress is kept in memory and written with the next state change.
type HistoryRecorder struct {
	repo   domain.PlaybackRepository
	logger *zap.Logger

	mu       sync.Mutex
	progress map[string]float64
}

// NewHistoryRecorder creates a new history recorder
func NewHistoryRecorder(repo domain.PlaybackRepository, logger *zap.Logger) *HistoryRecorder {
	return &HistoryRecorder{
		repo:     repo,
		logger:   logger,
		progress: make(map[string]float64),
	}
}

// Observe implements EventObserver.
func (h *HistoryRecorder) Observe(ev domain.Event) {
	switch e := ev.(type) {
	case domain.DownloadStarting:
		if err := h.repo.Create(domain.NewPlaybackRecord(e)); err != nil {
			h.logger.Error("Failed to record playback session",
				zap.String("session_id", e.SessionID),
				zap.Error(err))
		}
	case domain.DownloadProgress:
		h.mu.Lock()
		if e.Percent > h.progress[e.SessionID] {
			h.progress[e.SessionID] = e.Percent
		}
		h.mu.Unlock()
	case domain.DownloadBuffered:
		h.update(e.SessionID, false, func(r *domain.PlaybackRecord) {
			r.MarkBuffered(e.FilePath)
		})
	case domain.DownloadStopped:
		h.update(e.SessionID, true, func(r *domain.PlaybackRecord) {
			r.MarkStopped(e.Completed)
		})
	case domain.DownloadFailed:
		h.update(e.SessionID, true, func(r *domain.PlaybackRecord) {
			r.MarkFailed(e.Reason)
		})
	}
}

func (h *HistoryRecorder) update(sessionID string, final bool, mutate func(*domain.PlaybackRecord)) {
	h.mu.Lock()
	progress := h.progress[sessionID]
	if final {
		delete(h.progress, sessionID)
	}
	h.mu.Unlock()

	record, err := h.repo.FindByID(sessionID)
	if err != nil {
		h.logger.Warn("Playback session not found in history",
			zap.String("session_id", sessionID),
			zap.Error(err))
		return
	}

	record.UpdateProgress(progress)
	mutate(record)

	if err := h.repo.Update(record); err != nil {
		h.logger.Error("Failed to update playback session",
			zap.String("session_id", sessionID),
			zap.Error(err))
	}
}
