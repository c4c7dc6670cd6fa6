package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/garycarlyle/TVShow/internal/domain"
)

// FileScanner looks under root for a file with one of the given extensions.
// It returns "" when none exists yet.
type FileScanner func(root string, extensions []string) (string, error)

// StartRequest selects what to download and where.
type StartRequest struct {
	SessionID string
	MovieID   int
	Title     string
	Variants  []domain.TorrentVariant
	SavePath  string
}

type downloadRun struct {
	id       string
	movieID  int
	title    string
	variant  domain.TorrentVariant
	savePath string

	cancel context.CancelFunc
	done   chan struct{}

	// handle is written by the drive goroutine before done is closed.
	handle      domain.TorrentHandle
	buffered    bool
	releaseOnce sync.Once
}

// release frees the engine handle once. purge also deletes the downloaded data.
func (r *downloadRun) release(purge bool, logger *zap.Logger) {
	r.releaseOnce.Do(func() {
		if r.handle == nil {
			return
		}
		var err error
		if purge {
			err = r.handle.CancelAndPurge()
		} else {
			err = r.handle.Close()
		}
		if err != nil {
			logger.Warn("Failed to release torrent",
				zap.String("session_id", r.id),
				zap.Bool("purge", purge),
				zap.Error(err))
		}
	})
}

// DownloadSession drives one progressive download at a time: it starts the
// transfer, polls its status, and reports when enough of the file is on disk
// to start playback.
type DownloadSession struct {
	engine domain.TorrentEngine
	scan   FileScanner
	config *domain.PlaybackConfig
	emit   domain.Emitter
	logger *zap.Logger

	// startMu serializes Start and Stop.
	startMu sync.Mutex

	mu       sync.Mutex
	run      *downloadRun
	snapshot domain.PlaybackSnapshot
}

// NewDownloadSession creates an idle session controller.
func NewDownloadSession(
	engine domain.TorrentEngine,
	scan FileScanner,
	config *domain.PlaybackConfig,
	emit domain.Emitter,
	logger *zap.Logger,
) *DownloadSession {
	if emit == nil {
		emit = func(domain.Event) {}
	}
	return &DownloadSession{
		engine:   engine,
		scan:     scan,
		config:   config,
		emit:     emit,
		logger:   logger,
		snapshot: domain.PlaybackSnapshot{State: domain.StateIdle},
	}
}

// Start stops any running transfer, then downloads the smallest variant of
// req sequentially into req.SavePath. It returns once the new run is set up;
// progress is reported through events.
func (s *DownloadSession) Start(ctx context.Context, req StartRequest) error {
	variant, err := domain.SmallestVariant(req.Variants)
	if err != nil {
		return err
	}
	if req.SessionID == "" {
		req.SessionID = domain.NewSessionID()
	}

	s.startMu.Lock()
	defer s.startMu.Unlock()

	s.stopLocked()

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	run := &downloadRun{
		id:       req.SessionID,
		movieID:  req.MovieID,
		title:    req.Title,
		variant:  variant,
		savePath: req.SavePath,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	s.mu.Lock()
	s.run = run
	s.snapshot = domain.PlaybackSnapshot{
		SessionID: run.id,
		MovieID:   run.movieID,
		Title:     run.title,
		Quality:   variant.Quality,
		State:     domain.StateStarting,
		SavePath:  run.savePath,
	}
	s.mu.Unlock()

	s.logger.Info("Starting download",
		zap.String("session_id", run.id),
		zap.Int("movie_id", run.movieID),
		zap.String("quality", variant.Quality),
		zap.Int64("size_bytes", variant.SizeBytes),
		zap.String("save_path", run.savePath))

	s.emit(domain.DownloadStarting{
		SessionID: run.id,
		MovieID:   run.movieID,
		Title:     run.title,
		Quality:   variant.Quality,
		Source:    variant.URL,
		SavePath:  run.savePath,
	})

	go s.drive(runCtx, run)
	return nil
}

// Stop cancels the running transfer and deletes its partial data. It is a
// no-op when nothing is running.
func (s *DownloadSession) Stop() {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	s.stopLocked()
}

// Snapshot returns the current state.
func (s *DownloadSession) Snapshot() domain.PlaybackSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot
}

func (s *DownloadSession) stopLocked() {
	s.mu.Lock()
	run := s.run
	if run == nil {
		s.mu.Unlock()
		return
	}
	s.run = nil
	s.snapshot.State = domain.StateStopped
	s.mu.Unlock()

	run.cancel()
	<-run.done

	s.logger.Info("Download stopped", zap.String("session_id", run.id))

	// Delivery is asynchronous. The data may already be gone by the time
	// consumers see this event, so they must tolerate a missing media file.
	s.emit(domain.DownloadStopped{SessionID: run.id})
	run.release(true, s.logger)
}

func (s *DownloadSession) drive(ctx context.Context, run *downloadRun) {
	defer close(run.done)

	handle, err := s.engine.Start(ctx, domain.TorrentRequest{
		Source:     run.variant.URL,
		SavePath:   run.savePath,
		Sequential: true,
	})
	if handle != nil {
		run.handle = handle
	}
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		if errors.Is(err, domain.ErrTransientNetwork) {
			s.emit(domain.ConnectionError{IsInError: true})
		}
		s.fail(run, err)
		return
	}

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			return
		}
		if finished := s.tick(ctx, run); finished {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// tick polls the engine once and reports whether the run is over.
func (s *DownloadSession) tick(ctx context.Context, run *downloadRun) bool {
	status, err := run.handle.Status(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return true
		}
		if errors.Is(err, domain.ErrEngineFatal) {
			s.fail(run, err)
			return true
		}
		s.logger.Warn("Torrent status poll failed",
			zap.String("session_id", run.id),
			zap.Error(err))
		return false
	}

	percent := status.Progress * 100
	if percent > 100 {
		percent = 100
	}

	s.mu.Lock()
	if s.run != run {
		s.mu.Unlock()
		return true
	}
	if percent < s.snapshot.Progress {
		percent = s.snapshot.Progress
	}
	s.snapshot.Progress = percent
	s.snapshot.RateBytesPerSec = status.RateBytesPerSec
	if s.snapshot.State == domain.StateStarting {
		s.snapshot.State = domain.StateDownloading
	}
	buffered := run.buffered
	s.mu.Unlock()

	s.emit(domain.DownloadProgress{
		SessionID: run.id,
		Percent:   percent,
		RateKBps:  float64(status.RateBytesPerSec) / 1024,
	})

	if !buffered && percent >= s.config.BufferingThreshold {
		s.checkBuffered(run)
	}

	if status.IsComplete {
		if s.finish(run, domain.StateStopped, "") {
			s.logger.Info("Download complete", zap.String("session_id", run.id))
			s.emit(domain.DownloadStopped{SessionID: run.id, Completed: true})
			run.release(false, s.logger)
		}
		return true
	}
	return false
}

// checkBuffered looks for a playable file in the session's save path.
// Scan errors mean "not yet".
func (s *DownloadSession) checkBuffered(run *downloadRun) {
	path, err := s.scan(run.savePath, s.config.PlayableExtensions)
	if err != nil {
		s.logger.Debug("Playable file scan failed",
			zap.String("session_id", run.id),
			zap.Error(err))
		return
	}
	if path == "" {
		return
	}

	s.mu.Lock()
	if s.run != run || run.buffered {
		s.mu.Unlock()
		return
	}
	run.buffered = true
	s.snapshot.State = domain.StateBuffered
	s.snapshot.BufferedFilePath = path
	s.mu.Unlock()

	s.logger.Info("Download buffered",
		zap.String("session_id", run.id),
		zap.String("file", path))
	s.emit(domain.DownloadBuffered{SessionID: run.id, FilePath: path})
}

func (s *DownloadSession) fail(run *downloadRun, err error) {
	if !s.finish(run, domain.StateFailed, err.Error()) {
		return
	}
	s.logger.Error("Download failed",
		zap.String("session_id", run.id),
		zap.Error(err))
	s.emit(domain.DownloadFailed{SessionID: run.id, Reason: err.Error()})
	run.release(true, s.logger)
}

// finish ends run in state. It returns false if run was already ended.
func (s *DownloadSession) finish(run *downloadRun, state domain.DownloadState, msg string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.run != run {
		return false
	}
	s.run = nil
	s.snapshot.State = state
	s.snapshot.Error = msg
	return true
}
