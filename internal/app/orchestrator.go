package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/garycarlyle/TVShow/internal/domain"
)

// Feature names used when a component is disabled after an unexpected failure.
const (
	FeatureCatalog  = "catalog"
	FeaturePlayback = "playback"
)

const (
	eventBufferSize      = 256
	subscriberBufferSize = 64
)

// EventObserver receives every event on the dispatcher goroutine.
type EventObserver interface {
	Observe(ev domain.Event)
}

// ObserverFunc adapts a function to EventObserver.
type ObserverFunc func(ev domain.Event)

// Observe calls f(ev).
func (f ObserverFunc) Observe(ev domain.Event) { f(ev) }

// Orchestrator connects the catalog to the pagination cache and the torrent
// engine to the download session, and delivers their events in order.
type Orchestrator struct {
	catalog domain.CatalogClient
	cache   *PaginationCache
	session *DownloadSession
	config  *domain.Config
	logger  *zap.Logger

	events    chan domain.Event
	closed    chan struct{}
	closeOnce sync.Once
	observers []EventObserver

	subMu       sync.RWMutex
	subscribers map[int]chan domain.Event
	nextSub     int

	mu          sync.Mutex
	disabled    map[string]string
	lastDetails *domain.MovieDetails
}

// NewOrchestrator wires the catalog and playback components.
func NewOrchestrator(
	catalog domain.CatalogClient,
	engine domain.TorrentEngine,
	scan FileScanner,
	config *domain.Config,
	logger *zap.Logger,
	observers ...EventObserver,
) *Orchestrator {
	o := &Orchestrator{
		catalog:     catalog,
		config:      config,
		logger:      logger,
		events:      make(chan domain.Event, eventBufferSize),
		closed:      make(chan struct{}),
		observers:   observers,
		subscribers: make(map[int]chan domain.Event),
		disabled:    make(map[string]string),
	}
	o.cache = NewPaginationCache(catalog, &config.Catalog, o.publish, logger.Named(FeatureCatalog))
	o.session = NewDownloadSession(engine, scan, &config.Playback, o.publish, logger.Named(FeaturePlayback))
	return o
}

// Run delivers events until ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-o.events:
			o.dispatch(ev)
		}
	}
}

// Shutdown stops loading and playback. Run should still be running so the
// resulting events are delivered.
func (o *Orchestrator) Shutdown() {
	o.cache.Stop()
	o.session.Stop()
	o.closeOnce.Do(func() { close(o.closed) })
}

// Subscribe returns a channel of events and a function to unsubscribe.
// Slow subscribers miss events rather than stall the dispatcher.
func (o *Orchestrator) Subscribe() (<-chan domain.Event, func()) {
	o.subMu.Lock()
	defer o.subMu.Unlock()

	id := o.nextSub
	o.nextSub++
	ch := make(chan domain.Event, subscriberBufferSize)
	o.subscribers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			o.subMu.Lock()
			delete(o.subscribers, id)
			o.subMu.Unlock()
			close(ch)
		})
	}
}

// LoadNext appends the next page for the active query.
func (o *Orchestrator) LoadNext(ctx context.Context) (PageLoadOutcome, error) {
	return o.LoadNextFor(ctx, o.cache.ActiveQuery())
}

// LoadNextFor appends the next page when query is the active query and
// fails with ErrQueryMismatch otherwise.
func (o *Orchestrator) LoadNextFor(ctx context.Context, query string) (PageLoadOutcome, error) {
	var out PageLoadOutcome
	err := o.guard(FeatureCatalog, func() error {
		var err error
		out, err = o.cache.LoadNext(ctx, query)
		return err
	})
	return out, err
}

// LoadPrevious scrolls the window back by one page.
func (o *Orchestrator) LoadPrevious(ctx context.Context) (PageLoadOutcome, error) {
	var out PageLoadOutcome
	err := o.guard(FeatureCatalog, func() error {
		var err error
		out, err = o.cache.LoadPrevious(ctx)
		return err
	})
	return out, err
}

// Search replaces the list with results for query.
func (o *Orchestrator) Search(ctx context.Context, query string) (PageLoadOutcome, error) {
	var out PageLoadOutcome
	err := o.guard(FeatureCatalog, func() error {
		var err error
		out, err = o.cache.Search(ctx, query)
		return err
	})
	return out, err
}

// StopLoading cancels the running catalog operation.
func (o *Orchestrator) StopLoading() {
	o.cache.Stop()
}

// RetryAfterConnectionError clears the connection error and loads again.
func (o *Orchestrator) RetryAfterConnectionError(ctx context.Context) (PageLoadOutcome, error) {
	o.publish(domain.ConnectionError{IsInError: false})
	return o.LoadNext(ctx)
}

// Items returns the visible catalog entries.
func (o *Orchestrator) Items() []domain.MovieView {
	items := o.cache.Items()
	out := make([]domain.MovieView, 0, len(items))
	for _, m := range items {
		out = append(out, m.View())
	}
	return out
}

// CatalogState returns the pagination bookkeeping.
func (o *Orchestrator) CatalogState() CacheState {
	return o.cache.State()
}

// OpenMovie fetches a movie's details and its poster.
func (o *Orchestrator) OpenMovie(ctx context.Context, id int) (*domain.MovieDetails, error) {
	var details *domain.MovieDetails
	err := o.guard(FeatureCatalog, func() error {
		var err error
		details, err = o.fetchDetails(ctx, id)
		if err != nil {
			return err
		}

		// details is shared with the cache and other callers; fill in a copy.
		movie := *details
		details = &movie

		path, err := o.catalog.FetchPoster(ctx, details)
		switch {
		case err == nil:
			details.PosterImagePath = path
		case ctx.Err() != nil || errors.Is(err, domain.ErrCancelled) || errors.Is(err, domain.ErrTransientNetwork):
			return o.reportCatalogError(err)
		case errors.Is(err, domain.ErrCoverUnavailable):
			o.logger.Debug("Poster unavailable", zap.Int("movie_id", id))
		default:
			o.logger.Warn("Skipping poster", zap.Int("movie_id", id), zap.Error(err))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return details, nil
}

// Play starts streaming movieID, replacing any current download.
func (o *Orchestrator) Play(ctx context.Context, movieID int) (domain.PlaybackSnapshot, error) {
	var snapshot domain.PlaybackSnapshot
	err := o.guard(FeaturePlayback, func() error {
		details, err := o.fetchDetails(ctx, movieID)
		if err != nil {
			return err
		}

		sessionID := domain.NewSessionID()
		err = o.session.Start(ctx, StartRequest{
			SessionID: sessionID,
			MovieID:   details.ID,
			Title:     details.Title,
			Variants:  details.Torrents,
			SavePath:  filepath.Join(o.config.Playback.DownloadsDir, sessionID),
		})
		if err != nil {
			return err
		}
		snapshot = o.session.Snapshot()
		return nil
	})
	return snapshot, err
}

// StopPlayback stops the current download and removes its data.
func (o *Orchestrator) StopPlayback() error {
	return o.guard(FeaturePlayback, func() error {
		o.session.Stop()
		return nil
	})
}

// Playback returns the download session state.
func (o *Orchestrator) Playback() domain.PlaybackSnapshot {
	return o.session.Snapshot()
}

// Disabled returns the features turned off by unexpected failures, with the reason.
func (o *Orchestrator) Disabled() map[string]string {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make(map[string]string, len(o.disabled))
	for k, v := range o.disabled {
		out[k] = v
	}
	return out
}

func (o *Orchestrator) fetchDetails(ctx context.Context, id int) (*domain.MovieDetails, error) {
	o.mu.Lock()
	cached := o.lastDetails
	o.mu.Unlock()
	if cached != nil && cached.ID == id {
		return cached, nil
	}

	details, err := o.catalog.FetchMovie(ctx, id)
	if err != nil {
		return nil, o.reportCatalogError(err)
	}

	o.mu.Lock()
	o.lastDetails = details
	o.mu.Unlock()
	return details, nil
}

// reportCatalogError raises the connection error signal for network failures.
func (o *Orchestrator) reportCatalogError(err error) error {
	err = domain.AsCancelled(err)
	if errors.Is(err, domain.ErrTransientNetwork) {
		o.publish(domain.ConnectionError{IsInError: true})
	}
	return err
}

// guard runs fn for feature. Panics and errors outside the known failure
// categories disable the feature.
func (o *Orchestrator) guard(feature string, fn func() error) (err error) {
	o.mu.Lock()
	reason, off := o.disabled[feature]
	o.mu.Unlock()
	if off {
		return fmt.Errorf("%s (%s): %w", feature, reason, domain.ErrFeatureDisabled)
	}

	defer func() {
		if r := recover(); r != nil {
			err = o.disable(feature, fmt.Errorf("panic: %v", r))
		}
	}()

	err = fn()
	if err != nil && !domain.IsExpected(err) {
		return o.disable(feature, err)
	}
	return err
}

func (o *Orchestrator) disable(feature string, cause error) error {
	o.mu.Lock()
	o.disabled[feature] = cause.Error()
	o.mu.Unlock()

	o.logger.Error("Feature disabled after unexpected failure",
		zap.String("feature", feature),
		zap.Error(cause),
		zap.Stack("stack"))
	o.publish(domain.FeatureFailed{Feature: feature, Reason: cause.Error()})

	return fmt.Errorf("%s: %w: %v", feature, domain.ErrFeatureDisabled, cause)
}

// publish queues ev for the dispatcher.
func (o *Orchestrator) publish(ev domain.Event) {
	select {
	case o.events <- ev:
	case <-o.closed:
	}
}

func (o *Orchestrator) dispatch(ev domain.Event) {
	for _, obs := range o.observers {
		o.observe(obs, ev)
	}

	o.subMu.RLock()
	defer o.subMu.RUnlock()
	for id, ch := range o.subscribers {
		select {
		case ch <- ev:
		default:
			o.logger.Warn("Dropping event for slow subscriber",
				zap.Int("subscriber", id),
				zap.String("event", string(ev.Kind())))
		}
	}
}

func (o *Orchestrator) observe(obs EventObserver, ev domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("Event observer panicked",
				zap.String("event", string(ev.Kind())),
				zap.Any("panic", r))
		}
	}()
	obs.Observe(ev)
}
