package handlers

import (
	"context"

	"github.com/garycarlyle/TVShow/internal/app"
	"github.com/garycarlyle/TVShow/internal/domain"
)

// CatalogService is the part of the orchestrator the catalog routes use.
type CatalogService interface {
	LoadNext(ctx context.Context) (app.PageLoadOutcome, error)
	LoadNextFor(ctx context.Context, query string) (app.PageLoadOutcome, error)
	LoadPrevious(ctx context.Context) (app.PageLoadOutcome, error)
	Search(ctx context.Context, query string) (app.PageLoadOutcome, error)
	StopLoading()
	RetryAfterConnectionError(ctx context.Context) (app.PageLoadOutcome, error)
	Items() []domain.MovieView
	CatalogState() app.CacheState
	OpenMovie(ctx context.Context, id int) (*domain.MovieDetails, error)
}

// PlaybackService starts, stops and reports the download session.
type PlaybackService interface {
	Play(ctx context.Context, movieID int) (domain.PlaybackSnapshot, error)
	StopPlayback() error
	Playback() domain.PlaybackSnapshot
}

// EventSource hands out event subscriptions.
type EventSource interface {
	Subscribe() (<-chan domain.Event, func())
}

// FeatureStatus reports features disabled by unexpected failures.
type FeatureStatus interface {
	Disabled() map[string]string
}

// Service is everything the HTTP layer needs. *app.Orchestrator implements it.
type Service interface {
	CatalogService
	PlaybackService
	EventSource
	FeatureStatus
}

var _ Service = (*app.Orchestrator)(nil)
