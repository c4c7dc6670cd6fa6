package app

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/garycarlyle/TVShow/internal/domain"
)

// Unbounded is the pagination limit before the end of the catalog is seen.
const Unbounded = math.MaxInt

// PageLoadOutcome describes what a pagination call changed.
type PageLoadOutcome struct {
	Page         int  `json:"page"`
	ItemsAdded   int  `json:"items_added"`
	ItemsRemoved int  `json:"items_removed"`
	Prepended    bool `json:"prepended"`
	FromWindow   bool `json:"from_window"`
	EndOfCatalog bool `json:"end_of_catalog"`
	NoOp         bool `json:"no_op"`
}

// CacheState is a read-only snapshot of the pagination bookkeeping.
type CacheState struct {
	CurrentPage     int    `json:"current_page"`
	PaginationLimit int    `json:"pagination_limit"`
	EndReached      bool   `json:"end_reached"`
	ActiveQuery     string `json:"active_query"`
	LivePages       []int  `json:"live_pages"`
	VisibleItems    int    `json:"visible_items"`
}

type cacheSnapshot struct {
	currentPage     int
	paginationLimit int
	window          pageWindow
}

type operation struct {
	cancel context.CancelFunc
}

// PaginationCache backs an infinite-scroll list with a bounded window of
// catalog pages. Operation bodies run one at a time; Search and Stop may
// cancel the one that is running.
type PaginationCache struct {
	catalog domain.CatalogClient
	config  *domain.CatalogConfig
	emit    domain.Emitter
	logger  *zap.Logger

	opMu sync.Mutex

	cancelMu   sync.Mutex
	inflight   *operation
	generation uint64

	mu              sync.RWMutex
	currentPage     int
	paginationLimit int
	activeQuery     string
	window          pageWindow
}

// NewPaginationCache creates a cache with an empty window.
func NewPaginationCache(
	catalog domain.CatalogClient,
	config *domain.CatalogConfig,
	emit domain.Emitter,
	logger *zap.Logger,
) *PaginationCache {
	if emit == nil {
		emit = func(domain.Event) {}
	}
	return &PaginationCache{
		catalog:         catalog,
		config:          config,
		emit:            emit,
		logger:          logger,
		paginationLimit: Unbounded,
	}
}

// LoadNext appends the next page of results for query. query must match the
// active query set by the last Search ("" when browsing unfiltered).
func (c *PaginationCache) LoadNext(ctx context.Context, query string) (PageLoadOutcome, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	opCtx, done, err := c.begin(ctx, c.currentGeneration())
	if err != nil {
		return PageLoadOutcome{}, err
	}
	defer done()

	c.mu.RLock()
	active := c.activeQuery
	c.mu.RUnlock()
	if query != active {
		return PageLoadOutcome{}, domain.ErrQueryMismatch
	}

	return c.loadNext(opCtx, query)
}

// LoadPrevious brings back the page before the visible ones and evicts the
// forward-most visible page. It needs at least three pages loaded.
func (c *PaginationCache) LoadPrevious(ctx context.Context) (PageLoadOutcome, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	opCtx, done, err := c.begin(ctx, c.currentGeneration())
	if err != nil {
		return PageLoadOutcome{}, err
	}
	defer done()

	return c.loadPrevious(opCtx)
}

// Search switches the list to query. Any running load is cancelled and a
// search that has not started loading yet is superseded. Non-empty queries
// wait for the debounce interval first so that rapid keystrokes coalesce.
func (c *PaginationCache) Search(ctx context.Context, query string) (PageLoadOutcome, error) {
	query = strings.TrimSpace(query)
	gen := c.supersede()

	c.opMu.Lock()
	defer c.opMu.Unlock()

	opCtx, done, err := c.begin(ctx, gen)
	if err != nil {
		return PageLoadOutcome{}, err
	}
	defer done()

	c.mu.Lock()
	c.currentPage = 0
	c.paginationLimit = Unbounded
	c.activeQuery = query
	c.window.reset()
	c.mu.Unlock()

	if query != "" {
		if err := sleepContext(opCtx, c.config.SearchDebounce); err != nil {
			c.logger.Debug("Search superseded during debounce", zap.String("query", query))
			return PageLoadOutcome{}, domain.AsCancelled(err)
		}
	}

	return c.loadNext(opCtx, query)
}

// Stop cancels the running operation. Applied pages are left untouched.
func (c *PaginationCache) Stop() {
	c.supersede()
}

// Items returns the visible list.
func (c *PaginationCache) Items() []*domain.MovieSummary {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.window.items()
}

// State returns the pagination bookkeeping.
func (c *PaginationCache) State() CacheState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return CacheState{
		CurrentPage:     c.currentPage,
		PaginationLimit: c.paginationLimit,
		EndReached:      c.paginationLimit != Unbounded,
		ActiveQuery:     c.activeQuery,
		LivePages:       c.window.liveNumbers(),
		VisibleItems:    len(c.window.items()),
	}
}

// ActiveQuery returns the query of the current browsing session.
func (c *PaginationCache) ActiveQuery() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.activeQuery
}

func (c *PaginationCache) loadNext(ctx context.Context, query string) (PageLoadOutcome, error) {
	c.mu.Lock()
	if c.currentPage >= c.paginationLimit {
		page := c.currentPage
		c.mu.Unlock()
		c.emit(domain.CatalogLoaded{})
		return PageLoadOutcome{Page: page, EndOfCatalog: true, NoOp: true}, nil
	}
	snap := c.snapshotLocked()
	c.currentPage++
	number := c.currentPage
	cached, hit := c.window.get(number)
	c.mu.Unlock()

	c.emit(domain.CatalogLoading{})

	if hit {
		c.mu.Lock()
		c.window.put(cached)
		removed := c.window.park(number - 2)
		c.mu.Unlock()

		c.logger.Debug("Reused retained page", zap.Int("page", number))
		c.emit(domain.CatalogLoaded{ItemsAdded: len(cached.Items)})
		return PageLoadOutcome{
			Page:         number,
			ItemsAdded:   len(cached.Items),
			ItemsRemoved: removed,
			FromWindow:   true,
		}, nil
	}

	raw, err := c.catalog.FetchPage(ctx, query, c.config.PageSize, number)
	if err != nil {
		return c.fail(ctx, snap, number, err)
	}
	if err := ctx.Err(); err != nil {
		return c.fail(ctx, snap, number, err)
	}

	c.mu.Lock()
	page := c.buildPageLocked(number, query, raw)
	c.window.put(page)
	removed := c.window.park(number - 2)
	if len(raw) < c.config.PageSize {
		c.paginationLimit = number
	}
	endReached := c.paginationLimit == number
	c.mu.Unlock()

	c.logger.Debug("Loaded catalog page",
		zap.Int("page", number),
		zap.String("query", query),
		zap.Int("fetched", len(raw)),
		zap.Int("added", len(page.Items)),
		zap.Int("evicted", removed),
		zap.Bool("end_reached", endReached))
	c.emit(domain.CatalogLoaded{ItemsAdded: len(page.Items)})

	if err := c.resolveCovers(ctx, page.Items); err != nil {
		return c.fail(ctx, snap, number, err)
	}

	return PageLoadOutcome{
		Page:         number,
		ItemsAdded:   len(page.Items),
		ItemsRemoved: removed,
		EndOfCatalog: endReached,
	}, nil
}

func (c *PaginationCache) loadPrevious(ctx context.Context) (PageLoadOutcome, error) {
	c.mu.Lock()
	if c.currentPage < 3 {
		page := c.currentPage
		c.mu.Unlock()
		return PageLoadOutcome{Page: page, NoOp: true}, nil
	}
	snap := c.snapshotLocked()
	current := c.currentPage
	target := current - 2
	query := c.activeQuery
	cached, hit := c.window.get(target)
	c.mu.Unlock()

	c.emit(domain.CatalogLoading{})

	page := cached
	if !hit {
		raw, err := c.catalog.FetchPage(ctx, query, c.config.PageSize, target)
		if err != nil {
			return c.fail(ctx, snap, target, err)
		}
		if err := ctx.Err(); err != nil {
			return c.fail(ctx, snap, target, err)
		}
		c.mu.Lock()
		page = c.buildPageLocked(target, query, raw)
		c.mu.Unlock()
	}

	c.mu.Lock()
	c.window.put(page)
	removed := c.window.park(current)
	c.currentPage = current - 1
	c.mu.Unlock()

	c.logger.Debug("Restored previous page",
		zap.Int("page", target),
		zap.Bool("from_window", hit),
		zap.Int("evicted", removed))
	c.emit(domain.CatalogLoaded{ItemsAdded: len(page.Items)})

	if !hit {
		if err := c.resolveCovers(ctx, page.Items); err != nil {
			return c.fail(ctx, snap, target, err)
		}
	}

	return PageLoadOutcome{
		Page:         target,
		ItemsAdded:   len(page.Items),
		ItemsRemoved: removed,
		Prepended:    true,
		FromWindow:   hit,
	}, nil
}

// buildPageLocked filters raw results by title and drops items that are
// already visible or repeated within the page.
func (c *PaginationCache) buildPageLocked(number int, query string, raw []*domain.MovieSummary) *domain.Page {
	seen := c.window.keys()
	needle := strings.ToLower(query)

	items := make([]*domain.MovieSummary, 0, len(raw))
	for _, m := range raw {
		if m == nil {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(m.Title), needle) {
			continue
		}
		if _, dup := seen[m.Key()]; dup {
			continue
		}
		seen[m.Key()] = struct{}{}
		items = append(items, m)
	}
	return &domain.Page{Number: number, Query: query, Items: items}
}

// resolveCovers downloads covers one at a time in list order. Cancellation
// and network failures abort the load; a cover that fails for any other
// reason is skipped and the movie keeps its placeholder.
func (c *PaginationCache) resolveCovers(ctx context.Context, items []*domain.MovieSummary) error {
	for _, m := range items {
		if m.CoverImagePath() != "" || m.CoverImageURL == "" {
			continue
		}
		path, err := c.catalog.FetchCoverImage(ctx, m)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, domain.ErrCancelled) || errors.Is(err, domain.ErrTransientNetwork) {
				return err
			}
			if errors.Is(err, domain.ErrCoverUnavailable) {
				c.logger.Debug("Cover unavailable", zap.Int("movie_id", m.ID), zap.Error(err))
			} else {
				c.logger.Warn("Skipping cover", zap.Int("movie_id", m.ID), zap.Error(err))
			}
			continue
		}
		m.ResolveCover(path)
	}
	return ctx.Err()
}

// fail restores the pre-call state and reports err.
func (c *PaginationCache) fail(ctx context.Context, snap cacheSnapshot, page int, err error) (PageLoadOutcome, error) {
	c.mu.Lock()
	c.currentPage = snap.currentPage
	c.paginationLimit = snap.paginationLimit
	c.window = snap.window
	c.mu.Unlock()

	if ctx.Err() != nil && !errors.Is(err, domain.ErrCancelled) {
		err = domain.AsCancelled(ctx.Err())
	} else {
		err = domain.AsCancelled(err)
	}

	switch {
	case errors.Is(err, domain.ErrCancelled):
		c.logger.Debug("Catalog load cancelled", zap.Int("page", page))
		c.emit(domain.CatalogLoaded{})
	case errors.Is(err, domain.ErrTransientNetwork):
		c.logger.Warn("Catalog load failed", zap.Int("page", page), zap.Error(err))
		c.emit(domain.ConnectionError{IsInError: true})
		c.emit(domain.CatalogLoaded{HadError: true})
	default:
		c.logger.Error("Unexpected catalog failure", zap.Int("page", page), zap.Error(err))
		c.emit(domain.CatalogLoaded{HadError: true})
	}
	return PageLoadOutcome{}, err
}

func (c *PaginationCache) snapshotLocked() cacheSnapshot {
	return cacheSnapshot{
		currentPage:     c.currentPage,
		paginationLimit: c.paginationLimit,
		window:          c.window,
	}
}

// begin registers a cancellable context for the operation about to run.
// It fails with ErrCancelled if gen was superseded by Search or Stop.
func (c *PaginationCache) begin(parent context.Context, gen uint64) (context.Context, func(), error) {
	c.cancelMu.Lock()
	defer c.cancelMu.Unlock()

	if gen != c.generation {
		return nil, nil, domain.ErrCancelled
	}
	ctx, cancel := context.WithCancel(parent)
	op := &operation{cancel: cancel}
	c.inflight = op

	return ctx, func() {
		cancel()
		c.cancelMu.Lock()
		if c.inflight == op {
			c.inflight = nil
		}
		c.cancelMu.Unlock()
	}, nil
}

// supersede cancels the running operation and invalidates pending searches.
func (c *PaginationCache) supersede() uint64 {
	c.cancelMu.Lock()
	defer c.cancelMu.Unlock()

	c.generation++
	if c.inflight != nil {
		c.inflight.cancel()
	}
	return c.generation
}

func (c *PaginationCache) currentGeneration() uint64 {
	c.cancelMu.Lock()
	defer c.cancelMu.Unlock()
	return c.generation
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
