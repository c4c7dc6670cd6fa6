package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garycarlyle/TVShow/internal/domain"
)

type fetchCall struct {
	query string
	page  int
}

// mockCatalog is an in-memory CatalogClient
type mockCatalog struct {
	mu         sync.Mutex
	pageFn     func(query string, page int) ([]*domain.MovieSummary, error)
	coverFn    func(m *domain.MovieSummary) (string, error)
	details    map[int]*domain.MovieDetails
	calls      []fetchCall
	coverCalls []int

	// block, when set, makes FetchPage wait for it or for cancellation
	block   chan struct{}
	started chan fetchCall
}

func newMockCatalog(pageFn func(query string, page int) ([]*domain.MovieSummary, error)) *mockCatalog {
	return &mockCatalog{
		pageFn:  pageFn,
		details: make(map[int]*domain.MovieDetails),
		started: make(chan fetchCall, 16),
	}
}

func (m *mockCatalog) FetchPage(ctx context.Context, query string, pageSize, page int) ([]*domain.MovieSummary, error) {
	m.mu.Lock()
	m.calls = append(m.calls, fetchCall{query: query, page: page})
	block := m.block
	m.mu.Unlock()

	select {
	case m.started <- fetchCall{query: query, page: page}:
	default:
	}

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, domain.AsCancelled(ctx.Err())
		}
	}
	return m.pageFn(query, page)
}

func (m *mockCatalog) FetchCoverImage(ctx context.Context, movie *domain.MovieSummary) (string, error) {
	m.mu.Lock()
	m.coverCalls = append(m.coverCalls, movie.ID)
	fn := m.coverFn
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", domain.AsCancelled(err)
	}
	if fn != nil {
		return fn(movie)
	}
	return fmt.Sprintf("/covers/%d.jpg", movie.ID), nil
}

func (m *mockCatalog) FetchMovie(ctx context.Context, id int) (*domain.MovieDetails, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.details[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return d, nil
}

func (m *mockCatalog) FetchPoster(ctx context.Context, movie *domain.MovieDetails) (string, error) {
	return fmt.Sprintf("/posters/%d.jpg", movie.ID), nil
}

func (m *mockCatalog) fetchCalls() []fetchCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]fetchCall, len(m.calls))
	copy(out, m.calls)
	return out
}

func (m *mockCatalog) setBlock(ch chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.block = ch
}

// catalogOf serves sizes[page-1] movies per page; ids are unique per page.
func catalogOf(title string, sizes ...int) func(string, int) ([]*domain.MovieSummary, error) {
	return func(query string, page int) ([]*domain.MovieSummary, error) {
		if page < 1 || page > len(sizes) {
			return nil, nil
		}
		return makeMovies(title, page*100, sizes[page-1]), nil
	}
}

func makeMovies(title string, firstID, n int) []*domain.MovieSummary {
	out := make([]*domain.MovieSummary, 0, n)
	for i := 0; i < n; i++ {
		id := firstID + i
		out = append(out, &domain.MovieSummary{
			ID:               id,
			DateUploadedUnix: int64(1_400_000_000 + id),
			Title:            fmt.Sprintf("%s %d", title, id),
			CoverImageURL:    fmt.Sprintf("https://img.example/%d.jpg", id),
		})
	}
	return out
}

func newTestCache(catalog domain.CatalogClient, rec *eventRecorder) *PaginationCache {
	config := &domain.CatalogConfig{
		PageSize:       20,
		SearchDebounce: 30 * time.Millisecond,
	}
	return NewPaginationCache(catalog, config, rec.emit, zap.NewNop())
}

func assertWindowInvariant(t *testing.T, cache *PaginationCache) {
	t.Helper()

	state := cache.State()
	assert.LessOrEqual(t, len(state.LivePages), 3)

	var expected []*domain.MovieSummary
	for _, n := range state.LivePages {
		p, ok := cache.window.get(n)
		require.True(t, ok)
		expected = append(expected, p.Items...)
	}
	items := cache.Items()
	assert.Equal(t, expected, items)

	seen := make(map[domain.MovieKey]bool)
	for _, m := range items {
		assert.False(t, seen[m.Key()], "duplicate key %v", m.Key())
		seen[m.Key()] = true
	}
}

func TestLoadNext_SlidingWindow(t *testing.T) {
	catalog := newMockCatalog(catalogOf("Film", 20, 20, 20, 20, 20))
	rec := newEventRecorder()
	cache := newTestCache(catalog, rec)
	ctx := context.Background()

	for page := 1; page <= 5; page++ {
		outcome, err := cache.LoadNext(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, page, outcome.Page)
		assert.Equal(t, 20, outcome.ItemsAdded)
		assertWindowInvariant(t, cache)
	}

	state := cache.State()
	assert.Equal(t, 5, state.CurrentPage)
	assert.Equal(t, []int{4, 5}, state.LivePages)
	assert.Equal(t, 40, len(cache.Items()))
	assert.Equal(t, 400, cache.Items()[0].ID)
	assert.Equal(t, 5, rec.count(domain.KindCatalogLoading))
	assert.Equal(t, 5, rec.count(domain.KindCatalogLoaded))
}

func TestLoadNext_ResolvesCoversInOrder(t *testing.T) {
	catalog := newMockCatalog(catalogOf("Film", 3))
	cache := newTestCache(catalog, newEventRecorder())

	_, err := cache.LoadNext(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, []int{100, 101, 102}, catalog.coverCalls)
	for _, m := range cache.Items() {
		assert.Equal(t, fmt.Sprintf("/covers/%d.jpg", m.ID), m.CoverImagePath())
	}
}

func TestLoadNext_EndOfCatalog(t *testing.T) {
	catalog := newMockCatalog(catalogOf("Film", 20, 7))
	rec := newEventRecorder()
	cache := newTestCache(catalog, rec)
	ctx := context.Background()

	_, err := cache.LoadNext(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, Unbounded, cache.State().PaginationLimit)

	outcome, err := cache.LoadNext(ctx, "")
	require.NoError(t, err)
	assert.True(t, outcome.EndOfCatalog)
	assert.Equal(t, 7, outcome.ItemsAdded)
	assert.Equal(t, 2, cache.State().PaginationLimit)
	assert.Equal(t, 27, len(cache.Items()))

	before := cache.Items()
	for i := 0; i < 3; i++ {
		outcome, err = cache.LoadNext(ctx, "")
		require.NoError(t, err)
		assert.True(t, outcome.NoOp)
		assert.Equal(t, 2, cache.State().CurrentPage)
		assert.Equal(t, before, cache.Items())
	}

	assert.Len(t, catalog.fetchCalls(), 2)
	assert.Equal(t, 5, rec.count(domain.KindCatalogLoaded))
}

func TestLoadNext_DeduplicatesCompositeKey(t *testing.T) {
	catalog := newMockCatalog(func(query string, page int) ([]*domain.MovieSummary, error) {
		if page == 1 {
			return makeMovies("Film", 1, 20), nil
		}
		items := makeMovies("Film", 100, 18)
		dup := makeMovies("Film", 1, 1)[0]
		reupload := makeMovies("Film", 2, 1)[0]
		reupload.DateUploadedUnix++
		items = append(items, dup, reupload)
		return items, nil
	})
	cache := newTestCache(catalog, newEventRecorder())
	ctx := context.Background()

	_, err := cache.LoadNext(ctx, "")
	require.NoError(t, err)
	outcome, err := cache.LoadNext(ctx, "")
	require.NoError(t, err)

	assert.Equal(t, 19, outcome.ItemsAdded)
	assert.Equal(t, 39, len(cache.Items()))
	assertWindowInvariant(t, cache)
}

func TestLoadNext_QueryMismatch(t *testing.T) {
	catalog := newMockCatalog(catalogOf("Film", 20))
	cache := newTestCache(catalog, newEventRecorder())

	_, err := cache.LoadNext(context.Background(), "alien")
	assert.ErrorIs(t, err, domain.ErrQueryMismatch)
	assert.Equal(t, 0, cache.State().CurrentPage)
	assert.Empty(t, catalog.fetchCalls())
}

func TestLoadNext_CancelRollsBack(t *testing.T) {
	catalog := newMockCatalog(catalogOf("Film", 20, 20, 20, 20))
	rec := newEventRecorder()
	cache := newTestCache(catalog, rec)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := cache.LoadNext(ctx, "")
		require.NoError(t, err)
	}
	<-catalog.started
	<-catalog.started
	<-catalog.started

	stateBefore := cache.State()
	itemsBefore := cache.Items()
	windowBefore := cache.window

	catalog.setBlock(make(chan struct{}))
	result := make(chan error, 1)
	go func() {
		_, err := cache.LoadNext(ctx, "")
		result <- err
	}()

	<-catalog.started
	cache.Stop()

	select {
	case err := <-result:
		assert.ErrorIs(t, err, domain.ErrCancelled)
	case <-time.After(2 * time.Second):
		t.Fatal("LoadNext did not return after Stop")
	}

	assert.Equal(t, stateBefore, cache.State())
	assert.Equal(t, itemsBefore, cache.Items())
	assert.Equal(t, windowBefore, cache.window)
	assert.Equal(t, 0, rec.count(domain.KindConnectionError))
}

func TestLoadNext_TransientErrorRollsBack(t *testing.T) {
	failing := false
	catalog := newMockCatalog(func(query string, page int) ([]*domain.MovieSummary, error) {
		if failing {
			return nil, fmt.Errorf("list movies: %w", domain.ErrTransientNetwork)
		}
		return makeMovies("Film", page*100, 20), nil
	})
	rec := newEventRecorder()
	cache := newTestCache(catalog, rec)
	ctx := context.Background()

	_, err := cache.LoadNext(ctx, "")
	require.NoError(t, err)
	before := cache.State()

	failing = true
	_, err = cache.LoadNext(ctx, "")
	assert.ErrorIs(t, err, domain.ErrTransientNetwork)
	assert.Equal(t, before, cache.State())

	errs := rec.ofKind(domain.KindConnectionError)
	require.Len(t, errs, 1)
	assert.Equal(t, domain.ConnectionError{IsInError: true}, errs[0])

	loaded := rec.ofKind(domain.KindCatalogLoaded)
	assert.Equal(t, domain.CatalogLoaded{HadError: true}, loaded[len(loaded)-1])

	failing = false
	outcome, err := cache.LoadNext(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 2, outcome.Page)
}

func TestLoadNext_CoverFailureRollsBack(t *testing.T) {
	catalog := newMockCatalog(catalogOf("Film", 20, 20))
	catalog.coverFn = func(m *domain.MovieSummary) (string, error) {
		if m.ID == 205 {
			return "", fmt.Errorf("cover: %w", domain.ErrTransientNetwork)
		}
		return "/covers/ok.jpg", nil
	}
	cache := newTestCache(catalog, newEventRecorder())
	ctx := context.Background()

	_, err := cache.LoadNext(ctx, "")
	require.NoError(t, err)
	before := cache.Items()

	_, err = cache.LoadNext(ctx, "")
	assert.ErrorIs(t, err, domain.ErrTransientNetwork)
	assert.Equal(t, 1, cache.State().CurrentPage)
	assert.Equal(t, before, cache.Items())
}

func TestLoadNext_CoverUnavailableKeepsItem(t *testing.T) {
	catalog := newMockCatalog(catalogOf("Film", 5))
	catalog.coverFn = func(m *domain.MovieSummary) (string, error) {
		if m.ID == 102 {
			return "", domain.ErrCoverUnavailable
		}
		return fmt.Sprintf("/covers/%d.jpg", m.ID), nil
	}
	cache := newTestCache(catalog, newEventRecorder())

	outcome, err := cache.LoadNext(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 5, outcome.ItemsAdded)

	items := cache.Items()
	assert.Empty(t, items[2].CoverImagePath())
	assert.NotEmpty(t, items[3].CoverImagePath())
}

func TestLoadNext_UnclassifiedCoverErrorKeepsPage(t *testing.T) {
	catalog := newMockCatalog(catalogOf("Film", 5))
	catalog.coverFn = func(m *domain.MovieSummary) (string, error) {
		if m.ID == 101 {
			return "", fmt.Errorf("writing cover: %w", domain.ErrFileSystemTransient)
		}
		if m.ID == 103 {
			return "", fmt.Errorf("unexpected image payload")
		}
		return fmt.Sprintf("/covers/%d.jpg", m.ID), nil
	}
	cache := newTestCache(catalog, newEventRecorder())

	outcome, err := cache.LoadNext(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.Page)
	assert.Equal(t, 5, outcome.ItemsAdded)

	items := cache.Items()
	require.Len(t, items, 5)
	assert.Empty(t, items[1].CoverImagePath())
	assert.Empty(t, items[3].CoverImagePath())
	assert.Equal(t, "/covers/104.jpg", items[4].CoverImagePath())
}

func TestSearch_FiltersOffTargetResults(t *testing.T) {
	catalog := newMockCatalog(func(query string, page int) ([]*domain.MovieSummary, error) {
		items := makeMovies("Alien", 1, 3)
		items = append(items, makeMovies("Aliens", 10, 2)...)
		items = append(items, makeMovies("Predator", 20, 4)...)
		return items, nil
	})
	cache := newTestCache(catalog, newEventRecorder())

	outcome, err := cache.Search(context.Background(), "alien")
	require.NoError(t, err)

	assert.Equal(t, 5, outcome.ItemsAdded)
	assert.True(t, outcome.EndOfCatalog)
	for _, m := range cache.Items() {
		assert.True(t, strings.Contains(strings.ToLower(m.Title), "alien"))
	}
	assert.Equal(t, []fetchCall{{query: "alien", page: 1}}, catalog.fetchCalls())
}

func TestSearch_NewerSearchSupersedes(t *testing.T) {
	catalog := newMockCatalog(func(query string, page int) ([]*domain.MovieSummary, error) {
		return makeMovies(query, page*100, 20), nil
	})
	cache := newTestCache(catalog, newEventRecorder())
	cache.config.SearchDebounce = 200 * time.Millisecond
	ctx := context.Background()

	_, err := cache.LoadNext(ctx, "")
	require.NoError(t, err)
	<-catalog.started

	first := make(chan error, 1)
	go func() {
		_, err := cache.Search(ctx, "alien")
		first <- err
	}()
	require.Eventually(t, func() bool {
		return cache.ActiveQuery() == "alien"
	}, time.Second, 5*time.Millisecond)

	outcome, err := cache.Search(ctx, "matrix")
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.Page)
	assert.ErrorIs(t, <-first, domain.ErrCancelled)

	calls := catalog.fetchCalls()
	assert.Equal(t, fetchCall{query: "matrix", page: 1}, calls[len(calls)-1])
	for _, c := range calls[1:] {
		assert.Equal(t, "matrix", c.query)
	}
	assert.Len(t, cache.Items(), 20)
	for _, m := range cache.Items() {
		assert.Contains(t, strings.ToLower(m.Title), "matrix")
	}
}

func TestSearch_EmptyQueryReloadsWithoutDebounce(t *testing.T) {
	catalog := newMockCatalog(catalogOf("Film", 20, 20))
	cache := newTestCache(catalog, newEventRecorder())
	cache.config.SearchDebounce = time.Hour
	ctx := context.Background()

	_, err := cache.LoadNext(ctx, "")
	require.NoError(t, err)
	_, err = cache.LoadNext(ctx, "")
	require.NoError(t, err)

	outcome, err := cache.Search(ctx, "  ")
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.Page)
	assert.Equal(t, []int{1}, cache.State().LivePages)
}

func TestLoadPrevious_RequiresThreePages(t *testing.T) {
	catalog := newMockCatalog(catalogOf("Film", 20, 20))
	cache := newTestCache(catalog, newEventRecorder())
	ctx := context.Background()

	_, err := cache.LoadNext(ctx, "")
	require.NoError(t, err)
	_, err = cache.LoadNext(ctx, "")
	require.NoError(t, err)

	outcome, err := cache.LoadPrevious(ctx)
	require.NoError(t, err)
	assert.True(t, outcome.NoOp)
	assert.Equal(t, 2, cache.State().CurrentPage)
}

func TestLoadPrevious_SlidesBackAndForward(t *testing.T) {
	catalog := newMockCatalog(catalogOf("Film", 20, 20, 20, 20, 20))
	cache := newTestCache(catalog, newEventRecorder())
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := cache.LoadNext(ctx, "")
		require.NoError(t, err)
	}
	fetched := len(catalog.fetchCalls())

	outcome, err := cache.LoadPrevious(ctx)
	require.NoError(t, err)
	assert.True(t, outcome.Prepended)
	assert.True(t, outcome.FromWindow)
	assert.Equal(t, 2, outcome.Page)
	assert.Equal(t, 20, outcome.ItemsRemoved)
	assert.Equal(t, 3, cache.State().CurrentPage)
	assert.Equal(t, []int{2, 3}, cache.State().LivePages)
	assert.Equal(t, 200, cache.Items()[0].ID)
	assertWindowInvariant(t, cache)

	outcome, err = cache.LoadNext(ctx, "")
	require.NoError(t, err)
	assert.True(t, outcome.FromWindow)
	assert.Equal(t, []int{3, 4}, cache.State().LivePages)
	assert.Len(t, catalog.fetchCalls(), fetched)

	_, err = cache.LoadPrevious(ctx)
	require.NoError(t, err)
	_, err = cache.LoadPrevious(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, cache.State().LivePages)
	assert.Equal(t, 2, cache.State().CurrentPage)
	assert.Len(t, catalog.fetchCalls(), fetched+1)
	assertWindowInvariant(t, cache)
}

func TestStop_LeavesAppliedStateUntouched(t *testing.T) {
	catalog := newMockCatalog(catalogOf("Film", 20, 20))
	cache := newTestCache(catalog, newEventRecorder())
	ctx := context.Background()

	_, err := cache.LoadNext(ctx, "")
	require.NoError(t, err)
	before := cache.State()

	cache.Stop()

	assert.Equal(t, before, cache.State())
	_, err = cache.LoadNext(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 2, cache.State().CurrentPage)
}
