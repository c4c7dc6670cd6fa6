package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garycarlyle/TVShow/internal/app"
	"github.com/garycarlyle/TVShow/internal/domain"
)

type fakeService struct {
	mu sync.Mutex

	state   app.CacheState
	items   []domain.MovieView
	outcome app.PageLoadOutcome
	loadErr error

	nextCalls   int
	searchQuery string
	stopCalls   int
	retryCalls  int

	movies   map[int]*domain.MovieDetails
	snapshot domain.PlaybackSnapshot
	playErr  error
	played   []int
	stopped  int

	disabled map[string]string
	events   chan domain.Event
}

func newFakeService() *fakeService {
	return &fakeService{
		state:    app.CacheState{PaginationLimit: 20},
		movies:   make(map[int]*domain.MovieDetails),
		snapshot: domain.PlaybackSnapshot{State: domain.StateIdle},
		disabled: make(map[string]string),
		events:   make(chan domain.Event, 16),
	}
}

func (f *fakeService) LoadNext(ctx context.Context) (app.PageLoadOutcome, error) {
	return f.LoadNextFor(ctx, f.CatalogState().ActiveQuery)
}

func (f *fakeService) LoadNextFor(_ context.Context, query string) (app.PageLoadOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextCalls++
	if query != f.state.ActiveQuery {
		return app.PageLoadOutcome{}, fmt.Errorf("load next %q: %w", query, domain.ErrQueryMismatch)
	}
	return f.outcome, f.loadErr
}

func (f *fakeService) LoadPrevious(context.Context) (app.PageLoadOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return app.PageLoadOutcome{NoOp: true}, f.loadErr
}

func (f *fakeService) Search(_ context.Context, query string) (app.PageLoadOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searchQuery = query
	f.state.ActiveQuery = query
	return f.outcome, f.loadErr
}

func (f *fakeService) StopLoading() {
	f.mu.Lock()
	f.stopCalls++
	f.mu.Unlock()
}

func (f *fakeService) RetryAfterConnectionError(ctx context.Context) (app.PageLoadOutcome, error) {
	f.mu.Lock()
	f.retryCalls++
	f.mu.Unlock()
	return f.LoadNext(ctx)
}

func (f *fakeService) Items() []domain.MovieView {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.MovieView{}, f.items...)
}

func (f *fakeService) CatalogState() app.CacheState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeService) OpenMovie(_ context.Context, id int) (*domain.MovieDetails, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.movies[id]
	if !ok {
		return nil, fmt.Errorf("movie %d: %w", id, domain.ErrNotFound)
	}
	return m, nil
}

func (f *fakeService) Play(_ context.Context, movieID int) (domain.PlaybackSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.playErr != nil {
		return domain.PlaybackSnapshot{}, f.playErr
	}
	f.played = append(f.played, movieID)
	f.snapshot = domain.PlaybackSnapshot{SessionID: "s1", MovieID: movieID, State: domain.StateStarting}
	return f.snapshot, nil
}

func (f *fakeService) StopPlayback() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped++
	f.snapshot = domain.PlaybackSnapshot{State: domain.StateStopped}
	return nil
}

func (f *fakeService) Playback() domain.PlaybackSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshot
}

func (f *fakeService) Subscribe() (<-chan domain.Event, func()) {
	return f.events, func() {}
}

func (f *fakeService) Disabled() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]string, len(f.disabled))
	for k, v := range f.disabled {
		out[k] = v
	}
	return out
}

type fakeRepo struct {
	records []*domain.PlaybackRecord
	stats   domain.PlaybackStats
}

func (r *fakeRepo) Create(record *domain.PlaybackRecord) error {
	r.records = append(r.records, record)
	return nil
}

func (r *fakeRepo) Update(*domain.PlaybackRecord) error { return nil }

func (r *fakeRepo) FindByID(id string) (*domain.PlaybackRecord, error) {
	for _, rec := range r.records {
		if rec.ID == id {
			return rec, nil
		}
	}
	return nil, fmt.Errorf("record %s: %w", id, domain.ErrNotFound)
}

func (r *fakeRepo) FindByStatus(status domain.DownloadState) ([]*domain.PlaybackRecord, error) {
	var out []*domain.PlaybackRecord
	for _, rec := range r.records {
		if rec.Status == status {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *fakeRepo) FindRecent(limit int) ([]*domain.PlaybackRecord, error) {
	if len(r.records) > limit {
		return r.records[:limit], nil
	}
	return r.records, nil
}

func (r *fakeRepo) GetStats() (*domain.PlaybackStats, error) {
	s := r.stats
	return &s, nil
}

func setupTestRouter(t *testing.T) (*gin.Engine, *fakeService, *fakeRepo) {
	t.Helper()
	svc := newFakeService()
	repo := &fakeRepo{}
	return SetupRouter(svc, repo, t.TempDir(), zap.NewNop()), svc, repo
}

func doRequest(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func TestHealthAndReady(t *testing.T) {
	r, svc, _ := setupTestRouter(t)

	w := doRequest(r, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)

	w = doRequest(r, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, w.Code)

	svc.disabled["playback"] = "panic: boom"
	w = doRequest(r, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "panic: boom")
}

func TestMetricsEndpoint(t *testing.T) {
	r, _, _ := setupTestRouter(t)

	w := doRequest(r, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestCatalog_Next(t *testing.T) {
	r, svc, _ := setupTestRouter(t)
	svc.items = []domain.MovieView{{ID: 1, Title: "Metropolis"}}
	svc.outcome = app.PageLoadOutcome{Page: 1, ItemsAdded: 1}

	w := doRequest(r, http.MethodPost, "/api/v1/catalog/next", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Outcome app.PageLoadOutcome `json:"outcome"`
		State   app.CacheState      `json:"state"`
		Items   []domain.MovieView  `json:"items"`
	}
	decode(t, w, &resp)
	assert.Equal(t, 1, resp.Outcome.ItemsAdded)
	assert.Equal(t, 20, resp.State.PaginationLimit)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "Metropolis", resp.Items[0].Title)
}

func TestCatalog_NextWithStaleQuery(t *testing.T) {
	r, svc, _ := setupTestRouter(t)
	svc.state.ActiveQuery = "alien"

	w := doRequest(r, http.MethodPost, "/api/v1/catalog/next", `{"query":"aliens"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(r, http.MethodPost, "/api/v1/catalog/next", `{"query":"alien"}`)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCatalog_ErrorStatuses(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"transient", fmt.Errorf("page 2: %w", domain.ErrTransientNetwork), http.StatusServiceUnavailable},
		{"cancelled", domain.ErrCancelled, http.StatusConflict},
		{"disabled", fmt.Errorf("catalog: %w", domain.ErrFeatureDisabled), http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, svc, _ := setupTestRouter(t)
			svc.loadErr = tt.err

			w := doRequest(r, http.MethodPost, "/api/v1/catalog/next", "")
			assert.Equal(t, tt.want, w.Code)
			assert.Contains(t, w.Body.String(), `"error"`)
		})
	}
}

func TestCatalog_SearchStopRetry(t *testing.T) {
	r, svc, _ := setupTestRouter(t)

	w := doRequest(r, http.MethodPost, "/api/v1/catalog/search", `{"query":"heat"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "heat", svc.searchQuery)

	w = doRequest(r, http.MethodPost, "/api/v1/catalog/search", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(r, http.MethodPost, "/api/v1/catalog/stop", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, svc.stopCalls)

	w = doRequest(r, http.MethodPost, "/api/v1/catalog/retry", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, svc.retryCalls)

	w = doRequest(r, http.MethodGet, "/api/v1/catalog", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"active_query":"heat"`)
}

func TestMovies(t *testing.T) {
	r, svc, _ := setupTestRouter(t)
	svc.movies[7] = &domain.MovieDetails{ID: 7, Title: "Heat"}

	w := doRequest(r, http.MethodGet, "/api/v1/movies/7", "")
	require.Equal(t, http.StatusOK, w.Code)
	var details domain.MovieDetails
	decode(t, w, &details)
	assert.Equal(t, "Heat", details.Title)

	w = doRequest(r, http.MethodGet, "/api/v1/movies/8", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doRequest(r, http.MethodGet, "/api/v1/movies/abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(r, http.MethodGet, "/api/v1/movies/7/poster", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPlayback(t *testing.T) {
	r, svc, _ := setupTestRouter(t)

	w := doRequest(r, http.MethodPost, "/api/v1/playback", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(r, http.MethodPost, "/api/v1/playback", `{"movie_id":7}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, []int{7}, svc.played)

	w = doRequest(r, http.MethodGet, "/api/v1/playback", "")
	require.Equal(t, http.StatusOK, w.Code)
	var snap domain.PlaybackSnapshot
	decode(t, w, &snap)
	assert.Equal(t, domain.StateStarting, snap.State)

	w = doRequest(r, http.MethodDelete, "/api/v1/playback", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, svc.stopped)

	svc.playErr = fmt.Errorf("movie 9: %w", domain.ErrNoTorrentVariants)
	w = doRequest(r, http.MethodPost, "/api/v1/playback", `{"movie_id":9}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestHistory(t *testing.T) {
	r, _, repo := setupTestRouter(t)
	repo.records = []*domain.PlaybackRecord{
		{ID: "b", MovieID: 2, Status: domain.StateBuffered},
		{ID: "a", MovieID: 1, Status: domain.StateFailed},
	}
	repo.stats = domain.PlaybackStats{Total: 2, Failed: 1}

	w := doRequest(r, http.MethodGet, "/api/v1/history?limit=1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Count   int                      `json:"count"`
		Records []*domain.PlaybackRecord `json:"records"`
	}
	decode(t, w, &list)
	assert.Equal(t, 1, list.Count)
	assert.Equal(t, "b", list.Records[0].ID)

	w = doRequest(r, http.MethodGet, "/api/v1/history?status=failed", "")
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &list)
	require.Len(t, list.Records, 1)
	assert.Equal(t, "a", list.Records[0].ID)

	w = doRequest(r, http.MethodGet, "/api/v1/history/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	var stats domain.PlaybackStats
	decode(t, w, &stats)
	assert.Equal(t, int64(2), stats.Total)

	w = doRequest(r, http.MethodGet, "/api/v1/history/zzz", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLogs(t *testing.T) {
	r, _, _ := setupTestRouter(t)

	w := doRequest(r, http.MethodGet, "/api/v1/logs/categories", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "playback")

	w = doRequest(r, http.MethodGet, "/api/v1/logs/queue", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(r, http.MethodGet, "/api/v1/logs/catalog", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":0`)

	w = doRequest(r, http.MethodGet, "/api/v1/logs/catalog?date=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(r, http.MethodGet, "/api/v1/logs/catalog/search", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUnknownRoute(t *testing.T) {
	r, _, _ := setupTestRouter(t)
	w := doRequest(r, http.MethodGet, "/api/v1/downloads", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEventsWebSocket(t *testing.T) {
	r, svc, _ := setupTestRouter(t)
	server := httptest.NewServer(r)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/events?types=download_buffered,download_stopped"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	svc.events <- domain.DownloadProgress{SessionID: "s1", Percent: 1}
	svc.events <- domain.DownloadBuffered{SessionID: "s1", FilePath: "/tmp/m.mp4"}
	svc.events <- domain.DownloadStopped{SessionID: "s1"}

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var first struct {
		Type    string                 `json:"type"`
		Payload map[string]interface{} `json:"payload"`
	}
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "download_buffered", first.Type)
	assert.Equal(t, "/tmp/m.mp4", first.Payload["file_path"])

	var second struct {
		Type string `json:"type"`
	}
	require.NoError(t, conn.ReadJSON(&second))
	assert.Equal(t, "download_stopped", second.Type)
}
