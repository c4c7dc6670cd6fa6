package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/garycarlyle/TVShow/internal/domain"
)

const maxImageBytes = 10 << 20

// YTSClient implements domain.CatalogClient against the YTS v2 API.
type YTSClient struct {
	config  *domain.CatalogConfig
	http    *http.Client
	limiter *rate.Limiter
	images  singleflight.Group
	logger  *zap.Logger
}

// NewYTSClient creates a catalog client. A nil httpClient gets one with the
// configured request timeout.
func NewYTSClient(config *domain.CatalogConfig, httpClient *http.Client, logger *zap.Logger) *YTSClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.RequestTimeout}
	}
	return &YTSClient{
		config:  config,
		http:    httpClient,
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), config.RateBurst),
		logger:  logger,
	}
}

type ytsTorrent struct {
	URL       string `json:"url"`
	Hash      string `json:"hash"`
	Quality   string `json:"quality"`
	SizeBytes int64  `json:"size_bytes"`
	Seeds     int    `json:"seeds"`
	Peers     int    `json:"peers"`
}

type ytsMovie struct {
	ID               int          `json:"id"`
	ImdbCode         string       `json:"imdb_code"`
	Title            string       `json:"title"`
	Year             int          `json:"year"`
	Rating           float64      `json:"rating"`
	Runtime          int          `json:"runtime"`
	Genres           []string     `json:"genres"`
	DescriptionFull  string       `json:"description_full"`
	Language         string       `json:"language"`
	YTTrailerCode    string       `json:"yt_trailer_code"`
	MediumCoverImage string       `json:"medium_cover_image"`
	LargeCoverImage  string       `json:"large_cover_image"`
	DateUploadedUnix int64        `json:"date_uploaded_unix"`
	Torrents         []ytsTorrent `json:"torrents"`
}

type ytsEnvelope[T any] struct {
	Status        string `json:"status"`
	StatusMessage string `json:"status_message"`
	Data          T      `json:"data"`
}

type ytsListData struct {
	MovieCount int        `json:"movie_count"`
	PageNumber int        `json:"page_number"`
	Movies     []ytsMovie `json:"movies"`
}

type ytsDetailsData struct {
	Movie ytsMovie `json:"movie"`
}

// FetchPage returns one page of the catalog. An empty query lists the most
// liked movies first.
func (c *YTSClient) FetchPage(ctx context.Context, query string, pageSize, page int) ([]*domain.MovieSummary, error) {
	params := url.Values{
		"limit": {strconv.Itoa(pageSize)},
		"page":  {strconv.Itoa(page)},
	}
	if query == "" {
		params.Set("sort_by", "like_count")
	} else {
		params.Set("query_term", query)
	}

	var resp ytsEnvelope[ytsListData]
	if err := c.getJSON(ctx, "list_movies.json", params, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch page %d: %w", page, err)
	}

	movies := make([]*domain.MovieSummary, 0, len(resp.Data.Movies))
	for _, m := range resp.Data.Movies {
		movies = append(movies, &domain.MovieSummary{
			ID:               m.ID,
			DateUploadedUnix: m.DateUploadedUnix,
			ImdbCode:         m.ImdbCode,
			Title:            m.Title,
			Year:             m.Year,
			Rating:           m.Rating,
			Genres:           m.Genres,
			CoverImageURL:    m.MediumCoverImage,
		})
	}

	c.logger.Debug("Fetched catalog page",
		zap.String("query", query),
		zap.Int("page", page),
		zap.Int("movies", len(movies)),
		zap.Int("movie_count", resp.Data.MovieCount))

	return movies, nil
}

// FetchMovie returns the full record of a movie, torrents included.
func (c *YTSClient) FetchMovie(ctx context.Context, id int) (*domain.MovieDetails, error) {
	params := url.Values{
		"movie_id":    {strconv.Itoa(id)},
		"with_images": {"true"},
		"with_cast":   {"true"},
	}

	var resp ytsEnvelope[ytsDetailsData]
	if err := c.getJSON(ctx, "movie_details.json", params, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch movie %d: %w", id, err)
	}

	m := resp.Data.Movie
	if m.ID == 0 {
		return nil, fmt.Errorf("movie %d: %w", id, domain.ErrNotFound)
	}

	details := &domain.MovieDetails{
		ID:             m.ID,
		ImdbCode:       m.ImdbCode,
		Title:          m.Title,
		Year:           m.Year,
		Rating:         m.Rating,
		Runtime:        m.Runtime,
		Genres:         m.Genres,
		Description:    m.DescriptionFull,
		Language:       m.Language,
		YouTubeTrailer: m.YTTrailerCode,
		PosterImageURL: m.LargeCoverImage,
		Torrents:       make([]domain.TorrentVariant, 0, len(m.Torrents)),
	}
	for _, t := range m.Torrents {
		details.Torrents = append(details.Torrents, domain.TorrentVariant{
			Quality:   t.Quality,
			URL:       t.URL,
			Hash:      t.Hash,
			SizeBytes: t.SizeBytes,
			Seeds:     t.Seeds,
			Peers:     t.Peers,
		})
	}
	return details, nil
}

// FetchCoverImage downloads the movie's cover into the covers directory and
// returns its local path.
func (c *YTSClient) FetchCoverImage(ctx context.Context, movie *domain.MovieSummary) (string, error) {
	return c.fetchImage(ctx, movie.CoverImageURL, c.config.CoversDir, imageName(movie.ImdbCode, movie.ID))
}

// FetchPoster downloads the movie's large poster and returns its local path.
func (c *YTSClient) FetchPoster(ctx context.Context, movie *domain.MovieDetails) (string, error) {
	return c.fetchImage(ctx, movie.PosterImageURL, c.config.PostersDir, imageName(movie.ImdbCode, movie.ID))
}

func imageName(imdbCode string, id int) string {
	if imdbCode != "" {
		return imdbCode + ".jpg"
	}
	return strconv.Itoa(id) + ".jpg"
}

// fetchImage stores imageURL as dir/name. A non-empty file already on disk
// is reused; concurrent requests for the same file share one download.
func (c *YTSClient) fetchImage(ctx context.Context, imageURL, dir, name string) (string, error) {
	if imageURL == "" {
		return "", domain.ErrCoverUnavailable
	}

	path := filepath.Join(dir, name)
	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		return path, nil
	}

	// The download is shared, so it outlives any single caller's context.
	shared := context.WithoutCancel(ctx)
	ch := c.images.DoChan(path, func() (interface{}, error) {
		return path, c.downloadImage(shared, imageURL, path)
	})

	select {
	case <-ctx.Done():
		return "", domain.AsCancelled(ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (c *YTSClient) downloadImage(ctx context.Context, imageURL, path string) error {
	resp, err := c.do(ctx, imageURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return statusError(resp.StatusCode)
	default:
		return fmt.Errorf("%s: status %d: %w", imageURL, resp.StatusCode, domain.ErrCoverUnavailable)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create image directory: %w: %v", domain.ErrFileSystemTransient, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".download-*")
	if err != nil {
		return fmt.Errorf("failed to create image file: %w: %v", domain.ErrFileSystemTransient, err)
	}
	defer os.Remove(tmp.Name())

	n, copyErr := io.Copy(tmp, io.LimitReader(resp.Body, maxImageBytes))
	closeErr := tmp.Close()
	if copyErr != nil {
		if ctx.Err() != nil {
			return domain.AsCancelled(ctx.Err())
		}
		return fmt.Errorf("%w: reading %s: %v", domain.ErrTransientNetwork, imageURL, copyErr)
	}
	if closeErr != nil {
		return fmt.Errorf("%w: %v", domain.ErrFileSystemTransient, closeErr)
	}
	if n == 0 {
		return fmt.Errorf("%s is empty: %w", imageURL, domain.ErrCoverUnavailable)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrFileSystemTransient, err)
	}

	c.logger.Debug("Image downloaded", zap.String("path", path), zap.Int64("bytes", n))
	return nil
}

func (c *YTSClient) getJSON(ctx context.Context, endpoint string, params url.Values, out interface{}) error {
	reqURL := strings.TrimRight(c.config.BaseURL, "/") + "/" + endpoint + "?" + params.Encode()

	start := time.Now()
	resp, err := c.do(ctx, reqURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if ctx.Err() != nil {
			return domain.AsCancelled(ctx.Err())
		}
		return fmt.Errorf("%w: decoding %s: %v", domain.ErrTransientNetwork, endpoint, err)
	}

	c.logger.Debug("Catalog request completed",
		zap.String("endpoint", endpoint),
		zap.Duration("duration", time.Since(start)))
	return nil
}

// do waits for the rate limiter and sends a GET request.
func (c *YTSClient) do(ctx context.Context, rawURL string) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, domain.AsCancelled(ctx.Err())
		}
		return nil, fmt.Errorf("%w: rate limiter: %v", domain.ErrTransientNetwork, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, domain.AsCancelled(ctx.Err())
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrTransientNetwork, err)
	}
	return resp, nil
}

// statusError maps an HTTP status to a failure category. Anything other
// than a missing resource is treated as the API being unreachable for now.
func statusError(code int) error {
	if code == http.StatusNotFound {
		return fmt.Errorf("status %d: %w", code, domain.ErrNotFound)
	}
	return fmt.Errorf("status %d: %w", code, domain.ErrTransientNetwork)
}
