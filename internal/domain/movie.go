package domain

import (
	"context"
	"sync"
)

// MovieKey identifies a catalog entry. The catalog may return the same id
// for re-uploads, so the upload timestamp is part of the key.
type MovieKey struct {
	ID               int
	DateUploadedUnix int64
}

// MovieSummary is one entry of a catalog page.
type MovieSummary struct {
	ID               int      `json:"id"`
	DateUploadedUnix int64    `json:"date_uploaded_unix"`
	ImdbCode         string   `json:"imdb_code"`
	Title            string   `json:"title"`
	Year             int      `json:"year"`
	Rating           float64  `json:"rating"`
	Genres           []string `json:"genres,omitempty"`
	CoverImageURL    string   `json:"cover_image_url"`

	mu             sync.RWMutex
	coverImagePath string
}

// Key returns the composite de-duplication key.
func (m *MovieSummary) Key() MovieKey {
	return MovieKey{ID: m.ID, DateUploadedUnix: m.DateUploadedUnix}
}

// ResolveCover records the local cover path. Only the first call has an effect.
func (m *MovieSummary) ResolveCover(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.coverImagePath != "" || path == "" {
		return false
	}
	m.coverImagePath = path
	return true
}

// CoverImagePath returns the resolved local cover path, or "" if not yet downloaded.
func (m *MovieSummary) CoverImagePath() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.coverImagePath
}

// MovieView is the serializable form of a MovieSummary.
type MovieView struct {
	ID               int      `json:"id"`
	DateUploadedUnix int64    `json:"date_uploaded_unix"`
	ImdbCode         string   `json:"imdb_code"`
	Title            string   `json:"title"`
	Year             int      `json:"year"`
	Rating           float64  `json:"rating"`
	Genres           []string `json:"genres,omitempty"`
	CoverImageURL    string   `json:"cover_image_url"`
	CoverImagePath   string   `json:"cover_image_path,omitempty"`
}

// View returns a copy safe to hand outside the cache.
func (m *MovieSummary) View() MovieView {
	return MovieView{
		ID:               m.ID,
		DateUploadedUnix: m.DateUploadedUnix,
		ImdbCode:         m.ImdbCode,
		Title:            m.Title,
		Year:             m.Year,
		Rating:           m.Rating,
		Genres:           m.Genres,
		CoverImageURL:    m.CoverImageURL,
		CoverImagePath:   m.CoverImagePath(),
	}
}

// Page is an ordered slice of summaries for one (query, number) pair.
type Page struct {
	Number int
	Query  string
	Items  []*MovieSummary
}

// TorrentVariant is one downloadable quality of a movie.
type TorrentVariant struct {
	Quality   string `json:"quality"`
	URL       string `json:"url"`
	Hash      string `json:"hash"`
	SizeBytes int64  `json:"size_bytes"`
	Seeds     int    `json:"seeds"`
	Peers     int    `json:"peers"`
}

// MovieDetails is the full record of a movie, including its torrents.
type MovieDetails struct {
	ID              int              `json:"id"`
	ImdbCode        string           `json:"imdb_code"`
	Title           string           `json:"title"`
	Year            int              `json:"year"`
	Rating          float64          `json:"rating"`
	Runtime         int              `json:"runtime"`
	Genres          []string         `json:"genres,omitempty"`
	Description     string           `json:"description"`
	Language        string           `json:"language"`
	YouTubeTrailer  string           `json:"yt_trailer_code,omitempty"`
	PosterImageURL  string           `json:"poster_image_url"`
	PosterImagePath string           `json:"poster_image_path,omitempty"`
	Torrents        []TorrentVariant `json:"torrents"`
}

// SmallestVariant picks the variant with the fewest bytes.
func SmallestVariant(variants []TorrentVariant) (TorrentVariant, error) {
	if len(variants) == 0 {
		return TorrentVariant{}, ErrNoTorrentVariants
	}
	best := variants[0]
	for _, v := range variants[1:] {
		if v.SizeBytes < best.SizeBytes {
			best = v
		}
	}
	return best, nil
}

// CatalogClient fetches catalog pages, details and images.
type CatalogClient interface {
	FetchPage(ctx context.Context, query string, pageSize, page int) ([]*MovieSummary, error)
	FetchCoverImage(ctx context.Context, movie *MovieSummary) (string, error)
	FetchMovie(ctx context.Context, id int) (*MovieDetails, error)
	FetchPoster(ctx context.Context, movie *MovieDetails) (string, error)
}
