package domain

// EventKind names an event on the wire.
type EventKind string

const (
	KindCatalogLoading   EventKind = "catalog_loading"
	KindCatalogLoaded    EventKind = "catalog_loaded"
	KindDownloadStarting EventKind = "download_starting"
	KindDownloadProgress EventKind = "download_progress"
	KindDownloadBuffered EventKind = "download_buffered"
	KindDownloadStopped  EventKind = "download_stopped"
	KindDownloadFailed   EventKind = "download_failed"
	KindConnectionError  EventKind = "connection_error"
	KindFeatureFailed    EventKind = "feature_failed"
)

// Event is a notification for the UI layer.
type Event interface {
	Kind() EventKind
}

type CatalogLoading struct{}

type CatalogLoaded struct {
	ItemsAdded int  `json:"items_added"`
	HadError   bool `json:"had_error"`
}

type DownloadStarting struct {
	SessionID string `json:"session_id"`
	MovieID   int    `json:"movie_id"`
	Title     string `json:"title"`
	Quality   string `json:"quality"`
	Source    string `json:"source"`
	SavePath  string `json:"save_path"`
}

type DownloadProgress struct {
	SessionID string  `json:"session_id"`
	Percent   float64 `json:"percent"`
	RateKBps  float64 `json:"rate_kbps"`
}

type DownloadBuffered struct {
	SessionID string `json:"session_id"`
	FilePath  string `json:"file_path"`
}

type DownloadStopped struct {
	SessionID string `json:"session_id"`
	Completed bool   `json:"completed"`
}

type DownloadFailed struct {
	SessionID string `json:"session_id"`
	Reason    string `json:"reason"`
}

type ConnectionError struct {
	IsInError bool `json:"is_in_error"`
}

// FeatureFailed reports that a feature was disabled after an unexpected failure.
type FeatureFailed struct {
	Feature string `json:"feature"`
	Reason  string `json:"reason"`
}

func (CatalogLoading) Kind() EventKind   { return KindCatalogLoading }
func (CatalogLoaded) Kind() EventKind    { return KindCatalogLoaded }
func (DownloadStarting) Kind() EventKind { return KindDownloadStarting }
func (DownloadProgress) Kind() EventKind { return KindDownloadProgress }
func (DownloadBuffered) Kind() EventKind { return KindDownloadBuffered }
func (DownloadStopped) Kind() EventKind  { return KindDownloadStopped }
func (DownloadFailed) Kind() EventKind   { return KindDownloadFailed }
func (ConnectionError) Kind() EventKind  { return KindConnectionError }
func (FeatureFailed) Kind() EventKind    { return KindFeatureFailed }

// EventEnvelope is the JSON shape of an event sent to clients.
type EventEnvelope struct {
	Type    EventKind `json:"type"`
	Payload Event     `json:"payload"`
}

// Envelope wraps ev for serialization.
func Envelope(ev Event) EventEnvelope {
	return EventEnvelope{Type: ev.Kind(), Payload: ev}
}

// Emitter delivers events. Implementations must not block for long.
type Emitter func(Event)
