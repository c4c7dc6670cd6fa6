package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/garycarlyle/TVShow/internal/domain"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tvshow",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tvshow",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10, 30},
	}, []string{"method", "path"})

	CatalogLoadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tvshow",
		Name:      "catalog_loads_total",
		Help:      "Total catalog loads by result (ok, empty, error).",
	}, []string{"result"})

	CatalogItemsAdded = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tvshow",
		Name:      "catalog_items_added_total",
		Help:      "Total number of movies added to the visible list.",
	})

	ConnectionErrorActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "tvshow",
		Name:      "connection_error_active",
		Help:      "Whether the catalog is currently unreachable (1) or not (0).",
	})

	DownloadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tvshow",
		Name:      "downloads_total",
		Help:      "Total playback downloads by lifecycle event (started, buffered, completed, stopped, failed).",
	}, []string{"event"})

	DownloadProgressPercent = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "tvshow",
		Name:      "download_progress_percent",
		Help:      "Progress of the current download in percent.",
	})

	DownloadSpeedBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "tvshow",
		Name:      "download_speed_bytes",
		Help:      "Current download speed in bytes per second.",
	})

	FeaturesDisabled = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "tvshow",
		Name:      "feature_disabled",
		Help:      "Whether a feature was disabled after an unexpected failure.",
	}, []string{"feature"})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		CatalogLoadsTotal,
		CatalogItemsAdded,
		ConnectionErrorActive,
		DownloadsTotal,
		DownloadProgressPercent,
		DownloadSpeedBytes,
		FeaturesDisabled,
	)
}

// Observer records catalog and playback events.
type Observer struct{}

// Observe updates the metrics for ev.
func (Observer) Observe(ev domain.Event) {
	switch e := ev.(type) {
	case domain.CatalogLoaded:
		switch {
		case e.HadError:
			CatalogLoadsTotal.WithLabelValues("error").Inc()
		case e.ItemsAdded == 0:
			CatalogLoadsTotal.WithLabelValues("empty").Inc()
		default:
			CatalogLoadsTotal.WithLabelValues("ok").Inc()
			CatalogItemsAdded.Add(float64(e.ItemsAdded))
		}
	case domain.ConnectionError:
		if e.IsInError {
			ConnectionErrorActive.Set(1)
		} else {
			ConnectionErrorActive.Set(0)
		}
	case domain.DownloadStarting:
		DownloadsTotal.WithLabelValues("started").Inc()
		DownloadProgressPercent.Set(0)
		DownloadSpeedBytes.Set(0)
	case domain.DownloadProgress:
		DownloadProgressPercent.Set(e.Percent)
		DownloadSpeedBytes.Set(e.RateKBps * 1024)
	case domain.DownloadBuffered:
		DownloadsTotal.WithLabelValues("buffered").Inc()
	case domain.DownloadStopped:
		if e.Completed {
			DownloadsTotal.WithLabelValues("completed").Inc()
		} else {
			DownloadsTotal.WithLabelValues("stopped").Inc()
		}
		DownloadSpeedBytes.Set(0)
	case domain.DownloadFailed:
		DownloadsTotal.WithLabelValues("failed").Inc()
		DownloadSpeedBytes.Set(0)
	case domain.FeatureFailed:
		FeaturesDisabled.WithLabelValues(e.Feature).Set(1)
	}
}
