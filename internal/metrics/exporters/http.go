// Package exporters exposes the metrics registry over HTTP.
package exporters

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smazurov/boothcam/internal/logging"
)

// HTTPHandler serves the default registry, where the booth's promauto
// metrics live.
func HTTPHandler() http.Handler {
	return HandlerFor(prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
}

// HandlerFor serves g. A collector that fails is logged and skipped rather
// than failing the scrape; scrape counts are registered on reg.
func HandlerFor(reg prometheus.Registerer, g prometheus.Gatherer) http.Handler {
	logger := logging.GetLogger("http")
	return promhttp.InstrumentMetricHandler(reg, promhttp.HandlerFor(g, promhttp.HandlerOpts{
		ErrorLog:      slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
		ErrorHandling: promhttp.ContinueOnError,
	}))
}
