// Package metrics provides Prometheus instrumentation for the video server.
//
// Metrics registered here:
//
//	vip_http_requests_total              counter: requests by method/route/status
//	vip_http_request_duration_seconds    histogram: latency by method/route
//	vip_upload_files_total               counter: uploaded files by result
//	vip_upload_bytes_total               counter: bytes written to the blob store
//	vip_catalog_videos                   gauge: records in the catalog
//	vip_reconcile_runs_total             counter: reconciler passes by trigger
//	vip_reconcile_changes_total          counter: records pruned/added/rewritten by the reconciler
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/331872554/vip/internal/apperr"
)

var HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "vip_http_requests_total",
	Help: "Total HTTP requests handled.",
}, []string{"method", "route", "status"})

var HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "vip_http_request_duration_seconds",
	Help:    "HTTP request latency in seconds.",
	Buckets: prometheus.DefBuckets,
}, []string{"method", "route"})

// UploadFiles counts files offered in upload requests: accepted or rejected.
var UploadFiles = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "vip_upload_files_total",
	Help: "Uploaded files by result.",
}, []string{"result"})

var UploadBytes = promauto.NewCounter(prometheus.CounterOpts{
	Name: "vip_upload_bytes_total",
	Help: "Bytes written to the blob store by uploads.",
})

var CatalogVideos = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "vip_catalog_videos",
	Help: "Number of video records in the catalog.",
})

// ReconcileRuns counts reconciler passes by trigger (startup, manual).
var ReconcileRuns = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "vip_reconcile_runs_total",
	Help: "Reconciler passes by trigger.",
}, []string{"trigger"})

// ReconcileChanges counts catalog changes made by the reconciler (pruned, added, rewritten).
var ReconcileChanges = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "vip_reconcile_changes_total",
	Help: "Catalog records pruned or added by the reconciler.",
}, []string{"kind"})

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request counts and latency. The route label is the
// registered echo path (e.g. /api/videos/:id), not the raw URL.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				} else if !c.Response().Committed {
					status = apperr.Status(err)
				}
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method
			HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
			HTTPDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}
