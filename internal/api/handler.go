// Package api exposes the catalog, the upload pipeline and the site copy
// over HTTP.
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/331872554/vip/internal/apperr"
	"github.com/331872554/vip/internal/blob"
	"github.com/331872554/vip/internal/catalog"
	"github.com/331872554/vip/internal/ingest"
	"github.com/331872554/vip/internal/middleware"
	"github.com/331872554/vip/internal/sitecontent"
	"github.com/331872554/vip/internal/telemetry"
)

// BlobCacheTTL is how long clients may cache served video files.
const BlobCacheTTL = time.Hour

type Deps struct {
	Catalog     *catalog.Catalog
	Pipeline    *ingest.Pipeline
	Blobs       *blob.Store
	Content     *sitecontent.Store
	CatalogPath string
	Validator   *middleware.Validator
	Log         *logrus.Entry
}

type Handler struct {
	catalog     *catalog.Catalog
	pipeline    *ingest.Pipeline
	blobs       *blob.Store
	content     *sitecontent.Store
	catalogPath string
	validator   *middleware.Validator
	log         *logrus.Entry
}

func New(d Deps) *Handler {
	return &Handler{
		catalog:     d.Catalog,
		pipeline:    d.Pipeline,
		blobs:       d.Blobs,
		content:     d.Content,
		catalogPath: d.CatalogPath,
		validator:   d.Validator,
		log:         d.Log.WithField("component", "api"),
	}
}

// Register mounts every route on e and installs the error handler.
func (h *Handler) Register(e *echo.Echo) {
	e.HTTPErrorHandler = ErrorHandler(h.log)

	e.GET("/health", h.health)
	uploads := e.Group(h.blobs.URLPrefix(), middleware.CacheFor(BlobCacheTTL))
	uploads.Static("/", h.blobs.Dir())

	g := e.Group("/api", middleware.NoStore())
	admin := h.validator.AdminGate()

	g.GET("/test", h.test)
	g.GET("/videos", h.listVideos)
	g.GET("/videos/:id", h.getVideo)
	g.PATCH("/videos/:id", h.updateVideo, admin)
	g.DELETE("/videos/:id", h.deleteVideo, admin)
	g.POST("/upload", h.upload, admin, h.validator.RateLimiter(), h.validator.LimitUploadBody())
	g.GET("/scan-videos", h.scanVideos, admin)
	g.GET("/content", h.getContent)
	g.POST("/content", h.updateContent, admin)
	g.GET("/diagnostics", h.diagnostics, admin)
}

// ErrorHandler renders errors as {"error": msg}. Server-side failures are
// logged and reported to Sentry.
func ErrorHandler(log *logrus.Entry) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, msg := apperr.Status(err), apperr.Message(err)
		var he *echo.HTTPError
		var tooBig *http.MaxBytesError
		switch {
		case errors.As(err, &tooBig):
			status, msg = http.StatusRequestEntityTooLarge, "request body too large"
		case errors.As(err, &he):
			status = he.Code
			if m, ok := he.Message.(string); ok {
				msg = m
			} else {
				msg = http.StatusText(he.Code)
			}
		}

		if status >= http.StatusInternalServerError {
			log.WithError(err).WithFields(logrus.Fields{
				"method": c.Request().Method,
				"route":  c.Path(),
				"kind":   apperr.KindOf(err).String(),
			}).Error("request failed")
			telemetry.CaptureError(err, map[string]string{"route": c.Path()})
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, map[string]string{"error": msg})
		}
		if err != nil {
			log.WithError(err).Warn("write error response")
		}
	}
}
