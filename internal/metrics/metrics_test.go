package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/331872554/vip/internal/apperr"
)

func TestMiddleware_RecordsRouteTemplate(t *testing.T) {
	e := echo.New()
	e.Use(Middleware())
	e.GET("/api/videos/:id", func(c echo.Context) error {
		return c.String(http.StatusOK, c.Param("id"))
	})

	before := testutil.ToFloat64(HTTPRequests.WithLabelValues(http.MethodGet, "/api/videos/:id", "200"))

	for _, id := range []string{"a", "b"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/videos/"+id, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
	}

	after := testutil.ToFloat64(HTTPRequests.WithLabelValues(http.MethodGet, "/api/videos/:id", "200"))
	if after-before != 2 {
		t.Errorf("counter delta = %v, want 2", after-before)
	}
}

func TestMiddleware_RecordsHTTPErrorStatus(t *testing.T) {
	e := echo.New()
	e.Use(Middleware())
	e.DELETE("/api/videos/:id", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "video not found")
	})

	before := testutil.ToFloat64(HTTPRequests.WithLabelValues(http.MethodDelete, "/api/videos/:id", "404"))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/videos/x", nil))
	after := testutil.ToFloat64(HTTPRequests.WithLabelValues(http.MethodDelete, "/api/videos/:id", "404"))
	if after-before != 1 {
		t.Errorf("404 counter delta = %v, want 1", after-before)
	}
}

func TestHandler_ExposesRegisteredMetrics(t *testing.T) {
	CatalogVideos.Set(3)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "vip_catalog_videos 3") {
		t.Errorf("scrape output missing vip_catalog_videos gauge")
	}
}

func TestMiddleware_RecordsAppErrorStatus(t *testing.T) {
	e := echo.New()
	e.Use(Middleware())
	e.GET("/api/videos/:id", func(c echo.Context) error {
		return apperr.NotFound("video not found")
	})

	before := testutil.ToFloat64(HTTPRequests.WithLabelValues(http.MethodGet, "/api/videos/:id", "404"))
	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/videos/x", nil))
	after := testutil.ToFloat64(HTTPRequests.WithLabelValues(http.MethodGet, "/api/videos/:id", "404"))
	if after-before != 1 {
		t.Errorf("404 counter delta = %v, want 1", after-before)
	}
}
