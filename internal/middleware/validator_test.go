package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func serve(t *testing.T, mw echo.MiddlewareFunc, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	e.POST("/api/upload", func(c echo.Context) error {
		if _, err := io.ReadAll(c.Request().Body); err != nil {
			return c.String(http.StatusRequestEntityTooLarge, "body too large")
		}
		return c.String(http.StatusOK, "ok")
	}, mw)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestAdminGate(t *testing.T) {
	gate := NewValidator(Config{AdminToken: "s3cret"}).AdminGate()
	cases := []struct {
		name   string
		header map[string]string
		want   int
	}{
		{"no token", nil, http.StatusUnauthorized},
		{"wrong token", map[string]string{"X-Admin-Token": "nope"}, http.StatusUnauthorized},
		{"header token", map[string]string{"X-Admin-Token": "s3cret"}, http.StatusOK},
		{"bearer token", map[string]string{"Authorization": "Bearer s3cret"}, http.StatusOK},
		{"basic auth", map[string]string{"Authorization": "Basic s3cret"}, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/upload", nil)
			for k, v := range tc.header {
				req.Header.Set(k, v)
			}
			if rec := serve(t, gate, req); rec.Code != tc.want {
				t.Errorf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}

func TestAdminGate_OpenWithoutToken(t *testing.T) {
	gate := NewValidator(Config{}).AdminGate()
	req := httptest.NewRequest(http.MethodPost, "/api/upload", nil)
	if rec := serve(t, gate, req); rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestLimitUploadBody(t *testing.T) {
	limit := NewValidator(Config{MaxRequestBytes: 8}).LimitUploadBody()

	req := httptest.NewRequest(http.MethodPost, "/api/upload", strings.NewReader("0123456789"))
	if rec := serve(t, limit, req); rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("announced oversize body: status = %d", rec.Code)
	}

	// Unknown length is capped while reading.
	req = httptest.NewRequest(http.MethodPost, "/api/upload", strings.NewReader("0123456789"))
	req.ContentLength = -1
	if rec := serve(t, limit, req); rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("streamed oversize body: status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/upload", strings.NewReader("small"))
	if rec := serve(t, limit, req); rec.Code != http.StatusOK {
		t.Errorf("small body: status = %d", rec.Code)
	}
}

func TestRateLimiter(t *testing.T) {
	v := NewValidator(Config{UploadsPerMinute: 2})
	clock := time.Date(2024, 1, 1, 12, 0, 5, 0, time.UTC)
	v.now = func() time.Time { return clock }
	limiter := v.RateLimiter()

	e := echo.New()
	e.POST("/api/upload", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, limiter)
	do := func(ip string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/upload", nil)
		req.RemoteAddr = ip + ":1234"
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec.Code
	}

	for i := 0; i < 2; i++ {
		if code := do("10.0.0.1"); code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i, code)
		}
	}
	if code := do("10.0.0.1"); code != http.StatusTooManyRequests {
		t.Errorf("third request: status = %d, want 429", code)
	}
	if code := do("10.0.0.2"); code != http.StatusOK {
		t.Errorf("other client: status = %d", code)
	}

	clock = clock.Add(time.Minute)
	if code := do("10.0.0.1"); code != http.StatusOK {
		t.Errorf("next window: status = %d", code)
	}
}

func TestCacheHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/upload", nil)
	if got := serve(t, NoStore(), req).Header().Get("Cache-Control"); got != "no-store" {
		t.Errorf("NoStore: Cache-Control = %q", got)
	}
	req = httptest.NewRequest(http.MethodPost, "/api/upload", nil)
	if got := serve(t, CacheFor(time.Hour), req).Header().Get("Cache-Control"); got != "public, max-age=3600" {
		t.Errorf("CacheFor: Cache-Control = %q", got)
	}
}
