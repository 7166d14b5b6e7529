package middleware

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

type Config struct {
	// AdminToken guards mutating routes. Empty leaves them open.
	AdminToken string
	// MaxRequestBytes caps the body of an upload request.
	MaxRequestBytes int64
	// UploadsPerMinute is the per-client upload budget. 0 disables the limiter.
	UploadsPerMinute int
}

type Validator struct {
	config Config
	now    func() time.Time
}

func NewValidator(config Config) *Validator {
	return &Validator{config: config, now: time.Now}
}

// AdminGate accepts the token in X-Admin-Token or as a bearer token.
func (validator *Validator) AdminGate() echo.MiddlewareFunc {
	want := []byte(validator.config.AdminToken)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if len(want) == 0 {
				return next(c)
			}
			got := c.Request().Header.Get("X-Admin-Token")
			if got == "" {
				auth := c.Request().Header.Get(echo.HeaderAuthorization)
				if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
					got = strings.TrimSpace(token)
				}
			}
			if subtle.ConstantTimeCompare([]byte(got), want) != 1 {
				return c.JSON(http.StatusUnauthorized, map[string]string{
					"error": "admin token required",
				})
			}
			return next(c)
		}
	}
}

// LimitUploadBody rejects requests that announce a body over the limit and
// caps the rest while the multipart form is read.
func (validator *Validator) LimitUploadBody() echo.MiddlewareFunc {
	maxSize := validator.config.MaxRequestBytes
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if maxSize <= 0 {
				return next(c)
			}
			req := c.Request()
			if req.ContentLength > maxSize {
				return c.JSON(http.StatusRequestEntityTooLarge, map[string]string{
					"error": fmt.Sprintf("request body %d bytes exceeds maximum %d bytes", req.ContentLength, maxSize),
				})
			}
			req.Body = http.MaxBytesReader(c.Response().Writer, req.Body, maxSize)
			return next(c)
		}
	}
}

// NoStore marks responses as uncacheable.
func NoStore() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Response().Header().Set("Cache-Control", "no-store")
			return next(c)
		}
	}
}

// CacheFor marks responses as publicly cacheable for d.
func CacheFor(d time.Duration) echo.MiddlewareFunc {
	value := fmt.Sprintf("public, max-age=%d", int(d.Seconds()))
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Response().Header().Set("Cache-Control", value)
			return next(c)
		}
	}
}

// RateLimiter counts requests per client IP in fixed one-minute windows.
func (validator *Validator) RateLimiter() echo.MiddlewareFunc {
	requestsPerMinute := validator.config.UploadsPerMinute
	var (
		mu       sync.Mutex
		requests = make(map[string]int)
		window   int64
	)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if requestsPerMinute <= 0 {
				return next(c)
			}
			minute := validator.now().Unix() / 60

			mu.Lock()
			// Counts from older windows never matter again.
			if minute != window {
				clear(requests)
				window = minute
			}
			clientIP := c.RealIP()
			over := requests[clientIP] >= requestsPerMinute
			if !over {
				requests[clientIP]++
			}
			mu.Unlock()

			if over {
				c.Response().Header().Set("Retry-After", "60")
				return c.JSON(http.StatusTooManyRequests, map[string]string{
					"error": fmt.Sprintf("rate limit exceeded, max %d uploads per minute", requestsPerMinute),
				})
			}
			return next(c)
		}
	}
}
