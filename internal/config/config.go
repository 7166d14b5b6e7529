package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// GetEnv returns env var or default when empty.
func GetEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

type Config struct {
	Port       string
	StorageDir string
	UploadDir  string
	// UploadURLPrefix is the root-relative URL the upload directory is served under.
	UploadURLPrefix string
	CatalogFile     string
	ContentFile     string

	MaxUploadMB     int
	MaxFiles        int
	Workers         int
	AllowedMIME     []string
	DefaultCategory string

	AdminToken       string
	UploadRatePerMin int

	LogLevel  string
	LogFormat string
	LogFile   string

	SentryDSN string
	Env       string
	Release   string

	ShutdownTimeout time.Duration
}

// Load reads configuration from environment with sensible defaults.
func Load() Config {
	storage := GetEnv("STORAGE_DIR", ".")
	cfg := Config{
		Port:             GetEnv("PORT", "3000"),
		StorageDir:       storage,
		UploadDir:        GetEnv("UPLOAD_DIR", filepath.Join(storage, "uploads")),
		UploadURLPrefix:  GetEnv("UPLOAD_URL_PREFIX", "/uploads"),
		CatalogFile:      GetEnv("CATALOG_FILE", filepath.Join(storage, "videos.json")),
		ContentFile:      GetEnv("CONTENT_FILE", filepath.Join(storage, "config.json")),
		MaxUploadMB:      getInt("MAX_UPLOAD_MB", 500),
		MaxFiles:         getInt("MAX_FILES", 10),
		Workers:          getInt("WORKERS", 4),
		AllowedMIME:      []string{"video/*"},
		DefaultCategory:  GetEnv("DEFAULT_CATEGORY", "beginner"),
		AdminToken:       os.Getenv("ADMIN_TOKEN"),
		UploadRatePerMin: getInt("UPLOAD_RATE_PER_MIN", 0),
		LogLevel:         GetEnv("LOG_LEVEL", "info"),
		LogFormat:        GetEnv("LOG_FORMAT", "json"),
		LogFile:          os.Getenv("LOG_FILE"),
		SentryDSN:        os.Getenv("SENTRY_DSN"),
		Env:              GetEnv("APP_ENV", "development"),
		Release:          GetEnv("RELEASE", "dev"),
		ShutdownTimeout:  10 * time.Second,
	}
	if v := os.Getenv("ALLOWED_MIME"); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			s := strings.TrimSpace(p)
			if s != "" {
				out = append(out, s)
			}
		}
		if len(out) > 0 {
			cfg.AllowedMIME = out
		}
	}
	if v := os.Getenv("SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.ShutdownTimeout = d
		}
	}
	cfg.UploadURLPrefix = "/" + strings.Trim(cfg.UploadURLPrefix, "/")
	return cfg
}

// MaxFileBytes is the per-file size ceiling.
func (c Config) MaxFileBytes() int64 {
	return int64(c.MaxUploadMB) * 1024 * 1024
}

// MaxRequestBytes bounds a whole upload request: every file at its ceiling
// plus one megabyte for the form fields and multipart framing.
func (c Config) MaxRequestBytes() int64 {
	return c.MaxFileBytes()*int64(c.MaxFiles) + 1<<20
}

func (c Config) Validate() error {
	var errs []error
	if c.MaxUploadMB <= 0 {
		errs = append(errs, fmt.Errorf("MAX_UPLOAD_MB must be positive, got %d", c.MaxUploadMB))
	}
	if c.MaxFiles <= 0 {
		errs = append(errs, fmt.Errorf("MAX_FILES must be positive, got %d", c.MaxFiles))
	}
	if c.Workers <= 0 {
		errs = append(errs, fmt.Errorf("WORKERS must be positive, got %d", c.Workers))
	}
	if c.UploadRatePerMin < 0 {
		errs = append(errs, fmt.Errorf("UPLOAD_RATE_PER_MIN must not be negative, got %d", c.UploadRatePerMin))
	}
	if c.UploadDir == "" || c.CatalogFile == "" {
		errs = append(errs, errors.New("UPLOAD_DIR and CATALOG_FILE must be set"))
	}
	return errors.Join(errs...)
}
