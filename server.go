package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"github.com/331872554/vip/internal/api"
	"github.com/331872554/vip/internal/blob"
	"github.com/331872554/vip/internal/catalog"
	"github.com/331872554/vip/internal/config"
	"github.com/331872554/vip/internal/ingest"
	"github.com/331872554/vip/internal/logging"
	"github.com/331872554/vip/internal/meta"
	"github.com/331872554/vip/internal/metrics"
	"github.com/331872554/vip/internal/middleware"
	"github.com/331872554/vip/internal/sitecontent"
	"github.com/331872554/vip/internal/telemetry"
)

func main() {
	cfg := config.Load()

	log, closeLog, err := logging.New("vip", logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
	})
	if err != nil {
		logrus.WithError(err).Fatal("init logging")
	}
	defer closeLog()

	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	if enabled, err := telemetry.InitSentry(cfg.SentryDSN, "vip", cfg.Release, cfg.Env); err != nil {
		log.WithError(err).Warn("sentry disabled")
	} else if enabled {
		log.Info("sentry enabled")
	}
	defer telemetry.Flush()

	blobs := blob.New(cfg.UploadDir, cfg.UploadURLPrefix, cfg.AllowedMIME, log)
	if err := blobs.EnsureDir(); err != nil {
		log.WithError(err).Fatal("prepare upload directory")
	}

	store := meta.NewJSONStore(cfg.CatalogFile, log)
	cat, _ := catalog.Open(store, blobs, log, catalog.Options{
		DefaultCategory: meta.Category(cfg.DefaultCategory),
	})

	pipeline := ingest.New(blobs, cat, ingest.Limits{
		MaxFiles:     cfg.MaxFiles,
		MaxFileBytes: cfg.MaxFileBytes(),
		Workers:      cfg.Workers,
	}, log)

	if cfg.AdminToken == "" {
		log.Warn("ADMIN_TOKEN is empty, admin routes are open")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			entry := log.WithFields(logrus.Fields{
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency_ms": v.Latency.Milliseconds(),
				"remote_ip":  v.RemoteIP,
			})
			if v.Error != nil {
				entry.WithError(v.Error).Warn("request")
				return nil
			}
			entry.Debug("request")
			return nil
		},
	}))
	e.Use(metrics.Middleware())
	e.Use(echomw.CORS())

	api.New(api.Deps{
		Catalog:     cat,
		Pipeline:    pipeline,
		Blobs:       blobs,
		Content:     sitecontent.Open(cfg.ContentFile, log),
		CatalogPath: store.Path(),
		Validator: middleware.NewValidator(middleware.Config{
			AdminToken:       cfg.AdminToken,
			MaxRequestBytes:  cfg.MaxRequestBytes(),
			UploadsPerMinute: cfg.UploadRatePerMin,
		}),
		Log: log,
	}).Register(e)
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	go func() {
		log.WithFields(logrus.Fields{
			"port":    cfg.Port,
			"uploads": cfg.UploadDir,
			"catalog": cfg.CatalogFile,
			"videos":  cat.Len(),
		}).Info("server listening")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server stopped")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("http shutdown")
	}
	if err := cat.Close(); err != nil {
		log.WithError(err).Error("flush catalog")
	}
}
