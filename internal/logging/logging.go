// Package logging builds the logrus logger shared by every component.
//
// Usage:
//
//	log, closeFn, err := logging.New("vip", logging.Options{Level: "info"})
//	log.WithField("video_id", id).Info("video deleted")
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

type Options struct {
	Level  string // debug, info, warn, error
	Format string // json (default) or text
	// File, when set, receives a copy of every line in addition to stdout.
	File string
}

// New creates a logrus logger for a named service. The service field is
// embedded in every log line. The returned func closes the log file, if any.
func New(service string, opts Options) (*logrus.Entry, func() error, error) {
	log := logrus.New()
	if opts.Format == "text" {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	}

	level, err := logrus.ParseLevel(opts.Level)
	if err != nil || opts.Level == "" {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	closeFn := func() error { return nil }
	var out io.Writer = os.Stdout
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out = io.MultiWriter(os.Stdout, f)
		closeFn = f.Close
	}
	log.SetOutput(out)

	return log.WithField("service", service), closeFn, nil
}

// Discard returns an entry that drops everything. Meant for tests.
func Discard() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}
