package telemetry

import (
	"errors"
	"testing"

	"github.com/getsentry/sentry-go"
)

func TestInitSentry_EmptyDSNDisables(t *testing.T) {
	enabled, err := InitSentry("", "vip", "test", "test")
	if err != nil {
		t.Fatalf("InitSentry: %v", err)
	}
	if enabled {
		t.Error("empty DSN should leave Sentry disabled")
	}
	// Must not panic with no client bound.
	CaptureError(errors.New("boom"), map[string]string{"op": "test"})
	CaptureError(nil, nil)
}

func TestScrub_RedactsCredentials(t *testing.T) {
	event := &sentry.Event{
		User: sentry.User{IPAddress: "10.0.0.1"},
		Request: &sentry.Request{Headers: map[string]string{
			"Authorization": "Bearer secret",
			"X-Admin-Token": "secret",
			"Accept":        "application/json",
		}},
	}
	got := scrub(event)
	if got.User.IPAddress != "" {
		t.Errorf("IP not scrubbed: %q", got.User.IPAddress)
	}
	for _, h := range []string{"Authorization", "X-Admin-Token"} {
		if got.Request.Headers[h] != "[redacted]" {
			t.Errorf("%s = %q, want [redacted]", h, got.Request.Headers[h])
		}
	}
	if got.Request.Headers["Accept"] != "application/json" {
		t.Error("unrelated header should be kept")
	}
	if scrub(nil) != nil {
		t.Error("scrub(nil) should return nil")
	}
}
