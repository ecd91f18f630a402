// Package logging configures the process-wide slog logger and the verbose
// HTTP trace shared by the GitLab and Sentry clients.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ParseLevel maps the --log-level flag value to a slog level.
func ParseLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", raw)
	}
}

// Setup builds a logger writing to w and installs it as the slog default.
// format is "text" or "json".
func Setup(w io.Writer, level, format string) (*slog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
		handler = slog.NewTextHandler(w, opts)
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, nil
}

// Discard returns a logger that drops everything. Handy in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// RoundTripper wraps an underlying transport and emits one debug record per
// request and per response (including latency).
type RoundTripper struct {
	Base    http.RoundTripper
	Logger  *slog.Logger
	Service string
}

func (t *RoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	logger := t.Logger
	if logger == nil {
		logger = slog.Default()
	}

	start := time.Now()
	logger.Debug("http request", "service", t.Service, "method", req.Method, "url", req.URL.Redacted())
	resp, err := base.RoundTrip(req)
	dur := time.Since(start).Truncate(time.Millisecond)
	if err != nil {
		logger.Debug("http error", "service", t.Service, "duration", dur, "error", err)
		return resp, err
	}
	logger.Debug("http response", "service", t.Service, "status", resp.StatusCode, "duration", dur)
	return resp, nil
}
