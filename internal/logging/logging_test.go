package logging

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_JSONAtDebug(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	logger, err := Setup(&buf, "debug", "json")
	require.NoError(t, err)

	logger.Debug("hello", "repo", "team-a/api")
	assert.Contains(t, buf.String(), `"msg":"hello"`)
	assert.Contains(t, buf.String(), `"repo":"team-a/api"`)
}

func TestSetup_RejectsUnknownValues(t *testing.T) {
	_, err := Setup(&bytes.Buffer{}, "loud", "text")
	require.Error(t, err)

	_, err = Setup(&bytes.Buffer{}, "info", "xml")
	require.Error(t, err)
}

func TestRoundTripper_LogsRequestAndResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer srv.Close()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	hc := &http.Client{Transport: &RoundTripper{Logger: logger, Service: "sentry"}}

	resp, err := hc.Get(srv.URL + "/api/0/teams/")
	require.NoError(t, err)
	_ = resp.Body.Close()

	out := buf.String()
	assert.Equal(t, 2, strings.Count(out, "service=sentry"))
	assert.Contains(t, out, "status=418")
	assert.Contains(t, out, "/api/0/teams/")
}
