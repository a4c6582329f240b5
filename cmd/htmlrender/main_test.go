package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/htmlrender/pkg/browser"
	"github.com/entrhq/htmlrender/pkg/config"
	"github.com/entrhq/htmlrender/pkg/logging"
	"github.com/entrhq/htmlrender/pkg/mirror"
)

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, "htmlrender v"+version+"\n", out.String())
}

func TestRenderProbes(t *testing.T) {
	probes := []mirror.Probe{
		{Mirror: mirror.Builtin[0], Latency: 120 * time.Millisecond},
		{Mirror: mirror.Builtin[1], Latency: 40 * time.Millisecond},
		{Mirror: mirror.Mirror{Name: "Custom", URL: "https://mirror.local", Priority: mirror.CustomPriority}, Err: assert.AnError},
	}

	out := renderProbes(probes)
	assert.Contains(t, out, "Taobao")
	assert.Contains(t, out, "unreachable")
	assert.Contains(t, out, "40ms")

	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "Taobao") {
			assert.Contains(t, line, "*")
		}
		if strings.Contains(line, "Default") {
			assert.NotContains(t, line, "*")
		}
	}
}

func TestHealthHandler(t *testing.T) {
	mgr := browser.NewManager(config.DefaultConfig(), browser.WithLogger(logging.Nop()))

	rec := httptest.NewRecorder()
	healthHandler(mgr)(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"state":"uninitialized"}`, rec.Body.String())
}

func TestRenderHandler_RejectsBadRequests(t *testing.T) {
	h := &renderHandler{logger: logging.Nop(), timeout: time.Second}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/render", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/render?quality=high", strings.NewReader("<p/>")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/render?scale=x", strings.NewReader("<p/>")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
