package metrics

import (
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_Sessions(t *testing.T) {
	c := New(prometheus.NewRegistry())

	c.SessionStarted("launch", errors.New("boom"))
	c.SessionStarted("launch", nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.sessionStarts.WithLabelValues("launch", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.sessionStarts.WithLabelValues("launch", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.sessionActive))

	c.SessionClosed()
	assert.Equal(t, 0.0, testutil.ToFloat64(c.sessionActive))
}

func TestCollector_Pages(t *testing.T) {
	c := New(prometheus.NewRegistry())

	c.PageOpened()
	c.PageOpened()
	assert.Equal(t, 2.0, testutil.ToFloat64(c.pagesOpen))

	c.PageClosed(nil)
	c.PageClosed(errors.New("render failed"))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.pagesOpen))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.pagesTotal.WithLabelValues("error")))
}

func TestCollector_InstallAndProbes(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.InstallAttempt("mirror", "failure", 2*time.Second)
	c.InstallAttempt("official", "success", 30*time.Second)
	c.MirrorProbe("Default", 120*time.Millisecond, true)
	c.MirrorProbe("Taobao", 0, false)
	c.Signal(os.Interrupt)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.installAttempts.WithLabelValues("official", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.probeFailures.WithLabelValues("Taobao")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.signals.WithLabelValues("interrupt")))

	err := testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP htmlrender_install_duration_seconds Duration of browser install attempts
# TYPE htmlrender_install_duration_seconds histogram
htmlrender_install_duration_seconds_bucket{le="1"} 0
htmlrender_install_duration_seconds_bucket{le="2"} 1
htmlrender_install_duration_seconds_bucket{le="4"} 1
htmlrender_install_duration_seconds_bucket{le="8"} 1
htmlrender_install_duration_seconds_bucket{le="16"} 1
htmlrender_install_duration_seconds_bucket{le="32"} 2
htmlrender_install_duration_seconds_bucket{le="64"} 2
htmlrender_install_duration_seconds_bucket{le="128"} 2
htmlrender_install_duration_seconds_bucket{le="256"} 2
htmlrender_install_duration_seconds_bucket{le="512"} 2
htmlrender_install_duration_seconds_bucket{le="+Inf"} 2
htmlrender_install_duration_seconds_sum 32
htmlrender_install_duration_seconds_count 2
`), "htmlrender_install_duration_seconds")
	require.NoError(t, err)
}

func TestCollector_NilIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.SessionStarted("cdp", nil)
		c.SessionClosed()
		c.PageOpened()
		c.PageClosed(nil)
		c.InstallAttempt("mirror", "success", time.Second)
		c.MirrorProbe("Default", time.Millisecond, true)
		c.Signal(os.Interrupt)
	})
}
