// Package metrics exposes Prometheus collectors for browser supervision.
//
// A nil *Collector is valid and records nothing, so components can take an
// optional collector without guarding every call.
package metrics

import (
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "htmlrender"

// Collector groups the htmlrender series.
type Collector struct {
	sessionStarts   *prometheus.CounterVec
	sessionActive   prometheus.Gauge
	pagesOpen       prometheus.Gauge
	pagesTotal      *prometheus.CounterVec
	installAttempts *prometheus.CounterVec
	installDuration prometheus.Histogram
	probeLatency    *prometheus.HistogramVec
	probeFailures   *prometheus.CounterVec
	signals         *prometheus.CounterVec
}

// New registers the collectors with reg. Use prometheus.NewRegistry in tests.
func New(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		sessionStarts: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "starts_total",
				Help:      "Browser session startups by launch mode and outcome",
			},
			[]string{"mode", "outcome"},
		),
		sessionActive: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "active",
				Help:      "1 while a connected browser session exists",
			},
		),
		pagesOpen: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "page",
				Name:      "open",
				Help:      "Number of pages currently open",
			},
		),
		pagesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "page",
				Name:      "scopes_total",
				Help:      "Completed page scopes by outcome",
			},
			[]string{"outcome"},
		),
		installAttempts: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "install",
				Name:      "attempts_total",
				Help:      "Browser install attempts by download source and outcome",
			},
			[]string{"source", "outcome"},
		),
		installDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "install",
				Name:      "duration_seconds",
				Help:      "Duration of browser install attempts",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~8.5m
			},
		),
		probeLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "mirror",
				Name:      "probe_latency_seconds",
				Help:      "TCP connect latency of mirror probes",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~5s
			},
			[]string{"mirror"},
		),
		probeFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "mirror",
				Name:      "probe_failures_total",
				Help:      "Mirror probes that could not connect",
			},
			[]string{"mirror"},
		),
		signals: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "signal",
				Name:      "received_total",
				Help:      "Termination signals routed to shutdown handlers",
			},
			[]string{"signal"},
		),
	}
}

// SessionStarted records a startup attempt.
func (c *Collector) SessionStarted(mode string, err error) {
	if c == nil {
		return
	}
	c.sessionStarts.WithLabelValues(mode, outcome(err)).Inc()
	if err == nil {
		c.sessionActive.Set(1)
	}
}

// SessionClosed marks the session as gone.
func (c *Collector) SessionClosed() {
	if c == nil {
		return
	}
	c.sessionActive.Set(0)
}

// PageOpened increments the open page gauge.
func (c *Collector) PageOpened() {
	if c == nil {
		return
	}
	c.pagesOpen.Inc()
}

// PageClosed decrements the open page gauge and counts the scope outcome.
func (c *Collector) PageClosed(err error) {
	if c == nil {
		return
	}
	c.pagesOpen.Dec()
	c.pagesTotal.WithLabelValues(outcome(err)).Inc()
}

// InstallAttempt records one install command run. source is "mirror" or "official".
func (c *Collector) InstallAttempt(source, result string, d time.Duration) {
	if c == nil {
		return
	}
	c.installAttempts.WithLabelValues(source, result).Inc()
	c.installDuration.Observe(d.Seconds())
}

// MirrorProbe records a probe result.
func (c *Collector) MirrorProbe(name string, latency time.Duration, reachable bool) {
	if c == nil {
		return
	}
	if !reachable {
		c.probeFailures.WithLabelValues(name).Inc()
		return
	}
	c.probeLatency.WithLabelValues(name).Observe(latency.Seconds())
}

// Signal counts a routed signal.
func (c *Collector) Signal(sig os.Signal) {
	if c == nil {
		return
	}
	c.signals.WithLabelValues(sig.String()).Inc()
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
