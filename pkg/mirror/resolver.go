package mirror

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"time"

	"golang.org/x/net/proxy"
	"golang.org/x/sync/errgroup"

	"github.com/entrhq/htmlrender/pkg/logging"
	"github.com/entrhq/htmlrender/pkg/metrics"
	"github.com/entrhq/htmlrender/pkg/telemetry"
)

// LatencyResolution is the granularity probe latencies are rounded to.
const LatencyResolution = 10 * time.Millisecond

// Dialer opens the TCP connections used for probing.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Probe is the result of probing one mirror.
type Probe struct {
	Mirror  Mirror
	Latency time.Duration
	Err     error
}

// Reachable reports whether the probe connected.
func (p Probe) Reachable() bool {
	return p.Err == nil
}

// Resolver probes a fixed list of candidates. It holds no mutable state and
// is safe for concurrent use.
type Resolver struct {
	candidates []Mirror
	dialer     Dialer
	logger     *logging.Logger
	metrics    *metrics.Collector
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithDialer replaces the default net.Dialer.
func WithDialer(d Dialer) Option {
	return func(r *Resolver) {
		if d != nil {
			r.dialer = d
		}
	}
}

// WithLogger sets the logger for probe failures.
func WithLogger(l *logging.Logger) Option {
	return func(r *Resolver) {
		r.logger = l
	}
}

// WithMetrics records probe latencies and failures.
func WithMetrics(c *metrics.Collector) Option {
	return func(r *Resolver) {
		r.metrics = c
	}
}

// NewResolver creates a Resolver over candidates.
func NewResolver(candidates []Mirror, opts ...Option) *Resolver {
	r := &Resolver{
		candidates: candidates,
		dialer:     &net.Dialer{},
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logging.OrNop(r.logger)
	return r
}

// Candidates returns the mirrors the resolver probes.
func (r *Resolver) Candidates() []Mirror {
	return append([]Mirror(nil), r.candidates...)
}

// ProxyDialer returns a Dialer that tunnels probes through a socks5 download
// proxy. For any other proxy URL it returns nil and probes dial directly.
func ProxyDialer(proxyURL string) (Dialer, error) {
	if proxyURL == "" {
		return nil, nil
	}
	u, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("invalid download proxy %q: %w", proxyURL, err)
	}
	if u.Scheme != "socks5" && u.Scheme != "socks5h" {
		return nil, nil
	}

	d, err := proxy.FromURL(u, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("failed to create socks5 dialer: %w", err)
	}
	if cd, ok := d.(proxy.ContextDialer); ok {
		return cd, nil
	}
	return contextDialer{d}, nil
}

// contextDialer adapts a proxy.Dialer without context support.
type contextDialer struct {
	d proxy.Dialer
}

func (c contextDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		conn, err := c.d.Dial(network, address)
		ch <- result{conn, err}
	}()

	select {
	case res := <-ch:
		return res.conn, res.err
	case <-ctx.Done():
		go func() {
			if res := <-ch; res.conn != nil {
				res.conn.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

// ProbeAll probes every candidate concurrently, each bounded by timeout.
// Results are in candidate order.
func (r *Resolver) ProbeAll(ctx context.Context, timeout time.Duration) []Probe {
	ctx, span := telemetry.StartSpan(ctx, "mirror.probe_all", telemetry.AttrMirrorCount.Int(len(r.candidates)))
	defer span.End()

	results := make([]Probe, len(r.candidates))

	// probes never fail the group; failures are recorded per result
	g, gctx := errgroup.WithContext(ctx)
	for i, m := range r.candidates {
		g.Go(func() error {
			results[i] = r.probe(gctx, m, timeout)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (r *Resolver) probe(ctx context.Context, m Mirror, timeout time.Duration) Probe {
	addr, err := m.Address()
	if err != nil {
		r.logger.Debugf("Mirror %s skipped: %v", m.Name, err)
		r.metrics.MirrorProbe(m.Name, 0, false)
		return Probe{Mirror: m, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	conn, err := r.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		r.logger.Debugf("Mirror %s connection failed: %v", m.Name, err)
		r.metrics.MirrorProbe(m.Name, 0, false)
		return Probe{Mirror: m, Err: err}
	}
	latency := time.Since(start).Round(LatencyResolution)
	_ = conn.Close()

	r.metrics.MirrorProbe(m.Name, latency, true)
	return Probe{Mirror: m, Latency: latency}
}

// Resolve returns the best reachable mirror, or nil when none answered
// within timeout.
func (r *Resolver) Resolve(ctx context.Context, timeout time.Duration) *Mirror {
	ctx, span := telemetry.StartSpan(ctx, "mirror.resolve")
	defer span.End()

	probes := r.ProbeAll(ctx, timeout)

	best := SelectBest(probes)
	if best == nil {
		r.logger.Debugf("No mirror reachable among %d candidates", len(probes))
		return nil
	}
	r.logger.Debugf("Best mirror: %s (%v)", best.Mirror, best.Latency)
	span.SetAttributes(telemetry.AttrMirrorName.String(best.Mirror.Name))
	m := best.Mirror
	return &m
}

// SelectBest picks the lowest latency, breaking ties by higher priority.
func SelectBest(probes []Probe) *Probe {
	var best *Probe
	for i := range probes {
		p := &probes[i]
		if !p.Reachable() {
			continue
		}
		if best == nil ||
			p.Latency < best.Latency ||
			(p.Latency == best.Latency && p.Mirror.Priority > best.Mirror.Priority) {
			best = p
		}
	}
	return best
}
