// Package main provides the htmlrender command: browser installation,
// mirror checks, one-off screenshots and a long-running render service.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/entrhq/htmlrender/pkg/browser"
	"github.com/entrhq/htmlrender/pkg/config"
	"github.com/entrhq/htmlrender/pkg/install"
	"github.com/entrhq/htmlrender/pkg/logging"
	"github.com/entrhq/htmlrender/pkg/metrics"
	"github.com/entrhq/htmlrender/pkg/signals"
	"github.com/entrhq/htmlrender/pkg/telemetry"
)

const version = "0.1.0"

var (
	configPath string
	traceSpans bool
)

var rootCmd = &cobra.Command{
	Use:           "htmlrender",
	Short:         "Supervise a headless browser for HTML rendering",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (default ~/.htmlrender/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&traceSpans, "trace", false, "Print trace spans to stderr")

	rootCmd.AddCommand(installCmd, mirrorsCmd, screenshotCmd, serveCmd, versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "htmlrender v%s\n", version)
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+err.Error()))
		os.Exit(1)
	}
}

// app holds what every command needs.
type app struct {
	cfg      *config.Config
	logger   *logging.Logger
	router   *signals.Router
	registry *prometheus.Registry
	metrics  *metrics.Collector
	tracer   *telemetry.TracerProvider
}

// newApp loads configuration, sets up logging, metrics and tracing, and
// routes termination signals to cancel. Callers must call close.
func newApp(cancel context.CancelFunc) (*app, error) {
	path := configPath
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	if err := config.Initialize(path); err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	cfg := config.Global()

	logging.Configure(cfg.Logging.Options())
	logger, _ := logging.NewLogger("htmlrender")
	logger = logging.OrNop(logger)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	col := metrics.New(registry)

	a := &app{
		cfg:      cfg,
		logger:   logger,
		router:   signals.Default(),
		registry: registry,
		metrics:  col,
	}

	if traceSpans {
		tp, err := telemetry.NewTracerProvider("htmlrender", version, os.Stderr)
		if err != nil {
			return nil, fmt.Errorf("failed to start tracing: %w", err)
		}
		a.tracer = tp
	}

	a.router.OnDeliver(col.Signal)
	a.router.Install()
	a.router.Register(func(sig os.Signal) {
		logger.Infof("Received %s, shutting down", sig)
		cancel()
	})

	logger.Debugf("Loaded configuration from %s", path)
	return a, nil
}

func (a *app) installer() *install.Installer {
	return install.New(a.cfg,
		install.WithLogger(a.logger.Named("install")),
		install.WithMetrics(a.metrics),
	)
}

func (a *app) manager() *browser.Manager {
	return browser.NewManager(a.cfg,
		browser.WithInstaller(a.installer()),
		browser.WithLogger(a.logger.Named("browser")),
		browser.WithMetrics(a.metrics),
	)
}

func (a *app) close() {
	if a.tracer != nil {
		if err := a.tracer.Shutdown(context.Background()); err != nil {
			a.logger.Warnf("Failed to flush spans: %v", err)
		}
	}
	a.router.Stop()
	a.logger.Close()
}

// run sets up an app bound to a cancellable context and passes both to fn.
func run(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	a, err := newApp(cancel)
	if err != nil {
		return err
	}
	defer a.close()

	return fn(ctx, a)
}
