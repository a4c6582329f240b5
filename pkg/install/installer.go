// Package install downloads Playwright browsers with mirror selection and a
// fallback to the official source.
//
// An install runs at most two attempts. The first uses the fastest reachable
// mirror (or the environment default when none answered). If it fails, times
// out or cannot start, the second runs with PLAYWRIGHT_DOWNLOAD_HOST removed.
// Each attempt runs in a subprocess whose environment is built from the
// parent's; the parent environment is never modified.
package install

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/entrhq/htmlrender/pkg/config"
	"github.com/entrhq/htmlrender/pkg/logging"
	"github.com/entrhq/htmlrender/pkg/metrics"
	"github.com/entrhq/htmlrender/pkg/mirror"
	"github.com/entrhq/htmlrender/pkg/process"
	"github.com/entrhq/htmlrender/pkg/telemetry"
)

// Outcome classifies an install attempt.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeTimeout Outcome = "timeout"
	OutcomeError   Outcome = "error"
)

// Attempt records one run of the install command.
type Attempt struct {
	ID       string
	Engine   config.Engine
	Mirror   *mirror.Mirror
	Official bool
	Timeout  time.Duration
	Outcome  Outcome
	ExitCode int
	Message  string
	Output   string
	Duration time.Duration
}

// Source labels the download host used by the attempt.
func (a Attempt) Source() string {
	switch {
	case a.Official:
		return "official"
	case a.Mirror != nil:
		return "mirror"
	default:
		return "default"
	}
}

// Report is the result of an install.
type Report struct {
	Success  bool
	Attempts []Attempt
}

// Executor runs a command to completion. *process.Runner implements it.
type Executor interface {
	Run(ctx context.Context, c process.Command, onStdout, onStderr process.LineFunc) (*process.Result, error)
}

// MirrorResolver picks a download mirror. *mirror.Resolver implements it.
type MirrorResolver interface {
	Resolve(ctx context.Context, timeout time.Duration) *mirror.Mirror
}

// Installer installs the configured browser engine.
type Installer struct {
	engine       config.Engine
	proxy        string
	storagePath  string
	probeTimeout time.Duration

	command  CommandFunc
	exec     Executor
	resolver MirrorResolver
	environ  func() []string
	logger   *logging.Logger
	metrics  *metrics.Collector
}

// Option configures an Installer.
type Option func(*Installer)

// WithExecutor replaces the subprocess runner.
func WithExecutor(e Executor) Option {
	return func(i *Installer) {
		i.exec = e
	}
}

// WithResolver replaces the mirror resolver.
func WithResolver(r MirrorResolver) Option {
	return func(i *Installer) {
		i.resolver = r
	}
}

// WithCommand replaces the install command builder.
func WithCommand(fn CommandFunc) Option {
	return func(i *Installer) {
		i.command = fn
	}
}

// WithEnviron sets the base environment for install subprocesses
// (default os.Environ).
func WithEnviron(fn func() []string) Option {
	return func(i *Installer) {
		i.environ = fn
	}
}

// WithLogger sets the installer logger.
func WithLogger(l *logging.Logger) Option {
	return func(i *Installer) {
		i.logger = l
	}
}

// WithMetrics records install attempts.
func WithMetrics(c *metrics.Collector) Option {
	return func(i *Installer) {
		i.metrics = c
	}
}

// New creates an Installer from cfg.
func New(cfg *config.Config, opts ...Option) *Installer {
	i := &Installer{
		engine:       cfg.Browser,
		proxy:        cfg.DownloadProxy,
		storagePath:  cfg.StoragePath,
		probeTimeout: cfg.MirrorProbeTimeout,
		environ:      os.Environ,
	}
	for _, opt := range opts {
		opt(i)
	}
	i.logger = logging.OrNop(i.logger)

	if i.command == nil {
		if len(cfg.InstallCommand) > 0 {
			i.command = StaticCommand(cfg.InstallCommand)
		} else {
			i.command = DriverCommand
		}
	}
	if i.exec == nil {
		i.exec = process.NewRunner(process.WithLogger(i.logger.Named("process")))
	}
	if i.resolver == nil {
		dialer, err := mirror.ProxyDialer(cfg.DownloadProxy)
		if err != nil {
			i.logger.Warnf("Mirror probes will not use the download proxy: %v", err)
		}
		i.resolver = mirror.NewResolver(
			mirror.Candidates(cfg.DownloadHost),
			mirror.WithDialer(dialer),
			mirror.WithLogger(i.logger.Named("mirror")),
			mirror.WithMetrics(i.metrics),
		)
	}
	return i
}

// Install installs the browser, retrying once from the official source.
// It reports true only when an attempt exits with status 0 within timeout.
func (i *Installer) Install(ctx context.Context, timeout time.Duration) bool {
	return i.Run(ctx, timeout).Success
}

// Run is Install with the attempt records.
func (i *Installer) Run(ctx context.Context, timeout time.Duration) (report Report) {
	ctx, span := telemetry.StartSpan(ctx, "install.browser", telemetry.AttrEngine.String(i.engine.String()))
	defer func() {
		var err error
		if !report.Success {
			err = errors.New("browser installation failed")
		}
		telemetry.End(span, err)
	}()

	i.logger.Infof("Checking %s installation...", i.engine)

	best := i.resolver.Resolve(ctx, i.probeTimeout)
	env := DownloadEnv(i.environ(), DownloadOptions{
		Mirror:      best,
		Proxy:       i.proxy,
		StoragePath: i.storagePath,
	}, i.logger)

	first := i.attempt(ctx, timeout, env, best, false)
	report.Attempts = append(report.Attempts, first)
	if first.Outcome == OutcomeSuccess {
		i.logger.Infof("Installation succeeded")
		report.Success = true
		return report
	}
	if ctx.Err() != nil {
		i.logger.Errorf("Installation aborted: %v", ctx.Err())
		return report
	}

	i.logger.Warnf("Installation failed (%s), retrying with official mirror...", first.Message)
	second := i.attempt(ctx, timeout, OfficialEnv(env), nil, true)
	report.Attempts = append(report.Attempts, second)
	if second.Outcome == OutcomeSuccess {
		i.logger.Infof("Installation succeeded")
		report.Success = true
		return report
	}

	i.logger.Errorf("Installation failed with: %s", second.Message)
	return report
}

func (i *Installer) attempt(ctx context.Context, timeout time.Duration, env []string, m *mirror.Mirror, official bool) Attempt {
	a := Attempt{
		ID:       uuid.NewString(),
		Engine:   i.engine,
		Mirror:   m,
		Official: official,
		Timeout:  timeout,
		ExitCode: -1,
	}
	host := a.Source()
	if m != nil {
		host = m.Name
	}
	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, "install.attempt",
		telemetry.AttrEngine.String(i.engine.String()),
		telemetry.AttrInstallID.String(a.ID),
		telemetry.AttrMirrorName.String(host),
	)
	defer func() {
		i.metrics.InstallAttempt(a.Source(), string(a.Outcome), a.Duration)
		span.SetAttributes(telemetry.AttrExitCode.Int(a.ExitCode))
		var err error
		if a.Outcome != OutcomeSuccess {
			err = errors.New(a.Message)
		}
		telemetry.End(span, err)
	}()

	cmd, err := i.command(i.engine)
	if err != nil {
		a.Outcome = OutcomeError
		a.Message = fmt.Sprintf("An error occurred during installation: %v", err)
		a.Duration = time.Since(start)
		return a
	}
	cmd.Env = env

	i.logger.Debugf("Starting install attempt %s: %s", a.ID, cmd)
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := i.exec.Run(actx, cmd,
		func(line string) { i.logger.Infof("%s", line) },
		func(line string) { i.logger.Warnf("Install error: %s", line) },
	)
	a.Duration = time.Since(start)
	if res != nil {
		a.ExitCode = res.ExitCode
		a.Output = res.Stdout
	}

	switch {
	case errors.Is(err, process.ErrTimeout):
		a.Outcome = OutcomeTimeout
		a.Message = fmt.Sprintf("Timed out (%s)", timeout)
	case err != nil:
		a.Outcome = OutcomeError
		a.Message = fmt.Sprintf("An error occurred during installation: %v", err)
	case res.ExitCode != 0:
		a.Outcome = OutcomeFailure
		a.Message = fmt.Sprintf("Exited with code %d", res.ExitCode)
	default:
		a.Outcome = OutcomeSuccess
		a.Message = "Installation completed"
	}
	return a
}

// InstallDriver fetches the Playwright driver itself.
func (i *Installer) InstallDriver() error {
	i.logger.Infof("Installing playwright driver...")
	return EnsureDriver(i.logger.Writer())
}
