package browser

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/htmlrender/pkg/config"
	"github.com/entrhq/htmlrender/pkg/install"
	"github.com/entrhq/htmlrender/pkg/logging"
	"github.com/entrhq/htmlrender/pkg/metrics"
	"github.com/entrhq/htmlrender/pkg/telemetry"
)

// Installer installs missing browsers and the Playwright driver.
// *install.Installer implements it.
type Installer interface {
	Install(ctx context.Context, timeout time.Duration) bool
	InstallDriver() error
}

// Manager owns the Playwright driver and the shared browser Session.
// Startup and shutdown are serialized by a single mutex.
type Manager struct {
	cfg       *config.Config
	start     DriverStarter
	installer Installer
	logger    *logging.Logger
	metrics   *metrics.Collector

	mu              sync.Mutex
	driver          Driver
	session         *Session
	restoreEnv      func()
	driverInstalled bool

	state atomic.Int32
}

// Option configures a Manager.
type Option func(*Manager)

// WithDriverStarter replaces the Playwright driver starter.
func WithDriverStarter(s DriverStarter) Option {
	return func(m *Manager) {
		m.start = s
	}
}

// WithInstaller replaces the browser installer.
func WithInstaller(i Installer) Option {
	return func(m *Manager) {
		m.installer = i
	}
}

// WithLogger sets the manager logger.
func WithLogger(l *logging.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithMetrics records session and page metrics.
func WithMetrics(c *metrics.Collector) Option {
	return func(m *Manager) {
		m.metrics = c
	}
}

// NewManager creates a Manager for cfg. No browser is started until the
// first GetSession or GetPage.
func NewManager(cfg *config.Config, opts ...Option) *Manager {
	m := &Manager{cfg: cfg}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger, _ = logging.NewLogger("browser")
	}
	m.logger = logging.OrNop(m.logger)

	if m.start == nil {
		m.start = PlaywrightStarter(&playwright.RunOptions{
			Browsers: []string{cfg.Browser.String()},
			Verbose:  false,
			Stdout:   io.Discard,
			Stderr:   io.Discard,
		})
	}
	if m.installer == nil {
		m.installer = install.New(cfg,
			install.WithLogger(m.logger.Named("install")),
			install.WithMetrics(m.metrics),
		)
	}
	return m
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	return State(m.state.Load())
}

func (m *Manager) setState(s State) {
	m.state.Store(int32(s))
}

// GetSession returns the connected session, starting one if there is none
// or the previous browser disconnected. Concurrent callers wait for a single
// startup and share its result.
func (m *Manager) GetSession(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session.IsConnected() {
		return m.session, nil
	}
	if m.session != nil {
		m.logger.Warnf("Browser disconnected, starting a new session")
		m.setState(StateDisconnected)
	}
	return m.startup(ctx)
}

// Browser returns the browser of the current session.
func (m *Manager) Browser(ctx context.Context) (playwright.Browser, error) {
	s, err := m.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	return s.Browser, nil
}

// Startup replaces any existing session with a new one.
func (m *Manager) Startup(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startup(ctx)
}

func (m *Manager) startup(ctx context.Context) (sess *Session, err error) {
	mode := m.plannedMode()
	ctx, span := telemetry.StartSpan(ctx, "browser.startup",
		telemetry.AttrEngine.String(m.cfg.Browser.String()),
		telemetry.AttrLaunchMode.String(string(mode)),
	)
	defer func() {
		telemetry.End(span, err)
		m.metrics.SessionStarted(string(mode), err)
	}()

	m.setState(StateStarting)
	m.teardown()

	sess, err = m.open(ctx, mode)
	if err != nil {
		m.teardown()
		m.setState(StateDisconnected)
		return nil, err
	}

	m.session = sess
	m.setState(StateConnected)
	m.logger.Infof("Browser %s ready (%s)", sess.Engine, sess.Mode)
	return sess, nil
}

func (m *Manager) open(ctx context.Context, mode LaunchMode) (*Session, error) {
	if err := m.prepareEnv(); err != nil {
		return nil, err
	}
	if err := m.startDriver(); err != nil {
		return nil, err
	}

	var (
		b   playwright.Browser
		err error
	)
	switch mode {
	case ModeCDP:
		b, err = m.connectCDP()
	case ModeConnect:
		b, err = m.connectRemote()
	default:
		b, err = m.launch(ctx)
	}
	if err != nil {
		return nil, err
	}

	return &Session{
		Browser:   b,
		Mode:      mode,
		Engine:    m.cfg.Browser,
		StartedAt: time.Now(),
	}, nil
}

func (m *Manager) plannedMode() LaunchMode {
	if m.cfg.CDPEndpoint != "" {
		if m.cfg.Browser == config.Chromium {
			return ModeCDP
		}
		m.logger.Warnf("connect_over_cdp is only supported by chromium, ignoring it for %s", m.cfg.Browser)
	}
	if m.cfg.RemoteEndpoint != "" {
		return ModeConnect
	}
	return ModeLaunch
}

// prepareEnv points the driver at the configured storage path once.
func (m *Manager) prepareEnv() error {
	if m.restoreEnv != nil || m.cfg.CIMode || m.cfg.StoragePath == "" || m.cfg.ExecutablePath != "" {
		return nil
	}
	restore, err := setBrowsersPath(m.cfg.StoragePath)
	if err != nil {
		return &ConfigError{Field: "storage_path", Value: m.cfg.StoragePath, Err: err}
	}
	m.logger.Debugf("Browsers are stored under %s", m.cfg.StoragePath)
	m.restoreEnv = restore
	return nil
}

func (m *Manager) startDriver() error {
	d, err := m.start()
	if isDriverMissing(err) && !m.cfg.CIMode && m.installer != nil && !m.driverInstalled {
		m.driverInstalled = true
		m.logger.Warnf("Playwright driver not found, installing it")
		if ierr := m.installer.InstallDriver(); ierr != nil {
			return environmentNotReady("failed to install the playwright driver", ierr)
		}
		d, err = m.start()
	}
	if err != nil {
		if isDriverMissing(err) {
			return environmentNotReady("the playwright driver is not installed", err)
		}
		return fmt.Errorf("failed to start playwright: %w", err)
	}
	m.driver = d
	return nil
}

func (m *Manager) browserType(target string) (playwright.BrowserType, error) {
	if m.driver == nil {
		return nil, &StartupError{Kind: ErrDriverNotInitialized, Message: "cannot reach " + target}
	}
	return m.driver.BrowserType(m.cfg.Browser)
}

func (m *Manager) connectCDP() (playwright.Browser, error) {
	endpoint := m.cfg.CDPEndpoint
	bt, err := m.browserType(endpoint)
	if err != nil {
		return nil, err
	}

	m.logger.Infof("Connecting to browser over CDP at %s", endpoint)
	b, err := bt.ConnectOverCDP(endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to connect over CDP to %s: %w", endpoint, err)
	}
	return b, nil
}

func (m *Manager) connectRemote() (playwright.Browser, error) {
	endpoint := m.cfg.RemoteEndpoint
	bt, err := m.browserType(endpoint)
	if err != nil {
		return nil, err
	}

	m.logger.Infof("Connecting to browser server at %s", endpoint)
	b, err := bt.Connect(endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", endpoint, err)
	}
	return b, nil
}

func (m *Manager) launchOptions() (playwright.BrowserTypeLaunchOptions, error) {
	opts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(m.cfg.Headless),
	}
	if m.cfg.Channel != "" {
		opts.Channel = playwright.String(m.cfg.Channel)
	}

	proxy, err := ProxySettings(m.cfg.ProxyHost, m.cfg.ProxyBypass)
	if err != nil {
		return opts, err
	}
	opts.Proxy = proxy

	if len(m.cfg.LaunchArgs) > 0 {
		opts.Args = append([]string(nil), m.cfg.LaunchArgs...)
	}
	if m.cfg.ExecutablePath != "" {
		opts.ExecutablePath = playwright.String(m.cfg.ExecutablePath)
	}
	return opts, nil
}

// launch starts a local browser, installing it when the executable is
// missing.
func (m *Manager) launch(ctx context.Context) (playwright.Browser, error) {
	opts, err := m.launchOptions()
	if err != nil {
		return nil, err
	}
	bt, err := m.browserType("a local browser")
	if err != nil {
		return nil, err
	}

	cycles := m.cfg.MaxInstallCycles
	for cycle := 0; ; cycle++ {
		m.logger.Infof("Launching %s", m.cfg.Browser)
		b, err := bt.Launch(opts)
		if err == nil {
			return b, nil
		}

		if m.cfg.ExecutablePath != "" {
			return nil, &StartupError{
				Kind:    ErrExecutablePath,
				Message: fmt.Sprintf("failed to launch %s, check browser_executable_path", m.cfg.ExecutablePath),
				Err:     err,
			}
		}
		if !IsMissingExecutable(err) {
			return nil, fmt.Errorf("failed to launch %s: %w", m.cfg.Browser, err)
		}
		if m.cfg.CIMode {
			return nil, environmentNotReady(fmt.Sprintf("%s is not installed and CI mode disables installation", m.cfg.Browser), err)
		}
		if m.installer == nil || cycle >= cycles {
			return nil, environmentNotReady(fmt.Sprintf("%s is still missing after %d install attempts", m.cfg.Browser, cycle), err)
		}

		m.logger.Warnf("%s executable not found, installing (%d/%d)", m.cfg.Browser, cycle+1, cycles)
		if !m.installer.Install(ctx, m.cfg.InstallTimeout) {
			return nil, environmentNotReady(fmt.Sprintf("failed to install %s", m.cfg.Browser), errInstallFailed)
		}
		if err := sleepContext(ctx, m.cfg.InstallRetryDelay); err != nil {
			return nil, err
		}
	}
}

// Shutdown closes the session and stops the driver. It is idempotent and
// always returns nil; failures are logged.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil && m.driver == nil && m.restoreEnv == nil {
		return nil
	}

	_, span := telemetry.StartSpan(ctx, "browser.shutdown")
	defer span.End()

	m.logger.Infof("Shutting down browser")
	m.teardown()
	if m.restoreEnv != nil {
		m.restoreEnv()
		m.restoreEnv = nil
	}
	m.setState(StateStopped)
	return nil
}

// teardown releases the session and the driver. Callers hold m.mu.
func (m *Manager) teardown() {
	if s := m.session; s != nil {
		m.session = nil
		if !s.Mode.Remote() || m.cfg.ShutdownBrowserOnExit {
			suppressAndLog(m.logger, "close browser", func() error {
				return s.Browser.Close()
			})
		} else {
			m.logger.Infof("Leaving %s browser running", s.Mode)
		}
		m.metrics.SessionClosed()
	}

	if d := m.driver; d != nil {
		m.driver = nil
		suppressAndLog(m.logger, "stop playwright", d.Stop)
	}
}

// suppressAndLog runs a shutdown step, logging errors and panics instead of
// propagating them.
func suppressAndLog(logger *logging.Logger, step string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("Panic during %s: %v", step, r)
		}
	}()
	if err := fn(); err != nil {
		logger.Errorf("Failed to %s: %v", step, err)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
