package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/entrhq/htmlrender/pkg/logging"
)

// Config holds the browser supervision settings. Values come from
// DefaultConfig, then an optional YAML file, then HTMLRENDER_* variables.
type Config struct {
	// Browser is the engine to launch: chromium, firefox or webkit.
	Browser Engine `yaml:"browser" envconfig:"HTMLRENDER_BROWSER"`

	// Channel selects a branded build such as chrome or msedge.
	Channel string `yaml:"browser_channel" envconfig:"HTMLRENDER_BROWSER_CHANNEL"`

	// ExecutablePath launches a specific browser binary.
	ExecutablePath string `yaml:"browser_executable_path" envconfig:"HTMLRENDER_BROWSER_EXECUTABLE_PATH"`

	// CDPEndpoint attaches to an existing Chromium over the DevTools protocol.
	CDPEndpoint string `yaml:"connect_over_cdp" envconfig:"HTMLRENDER_CONNECT_OVER_CDP"`

	// RemoteEndpoint connects to a Playwright browser server.
	RemoteEndpoint string `yaml:"connect" envconfig:"HTMLRENDER_CONNECT"`

	ProxyHost   string `yaml:"proxy_host" envconfig:"HTMLRENDER_PROXY_HOST"`
	ProxyBypass string `yaml:"proxy_host_bypass" envconfig:"HTMLRENDER_PROXY_HOST_BYPASS"`

	// LaunchArgs are extra command-line switches for local launches.
	LaunchArgs []string `yaml:"browser_args" envconfig:"HTMLRENDER_BROWSER_ARGS"`
	Headless   bool     `yaml:"headless" envconfig:"HTMLRENDER_HEADLESS"`

	// DownloadHost is tried as a custom mirror when installing browsers.
	DownloadHost string `yaml:"download_host" envconfig:"HTMLRENDER_DOWNLOAD_HOST"`

	// DownloadProxy is used for browser downloads (http, https or socks5).
	DownloadProxy string `yaml:"download_proxy" envconfig:"HTMLRENDER_DOWNLOAD_PROXY"`

	// StoragePath is where browser binaries are kept (PLAYWRIGHT_BROWSERS_PATH).
	StoragePath string `yaml:"storage_path" envconfig:"HTMLRENDER_STORAGE_PATH"`

	// CIMode disables installation; a missing browser is fatal.
	CIMode bool `yaml:"ci" envconfig:"HTMLRENDER_CI"`

	// ShutdownBrowserOnExit closes remote and CDP browsers on shutdown.
	// Locally launched browsers are always closed.
	ShutdownBrowserOnExit bool `yaml:"shutdown_browser_on_exit" envconfig:"HTMLRENDER_SHUTDOWN_BROWSER_ON_EXIT"`

	InstallTimeout     time.Duration `yaml:"install_timeout" envconfig:"HTMLRENDER_INSTALL_TIMEOUT"`
	MirrorProbeTimeout time.Duration `yaml:"mirror_probe_timeout" envconfig:"HTMLRENDER_MIRROR_PROBE_TIMEOUT"`
	MaxInstallCycles   int           `yaml:"max_install_cycles" envconfig:"HTMLRENDER_MAX_INSTALL_CYCLES"`
	InstallRetryDelay  time.Duration `yaml:"install_retry_delay" envconfig:"HTMLRENDER_INSTALL_RETRY_DELAY"`

	// InstallCommand replaces the driver's "install --with-deps <engine>".
	InstallCommand []string `yaml:"install_command" envconfig:"HTMLRENDER_INSTALL_COMMAND"`

	Logging LoggingConfig `yaml:"logging" ignored:"true"`
}

// LoggingConfig mirrors logging.Options.
type LoggingConfig struct {
	Level   string `yaml:"level" envconfig:"HTMLRENDER_LOGGING_LEVEL"`
	Dir     string `yaml:"dir" envconfig:"HTMLRENDER_LOGGING_DIR"`
	Console bool   `yaml:"console" envconfig:"HTMLRENDER_LOGGING_CONSOLE"`
}

// Options converts the section to logging.Options.
func (l LoggingConfig) Options() logging.Options {
	return logging.Options{Dir: l.Dir, Level: l.Level, Console: l.Console}
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Browser:               Chromium,
		Headless:              true,
		ShutdownBrowserOnExit: true,
		InstallTimeout:        300 * time.Second,
		MirrorProbeTimeout:    5 * time.Second,
		MaxInstallCycles:      1,
		InstallRetryDelay:     time.Second,
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// FieldError reports an invalid configuration value.
type FieldError struct {
	Field  string
	Value  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// Validate checks the configuration and normalizes the engine name.
func (c *Config) Validate() error {
	var errs []error

	engine, err := ParseEngine(string(c.Browser))
	if err != nil {
		errs = append(errs, &FieldError{Field: "browser", Value: string(c.Browser), Reason: fmt.Sprintf("must be one of %v", Engines)})
	} else {
		c.Browser = engine
	}

	if c.Channel != "" && !ValidChannel(c.Channel) {
		errs = append(errs, &FieldError{Field: "browser_channel", Value: c.Channel, Reason: fmt.Sprintf("must be one of %v", Channels)})
	}

	if c.DownloadProxy != "" {
		u, err := url.Parse(c.DownloadProxy)
		switch {
		case err != nil:
			errs = append(errs, &FieldError{Field: "download_proxy", Value: c.DownloadProxy, Reason: err.Error()})
		case u.Scheme != "http" && u.Scheme != "https" && u.Scheme != "socks5":
			errs = append(errs, &FieldError{Field: "download_proxy", Value: c.DownloadProxy, Reason: "scheme must be http, https or socks5"})
		}
	}

	if c.DownloadHost != "" {
		if u, err := url.Parse(c.DownloadHost); err != nil || u.Host == "" {
			errs = append(errs, &FieldError{Field: "download_host", Value: c.DownloadHost, Reason: "must be an absolute URL"})
		}
	}

	durations := []struct {
		name string
		d    time.Duration
	}{
		{"install_timeout", c.InstallTimeout},
		{"mirror_probe_timeout", c.MirrorProbeTimeout},
	}
	for _, d := range durations {
		if d.d <= 0 {
			errs = append(errs, &FieldError{Field: d.name, Value: d.d.String(), Reason: "must be positive"})
		}
	}
	if c.InstallRetryDelay < 0 {
		errs = append(errs, &FieldError{Field: "install_retry_delay", Value: c.InstallRetryDelay.String(), Reason: "must not be negative"})
	}
	if c.MaxInstallCycles < 0 {
		errs = append(errs, &FieldError{Field: "max_install_cycles", Value: fmt.Sprint(c.MaxInstallCycles), Reason: "must not be negative"})
	}

	if c.Logging.Level != "" && !logging.ValidLevel(c.Logging.Level) {
		errs = append(errs, &FieldError{Field: "logging.level", Value: c.Logging.Level, Reason: "must be debug, info, warn or error"})
	}

	return errors.Join(errs...)
}

// DefaultPath returns ~/.htmlrender/config.yaml.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".htmlrender", "config.yaml"), nil
}

// Load builds a Config from defaults, the YAML file at path and the
// environment. A missing file is not an error. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	// Tags carry the full variable names so unprefixed names are never read.
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to load environment overrides: %w", err)
	}
	if err := envconfig.Process("", &cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to load logging overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var (
	// globalConfig is the process-wide configuration
	globalConfig *Config
	globalMu     sync.Mutex
)

// Initialize loads the configuration into the global slot.
// This should be called once at application startup.
func Initialize(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	globalConfig = cfg
	return nil
}

// Global returns the global configuration.
// Panics if Initialize has not been called.
func Global() *Config {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalConfig == nil {
		panic("config not initialized: call config.Initialize first")
	}
	return globalConfig
}

// IsInitialized returns true if the global configuration has been initialized.
func IsInitialized() bool {
	globalMu.Lock()
	defer globalMu.Unlock()
	return globalConfig != nil
}
