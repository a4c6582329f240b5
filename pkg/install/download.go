package install

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/entrhq/htmlrender/pkg/logging"
	"github.com/entrhq/htmlrender/pkg/mirror"
)

// Environment variables understood by the Playwright driver.
const (
	EnvDownloadHost              = "PLAYWRIGHT_DOWNLOAD_HOST"
	EnvDownloadConnectionTimeout = "PLAYWRIGHT_DOWNLOAD_CONNECTION_TIMEOUT"
	EnvBrowsersPath              = "PLAYWRIGHT_BROWSERS_PATH"
	EnvHTTPProxy                 = "HTTP_PROXY"
	EnvHTTPSProxy                = "HTTPS_PROXY"
)

// DownloadConnectionTimeout is the driver's download connect timeout in ms.
const DownloadConnectionTimeout = "300000"

// DownloadOptions describes where and how browsers are downloaded.
type DownloadOptions struct {
	// Mirror is the download host, or nil to keep the environment's default.
	Mirror *mirror.Mirror

	// Proxy is the download proxy URL.
	Proxy string

	// StoragePath is the browser install directory.
	StoragePath string
}

// DownloadEnv returns a copy of base prepared for an install subprocess.
// The parent process environment is never modified. Proxy variables already
// present in base take precedence over opts.Proxy.
func DownloadEnv(base []string, opts DownloadOptions, logger *logging.Logger) []string {
	logger = logging.OrNop(logger)
	env := append([]string(nil), base...)

	env = setEnv(env, EnvDownloadConnectionTimeout, DownloadConnectionTimeout)

	if opts.Proxy != "" {
		for _, key := range []string{EnvHTTPProxy, EnvHTTPSProxy} {
			if v, ok := lookupEnv(env, key); ok && v != "" {
				continue
			}
			logger.Infof("Using %s proxy: %s", strings.ToLower(strings.TrimSuffix(key, "_PROXY")), opts.Proxy)
			env = setEnv(env, key, opts.Proxy)
		}
	}

	if opts.Mirror != nil {
		logger.Infof("Using mirror source: %s", opts.Mirror)
		env = setEnv(env, EnvDownloadHost, opts.Mirror.URL)
	} else {
		logger.Infof("Mirror source not available, using default")
	}

	if opts.StoragePath != "" {
		if p, err := ExpandPath(opts.StoragePath); err == nil {
			env = setEnv(env, EnvBrowsersPath, p)
		} else {
			logger.Warnf("Ignoring storage path %q: %v", opts.StoragePath, err)
		}
	}

	return env
}

// OfficialEnv returns env without a download host so the driver falls back
// to the official source.
func OfficialEnv(env []string) []string {
	return unsetEnv(env, EnvDownloadHost)
}

// ExpandPath expands a leading "~" and makes p absolute.
func ExpandPath(p string) (string, error) {
	if p == "~" || strings.HasPrefix(p, "~/") || strings.HasPrefix(p, `~\`) {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get user home directory: %w", err)
		}
		p = filepath.Join(home, p[1:])
	}
	return filepath.Abs(p)
}

func lookupEnv(env []string, key string) (string, bool) {
	prefix := key + "="
	for i := len(env) - 1; i >= 0; i-- {
		if strings.HasPrefix(env[i], prefix) {
			return env[i][len(prefix):], true
		}
	}
	return "", false
}

func setEnv(env []string, key, value string) []string {
	return append(unsetEnv(env, key), key+"="+value)
}

func unsetEnv(env []string, key string) []string {
	prefix := key + "="
	out := make([]string, 0, len(env))
	for _, kv := range env {
		if !strings.HasPrefix(kv, prefix) {
			out = append(out, kv)
		}
	}
	return out
}
