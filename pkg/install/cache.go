package install

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/gobwas/glob"

	"github.com/entrhq/htmlrender/pkg/logging"
)

// LegacyBrowserPatterns match browser directories in the shared Playwright cache.
var LegacyBrowserPatterns = []string{
	"chromium-*",
	"chromium_headless_shell-*",
	"firefox-*",
	"webkit-*",
	"ffmpeg-*",
}

// LegacyCacheDir returns the per-user Playwright cache for goos, or "" when
// the platform has none.
func LegacyCacheDir(goos, home string) string {
	switch goos {
	case "windows":
		return filepath.Join(home, "AppData", "Local", "ms-playwright")
	case "darwin":
		return filepath.Join(home, "Library", "Caches", "ms-playwright")
	case "linux":
		return filepath.Join(home, ".cache", "ms-playwright")
	default:
		return ""
	}
}

// CleanLegacyCache removes browsers left in the shared Playwright cache once
// a dedicated storage path is in use. Entries matching LegacyBrowserPatterns
// are deleted; failures are logged and skipped. The cache is left alone when
// it is the storage path itself. It returns the removed paths.
func CleanLegacyCache(home, storagePath string, logger *logging.Logger) ([]string, error) {
	logger = logging.OrNop(logger)
	if storagePath == "" {
		return nil, nil
	}

	cacheDir := LegacyCacheDir(runtime.GOOS, home)
	if cacheDir == "" {
		return nil, nil
	}
	if storage, err := ExpandPath(storagePath); err == nil && filepath.Clean(storage) == filepath.Clean(cacheDir) {
		return nil, nil
	}

	entries, err := os.ReadDir(cacheDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read playwright cache %s: %w", cacheDir, err)
	}

	patterns := make([]glob.Glob, 0, len(LegacyBrowserPatterns))
	for _, p := range LegacyBrowserPatterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid cache pattern '%s': %w", p, err)
		}
		patterns = append(patterns, g)
	}

	var removed []string
	for _, e := range entries {
		if !e.IsDir() || !matchAny(patterns, e.Name()) {
			continue
		}
		if len(removed) == 0 {
			logger.Warnf("Browsers are now stored under %s; cleaning the shared Playwright cache at %s", storagePath, cacheDir)
		}

		path := filepath.Join(cacheDir, e.Name())
		logger.Infof("Deleting %s", path)
		if err := os.RemoveAll(path); err != nil {
			logger.Errorf("Failed to delete %s: %v", path, err)
			continue
		}
		removed = append(removed, path)
	}

	if len(removed) > 0 {
		logger.Infof("Playwright cache cleaned (%d entries)", len(removed))
	}
	return removed, nil
}

func matchAny(patterns []glob.Glob, name string) bool {
	for _, g := range patterns {
		if g.Match(name) {
			return true
		}
	}
	return false
}
