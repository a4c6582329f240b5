package install

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/htmlrender/pkg/mirror"
)

func TestDownloadEnv(t *testing.T) {
	base := []string{"PATH=/bin", "HTTP_PROXY=", EnvDownloadHost + "=https://old"}
	m := &mirror.Mirror{Name: "Custom", URL: "https://mirror.example.com/pw", Priority: mirror.CustomPriority}

	env := DownloadEnv(base, DownloadOptions{Mirror: m, Proxy: "socks5://127.0.0.1:1080"}, nil)

	host, ok := lookupEnv(env, EnvDownloadHost)
	require.True(t, ok)
	assert.Equal(t, m.URL, host)

	timeout, _ := lookupEnv(env, EnvDownloadConnectionTimeout)
	assert.Equal(t, "300000", timeout)

	httpProxy, _ := lookupEnv(env, EnvHTTPProxy)
	assert.Equal(t, "socks5://127.0.0.1:1080", httpProxy, "empty proxy variables are replaced")
	httpsProxy, _ := lookupEnv(env, EnvHTTPSProxy)
	assert.Equal(t, "socks5://127.0.0.1:1080", httpsProxy)

	_, ok = lookupEnv(env, EnvBrowsersPath)
	assert.False(t, ok)

	assert.Equal(t, []string{"PATH=/bin", "HTTP_PROXY=", EnvDownloadHost + "=https://old"}, base)
}

func TestOfficialEnv(t *testing.T) {
	env := OfficialEnv([]string{"A=1", EnvDownloadHost + "=https://mirror", "B=2"})
	assert.Equal(t, []string{"A=1", "B=2"}, env)
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := ExpandPath("~/browsers")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "browsers"), got)

	got, err = ExpandPath("relative")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(got))
}

func TestCleanLegacyCache(t *testing.T) {
	home := t.TempDir()
	cacheDir := LegacyCacheDir(runtime.GOOS, home)
	if cacheDir == "" {
		t.Skipf("no legacy cache on %s", runtime.GOOS)
	}

	for _, d := range []string{"chromium-1140", "chromium_headless_shell-1140", "firefox-1465", "ffmpeg-1010", "keep-me"} {
		require.NoError(t, os.MkdirAll(filepath.Join(cacheDir, d, "bin"), 0755))
	}
	require.NoError(t, os.WriteFile(filepath.Join(cacheDir, "webkit-2000.zip"), []byte("x"), 0644))

	removed, err := CleanLegacyCache(home, filepath.Join(home, "storage"), nil)
	require.NoError(t, err)
	assert.Len(t, removed, 4)

	entries, err := os.ReadDir(cacheDir)
	require.NoError(t, err)
	var left []string
	for _, e := range entries {
		left = append(left, e.Name())
	}
	assert.ElementsMatch(t, []string{"keep-me", "webkit-2000.zip"}, left)
}

func TestCleanLegacyCache_Skips(t *testing.T) {
	home := t.TempDir()
	cacheDir := LegacyCacheDir(runtime.GOOS, home)
	if cacheDir == "" {
		t.Skipf("no legacy cache on %s", runtime.GOOS)
	}
	require.NoError(t, os.MkdirAll(filepath.Join(cacheDir, "chromium-1"), 0755))

	removed, err := CleanLegacyCache(home, "", nil)
	require.NoError(t, err)
	assert.Empty(t, removed, "no storage path configured")

	removed, err = CleanLegacyCache(home, cacheDir, nil)
	require.NoError(t, err)
	assert.Empty(t, removed, "storage path is the cache itself")

	removed, err = CleanLegacyCache(t.TempDir(), filepath.Join(home, "storage"), nil)
	require.NoError(t, err)
	assert.Empty(t, removed, "missing cache directory")

	assert.DirExists(t, filepath.Join(cacheDir, "chromium-1"))
}
