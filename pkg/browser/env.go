package browser

import (
	"fmt"
	"os"

	"github.com/entrhq/htmlrender/pkg/install"
)

// setBrowsersPath points the driver at storage and returns a func that
// restores the previous value.
func setBrowsersPath(storage string) (func(), error) {
	path, err := install.ExpandPath(storage)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage path: %w", err)
	}

	prev, had := os.LookupEnv(install.EnvBrowsersPath)
	if err := os.Setenv(install.EnvBrowsersPath, path); err != nil {
		return nil, fmt.Errorf("failed to set %s: %w", install.EnvBrowsersPath, err)
	}

	return func() {
		if had {
			os.Setenv(install.EnvBrowsersPath, prev)
		} else {
			os.Unsetenv(install.EnvBrowsersPath)
		}
	}, nil
}
