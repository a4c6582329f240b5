package install

import (
	"fmt"
	"io"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/htmlrender/pkg/config"
	"github.com/entrhq/htmlrender/pkg/process"
)

// CommandFunc builds the browser install command for an engine.
type CommandFunc func(engine config.Engine) (process.Command, error)

// DriverCommand runs "install --with-deps <engine>" through the Playwright
// driver bundled with playwright-go.
func DriverCommand(engine config.Engine) (process.Command, error) {
	driver, err := playwright.NewDriver(&playwright.RunOptions{})
	if err != nil {
		return process.Command{}, fmt.Errorf("failed to locate playwright driver: %w", err)
	}

	cmd := driver.Command("install", "--with-deps", engine.String())
	return process.Command{Name: cmd.Path, Args: cmd.Args[1:]}, nil
}

// StaticCommand returns a CommandFunc that runs argv with the engine appended.
// Used when install_command is configured.
func StaticCommand(argv []string) CommandFunc {
	return func(engine config.Engine) (process.Command, error) {
		if len(argv) == 0 {
			return process.Command{}, process.ErrEmptyCommand
		}
		args := append(append([]string(nil), argv[1:]...), engine.String())
		return process.Command{Name: argv[0], Args: args}, nil
	}
}

// EnsureDriver downloads the Playwright driver without any browser. Output
// is written to w.
func EnsureDriver(w io.Writer) error {
	err := playwright.Install(&playwright.RunOptions{
		SkipInstallBrowsers: true,
		Verbose:             false,
		Stdout:              w,
		Stderr:              w,
	})
	if err != nil {
		return fmt.Errorf("failed to install playwright driver: %w", err)
	}
	return nil
}
