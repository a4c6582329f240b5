package browser

import (
	"fmt"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/htmlrender/pkg/config"
)

// Driver is the running Playwright driver that sessions are created from.
type Driver interface {
	BrowserType(engine config.Engine) (playwright.BrowserType, error)
	Stop() error
}

// DriverStarter starts a Driver.
type DriverStarter func() (Driver, error)

// PlaywrightStarter starts the driver bundled with playwright-go.
func PlaywrightStarter(opts *playwright.RunOptions) DriverStarter {
	return func() (Driver, error) {
		pw, err := playwright.Run(opts)
		if err != nil {
			return nil, err
		}
		return &playwrightDriver{pw: pw}, nil
	}
}

type playwrightDriver struct {
	pw *playwright.Playwright
}

func (d *playwrightDriver) BrowserType(engine config.Engine) (playwright.BrowserType, error) {
	switch engine {
	case config.Chromium:
		return d.pw.Chromium, nil
	case config.Firefox:
		return d.pw.Firefox, nil
	case config.WebKit:
		return d.pw.WebKit, nil
	default:
		return nil, &ConfigError{Field: "browser", Value: string(engine), Err: fmt.Errorf("must be one of %v", config.Engines)}
	}
}

func (d *playwrightDriver) Stop() error {
	return d.pw.Stop()
}
