// Package render takes screenshots of HTML and URLs using pages from a
// browser.Manager.
package render

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/htmlrender/pkg/browser"
	"github.com/entrhq/htmlrender/pkg/logging"
)

// DefaultTimeout bounds navigation and screenshots.
const DefaultTimeout = 30 * time.Second

// ImageType is the screenshot encoding.
type ImageType string

const (
	PNG  ImageType = "png"
	JPEG ImageType = "jpeg"
)

// PageProvider hands out scoped pages. *browser.Manager implements it.
type PageProvider interface {
	GetPage(ctx context.Context, opts browser.PageOptions, fn browser.PageFunc) error
}

// Options controls a screenshot.
type Options struct {
	// BaseURL is loaded before the HTML is set so relative resources resolve.
	BaseURL string

	// Wait is an extra delay after the content settles.
	Wait time.Duration

	// Type defaults to PNG.
	Type ImageType

	// Quality applies to JPEG only (0-100).
	Quality int

	// ViewportOnly captures the visible viewport instead of the full page.
	ViewportOnly bool

	// Timeout defaults to DefaultTimeout.
	Timeout time.Duration

	DeviceScaleFactor float64
	Viewport          *playwright.Size
}

func (o Options) timeoutMillis() *float64 {
	t := o.Timeout
	if t <= 0 {
		t = DefaultTimeout
	}
	return playwright.Float(float64(t.Milliseconds()))
}

func (o Options) screenshotType() (*playwright.ScreenshotType, *int, error) {
	switch o.Type {
	case "", PNG:
		return playwright.ScreenshotTypePng, nil, nil
	case JPEG:
		if o.Quality > 0 {
			return playwright.ScreenshotTypeJpeg, playwright.Int(o.Quality), nil
		}
		return playwright.ScreenshotTypeJpeg, nil, nil
	default:
		return nil, nil, fmt.Errorf("unsupported image type: %s", o.Type)
	}
}

func (o Options) pageOptions() browser.PageOptions {
	return browser.PageOptions{
		DeviceScaleFactor: o.DeviceScaleFactor,
		Viewport:          o.Viewport,
	}
}

// Renderer takes screenshots.
type Renderer struct {
	pages  PageProvider
	logger *logging.Logger
}

// New creates a Renderer over pages.
func New(pages PageProvider, logger *logging.Logger) *Renderer {
	return &Renderer{pages: pages, logger: logging.OrNop(logger)}
}

// HTML renders html and returns the screenshot.
func (r *Renderer) HTML(ctx context.Context, html string, opts Options) ([]byte, error) {
	return r.capture(ctx, opts, "", setContent(html, opts))
}

// URL navigates to url and returns the screenshot.
func (r *Renderer) URL(ctx context.Context, url string, opts Options) ([]byte, error) {
	return r.capture(ctx, opts, "", func(page playwright.Page) error {
		_, err := page.Goto(url, playwright.PageGotoOptions{
			WaitUntil: playwright.WaitUntilStateNetworkidle,
			Timeout:   opts.timeoutMillis(),
		})
		if err != nil {
			return fmt.Errorf("failed to navigate to %s: %w", url, err)
		}
		return nil
	})
}

// Element renders html and captures the first element matching selector.
func (r *Renderer) Element(ctx context.Context, html, selector string, opts Options) ([]byte, error) {
	if selector == "" {
		return nil, errors.New("selector is required")
	}
	return r.capture(ctx, opts, selector, setContent(html, opts))
}

func setContent(html string, opts Options) browser.PageFunc {
	return func(page playwright.Page) error {
		if opts.BaseURL != "" {
			if _, err := page.Goto(opts.BaseURL, playwright.PageGotoOptions{Timeout: opts.timeoutMillis()}); err != nil {
				return fmt.Errorf("failed to load base url %s: %w", opts.BaseURL, err)
			}
		}
		err := page.SetContent(html, playwright.PageSetContentOptions{
			WaitUntil: playwright.WaitUntilStateNetworkidle,
			Timeout:   opts.timeoutMillis(),
		})
		if err != nil {
			return fmt.Errorf("failed to set content: %w", err)
		}
		return nil
	}
}

// capture runs load on a fresh page, then screenshots the page or, when
// selector is set, the first matching element.
func (r *Renderer) capture(ctx context.Context, opts Options, selector string, load browser.PageFunc) ([]byte, error) {
	typ, quality, err := opts.screenshotType()
	if err != nil {
		return nil, err
	}

	var img []byte
	err = r.pages.GetPage(ctx, opts.pageOptions(), func(page playwright.Page) error {
		page.On("console", func(msg playwright.ConsoleMessage) {
			r.logger.Debugf("[Browser Console]: %s", msg.Text())
		})

		if err := load(page); err != nil {
			return err
		}
		if err := wait(ctx, opts.Wait); err != nil {
			return err
		}

		var err error
		if selector != "" {
			img, err = page.Locator(selector).First().Screenshot(playwright.LocatorScreenshotOptions{
				Type:    typ,
				Quality: quality,
				Timeout: opts.timeoutMillis(),
			})
		} else {
			img, err = page.Screenshot(playwright.PageScreenshotOptions{
				FullPage: playwright.Bool(!opts.ViewportOnly),
				Type:     typ,
				Quality:  quality,
				Timeout:  opts.timeoutMillis(),
			})
		}
		if err != nil {
			return fmt.Errorf("screenshot failed: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return img, nil
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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
