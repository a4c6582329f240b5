package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/spf13/cobra"

	"github.com/entrhq/htmlrender/pkg/render"
)

var screenshotFlags struct {
	url      string
	html     string
	output   string
	selector string
	format   string
	quality  int
	scale    float64
	wait     time.Duration
	width    int
	height   int
	viewport bool
}

var screenshotCmd = &cobra.Command{
	Use:   "screenshot",
	Short: "Render HTML or a URL to an image",
	Example: `  htmlrender screenshot --url https://example.com -o example.png
  htmlrender screenshot --html card.html --selector "#card" -o card.png
  echo "<h1>hi</h1>" | htmlrender screenshot --html - -o hi.png`,
	RunE: func(cmd *cobra.Command, args []string) error {
		f := screenshotFlags
		if (f.url == "") == (f.html == "") {
			return errors.New("exactly one of --url or --html is required")
		}

		return run(cmd, func(ctx context.Context, a *app) error {
			mgr := a.manager()
			defer mgr.Shutdown(context.Background())

			opts := render.Options{
				Wait:              f.wait,
				Type:              render.ImageType(f.format),
				Quality:           f.quality,
				ViewportOnly:      f.viewport,
				DeviceScaleFactor: f.scale,
			}
			if f.width > 0 && f.height > 0 {
				opts.Viewport = &playwright.Size{Width: f.width, Height: f.height}
			}

			r := render.New(mgr, a.logger.Named("render"))
			img, err := capture(ctx, r, cmd.InOrStdin(), opts)
			if err != nil {
				return err
			}

			if err := os.WriteFile(f.output, img, 0644); err != nil {
				return fmt.Errorf("failed to write %s: %w", f.output, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render(fmt.Sprintf("wrote %s (%d bytes)", f.output, len(img))))
			return nil
		})
	},
}

func capture(ctx context.Context, r *render.Renderer, stdin io.Reader, opts render.Options) ([]byte, error) {
	f := screenshotFlags
	if f.url != "" {
		return r.URL(ctx, f.url, opts)
	}

	var (
		html []byte
		err  error
	)
	if f.html == "-" {
		html, err = io.ReadAll(stdin)
	} else {
		html, err = os.ReadFile(f.html)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read html: %w", err)
	}

	if f.selector != "" {
		return r.Element(ctx, string(html), f.selector, opts)
	}
	return r.HTML(ctx, string(html), opts)
}

func init() {
	fl := screenshotCmd.Flags()
	fl.StringVar(&screenshotFlags.url, "url", "", "URL to capture")
	fl.StringVar(&screenshotFlags.html, "html", "", "HTML file to render, or - for stdin")
	fl.StringVarP(&screenshotFlags.output, "output", "o", "screenshot.png", "Output file")
	fl.StringVar(&screenshotFlags.selector, "selector", "", "Capture only the first element matching this selector")
	fl.StringVar(&screenshotFlags.format, "type", "png", "Image type: png or jpeg")
	fl.IntVar(&screenshotFlags.quality, "quality", 0, "JPEG quality (0-100)")
	fl.Float64Var(&screenshotFlags.scale, "scale", 2, "Device scale factor")
	fl.DurationVar(&screenshotFlags.wait, "wait", 0, "Extra delay before the screenshot")
	fl.IntVar(&screenshotFlags.width, "width", 0, "Viewport width")
	fl.IntVar(&screenshotFlags.height, "height", 0, "Viewport height")
	fl.BoolVar(&screenshotFlags.viewport, "viewport-only", false, "Capture the viewport instead of the full page")
}
