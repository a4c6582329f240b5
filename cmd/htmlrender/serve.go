package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/entrhq/htmlrender/pkg/browser"
	"github.com/entrhq/htmlrender/pkg/logging"
	"github.com/entrhq/htmlrender/pkg/render"
)

const maxBodyBytes = 8 << 20

var (
	serveAddr    string
	serveWarmup  bool
	serveTimeout time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a rendering endpoint backed by a shared browser",
	Long: `Serve starts an HTTP server:

  POST /render     HTML body in, image out (query: type, quality, selector, scale)
  GET  /healthz    browser session state
  GET  /metrics    Prometheus metrics

The browser is shut down when the server receives SIGINT or SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, func(ctx context.Context, a *app) error {
			mgr := a.manager()
			defer mgr.Shutdown(context.Background())

			if serveWarmup {
				if _, err := mgr.GetSession(ctx); err != nil {
					return err
				}
			}

			h := &renderHandler{
				renderer: render.New(mgr, a.logger.Named("render")),
				logger:   a.logger.Named("http"),
				timeout:  serveTimeout,
			}
			mux := http.NewServeMux()
			mux.Handle("/render", h)
			mux.HandleFunc("/healthz", healthHandler(mgr))
			mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))

			srv := &http.Server{
				Addr:              serveAddr,
				Handler:           mux,
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				a.logger.Infof("Listening on %s", serveAddr)
				errCh <- srv.ListenAndServe()
			}()
			fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("listening on "+serveAddr))

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				a.logger.Warnf("HTTP shutdown: %v", err)
			}
			return nil
		})
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Listen address")
	serveCmd.Flags().BoolVar(&serveWarmup, "warmup", true, "Start the browser before accepting requests")
	serveCmd.Flags().DurationVar(&serveTimeout, "timeout", 60*time.Second, "Per-request render timeout")
}

type renderHandler struct {
	renderer *render.Renderer
	logger   *logging.Logger
	timeout  time.Duration
}

func (h *renderHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	q := r.URL.Query()
	opts := render.Options{Type: render.ImageType(q.Get("type"))}
	if v := q.Get("quality"); v != "" {
		if opts.Quality, err = strconv.Atoi(v); err != nil {
			http.Error(w, "invalid quality", http.StatusBadRequest)
			return
		}
	}
	if v := q.Get("scale"); v != "" {
		if opts.DeviceScaleFactor, err = strconv.ParseFloat(v, 64); err != nil {
			http.Error(w, "invalid scale", http.StatusBadRequest)
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var img []byte
	if sel := q.Get("selector"); sel != "" {
		img, err = h.renderer.Element(ctx, string(body), sel, opts)
	} else {
		img, err = h.renderer.HTML(ctx, string(body), opts)
	}
	if err != nil {
		h.logger.Errorf("Render failed: %v", err)
		status := http.StatusInternalServerError
		if errors.Is(err, browser.ErrEnvironmentNotReady) || errors.Is(err, browser.ErrExecutablePath) {
			status = http.StatusServiceUnavailable
		}
		http.Error(w, err.Error(), status)
		return
	}

	contentType := "image/png"
	if opts.Type == render.JPEG {
		contentType = "image/jpeg"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(img)))
	w.Write(img)
}

func healthHandler(mgr *browser.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state := mgr.State()
		status := http.StatusOK
		if state != browser.StateConnected {
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]string{"state": state.String()})
	}
}
