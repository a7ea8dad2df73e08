package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/engram-io/engram/pkg/buildinfo"
	"github.com/engram-io/engram/pkg/logging"
)

// NewServeCommand creates the serve command: background sweeper and
// graduation scanner plus the metrics endpoint, running until interrupted.
func NewServeCommand(deps *Deps) *cobra.Command {
	if deps == nil {
		deps = DefaultDeps()
	}

	return &cobra.Command{
		Use:   "serve",
		Short: "Run the cache maintenance daemon",
		Long: `Runs the background halves of the cache protocol: the expiration
sweeper and the graduation scanner, with Prometheus metrics, health, and
version endpoints on the configured metrics address.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			rt, err := buildRuntime(ctx, deps)
			if err != nil {
				return err
			}
			defer rt.Close()

			rt.Service.Start(ctx)
			defer rt.Service.Stop()

			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(rt.Registry, promhttp.HandlerOpts{}))
			mux.HandleFunc("/healthz", rt.HealthHandler())
			mux.HandleFunc("/version", buildinfo.Handler("engram"))

			srv := &http.Server{
				Addr:              rt.Config.MetricsAddress,
				Handler:           mux,
				ReadHeaderTimeout: 5 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			rt.Log.Info("serving", logging.F("metrics_address", rt.Config.MetricsAddress))

			select {
			case <-ctx.Done():
			case err := <-errCh:
				return err
			}

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
}
