package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"news_crawler/internal/metrics"
)

const (
	shutdownTimeout = 10 * time.Second
	// abandonMargin covers the terminal write that follows a timed-out run.
	abandonMargin   = time.Minute
)

// abandonedCutoff returns the start time before which an open task cannot
// belong to a live process, since every run is bounded by taskTimeout.
func abandonedCutoff(now time.Time, taskTimeout time.Duration) time.Time {
	return now.Add(-(taskTimeout + abandonMargin))
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler loop and expose metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			logger := a.logger

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			n, err := a.tasks.FailAbandoned(ctx,
				abandonedCutoff(time.Now().UTC(), a.cfg.Crawl.TaskTimeout),
				"abandoned: crawler restarted before the task finished")
			if err != nil {
				return err
			}
			if n > 0 {
				logger.Warn("closed abandoned tasks", "count", n)
			}

			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			srv := &http.Server{
				Addr:              a.cfg.Metrics.Addr,
				Handler:           mux,
				ReadHeaderTimeout: 5 * time.Second,
			}

			go func() {
				logger.Info("metrics server listening", "addr", srv.Addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("metrics server error", "error", err)
				}
			}()

			logger.Info("starting news crawler",
				"tick_interval", a.cfg.Scheduler.TickInterval,
				"workers", a.cfg.Scheduler.Workers,
				"publish", a.cfg.RabbitMQ.Enabled,
			)

			err = a.scheduler.Start(ctx)

			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			if serr := srv.Shutdown(shutdownCtx); serr != nil {
				logger.Warn("metrics server shutdown", "error", serr)
			}

			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}
