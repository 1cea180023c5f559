package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"news_crawler/internal/config"
)

type appKeyType string

const appKey appKeyType = "app"

type rootOptions struct {
	configPath string
	logLevel   string

	build func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error)
	app   *app
}

// closeApp releases whatever PersistentPreRunE built. Safe to call twice.
func (o *rootOptions) closeApp() {
	if o.app != nil {
		o.app.Close()
		o.app = nil
	}
}

// execute runs root and then releases its services. Closing here instead of
// in PersistentPostRun also covers commands whose RunE fails.
func execute(root *cobra.Command, opts *rootOptions, args []string) error {
	defer opts.closeApp()
	root.SetArgs(args)
	return root.Execute()
}

func newRootCmd() (*cobra.Command, *rootOptions) {
	opts := &rootOptions{build: buildApp}

	cmd := &cobra.Command{
		Use:   "crawler",
		Short: "Collects news articles from configured RSS, API and HTML sources",
		Long: `crawler fetches articles from the sources stored in crawler_configs,
normalizes them and saves every URL it has not seen before.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if opts.logLevel != "" {
				cfg.LogLevel = opts.logLevel
			}
			logger := setupLogger(cfg.LogLevel)

			a, err := opts.build(cmd.Context(), cfg, logger)
			if err != nil {
				logger.Error("failed to initialize application", "error", err)
				return err
			}
			opts.app = a

			cmd.SetContext(context.WithValue(cmd.Context(), appKey, a))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "config.yaml", "path to config file")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log level (debug, info, warn, error)")

	cmd.AddCommand(
		newRunCmd(),
		newRunDueCmd(),
		newServeCmd(),
		newConfigCmd(),
	)

	return cmd, opts
}

func resolveApp(ctx context.Context) (*app, error) {
	a, ok := ctx.Value(appKey).(*app)
	if !ok || a == nil {
		return nil, errors.New("application services not initialized")
	}
	return a, nil
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	// stdout carries command output; logs go to stderr.
	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stderr, opts)
	return slog.New(handler)
}
