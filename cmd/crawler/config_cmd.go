package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"news_crawler/internal/datetime"
	"news_crawler/internal/domain"
	"news_crawler/internal/scheduler"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and change crawler configs",
	}
	cmd.AddCommand(newConfigListCmd(), newConfigUpdateCmd())
	return cmd
}

func newConfigListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List crawler configs and whether they are due",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			configs, err := a.crawl.ListConfigs(cmd.Context())
			if err != nil {
				return err
			}
			return writeConfigTable(cmd.OutOrStdout(), configs, time.Now().UTC())
		},
	}
}

func writeConfigTable(w io.Writer, configs []*domain.CrawlerConfig, now time.Time) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tTYPE\tSTATUS\tACTIVE\tINTERVAL\tLAST RUN\tDUE")
	for _, cfg := range configs {
		lastRun := "never"
		if cfg.LastRunTime != nil {
			lastRun = datetime.Format(*cfg.LastRunTime)
		}
		due := "-"
		if cfg.Runnable() {
			due = fmt.Sprint(scheduler.IsDue(cfg, now, false))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%dm\t%s\t%s\n",
			cfg.Name,
			cfg.CrawlerType,
			cfg.Status,
			cfg.IsActive,
			cfg.Interval,
			lastRun,
			due,
		)
	}
	return tw.Flush()
}

type updateFlags struct {
	interval   int
	maxRetries int
	retryDelay int
	status     string
	active     bool
	headers    []string
	data       []string
}

func newConfigUpdateCmd() *cobra.Command {
	f := &updateFlags{}

	cmd := &cobra.Command{
		Use:   "update <name>",
		Short: "Change scheduling and parsing settings of a config",
		Example: `  crawler config update example-api --interval 30 --max-retries 5
  crawler config update example-api --header "Authorization=Bearer token"
  crawler config update example-api --data data_path=result.data --data fetch_detail=true`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			upd, err := f.toUpdate(cmd.Flags())
			if err != nil {
				return err
			}

			cfg, err := a.crawl.UpdateConfig(cmd.Context(), args[0], upd)
			if err != nil {
				return err
			}
			return writeConfigTable(cmd.OutOrStdout(), []*domain.CrawlerConfig{cfg}, time.Now().UTC())
		},
	}

	f.bind(cmd.Flags())

	return cmd
}

func (f *updateFlags) bind(fs *pflag.FlagSet) {
	fs.IntVar(&f.interval, "interval", 0, "minutes between runs")
	fs.IntVar(&f.maxRetries, "max-retries", 0, "fetch attempts per run")
	fs.IntVar(&f.retryDelay, "retry-delay", 0, "seconds before the first retry")
	fs.StringVar(&f.status, "status", "", "enabled or disabled")
	fs.BoolVar(&f.active, "active", true, "include the config in scheduling")
	fs.StringArrayVar(&f.headers, "header", nil, "HTTP header as name=value, repeatable")
	fs.StringArrayVar(&f.data, "data", nil, "config_data entry as key=value, repeatable; JSON values are decoded")
}

// toUpdate builds a partial update from the flags the user actually set.
func (f *updateFlags) toUpdate(flags *pflag.FlagSet) (domain.ConfigUpdate, error) {
	var upd domain.ConfigUpdate

	if flags.Changed("interval") {
		upd.Interval = &f.interval
	}
	if flags.Changed("max-retries") {
		upd.MaxRetries = &f.maxRetries
	}
	if flags.Changed("retry-delay") {
		upd.RetryDelay = &f.retryDelay
	}
	if flags.Changed("status") {
		status, err := domain.ParseConfigStatus(f.status)
		if err != nil {
			return upd, err
		}
		upd.Status = &status
	}
	if flags.Changed("active") {
		upd.IsActive = &f.active
	}

	if len(f.headers) > 0 {
		upd.Headers = make(map[string]string, len(f.headers))
		for _, h := range f.headers {
			k, v, err := splitPair(h)
			if err != nil {
				return upd, fmt.Errorf("--header: %w", err)
			}
			upd.Headers[k] = v
		}
	}

	if len(f.data) > 0 {
		upd.ConfigData = make(map[string]any, len(f.data))
		for _, d := range f.data {
			k, v, err := splitPair(d)
			if err != nil {
				return upd, fmt.Errorf("--data: %w", err)
			}
			upd.ConfigData[k] = decodeDataValue(v)
		}
	}

	return upd, nil
}

func splitPair(s string) (string, string, error) {
	k, v, ok := strings.Cut(s, "=")
	k = strings.TrimSpace(k)
	if !ok || k == "" {
		return "", "", fmt.Errorf("expected key=value, got %q", s)
	}
	return k, v, nil
}

// decodeDataValue keeps plain strings as they are and decodes JSON literals,
// so item_selectors objects and boolean flags can be set from the shell.
func decodeDataValue(v string) any {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return v
	}
	switch trimmed[0] {
	case '{', '[':
	default:
		if trimmed != "true" && trimmed != "false" {
			return v
		}
	}
	var out any
	if err := json.Unmarshal([]byte(trimmed), &out); err != nil {
		return v
	}
	return out
}
