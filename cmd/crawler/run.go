package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"news_crawler/internal/domain"
	"news_crawler/internal/service"
)

func newRunCmd() *cobra.Command {
	var opts service.RunOptions

	cmd := &cobra.Command{
		Use:   "run <name>",
		Short: "Crawl one source now",
		Long: `Runs the named crawler config immediately and prints the task result.
The due check is skipped. With --test the run does not move last_run_time.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			task, runErr := a.crawl.RunByName(cmd.Context(), args[0], opts)
			if task != nil {
				if err := writeTask(cmd.OutOrStdout(), task); err != nil {
					return err
				}
			}
			return runErr
		},
	}

	cmd.Flags().BoolVar(&opts.Test, "test", false, "trial run that leaves last_run_time untouched")
	cmd.Flags().BoolVar(&opts.Force, "force", true, "record the run as forced")

	return cmd
}

type taskOutput struct {
	TaskID       string             `json:"task_id"`
	Config       string             `json:"config"`
	Status       string             `json:"status"`
	IsTest       bool               `json:"is_test"`
	StartTime    *time.Time         `json:"start_time,omitempty"`
	EndTime      *time.Time         `json:"end_time,omitempty"`
	Result       *domain.TaskResult `json:"result,omitempty"`
	ErrorMessage string             `json:"error_message,omitempty"`
}

func writeTask(w io.Writer, task *domain.CrawlerTask) error {
	out := taskOutput{
		TaskID:       task.TaskID,
		Status:       task.Status.String(),
		IsTest:       task.IsTest,
		StartTime:    task.StartTime,
		EndTime:      task.EndTime,
		Result:       task.Result,
		ErrorMessage: task.ErrorMessage,
	}
	if task.Config != nil {
		out.Config = task.Config.Name
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	return nil
}
