package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"news_crawler/internal/config"
	"news_crawler/internal/domain"
)

func TestWriteTask(t *testing.T) {
	start := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	end := start.Add(3 * time.Second)
	task := &domain.CrawlerTask{
		TaskID:    "8f14e45f-ceea-467f-a8f5-0f6f0b3f1a2c",
		Config:    &domain.CrawlerConfig{Name: "example-api"},
		Status:    domain.TaskCompleted,
		StartTime: &start,
		EndTime:   &end,
		Result: &domain.TaskResult{
			Status:  domain.ResultSuccess,
			Message: "processed 3 items",
			Stats:   domain.RunStats{Total: 3, Saved: 2, Filtered: 1},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, writeTask(&buf, task))

	var out map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, "completed", out["status"])
	assert.Equal(t, "example-api", out["config"])
	assert.NotContains(t, out, "error_message")

	result := out["result"].(map[string]any)
	assert.Equal(t, "success", result["status"])
	stats := result["stats"].(map[string]any)
	assert.Equal(t, float64(2), stats["saved"])
	assert.Equal(t, float64(1), stats["filtered"])
}

func TestRootCmd_Subcommands(t *testing.T) {
	root, _ := newRootCmd()

	for _, path := range [][]string{{"run"}, {"run-due"}, {"serve"}, {"config", "list"}, {"config", "update"}} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}

	run, _, err := root.Find([]string{"run"})
	require.NoError(t, err)
	force, err := run.Flags().GetBool("force")
	require.NoError(t, err)
	assert.True(t, force)
}

func TestExecute_ClosesAppWhenCommandFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: error\n"), 0o600))

	// sqlx.Open does not dial, so no database is needed.
	db, err := sqlx.Open("postgres", "host=127.0.0.1 port=1 dbname=news sslmode=disable")
	require.NoError(t, err)

	root, opts := newRootCmd()
	built := 0
	opts.build = func(context.Context, *config.Config, *slog.Logger) (*app, error) {
		built++
		return &app{logger: slog.New(slog.NewTextHandler(io.Discard, nil)), db: db}, nil
	}
	root.AddCommand(&cobra.Command{
		Use: "fail",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := resolveApp(cmd.Context())
			require.NoError(t, err)
			return errors.New("source unreachable")
		},
	})
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)

	err = execute(root, opts, []string{"--config", path, "fail"})

	require.EqualError(t, err, "source unreachable")
	assert.Equal(t, 1, built)
	assert.Nil(t, opts.app)
	assert.ErrorContains(t, db.Ping(), "database is closed")
}
