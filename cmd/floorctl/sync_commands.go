package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"shopfloor_backend/internal/jobs/domain"
	"shopfloor_backend/internal/jobs/transport"
)

func newSyncCommand(ctx *commandContext) *cobra.Command {
	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Pull or push the full job list",
	}

	syncCmd.AddCommand(newSyncPullCommand(ctx))
	syncCmd.AddCommand(newSyncPushCommand(ctx))
	syncCmd.AddCommand(newSyncStatusCommand(ctx))

	return syncCmd
}

func newSyncPullCommand(ctx *commandContext) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Download every cached job as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			var jobs []*domain.Job
			if err := client.get(cmd.Context(), "/sync", nil, &jobs); err != nil {
				return err
			}
			data, err := json.MarshalIndent(jobs, "", "  ")
			if err != nil {
				return err
			}
			data = append(data, '\n')

			if output == "" || output == "-" {
				_, err := cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %d jobs to %s\n", len(jobs), output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to this file instead of stdout")
	return cmd
}

func newSyncPushCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "push <file.json>",
		Short: "Reconcile a JSON job list into the server cache",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			var jobs []*domain.Job
			if err := json.Unmarshal(data, &jobs); err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}

			client, err := ctx.client()
			if err != nil {
				return err
			}
			var result []*domain.Job
			if err := client.post(cmd.Context(), "/sync", jobs, &result); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pushed %d jobs; server now holds %d\n", len(jobs), len(result))
			return nil
		},
	}
}

func newSyncStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show cache and persistence versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			var status transport.SyncStatusResponse
			if err := client.get(cmd.Context(), "/sync/status", nil, &status); err != nil {
				return err
			}
			persistedAt := "never"
			if status.PersistedAt != nil {
				persistedAt = formatTime(*status.PersistedAt)
			}
			rows := [][]string{
				{"Version", fmt.Sprint(status.Version)},
				{"Persisted version", fmt.Sprint(status.PersistedVersion)},
				{"Persisted at", persistedAt},
				{"Jobs", fmt.Sprint(status.JobCount)},
				{"Connections", fmt.Sprint(status.Connections)},
				{"Users", fmt.Sprint(len(status.Users))},
			}
			fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, rows, []columnAlignment{alignLeft, alignRight}))
			return nil
		},
	}
}
