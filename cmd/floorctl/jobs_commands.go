package main

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"shopfloor_backend/internal/jobs/domain"
	"shopfloor_backend/internal/jobs/transport"
)

const timeLayout = "2006-01-02 15:04"

func newStagesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stages",
		Short: "List the production pipeline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			var resp transport.StagesResponse
			if err := client.get(cmd.Context(), "/stages", nil, &resp); err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"#", "Stage", "Kind"}, buildStageRows(resp), []columnAlignment{alignRight}))
			return nil
		},
	}
}

func buildStageRows(resp transport.StagesResponse) [][]string {
	rows := make([][]string, 0, len(resp.Stages)+len(resp.Checkpoints))
	for i, s := range resp.Stages {
		rows = append(rows, []string{strconv.Itoa(i + 1), string(s), "production"})
	}
	for _, s := range resp.Checkpoints {
		rows = append(rows, []string{"", string(s), "checkpoint"})
	}
	return rows
}

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect production jobs",
	}

	jobsCmd.AddCommand(newJobsListCommand(ctx))
	jobsCmd.AddCommand(newJobsHistoryCommand(ctx))

	return jobsCmd
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var stage, customer, completed string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cached jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if completed != "" && completed != "true" && completed != "false" {
				return errors.New("--completed must be true or false")
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}

			query := url.Values{}
			if stage != "" {
				query.Set("stage", stage)
			}
			if customer != "" {
				query.Set("customer", customer)
			}
			if completed != "" {
				query.Set("completed", completed)
			}

			var resp transport.JobListResponse
			if err := client.get(cmd.Context(), "/jobs", query, &resp); err != nil {
				return err
			}
			if len(resp.Items) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No jobs")
				return nil
			}
			headers := []string{"ID", "Code", "Customer", "Qty", "Stage", "QC", "Dispatch", "Batches", "Updated"}
			aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft, alignLeft, alignRight}
			fmt.Fprint(cmd.OutOrStdout(), renderTable(headers, buildJobRows(resp.Items), aligns))
			return nil
		},
	}

	cmd.Flags().StringVar(&stage, "stage", "", "Only jobs with work at this stage")
	cmd.Flags().StringVar(&customer, "customer", "", "Only jobs for this customer")
	cmd.Flags().StringVar(&completed, "completed", "", "Filter by completion (true or false)")
	return cmd
}

func buildJobRows(jobs []*domain.Job) [][]string {
	rows := make([][]string, 0, len(jobs))
	for _, j := range jobs {
		stage := string(j.CurrentStage)
		if j.IsCompleted {
			stage += " (done)"
		}
		rows = append(rows, []string{
			j.ID,
			j.Code,
			j.Customer,
			strconv.Itoa(j.TotalQty),
			stage,
			string(j.QCStatus),
			string(j.DispatchStatus),
			strconv.Itoa(len(j.Batches)),
			formatTime(j.LastUpdated),
		})
	}
	return rows
}

func newJobsHistoryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "history <job-id>",
		Short: "Show the audit timeline of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			var resp transport.HistoryResponse
			if err := client.get(cmd.Context(), "/jobs/"+url.PathEscape(args[0])+"/history", nil, &resp); err != nil {
				return err
			}
			if len(resp.Events) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No history")
				return nil
			}
			headers := []string{"Time", "Stage", "Batch", "Action", "Actor", "Detail"}
			fmt.Fprint(cmd.OutOrStdout(), renderTable(headers, buildHistoryRows(resp.Events), nil))
			return nil
		},
	}
}

func buildHistoryRows(events []domain.HistoryEvent) [][]string {
	rows := make([][]string, 0, len(events))
	for _, ev := range events {
		rows = append(rows, []string{
			formatTime(ev.Timestamp),
			string(ev.Stage),
			ev.BatchID,
			string(ev.Action),
			ev.Actor,
			ev.Detail,
		})
	}
	return rows
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format(timeLayout)
}
