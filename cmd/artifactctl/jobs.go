package main

import (
	"fmt"
	"io"
	"time"

	"media-worker/internal/handlers"
	"media-worker/internal/jobs"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and cancel jobs on a running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(newJobsListCommand(ctx))
	cmd.AddCommand(newJobsCancelCommand(ctx))
	return cmd
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var filter string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := jobs.ParseFilter(filter)
			if err != nil {
				return err
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			list, err := client.Jobs(cmd.Context(), f)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), list)
			}
			printJobs(cmd.OutOrStdout(), list, time.Now())
			return nil
		},
	}
	cmd.Flags().StringVarP(&filter, "filter", "f", string(jobs.FilterActive), "queued, running, active, recent or all")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")
	return cmd
}

func newJobsCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>...",
		Short: "Cancel jobs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			var failed int
			for _, id := range args {
				if err := client.Cancel(cmd.Context(), id); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", id, err)
					failed++
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: cancel requested\n", id)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d cancellations failed", failed, len(args))
			}
			return nil
		},
	}
}

func printJobs(w io.Writer, list []handlers.JobResponse, now time.Time) {
	if len(list) == 0 {
		fmt.Fprintln(w, "No jobs")
		return
	}
	rows := make([][]string, 0, len(list))
	for _, j := range list {
		progress := "-"
		if j.Percent != nil {
			progress = fmt.Sprintf("%.0f%%", *j.Percent)
		}
		rows = append(rows, []string{
			j.ID,
			j.Kind,
			j.Target,
			string(j.State),
			progress,
			humanize.RelTime(j.CreatedAt, now, "ago", "from now"),
		})
	}
	fmt.Fprint(w, renderTable(
		[]string{"ID", "Kind", "Target", "State", "Progress", "Created"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	))
}
