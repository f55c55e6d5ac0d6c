package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"reel/internal/config"
	"reel/internal/queue"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the job queue",
	}

	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueRemoveCommand(ctx))
	queueCmd.AddCommand(newQueueHealthCommand(ctx))

	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var listStatuses []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses, err := parseStatuses(listStatuses)
			if err != nil {
				return err
			}
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				jobs, err := store.List(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(jobs) == 0 {
					fmt.Fprintln(out, "Queue is empty")
					return nil
				}
				fmt.Fprint(out, renderTable(out,
					[]string{"ID", "Status", "Mode", "Source", "Done", "Failed", "Skipped", "Updated", "Error"},
					buildQueueListRows(jobs),
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&listStatuses, "status", "s", nil, "Filter by status (pending, processing, completed, failed)")
	return cmd
}

func buildQueueListRows(jobs []*queue.Job) [][]string {
	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		rows = append(rows, []string{
			strconv.FormatInt(job.ID, 10),
			string(job.Status),
			string(job.Mode),
			job.SourcePath,
			strconv.Itoa(job.FilesDone),
			strconv.Itoa(job.FilesFailed),
			strconv.Itoa(job.FilesSkipped),
			formatTimestamp(job.UpdatedAt),
			job.ErrorMessage,
		})
	}
	return rows
}

func formatTimestamp(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.Local().Format("2006-01-02 15:04:05")
}

func parseStatuses(values []string) ([]queue.Status, error) {
	var statuses []queue.Status
	for _, value := range values {
		status, ok := queue.ParseStatus(value)
		if !ok {
			return nil, fmt.Errorf("unknown status %q", value)
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	var completedOnly bool
	var failedOnly bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove jobs from the queue (processing jobs are kept)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if completedOnly && failedOnly {
				return fmt.Errorf("--completed and --failed are mutually exclusive")
			}
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				var (
					removed int64
					err     error
					label   = "jobs"
				)
				switch {
				case completedOnly:
					removed, err = store.ClearCompleted(cmd.Context())
					label = "completed jobs"
				case failedOnly:
					removed, err = store.ClearFailed(cmd.Context())
					label = "failed jobs"
				default:
					removed, err = store.Clear(cmd.Context())
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d %s\n", removed, label)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&completedOnly, "completed", false, "Only remove completed jobs")
	cmd.Flags().BoolVar(&failedOnly, "failed", false, "Only remove failed jobs")
	return cmd
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [id...]",
		Short: "Move failed jobs back to pending",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				updated, err := store.RetryFailed(cmd.Context(), ids...)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if updated == 0 {
					fmt.Fprintln(out, "No failed jobs to retry")
					return nil
				}
				fmt.Fprintf(out, "Retrying %d job(s); existing outputs are skipped\n", updated)
				return nil
			})
		},
	}
}

func newQueueRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Delete a single job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				removed, err := store.Remove(cmd.Context(), ids[0])
				if err != nil {
					return err
				}
				if !removed {
					return fmt.Errorf("job %d not found", ids[0])
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed job %d\n", ids[0])
				return nil
			})
		},
	}
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid job id %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func newQueueHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show queue counts and database diagnostics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				summary, err := store.Health(cmd.Context())
				if err != nil {
					return err
				}
				db, err := store.CheckHealth(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprint(out, renderTable(out,
					[]string{"Status", "Count"},
					[][]string{
						{"pending", strconv.Itoa(summary.Pending)},
						{"processing", strconv.Itoa(summary.Processing)},
						{"completed", strconv.Itoa(summary.Completed)},
						{"failed", strconv.Itoa(summary.Failed)},
						{"total", strconv.Itoa(summary.Total)},
					},
					[]columnAlignment{alignLeft, alignRight},
				))
				fmt.Fprintf(out, "Database:  %s\n", db.DBPath)
				fmt.Fprintf(out, "Schema:    v%d\n", db.SchemaVersion)
				fmt.Fprintf(out, "Integrity: %s\n", yesNo(db.IntegrityCheck))
				if len(db.MissingColumns) > 0 {
					fmt.Fprintf(out, "Missing columns: %s\n", strings.Join(db.MissingColumns, ", "))
				}
				if db.Error != "" {
					fmt.Fprintf(out, "Error:     %s\n", db.Error)
				}
				return nil
			})
		},
	}
}
