package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"glossa/internal/ipc"
	"glossa/internal/language"
	"glossa/internal/queue"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the run queue",
	}

	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueDescribeCommand(ctx))
	queueCmd.AddCommand(newQueueHealthCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))

	return queueCmd
}

func parseStates(values []string) ([]queue.State, error) {
	states := make([]queue.State, 0, len(values))
	for _, value := range values {
		state, ok := queue.ParseState(value)
		if !ok {
			return nil, fmt.Errorf("unknown state %q", value)
		}
		states = append(states, state)
	}
	return states, nil
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var (
		listStates []string
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List run-queue rows",
		RunE: func(cmd *cobra.Command, args []string) error {
			states, err := parseStates(listStates)
			if err != nil {
				return err
			}

			return ctx.withQueue(func(client *ipc.Client, store *queue.Store) error {
				var runs []ipc.RunInfo
				if client != nil {
					resp, err := client.QueueList(listStates)
					if err != nil {
						return err
					}
					runs = resp.Runs
				} else {
					rows, err := store.List(cmd.Context(), states...)
					if err != nil {
						return err
					}
					runs = make([]ipc.RunInfo, 0, len(rows))
					for _, row := range rows {
						runs = append(runs, ipc.FromRun(row))
					}
				}

				if asJSON {
					return writeJSON(cmd, map[string]any{"runs": runs})
				}
				if len(runs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Job", "State", "Attempt", "Worker", "Enqueued"},
					buildRunRows(runs),
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&listStates, "state", "s", nil, "Filter by run state (repeatable)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit rows as JSON")
	return cmd
}

func newQueueDescribeCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "describe JOB_ID",
		Short: "Show a job and its run history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID := strings.TrimSpace(args[0])

			return ctx.withQueue(func(client *ipc.Client, store *queue.Store) error {
				var (
					job  ipc.JobInfo
					runs []ipc.RunInfo
				)
				if client != nil {
					resp, err := client.Describe(jobID)
					if err != nil {
						return err
					}
					job = resp.Job
					runs = resp.Runs
				} else {
					record, err := store.GetJob(cmd.Context(), jobID)
					if err != nil {
						return err
					}
					if record == nil {
						return fmt.Errorf("job %s not found", jobID)
					}
					rows, err := store.RunsForJob(cmd.Context(), jobID)
					if err != nil {
						return err
					}
					job = ipc.FromJob(record)
					runs = make([]ipc.RunInfo, 0, len(rows))
					for _, row := range rows {
						runs = append(runs, ipc.FromRun(row))
					}
				}

				if asJSON {
					return writeJSON(cmd, map[string]any{"job": job, "runs": runs})
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Job:       %s\n", job.JobID)
				fmt.Fprintf(out, "Status:    %s\n", job.Status)
				if pair := language.PairLabel(job.SourceLang, job.TargetLang); pair != "" {
					fmt.Fprintf(out, "Languages: %s\n", pair)
				}
				if job.NotifyTarget != "" {
					fmt.Fprintf(out, "Notify:    %s\n", job.NotifyTarget)
				}
				for _, errMsg := range job.Errors {
					fmt.Fprintf(out, "Error:     %s\n", errMsg)
				}

				if len(runs) == 0 {
					fmt.Fprintln(out, "No runs recorded")
					return nil
				}
				fmt.Fprintln(out)
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "State", "Attempt", "Worker", "Enqueued", "Finished", "Last Error"},
					buildRunHistoryRows(runs),
					[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft, alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit the job and runs as JSON")
	return cmd
}

func newQueueHealthCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check queue database health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(func(client *ipc.Client, store *queue.Store) error {
				var (
					summary queue.HealthSummary
					health  queue.DatabaseHealth
				)
				if client != nil {
					resp, err := client.QueueHealth()
					if err != nil {
						return err
					}
					summary = queue.HealthSummary{
						Total:     resp.Total,
						Queued:    resp.Queued,
						Running:   resp.Running,
						Succeeded: resp.Succeeded,
						Failed:    resp.Failed,
						Canceled:  resp.Canceled,
					}
					db, err := client.DatabaseHealth()
					if err != nil {
						return err
					}
					health = queue.DatabaseHealth{
						DBPath:           db.DBPath,
						DatabaseExists:   db.DatabaseExists,
						DatabaseReadable: db.DatabaseReadable,
						TableExists:      db.TableExists,
						ColumnsPresent:   db.ColumnsPresent,
						MissingColumns:   db.MissingColumns,
						IntegrityCheck:   db.IntegrityCheck,
						TotalRuns:        db.TotalRuns,
						Error:            db.Error,
					}
				} else {
					var err error
					summary, err = store.Stats(cmd.Context())
					if err != nil {
						return err
					}
					health = store.CheckHealth(cmd.Context())
				}

				if asJSON {
					return writeJSON(cmd, map[string]any{"summary": summary, "database": health})
				}

				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				for _, line := range renderSectionHeader("Database", colorize) {
					fmt.Fprintln(out, line)
				}
				fmt.Fprintln(out, renderStatusLine("Path", statusInfo, health.DBPath, colorize))
				fmt.Fprintln(out, renderStatusLine("Readable", boolKind(health.DatabaseReadable), yesNo(health.DatabaseReadable), colorize))
				fmt.Fprintln(out, renderStatusLine("Schema", boolKind(health.TableExists && len(health.MissingColumns) == 0), yesNo(health.TableExists), colorize))
				fmt.Fprintln(out, renderStatusLine("Integrity", boolKind(health.IntegrityCheck), yesNo(health.IntegrityCheck), colorize))
				if health.Error != "" {
					fmt.Fprintln(out, renderStatusLine("Error", statusError, health.Error, colorize))
				}

				fmt.Fprintln(out)
				for _, line := range renderSectionHeader("Queue", colorize) {
					fmt.Fprintln(out, line)
				}
				rows := buildQueueStatusRows(queueStatsMap(summary))
				if len(rows) == 0 {
					fmt.Fprintln(out, "Queue is empty")
					return nil
				}
				fmt.Fprintln(out, renderTable([]string{"State", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit health as JSON")
	return cmd
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	var clearStates []string

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove finished run-queue rows",
		RunE: func(cmd *cobra.Command, args []string) error {
			states, err := parseStates(clearStates)
			if err != nil {
				return err
			}

			return ctx.withQueue(func(client *ipc.Client, store *queue.Store) error {
				var removed int64
				if client != nil {
					resp, err := client.QueueClear(clearStates)
					if err != nil {
						return err
					}
					removed = resp.Removed
				} else {
					var clearErr error
					removed, clearErr = store.Clear(cmd.Context(), states...)
					if clearErr != nil {
						return clearErr
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d runs\n", removed)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&clearStates, "state", "s", nil, "Limit removal to the given terminal states (repeatable)")
	return cmd
}

func boolKind(ok bool) statusKind {
	if ok {
		return statusOK
	}
	return statusError
}
