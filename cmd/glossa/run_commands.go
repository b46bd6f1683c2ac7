package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"glossa/internal/ipc"
	"glossa/internal/language"
	"glossa/internal/queue"
)

func newEnqueueCommand(ctx *commandContext) *cobra.Command {
	var (
		sourceLang   string
		targetLang   string
		notifyTarget string
		createdBy    string
		asJSON       bool
	)

	cmd := &cobra.Command{
		Use:   "enqueue JOB_ID",
		Short: "Queue a translation job run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID := strings.TrimSpace(args[0])
			if normalized, ok := language.Normalize(sourceLang); ok {
				sourceLang = normalized
			}
			if normalized, ok := language.Normalize(targetLang); ok {
				targetLang = normalized
			}

			return ctx.withQueue(func(client *ipc.Client, store *queue.Store) error {
				var (
					info    ipc.RunInfo
					created bool
				)
				if client != nil {
					resp, err := client.Enqueue(ipc.EnqueueRequest{
						JobID:        jobID,
						SourceLang:   sourceLang,
						TargetLang:   targetLang,
						NotifyTarget: notifyTarget,
						CreatedBy:    createdBy,
					})
					if err != nil {
						return err
					}
					info = resp.Run
					created = resp.Created
				} else {
					if sourceLang != "" || targetLang != "" {
						if _, err := store.RegisterJob(cmd.Context(), jobID, sourceLang, targetLang, notifyTarget); err != nil {
							return err
						}
					}
					run, fresh, err := store.Enqueue(cmd.Context(), jobID, notifyTarget, createdBy)
					if err != nil {
						return err
					}
					info = ipc.FromRun(run)
					created = fresh
				}

				if asJSON {
					return writeJSON(cmd, map[string]any{"created": created, "run": info})
				}
				out := cmd.OutOrStdout()
				if created {
					fmt.Fprintf(out, "Enqueued run %d for job %s (attempt %d)\n", info.ID, info.JobID, info.Attempt)
				} else {
					fmt.Fprintf(out, "Job %s already has an active run (run %d, state %s)\n", info.JobID, info.ID, info.State)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&sourceLang, "source", "", "Source language code")
	cmd.Flags().StringVar(&targetLang, "target", "", "Target language code")
	cmd.Flags().StringVar(&notifyTarget, "notify-target", "", "Notification topic for this run")
	cmd.Flags().StringVar(&createdBy, "by", "", "Requester recorded on the run")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit the result as JSON")
	return cmd
}

func newCancelCommand(ctx *commandContext) *cobra.Command {
	var (
		mode        string
		reason      string
		requestedBy string
		asJSON      bool
	)

	cmd := &cobra.Command{
		Use:   "cancel JOB_ID",
		Short: "Cancel the active run of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID := strings.TrimSpace(args[0])

			return ctx.withQueue(func(client *ipc.Client, store *queue.Store) error {
				var (
					action string
					info   ipc.RunInfo
				)
				if client != nil {
					resp, err := client.Cancel(jobID, requestedBy, reason, mode)
					if err != nil {
						if strings.Contains(err.Error(), queue.ErrNoActiveRun.Error()) {
							fmt.Fprintf(cmd.OutOrStdout(), "Job %s has no active run\n", jobID)
							return nil
						}
						return err
					}
					action = resp.Action
					info = resp.Run
				} else {
					outcome, err := store.Cancel(cmd.Context(), jobID, requestedBy, reason, queue.ParseCancelMode(mode))
					if err != nil {
						if errors.Is(err, queue.ErrNoActiveRun) {
							fmt.Fprintf(cmd.OutOrStdout(), "Job %s has no active run\n", jobID)
							return nil
						}
						return err
					}
					action = outcome.Action
					info = ipc.FromRun(outcome.Run)
				}

				if asJSON {
					return writeJSON(cmd, map[string]any{"action": action, "run": info})
				}
				out := cmd.OutOrStdout()
				switch action {
				case queue.CancelActionCanceled:
					fmt.Fprintf(out, "Run %d canceled\n", info.ID)
				case queue.CancelActionCancelRequested:
					fmt.Fprintf(out, "Cancellation requested for run %d\n", info.ID)
				case queue.CancelActionAlreadyRequested:
					fmt.Fprintf(out, "Run %d already has a pending cancellation\n", info.ID)
				default:
					fmt.Fprintf(out, "Cancel action %q for run %d\n", action, info.ID)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "graceful", "Cancellation mode (graceful or force)")
	cmd.Flags().StringVar(&reason, "reason", "", "Reason recorded on the run")
	cmd.Flags().StringVar(&requestedBy, "by", "", "Requester recorded on the run")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit the result as JSON")
	return cmd
}
