package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"roastmachine/internal/api"
	"roastmachine/internal/pipeline"
	"roastmachine/internal/queue"
)

func newRunsCommand(ctx *commandContext) *cobra.Command {
	runsCmd := &cobra.Command{
		Use:     "runs",
		Aliases: []string{"run"},
		Short:   "Inspect and manage pipeline runs",
	}

	runsCmd.AddCommand(newRunsListCommand(ctx))
	runsCmd.AddCommand(newRunsShowCommand(ctx))
	runsCmd.AddCommand(newRunsTransitionCommand(ctx, "pause", "Pause queued or running runs", (*queue.Store).Pause))
	runsCmd.AddCommand(newRunsTransitionCommand(ctx, "resume", "Re-queue paused runs", (*queue.Store).Resume))
	runsCmd.AddCommand(newRunsTransitionCommand(ctx, "terminate", "Terminate runs that have not finished", (*queue.Store).Terminate))
	runsCmd.AddCommand(newRunsPurgeCommand(ctx))

	return runsCmd
}

func newRunsListCommand(ctx *commandContext) *cobra.Command {
	var statusFlags []string
	var userID string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses, err := parseStatuses(statusFlags)
			if err != nil {
				return err
			}
			return ctx.withStores(func(s *stores) error {
				var runs []*queue.Run
				if strings.TrimSpace(userID) != "" {
					runs, err = s.runs.ListByUser(cmd.Context(), userID, limit)
					runs = filterStatuses(runs, statuses)
				} else {
					runs, err = s.runs.List(cmd.Context(), limit, statuses...)
				}
				if err != nil {
					return err
				}
				views := api.FromRuns(runs)
				if handled, err := writeOutput(cmd, ctx, views); handled {
					return err
				}
				out := cmd.OutOrStdout()
				if len(views) == 0 {
					fmt.Fprintln(out, "No runs found")
					return nil
				}
				fmt.Fprint(out, renderRunTable(views, shouldColorize(out)))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&statusFlags, "status", "s", nil, "Filter by status (repeatable)")
	cmd.Flags().StringVarP(&userID, "user", "u", "", "Only show runs for this user")
	cmd.Flags().IntVarP(&limit, "limit", "n", 25, "Maximum number of runs to show (0 for all)")
	return cmd
}

func newRunsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show a run with its stage checkpoints",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStores(func(s *stores) error {
				run, err := s.service.Poll(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				checkpoints, err := s.runs.Checkpoints(cmd.Context(), run.ID)
				if err != nil {
					return err
				}
				views := api.FromCheckpoints(checkpoints)
				payload := struct {
					api.Run
					Checkpoints []api.Checkpoint `json:"checkpoints"`
				}{Run: run, Checkpoints: views}
				if handled, err := writeOutput(cmd, ctx, payload); handled {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, renderRunDetail(run, views, shouldColorize(out)))
				return nil
			})
		},
	}
}

type runTransition func(*queue.Store, context.Context, string) error

func newRunsTransitionCommand(ctx *commandContext, verb, short string, apply runTransition) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <run-id>...",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStores(func(s *stores) error {
				out := cmd.OutOrStdout()
				var failed []string
				for _, id := range args {
					err := apply(s.runs, cmd.Context(), id)
					switch {
					case err == nil:
						fmt.Fprintf(out, "Run %s: %s ok\n", id, verb)
					case errors.Is(err, queue.ErrRunNotFound):
						fmt.Fprintf(out, "Run %s: not found\n", id)
						failed = append(failed, id)
					case errors.Is(err, queue.ErrInvalidTransition):
						fmt.Fprintf(out, "Run %s: %v\n", id, err)
						failed = append(failed, id)
					default:
						return err
					}
				}
				if len(failed) > 0 {
					return fmt.Errorf("%s failed for %d run(s): %s", verb, len(failed), strings.Join(failed, ", "))
				}
				return nil
			})
		},
	}
}

func newRunsPurgeCommand(ctx *commandContext) *cobra.Command {
	var olderThan time.Duration
	var ids []string

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete finished runs older than the retention window",
		Long: `Delete finished runs older than the retention window.

With --id, the named runs are deleted regardless of age. Only complete,
errored and terminated runs can be deleted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if len(ids) > 0 {
				return ctx.withStores(func(s *stores) error {
					return removeRuns(cmd, s.runs, ids)
				})
			}
			window := olderThan
			if window <= 0 {
				window = cfg.RunRetention()
			}
			return ctx.withStores(func(s *stores) error {
				removed, err := s.runs.PurgeFinished(cmd.Context(), time.Now().Add(-window))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Purged %d finished run(s) older than %s\n", removed, window)
				return nil
			})
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Age threshold (defaults to pipeline.run_retention_hours)")
	cmd.Flags().StringSliceVar(&ids, "id", nil, "Delete specific finished runs (repeatable)")
	cmd.MarkFlagsMutuallyExclusive("id", "older-than")
	return cmd
}

func removeRuns(cmd *cobra.Command, runs *queue.Store, ids []string) error {
	out := cmd.OutOrStdout()
	var failed []string
	for _, id := range ids {
		err := runs.Remove(cmd.Context(), id)
		switch {
		case err == nil:
			fmt.Fprintf(out, "Run %s: removed\n", id)
		case errors.Is(err, queue.ErrRunNotFound):
			fmt.Fprintf(out, "Run %s: not found\n", id)
			failed = append(failed, id)
		case errors.Is(err, queue.ErrInvalidTransition):
			fmt.Fprintf(out, "Run %s: %v\n", id, err)
			failed = append(failed, id)
		default:
			return err
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("purge failed for %d run(s): %s", len(failed), strings.Join(failed, ", "))
	}
	return nil
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

func filterStatuses(runs []*queue.Run, statuses []queue.Status) []*queue.Run {
	if len(statuses) == 0 {
		return runs
	}
	allowed := make(map[queue.Status]bool, len(statuses))
	for _, status := range statuses {
		allowed[status] = true
	}
	out := runs[:0]
	for _, run := range runs {
		if allowed[run.Status] {
			out = append(out, run)
		}
	}
	return out
}

func renderRunTable(runs []api.Run, colorize bool) string {
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, []string{
			run.ID,
			run.UserID,
			colorizeStatus(run.Status, colorize),
			dash(run.CurrentStage),
			dash(run.Intensity),
			strconv.FormatInt(run.AudioBytes, 10),
			dash(run.CreatedAt),
		})
	}
	return renderTable(
		[]string{"ID", "User", "Status", "Stage", "Intensity", "Bytes", "Created"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	) + "\n"
}

func renderRunDetail(run api.Run, checkpoints []api.Checkpoint, colorize bool) string {
	pairs := [][2]string{
		{"Run", run.ID},
		{"User", run.UserID},
		{"Session", dash(run.SessionID)},
		{"Status", colorizeStatus(run.Status, colorize)},
		{"Stage", dash(run.CurrentStage)},
		{"Attempts", strconv.Itoa(run.Attempts)},
		{"Created", dash(run.CreatedAt)},
		{"Finished", dash(run.FinishedAt)},
	}
	if run.ErrorMessage != "" {
		pairs = append(pairs, [2]string{"Error", run.ErrorMessage})
	}
	if len(run.Output) > 0 {
		var output pipeline.Output
		if err := json.Unmarshal(run.Output, &output); err == nil {
			pairs = append(pairs,
				[2]string{"Transcription", dash(output.Transcription.Text)},
				[2]string{"Song", output.Analysis.DetectedSong},
				[2]string{"Accuracy", formatPercent(output.Analysis.Accuracy)},
				[2]string{"Confidence", formatPercent(output.Analysis.Confidence)},
				[2]string{"Roast", output.Roast.Text},
				[2]string{"Style", fmt.Sprintf("%s (%s)", output.Roast.Style, output.Roast.Intensity)},
				[2]string{"Processing", fmt.Sprintf("%d ms", output.ProcessingTimeMs)},
			)
		}
	}

	var b strings.Builder
	b.WriteString(renderKeyValues(pairs))
	if len(checkpoints) > 0 {
		b.WriteString("\n")
		rows := make([][]string, 0, len(checkpoints))
		for _, cp := range checkpoints {
			rows = append(rows, []string{strconv.Itoa(cp.Seq), cp.Stage, yesNo(cp.OK), dash(cp.CreatedAt)})
		}
		b.WriteString(renderTable(
			[]string{"#", "Stage", "OK", "Recorded"},
			rows,
			[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft},
		))
	}
	return b.String()
}

func formatPercent(v float64) string {
	return fmt.Sprintf("%.0f%%", v*100)
}
