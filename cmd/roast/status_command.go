package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"roastmachine/internal/api"
	"roastmachine/internal/config"
	"roastmachine/internal/preflight"
)

const daemonProbeTimeout = 2 * time.Second

type statusReport struct {
	Daemon       *api.DaemonStatus      `json:"daemon,omitempty"`
	DaemonError  string                 `json:"daemonError,omitempty"`
	Dependencies []api.DependencyStatus `json:"dependencies"`
	Checks       []checkView            `json:"checks"`
	QueueStats   map[string]int         `json:"queueStats"`
	SessionCount int                    `json:"sessionCount"`
}

type checkView struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var checkLLM bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, dependency and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			report := statusReport{}
			if daemonStatus, err := probeDaemon(cmd.Context(), cfg); err != nil {
				report.DaemonError = err.Error()
			} else {
				report.Daemon = daemonStatus
			}

			for _, dep := range preflight.CheckSystemDeps(cfg) {
				report.Dependencies = append(report.Dependencies, api.DependencyStatus{
					Name:        dep.Name,
					Command:     dep.Command,
					Description: dep.Description,
					Optional:    dep.Optional,
					Available:   dep.Available,
					Detail:      dep.Detail,
				})
			}

			var results []preflight.Result
			if checkLLM {
				results = preflight.RunAll(cmd.Context(), cfg)
			} else {
				results = preflight.RunLocal(cfg)
			}
			for _, r := range results {
				report.Checks = append(report.Checks, checkView{Name: r.Name, Passed: r.Passed, Detail: r.Detail})
			}

			err = ctx.withStores(func(s *stores) error {
				stats, err := s.runs.Stats(cmd.Context())
				if err != nil {
					return err
				}
				report.QueueStats = api.MergeQueueStats(stats)
				report.SessionCount, err = s.sessions.Count(cmd.Context())
				return err
			})
			if err != nil {
				return err
			}

			if handled, err := writeOutput(cmd, ctx, report); handled {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprint(out, renderStatusReport(report, shouldColorize(out)))
			return nil
		},
	}

	cmd.Flags().BoolVar(&checkLLM, "check-llm", false, "Also send a probe request to the configured LLM models")
	return cmd
}

// probeDaemon asks a running daemon for its health payload.
func probeDaemon(ctx context.Context, cfg *config.Config) (*api.DaemonStatus, error) {
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, fmt.Errorf("api_bind is not configured")
	}
	probeCtx, cancel := context.WithTimeout(ctx, daemonProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, "http://"+bind+"/api/health", nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("daemon not reachable at %s", bind)
	}
	defer resp.Body.Close()

	var envelope struct {
		Success bool             `json:"success"`
		Data    api.DaemonStatus `json:"data"`
		Error   string           `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decode daemon health: %w", err)
	}
	if !envelope.Success {
		return nil, fmt.Errorf("daemon health: %s", envelope.Error)
	}
	return &envelope.Data, nil
}

func renderStatusReport(report statusReport, colorize bool) string {
	var lines []string

	lines = append(lines, renderSectionHeader("Daemon", colorize)...)
	if report.Daemon != nil {
		kind := statusOK
		if report.Daemon.Status != "healthy" {
			kind = statusWarn
		}
		message := fmt.Sprintf("%s (pid %d", report.Daemon.Status, report.Daemon.PID)
		if report.Daemon.Uptime != "" {
			message += ", up " + report.Daemon.Uptime
		}
		message += ")"
		lines = append(lines, renderStatusLine("Daemon", kind, message, colorize))
		wf := report.Daemon.Workflow
		lines = append(lines, renderStatusLine("Workers", statusInfo,
			fmt.Sprintf("%d workers, %d active, %d completed, %d errored", wf.Workers, wf.ActiveRuns, wf.Completed, wf.Errored), colorize))
		if wf.LastError != "" {
			lines = append(lines, renderStatusLine("Last error", statusWarn, wf.LastError, colorize))
		}
	} else {
		lines = append(lines, renderStatusLine("Daemon", statusWarn, "not running: "+report.DaemonError, colorize))
	}

	lines = append(lines, "")
	lines = append(lines, renderSectionHeader("Dependencies", colorize)...)
	for _, dep := range report.Dependencies {
		kind := statusOK
		message := dep.Command
		if !dep.Available {
			kind = statusError
			if dep.Optional {
				kind = statusWarn
			}
			message = dep.Detail
		}
		lines = append(lines, renderStatusLine(dep.Name, kind, message, colorize))
	}

	lines = append(lines, "")
	lines = append(lines, renderSectionHeader("Checks", colorize)...)
	for _, check := range report.Checks {
		kind := statusOK
		if !check.Passed {
			kind = statusError
		}
		lines = append(lines, renderStatusLine(check.Name, kind, check.Detail, colorize))
	}

	lines = append(lines, "")
	lines = append(lines, renderSectionHeader("Queue", colorize)...)
	for _, status := range queueStatusOrder {
		count := report.QueueStats[status]
		lines = append(lines, renderStatusLine(status, runStatusKind(status), strconv.Itoa(count), colorize))
	}
	lines = append(lines, renderStatusLine("sessions", statusInfo, strconv.Itoa(report.SessionCount), colorize))

	return strings.Join(lines, "\n") + "\n"
}

var queueStatusOrder = []string{"queued", "running", "paused", "complete", "errored", "terminated"}
