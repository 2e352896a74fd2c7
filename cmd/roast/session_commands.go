package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"roastmachine/internal/api"
	"roastmachine/internal/session"
)

func newSessionCommand(ctx *commandContext) *cobra.Command {
	sessionCmd := &cobra.Command{
		Use:     "session",
		Aliases: []string{"sessions"},
		Short:   "Manage per-user roast sessions",
	}

	sessionCmd.AddCommand(newSessionInitCommand(ctx))
	sessionCmd.AddCommand(newSessionStatsCommand(ctx))
	sessionCmd.AddCommand(newSessionIntensityCommand(ctx))
	sessionCmd.AddCommand(newSessionResetCommand(ctx))
	sessionCmd.AddCommand(newSessionListCommand(ctx))

	return sessionCmd
}

func newSessionInitCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "init <user-id>",
		Short: "Create a session if the user has none",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStores(func(s *stores) error {
				sess, err := s.service.InitSession(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if handled, err := writeOutput(cmd, ctx, sess); handled {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Session ready for %s (intensity %s, %d attempts)\n",
					sess.UserID, sess.Intensity, sess.TotalAttempts)
				return nil
			})
		},
	}
}

func newSessionStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats <user-id>",
		Short: "Show a user's roast statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStores(func(s *stores) error {
				stats, err := s.service.Stats(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if handled, err := writeOutput(cmd, ctx, stats); handled {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), renderStats(args[0], stats))
				return nil
			})
		},
	}
}

func newSessionIntensityCommand(ctx *commandContext) *cobra.Command {
	levels := make([]string, 0, len(session.Intensities()))
	for _, level := range session.Intensities() {
		levels = append(levels, string(level))
	}
	return &cobra.Command{
		Use:   "intensity <user-id> <level>",
		Short: "Set the commentary intensity for a user",
		Long:  "Set the commentary intensity for an initialized session.\nLevels: " + strings.Join(levels, ", "),
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStores(func(s *stores) error {
				sess, err := s.service.SetIntensity(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				if handled, err := writeOutput(cmd, ctx, sess); handled {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Intensity for %s set to %s\n", sess.UserID, sess.Intensity)
				return nil
			})
		},
	}
}

func newSessionResetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reset <user-id>",
		Short: "Delete a user's session and history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStores(func(s *stores) error {
				existed, err := s.service.Reset(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if existed {
					fmt.Fprintf(cmd.OutOrStdout(), "Session for %s reset\n", args[0])
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "No session for %s\n", args[0])
				}
				return nil
			})
		},
	}
}

func newSessionListCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions by most recent activity",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStores(func(s *stores) error {
				summaries, err := s.sessions.ListSessions(cmd.Context(), limit)
				if err != nil {
					return err
				}
				views := api.FromSessionSummaries(summaries)
				if handled, err := writeOutput(cmd, ctx, views); handled {
					return err
				}
				out := cmd.OutOrStdout()
				if len(views) == 0 {
					fmt.Fprintln(out, "No sessions found")
					return nil
				}
				rows := make([][]string, 0, len(views))
				for _, v := range views {
					rows = append(rows, []string{
						v.UserID,
						v.Intensity,
						strconv.Itoa(v.TotalAttempts),
						strconv.Itoa(v.CurrentStreak),
						dash(truncate(v.FavoriteVictimSong, 32)),
						dash(v.LastAttemptTime),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"User", "Intensity", "Attempts", "Streak", "Favorite", "Last Attempt"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of sessions to show (0 for all)")
	return cmd
}

func renderStats(userID string, stats session.Stats) string {
	memberSince := "-"
	if !stats.MemberSince.IsZero() {
		memberSince = stats.MemberSince.Local().Format("2006-01-02 15:04")
	}
	var b strings.Builder
	b.WriteString(renderKeyValues([][2]string{
		{"User", userID},
		{"Intensity", string(stats.Intensity)},
		{"Total attempts", strconv.Itoa(stats.TotalAttempts)},
		{"Current streak", strconv.Itoa(stats.CurrentStreak)},
		{"Favorite victim", stats.FavoriteVictimSong},
		{"Average accuracy", strconv.Itoa(stats.AverageAccuracy) + "%"},
		{"Member since", memberSince},
	}))
	b.WriteString("\n")

	if stats.SongBreakdown.Len() > 0 {
		rows := make([][]string, 0, stats.SongBreakdown.Len())
		for _, song := range stats.SongBreakdown.Songs() {
			rows = append(rows, []string{song, strconv.Itoa(stats.SongBreakdown.Count(song))})
		}
		b.WriteString(renderTable([]string{"Song", "Attempts"}, rows, []columnAlignment{alignLeft, alignRight}))
		b.WriteString("\n")
	}

	if len(stats.RecentRoasts) > 0 {
		rows := make([][]string, 0, len(stats.RecentRoasts))
		for _, entry := range stats.RecentRoasts {
			rows = append(rows, []string{
				entry.Timestamp.Local().Format("01-02 15:04"),
				entry.Song,
				formatPercent(entry.Accuracy),
				string(entry.Intensity),
				entry.Commentary,
			})
		}
		b.WriteString(renderTableSpec(tableSpec{
			headers: []string{"When", "Song", "Accuracy", "Intensity", "Roast"},
			aligns:  []columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
			wide:    []int{4},
		}, rows))
		b.WriteString("\n")
	}
	return b.String()
}
