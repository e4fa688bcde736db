package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"threadwatch/internal/cycle"
	"threadwatch/internal/daemon"
	"threadwatch/internal/daemonrun"
)

func newCycleCommand(ctx *commandContext) *cobra.Command {
	var force bool
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "cycle",
		Short: "Run one scrape cycle",
		Long: "Poll every enabled source, store and categorize new posts, send notifications,\n" +
			"then backfill comments within the per-cycle budget.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := daemonrun.NewLogger(cfg, daemonrun.Options{
				LogLevel:    ctx.logLevel(),
				LogToStderr: jsonOutput,
			})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			rt, err := daemonrun.Open(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			summary, err := rt.RunOnce(cmd.Context(), cycle.Options{Force: force})
			if errors.Is(err, daemon.ErrLocked) {
				return fmt.Errorf("%w (lock %s)", err, cfg.LockPath())
			}
			if err != nil {
				return err
			}

			if jsonOutput {
				if err := writeJSON(cmd, summary); err != nil {
					return err
				}
			} else {
				fmt.Fprint(cmd.OutOrStdout(), renderSummary(summary, shouldColorize(cmd.OutOrStdout())))
			}
			if summary.Degraded() {
				return errors.New("cycle degraded: store unavailable")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Poll sources even if the poll interval has not elapsed")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit the cycle summary as JSON")
	return cmd
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Repeat scrape cycles until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel: ctx.logLevel(),
				Force:    force,
			})
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Force a poll on the first cycle")
	return cmd
}

func renderSummary(s cycle.Summary, colorize bool) string {
	count := strconv.Itoa
	rows := [][]string{
		{"Cycle", s.CycleID},
		{"Store healthy", yesNo(s.StoreHealthy)},
		{"Poll skipped", yesNo(s.PollSkipped)},
		{"Sources polled", count(s.SourcesPolled)},
		{"Source errors", count(s.SourceErrors)},
		{"Candidates", count(s.CandidatesFetched)},
		{"New posts", count(s.NewPostsFound)},
		{"Categorized", count(s.Categorized)},
		{"Notified", count(s.Notified)},
		{"Hot posts", count(s.HotPostsFound)},
		{"Stale posts", count(s.StalePostsFound)},
		{"Comment fetches", count(s.CommentFetches)},
		{"Comments stored", count(s.CommentsProcessed)},
		{"Budget exhausted", yesNo(s.BudgetExhausted)},
		{"Duration", s.Duration.Round(time.Millisecond).String()},
	}
	var b strings.Builder
	b.WriteString(renderTable(tableLayout{
		headers:  []string{"Field", "Value"},
		aligns:   []columnAlignment{alignLeft, alignRight},
		colorize: colorize,
	}, rows))
	b.WriteString("\n")
	for _, msg := range s.Errors {
		b.WriteString(renderStatusLine(statusLine{label: "Error", kind: statusError, message: msg}, colorize))
		b.WriteString("\n")
	}
	return b.String()
}
