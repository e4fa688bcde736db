package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"threadwatch/internal/forum"
	"threadwatch/internal/store"
)

type requestView struct {
	Timestamp  time.Time `json:"timestamp"`
	Kind       string    `json:"kind"`
	Source     string    `json:"source"`
	URL        string    `json:"url"`
	DurationMS int64     `json:"duration_ms"`
	Success    bool      `json:"success"`
	StatusCode int       `json:"status_code,omitempty"`
	Error      string    `json:"error,omitempty"`
}

func newRequestsCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "requests",
		Short: "Show the outbound request log",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd.Context(), func(st store.Store) error {
				entries, err := st.RecentRequests(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if jsonOutput {
					views := make([]requestView, 0, len(entries))
					for _, e := range entries {
						views = append(views, requestView{
							Timestamp:  e.Timestamp,
							Kind:       string(e.Kind),
							Source:     e.Source,
							URL:        e.URL,
							DurationMS: e.Duration.Milliseconds(),
							Success:    e.Success,
							StatusCode: e.StatusCode,
							Error:      e.Error,
						})
					}
					return writeJSON(cmd, views)
				}
				out := cmd.OutOrStdout()
				if len(entries) == 0 {
					fmt.Fprintln(out, "No requests logged yet")
					return nil
				}
				fmt.Fprintln(out, renderRequestsTable(entries, shouldColorize(out)))
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum number of entries to show")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit entries as JSON")
	return cmd
}

func renderRequestsTable(entries []forum.RequestLog, colorize bool) string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		status := "-"
		if e.StatusCode > 0 {
			status = strconv.Itoa(e.StatusCode)
		}
		result := "ok"
		if !e.Success {
			result = truncateText(e.Error, 50)
			if result == "" {
				result = "failed"
			}
		}
		rows = append(rows, []string{
			e.Timestamp.Local().Format("2006-01-02 15:04:05"),
			string(e.Kind),
			e.Source,
			status,
			fmt.Sprintf("%dms", e.Duration.Milliseconds()),
			result,
		})
	}
	return renderTable(tableLayout{
		headers:  []string{"Time", "Kind", "Source", "Status", "Duration", "Result"},
		aligns:   []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
		colorize: colorize,
	}, rows)
}
