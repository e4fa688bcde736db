package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"threadwatch/internal/config"
	"threadwatch/internal/cycle"
	"threadwatch/internal/daemon"
	"threadwatch/internal/enrich"
	"threadwatch/internal/notifications"
	"threadwatch/internal/store"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var probe bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show store health, poll state and configured sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return ctx.withStore(cmd.Context(), func(st store.Store) error {
				now := time.Now()
				lines := []statusLine{configStatus(ctx)}

				health := st.Health(cmd.Context())
				lines = append(lines, storeStatus(health))
				if health.Healthy {
					last, err := st.LastFetchedAt(cmd.Context())
					if err != nil {
						lines = append(lines, statusLine{label: "Last poll", kind: statusError, message: err.Error()})
					} else {
						lines = append(lines, pollStatus(cfg, now, last))
					}
				}
				lines = append(lines,
					lockStatus(cfg),
					notifierStatus(cfg),
					categorizerStatus(cmd.Context(), cfg, probe),
				)
				lines = append(lines, sourceStatus(cfg)...)

				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				for _, line := range lines {
					fmt.Fprintln(out, renderStatusLine(line, colorize))
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&probe, "probe", false, "Send a test request to the categorizer endpoint")
	return cmd
}

func configStatus(ctx *commandContext) statusLine {
	if !ctx.configSeen {
		return statusLine{label: "Config", kind: statusWarn, message: "no config file; using defaults"}
	}
	return statusLine{label: "Config", kind: statusOK, message: ctx.configPath}
}

func storeStatus(h store.Health) statusLine {
	msg := h.Backend
	if h.Detail != "" {
		msg += " " + h.Detail
	}
	if !h.Healthy {
		return statusLine{label: "Store", kind: statusError, message: msg}
	}
	return statusLine{label: "Store", kind: statusOK, message: msg}
}

func pollStatus(cfg *config.Config, now, last time.Time) statusLine {
	if last.IsZero() {
		return statusLine{label: "Last poll", kind: statusInfo, message: "never; next cycle polls"}
	}
	policy := cycle.PolicyFromConfig(cfg)
	msg := formatAge(now, last) + " ago"
	if policy.PollDue(now, last) {
		return statusLine{label: "Last poll", kind: statusInfo, message: msg + "; poll due"}
	}
	return statusLine{label: "Last poll", kind: statusOK, message: msg}
}

func lockStatus(cfg *config.Config) statusLine {
	lock := daemon.NewLock(cfg.LockPath())
	err := lock.Acquire()
	switch {
	case errors.Is(err, daemon.ErrLocked):
		return statusLine{label: "Cycle", kind: statusInfo, message: "running"}
	case err != nil:
		return statusLine{label: "Cycle", kind: statusWarn, message: err.Error()}
	}
	_ = lock.Release()
	return statusLine{label: "Cycle", kind: statusOK, message: "idle"}
}

func notifierStatus(cfg *config.Config) statusLine {
	if !notifications.NewService(cfg).Enabled() {
		return statusLine{label: "Notifications", kind: statusWarn, message: "disabled (set notifications.ntfy_topic)"}
	}
	return statusLine{label: "Notifications", kind: statusOK, message: "ntfy"}
}

func categorizerStatus(ctx context.Context, cfg *config.Config, probe bool) statusLine {
	switch {
	case !cfg.Enrichment.Enabled:
		return statusLine{label: "Categorizer", kind: statusInfo, message: "disabled; posts get the fallback category"}
	case cfg.LLM.APIKey == "":
		return statusLine{label: "Categorizer", kind: statusWarn, message: "no llm.api_key; posts get the fallback category"}
	}
	client := enrich.NewLLMClient(cfg)
	if !probe {
		return statusLine{label: "Categorizer", kind: statusOK, message: client.Model()}
	}
	if err := client.HealthCheck(ctx); err != nil {
		return statusLine{label: "Categorizer", kind: statusError, message: client.Model() + ": " + err.Error()}
	}
	return statusLine{label: "Categorizer", kind: statusOK, message: client.Model() + " responding"}
}

func sourceStatus(cfg *config.Config) []statusLine {
	enabled := cfg.EnabledSources()
	if len(enabled) == 0 {
		return []statusLine{{label: "Sources", kind: statusWarn, message: "none configured"}}
	}
	lines := make([]statusLine, 0, len(enabled))
	for _, src := range enabled {
		parts := []string{src.Kind, src.BaseURL}
		if src.Category != "" {
			parts = append(parts, "category="+src.Category)
		}
		lines = append(lines, statusLine{label: "Source", kind: statusInfo, message: src.Name + " (" + strings.Join(parts, " ") + ")"})
	}
	return lines
}
