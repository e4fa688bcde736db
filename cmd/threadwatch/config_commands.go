package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"threadwatch/internal/config"
	"threadwatch/internal/forum"
)

const redacted = "<redacted>"

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect, check and scaffold the configuration file",
	}

	configCmd.AddCommand(newConfigValidateCommand(ctx))
	configCmd.AddCommand(newConfigShowCommand(ctx))
	configCmd.AddCommand(newConfigInitCommand())

	return configCmd
}

// sourceReport is one row of the validate output.
type sourceReport struct {
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	Target   string `json:"target"`
	Limit    int    `json:"limit"`
	DelayMS  int    `json:"detail_delay_ms"`
	Category string `json:"category"`
	Enabled  bool   `json:"enabled"`
	Warning  string `json:"warning,omitempty"`
}

type configReport struct {
	Path        string         `json:"path"`
	FileFound   bool           `json:"file_found"`
	Store       string         `json:"store"`
	Categorizer string         `json:"categorizer"`
	Notifier    string         `json:"notifier"`
	Sources     []sourceReport `json:"sources"`
	Enabled     map[string]int `json:"enabled_by_kind"`
	Warnings    []string       `json:"warnings"`
}

func buildConfigReport(ctx *commandContext, cfg *config.Config) configReport {
	report := configReport{
		Path:      ctx.configPath,
		FileFound: ctx.configSeen,
		Store:     "sqlite " + cfg.DatabasePath(),
		Notifier:  "disabled",
		Enabled:   map[string]int{},
		Warnings:  []string{},
	}
	if cfg.Store.PostgresDSN != "" {
		report.Store = "postgres"
	}
	if cfg.Notifications.NtfyTopic != "" {
		report.Notifier = "ntfy"
	}
	classifier := cfg.Enrichment.Enabled && cfg.LLM.APIKey != ""
	switch {
	case !cfg.Enrichment.Enabled:
		report.Categorizer = "disabled"
	case cfg.LLM.APIKey == "":
		report.Categorizer = "no api key"
	default:
		report.Categorizer = cfg.LLM.Model
	}

	for _, src := range cfg.Sources {
		row := sourceReport{
			Name:     src.Name,
			Kind:     src.Kind,
			Target:   sourceTarget(src),
			Limit:    src.Limit,
			DelayMS:  src.DetailDelayMilli,
			Category: "classifier",
			Enabled:  !src.Disabled,
		}
		if fixed := forum.ParseCategory(src.Category); fixed != forum.CategoryNone {
			row.Category = string(fixed)
		} else if !classifier && row.Enabled {
			row.Warning = "posts get " + string(forum.CategoryFallback)
		}
		if row.Enabled {
			report.Enabled[src.Kind]++
		}
		report.Sources = append(report.Sources, row)
	}

	if !report.FileFound {
		report.Warnings = append(report.Warnings, "config file not found; defaults were used")
	}
	if len(cfg.EnabledSources()) == 0 {
		report.Warnings = append(report.Warnings, "no sources enabled; cycles will only backfill stored posts")
	}
	for _, row := range report.Sources {
		if row.Warning != "" {
			report.Warnings = append(report.Warnings, row.Name+": "+row.Warning)
		}
	}
	return report
}

func sourceTarget(src config.Source) string {
	if src.Kind == config.SourceKindReddit {
		return "r/" + src.Forum
	}
	if src.Forum != "" {
		return src.BaseURL + "/c/" + src.Forum
	}
	return src.BaseURL
}

func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Load the configuration and report every source it enables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			report := buildConfigReport(ctx, cfg)
			if asJSON {
				return writeJSON(cmd, report)
			}
			renderConfigReport(cmd.OutOrStdout(), report)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	return cmd
}

func renderConfigReport(out io.Writer, report configReport) {
	colorize := shouldColorize(out)
	pathKind := statusOK
	if !report.FileFound {
		pathKind = statusWarn
	}
	lines := []statusLine{
		{label: "Config", kind: pathKind, message: report.Path},
		{label: "Store", kind: statusInfo, message: report.Store},
		{label: "Categorizer", kind: statusInfo, message: report.Categorizer},
		{label: "Notifications", kind: statusInfo, message: report.Notifier},
	}
	for _, line := range lines {
		fmt.Fprintln(out, renderStatusLine(line, colorize))
	}

	if len(report.Sources) > 0 {
		rows := make([][]string, 0, len(report.Sources))
		for _, src := range report.Sources {
			rows = append(rows, []string{
				src.Name,
				src.Kind,
				src.Target,
				strconv.Itoa(src.Limit),
				strconv.Itoa(src.DelayMS) + "ms",
				src.Category,
				yesNo(src.Enabled),
			})
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, renderTable(tableLayout{
			headers:  []string{"Name", "Kind", "Target", "Limit", "Delay", "Category", "Enabled"},
			aligns:   []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft},
			colorize: colorize,
		}, rows))
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "Sources enabled: %d (reddit %d, discourse %d)\n",
		report.Enabled[config.SourceKindReddit]+report.Enabled[config.SourceKindDiscourse],
		report.Enabled[config.SourceKindReddit], report.Enabled[config.SourceKindDiscourse])
	for _, warning := range report.Warnings {
		fmt.Fprintln(out, renderStatusLine(statusLine{label: "Warning", kind: statusWarn, message: warning}, colorize))
	}
	fmt.Fprintln(out, "Configuration valid")
}

func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	var reveal bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration after defaults and environment overrides",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			effective := *cfg
			effective.Sources = append([]config.Source(nil), cfg.Sources...)
			if !reveal {
				redactSecrets(&effective)
			}
			data, err := toml.Marshal(effective)
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().BoolVar(&reveal, "reveal", false, "Print secrets instead of redacting them")
	return cmd
}

func redactSecrets(cfg *config.Config) {
	if cfg.LLM.APIKey != "" {
		cfg.LLM.APIKey = redacted
	}
	if cfg.Store.PostgresDSN != "" {
		cfg.Store.PostgresDSN = redacted
	}
	if cfg.Notifications.NtfyTopic != "" {
		cfg.Notifications.NtfyTopic = redacted
	}
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string
	var overwrite bool
	var toStdout bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Write the commented sample configuration",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if toStdout {
				_, err := io.WriteString(out, config.SampleConfig())
				return err
			}
			target, err := initTarget(targetPath)
			if err != nil {
				return err
			}
			if err := config.CreateSample(target, overwrite); err != nil {
				if errors.Is(err, config.ErrSampleExists) {
					return fmt.Errorf("%w (pass --overwrite to replace it)", err)
				}
				return err
			}
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintln(out, "Edit the [[sources]] entries and set llm.api_key (or export OPENROUTER_API_KEY), then run `threadwatch config validate`.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing configuration file")
	cmd.Flags().BoolVar(&toStdout, "stdout", false, "Print the sample instead of writing a file")
	return cmd
}

func initTarget(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		path, err := config.DefaultConfigPath()
		if err != nil {
			return "", fmt.Errorf("determine default config path: %w", err)
		}
		return path, nil
	}
	path, err := config.ExpandPath(raw)
	if err != nil {
		return "", fmt.Errorf("resolve config path: %w", err)
	}
	return path, nil
}
