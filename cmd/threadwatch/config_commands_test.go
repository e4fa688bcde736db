package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestConfigValidateReportsSources(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"config", "validate"}, env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "reddit:testsub")
	requireContains(t, out, "r/testsub")
	requireContains(t, out, "Sources enabled: 1 (reddit 1, discourse 0)")
	requireContains(t, out, "reddit:testsub: posts get Other:General")
	requireContains(t, out, "Configuration valid")
}

func TestConfigValidateJSON(t *testing.T) {
	env := setupCLITestEnv(t)
	extra := `
[[sources]]
kind = "discourse"
base_url = "https://forum.example.com"
forum = "training"
category = "Performance"

[[sources]]
kind = "reddit"
forum = "zwift"
disabled = true
`
	f, err := os.OpenFile(env.configPath, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open config: %v", err)
	}
	if _, err := f.WriteString(extra); err != nil {
		t.Fatalf("append config: %v", err)
	}
	_ = f.Close()

	out, _, err := runCLI(t, []string{"config", "validate", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("config validate --json: %v", err)
	}
	var report configReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode report: %v\n%s", err, out)
	}
	if !report.FileFound || report.Categorizer != "no api key" || report.Notifier != "disabled" {
		t.Fatalf("unexpected report header: %+v", report)
	}
	if diff := cmp.Diff(map[string]int{"reddit": 1, "discourse": 1}, report.Enabled); diff != "" {
		t.Fatalf("enabled counts mismatch (-want +got):\n%s", diff)
	}
	if len(report.Sources) != 3 {
		t.Fatalf("expected 3 source rows, got %+v", report.Sources)
	}
	forumRow := report.Sources[1]
	if forumRow.Target != "https://forum.example.com/c/training" || forumRow.Category != "Performance" || forumRow.Warning != "" {
		t.Fatalf("unexpected discourse row: %+v", forumRow)
	}
	if forumRow.DelayMS != 1000 {
		t.Fatalf("expected default detail delay, got %d", forumRow.DelayMS)
	}
	disabled := report.Sources[2]
	if disabled.Enabled || disabled.Warning != "" {
		t.Fatalf("disabled source should not warn: %+v", disabled)
	}
	if diff := cmp.Diff([]string{"reddit:testsub: posts get Other:General"}, report.Warnings); diff != "" {
		t.Fatalf("warnings mismatch (-want +got):\n%s", diff)
	}
}

func TestConfigShowRedactsSecrets(t *testing.T) {
	env := setupCLITestEnv(t)
	t.Setenv("OPENROUTER_API_KEY", "sk-secret")

	out, _, err := runCLI(t, []string{"config", "show"}, env.configPath)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if strings.Contains(out, "sk-secret") {
		t.Fatalf("expected api key to be redacted:\n%s", out)
	}
	requireContains(t, out, redacted)
	requireContains(t, out, "testsub")

	out, _, err = runCLI(t, []string{"config", "show", "--reveal"}, env.configPath)
	if err != nil {
		t.Fatalf("config show --reveal: %v", err)
	}
	requireContains(t, out, "sk-secret")
}

func TestConfigInit(t *testing.T) {
	setupCLITestEnv(t)
	target := filepath.Join(t.TempDir(), "nested", "config.toml")

	out, _, err := runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if err := os.WriteFile(target, []byte("# edited\n"), 0o644); err != nil {
		t.Fatalf("edit config: %v", err)
	}
	_, _, err = runCLI(t, []string{"config", "init", "--path", target}, "")
	if err == nil {
		t.Fatal("expected init without --overwrite to refuse an existing file")
	}
	requireContains(t, err.Error(), "--overwrite")
	if data, _ := os.ReadFile(target); string(data) != "# edited\n" {
		t.Fatalf("existing file was modified: %q", data)
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target, "--overwrite"}, ""); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
	out, _, err = runCLI(t, []string{"config", "validate"}, target)
	if err != nil {
		t.Fatalf("validate sample config: %v", err)
	}
	requireContains(t, out, "Sources enabled: 3 (reddit 2, discourse 1)")

	out, _, err = runCLI(t, []string{"config", "init", "--stdout"}, "")
	if err != nil {
		t.Fatalf("config init --stdout: %v", err)
	}
	requireContains(t, out, "[[sources]]")
}

func TestConfigValidateReportsErrors(t *testing.T) {
	env := setupCLITestEnv(t)
	bad := filepath.Join(env.baseDir, "bad.toml")
	if err := os.WriteFile(bad, []byte("[[sources]]\nkind = \"usenet\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	_, _, err := runCLI(t, []string{"config", "validate"}, bad)
	if err == nil {
		t.Fatal("expected validation error")
	}
	requireContains(t, err.Error(), "invalid configuration")
	requireContains(t, err.Error(), "sources[0].kind")
}
