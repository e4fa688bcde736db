package main

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const redditListing = `{"kind":"Listing","data":{"children":[
 {"kind":"t3","data":{"name":"t3_cli1","subreddit":"testsub","title":"First ride of the season",
  "author":"alice","created_utc":1700000000,"score":5,"num_comments":2,
  "permalink":"/r/testsub/comments/cli1/first_ride/","selftext":"Any tips?"}}
]}}`

type cliTestEnv struct {
	baseDir    string
	configPath string
	dataDir    string
	server     *httptest.Server
}

// setupCLITestEnv writes a config pointing at a fake reddit listing and
// isolates HOME and the env fallbacks from the developer machine.
func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)
	t.Setenv("OPENROUTER_API_KEY", "")
	t.Setenv("THREADWATCH_NTFY_TOPIC", "")
	t.Setenv("THREADWATCH_POSTGRES_DSN", "")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(redditListing))
	}))
	t.Cleanup(srv.Close)

	env := &cliTestEnv{
		baseDir:    base,
		configPath: filepath.Join(base, "threadwatch.toml"),
		dataDir:    filepath.Join(base, "data"),
		server:     srv,
	}
	writeTestConfig(t, env)
	return env
}

func writeTestConfig(t *testing.T, env *cliTestEnv) {
	t.Helper()
	content := fmt.Sprintf(`[paths]
data_dir = %q
log_dir = %q

[budget]
max_comment_fetches = 0
min_delay_ms = 0

[enrichment]
cooldown_ms = 0

[logging]
level = "error"

[[sources]]
kind = "reddit"
base_url = %q
forum = "testsub"
`, env.dataDir, filepath.Join(env.baseDir, "logs"), env.server.URL)
	if err := os.WriteFile(env.configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
