package testsupport

import (
	"path/filepath"
	"testing"

	"threadwatch/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Delays and cooldowns are zeroed so tests never sleep; callers add sources
// with WithSource.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Budget.MinDelayMillis = 0
	cfgVal.Enrichment.CooldownMillis = 0
	cfgVal.HTTP.RequestTimeout = 5
	cfgVal.HTTP.UserAgents = []string{"threadwatch-test/1.0"}
	cfgVal.LLM.APIKey = ""
	cfgVal.Notifications.NtfyTopic = ""
	cfgVal.Store.PostgresDSN = ""
	cfgVal.Sources = nil

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithSource appends a source definition to the test config.
func WithSource(src config.Source) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Sources = append(b.cfg.Sources, src)
	}
}

// WithBudget overrides the per-cycle comment fetch budget.
func WithBudget(maxFetches int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Budget.MaxCommentFetches = maxFetches
	}
}

// WithNtfyTopic points notifications at the provided topic URL.
func WithNtfyTopic(topic string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Notifications.NtfyTopic = topic
	}
}

// WithLLM configures the categorizer endpoint and key.
func WithLLM(baseURL, apiKey string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.LLM.BaseURL = baseURL
		b.cfg.LLM.APIKey = apiKey
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
