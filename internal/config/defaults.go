package config

const (
	defaultConfigPath            = "~/.config/threadwatch/config.toml"
	defaultDataDir               = "~/.local/share/threadwatch"
	defaultLogDir                = "~/.local/share/threadwatch/logs"
	defaultRequestTimeout        = 15
	defaultCycleInterval         = 300
	defaultPollIntervalMinutes   = 15
	defaultHotMinAgeMinutes      = 15
	defaultHotMaxAgeMinutes      = 60
	defaultHotMinComments        = 15
	defaultMaxCommentFetches     = 10
	defaultBudgetMinDelayMillis  = 2000
	defaultLLMBaseURL            = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel              = "google/gemini-2.5-flash"
	defaultLLMReferer            = "https://github.com/threadwatch/threadwatch"
	defaultLLMTitle              = "threadwatch categorizer"
	defaultLLMTimeoutSeconds     = 30
	defaultEnrichmentCooldown    = 1000
	defaultNotifyRequestTimeout  = 10
	defaultNotifyMaxPerCycle     = 20
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
	defaultSourceLimit           = 25
	defaultDiscourseDetailLimit  = 10
	defaultDetailDelayMilli      = 1000
	defaultRedditBaseURL         = "https://www.reddit.com"
)

// DefaultUserAgents is the rotation pool used when http.user_agents is unset.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_4) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64; rv:125.0) Gecko/20100101 Firefox/125.0",
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		HTTP: HTTP{
			RequestTimeout: defaultRequestTimeout,
			UserAgents:     append([]string(nil), DefaultUserAgents...),
		},
		Cycle: Cycle{
			Interval: defaultCycleInterval,
		},
		Freshness: Freshness{
			PollIntervalMinutes: defaultPollIntervalMinutes,
			HotMinAgeMinutes:    defaultHotMinAgeMinutes,
			HotMaxAgeMinutes:    defaultHotMaxAgeMinutes,
			HotMinComments:      defaultHotMinComments,
		},
		Budget: Budget{
			MaxCommentFetches: defaultMaxCommentFetches,
			MinDelayMillis:    defaultBudgetMinDelayMillis,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			Referer:        defaultLLMReferer,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Enrichment: Enrichment{
			Enabled:        true,
			CooldownMillis: defaultEnrichmentCooldown,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			MaxPerCycle:    defaultNotifyMaxPerCycle,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
