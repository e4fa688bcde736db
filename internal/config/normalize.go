package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeHTTP()
	c.normalizeLLM()
	c.normalizeNotifications()
	c.normalizeStore()
	c.normalizeLogging()
	c.normalizeSources()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(strings.TrimSpace(c.Paths.DataDir)); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeHTTP() {
	agents := make([]string, 0, len(c.HTTP.UserAgents))
	seen := make(map[string]struct{}, len(c.HTTP.UserAgents))
	for _, agent := range c.HTTP.UserAgents {
		trimmed := strings.TrimSpace(agent)
		if trimmed == "" {
			continue
		}
		if _, exists := seen[trimmed]; exists {
			continue
		}
		seen[trimmed] = struct{}{}
		agents = append(agents, trimmed)
	}
	if len(agents) == 0 {
		agents = append(agents, DefaultUserAgents...)
	}
	c.HTTP.UserAgents = agents
}

func (c *Config) normalizeLLM() {
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	if c.LLM.APIKey == "" {
		if value, ok := os.LookupEnv("OPENROUTER_API_KEY"); ok {
			c.LLM.APIKey = strings.TrimSpace(value)
		}
	}
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	if c.LLM.Model == "" {
		c.LLM.Model = defaultLLMModel
	}
	c.LLM.Referer = strings.TrimSpace(c.LLM.Referer)
	c.LLM.Title = strings.TrimSpace(c.LLM.Title)
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeoutSeconds
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("THREADWATCH_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeStore() {
	c.Store.PostgresDSN = strings.TrimSpace(c.Store.PostgresDSN)
	if c.Store.PostgresDSN == "" {
		if value, ok := os.LookupEnv("THREADWATCH_POSTGRES_DSN"); ok {
			c.Store.PostgresDSN = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "json":
	default:
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func (c *Config) normalizeSources() {
	for i := range c.Sources {
		src := &c.Sources[i]
		src.Kind = strings.ToLower(strings.TrimSpace(src.Kind))
		src.BaseURL = strings.TrimRight(strings.TrimSpace(src.BaseURL), "/")
		src.Forum = strings.Trim(strings.TrimSpace(src.Forum), "/")
		src.Category = strings.TrimSpace(src.Category)
		if src.Kind == SourceKindReddit {
			src.Forum = strings.TrimPrefix(src.Forum, "r/")
			if src.BaseURL == "" {
				src.BaseURL = defaultRedditBaseURL
			}
		}
		if src.Limit <= 0 {
			src.Limit = defaultSourceLimit
		}
		if src.Kind == SourceKindDiscourse {
			if src.DetailLimit < 0 {
				src.DetailLimit = 0
			} else if src.DetailLimit == 0 {
				src.DetailLimit = defaultDiscourseDetailLimit
			}
		}
		if src.DetailDelayMilli <= 0 {
			src.DetailDelayMilli = defaultDetailDelayMilli
		}
		src.Name = strings.TrimSpace(src.Name)
		if src.Name == "" {
			src.Name = defaultSourceName(*src)
		}
	}
}

func defaultSourceName(src Source) string {
	switch src.Kind {
	case SourceKindReddit:
		return "reddit:" + src.Forum
	case SourceKindDiscourse:
		host := strings.TrimPrefix(strings.TrimPrefix(src.BaseURL, "https://"), "http://")
		if src.Forum != "" {
			return "discourse:" + host + "/" + src.Forum
		}
		return "discourse:" + host
	default:
		return src.Kind
	}
}
