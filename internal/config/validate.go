package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"threadwatch/internal/forum"
)

// Source kinds accepted in [[sources]].
const (
	SourceKindReddit    = string(forum.KindReddit)
	SourceKindDiscourse = string(forum.KindDiscourse)
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateTimings(); err != nil {
		return err
	}
	if err := c.validateFreshness(); err != nil {
		return err
	}
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateSources(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateTimings() error {
	if err := ensurePositiveMap(map[string]int{
		"http.request_timeout":          c.HTTP.RequestTimeout,
		"cycle.interval":                c.Cycle.Interval,
		"notifications.request_timeout": c.Notifications.RequestTimeout,
	}); err != nil {
		return err
	}
	if c.Budget.MaxCommentFetches < 0 {
		return errors.New("budget.max_comment_fetches must be >= 0")
	}
	if c.Budget.MinDelayMillis < 0 {
		return errors.New("budget.min_delay_ms must be >= 0")
	}
	if c.Enrichment.CooldownMillis < 0 {
		return errors.New("enrichment.cooldown_ms must be >= 0")
	}
	if c.Notifications.MaxPerCycle < 0 {
		return errors.New("notifications.max_per_cycle must be >= 0")
	}
	return nil
}

func (c *Config) validateFreshness() error {
	f := c.Freshness
	if err := ensurePositiveMap(map[string]int{
		"freshness.poll_interval_minutes": f.PollIntervalMinutes,
		"freshness.hot_max_age_minutes":   f.HotMaxAgeMinutes,
	}); err != nil {
		return err
	}
	if f.HotMinAgeMinutes < 0 {
		return errors.New("freshness.hot_min_age_minutes must be >= 0")
	}
	if f.HotMaxAgeMinutes <= f.HotMinAgeMinutes {
		return errors.New("freshness.hot_max_age_minutes must be greater than freshness.hot_min_age_minutes")
	}
	if f.BackfillLookbackHours < 0 {
		return errors.New("freshness.backfill_lookback_hours must be >= 0")
	}
	if f.HotMinComments < 0 {
		return errors.New("freshness.hot_min_comments must be >= 0")
	}
	return nil
}

func (c *Config) validateStore() error {
	if c.Store.PostgresDSN == "" {
		return nil
	}
	parsed, err := url.Parse(c.Store.PostgresDSN)
	if err != nil || (parsed.Scheme != "postgres" && parsed.Scheme != "postgresql") {
		return errors.New("store.postgres_dsn must be a postgres:// URL")
	}
	return nil
}

func (c *Config) validateSources() error {
	seen := make(map[string]struct{}, len(c.Sources))
	for i, src := range c.Sources {
		field := fmt.Sprintf("sources[%d]", i)
		if src.Kind != "" && !forum.Kind(src.Kind).Valid() {
			return fmt.Errorf("%s.kind: unsupported value %q", field, src.Kind)
		}
		switch src.Kind {
		case SourceKindReddit:
			if src.Forum == "" {
				return fmt.Errorf("%s.forum must name a subreddit for reddit sources", field)
			}
		case SourceKindDiscourse:
			if src.BaseURL == "" {
				return fmt.Errorf("%s.base_url must be set for discourse sources", field)
			}
		default:
			return fmt.Errorf("%s.kind must be set (reddit or discourse)", field)
		}
		if parsed, err := url.Parse(src.BaseURL); err != nil || parsed.Host == "" || !strings.HasPrefix(parsed.Scheme, "http") {
			return fmt.Errorf("%s.base_url must be an http(s) URL, got %q", field, src.BaseURL)
		}
		if src.Limit > 100 {
			return fmt.Errorf("%s.limit must be <= 100", field)
		}
		if _, dup := seen[src.Name]; dup {
			return fmt.Errorf("%s.name %q is already used by another source", field, src.Name)
		}
		seen[src.Name] = struct{}{}
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
