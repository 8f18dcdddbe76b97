package config

import (
	"fmt"
	"os"
	"strings"
)

// SettingSource represents where an effective setting comes from.
type SettingSource string

const (
	SourceEnv     SettingSource = "env"
	SourceConfig  SettingSource = "config"
	SourceDefault SettingSource = "default"
)

// SettingStatus describes one effective setting, as shown by `niftypulse status`.
type SettingStatus struct {
	Key    string        `json:"key"`
	EnvVar string        `json:"env_var"`
	Value  string        `json:"value"`
	Source SettingSource `json:"source"`
}

// CheckSettings returns the effective value and origin of the settings that
// decide which upstreams are called and how hard they are retried.
func CheckSettings(cfg *Config) []SettingStatus {
	def := Default()
	return []SettingStatus{
		checkSetting("fetch.timeout", cfg.Fetch.Timeout.String(), def.Fetch.Timeout.String()),
		checkSetting("fetch.max_attempts", fmt.Sprint(cfg.Fetch.MaxAttempts), fmt.Sprint(def.Fetch.MaxAttempts)),
		checkSetting("fetch.retry_delay", cfg.Fetch.RetryDelay.String(), def.Fetch.RetryDelay.String()),
		checkSetting("fetch.user_agent", abbreviate(cfg.Fetch.UserAgent), abbreviate(def.Fetch.UserAgent)),
		checkSetting("sources.listing_url", cfg.Sources.ListingURL, def.Sources.ListingURL),
		checkSetting("sources.gainers_url", cfg.Sources.GainersURL, def.Sources.GainersURL),
		checkSetting("sources.losers_url", cfg.Sources.LosersURL, def.Sources.LosersURL),
		checkSetting("sources.spark_url", cfg.Sources.SparkURL, def.Sources.SparkURL),
		checkSetting("sources.quote_url", cfg.Sources.QuoteURL, def.Sources.QuoteURL),
		checkSetting("sources.chart_url", cfg.Sources.ChartURL, def.Sources.ChartURL),
		checkSetting("sources.history_range", cfg.Sources.HistoryRange, def.Sources.HistoryRange),
		checkSetting("logging.level", cfg.Logging.Level, def.Logging.Level),
	}
}

// EnvVar returns the environment variable that overrides key.
func EnvVar(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// checkSetting works out whether value came from the environment, a config
// file or the defaults.
func checkSetting(key, value, defaultValue string) SettingStatus {
	status := SettingStatus{
		Key:    key,
		EnvVar: EnvVar(key),
		Value:  value,
	}
	switch {
	case os.Getenv(status.EnvVar) != "":
		status.Source = SourceEnv
	case value != defaultValue:
		status.Source = SourceConfig
	default:
		status.Source = SourceDefault
	}
	return status
}

// abbreviate shortens long values for display, keeping the first 24 and the
// last 8 characters.
func abbreviate(s string) string {
	if len(s) <= 40 {
		return s
	}
	return s[:24] + "..." + s[len(s)-8:]
}
