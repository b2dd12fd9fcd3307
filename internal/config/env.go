package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ApplyEnv overrides cfg from environment variables.
//
// Environment variables:
//   - SIEVE_DOMAINS: comma-separated domain list (default: all)
//   - SIEVE_FAIL_ON: blocking severity (default: HIGH)
//   - SIEVE_TOOL_TIMEOUT: per-tool timeout, Go duration (default: 5m)
//   - SIEVE_COVERAGE_THRESHOLD: required coverage percentage (default: 80)
//   - SIEVE_COVERAGE_RUN_TESTS: run tests under coverage (default: true)
//   - SIEVE_COVERAGE_HIGH_BELOW / SIEVE_COVERAGE_MEDIUM_GAP: shortfall severity policy
//   - SIEVE_WATCH_DEBOUNCE_MS: watcher quiet period (default: 1000)
//   - SIEVE_NATS_URL / SIEVE_EVENTS_SUBJECT: scan-event publishing
//   - SIEVE_HISTORY_ENABLED / SIEVE_HISTORY_PATH: scan history database
//   - SIEVE_ADVISOR_ENABLED / SIEVE_ADVISOR_MODEL: AI fix guidance
func ApplyEnv(cfg *Config) error {
	if v := os.Getenv("SIEVE_DOMAINS"); v != "" {
		var domains []string
		for _, d := range strings.Split(v, ",") {
			if d = strings.TrimSpace(d); d != "" {
				domains = append(domains, d)
			}
		}
		cfg.Domains = domains
	}
	if err := parseEnvString("SIEVE_FAIL_ON", &cfg.FailOn); err != nil {
		return err
	}
	if err := parseEnvDuration("SIEVE_TOOL_TIMEOUT", &cfg.ToolTimeout); err != nil {
		return err
	}
	if err := parseEnvFloat("SIEVE_COVERAGE_THRESHOLD", &cfg.Coverage.Threshold); err != nil {
		return err
	}
	if err := parseEnvBool("SIEVE_COVERAGE_RUN_TESTS", &cfg.Coverage.RunTests); err != nil {
		return err
	}
	if err := parseEnvFloat("SIEVE_COVERAGE_HIGH_BELOW", &cfg.Coverage.HighBelow); err != nil {
		return err
	}
	if err := parseEnvFloat("SIEVE_COVERAGE_MEDIUM_GAP", &cfg.Coverage.MediumGap); err != nil {
		return err
	}
	if err := parseEnvInt("SIEVE_WATCH_DEBOUNCE_MS", &cfg.Watch.DebounceMS); err != nil {
		return err
	}
	if err := parseEnvString("SIEVE_NATS_URL", &cfg.Events.NatsURL); err != nil {
		return err
	}
	if err := parseEnvString("SIEVE_EVENTS_SUBJECT", &cfg.Events.Subject); err != nil {
		return err
	}
	if err := parseEnvBool("SIEVE_HISTORY_ENABLED", &cfg.History.Enabled); err != nil {
		return err
	}
	if err := parseEnvString("SIEVE_HISTORY_PATH", &cfg.History.Path); err != nil {
		return err
	}
	if err := parseEnvBool("SIEVE_ADVISOR_ENABLED", &cfg.Advisor.Enabled); err != nil {
		return err
	}
	return parseEnvString("SIEVE_ADVISOR_MODEL", &cfg.Advisor.Model)
}

// parseEnvInt parses an int from an environment variable
func parseEnvInt(key string, dest *int) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvFloat parses a float from an environment variable
func parseEnvFloat(key string, dest *float64) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvBool parses a bool from an environment variable
func parseEnvBool(key string, dest *bool) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

func parseEnvDuration(key string, dest *time.Duration) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvString parses a string from an environment variable
func parseEnvString(key string, dest *string) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	*dest = value
	return nil
}
