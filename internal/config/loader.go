// Package config loads service settings from a YAML file and the
// environment. Environment variables win over the file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults returns the configuration used when nothing is set.
func Defaults() *Config {
	return &Config{
		Fetch: FetchConfig{
			Concurrency: 4,
			CallTimeout: 10 * time.Second,
		},
		Server: ServerConfig{
			Port:     "8080",
			GRPCPort: "50054",
		},
		LogLevel:     "info",
		AuthCacheTTL: 30 * time.Second,
	}
}

// Load reads path (if non-empty), applies environment overrides and
// validates the result.
func Load(path string) (*Config, error) {
	return load(path, os.Getenv)
}

func load(path string, getenv func(string) string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, formatYAMLError(path, err)
		}
	}

	if err := applyEnv(cfg, getenv); err != nil {
		return nil, err
	}
	if cfg.Fetch.ListTimeout == 0 {
		cfg.Fetch.ListTimeout = cfg.Fetch.CallTimeout
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	setString(getenv, "RHACS_CENTRAL_URL", &cfg.Central.URL)
	setString(getenv, "RHACS_API_TOKEN", &cfg.Central.Token)
	setString(getenv, "RISK_TOOL_PORT", &cfg.Server.Port)
	setString(getenv, "RISK_TOOL_GRPC_PORT", &cfg.Server.GRPCPort)
	setString(getenv, "RISK_TOOL_LOG_LEVEL", &cfg.LogLevel)
	setString(getenv, "CLICKHOUSE_DSN", &cfg.ClickHouseDSN)
	setString(getenv, "POSTGRES_DSN", &cfg.PostgresDSN)

	if v := getenv("RHACS_INSECURE_SKIP_VERIFY"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config error: RHACS_INSECURE_SKIP_VERIFY: %w", err)
		}
		cfg.Central.InsecureSkipVerify = b
	}
	if v := getenv("RISK_TOOL_FETCH_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config error: RISK_TOOL_FETCH_CONCURRENCY: %w", err)
		}
		cfg.Fetch.Concurrency = n
	}
	if v := getenv("RISK_TOOL_CALL_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config error: RISK_TOOL_CALL_TIMEOUT: %w", err)
		}
		cfg.Fetch.CallTimeout = d
	}
	if v := getenv("RISK_TOOL_LIST_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config error: RISK_TOOL_LIST_TIMEOUT: %w", err)
		}
		cfg.Fetch.ListTimeout = d
	}
	if v := getenv("RISK_TOOL_AUTH_CACHE_TTL_S"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config error: RISK_TOOL_AUTH_CACHE_TTL_S: %w", err)
		}
		cfg.AuthCacheTTL = time.Duration(n) * time.Second
	}
	return nil
}

func setString(getenv func(string) string, key string, dst *string) {
	if v := getenv(key); v != "" {
		*dst = v
	}
}

func validate(cfg *Config) error {
	if cfg.Central.URL == "" {
		return errors.New("config error: central URL is required (central.url or RHACS_CENTRAL_URL)")
	}
	u, err := url.Parse(cfg.Central.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("config error: central URL %q must be an absolute http(s) URL", cfg.Central.URL)
	}
	if cfg.Central.Token == "" {
		return errors.New("config error: API token is required (central.token or RHACS_API_TOKEN)")
	}
	if cfg.Fetch.Concurrency < 1 {
		return fmt.Errorf("config error: fetch concurrency must be at least 1, got %d", cfg.Fetch.Concurrency)
	}
	if cfg.Fetch.CallTimeout <= 0 {
		return fmt.Errorf("config error: fetch call timeout must be positive, got %v", cfg.Fetch.CallTimeout)
	}
	if cfg.Fetch.ListTimeout < 0 {
		return fmt.Errorf("config error: fetch list timeout must be positive, got %v", cfg.Fetch.ListTimeout)
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.LogLevel] {
		return fmt.Errorf("config error: invalid log level %q; must be one of: debug, info, warn, error", cfg.LogLevel)
	}
	return nil
}

func formatYAMLError(path string, err error) error {
	msg := err.Error()
	if strings.Contains(msg, "line") {
		return fmt.Errorf("syntax error in %s: %s", path, msg)
	}
	return fmt.Errorf("failed to parse %s: %s", path, msg)
}
