package config

import "time"

// Config is the service configuration: an optional YAML file overlaid
// with environment variables.
type Config struct {
	Central       CentralConfig `yaml:"central"`
	Fetch         FetchConfig   `yaml:"fetch"`
	Server        ServerConfig  `yaml:"server"`
	LogLevel      string        `yaml:"log_level"`
	ClickHouseDSN string        `yaml:"clickhouse_dsn"`
	PostgresDSN   string        `yaml:"postgres_dsn"`
	AuthCacheTTL  time.Duration `yaml:"auth_cache_ttl"`
}

// CentralConfig locates the RHACS Central API.
type CentralConfig struct {
	URL                string `yaml:"url"`
	Token              string `yaml:"token"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
}

// FetchConfig bounds the risk fan-out.
type FetchConfig struct {
	Concurrency int           `yaml:"concurrency"`
	CallTimeout time.Duration `yaml:"call_timeout"`
	// ListTimeout bounds the deployment listing; zero means CallTimeout.
	ListTimeout time.Duration `yaml:"list_timeout"`
}

// ServerConfig holds listener ports.
type ServerConfig struct {
	Port     string `yaml:"port"`
	GRPCPort string `yaml:"grpc_port"`
}
