package config

import (
	"os"
	"regexp"
	"time"

	"github.com/amoylab/chatterbox/pkg/helper"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type (
	// ChatServerConfig represents the chat server configuration
	ChatServerConfig struct {
		Port      int            `yaml:"port"`
		PublicDir string         `yaml:"public_dir"` // static assets served at /
		PID       string         `yaml:"pid"`        // optional pid file
		Logger    LoggerConfig   `yaml:"logger"`
		Socket    SocketConfig   `yaml:"socket"`
		Presence  PresenceConfig `yaml:"presence"`
		Bus       BusConfig      `yaml:"bus"`
		Database  DatabaseConfig `yaml:"database"`
		Storage   StorageConfig  `yaml:"storage"`
		Metrics   MetricsConfig  `yaml:"metrics"`
		Tracing   TracingConfig  `yaml:"tracing"`
	}

	// SocketConfig controls the client transport
	SocketConfig struct {
		HeartbeatInterval time.Duration `yaml:"heartbeat_interval"` // how often the server pings
		HeartbeatTimeout  time.Duration `yaml:"heartbeat_timeout"`  // silence after which a connection is dropped
		WriteTimeout      time.Duration `yaml:"write_timeout"`
		CommandTimeout    time.Duration `yaml:"command_timeout"` // upper bound for one command's store calls
		MaxMessageSize    int64         `yaml:"max_message_size"`
		SendQueue         int           `yaml:"send_queue"` // outbound frames buffered per connection
	}

	// PresenceConfig represents the shared presence store configuration
	PresenceConfig struct {
		Type            string        `yaml:"type"`             // "memory" or "redis"
		Window          time.Duration `yaml:"window"`           // records older than this are stale
		BlockingCleanup bool          `yaml:"blocking_cleanup"` // remove stale records before List returns
		Redis           RedisConfig   `yaml:"redis"`
	}

	// BusConfig represents the event fan-out bus configuration
	BusConfig struct {
		Type  string      `yaml:"type"` // "memory" or "redis"
		Redis RedisConfig `yaml:"redis"`
	}

	// RedisConfig is shared by every redis-backed component
	RedisConfig struct {
		ClusterType string `yaml:"cluster_type"` // single, sentinel or cluster
		Addr        string `yaml:"addr"`         // multiple addresses separated by ';' or ','
		MasterName  string `yaml:"master_name"`
		Username    string `yaml:"username"`
		Password    string `yaml:"password"`
		DB          int    `yaml:"db"`
		Key         string `yaml:"key"`   // presence hash key
		Topic       string `yaml:"topic"` // pub/sub channel
	}

	// StorageConfig tunes retries against the durable store
	StorageConfig struct {
		MaxRetries int           `yaml:"max_retries"`
		BaseDelay  time.Duration `yaml:"base_delay"`
		PageSize   int           `yaml:"page_size"`
	}

	// MetricsConfig represents the prometheus configuration
	MetricsConfig struct {
		Enabled   bool      `yaml:"enabled"`
		Namespace string    `yaml:"namespace"`
		Buckets   []float64 `yaml:"buckets"`
	}

	// TracingConfig represents OpenTelemetry tracing configuration
	TracingConfig struct {
		Enabled     bool              `yaml:"enabled"`
		ServiceName string            `yaml:"service_name"`
		Endpoint    string            `yaml:"endpoint"`     // e.g. localhost:4317 or http://localhost:4318
		Protocol    string            `yaml:"protocol"`     // grpc or http
		Insecure    bool              `yaml:"insecure"`     // allow insecure connection
		SamplerRate float64           `yaml:"sampler_rate"` // 0.0~1.0
		Environment string            `yaml:"environment"`  // env tag: dev/staging/prod
		Headers     map[string]string `yaml:"headers"`
	}

	// LoggerConfig represents the logger configuration
	LoggerConfig struct {
		Level      string `yaml:"level"`       // debug, info, warn, error
		Format     string `yaml:"format"`      // json, console
		Output     string `yaml:"output"`      // stdout, file
		FilePath   string `yaml:"file_path"`   // path to log file when output is file
		MaxSize    int    `yaml:"max_size"`    // max size of log file in MB
		MaxBackups int    `yaml:"max_backups"` // max number of backup files
		MaxAge     int    `yaml:"max_age"`     // max age of backup files in days
		Compress   bool   `yaml:"compress"`    // whether to compress backup files
		Color      bool   `yaml:"color"`       // whether to use color in console output
		Stacktrace bool   `yaml:"stacktrace"`  // whether to include stacktrace in error logs
		TimeZone   string `yaml:"time_zone"`   // time zone for log timestamps, e.g., "UTC", default is local
		TimeFormat string `yaml:"time_format"` // time format for log timestamps, default is "2006-01-02 15:04:05"
	}
)

// LoadConfig loads configuration from a YAML file with environment variable support
func LoadConfig(filename string) (*ChatServerConfig, string, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	cfgPath := helper.GetCfgPath(filename)
	data, err := os.ReadFile(cfgPath)
	if err != nil {
		return nil, cfgPath, err
	}

	// Resolve environment variables
	data = resolveEnv(data)
	var cfg ChatServerConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, cfgPath, err
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, cfgPath, err
	}

	return &cfg, cfgPath, nil
}

var envPattern = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// resolveEnv replaces environment variable placeholders in YAML content
func resolveEnv(content []byte) []byte {
	return envPattern.ReplaceAllFunc(content, func(match []byte) []byte {
		matches := envPattern.FindSubmatch(match)
		envKey := string(matches[1])
		var defaultValue string

		if len(matches) > 2 {
			defaultValue = string(matches[2])
		}

		if value, exists := os.LookupEnv(envKey); exists {
			return []byte(value)
		}
		return []byte(defaultValue)
	})
}
