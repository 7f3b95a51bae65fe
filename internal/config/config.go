// Package config loads and validates the daemon's bus.yaml configuration:
// which plugins to wire and how to reach their backing services. A process
// with no config file at all runs with every optional plugin disabled.
package config

import (
	"fmt"
	"net"
	"os"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Config is the top-level bus.yaml document.
type Config struct {
	Signals     SignalsConfig      `yaml:"signals"`
	HTTP        *HTTPConfig        `yaml:"http"`
	Postgres    *PostgresConfig    `yaml:"postgres"`
	S3          *S3Config          `yaml:"s3"`
	Diagnostics *DiagnosticsConfig `yaml:"diagnostics"`
	Privileges  *PrivilegesConfig  `yaml:"privileges"`
	CronTasks   []CronTaskConfig   `yaml:"cron_tasks"`
}

// SignalsConfig controls the signal-handling collaborator.
type SignalsConfig struct {
	// Interactive mirrors whether the process is attached to a controlling
	// terminal; it changes the reload signal from restart to plain exit.
	Interactive bool `yaml:"interactive"`
}

// HTTPConfig enables the HTTP server plugin.
type HTTPConfig struct {
	Addr        string   `yaml:"addr"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// PostgresConfig enables the Postgres log archival sink.
type PostgresConfig struct {
	DSN        string `yaml:"dsn"`
	LogTable   string `yaml:"log_table"`
	BufferSize int    `yaml:"buffer_size"`
}

// S3Config enables the S3 log archival sink.
type S3Config struct {
	Endpoint   string `yaml:"endpoint"`
	AccessKey  string `yaml:"access_key"`
	SecretKey  string `yaml:"secret_key"`
	Bucket     string `yaml:"bucket"`
	Prefix     string `yaml:"prefix"`
	UseSSL     bool   `yaml:"use_ssl"`
	FlushEvery int    `yaml:"flush_every"`
}

// DiagnosticsConfig enables the Arrow transition-history recorder.
type DiagnosticsConfig struct {
	MaxRows int `yaml:"max_rows"`
}

// PrivilegesConfig enables dropping privileges after binding privileged
// resources.
type PrivilegesConfig struct {
	Umask int    `yaml:"umask"`
	Group string `yaml:"group"`
	User  string `yaml:"user"`
}

// CronTaskConfig declares one scheduled bus channel publish.
type CronTaskConfig struct {
	Name     string `yaml:"name"`
	Schedule string `yaml:"schedule"`
	Channel  string `yaml:"channel"`
}

// DefaultConfig returns the zero-plugin configuration: no HTTP, no sinks,
// no scheduled tasks.
func DefaultConfig() *Config {
	return &Config{}
}

// Load parses a bus.yaml file and validates it. An empty path returns
// DefaultConfig without touching the filesystem.
func Load(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ResolvePath finds the config file path. Priority: BUS_CONFIG env var >
// ./bus.yaml > "" (no config, defaults apply).
func ResolvePath() string {
	if p := os.Getenv("BUS_CONFIG"); p != "" {
		return p
	}
	if _, err := os.Stat("bus.yaml"); err == nil {
		return "bus.yaml"
	}
	return ""
}

func (c *Config) validate() error {
	if c.HTTP != nil && c.HTTP.Addr != "" {
		if _, _, err := net.SplitHostPort(c.HTTP.Addr); err != nil {
			return fmt.Errorf("http.addr %q: must be host:port (%w)", c.HTTP.Addr, err)
		}
	}

	if c.Postgres != nil && c.Postgres.DSN == "" {
		return fmt.Errorf("postgres: dsn is required when postgres is configured")
	}

	if c.S3 != nil {
		if c.S3.Endpoint == "" {
			return fmt.Errorf("s3: endpoint is required when s3 is configured")
		}
		if c.S3.Bucket == "" {
			return fmt.Errorf("s3: bucket is required when s3 is configured")
		}
	}

	seen := make(map[string]bool, len(c.CronTasks))
	for _, task := range c.CronTasks {
		if task.Name == "" {
			return fmt.Errorf("cron_tasks: name is required")
		}
		if seen[task.Name] {
			return fmt.Errorf("cron_tasks: duplicate name %q", task.Name)
		}
		seen[task.Name] = true
		if task.Channel == "" {
			return fmt.Errorf("cron_tasks[%s]: channel is required", task.Name)
		}
		if _, err := cron.ParseStandard(task.Schedule); err != nil {
			return fmt.Errorf("cron_tasks[%s]: invalid schedule %q: %w", task.Name, task.Schedule, err)
		}
	}

	return nil
}
