package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables that override file values.
const (
	EnvAddr         = "LOGVAULT_ADDR"
	EnvDBPath       = "LOGVAULT_DB_PATH"
	EnvAPIKeyHash   = "LOGVAULT_API_KEY_HASH"
	EnvKafkaBrokers = "LOGVAULT_KAFKA_BROKERS"
	EnvLogLevel     = "LOGVAULT_LOG_LEVEL"
)

type ServerConfig struct {
	Addr            string   `yaml:"addr"`
	WebDir          string   `yaml:"web_dir"`
	APIKeyHash      string   `yaml:"api_key_hash"`
	IngestRate      float64  `yaml:"ingest_rate"`
	IngestBurst     int      `yaml:"ingest_burst"`
	MaxBodyBytes    int64    `yaml:"max_body_bytes"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

type StorageConfig struct {
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type KafkaConfig struct {
	Brokers       []string `yaml:"brokers"`
	Topic         string   `yaml:"topic"`
	GroupID       string   `yaml:"group_id"`
	BatchSize     int      `yaml:"batch_size"`
	FlushInterval Duration `yaml:"flush_interval"`
}

// Enabled reports whether the Kafka consumer should run.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

type ArchiveConfig struct {
	Dir       string   `yaml:"dir"`
	Interval  Duration `yaml:"interval"`
	Retention Duration `yaml:"retention"`
}

// Enabled reports whether periodic snapshots should be taken.
func (a ArchiveConfig) Enabled() bool {
	return a.Dir != ""
}

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Log     LogConfig     `yaml:"log"`
	Kafka   KafkaConfig   `yaml:"kafka"`
	Archive ArchiveConfig `yaml:"archive"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8088",
			MaxBodyBytes:    10 << 20,
			ShutdownTimeout: Duration(5 * time.Second),
		},
		Storage: StorageConfig{Path: "data/logs.json"},
		Log:     LogConfig{Level: "info", Format: "text"},
		Kafka: KafkaConfig{
			Topic:         "logs",
			GroupID:       "logvault",
			BatchSize:     500,
			FlushInterval: Duration(time.Second),
		},
		Archive: ArchiveConfig{
			Interval:  Duration(time.Hour),
			Retention: Duration(7 * 24 * time.Hour),
		},
	}
}

// Load reads the YAML file at path over the defaults, applies environment
// overrides and validates the result. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg.applyEnv(os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvAddr); ok && v != "" {
		c.Server.Addr = v
	}
	if v, ok := lookup(EnvDBPath); ok && v != "" {
		c.Storage.Path = v
	}
	if v, ok := lookup(EnvAPIKeyHash); ok {
		c.Server.APIKeyHash = v
	}
	if v, ok := lookup(EnvKafkaBrokers); ok {
		c.Kafka.Brokers = splitList(v)
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Log.Level = v
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate rejects values the service cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Storage.Path == "" {
		errs = append(errs, errors.New("storage.path is required"))
	}
	if c.Server.IngestRate < 0 {
		errs = append(errs, errors.New("server.ingest_rate cannot be negative"))
	}
	if c.Server.IngestBurst < 0 {
		errs = append(errs, errors.New("server.ingest_burst cannot be negative"))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must be positive"))
	}
	if c.Server.MaxBodyBytes < 0 {
		errs = append(errs, errors.New("server.max_body_bytes cannot be negative"))
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q must be one of debug, info, warn, error", c.Log.Level))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be text or json", c.Log.Format))
	}

	if c.Kafka.Enabled() {
		if c.Kafka.Topic == "" {
			errs = append(errs, errors.New("kafka.topic is required when brokers are set"))
		}
		if c.Kafka.GroupID == "" {
			errs = append(errs, errors.New("kafka.group_id is required when brokers are set"))
		}
		if c.Kafka.BatchSize < 1 {
			errs = append(errs, errors.New("kafka.batch_size must be positive"))
		}
		if c.Kafka.FlushInterval <= 0 {
			errs = append(errs, errors.New("kafka.flush_interval must be positive"))
		}
	}

	if c.Archive.Enabled() && c.Archive.Interval <= 0 {
		errs = append(errs, errors.New("archive.interval must be positive"))
	}
	if c.Archive.Retention < 0 {
		errs = append(errs, errors.New("archive.retention cannot be negative"))
	}

	return errors.Join(errs...)
}
