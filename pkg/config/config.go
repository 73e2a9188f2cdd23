// Package config loads and validates highlighter configuration from YAML files
// with environment-variable overrides. It provides typed structs for the
// highlight core (groups, scheduler, viewport) and for every backing service
// the daemon talks to (Redis, Kafka, PostgreSQL, metrics).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// MaxFreezeGroups is the number of freeze slots next to the selection group.
const MaxFreezeGroups = 3

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Document  DocumentConfig  `yaml:"document"`
	Highlight HighlightConfig `yaml:"highlight"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Viewport  ViewportConfig  `yaml:"viewport"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// DocumentConfig names the document the daemon serves.
type DocumentConfig struct {
	Path string `yaml:"path"`
}

// HighlightConfig holds the per-group matching defaults. Slot 0 is the
// current selection, slots 1..MaxFreezeGroups are freeze groups.
type HighlightConfig struct {
	CaseSensitive bool     `yaml:"caseSensitive"`
	WholeWordOnly bool     `yaml:"wholeWordOnly"`
	Colors        []string `yaml:"colors"`
}

// Color returns the configured colour for a slot, falling back to the
// first entry.
func (h HighlightConfig) Color(slot int) string {
	if slot >= 0 && slot < len(h.Colors) {
		return h.Colors[slot]
	}
	if len(h.Colors) > 0 {
		return h.Colors[0]
	}
	return ""
}

// SchedulerConfig controls the debounced full-document scan.
type SchedulerConfig struct {
	Debounce     time.Duration `yaml:"debounce"`
	EventsBuffer int           `yaml:"eventsBuffer"`
}

// ViewportConfig describes the visible window used for the instant scan and
// for damage-to-rectangle mapping.
type ViewportConfig struct {
	VisibleLines int `yaml:"visibleLines"`
	Width        int `yaml:"width"`
	LineHeight   int `yaml:"lineHeight"`
}

// PostgresConfig holds PostgreSQL connection parameters for the settings
// store.
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	EditorEvents    string `yaml:"editorEvents"`
	HighlightEvents string `yaml:"highlightEvents"`
}

// RedisConfig holds the full-scan cache connection parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. Missing values keep their defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the core cannot run with.
func (c *Config) Validate() error {
	if c.Scheduler.Debounce < 0 {
		return fmt.Errorf("scheduler.debounce must not be negative, got %s", c.Scheduler.Debounce)
	}
	if c.Viewport.VisibleLines <= 0 {
		return fmt.Errorf("viewport.visibleLines must be positive, got %d", c.Viewport.VisibleLines)
	}
	if c.Viewport.LineHeight <= 0 {
		return fmt.Errorf("viewport.lineHeight must be positive, got %d", c.Viewport.LineHeight)
	}
	if len(c.Highlight.Colors) > MaxFreezeGroups+1 {
		return fmt.Errorf("highlight.colors has %d entries, at most %d are used",
			len(c.Highlight.Colors), MaxFreezeGroups+1)
	}
	return nil
}

// Default returns a Config with defaults suitable for local development.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8090,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Highlight: HighlightConfig{
			CaseSensitive: false,
			WholeWordOnly: false,
			Colors:        []string{"#5f5f00", "#005f87", "#875f00", "#5f0087"},
		},
		Scheduler: SchedulerConfig{
			Debounce:     250 * time.Millisecond,
			EventsBuffer: 64,
		},
		Viewport: ViewportConfig{
			VisibleLines: 50,
			Width:        120,
			LineHeight:   1,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "highlighter",
			User:            "highlighter",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    5,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "highlighter-group",
			Topics: KafkaTopics{
				EditorEvents:    "editor.events",
				HighlightEvents: "highlight.events",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9091,
		},
	}
}

// applyEnvOverrides reads HL_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("HL_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("HL_DOCUMENT_PATH"); v != "" {
		cfg.Document.Path = v
	}
	if v := os.Getenv("HL_CASE_SENSITIVE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Highlight.CaseSensitive = b
		}
	}
	if v := os.Getenv("HL_WHOLE_WORD"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Highlight.WholeWordOnly = b
		}
	}
	if v := os.Getenv("HL_SCHEDULER_DEBOUNCE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Scheduler.Debounce = d
		}
	}
	if v := os.Getenv("HL_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
		cfg.Postgres.Enabled = true
	}
	if v := os.Getenv("HL_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("HL_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
		cfg.Kafka.Enabled = true
	}
	if v := os.Getenv("HL_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("HL_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("HL_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("HL_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("HL_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = port
		}
	}
}
