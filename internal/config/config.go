package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Propagation sources selectable by deployment topology.
const (
	SourceQueue      = "queue"
	SourceChangeFeed = "changefeed"
)

// Wait timeout bounds for the completion waiter.
const (
	MinWaitTimeout     = 1 * time.Second
	MaxWaitTimeout     = 60 * time.Second
	DefaultWaitTimeout = 10 * time.Second
)

// Config top-level struct
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
}

type ServerConfig struct {
	Port int `yaml:"port" env:"SERVER_PORT"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn" env:"POSTGRES_DSN"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers" env:"KAFKA_BROKERS" envSeparator:","`
	Topic   string   `yaml:"topic" env:"KAFKA_TOPIC"`
	GroupID string   `yaml:"group_id" env:"KAFKA_GROUP_ID"`
}

type RateLimitConfig struct {
	RPS   int `yaml:"rps" env:"RATELIMIT_RPS"`
	Burst int `yaml:"burst" env:"RATELIMIT_BURST"`
}

// PipelineConfig configures the propagation pipeline and the completion waiter.
type PipelineConfig struct {
	Source        string        `yaml:"source" env:"PIPELINE_SOURCE"`
	ChannelPrefix string        `yaml:"channel_prefix" env:"PIPELINE_CHANNEL_PREFIX"`
	Stream        string        `yaml:"stream" env:"PIPELINE_STREAM"`
	WaitTimeout   time.Duration `yaml:"wait_timeout" env:"PIPELINE_WAIT_TIMEOUT"`
	PollInterval  time.Duration `yaml:"poll_interval" env:"PIPELINE_POLL_INTERVAL"`
	BatchSize     int           `yaml:"batch_size" env:"PIPELINE_BATCH_SIZE"`
	MaxAttempts   int           `yaml:"max_attempts" env:"PIPELINE_MAX_ATTEMPTS"`
}

// DefaultPath is read when CONFIG_PATH is unset.
const DefaultPath = "internal/config/config.yaml"

// Path returns the configuration file location.
func Path() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return DefaultPath
}

// EnvFiles are loaded into the environment by Load when present. Variables
// already set win.
var EnvFiles = []string{".env", ".env.local"}

// LoadEnvFiles loads the existing files among names and reports how many it
// found.
func LoadEnvFiles(names ...string) (int, error) {
	existing := make([]string, 0, len(names))
	for _, name := range names {
		if _, err := os.Stat(name); err == nil {
			existing = append(existing, name)
		}
	}
	if len(existing) == 0 {
		return 0, nil
	}
	return len(existing), godotenv.Load(existing...)
}

// Load reads yaml file, then applies environment overrides and defaults.
func Load(path string) (*Config, error) {
	if _, err := LoadEnvFiles(EnvFiles...); err != nil {
		return nil, fmt.Errorf("load env files: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes yaml data, then applies environment overrides and defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("env overrides: %w", err)
	}
	// append DSN password from env if present
	if pw := os.Getenv("POSTGRES_PASSWORD"); pw != "" {
		cfg.Postgres.DSN = cfg.Postgres.DSN + " password=" + pw
	}
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "identity.events"
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "identity-poller"
	}
	p := &c.Pipeline
	if p.Source == "" {
		p.Source = SourceQueue
	}
	if p.ChannelPrefix == "" {
		p.ChannelPrefix = "identity"
	}
	if p.Stream == "" {
		p.Stream = "events"
	}
	if p.PollInterval <= 0 {
		p.PollInterval = time.Second
	}
	if p.BatchSize <= 0 {
		p.BatchSize = 100
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 10
	}
	p.WaitTimeout = ClampWaitTimeout(p.WaitTimeout)
}

func (c *Config) validate() error {
	switch c.Pipeline.Source {
	case SourceQueue, SourceChangeFeed:
	default:
		return fmt.Errorf("pipeline.source must be %q or %q, got %q", SourceQueue, SourceChangeFeed, c.Pipeline.Source)
	}
	return nil
}

// ClampWaitTimeout bounds d to [MinWaitTimeout, MaxWaitTimeout]; zero selects the default.
func ClampWaitTimeout(d time.Duration) time.Duration {
	switch {
	case d == 0:
		return DefaultWaitTimeout
	case d < MinWaitTimeout:
		return MinWaitTimeout
	case d > MaxWaitTimeout:
		return MaxWaitTimeout
	}
	return d
}
