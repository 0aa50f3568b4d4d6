package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration for benchd.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Bench     BenchConfig     `mapstructure:"bench"`
	Database  PostgresConfig  `mapstructure:"database"`
	Cache     RedisConfig     `mapstructure:"cache"`
	NATS      NATSConfig      `mapstructure:"nats"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// WorkerPool pins the pool size; 0 derives it from the host core count.
	WorkerPool      int           `mapstructure:"worker_pool"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type TelemetryConfig struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	OTLPInsecure bool   `mapstructure:"otlp_insecure"`
	ServiceName  string `mapstructure:"service_name"`
	LogLevel     string `mapstructure:"log_level"`
	// LogFile, when set, receives a copy of every log record.
	LogFile string `mapstructure:"log_file"`
}

type BenchConfig struct {
	TextMessage        string   `mapstructure:"text_message"`
	WorldRows          int      `mapstructure:"world_rows"`
	QueriesParam       string   `mapstructure:"queries_param"`
	CachedQueriesParam string   `mapstructure:"cached_queries_param"`
	Templates          []string `mapstructure:"templates"`
}

// PostgresConfig configures the postgresql store. An empty Host disables it.
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DB       string `mapstructure:"db"`
	SSLMode  string `mapstructure:"ssl_mode"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// RedisConfig configures the world cache. An empty Host falls back to an
// in-process cache.
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// NATSConfig configures the lifecycle announcer. An empty URL disables it.
type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
}

// Enabled reports whether a postgres host is configured.
func (c PostgresConfig) Enabled() bool { return c.Host != "" }

// Enabled reports whether a redis host is configured.
func (c RedisConfig) Enabled() bool { return c.Host != "" }

// Enabled reports whether a NATS url is configured.
func (c NATSConfig) Enabled() bool { return c.URL != "" }

// Load reads config from the optional YAML file at path, then overlays
// environment variables with the BENCHD_ prefix (e.g. BENCHD_SERVER_PORT).
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("BENCHD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the launcher or stores cannot use.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d outside [1, 65535]", c.Server.Port)
	}
	if c.Server.WorkerPool < 0 {
		return fmt.Errorf("server.worker_pool must not be negative, got %d", c.Server.WorkerPool)
	}
	if c.Bench.WorldRows < 1 {
		return fmt.Errorf("bench.world_rows must be positive, got %d", c.Bench.WorldRows)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 8888)
	v.SetDefault("server.worker_pool", 0)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.otlp_insecure", true)
	v.SetDefault("telemetry.service_name", "benchd")
	v.SetDefault("telemetry.log_level", "info")
	v.SetDefault("telemetry.log_file", "")

	v.SetDefault("bench.text_message", "Hello, World!")
	v.SetDefault("bench.world_rows", 10000)
	v.SetDefault("bench.queries_param", "queries")
	v.SetDefault("bench.cached_queries_param", "count")
	v.SetDefault("bench.templates", []string{"html"})

	v.SetDefault("database.host", "")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "benchmarkdbuser")
	v.SetDefault("database.password", "benchmarkdbpass")
	v.SetDefault("database.db", "hello_world")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_conns", 64)

	v.SetDefault("cache.host", "")
	v.SetDefault("cache.port", 6379)
	v.SetDefault("cache.db", 0)
	v.SetDefault("cache.ttl", 0)

	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subject", "benchd.lifecycle")
}
