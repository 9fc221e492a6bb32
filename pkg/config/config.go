package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. PERSEPHONE_STORE_KIND.
const EnvPrefix = "PERSEPHONE"

// Store kinds.
const (
	StoreLocal    = "local"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
	ReportsLocal  = "local"
	ReportsS3     = "s3"
)

type Config struct {
	Log         LogConfig        `mapstructure:"log"`
	Store       StoreConfig      `mapstructure:"store"`
	Reports     ReportsConfig    `mapstructure:"reports"`
	Prometheus  PrometheusConfig `mapstructure:"prometheus"`
	Backtest    BacktestConfig   `mapstructure:"backtest"`
	Server      ServerConfig     `mapstructure:"server"`
	MetricsAddr string           `mapstructure:"metrics_addr"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// StoreConfig selects where weekly history lives.
type StoreConfig struct {
	Kind     string         `mapstructure:"kind"`
	Path     string         `mapstructure:"path"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	DB       int    `mapstructure:"db"`
	Password string `mapstructure:"password"`
}

type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

// ReportsConfig selects where backtest reports are written.
type ReportsConfig struct {
	Kind string   `mapstructure:"kind"`
	Path string   `mapstructure:"path"`
	S3   S3Config `mapstructure:"s3"`
}

type S3Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
}

// PrometheusConfig drives the ingestor.
type PrometheusConfig struct {
	Address      string        `mapstructure:"address"`
	Query        string        `mapstructure:"query"`
	Series       string        `mapstructure:"series"`
	Interval     time.Duration `mapstructure:"interval"`
	Lookback     int           `mapstructure:"lookback"`
	ChunkWeeks   int           `mapstructure:"chunk_weeks"`
	BackfillRate float64       `mapstructure:"backfill_rate"`
}

type BacktestConfig struct {
	Backend     string `mapstructure:"backend"`
	Gate        string `mapstructure:"gate"`
	Parallelism int    `mapstructure:"parallelism"`
}

// ServerConfig is the HTTP API. An empty APIKey disables authentication.
type ServerConfig struct {
	Addr   string `mapstructure:"addr"`
	APIKey string `mapstructure:"api_key"`
}

var defaults = map[string]any{
	"log.level":                "info",
	"log.format":               "json",
	"store.kind":               StoreLocal,
	"store.path":               "./data/series",
	"store.redis.addr":         "localhost:6379",
	"store.redis.db":           0,
	"store.redis.password":     "",
	"store.postgres.dsn":       "",
	"reports.kind":             ReportsLocal,
	"reports.path":             "./data",
	"reports.s3.endpoint":      "",
	"reports.s3.region":        "us-east-1",
	"reports.s3.bucket":        "",
	"reports.s3.prefix":        "",
	"reports.s3.access_key":    "",
	"reports.s3.secret_key":    "",
	"prometheus.address":       "http://localhost:9090",
	"prometheus.query":         "",
	"prometheus.series":        "",
	"prometheus.interval":      "1h",
	"prometheus.lookback":      2,
	"prometheus.chunk_weeks":   52,
	"prometheus.backfill_rate": 2.0,
	"backtest.backend":         "prophet",
	"backtest.gate":            "",
	"backtest.parallelism":     0,
	"server.addr":              ":8080",
	"server.api_key":           "",
	"metrics_addr":             ":9102",
}

// New returns a viper instance carrying the defaults and the PERSEPHONE_*
// environment overrides. Nested keys map to env names with "." replaced by
// "_".
func New() *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Defaults returns the default settings as a nested map, the shape of a
// config file.
func Defaults() map[string]any {
	out := map[string]any{}
	for key, value := range defaults {
		parts := strings.Split(key, ".")
		node := out
		for _, part := range parts[:len(parts)-1] {
			child, ok := node[part].(map[string]any)
			if !ok {
				child = map[string]any{}
				node[part] = child
			}
			node = child
		}
		node[parts[len(parts)-1]] = value
	}
	return out
}

// Load reads file into v and decodes the result. With an empty file it looks
// for persephone.yaml in the working directory and $HOME/.persephone; a
// missing file there is not an error.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("persephone")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.persephone")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings that cannot be caught by decoding alone.
func (c *Config) Validate() error {
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("config: log.format must be json or text, got %q", c.Log.Format)
	}

	switch c.Store.Kind {
	case StoreLocal:
		if c.Store.Path == "" {
			return errors.New("config: store.path is required for the local store")
		}
	case StoreRedis:
		if c.Store.Redis.Addr == "" {
			return errors.New("config: store.redis.addr is required for the redis store")
		}
	case StorePostgres:
		if c.Store.Postgres.DSN == "" {
			return errors.New("config: store.postgres.dsn is required for the postgres store")
		}
	default:
		return fmt.Errorf("config: unknown store.kind %q", c.Store.Kind)
	}

	switch c.Reports.Kind {
	case ReportsLocal:
		if c.Reports.Path == "" {
			return errors.New("config: reports.path is required for local reports")
		}
	case ReportsS3:
		if c.Reports.S3.Bucket == "" {
			return errors.New("config: reports.s3.bucket is required for s3 reports")
		}
	default:
		return fmt.Errorf("config: unknown reports.kind %q", c.Reports.Kind)
	}

	p := c.Prometheus
	if p.Interval <= 0 {
		return fmt.Errorf("config: prometheus.interval must be positive, got %s", p.Interval)
	}
	if p.Lookback < 1 || p.ChunkWeeks < 1 {
		return errors.New("config: prometheus.lookback and prometheus.chunk_weeks must be >= 1")
	}
	if p.BackfillRate <= 0 {
		return fmt.Errorf("config: prometheus.backfill_rate must be positive, got %g", p.BackfillRate)
	}
	if c.Backtest.Parallelism < 0 {
		return fmt.Errorf("config: backtest.parallelism must be >= 0, got %d", c.Backtest.Parallelism)
	}
	return nil
}
