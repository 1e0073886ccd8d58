package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrInvalid is returned by Validate for a configuration that cannot run.
var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	Log    LogConfig    `mapstructure:"log"`
	DB     DBConfig     `mapstructure:"db"`
	Ingest IngestConfig `mapstructure:"ingest"`
	Retry  RetryConfig  `mapstructure:"retry"`
	Source SourceConfig `mapstructure:"source"`
	Server ServerConfig `mapstructure:"server"`
	Cron   CronConfig   `mapstructure:"cron"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	Path            string        `mapstructure:"path"`
	Host            string        `mapstructure:"host"`
	Port            string        `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	Timezone        string        `mapstructure:"timezone"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// IngestConfig sizes the worker pool and the store write batches.
type IngestConfig struct {
	WorkerCount int `mapstructure:"worker_count"`
	BatchSize   int `mapstructure:"batch_size"`
}

// RetryConfig is the single retry policy applied to every adapter call.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Backoff     time.Duration `mapstructure:"backoff"`
	MaxBackoff  time.Duration `mapstructure:"max_backoff"`
}

type SourceConfig struct {
	Timeout         time.Duration `mapstructure:"timeout"`
	UserAgent       string        `mapstructure:"user_agent"`
	HistoryRange    string        `mapstructure:"history_range"`
	EarningsDays    int           `mapstructure:"earnings_days"`
	YahooBaseURL    string        `mapstructure:"yahoo_base_url"`
	NasdaqBaseURL   string        `mapstructure:"nasdaq_base_url"`
	ListingTrackURL string        `mapstructure:"listingtrack_url"`
	SP500URL        string        `mapstructure:"sp500_url"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type CronConfig struct {
	Schedule string   `mapstructure:"schedule"`
	Kinds    []string `mapstructure:"kinds"`
}

// legacyEnv keeps the unprefixed variable names of earlier deployments working.
var legacyEnv = map[string]string{
	"db.host":             "DB_HOST",
	"db.port":             "DB_PORT",
	"db.user":             "DB_USER",
	"db.password":         "DB_PASSWORD",
	"db.name":             "DB_NAME",
	"ingest.worker_count": "WORKER_COUNT",
	"ingest.batch_size":   "BATCH_SIZE",
}

// Load reads the configuration from path (optional) and the environment.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("TT2")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, name := range legacyEnv {
		envKey := "TT2_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envKey, name); err != nil {
			return Config{}, err
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", false)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", true)

	v.SetDefault("db.driver", "postgres")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.path", "tt2_data.db")
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", "5432")
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "password")
	v.SetDefault("db.name", "tt2ingest")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("db.max_open_conns", 25)
	v.SetDefault("db.max_idle_conns", 25)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "10m")

	v.SetDefault("ingest.worker_count", 8)
	v.SetDefault("ingest.batch_size", 500)

	v.SetDefault("retry.max_attempts", 1)
	v.SetDefault("retry.backoff", "500ms")
	v.SetDefault("retry.max_backoff", "5s")

	v.SetDefault("source.timeout", "15s")
	v.SetDefault("source.user_agent", "Mozilla/5.0")
	v.SetDefault("source.history_range", "1y")
	v.SetDefault("source.earnings_days", 91)
	v.SetDefault("source.yahoo_base_url", "https://query1.finance.yahoo.com")
	v.SetDefault("source.nasdaq_base_url", "https://api.nasdaq.com")
	v.SetDefault("source.listingtrack_url", "https://api.listingtrack.io/odata/companies?select=symbol,name,ipo&inclAll=true&$orderby=ipo/listingDate%20desc&$expand=ipo(select=listingMethod)")
	v.SetDefault("source.sp500_url", "https://raw.githubusercontent.com/datasets/s-and-p-500-companies/main/data/constituents.csv")

	v.SetDefault("server.http_addr", ":8080")

	v.SetDefault("cron.schedule", "0 30 22 * * 1-5")
	v.SetDefault("cron.kinds", []string{"all"})
}

func (c Config) Validate() error {
	switch c.DB.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("%w: db.driver %q (want postgres or sqlite)", ErrInvalid, c.DB.Driver)
	}
	if c.Ingest.WorkerCount < 1 {
		return fmt.Errorf("%w: ingest.worker_count must be >= 1", ErrInvalid)
	}
	if c.Ingest.BatchSize < 1 {
		return fmt.Errorf("%w: ingest.batch_size must be >= 1", ErrInvalid)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("%w: retry.max_attempts must be >= 1", ErrInvalid)
	}
	return nil
}

// ConnString returns the driver specific connection string.
func (c DBConfig) ConnString() string {
	if c.DSN != "" {
		return c.DSN
	}
	if c.Driver == "sqlite" {
		return c.Path
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode, c.Timezone)
}
