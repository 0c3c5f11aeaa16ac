// Package config loads harvester configuration from a YAML file, HARVESTER_
// environment variables and built-in defaults, in that order of precedence
// below command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/quoteharvest/harvester/pkg/fetch"
	"github.com/quoteharvest/harvester/pkg/logging"
	"github.com/quoteharvest/harvester/pkg/sink"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. HARVESTER_FETCH_TIMEOUT.
const EnvPrefix = "HARVESTER"

// Config is the full harvester configuration.
type Config struct {
	Fetch   FetchConfig   `mapstructure:"fetch"`
	Harvest HarvestConfig `mapstructure:"harvest"`
	Logging LoggingConfig `mapstructure:"logging"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Output  OutputConfig  `mapstructure:"output"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// FetchConfig configures the page fetcher.
type FetchConfig struct {
	Timeout           time.Duration `mapstructure:"timeout"`
	UserAgent         string        `mapstructure:"user_agent"`
	MaxRetries        int           `mapstructure:"max_retries"`
	BackoffFactor     time.Duration `mapstructure:"backoff_factor"`
	BackoffMultiplier float64       `mapstructure:"backoff_multiplier"`
	MaxBackoff        time.Duration `mapstructure:"max_backoff"`
	Jitter            float64       `mapstructure:"jitter"`
	RetryStatuses     []int         `mapstructure:"retry_statuses"`
	MaxConnsPerHost   int           `mapstructure:"max_conns_per_host"`
}

// HarvestConfig configures the worker pool.
type HarvestConfig struct {
	Workers int `mapstructure:"workers"`
}

// LoggingConfig configures zerolog output.
type LoggingConfig struct {
	Level    string         `mapstructure:"level"`
	Pretty   bool           `mapstructure:"pretty"`
	File     string         `mapstructure:"file"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSize    int  `mapstructure:"max_size"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAge     int  `mapstructure:"max_age"`
	Compress   bool `mapstructure:"compress"`
}

// RedisConfig configures the optional page cache and politeness tracker.
// An empty Addr disables both.
type RedisConfig struct {
	Addr              string        `mapstructure:"addr"`
	Password          string        `mapstructure:"password"`
	DB                int           `mapstructure:"db"`
	CacheTTL          time.Duration `mapstructure:"cache_ttl"`
	PolitenessMaxWait time.Duration `mapstructure:"politeness_max_wait"`
}

// OutputConfig configures persistence.
type OutputConfig struct {
	Dir    string `mapstructure:"dir"`
	Format string `mapstructure:"format"`
}

// MetricsConfig configures Prometheus exposition. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// Load reads configuration. With an empty path it searches ./configs, the
// working directory and ~/.harvester for harvester.yaml; a missing file is
// not an error.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("harvester")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".harvester"))
		}
	}

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	def := fetch.DefaultRetryPolicy()

	v.SetDefault("fetch.timeout", 30*time.Second)
	v.SetDefault("fetch.user_agent", "quote-harvester/1.0")
	v.SetDefault("fetch.max_retries", def.MaxRetries)
	v.SetDefault("fetch.backoff_factor", def.BackoffFactor)
	v.SetDefault("fetch.backoff_multiplier", def.Multiplier)
	v.SetDefault("fetch.max_backoff", def.MaxBackoff)
	v.SetDefault("fetch.jitter", def.Jitter)
	v.SetDefault("fetch.retry_statuses", def.RetryStatuses)
	v.SetDefault("fetch.max_conns_per_host", 10)

	v.SetDefault("harvest.workers", 10)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.pretty", false)
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.rotation.max_size", 10)
	v.SetDefault("logging.rotation.max_backups", 3)
	v.SetDefault("logging.rotation.max_age", 28)
	v.SetDefault("logging.rotation.compress", true)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.cache_ttl", 6*time.Hour)
	v.SetDefault("redis.politeness_max_wait", 2*time.Minute)

	v.SetDefault("output.dir", "output")
	v.SetDefault("output.format", ".json")

	v.SetDefault("metrics.addr", "")
}

// Validate reports configuration values no component can work with.
func (c *Config) Validate() error {
	if c.Harvest.Workers < 1 {
		return fmt.Errorf("harvest.workers must be >= 1, got %d", c.Harvest.Workers)
	}
	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("fetch.timeout must be positive, got %s", c.Fetch.Timeout)
	}
	if c.Fetch.MaxRetries < 0 {
		return fmt.Errorf("fetch.max_retries must be >= 0, got %d", c.Fetch.MaxRetries)
	}
	if c.Fetch.MaxConnsPerHost < c.Harvest.Workers {
		// Smaller pools serialize workers on connection setup.
		c.Fetch.MaxConnsPerHost = c.Harvest.Workers
	}
	format := c.Output.Format
	if !strings.HasPrefix(format, ".") {
		format = "." + format
	}
	if !slices.Contains(sink.Formats(), strings.ToLower(format)) {
		return fmt.Errorf("output.format: %w: %q", sink.ErrUnsupportedFormat, c.Output.Format)
	}
	c.Output.Format = strings.ToLower(format)
	return nil
}

// FetchConfig converts the fetch section into a fetch.Config without
// collaborators.
func (c *Config) FetchConfig() fetch.Config {
	cfg := fetch.DefaultConfig(c.Fetch.UserAgent)
	cfg.Timeout = c.Fetch.Timeout
	cfg.MaxConnsPerHost = c.Fetch.MaxConnsPerHost
	cfg.Retry = fetch.RetryPolicy{
		MaxRetries:    c.Fetch.MaxRetries,
		BackoffFactor: c.Fetch.BackoffFactor,
		Multiplier:    c.Fetch.BackoffMultiplier,
		MaxBackoff:    c.Fetch.MaxBackoff,
		Jitter:        c.Fetch.Jitter,
		RetryStatuses: c.Fetch.RetryStatuses,
	}
	return cfg
}

// LoggingConfig converts the logging section into a logging.Config.
func (c *Config) LoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LogLevel(strings.ToLower(c.Logging.Level))
	cfg.Pretty = c.Logging.Pretty
	cfg.File = logging.FileConfig{
		Path:       c.Logging.File,
		MaxSize:    c.Logging.Rotation.MaxSize,
		MaxBackups: c.Logging.Rotation.MaxBackups,
		MaxAge:     c.Logging.Rotation.MaxAge,
		Compress:   c.Logging.Rotation.Compress,
	}
	return cfg
}

// Overrides carries command-line values. Zero values leave the loaded
// configuration untouched.
type Overrides struct {
	LogLevel    string
	Pretty      bool
	Workers     int
	RedisAddr   string
	MetricsAddr string
	Format      string
}

// MergeCLIFlags applies o on top of c and re-validates the result.
func (c *Config) MergeCLIFlags(o Overrides) error {
	if o.LogLevel != "" {
		c.Logging.Level = o.LogLevel
	}
	if o.Pretty {
		c.Logging.Pretty = true
	}
	if o.Workers > 0 {
		c.Harvest.Workers = o.Workers
	}
	if o.RedisAddr != "" {
		c.Redis.Addr = o.RedisAddr
	}
	if o.MetricsAddr != "" {
		c.Metrics.Addr = o.MetricsAddr
	}
	if o.Format != "" {
		c.Output.Format = o.Format
	}
	return c.Validate()
}
