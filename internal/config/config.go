package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	yamlenv "github.com/ifuryst/go-yaml-env"
	"github.com/joho/godotenv"

	"github.com/ifuryst/cadence/pkg/logger"
)

var ErrMissingDatabase = errors.New("database url and service key are required")

type Config struct {
	Server    ServerConfig              `yaml:"server"`
	Database  DatabaseConfig            `yaml:"database"`
	Logger    logger.Config             `yaml:"logger"`
	Scheduler SchedulerConfig           `yaml:"scheduler"`
	Publisher PublisherConfig           `yaml:"publisher"`
	Redis     RedisConfig               `yaml:"redis"`
	Platforms map[string]PlatformConfig `yaml:"platforms"`
}

type ServerConfig struct {
	Port     int    `yaml:"port"`
	Host     string `yaml:"host"`
	Mode     string `yaml:"mode"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// DatabaseConfig points at the relational datastore. URL is a postgres
// connection URL; ServiceKey is the service credential used as its password.
type DatabaseConfig struct {
	URL         string `yaml:"url"`
	ServiceKey  string `yaml:"service_key"`
	TimeZone    string `yaml:"timezone"`
	LogQueries  bool   `yaml:"log_queries"`
	AutoMigrate bool   `yaml:"auto_migrate"`
}

type SchedulerConfig struct {
	Interval string `yaml:"interval"`
	Enabled  bool   `yaml:"enabled"`
}

type PublisherConfig struct {
	CallTimeout string `yaml:"call_timeout"`
	// RunTimeout bounds one HTTP-triggered run, which is detached from the
	// request so a dropped caller does not abort it.
	RunTimeout         string `yaml:"run_timeout"`
	BatchSize          int    `yaml:"batch_size"`
	Concurrency        int    `yaml:"concurrency"`
	RateLimitPerMinute int    `yaml:"rate_limit_per_minute"`
	// RetryFailedResults keeps an item scheduled when its platform call
	// returned a handled failure instead of promoting it to published.
	RetryFailedResults bool `yaml:"retry_failed_results"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	LockKey  string `yaml:"lock_key"`
	LockTTL  string `yaml:"lock_ttl"`
}

// PlatformConfig overrides the API endpoint of one publishing platform.
type PlatformConfig struct {
	BaseURL   string `yaml:"base_url"`
	UserAgent string `yaml:"user_agent"`
	Disabled  bool   `yaml:"disabled"`
}

// LoadConfig reads .env files into the process environment and then parses
// the YAML config with ${VAR} expansion.
func LoadConfig(configPath string) (*Config, error) {
	if err := loadEnvFiles(); err != nil {
		return nil, err
	}

	cfg, err := yamlenv.LoadConfig[Config](configPath)
	if err != nil {
		return nil, err
	}

	cfg.SetDefaults()
	return cfg, nil
}

func loadEnvFiles() error {
	if envFile := os.Getenv("ENV_FILE"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load env file %s: %w", envFile, err)
		}
		return nil
	}

	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

func (c *Config) SetDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "localhost"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 5334
	}
	if c.Server.Mode == "" {
		c.Server.Mode = "debug"
	}
	if c.Database.TimeZone == "" {
		c.Database.TimeZone = "UTC"
	}
	if c.Scheduler.Interval == "" {
		c.Scheduler.Interval = "5m"
	}
	if c.Publisher.CallTimeout == "" {
		c.Publisher.CallTimeout = "60s"
	}
	if c.Publisher.RunTimeout == "" {
		c.Publisher.RunTimeout = "30m"
	}
	if c.Publisher.Concurrency <= 0 {
		c.Publisher.Concurrency = 1
	}
	if c.Redis.LockKey == "" {
		c.Redis.LockKey = "cadence:publish-scheduled-content"
	}
	if c.Redis.LockTTL == "" {
		c.Redis.LockTTL = "10m"
	}
	if c.Platforms == nil {
		c.Platforms = make(map[string]PlatformConfig)
	}
}

// Validate reports configuration that makes every invocation fail.
func (c *Config) Validate() error {
	if c.Database.URL == "" || c.Database.ServiceKey == "" {
		return ErrMissingDatabase
	}
	if _, err := time.ParseDuration(c.Scheduler.Interval); err != nil {
		return fmt.Errorf("invalid scheduler interval %q: %w", c.Scheduler.Interval, err)
	}
	if _, err := time.ParseDuration(c.Publisher.CallTimeout); err != nil {
		return fmt.Errorf("invalid publisher call_timeout %q: %w", c.Publisher.CallTimeout, err)
	}
	if _, err := time.ParseDuration(c.Publisher.RunTimeout); err != nil {
		return fmt.Errorf("invalid publisher run_timeout %q: %w", c.Publisher.RunTimeout, err)
	}
	if _, err := time.ParseDuration(c.Redis.LockTTL); err != nil {
		return fmt.Errorf("invalid redis lock_ttl %q: %w", c.Redis.LockTTL, err)
	}
	return nil
}

func (p PublisherConfig) Timeout() time.Duration {
	d, err := time.ParseDuration(p.CallTimeout)
	if err != nil || d <= 0 {
		return 60 * time.Second
	}
	return d
}

func (p PublisherConfig) RunDeadline() time.Duration {
	d, err := time.ParseDuration(p.RunTimeout)
	if err != nil || d <= 0 {
		return 30 * time.Minute
	}
	return d
}

func (r RedisConfig) TTL() time.Duration {
	d, err := time.ParseDuration(r.LockTTL)
	if err != nil || d <= 0 {
		return 10 * time.Minute
	}
	return d
}

// Platform returns the override block for a platform, zero value if absent.
func (c *Config) Platform(name string) PlatformConfig {
	return c.Platforms[name]
}
