// Package config loads catalog-sync settings from defaults, an optional YAML
// file and CATALOG_SYNC_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. CATALOG_SYNC_SYNC_PAGE_SIZE.
const EnvPrefix = "CATALOG_SYNC"

type (
	// Config is the complete application configuration.
	Config struct {
		Catalog Catalog `mapstructure:"catalog"`
		Sync    Sync    `mapstructure:"sync"`
		Store   Store   `mapstructure:"store"`
		Redis   Redis   `mapstructure:"redis"`
		Logging Logging `mapstructure:"logging"`
		Metrics Metrics `mapstructure:"metrics"`
	}

	Catalog struct {
		BaseURL      string        `mapstructure:"base_url"`
		CategoryID   int           `mapstructure:"category_id"`
		ProductTypes string        `mapstructure:"product_types"`
		UserAgent    string        `mapstructure:"user_agent"`
		Timeout      time.Duration `mapstructure:"timeout"`
	}

	Sync struct {
		PageSize      int           `mapstructure:"page_size"`
		MaxConcurrent int           `mapstructure:"max_concurrent"`
		RoundDelay    time.Duration `mapstructure:"round_delay"`
		RoundTimeout  time.Duration `mapstructure:"round_timeout"`
	}

	Store struct {
		Path      string `mapstructure:"path"`
		BatchSize int    `mapstructure:"batch_size"`
		LogSQL    bool   `mapstructure:"log_sql"`
	}

	// Redis is optional; an empty Addr disables the run lock and snapshots.
	Redis struct {
		Addr    string        `mapstructure:"addr"`
		DB      int           `mapstructure:"db"`
		Prefix  string        `mapstructure:"prefix"`
		LockTTL time.Duration `mapstructure:"lock_ttl"`
	}

	Logging struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	}

	// Metrics exposes /metrics on Addr while a sync runs. Empty disables it.
	Metrics struct {
		Addr string `mapstructure:"addr"`
	}
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("catalog.base_url", "https://api.tcgplayer.com")
	v.SetDefault("catalog.category_id", 2)
	v.SetDefault("catalog.product_types", "Cards")
	v.SetDefault("catalog.user_agent", "tcg-catalog-sync/1.0")
	v.SetDefault("catalog.timeout", "30s")

	v.SetDefault("sync.page_size", 100)
	v.SetDefault("sync.max_concurrent", 20)
	v.SetDefault("sync.round_delay", "2s")
	v.SetDefault("sync.round_timeout", "0s")

	v.SetDefault("store.path", "catalog.db")
	v.SetDefault("store.batch_size", 200)
	v.SetDefault("store.log_sql", false)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "catalog_sync")
	v.SetDefault("redis.lock_ttl", "30m")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("metrics.addr", "")
}

// Load reads the configuration. An empty path searches ./catalog-sync.yaml
// and then $HOME/.catalog-sync/catalog-sync.yaml; a missing file there is not
// an error, a missing explicit path is.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("catalog-sync")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.catalog-sync")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
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

// Validate checks value ranges.
func (c *Config) Validate() error {
	var errs []error
	if c.Catalog.BaseURL == "" {
		errs = append(errs, errors.New("catalog.base_url is required"))
	}
	if c.Catalog.CategoryID <= 0 {
		errs = append(errs, fmt.Errorf("catalog.category_id must be > 0 (got %d)", c.Catalog.CategoryID))
	}
	if c.Catalog.UserAgent == "" {
		errs = append(errs, errors.New("catalog.user_agent is required"))
	}
	if c.Sync.PageSize <= 0 {
		errs = append(errs, fmt.Errorf("sync.page_size must be > 0 (got %d)", c.Sync.PageSize))
	}
	if c.Sync.MaxConcurrent <= 0 {
		errs = append(errs, fmt.Errorf("sync.max_concurrent must be > 0 (got %d)", c.Sync.MaxConcurrent))
	}
	if c.Sync.RoundDelay < 0 || c.Sync.RoundTimeout < 0 {
		errs = append(errs, errors.New("sync.round_delay and sync.round_timeout must be >= 0"))
	}
	if c.Store.Path == "" {
		errs = append(errs, errors.New("store.path is required"))
	}
	if c.Redis.Addr != "" && c.Redis.LockTTL <= 0 {
		errs = append(errs, errors.New("redis.lock_ttl must be > 0 when redis is enabled"))
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be console or json (got %q)", c.Logging.Format))
	}
	return errors.Join(errs...)
}
