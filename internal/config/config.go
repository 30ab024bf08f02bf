// Package config loads editledger settings from a YAML file, the environment,
// and built-in defaults, in increasing order of precedence below CLI flags.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// FileName is the config file base name searched for when no path is given.
const FileName = "editledger"

// EnvPrefix prefixes environment overrides, e.g. EDITLEDGER_DATABASE.
const EnvPrefix = "EDITLEDGER"

// Config holds runtime settings for the ledger and CLI.
type Config struct {
	Database     string                   `mapstructure:"database" validate:"required"`
	TxTimeout    time.Duration            `mapstructure:"tx_timeout" validate:"gt=0"`
	MaxRetries   int                      `mapstructure:"max_retries" validate:"gte=0,lte=10"`
	LogLevel     string                   `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	TypesDir     string                   `mapstructure:"types_dir"`
	MergeWindows map[string]time.Duration `mapstructure:"merge_windows" validate:"dive,keys,required,endkeys,gt=0"`

	// File is the config file that was read, empty when none was found.
	File string `mapstructure:"-"`
}

var validate = validator.New()

// Defaults returns the settings used when nothing overrides them.
func Defaults() Config {
	return Config{
		Database:   "editledger.db",
		TxTimeout:  5 * time.Second,
		MaxRetries: 3,
		LogLevel:   "info",
	}
}

// Load reads configuration. If file is non-empty it must exist; otherwise
// editledger.yaml is looked up in the working directory and the user config
// directory, and its absence is not an error.
func Load(file string) (*Config, error) {
	v := viper.New()

	d := Defaults()
	v.SetDefault("database", d.Database)
	v.SetDefault("tx_timeout", d.TxTimeout)
	v.SetDefault("max_retries", d.MaxRetries)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("types_dir", d.TypesDir)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "editledger"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// SlogLevel maps LogLevel to a slog level. Unknown levels map to info.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
