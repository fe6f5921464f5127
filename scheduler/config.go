/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package scheduler

import (
	"fmt"
	"time"

	"github.com/acronis/go-slowrate/config"
)

const cfgDefaultKeyPrefix = "scheduler"

const (
	cfgKeyInterval    = "interval"
	cfgKeyMaxAttempts = "maxAttempts"
)

// Default and restriction values.
const (
	DefaultInterval    = 500 * time.Millisecond
	DefaultMaxAttempts = 1
	MinMaxAttempts     = 1
)

// Config represents a set of configuration parameters for Scheduler.
// Configuration can be loaded in different formats (YAML, JSON) using config.Loader, viper,
// or with json.Unmarshal/yaml.Unmarshal functions directly.
type Config struct {
	// Interval is the minimal time between the starts of two consecutive dispatches.
	// Both duration strings ("250ms") and integer nanoseconds are accepted.
	Interval config.TimeDuration `mapstructure:"interval" yaml:"interval" json:"interval"`

	// MaxAttempts is the default number of executions of an operation (including the first one).
	// It is used for requests submitted without an explicit number of attempts.
	MaxAttempts int `mapstructure:"maxAttempts" yaml:"maxAttempts" json:"maxAttempts"`

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// ConfigOption is a type for functional options for the Config.
type ConfigOption func(*configOptions)

type configOptions struct {
	keyPrefix string
}

// WithKeyPrefix returns a ConfigOption that sets a key prefix for parsing configuration parameters.
// This prefix will be used by config.Loader.
func WithKeyPrefix(keyPrefix string) ConfigOption {
	return func(o *configOptions) {
		o.keyPrefix = keyPrefix
	}
}

// NewConfig creates a new instance of the Config.
func NewConfig(options ...ConfigOption) *Config {
	opts := configOptions{keyPrefix: cfgDefaultKeyPrefix}
	for _, opt := range options {
		opt(&opts)
	}
	return &Config{keyPrefix: opts.keyPrefix}
}

// NewDefaultConfig creates a new instance of the Config with default values.
func NewDefaultConfig(options ...ConfigOption) *Config {
	cfg := NewConfig(options...)
	cfg.Interval = config.TimeDuration(DefaultInterval)
	cfg.MaxAttempts = DefaultMaxAttempts
	return cfg
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
// Implements config.KeyPrefixProvider interface.
func (c *Config) KeyPrefix() string {
	if c.keyPrefix == "" {
		return cfgDefaultKeyPrefix
	}
	return c.keyPrefix
}

// SetProviderDefaults sets default configuration values for Scheduler in config.DataProvider.
// Implements config.Config interface.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyInterval, DefaultInterval.String())
	dp.SetDefault(cfgKeyMaxAttempts, DefaultMaxAttempts)
}

// Set sets Scheduler configuration values from config.DataProvider.
// Implements config.Config interface.
func (c *Config) Set(dp config.DataProvider) error {
	interval, err := dp.GetDuration(cfgKeyInterval)
	if err != nil {
		return err
	}
	if interval <= 0 {
		return dp.WrapKeyErr(cfgKeyInterval, ErrInvalidInterval)
	}
	c.Interval = config.TimeDuration(interval)

	if c.MaxAttempts, err = dp.GetInt(cfgKeyMaxAttempts); err != nil {
		return err
	}
	if c.MaxAttempts < MinMaxAttempts {
		return dp.WrapKeyErr(cfgKeyMaxAttempts, fmt.Errorf("should be >= %d", MinMaxAttempts))
	}

	return nil
}
