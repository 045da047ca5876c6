// Package config loads runtime settings from an optional YAML file,
// VESSELSIM_ environment variables and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/got-is-bad-at-git/Kerbalism/core"
	"github.com/got-is-bad-at-git/Kerbalism/internal/envmodel"
	"github.com/got-is-bad-at-git/Kerbalism/internal/logging"
	"github.com/got-is-bad-at-git/Kerbalism/internal/observability"
)

// EnvPrefix prefixes every environment override, e.g.
// VESSELSIM_CACHE_ANALYTIC_WARP_THRESHOLD.
const EnvPrefix = "VESSELSIM"

// Config is the root configuration.
type Config struct {
	Scenario    string        `mapstructure:"scenario"`
	Tick        time.Duration `mapstructure:"tick" validate:"gt=0"`
	Duration    time.Duration `mapstructure:"duration" validate:"gte=0"`
	Mode        string        `mapstructure:"mode" validate:"oneof=realtime accelerated"`
	WarpRate    float64       `mapstructure:"warp_rate" validate:"gte=0"`
	PlasmaSpeed float64       `mapstructure:"plasma_speed" validate:"gte=0"`

	Cache       CacheConfig                 `mapstructure:"cache"`
	Environment EnvironmentConfig           `mapstructure:"environment"`
	Logging     LoggingConfig               `mapstructure:"logging"`
	Metrics     MetricsConfig               `mapstructure:"metrics"`
	Server      ServerConfig                `mapstructure:"server"`
	Tracing     observability.TracingConfig `mapstructure:"tracing"`
	Persistence PersistenceConfig           `mapstructure:"persistence"`
	Events      EventsConfig                `mapstructure:"events"`
}

// CacheConfig tunes the vessel state cache.
type CacheConfig struct {
	AnalyticWarpThreshold float64 `mapstructure:"analytic_warp_threshold" validate:"gte=1"`
	AnalyticGate          float64 `mapstructure:"analytic_gate" validate:"gt=0"`
	PositionEpsilon       float64 `mapstructure:"position_epsilon" validate:"gt=0"`
	MinimumTransmitRate   float64 `mapstructure:"minimum_transmit_rate" validate:"gte=0"`
}

// EnvironmentConfig tunes the radiation model.
type EnvironmentConfig struct {
	ExternRadiation   float64 `mapstructure:"extern_radiation" validate:"gte=0"`
	StormRadiation    float64 `mapstructure:"storm_radiation" validate:"gte=0"`
	ShieldedFraction  float64 `mapstructure:"shielded_fraction" validate:"gte=0,lte=1"`
	ThermosphereScale float64 `mapstructure:"thermosphere_scale" validate:"gte=1"`
	ExosphereScale    float64 `mapstructure:"exosphere_scale" validate:"gtefield=ThermosphereScale"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level     string `mapstructure:"level" validate:"oneof=debug info warn warning error"`
	Format    string `mapstructure:"format" validate:"oneof=text json"`
	AddSource bool   `mapstructure:"add_source"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address" validate:"required_if=Enabled true"`
}

// ServerConfig controls the gRPC health server.
type ServerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address" validate:"required_if=Enabled true"`
}

// PersistenceConfig selects the part field database. An empty path keeps
// it in memory.
type PersistenceConfig struct {
	Path string `mapstructure:"path"`
}

// EventsConfig selects where change notifications are written as JSON
// lines. "-" is stdout and empty disables the sink.
type EventsConfig struct {
	Path string `mapstructure:"path"`
}

func setDefaults(v *viper.Viper) {
	th := core.DefaultThresholds()
	env := envmodel.DefaultParams()

	v.SetDefault("scenario", "")
	v.SetDefault("tick", time.Second)
	v.SetDefault("duration", time.Duration(0))
	v.SetDefault("mode", "accelerated")
	v.SetDefault("warp_rate", 0.0)
	v.SetDefault("plasma_speed", 2000.0)

	v.SetDefault("cache.analytic_warp_threshold", th.AnalyticWarpThreshold)
	v.SetDefault("cache.analytic_gate", th.AnalyticGate)
	v.SetDefault("cache.position_epsilon", th.PositionEpsilon)
	v.SetDefault("cache.minimum_transmit_rate", th.MinimumTransmitRate)

	v.SetDefault("environment.extern_radiation", env.ExternRadiation)
	v.SetDefault("environment.storm_radiation", env.StormRadiation)
	v.SetDefault("environment.shielded_fraction", env.ShieldedFraction)
	v.SetDefault("environment.thermosphere_scale", env.ThermosphereScale)
	v.SetDefault("environment.exosphere_scale", env.ExosphereScale)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.add_source", false)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.address", ":9090")
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.address", ":50051")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "vesselsim")
	v.SetDefault("tracing.exporter", "stdout")
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.insecure", true)
	v.SetDefault("tracing.sampler", "parent_ratio")
	v.SetDefault("tracing.sample_ratio", 1.0)

	v.SetDefault("persistence.path", "")
	v.SetDefault("events.path", "")
}

// New returns a viper instance with defaults and environment overrides
// applied. Callers may bind command-line flags to it before Load.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads configPath, when set, into v and returns the validated
// configuration. A nil v uses New().
func Load(v *viper.Viper, configPath string) (*Config, error) {
	if v == nil {
		v = New()
	}
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Mode = strings.ToLower(cfg.Mode)
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Default returns the configuration built from defaults alone, ignoring
// the environment.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		panic(fmt.Sprintf("config defaults do not decode: %v", err))
	}
	return cfg
}

var validate = validator.New()

// Validate checks struct constraints.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		msgs := make([]string, 0, len(verrs))
		for _, e := range verrs {
			msgs = append(msgs, fmt.Sprintf("field '%s' failed validation: %s (value: '%v')", e.Namespace(), e.Tag(), e.Value()))
		}
		return fmt.Errorf("validation failed:\n  %s", strings.Join(msgs, "\n  "))
	}
	return nil
}

// Thresholds converts the cache settings.
func (c *Config) Thresholds() core.Thresholds {
	return core.Thresholds{
		AnalyticWarpThreshold: c.Cache.AnalyticWarpThreshold,
		AnalyticGate:          c.Cache.AnalyticGate,
		PositionEpsilon:       c.Cache.PositionEpsilon,
		MinimumTransmitRate:   c.Cache.MinimumTransmitRate,
	}
}

// EnvironmentParams converts the environment settings.
func (c *Config) EnvironmentParams() envmodel.Params {
	return envmodel.Params{
		ExternRadiation:   c.Environment.ExternRadiation,
		StormRadiation:    c.Environment.StormRadiation,
		ShieldedFraction:  c.Environment.ShieldedFraction,
		ThermosphereScale: c.Environment.ThermosphereScale,
		ExosphereScale:    c.Environment.ExosphereScale,
	}
}

// LoggerConfig converts the logging settings.
func (c *Config) LoggerConfig() logging.Config {
	return logging.Config{
		Level:     c.Logging.Level,
		Format:    c.Logging.Format,
		AddSource: c.Logging.AddSource,
	}
}
