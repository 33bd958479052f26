// Package config resolves the coach settings from defaults, an optional
// .coach.yaml, COACH_* environment variables and command flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DefaultOpMinutes    = 600.0
	DefaultPort         = 8080
	DefaultBenchmarkPct = 85.0
	DefaultTimeout      = 30 * time.Second
)

type Assistant struct {
	Model   string        `mapstructure:"model"`
	BaseURL string        `mapstructure:"base-url"`
	Timeout time.Duration `mapstructure:"timeout"`
	Mock    bool          `mapstructure:"mock"`
}

// Config is the resolved configuration. Data is a file path (.xlsx, .csv,
// .parquet) or a DSN; empty means generate a synthetic dataset.
type Config struct {
	Data       string    `mapstructure:"data"`
	OpMinutes  float64   `mapstructure:"op-minutes"`
	Timezone   string    `mapstructure:"timezone"`
	Port       int       `mapstructure:"port"`
	Benchmark  float64   `mapstructure:"utilization-benchmark"`
	Cache      bool      `mapstructure:"cache"`
	Watch      bool      `mapstructure:"watch"`
	Guidelines string    `mapstructure:"guidelines"`
	Seed       int64     `mapstructure:"seed"`
	Assistant  Assistant `mapstructure:"assistant"`
	ConfigFile string    `mapstructure:"config"`

	location *time.Location
}

// SetDefaults registers every key so AutomaticEnv can see it on Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("data", "")
	v.SetDefault("op-minutes", DefaultOpMinutes)
	v.SetDefault("timezone", "Local")
	v.SetDefault("port", DefaultPort)
	v.SetDefault("utilization-benchmark", DefaultBenchmarkPct)
	v.SetDefault("cache", true)
	v.SetDefault("watch", false)
	v.SetDefault("guidelines", "")
	v.SetDefault("seed", 42)
	v.SetDefault("assistant.model", "")
	v.SetDefault("assistant.base-url", "")
	v.SetDefault("assistant.timeout", DefaultTimeout)
	v.SetDefault("assistant.mock", false)
}

// Init wires file lookup and environment binding on v.
func Init(v *viper.Viper) {
	if configFile := v.GetString("config"); configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(".coach")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME")
	}
	v.SetEnvPrefix("COACH")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
}

// LoadEnv reads .env into the process environment. A missing file is fine.
func LoadEnv(files ...string) {
	_ = godotenv.Load(files...)
}

// Load reads the config file (if any) and unmarshals v into a validated Config.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.OpMinutes <= 0 {
		return fmt.Errorf("op-minutes must be positive, got %v", c.OpMinutes)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port out of range: %d", c.Port)
	}
	if c.Benchmark <= 0 || c.Benchmark > 100 {
		return fmt.Errorf("utilization-benchmark must be in (0, 100], got %v", c.Benchmark)
	}
	if c.Assistant.Timeout <= 0 {
		c.Assistant.Timeout = DefaultTimeout
	}
	loc, err := loadLocation(c.Timezone)
	if err != nil {
		return err
	}
	c.location = loc
	return nil
}

func loadLocation(name string) (*time.Location, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "local":
		return time.Local, nil
	case "utc":
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", name, err)
	}
	return loc, nil
}

// Location is the timezone windows are computed in.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.Local
	}
	return c.location
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string { return fmt.Sprintf(":%d", c.Port) }
