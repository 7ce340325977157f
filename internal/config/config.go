package config

import (
	"os"
	"strings"
	"time"

	"codeberg.org/mutker/co2scale/internal/errors"
	"codeberg.org/mutker/co2scale/internal/logger"
	"codeberg.org/mutker/co2scale/internal/poller"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultAddress          = "http://first-co2-bottle-scale.fritz.box"
	DefaultHomeInterval     = time.Second
	DefaultSettingsInterval = 2 * time.Second
	DefaultLogLevel         = "info"
	DefaultListen           = ":8080"
	DefaultHistoryDSN       = "file:co2scale?mode=memory&cache=shared"
	DefaultEnvPrefix        = "CO2SCALE"

	configName = "co2scale"
	configType = "toml"
)

type Config struct {
	Address          string        `mapstructure:"address"`
	Origin           string        `mapstructure:"origin"`
	HomeInterval     time.Duration `mapstructure:"home_interval"`
	SettingsInterval time.Duration `mapstructure:"settings_interval"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
	OverlapPolicy    string        `mapstructure:"overlap_policy"`
	LogLevel         string        `mapstructure:"log_level"`
	Listen           string        `mapstructure:"listen"`
	PIDFile          string        `mapstructure:"pid_file"`
	History          HistoryConfig `mapstructure:"history"`
	Metrics          MetricsConfig `mapstructure:"metrics"`
	Tracing          TracingConfig `mapstructure:"tracing"`
}

type HistoryConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	DSN          string        `mapstructure:"dsn"`
	BatchSize    int           `mapstructure:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	MaxBuffered  int           `mapstructure:"max_buffered"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// flagKeys maps command line flag names onto configuration keys.
var flagKeys = map[string]string{
	"address":           "address",
	"origin":            "origin",
	"home-interval":     "home_interval",
	"settings-interval": "settings_interval",
	"request-timeout":   "request_timeout",
	"overlap-policy":    "overlap_policy",
	"log-level":         "log_level",
	"listen":            "listen",
	"pid-file":          "pid_file",
	"history":           "history.enabled",
	"history-dsn":       "history.dsn",
	"tracing":           "tracing.enabled",
}

// RegisterFlags defines the flags Load understands on fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "Path to configuration file")
	fs.String("address", DefaultAddress, "Base address of the scale service")
	fs.String("origin", "", "Origin header sent with every request")
	fs.Duration("home-interval", DefaultHomeInterval, "Polling interval of the home view")
	fs.Duration("settings-interval", DefaultSettingsInterval, "Polling interval of the settings view")
	fs.Duration("request-timeout", 0, "Timeout per request to the scale (0 disables)")
	fs.String("overlap-policy", string(poller.LastResolvedWins), "Handling of overlapping reads: last-resolved, coalesce, cancel-stale")
	fs.String("log-level", DefaultLogLevel, "Log level: debug, info, warning, error")
	fs.String("listen", DefaultListen, "Listen address of the local API")
	fs.String("pid-file", "", "PID file of the serve command (default in the temp directory)")
	fs.Bool("history", false, "Record samples for usage statistics")
	fs.String("history-dsn", DefaultHistoryDSN, "SQLite DSN of the sample history")
	fs.Bool("tracing", false, "Export request traces to stdout")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("address", DefaultAddress)
	v.SetDefault("origin", "")
	v.SetDefault("home_interval", DefaultHomeInterval)
	v.SetDefault("settings_interval", DefaultSettingsInterval)
	v.SetDefault("request_timeout", time.Duration(0))
	v.SetDefault("overlap_policy", string(poller.LastResolvedWins))
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("listen", DefaultListen)
	v.SetDefault("pid_file", "")
	v.SetDefault("history.enabled", false)
	v.SetDefault("history.dsn", DefaultHistoryDSN)
	v.SetDefault("history.batch_size", 10)
	v.SetDefault("history.batch_timeout", 5*time.Second)
	v.SetDefault("history.max_buffered", 1000)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "co2scale")
	v.SetDefault("tracing.sample_ratio", 1.0)
}

// Load reads configuration from defaults, file, environment and flags,
// in increasing order of precedence, and validates the result.
func Load(opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := &options{envPrefix: DefaultEnvPrefix}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
		}
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if o.flags != nil {
		if f := o.flags.Lookup("config"); f != nil && f.Changed {
			o.configPath = f.Value.String()
		}
		for name, key := range flagKeys {
			if f := o.flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
				}
			}
		}
	}

	if o.configPath == "" {
		o.configPath = os.Getenv(o.envPrefix + "_CONFIG")
	}

	if o.configPath != "" {
		v.SetConfigFile(o.configPath)
		v.SetConfigType(configType)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType(configType)
		v.AddConfigPath("/etc")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home + "/.config/co2scale")
		}
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errFactory.Wrap(errors.ErrReadConfig, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrReadConfig, err)
	}

	cfg.Address = strings.TrimSpace(cfg.Address)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	errFactory := errors.New()

	if c.Address == "" {
		return errFactory.WithMessage(errors.ErrInvalidAddress, "scale address must not be empty")
	}

	if c.HomeInterval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, "home_interval="+c.HomeInterval.String())
	}

	if c.SettingsInterval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, "settings_interval="+c.SettingsInterval.String())
	}

	if c.RequestTimeout < 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, "request_timeout="+c.RequestTimeout.String())
	}

	if _, err := poller.ParsePolicy(c.OverlapPolicy); err != nil {
		return err
	}

	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return err
	}

	if c.History.Enabled {
		if c.History.DSN == "" {
			return errFactory.WithMessage(errors.ErrInvalidConfig, "history.dsn must not be empty")
		}
		if c.History.BatchSize < 1 {
			return errFactory.WithMessage(errors.ErrInvalidConfig, "history.batch_size must be at least 1")
		}
	}

	return nil
}

// Policy returns the configured overlap policy. Validate has already
// rejected unknown values.
func (c *Config) Policy() poller.Policy {
	p, _ := poller.ParsePolicy(c.OverlapPolicy)
	return p
}
