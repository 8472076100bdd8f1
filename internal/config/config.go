package config

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const (
	EnvPrefix = "PAYOUT"

	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	DefaultDatabaseDriver     = DriverSQLite
	DefaultDatabaseURL        = "./data/payout.db"
	DefaultCooldownWindow     = 300 * time.Second
	DefaultCooldownSweep      = time.Minute
	DefaultImportMaxBytes     = 1 << 20
	DefaultImportTimeout      = 15 * time.Second
	DefaultImportPerSecond    = 2.0
	DefaultShutdownTimeout    = 10 * time.Second
	DefaultLogLevel           = slog.LevelInfo
	DefaultDiscordgoLogLevel  = slog.LevelWarn
	DefaultHTTPReadTimeout    = 5 * time.Second
	DefaultTransactionsLimit  = 50
	defaultDatabaseDriverDesc = "sqlite or postgres"
)

// Config holds all configuration values for the bot
type Config struct {
	Discord  DiscordConfig  `mapstructure:"discord"`
	Database DatabaseConfig `mapstructure:"database"`
	Cooldown CooldownConfig `mapstructure:"cooldown"`
	Import   ImportConfig   `mapstructure:"import"`
	NATS     NATSConfig     `mapstructure:"nats"`
	HTTP     HTTPConfig     `mapstructure:"http"`

	// GuideURL is linked in deliveries of tiers that need extra steps
	GuideURL string `mapstructure:"guide_url"`

	LogLevel        slog.Level    `mapstructure:"log_level"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DiscordConfig struct {
	Token         string `mapstructure:"token"`
	ApplicationID string `mapstructure:"application_id"`
	// GuildID registers commands for one guild only (faster during development)
	GuildID string `mapstructure:"guild_id"`
	// RemoveCommands deletes registered commands on shutdown
	RemoveCommands bool       `mapstructure:"remove_commands"`
	LogLevel       slog.Level `mapstructure:"log_level"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	// URL is a file path for sqlite and a connection string for postgres
	URL string `mapstructure:"url"`
}

type CooldownConfig struct {
	Window        time.Duration `mapstructure:"window"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type ImportConfig struct {
	MaxBytes  int64         `mapstructure:"max_bytes"`
	Timeout   time.Duration `mapstructure:"timeout"`
	PerSecond float64       `mapstructure:"per_second"`
}

type NATSConfig struct {
	// URL enables event publishing when set
	URL string `mapstructure:"url"`
}

type HTTPConfig struct {
	// Addr enables the ops HTTP server when set
	Addr        string        `mapstructure:"addr"`
	Token       string        `mapstructure:"token"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
}

// SetDefaults registers every key with its default on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault("discord.token", "")
	v.SetDefault("discord.application_id", "")
	v.SetDefault("discord.guild_id", "")
	v.SetDefault("discord.remove_commands", false)
	v.SetDefault("discord.log_level", DefaultDiscordgoLogLevel.String())

	v.SetDefault("database.driver", DefaultDatabaseDriver)
	v.SetDefault("database.url", DefaultDatabaseURL)

	v.SetDefault("cooldown.window", DefaultCooldownWindow)
	v.SetDefault("cooldown.sweep_interval", DefaultCooldownSweep)

	v.SetDefault("import.max_bytes", DefaultImportMaxBytes)
	v.SetDefault("import.timeout", DefaultImportTimeout)
	v.SetDefault("import.per_second", DefaultImportPerSecond)

	v.SetDefault("nats.url", "")

	v.SetDefault("http.addr", "")
	v.SetDefault("http.token", "")
	v.SetDefault("http.read_timeout", DefaultHTTPReadTimeout)

	v.SetDefault("guide_url", "")
	v.SetDefault("log_level", DefaultLogLevel.String())
	v.SetDefault("shutdown_timeout", DefaultShutdownTimeout)
}

// Load reads configuration from an optional config file, a .env file and
// PAYOUT_* environment variables, in increasing precedence.
func Load(configFile string) (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	v := viper.New()
	SetDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return Decode(v)
}

// Decode unmarshals v into a validated Config
func Decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	err := v.Unmarshal(
		cfg,
		viper.DecodeHook(
			mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				LevelHookFunc(),
			),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that have no usable default
func (c *Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		errs = append(errs, fmt.Errorf("database.driver must be %s, got %q", defaultDatabaseDriverDesc, c.Database.Driver))
	}
	if c.Database.URL == "" {
		errs = append(errs, errors.New("database.url is required"))
	}
	if c.Cooldown.Window < 0 {
		errs = append(errs, errors.New("cooldown.window must not be negative"))
	}
	if c.Cooldown.SweepInterval <= 0 {
		errs = append(errs, errors.New("cooldown.sweep_interval must be positive"))
	}
	if c.Import.MaxBytes <= 0 {
		errs = append(errs, errors.New("import.max_bytes must be positive"))
	}
	if c.Import.PerSecond <= 0 {
		errs = append(errs, errors.New("import.per_second must be positive"))
	}
	return errors.Join(errs...)
}

// RequireDiscord is checked only by commands that connect to Discord
func (c *Config) RequireDiscord() error {
	if c.Discord.Token == "" {
		return fmt.Errorf("%s_DISCORD_TOKEN is required", EnvPrefix)
	}
	return nil
}

// LevelHookFunc decodes level names such as "debug" or "WARN" into slog.Level
func LevelHookFunc() mapstructure.DecodeHookFuncType {
	return func(f reflect.Type, t reflect.Type, data any) (any, error) {
		if f.Kind() != reflect.String || t != reflect.TypeOf(slog.Level(0)) {
			return data, nil
		}
		var lvl slog.Level
		if err := lvl.UnmarshalText([]byte(data.(string))); err != nil {
			return nil, fmt.Errorf("invalid log level: %s", data)
		}
		return lvl, nil
	}
}
