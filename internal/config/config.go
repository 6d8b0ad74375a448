// Package config loads service settings from defaults, an optional config
// file, a .env file and EVENTREG_* environment variables, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/Shivanand-hulikatti/event-reg-and-waitlist/internal/database"
	"github.com/Shivanand-hulikatti/event-reg-and-waitlist/internal/tracing"
)

// EnvPrefix is prepended to every environment variable, with dots in keys
// replaced by underscores (store.driver → EVENTREG_STORE_DRIVER).
const EnvPrefix = "EVENTREG"

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

type HTTP struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type Store struct {
	Driver      string        `mapstructure:"driver"`
	LockTimeout time.Duration `mapstructure:"lock_timeout"`
}

type Auth struct {
	Secret   string        `mapstructure:"secret"`
	Issuer   string        `mapstructure:"issuer"`
	TokenTTL time.Duration `mapstructure:"token_ttl"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type Notify struct {
	Buffer int `mapstructure:"buffer"`
}

type Idempotency struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// Config is the complete service configuration.
type Config struct {
	HTTP        HTTP            `mapstructure:"http"`
	Store       Store           `mapstructure:"store"`
	Database    database.Config `mapstructure:"database"`
	Auth        Auth            `mapstructure:"auth"`
	Log         Log             `mapstructure:"log"`
	Notify      Notify          `mapstructure:"notify"`
	Idempotency Idempotency     `mapstructure:"idempotency"`
	Tracing     tracing.Config  `mapstructure:"tracing"`
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() Config {
	return Config{
		HTTP: HTTP{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Store: Store{Driver: DriverMemory, LockTimeout: 2 * time.Second},
		Database: database.Config{
			Host:     "localhost",
			Port:     5432,
			User:     "postgres",
			Password: "postgres",
			Name:     "event_reg",
			SSLMode:  "disable",
			MaxConns: 20,
			MinConns: 2,
		},
		Auth:        Auth{Issuer: "event-reg", TokenTTL: 24 * time.Hour},
		Log:         Log{Level: "info", Format: "text"},
		Notify:      Notify{Buffer: 256},
		Idempotency: Idempotency{TTL: 10 * time.Minute},
		Tracing:     tracing.DefaultConfig(),
	}
}

// SetDefaults registers every default on v so that environment variables
// for unset keys are picked up by Unmarshal.
func SetDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("http.addr", d.HTTP.Addr)
	v.SetDefault("http.read_timeout", d.HTTP.ReadTimeout)
	v.SetDefault("http.write_timeout", d.HTTP.WriteTimeout)
	v.SetDefault("http.idle_timeout", d.HTTP.IdleTimeout)
	v.SetDefault("http.shutdown_timeout", d.HTTP.ShutdownTimeout)
	v.SetDefault("store.driver", d.Store.Driver)
	v.SetDefault("store.lock_timeout", d.Store.LockTimeout)
	v.SetDefault("database.host", d.Database.Host)
	v.SetDefault("database.port", d.Database.Port)
	v.SetDefault("database.user", d.Database.User)
	v.SetDefault("database.password", d.Database.Password)
	v.SetDefault("database.name", d.Database.Name)
	v.SetDefault("database.sslmode", d.Database.SSLMode)
	v.SetDefault("database.max_conns", d.Database.MaxConns)
	v.SetDefault("database.min_conns", d.Database.MinConns)
	v.SetDefault("auth.secret", d.Auth.Secret)
	v.SetDefault("auth.issuer", d.Auth.Issuer)
	v.SetDefault("auth.token_ttl", d.Auth.TokenTTL)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("notify.buffer", d.Notify.Buffer)
	v.SetDefault("idempotency.ttl", d.Idempotency.TTL)
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.otlp_endpoint", d.Tracing.OTLPEndpoint)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
}

// Load reads configuration into a Config. cfgFile may be empty, in which
// case ./config.yaml is used if present. dotenv names the .env file to load
// into the process environment; a missing file is not an error.
func Load(v *viper.Viper, cfgFile, dotenv string) (Config, error) {
	if dotenv != "" {
		if err := godotenv.Load(dotenv); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", dotenv, err)
		}
	}

	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
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

// Validate checks settings that have no usable fallback.
func (c Config) Validate() error {
	switch c.Store.Driver {
	case DriverMemory, DriverPostgres:
	default:
		return fmt.Errorf("store.driver must be %q or %q, got %q", DriverMemory, DriverPostgres, c.Store.Driver)
	}
	if c.Store.LockTimeout <= 0 {
		return errors.New("store.lock_timeout must be positive")
	}
	if c.Notify.Buffer <= 0 {
		return errors.New("notify.buffer must be positive")
	}
	return nil
}
