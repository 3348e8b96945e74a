// Package config loads legtrans settings from a config file, LEGTRANS_*
// environment variables and bound command-line flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/valpere/legtrans/internal/ocr"
	"github.com/valpere/legtrans/internal/session"
	"github.com/valpere/legtrans/internal/translator"
	"github.com/valpere/legtrans/internal/validator"
)

const (
	EnvPrefix = "LEGTRANS"
	FileName  = "legtrans"
)

type Config struct {
	Server   ServerConfig             `mapstructure:"server"`
	Client   translator.ServiceConfig `mapstructure:"client"`
	Session  SessionConfig            `mapstructure:"session"`
	Location LocationConfig           `mapstructure:"location"`
	OCR      OCRConfig                `mapstructure:"ocr"`
	Store    StoreConfig              `mapstructure:"store"`
	Log      LogConfig                `mapstructure:"log"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
	MaxImageBytes   int64         `mapstructure:"max_image_bytes"`
}

type SessionConfig struct {
	Debounce      time.Duration `mapstructure:"debounce"`
	MinLength     int           `mapstructure:"min_length"`
	MaxLength     int           `mapstructure:"max_length"`
	TranslateSeed bool          `mapstructure:"translate_seed"`
	IdleTimeout   time.Duration `mapstructure:"idle_timeout"`
	MaxSessions   int           `mapstructure:"max_sessions"`
}

// LocationConfig selects where session locations live: "memory" or "redis".
type LocationConfig struct {
	Backend       string        `mapstructure:"backend"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	TTL           time.Duration `mapstructure:"ttl"`
}

type OCRConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type StoreConfig struct {
	Path    string `mapstructure:"path"`
	Enabled bool   `mapstructure:"enabled"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SetDefaults registers every key with its default so that environment
// variables are picked up by Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.max_body_bytes", 64<<10)
	v.SetDefault("server.max_image_bytes", 16<<20)

	v.SetDefault("client.backend", "gradio")
	v.SetDefault("client.space", translator.DefaultSpace)
	v.SetDefault("client.endpoint", translator.DefaultEndpoint)
	v.SetDefault("client.hub_url", translator.DefaultHubURL)
	v.SetDefault("client.token", "")
	v.SetDefault("client.connect_timeout", session.DefaultConnectTimeout)
	v.SetDefault("client.predict_timeout", session.DefaultPredictTimeout)
	v.SetDefault("client.google_credentials", "")
	v.SetDefault("client.mymemory_email", "")

	v.SetDefault("session.debounce", session.DefaultDebounce)
	v.SetDefault("session.min_length", validator.DefaultMinLength)
	v.SetDefault("session.max_length", validator.DefaultMaxLength)
	v.SetDefault("session.translate_seed", true)
	v.SetDefault("session.idle_timeout", 30*time.Minute)
	v.SetDefault("session.max_sessions", 1000)

	v.SetDefault("location.backend", "memory")
	v.SetDefault("location.redis_addr", "localhost:6379")
	v.SetDefault("location.redis_password", "")
	v.SetDefault("location.redis_db", 0)
	v.SetDefault("location.ttl", 24*time.Hour)

	v.SetDefault("ocr.url", ocr.DefaultURL)
	v.SetDefault("ocr.timeout", ocr.DefaultTimeout)

	v.SetDefault("store.path", "legtrans.db")
	v.SetDefault("store.enabled", true)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// New returns a viper instance with defaults and environment binding. An
// empty file searches for legtrans.yaml in the working directory and in
// $HOME/.config/legtrans.
func New(file string) *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(FileName)
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/legtrans")
	}
	return v
}

// Load reads the config file, if any, and decodes the merged settings. A
// missing file is only an error when it was named explicitly.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Client.Backend {
	case "gradio", "google", "mymemory":
	default:
		return fmt.Errorf("unknown client backend: %s", c.Client.Backend)
	}
	switch c.Location.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown location backend: %s", c.Location.Backend)
	}
	if c.Session.MinLength > c.Session.MaxLength {
		return fmt.Errorf("session.min_length (%d) exceeds session.max_length (%d)", c.Session.MinLength, c.Session.MaxLength)
	}
	if c.Session.Debounce < 0 {
		return fmt.Errorf("session.debounce must not be negative")
	}
	if c.Session.IdleTimeout < 0 || c.Session.MaxSessions < 0 {
		return fmt.Errorf("session.idle_timeout and session.max_sessions must not be negative")
	}
	return nil
}

// Guard returns the length guard configured for sessions.
func (c *Config) Guard() validator.Guard {
	return validator.New(c.Session.MinLength, c.Session.MaxLength)
}
