package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix             = "DECKELO"
	defaultHTTPAddress    = "127.0.0.1:8080"
	defaultDatabasePath   = "deckelo.db"
	defaultLogLevel       = "info"
	defaultLogFormat      = "json"
	defaultAutosaveDelay  = 500 * time.Millisecond
	defaultShareBaseURL   = "http://127.0.0.1:8080/"
	defaultShareMaxLength = 2000
	defaultIDScheme       = "nanoid"
)

// AppConfig captures runtime configuration for the tracker.
type AppConfig struct {
	HTTPAddress    string
	AllowedOrigins []string
	DatabasePath   string
	LogLevel       string
	LogFormat      string
	AutosaveDelay  time.Duration
	ShareBaseURL   string
	ShareMaxLength int
	IDScheme       string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("http.allowed_origins", []string{})
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.format", defaultLogFormat)
	configViper.SetDefault("autosave.delay", defaultAutosaveDelay)
	configViper.SetDefault("share.base_url", defaultShareBaseURL)
	configViper.SetDefault("share.max_length", defaultShareMaxLength)
	configViper.SetDefault("ids.scheme", defaultIDScheme)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:    configViper.GetString("http.address"),
		AllowedOrigins: configViper.GetStringSlice("http.allowed_origins"),
		DatabasePath:   configViper.GetString("database.path"),
		LogLevel:       configViper.GetString("log.level"),
		LogFormat:      strings.ToLower(strings.TrimSpace(configViper.GetString("log.format"))),
		AutosaveDelay:  configViper.GetDuration("autosave.delay"),
		ShareBaseURL:   configViper.GetString("share.base_url"),
		ShareMaxLength: configViper.GetInt("share.max_length"),
		IDScheme:       strings.ToLower(strings.TrimSpace(configViper.GetString("ids.scheme"))),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.HTTPAddress) == "" {
		return fmt.Errorf("http.address is required")
	}
	if c.LogFormat != "json" && c.LogFormat != "console" {
		return fmt.Errorf("log.format must be json or console, got %q", c.LogFormat)
	}
	if c.AutosaveDelay <= 0 {
		return fmt.Errorf("autosave.delay must be positive")
	}
	if c.ShareMaxLength <= 0 {
		return fmt.Errorf("share.max_length must be positive")
	}
	if c.IDScheme != "nanoid" && c.IDScheme != "uuid" {
		return fmt.Errorf("ids.scheme must be nanoid or uuid, got %q", c.IDScheme)
	}
	return nil
}
