package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Auth      AuthConfig      `mapstructure:"auth"`
	TMDB      TMDBConfig      `mapstructure:"tmdb"`
	Plex      PlexConfig      `mapstructure:"plex"`
	Providers ProvidersConfig `mapstructure:"providers"`
	History   HistoryConfig   `mapstructure:"history"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Path   string `mapstructure:"path"` // directory for log files, empty disables file logging
}

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

// TMDBConfig holds TMDB metadata API configuration.
type TMDBConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Timeout int    `mapstructure:"timeout"` // seconds
}

// PlexConfig holds Plex media server configuration.
type PlexConfig struct {
	URL   string `mapstructure:"url"`
	Token string `mapstructure:"token"`
}

// ProvidersConfig holds per-provider search configuration.
type ProvidersConfig struct {
	Rarbg   RarbgConfig   `mapstructure:"rarbg"`
	Kickass KickassConfig `mapstructure:"kickass"`
	Eztv    EztvConfig    `mapstructure:"eztv"`
	Leetx   LeetxConfig   `mapstructure:"leetx"`
}

// RarbgConfig holds torrentapi provider configuration.
type RarbgConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	BaseURL string `mapstructure:"base_url"`
	AppID   string `mapstructure:"app_id"`
	Timeout int    `mapstructure:"timeout"` // seconds
}

// KickassConfig holds kickass provider configuration.
type KickassConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	BaseURL string `mapstructure:"base_url"`
	Timeout int    `mapstructure:"timeout"`
}

// EztvConfig holds eztv provider configuration.
type EztvConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	BaseURL string `mapstructure:"base_url"`
	Timeout int    `mapstructure:"timeout"`
}

// LeetxConfig holds 1337x provider configuration.
type LeetxConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	BaseURL string `mapstructure:"base_url"`
	Timeout int    `mapstructure:"timeout"`
}

// HistoryConfig holds download-history retention configuration.
type HistoryConfig struct {
	RetentionDays int `mapstructure:"retention_days"`
}

// Default returns a Config with default values.
func Default() *Config {
	cfg := &Config{}
	v := viper.New()
	setDefaults(v)
	// Unmarshal of pure defaults cannot fail.
	_ = v.Unmarshal(cfg)
	return cfg
}

// Load reads configuration from file and environment variables.
// Priority: environment variables > config file > defaults
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.riptide")
	}

	v.SetEnvPrefix("RIPTIDE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.TMDB.APIKey == "" {
		cfg.TMDB.APIKey = EmbeddedTMDBKey
	}

	return cfg, nil
}

// setDefaults sets default values in viper
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)

	v.SetDefault("database.path", "./data/riptide.db")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.path", "")

	v.SetDefault("auth.jwt_secret", "")

	v.SetDefault("tmdb.api_key", "")
	v.SetDefault("tmdb.base_url", "https://api.themoviedb.org/3")
	v.SetDefault("tmdb.timeout", 10)

	v.SetDefault("plex.url", "")
	v.SetDefault("plex.token", "")

	v.SetDefault("providers.rarbg.enabled", true)
	v.SetDefault("providers.rarbg.base_url", "https://torrentapi.org/pubapi_v2.php")
	v.SetDefault("providers.rarbg.app_id", "riptide")
	v.SetDefault("providers.rarbg.timeout", 30)

	v.SetDefault("providers.kickass.enabled", true)
	v.SetDefault("providers.kickass.base_url", "https://kickasstorrents.to")
	v.SetDefault("providers.kickass.timeout", 30)

	v.SetDefault("providers.eztv.enabled", true)
	v.SetDefault("providers.eztv.base_url", "https://eztvx.to")
	v.SetDefault("providers.eztv.timeout", 30)

	v.SetDefault("providers.leetx.enabled", true)
	v.SetDefault("providers.leetx.base_url", "https://1337x.to")
	v.SetDefault("providers.leetx.timeout", 30)

	v.SetDefault("history.retention_days", 365)
}

// Address returns the server address string.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
