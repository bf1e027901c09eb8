package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all service settings. Precedence: env > config file > defaults.
type Config struct {
	HTTP struct {
		Host         string
		Port         int
		ReadTimeout  time.Duration
		WriteTimeout time.Duration
	}
	Database struct {
		Path string
	}
	Auth struct {
		TokenSecret string
		TokenTTL    time.Duration
	}
	Realtime struct {
		PingInterval    time.Duration
		ReadTimeout     time.Duration
		WriteTimeout    time.Duration
		SendBuffer      int
		DisconnectDelay time.Duration
	}
}

// Load builds configuration from defaults, an optional config file and
// THERAPYMEET_* environment variables.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("therapymeet")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 5000)
	v.SetDefault("http.read_timeout", "30s")
	v.SetDefault("http.write_timeout", "30s")

	v.SetDefault("database.path", "./therapymeet.db")

	v.SetDefault("auth.token_secret", "")
	v.SetDefault("auth.token_ttl", "24h")

	v.SetDefault("realtime.ping_interval", "30s")
	v.SetDefault("realtime.read_timeout", "60s")
	v.SetDefault("realtime.write_timeout", "5s")
	v.SetDefault("realtime.send_buffer", 100)
	v.SetDefault("realtime.disconnect_delay", "3s")

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	var c Config
	c.HTTP.Host = v.GetString("http.host")
	c.HTTP.Port = v.GetInt("http.port")
	c.HTTP.ReadTimeout = v.GetDuration("http.read_timeout")
	c.HTTP.WriteTimeout = v.GetDuration("http.write_timeout")

	c.Database.Path = v.GetString("database.path")

	c.Auth.TokenSecret = v.GetString("auth.token_secret")
	c.Auth.TokenTTL = v.GetDuration("auth.token_ttl")

	c.Realtime.PingInterval = v.GetDuration("realtime.ping_interval")
	c.Realtime.ReadTimeout = v.GetDuration("realtime.read_timeout")
	c.Realtime.WriteTimeout = v.GetDuration("realtime.write_timeout")
	c.Realtime.SendBuffer = v.GetInt("realtime.send_buffer")
	c.Realtime.DisconnectDelay = v.GetDuration("realtime.disconnect_delay")

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate rejects configurations that would fail at runtime.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http port must be between 1 and 65535")
	}
	if c.HTTP.ReadTimeout <= 0 || c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("http timeouts must be positive")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth token TTL must be positive")
	}
	if c.Realtime.PingInterval <= 0 || c.Realtime.ReadTimeout <= 0 || c.Realtime.WriteTimeout <= 0 {
		return fmt.Errorf("realtime timeouts must be positive")
	}
	if c.Realtime.ReadTimeout <= c.Realtime.PingInterval {
		return fmt.Errorf("realtime read timeout must exceed ping interval")
	}
	if c.Realtime.SendBuffer <= 0 {
		return fmt.Errorf("realtime send buffer must be positive")
	}
	if c.Realtime.DisconnectDelay < 0 {
		return fmt.Errorf("realtime disconnect delay cannot be negative")
	}
	return nil
}
