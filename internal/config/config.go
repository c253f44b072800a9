// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// DefaultEndpoint is the estimate endpoint used for templates added without one.
const DefaultEndpoint = "https://beta4.api.climatiq.io/estimate"

// Config defines the global configuration structure
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Store    StoreConfig    `mapstructure:"store"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Upstream UpstreamConfig `mapstructure:"upstream"`
	Log      LogConfig      `mapstructure:"log"`
}

// LogConfig defines logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
	File  string `mapstructure:"file"`  // Log file path
}

// ServerConfig defines where the simulator connects to
type ServerConfig struct {
	Type    string       `mapstructure:"type"`    // "tcp", "serial"
	Address string       `mapstructure:"address"` // e.g. "0.0.0.0:9999"
	Framing string       `mapstructure:"framing"` // "line", "cpn"
	Once    bool         `mapstructure:"once"`    // Exit after the first session
	Serial  SerialConfig `mapstructure:"serial"`  // Used if Type is "serial"
}

// SerialConfig defines serial line settings
type SerialConfig struct {
	Device   string        `mapstructure:"device"`
	BaudRate int           `mapstructure:"baud_rate"`
	DataBits int           `mapstructure:"data_bits"`
	Parity   string        `mapstructure:"parity"`
	StopBits int           `mapstructure:"stop_bits"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// StoreConfig defines the request configuration store
type StoreConfig struct {
	Type     string `mapstructure:"type"`     // "xml", "mmap", "sqlite", "memory"
	Path     string `mapstructure:"path"`     // File path or sqlite DSN
	Endpoint string `mapstructure:"endpoint"` // Endpoint for templates added without one
}

// CacheConfig defines the outbound response cache
type CacheConfig struct {
	Type  string      `mapstructure:"type"` // "memory", "sqlite", "redis"
	Path  string      `mapstructure:"path"` // sqlite file
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig defines the redis cache storage
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// UpstreamConfig defines the estimate API
type UpstreamConfig struct {
	APIKey       string        `mapstructure:"api_key"`
	Offline      bool          `mapstructure:"offline"`
	Timeout      time.Duration `mapstructure:"timeout"`
	ExpectedUnit string        `mapstructure:"expected_unit"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("server.type", "tcp")
	v.SetDefault("server.address", "0.0.0.0:9999")
	v.SetDefault("server.framing", "line")
	v.SetDefault("server.once", false)
	v.SetDefault("server.serial.device", "/tmp/pts1")
	v.SetDefault("server.serial.baud_rate", 19200)
	v.SetDefault("server.serial.data_bits", 8)
	v.SetDefault("server.serial.parity", "N")
	v.SetDefault("server.serial.stop_bits", 1)
	v.SetDefault("store.type", "xml")
	v.SetDefault("store.path", "requests.xml")
	v.SetDefault("store.endpoint", DefaultEndpoint)
	v.SetDefault("cache.type", "sqlite")
	v.SetDefault("cache.path", "request_cache.sqlite")
	v.SetDefault("cache.redis.address", "127.0.0.1:6379")
	v.SetDefault("cache.redis.prefix", "co2e:")
	v.SetDefault("upstream.api_key", "")
	v.SetDefault("upstream.offline", false)
	v.SetDefault("upstream.timeout", time.Duration(0))
	v.SetDefault("upstream.expected_unit", "")
}

// LoadConfig loads configuration from file, environment and flags.
// A missing config file is not an error, every key has a default.
// Flags in fs named like a config key ("store.path") override it.
func LoadConfig(configFile string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/co2e-gateway/")
		v.AddConfigPath("$HOME/.co2e-gateway")
		v.AddConfigPath(".")
	}

	setDefaults(v)

	v.SetEnvPrefix("CO2E")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		var bindErr error
		fs.VisitAll(func(f *pflag.Flag) {
			if !strings.Contains(f.Name, ".") || bindErr != nil {
				return
			}
			bindErr = v.BindPFlag(f.Name, f)
		})
		if bindErr != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", bindErr)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || configFile != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.fixup(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) fixup() error {
	c.Server.Type = strings.ToLower(c.Server.Type)
	c.Server.Framing = strings.ToLower(c.Server.Framing)
	c.Server.Serial.Parity = strings.ToUpper(c.Server.Serial.Parity)
	c.Store.Type = strings.ToLower(c.Store.Type)
	c.Cache.Type = strings.ToLower(c.Cache.Type)
	if c.Store.Endpoint == "" {
		c.Store.Endpoint = DefaultEndpoint
	}

	switch c.Server.Type {
	case "tcp", "serial":
	default:
		return fmt.Errorf("unknown server type %q", c.Server.Type)
	}
	switch c.Server.Framing {
	case "line", "cpn":
	default:
		return fmt.Errorf("unknown server framing %q", c.Server.Framing)
	}
	switch c.Store.Type {
	case "xml", "mmap", "sqlite", "memory":
	default:
		return fmt.Errorf("unknown store type %q", c.Store.Type)
	}
	switch c.Cache.Type {
	case "memory", "sqlite", "redis":
	default:
		return fmt.Errorf("unknown cache type %q", c.Cache.Type)
	}
	return nil
}
