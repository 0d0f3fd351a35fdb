// Package config loads process settings for the relay and the chat client.
// Values come from defaults, an optional config file, and DRCHAT_* environment
// variables, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"drchat/internal/cryptographic/encryption"
	"drchat/internal/protocol/doubleratchet"
)

const EnvPrefix = "DRCHAT"

type (
	RatchetConfig struct {
		MaxSkip       uint32 `mapstructure:"max_skip"`
		MaxStoredKeys int    `mapstructure:"max_stored_keys"`
		Cipher        string `mapstructure:"cipher"`
	}

	ServerConfig struct {
		Addr      string `mapstructure:"addr"`
		RateLimit int    `mapstructure:"rate_limit"`
	}

	RedisConfig struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	}

	MongoConfig struct {
		URI      string `mapstructure:"uri"`
		Database string `mapstructure:"database"`
	}

	SessionConfig struct {
		TTL time.Duration `mapstructure:"ttl"`
	}

	LogConfig struct {
		Level       string `mapstructure:"level"`
		Development bool   `mapstructure:"development"`
	}

	Config struct {
		Ratchet RatchetConfig `mapstructure:"ratchet"`
		Server  ServerConfig  `mapstructure:"server"`
		Redis   RedisConfig   `mapstructure:"redis"`
		Mongo   MongoConfig   `mapstructure:"mongo"`
		Session SessionConfig `mapstructure:"session"`
		Log     LogConfig     `mapstructure:"log"`
	}
)

// SetDefaults registers every key with its default so that environment
// variables are picked up by Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("ratchet.max_skip", doubleratchet.DefaultMaxSkip)
	v.SetDefault("ratchet.max_stored_keys", doubleratchet.DefaultMaxStoredKeys)
	v.SetDefault("ratchet.cipher", encryption.AESGCM)

	v.SetDefault("server.addr", "localhost:9090")
	v.SetDefault("server.rate_limit", 50)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "mydb")

	// 0 keeps ratchet state until it is deleted. Expiring one side's state
	// breaks the conversation until both sides reset.
	v.SetDefault("session.ttl", time.Duration(0))

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// New returns a viper instance with defaults and environment binding set up.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads file (if not empty) into v and decodes the result.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if err := c.Ratchet.Config().Validate(); err != nil {
		return err
	}
	if _, err := encryption.New(c.Ratchet.Cipher); err != nil {
		return fmt.Errorf("ratchet.cipher: %w", err)
	}
	if c.Server.Addr == "" {
		return errors.New("server.addr must not be empty")
	}
	if c.Server.RateLimit <= 0 {
		return fmt.Errorf("server.rate_limit must be positive, got %d", c.Server.RateLimit)
	}
	if c.Session.TTL < 0 {
		return fmt.Errorf("session.ttl must not be negative, got %s", c.Session.TTL)
	}
	return nil
}

// Config converts the ratchet section to the core's configuration.
func (r RatchetConfig) Config() doubleratchet.Config {
	return doubleratchet.Config{
		MaxSkip:       r.MaxSkip,
		MaxStoredKeys: r.MaxStoredKeys,
	}
}
