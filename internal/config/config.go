// Package config loads livedoc settings from livedoc.yaml and LIVEDOC_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	configName = "livedoc"
	configType = "yaml"
	envPrefix  = "LIVEDOC"

	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"
)

// Config is the resolved configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Schema   SchemaConfig   `mapstructure:"schema"`
	Store    StoreConfig    `mapstructure:"store"`
	Realtime RealtimeConfig `mapstructure:"realtime"`
	Query    QueryConfig    `mapstructure:"query"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type SchemaConfig struct {
	Dir string `mapstructure:"dir"`
}

type StoreConfig struct {
	Driver string       `mapstructure:"driver"`
	SQLite SQLiteConfig `mapstructure:"sqlite"`
	Mongo  MongoConfig  `mapstructure:"mongo"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type MongoConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type RealtimeConfig struct {
	WriteTimeout         time.Duration `mapstructure:"write_timeout"`
	MaxConcurrentQueries int           `mapstructure:"max_concurrent_queries"`
}

type QueryConfig struct {
	StrictPopulate bool `mapstructure:"strict_populate"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("schema.dir", "./schema")
	v.SetDefault("store.driver", DriverSQLite)
	v.SetDefault("store.sqlite.path", "./livedoc.db")
	v.SetDefault("store.mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("store.mongo.database", "livedoc")
	v.SetDefault("realtime.write_timeout", "10s")
	v.SetDefault("realtime.max_concurrent_queries", 8)
	v.SetDefault("query.strict_populate", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// Load reads configuration. file is an explicit config path; when empty,
// livedoc.yaml is looked up in the working directory and a missing file is
// not an error. Environment variables override file values, e.g.
// LIVEDOC_STORE_DRIVER=mongo.
func Load(file string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType(configType)
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
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

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverSQLite:
		if c.Store.SQLite.Path == "" {
			return fmt.Errorf("store.sqlite.path is required for the sqlite driver")
		}
	case DriverMongo:
		if c.Store.Mongo.URI == "" || c.Store.Mongo.Database == "" {
			return fmt.Errorf("store.mongo.uri and store.mongo.database are required for the mongo driver")
		}
	default:
		return fmt.Errorf("unknown store.driver %q: must be %q or %q", c.Store.Driver, DriverSQLite, DriverMongo)
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Realtime.WriteTimeout <= 0 {
		return fmt.Errorf("realtime.write_timeout must be positive")
	}
	if c.Realtime.MaxConcurrentQueries < 1 {
		return fmt.Errorf("realtime.max_concurrent_queries must be at least 1")
	}
	return nil
}
