// Package config loads the atquote command configuration from defaults, an
// optional YAML file, ATQUOTE_* environment variables and command line flags,
// in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Proxy ProxyConfig `mapstructure:"proxy"`
	Cache CacheConfig `mapstructure:"cache"`
	Log   LogConfig   `mapstructure:"log"`
}

type ProxyConfig struct {
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Location string        `mapstructure:"location"` // IANA zone of the proxy's timestamps
}

// CacheConfig selects the lookaside cache store of history queries.
type CacheConfig struct {
	Backend  string        `mapstructure:"backend"` // none, memory, bolt or redis
	TTL      time.Duration `mapstructure:"ttl"`
	Size     int           `mapstructure:"size"` // memory backend entry bound, 0 for none
	BoltPath string        `mapstructure:"bolt_path"`
	Redis    RedisConfig   `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // log level: "debug", "info", "warn", "error"
	Format string `mapstructure:"format"` // log format: "json" or "console"
	File   string `mapstructure:"file"`   // rotated log file (optional)
}

// flagKeys maps command line flags to configuration keys.
var flagKeys = map[string]string{
	"host":       "proxy.host",
	"port":       "proxy.port",
	"timeout":    "proxy.timeout",
	"location":   "proxy.location",
	"cache":      "cache.backend",
	"cache-ttl":  "cache.ttl",
	"cache-size": "cache.size",
	"bolt-path":  "cache.bolt_path",
	"redis":      "cache.redis.addr",
	"log-level":  "log.level",
	"log-format": "log.format",
	"log-file":   "log.file",
}

// RegisterFlags adds the configuration flags to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "path to a YAML config file")
	fs.String("host", "127.0.0.1", "ActiveTick HTTP proxy host")
	fs.Int("port", 5000, "ActiveTick HTTP proxy port")
	fs.Duration("timeout", 30*time.Second, "batch request timeout")
	fs.String("location", "America/New_York", "time zone of the proxy")
	fs.String("cache", "none", "history cache: none, memory, bolt or redis")
	fs.Duration("cache-ttl", 0, "cache entry lifetime, 0 for none")
	fs.Int("cache-size", 1024, "memory cache entry bound, 0 for none")
	fs.String("bolt-path", "atquote.db", "bbolt cache file")
	fs.String("redis", "127.0.0.1:6379", "redis cache address")
	fs.String("log-level", "info", "log level")
	fs.String("log-format", "console", "log format: json or console")
	fs.String("log-file", "", "also write JSON logs to this rotated file")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("proxy.host", "127.0.0.1")
	v.SetDefault("proxy.port", 5000)
	v.SetDefault("proxy.timeout", 30*time.Second)
	v.SetDefault("proxy.location", "America/New_York")

	v.SetDefault("cache.backend", "none")
	v.SetDefault("cache.ttl", time.Duration(0))
	v.SetDefault("cache.size", 1024)
	v.SetDefault("cache.bolt_path", "atquote.db")
	v.SetDefault("cache.redis.addr", "127.0.0.1:6379")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.file", "")
}

// Load builds the configuration. path names an optional YAML file; fs, when
// not nil, holds flags registered with RegisterFlags. Only flags set on the
// command line override the file and environment.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("ATQUOTE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if fs != nil {
		for name, key := range flagKeys {
			f := fs.Lookup(name)
			if f == nil || !f.Changed {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the values Load cannot coerce.
func (c *Config) Validate() error {
	if c.Proxy.Port <= 0 || c.Proxy.Port > 65535 {
		return fmt.Errorf("invalid proxy.port %d", c.Proxy.Port)
	}
	if _, err := time.LoadLocation(c.Proxy.Location); err != nil {
		return fmt.Errorf("invalid proxy.location: %w", err)
	}
	if c.Cache.Size < 0 {
		return fmt.Errorf("invalid cache.size %d", c.Cache.Size)
	}
	switch c.Cache.Backend {
	case "none", "memory", "redis":
	case "bolt":
		if c.Cache.BoltPath == "" {
			return errors.New("cache.bolt_path is required for the bolt cache")
		}
	default:
		return fmt.Errorf("unknown cache.backend %q", c.Cache.Backend)
	}
	return nil
}
