package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "INKBOARD"

var ErrInvalid = errors.New("invalid config")

type Config struct {
	Server struct {
		Port            int   `mapstructure:"port"`
		MaxMessageBytes int64 `mapstructure:"max_message_bytes"`
		SendBuffer      int   `mapstructure:"send_buffer"`
	} `mapstructure:"server"`
	Database struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"database"`
	Presence struct {
		// memory or redis
		Backend string        `mapstructure:"backend"`
		TTL     time.Duration `mapstructure:"ttl"`
	} `mapstructure:"presence"`
	Redis struct {
		Addrs    []string `mapstructure:"addrs"`
		Password string   `mapstructure:"password"`
		DB       int      `mapstructure:"db"`
	} `mapstructure:"redis"`
	Retention struct {
		Interval time.Duration `mapstructure:"interval"`
		MaxAge   time.Duration `mapstructure:"max_age"`
	} `mapstructure:"retention"`
	Log struct {
		Level       string `mapstructure:"level"`
		Development bool   `mapstructure:"development"`
	} `mapstructure:"log"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.max_message_bytes", 1024*1024)
	v.SetDefault("server.send_buffer", 512)
	v.SetDefault("database.path", "./data/inkboard.db")
	v.SetDefault("presence.backend", "memory")
	v.SetDefault("presence.ttl", 2*time.Minute)
	v.SetDefault("redis.addrs", []string{"localhost:6379"})
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("retention.interval", 10*time.Minute)
	v.SetDefault("retention.max_age", 7*24*time.Hour)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// Load resolves configuration from, lowest to highest precedence: defaults,
// inkboard.yaml, a .env file, INKBOARD_* environment variables and flags.
// PORT is honoured for platforms that inject it.
func Load(args []string) (*Config, error) {
	// a missing .env is fine
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("inkboard")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("server.port", envPrefix+"_SERVER_PORT", "PORT"); err != nil {
		return nil, err
	}

	fs := pflag.NewFlagSet("inkboard", pflag.ContinueOnError)
	fs.Int("port", v.GetInt("server.port"), "HTTP listen port")
	fs.String("db", v.GetString("database.path"), "sqlite session log path")
	fs.String("presence", v.GetString("presence.backend"), "presence backend: memory or redis")
	fs.StringSlice("redis-addrs", v.GetStringSlice("redis.addrs"), "redis addresses")
	fs.String("log-level", v.GetString("log.level"), "debug, info, warn or error")
	fs.Bool("dev", v.GetBool("log.development"), "human readable logs")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	for key, flag := range map[string]string{
		"server.port":      "port",
		"database.path":    "db",
		"presence.backend": "presence",
		"redis.addrs":      "redis-addrs",
		"log.level":        "log-level",
		"log.development":  "dev",
	} {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: port %d", ErrInvalid, c.Server.Port)
	}
	if c.Server.MaxMessageBytes <= 0 {
		return fmt.Errorf("%w: max_message_bytes must be positive", ErrInvalid)
	}
	switch c.Presence.Backend {
	case "memory":
	case "redis":
		if len(c.Redis.Addrs) == 0 {
			return fmt.Errorf("%w: redis presence needs at least one address", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown presence backend %q", ErrInvalid, c.Presence.Backend)
	}
	if c.Retention.Interval <= 0 {
		return fmt.Errorf("%w: retention interval must be positive", ErrInvalid)
	}
	return nil
}
