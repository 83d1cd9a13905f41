package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	flags "github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
)

// Config holds the server options. Each option can be set on the command
// line or through its environment variable; a .env file in the working
// directory is loaded first when present.
type Config struct {
	Addr        string `long:"addr" env:"REFERRAL_ADDR" default:":3001" description:"Address the HTTP server listens on"`
	DatabaseURL string `long:"database-url" env:"DATABASE_URL" description:"PostgreSQL connection URL; the in-memory store is used when empty"`

	RedisAddr     string `long:"redis-addr" env:"REDIS_ADDR" description:"Redis address for the record cache; the in-process cache is used when empty"`
	RedisPassword string `long:"redis-password" env:"REDIS_PASSWORD" description:"Redis password"`
	RedisDB       int    `long:"redis-db" env:"REDIS_DB" default:"0" description:"Redis database number"`

	CacheSize int           `long:"cache-size" env:"CACHE_SIZE" default:"1024" description:"Entries kept by the in-process record cache; 0 disables it"`
	CacheTTL  time.Duration `long:"cache-ttl" env:"CACHE_TTL" default:"5m" description:"Lifetime of cached records"`

	TreeConcurrency int `long:"tree-concurrency" env:"TREE_CONCURRENCY" default:"8" description:"Concurrent referral lookups per tree level"`
	CodeLength      int `long:"code-length" env:"REFERRAL_CODE_LENGTH" default:"8" description:"Length of generated referral codes"`

	BodyLimit int    `long:"body-limit" env:"BODY_LIMIT" default:"1048576" description:"Maximum request body size in bytes"`
	LogLevel  string `long:"log-level" env:"LOG_LEVEL" default:"info" choice:"debug" choice:"info" choice:"warn" choice:"error" description:"Log level"`
}

// Load reads the optional .env file and parses args (without the program
// name) on top of the environment.
func Load(args []string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	parser := flags.NewParser(cfg, flags.HelpFlag|flags.PassDoubleDash)
	if _, err := parser.ParseArgs(args); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.TreeConcurrency <= 0 {
		return fmt.Errorf("tree-concurrency must be positive, got %d", c.TreeConcurrency)
	}
	if c.CodeLength < 4 {
		return fmt.Errorf("code-length must be at least 4, got %d", c.CodeLength)
	}
	if c.CacheSize < 0 {
		return fmt.Errorf("cache-size must not be negative, got %d", c.CacheSize)
	}
	return nil
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
