// Package config loads server settings from .env, the environment and
// command-line flags, in increasing order of precedence.
package config

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env              string
	Port             int
	DBPath           string
	LogLevel         string
	RolloverInterval time.Duration
	AllowedOrigins   []string
	Seed             bool
}

// Load reads .env (if present), then LEAVE_* variables, then args.
// args is normally os.Args[1:].
func Load(args []string) (*Config, error) {
	_ = godotenv.Load()

	port, err := strconv.Atoi(getEnv("LEAVE_PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("invalid LEAVE_PORT: %w", err)
	}
	interval, err := time.ParseDuration(getEnv("LEAVE_ROLLOVER_INTERVAL", "1h"))
	if err != nil {
		return nil, fmt.Errorf("invalid LEAVE_ROLLOVER_INTERVAL: %w", err)
	}

	cfg := &Config{
		Env:              getEnv("LEAVE_ENV", "development"),
		Port:             port,
		DBPath:           getEnv("LEAVE_DB", "leave.db"),
		LogLevel:         getEnv("LEAVE_LOG_LEVEL", "info"),
		RolloverInterval: interval,
		AllowedOrigins:   getEnvSlice("LEAVE_ALLOWED_ORIGINS", []string{"http://localhost:5173", "http://localhost:8080"}),
	}

	fs := flag.NewFlagSet("leave-server", flag.ContinueOnError)
	fs.IntVar(&cfg.Port, "port", cfg.Port, "HTTP server port")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, `SQLite database path (":memory:" for in-memory)`)
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	fs.DurationVar(&cfg.RolloverInterval, "rollover-interval", cfg.RolloverInterval, "balance rebuild interval (0 disables)")
	fs.BoolVar(&cfg.Seed, "seed", false, "load the demo scenario on startup")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if _, err := cfg.SlogLevel(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SlogLevel parses LogLevel.
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return level, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return defaultValue
}

// getEnvSlice splits a comma-separated variable.
func getEnvSlice(key string, defaultValue []string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
