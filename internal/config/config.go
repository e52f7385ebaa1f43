package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port             int
	NatsURL          string
	NatsToken        string
	DatabaseURL      string
	LogLevel         string
	AlmanacURL       string
	APIToken         string
	SweepInterval    time.Duration
	DefaultDeferDays int
	MaxAttempts      int
	Migrate          bool
}

func Load() Config {
	return Config{
		Port:             envInt("CYRANO_PORT", 8760),
		NatsURL:          envStr("NATS_URL", "nats://hermes:4222"),
		NatsToken:        envStr("NATS_TOKEN", ""),
		DatabaseURL:      envStr("DATABASE_URL", ""),
		LogLevel:         envStr("LOG_LEVEL", "info"),
		AlmanacURL:       envStr("ALMANAC_URL", "http://almanac:8710"),
		APIToken:         envStr("CYRANO_API_TOKEN", ""),
		SweepInterval:    envDuration("CYRANO_SWEEP_INTERVAL", time.Hour),
		DefaultDeferDays: envInt("CYRANO_DEFAULT_DEFER_DAYS", 2),
		MaxAttempts:      envInt("CYRANO_MAX_ATTEMPTS", 5),
		Migrate:          envBool("CYRANO_MIGRATE", false),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
