package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTP_PORT  string `env:"HTTP_PORT"`
	DB_STRING  string `env:"DB_STRING"`
	DB_MIGRATE bool   `env:"DB_MIGRATE"`
	LOG_MODE   string `env:"LOG_MODE"`
	JWT_SECRET string `env:"JWT_SECRET"`

	KAFKA_BROKERS  string `env:"KAFKA_BROKERS"`
	KAFKA_TOPIC    string `env:"KAFKA_TOPIC"`
	KAFKA_GROUP_ID string `env:"KAFKA_GROUP_ID"`

	REDIS_ADDR          string        `env:"REDIS_ADDR"`
	ITINERARY_CACHE_TTL time.Duration `env:"ITINERARY_CACHE_TTL"`

	SLIP_BUCKET           string `env:"SLIP_BUCKET"`
	SLIP_CDN_DOMAIN       string `env:"SLIP_CDN_DOMAIN"`
	STORAGE_EMULATOR_HOST string `env:"STORAGE_EMULATOR_HOST"`
	SLIP_LOCAL_DIR        string `env:"SLIP_LOCAL_DIR"`
	PUBLIC_BASE_URL       string `env:"PUBLIC_BASE_URL"`

	CACHE_RESTORE_LIMIT int `env:"CACHE_RESTORE_LIMIT"`

	OTEL_EXPORTER_OTLP_ENDPOINT string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTEL_SERVICE_NAME           string `env:"OTEL_SERVICE_NAME"`
}

func LoadConfig() (*Config, error) {
	cfg := &Config{
		HTTP_PORT:  getenv("HTTP_PORT", "8080"),
		DB_STRING:  os.Getenv("DB_STRING"),
		LOG_MODE:   getenv("LOG_MODE", "dev"),
		JWT_SECRET: os.Getenv("JWT_SECRET"),

		KAFKA_BROKERS:  os.Getenv("KAFKA_BROKERS"),
		KAFKA_TOPIC:    getenv("KAFKA_TOPIC", "order-requests"),
		KAFKA_GROUP_ID: getenv("KAFKA_GROUP_ID", "trip-orders"),

		REDIS_ADDR: os.Getenv("REDIS_ADDR"),

		SLIP_BUCKET:           os.Getenv("SLIP_BUCKET"),
		SLIP_CDN_DOMAIN:       os.Getenv("SLIP_CDN_DOMAIN"),
		STORAGE_EMULATOR_HOST: os.Getenv("STORAGE_EMULATOR_HOST"),
		SLIP_LOCAL_DIR:        getenv("SLIP_LOCAL_DIR", "./data/slips"),

		OTEL_EXPORTER_OTLP_ENDPOINT: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		OTEL_SERVICE_NAME:           getenv("OTEL_SERVICE_NAME", "trip-orders-service"),
	}
	cfg.PUBLIC_BASE_URL = strings.TrimRight(getenv("PUBLIC_BASE_URL", "http://localhost:"+cfg.HTTP_PORT), "/")

	var err error
	if cfg.DB_MIGRATE, err = parseBool("DB_MIGRATE", true); err != nil {
		return nil, err
	}
	if cfg.ITINERARY_CACHE_TTL, err = parseDuration("ITINERARY_CACHE_TTL", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.CACHE_RESTORE_LIMIT, err = parseInt("CACHE_RESTORE_LIMIT", 1000); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.JWT_SECRET) == "" {
		return nil, fmt.Errorf("config: JWT_SECRET is required")
	}
	if _, err := strconv.Atoi(cfg.HTTP_PORT); err != nil {
		return nil, fmt.Errorf("config: HTTP_PORT %q is not a port number", cfg.HTTP_PORT)
	}
	switch cfg.LOG_MODE {
	case "dev", "prod":
	default:
		return nil, fmt.Errorf("config: LOG_MODE must be dev or prod, got %q", cfg.LOG_MODE)
	}
	if cfg.CACHE_RESTORE_LIMIT < 0 {
		return nil, fmt.Errorf("config: CACHE_RESTORE_LIMIT must not be negative")
	}

	return cfg, nil
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func parseBool(key string, def bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("config: %s: %w", key, err)
	}
	return b, nil
}

func parseDuration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return d, nil
}

func parseInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}
