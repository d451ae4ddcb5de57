package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration for the settlement daemon.
type Config struct {
	Port                int
	LogLevel            string
	WebhookTimeout      time.Duration
	OverdueScanInterval time.Duration
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	IdleTimeout         time.Duration
	ShutdownTimeout     time.Duration
	GenesisFile         string
	KafkaBrokers        []string
	KafkaTopic          string
	EventBuffer         int
}

// Load reads configuration from environment variables, applies defaults,
// and validates values. Variables from the file named by ENV_FILE
// (default .env) are loaded first without overriding the environment; a
// missing file is not an error.
func Load() (*Config, error) {
	envFile := getStr("ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("invalid ENV_FILE %q: %w", envFile, err)
	}

	port, err := getInt("PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}
	if port < 1 || port > 65535 {
		return nil, fmt.Errorf("invalid PORT: %d is out of range", port)
	}

	logLevel := getStr("LOG_LEVEL", "info")
	if !isValidLogLevel(logLevel) {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %q, must be one of: debug, info, warn, error", logLevel)
	}

	cfg := &Config{
		Port:        port,
		LogLevel:    logLevel,
		GenesisFile: getStr("GENESIS_FILE", ""),
		KafkaTopic:  getStr("KAFKA_TOPIC", "dvpd.events"),
	}

	durations := []struct {
		key string
		def time.Duration
		dst *time.Duration
	}{
		{"WEBHOOK_TIMEOUT", 5 * time.Second, &cfg.WebhookTimeout},
		{"OVERDUE_SCAN_INTERVAL", 1 * time.Minute, &cfg.OverdueScanInterval},
		{"READ_TIMEOUT", 5 * time.Second, &cfg.ReadTimeout},
		{"WRITE_TIMEOUT", 10 * time.Second, &cfg.WriteTimeout},
		{"IDLE_TIMEOUT", 60 * time.Second, &cfg.IdleTimeout},
		{"SHUTDOWN_TIMEOUT", 10 * time.Second, &cfg.ShutdownTimeout},
	}
	for _, d := range durations {
		v, err := getDuration(d.key, d.def)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", d.key, err)
		}
		if v <= 0 {
			return nil, fmt.Errorf("invalid %s: must be positive", d.key)
		}
		*d.dst = v
	}

	if brokers := getStr("KAFKA_BROKERS", ""); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}

	cfg.EventBuffer, err = getInt("EVENT_BUFFER", 1024)
	if err != nil {
		return nil, fmt.Errorf("invalid EVENT_BUFFER: %w", err)
	}
	if cfg.EventBuffer < 1 {
		return nil, fmt.Errorf("invalid EVENT_BUFFER: must be positive")
	}

	return cfg, nil
}

func getStr(key, defaultVal string) string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	return v
}

func getInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.Atoi(v)
}

func getDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return time.ParseDuration(v)
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}
