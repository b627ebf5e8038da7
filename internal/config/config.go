// Package config parses server and worker settings from flags, falling back
// to environment variables. Binaries load a .env file before calling Parse.
package config

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port            int
	DatabaseURL     string
	DatabaseType    string
	RedisURL        string
	KafkaBrokers    []string
	KafkaTopic      string
	KafkaGroupID    string
	TokenSecret     string
	PersistTimeout  time.Duration
	BannedWordsFile string
	LogLevel        string
	LogFormat       string
	AllowedOrigins  []string
	// SeedGroups are CODE:adminID pairs created at startup if missing.
	SeedGroups []SeedGroup
}

type SeedGroup struct {
	Code    string
	AdminID string
}

// Parse builds a Config from args and the environment. Flags win over env.
func Parse(args []string) (Config, error) {
	var (
		cfg     Config
		brokers string
		origins string
		seeds   string
	)

	fs := flag.NewFlagSet("live-polling", flag.ContinueOnError)

	fs.IntVar(&cfg.Port, "p", 0, "Server port")
	fs.StringVar(&cfg.DatabaseURL, "d", "", "Database URL")
	fs.StringVar(&cfg.DatabaseType, "t", "", "Database type (postgres, sqlite or memory)")
	fs.StringVar(&cfg.RedisURL, "redis", "", "Redis URL for the live group mirror")
	fs.StringVar(&brokers, "kafka-brokers", "", "Comma separated Kafka brokers")
	fs.StringVar(&cfg.KafkaTopic, "kafka-topic", "", "Kafka topic for poll events")
	fs.StringVar(&cfg.KafkaGroupID, "kafka-group", "", "Kafka consumer group id")
	fs.StringVar(&cfg.TokenSecret, "token-secret", "", "Participant token secret (prefer env)")
	fs.DurationVar(&cfg.PersistTimeout, "persist-timeout", 0, "Timeout for persisting an ended poll")
	fs.StringVar(&cfg.BannedWordsFile, "banned-words", "", "File with extra banned words, one per line")
	fs.StringVar(&cfg.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFormat, "log-format", "", "Log format (text or json)")
	fs.StringVar(&origins, "origins", "", "Comma separated websocket origin patterns")
	fs.StringVar(&seeds, "seed", "", "Comma separated CODE:adminID groups to create at startup")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if cfg.Port == 0 {
		if portStr := os.Getenv("PORT"); portStr != "" {
			port, err := strconv.Atoi(portStr)
			if err != nil {
				return Config{}, errors.New("invalid PORT env variable")
			}
			cfg.Port = port
		} else {
			cfg.Port = 8081
		}
	}

	fallback(&cfg.DatabaseURL, "DATABASE_URL", "")
	if cfg.DatabaseType == "" {
		cfg.DatabaseType = os.Getenv("DATABASE_TYPE")
	}
	if cfg.DatabaseType == "" {
		if cfg.DatabaseURL != "" {
			cfg.DatabaseType = "sqlite"
		} else {
			cfg.DatabaseType = "memory"
		}
	}
	switch cfg.DatabaseType {
	case "memory":
	case "postgres", "sqlite":
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("database URL required for %s (use -d or DATABASE_URL env)", cfg.DatabaseType)
		}
	default:
		return Config{}, fmt.Errorf("unknown database type %q", cfg.DatabaseType)
	}

	fallback(&cfg.RedisURL, "REDIS_URL", "")
	fallback(&brokers, "KAFKA_BROKERS", "")
	cfg.KafkaBrokers = splitList(brokers)
	fallback(&cfg.KafkaTopic, "KAFKA_TOPIC", "poll-events")
	fallback(&cfg.KafkaGroupID, "KAFKA_GROUP_ID", "poll-event-processor")
	fallback(&cfg.BannedWordsFile, "BANNED_WORDS_FILE", "")
	fallback(&cfg.LogLevel, "LOG_LEVEL", "info")
	fallback(&cfg.LogFormat, "LOG_FORMAT", "text")
	fallback(&origins, "ALLOWED_ORIGINS", "")
	cfg.AllowedOrigins = splitList(origins)

	fallback(&seeds, "SEED_GROUPS", "")
	for _, pair := range splitList(seeds) {
		code, admin, ok := strings.Cut(pair, ":")
		if !ok || code == "" || admin == "" {
			return Config{}, fmt.Errorf("invalid seed group %q, want CODE:adminID", pair)
		}
		cfg.SeedGroups = append(cfg.SeedGroups, SeedGroup{Code: code, AdminID: admin})
	}

	if cfg.PersistTimeout == 0 {
		if s := os.Getenv("PERSIST_TIMEOUT"); s != "" {
			d, err := time.ParseDuration(s)
			if err != nil {
				return Config{}, errors.New("invalid PERSIST_TIMEOUT env variable")
			}
			cfg.PersistTimeout = d
		} else {
			cfg.PersistTimeout = 5 * time.Second
		}
	}

	// Secrets - MUST be provided
	fallback(&cfg.TokenSecret, "TOKEN_SECRET", "")
	if cfg.TokenSecret == "" {
		return Config{}, errors.New("TOKEN_SECRET required")
	}

	return cfg, nil
}

// Logger builds the slog logger selected by LogLevel and LogFormat.
func (c Config) Logger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(c.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func fallback(dst *string, env, def string) {
	if *dst != "" {
		return
	}
	*dst = os.Getenv(env)
	if *dst == "" {
		*dst = def
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
