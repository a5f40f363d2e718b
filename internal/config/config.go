package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	DB struct {
		DSN string
	}
	Kafka struct {
		Broker  string
		Topic   string
		GroupID string
	}
	API struct {
		Port     string
		BasePath string
	}
	Facility struct {
		ActivityTimeout time.Duration
		MaxAttempts     int
		RetryBackoff    time.Duration
	}
	Telegram struct {
		BotToken string
		ChatID   int64
	}
	Log struct {
		Dir   string
		Level string
	}
}

// Load reads environment variables, applies defaults, and returns a Config.
func Load() (Config, error) {
	// Load .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("failed to load .env file: %w", err)
	}

	var cfg Config

	cfg.DB.DSN = os.Getenv("DB_DSN")

	cfg.Kafka.Broker = os.Getenv("KAFKA_BROKER")
	cfg.Kafka.Topic = os.Getenv("KAFKA_TOPIC")
	cfg.Kafka.GroupID = os.Getenv("KAFKA_GROUP_ID")

	cfg.API.Port = os.Getenv("API_PORT")
	cfg.API.BasePath = os.Getenv("API_BASE_PATH")

	if n, err := strconv.Atoi(os.Getenv("ACTIVITY_TIMEOUT_SECONDS")); err == nil {
		cfg.Facility.ActivityTimeout = time.Duration(n) * time.Second
	}
	if n, err := strconv.Atoi(os.Getenv("ACTIVITY_MAX_ATTEMPTS")); err == nil {
		cfg.Facility.MaxAttempts = n
	}
	if n, err := strconv.Atoi(os.Getenv("ACTIVITY_RETRY_BACKOFF_MS")); err == nil {
		cfg.Facility.RetryBackoff = time.Duration(n) * time.Millisecond
	}

	cfg.Telegram.BotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	if id, err := strconv.ParseInt(os.Getenv("TELEGRAM_CHAT_ID"), 10, 64); err == nil {
		cfg.Telegram.ChatID = id
	}

	cfg.Log.Dir = os.Getenv("LOG_DIR")
	cfg.Log.Level = os.Getenv("LOG_LEVEL")

	// Validate required settings
	missing := []string{}
	if cfg.DB.DSN == "" {
		missing = append(missing, "DB_DSN")
	}
	if cfg.Kafka.Broker == "" {
		missing = append(missing, "KAFKA_BROKER")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required configurations: %v", missing)
	}

	// Apply defaults
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "aml.alert.created"
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = "case-service"
	}
	if cfg.API.Port == "" {
		cfg.API.Port = ":8080"
	}
	if cfg.API.BasePath == "" {
		cfg.API.BasePath = "/api/v1"
	}
	if cfg.Facility.ActivityTimeout == 0 {
		cfg.Facility.ActivityTimeout = 20 * time.Second
	}
	if cfg.Facility.MaxAttempts == 0 {
		cfg.Facility.MaxAttempts = 3
	}
	if cfg.Facility.RetryBackoff == 0 {
		cfg.Facility.RetryBackoff = 200 * time.Millisecond
	}
	if cfg.Log.Dir == "" {
		cfg.Log.Dir = "logs"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	return cfg, nil
}
