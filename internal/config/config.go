package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all runtime settings for the bot process.
type Config struct {
	TelegramAPIBase      string
	PollTimeout          int
	SleepSeconds         int
	DropPending          bool
	PendingWindowSeconds int64
	PendingMaxMessages   int

	OpenAIAPIKey             string
	OpenAIAPIBase            string
	OpenAIAPIVersion         string
	DeploymentName           string
	CompletionTimeoutSeconds int

	MaxHistory int
	Persona    string

	BreakerThreshold       int
	BreakerCooldownSeconds int

	DBPath           string
	BindAddr         string
	MetricsNamespace string
}

// Load reads configuration from environment variables. A missing bot token
// is the only fatal condition; missing model-provider credentials surface
// as completion failures at first use instead.
func Load() (Config, error) {
	telegramToken := os.Getenv("TELEGRAM_BOT_TOKEN")
	if telegramToken == "" {
		return Config{}, fmt.Errorf("TELEGRAM_BOT_TOKEN is required in environment")
	}

	return Config{
		TelegramAPIBase:      fmt.Sprintf("https://api.telegram.org/bot%s", telegramToken),
		PollTimeout:          envIntOrDefault("GROVEBOT_POLL_TIMEOUT", 30),
		SleepSeconds:         envIntOrDefault("GROVEBOT_SLEEP_SECONDS", 1),
		DropPending:          envBoolOrDefault("GROVEBOT_DROP_PENDING", true),
		PendingWindowSeconds: int64(envIntOrDefault("GROVEBOT_PENDING_WINDOW_SECONDS", 600)),
		PendingMaxMessages:   envIntOrDefault("GROVEBOT_PENDING_MAX_MESSAGES", 50),

		OpenAIAPIKey:             os.Getenv("OPENAI_API_KEY"),
		OpenAIAPIBase:            os.Getenv("OPENAI_API_BASE"),
		OpenAIAPIVersion:         envOrDefault("OPENAI_API_VERSION", "2023-05-15"),
		DeploymentName:           os.Getenv("DEPLOYMENT_NAME"),
		CompletionTimeoutSeconds: envIntOrDefault("GROVEBOT_COMPLETION_TIMEOUT_SECONDS", 60),

		MaxHistory: envIntOrDefault("GROVEBOT_MAX_HISTORY", 6),
		Persona:    os.Getenv("GROVEBOT_PERSONA"),

		BreakerThreshold:       envIntOrDefault("GROVEBOT_BREAKER_THRESHOLD", 5),
		BreakerCooldownSeconds: envIntOrDefault("GROVEBOT_BREAKER_COOLDOWN_SECONDS", 30),

		DBPath:           os.Getenv("GROVEBOT_DB_PATH"),
		BindAddr:         envOrDefault("GROVEBOT_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("GROVEBOT_METRICS_NAMESPACE", "grovebot"),
	}, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOrDefault(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envBoolOrDefault(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v == "1" || strings.EqualFold(v, "true")
}
