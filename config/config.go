package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds everything the service reads from the environment.
type Config struct {
	Port        string `envconfig:"PORT" default:"5200"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogEncoding string `envconfig:"LOG_ENCODING" default:"json"`

	// Storage: "postgres" or "memory"
	StoreDriver string `envconfig:"STORE_DRIVER" default:"postgres"`
	DatabaseURL string `envconfig:"DATABASE_URL"`

	// Gateway → service shared secret
	GameServiceToken string   `envconfig:"GAME_SERVICE_TOKEN" required:"true"`
	AllowedOrigins   []string `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:3000"`

	// Optional infrastructure; empty disables
	RedisURL       string `envconfig:"REDIS_URL"`
	RabbitMQURL    string `envconfig:"RABBITMQ_URL"`
	EventsExchange string `envconfig:"EVENTS_EXCHANGE" default:"progression_events"`

	// Quest advice (OpenAI compatible)
	OpenAIAPIKey  string        `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL string        `envconfig:"OPENAI_BASE_URL"`
	OpenAIModel   string        `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`
	AdviceTimeout time.Duration `envconfig:"ADVICE_TIMEOUT" default:"15s"`

	// Profile sync
	ProfileSyncURL      string        `envconfig:"PROFILE_SYNC_URL"`
	ProfileSyncPath     string        `envconfig:"PROFILE_SYNC_PATH" default:"/api/v1/public/profiles"`
	ProfileSyncInterval time.Duration `envconfig:"PROFILE_SYNC_INTERVAL" default:"5m"`

	// Scheduler
	SchedulerEnabled  bool   `envconfig:"SCHEDULER_ENABLED" default:"true"`
	DailyGenerationAt string `envconfig:"DAILY_GENERATION_AT" default:"00:05"`
}

// Load reads an optional .env file, then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}
	return FromEnv()
}

// FromEnv processes the environment without touching .env.
func FromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	for i, origin := range cfg.AllowedOrigins {
		cfg.AllowedOrigins[i] = strings.TrimSpace(origin)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.GameServiceToken == "" {
		return fmt.Errorf("GAME_SERVICE_TOKEN must not be empty")
	}
	switch c.StoreDriver {
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER=postgres")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q (want postgres or memory)", c.StoreDriver)
	}
	if _, err := time.Parse("15:04", c.DailyGenerationAt); err != nil {
		return fmt.Errorf("invalid DAILY_GENERATION_AT %q: %w", c.DailyGenerationAt, err)
	}
	return nil
}

// AllowedOriginsString is the comma-joined form fiber's CORS middleware expects.
func (c *Config) AllowedOriginsString() string {
	return strings.Join(c.AllowedOrigins, ",")
}
