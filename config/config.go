package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all server configuration
type Config struct {
	Port           int
	GeminiAPIKey   string
	GeminiModel    string
	JWTSecret      string
	RedisURL       string
	RedisPassword  string
	MaxSessions    int
	SessionTimeout time.Duration
	AuthTimeout    time.Duration // how long a client has to send its authenticate frame
	DrainTimeout   time.Duration // grace period for session loops to unwind on cancellation
	TextQueueSize  int
	AudioQueueSize int
	AllowedOrigins []string
}

const defaultGeminiModel = "models/gemini-2.5-flash-native-audio-preview-12-2025"

// Load reads configuration from environment variables with defaults
func Load() (*Config, error) {
	// Load .env file if it exists (doesn't error if missing)
	_ = godotenv.Load()

	cfg := &Config{
		Port:           8080,
		GeminiModel:    defaultGeminiModel,
		RedisURL:       "localhost:6379",
		RedisPassword:  "",
		MaxSessions:    100,
		SessionTimeout: 30 * time.Minute,
		AuthTimeout:    10 * time.Second,
		DrainTimeout:   5 * time.Second,
		TextQueueSize:  64,
		AudioQueueSize: 256,
		AllowedOrigins: []string{"*"},
	}

	// Required: GEMINI_API_KEY
	cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable is required")
	}

	// Required: JWT_SECRET
	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}

	if model := os.Getenv("GEMINI_MODEL"); model != "" {
		cfg.GeminiModel = model
	}

	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT: %w", err)
		}
		cfg.Port = p
	}

	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		cfg.RedisURL = redisURL
	}

	if redisPassword := os.Getenv("REDIS_PASSWORD"); redisPassword != "" {
		cfg.RedisPassword = redisPassword
	}

	if maxSessions := os.Getenv("MAX_SESSIONS"); maxSessions != "" {
		m, err := strconv.Atoi(maxSessions)
		if err != nil {
			return nil, fmt.Errorf("invalid MAX_SESSIONS: %w", err)
		}
		cfg.MaxSessions = m
	}

	// SESSION_TIMEOUT is in minutes, the finer-grained timeouts in seconds
	if timeout := os.Getenv("SESSION_TIMEOUT"); timeout != "" {
		t, err := strconv.Atoi(timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid SESSION_TIMEOUT: %w", err)
		}
		cfg.SessionTimeout = time.Duration(t) * time.Minute
	}

	if timeout := os.Getenv("AUTH_TIMEOUT"); timeout != "" {
		t, err := strconv.Atoi(timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid AUTH_TIMEOUT: %w", err)
		}
		cfg.AuthTimeout = time.Duration(t) * time.Second
	}

	if timeout := os.Getenv("DRAIN_TIMEOUT"); timeout != "" {
		t, err := strconv.Atoi(timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid DRAIN_TIMEOUT: %w", err)
		}
		cfg.DrainTimeout = time.Duration(t) * time.Second
	}

	if size := os.Getenv("TEXT_QUEUE_SIZE"); size != "" {
		s, err := strconv.Atoi(size)
		if err != nil || s <= 0 {
			return nil, fmt.Errorf("invalid TEXT_QUEUE_SIZE: %q", size)
		}
		cfg.TextQueueSize = s
	}

	if size := os.Getenv("AUDIO_QUEUE_SIZE"); size != "" {
		s, err := strconv.Atoi(size)
		if err != nil || s <= 0 {
			return nil, fmt.Errorf("invalid AUDIO_QUEUE_SIZE: %q", size)
		}
		cfg.AudioQueueSize = s
	}

	// Optional: ALLOWED_ORIGINS (comma-separated)
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = strings.Split(origins, ",")
	}

	return cfg, nil
}
