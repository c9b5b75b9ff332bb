package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Credential modes select where the Gemini API key comes from.
const (
	CredentialModeEnv    = "env"    // single ambient key from the environment
	CredentialModeStored = "stored" // per-chat keys persisted in a key store file
	CredentialModePrompt = "prompt" // like stored, but the bot asks the chat for a key
)

type Config struct {
	TelegramToken string
	GeminiAPIKey  string

	CredentialMode string
	KeyStorePath   string

	LogLevel string
	Debug    bool

	PreferIPv4 bool

	MediaGroupDebounce   time.Duration
	MaxConcurrent        int
	MaxTranscriptEntries int
	RequestTimeout       time.Duration
	HTTPTimeout          time.Duration
	GeminiBaseURL        string
	GeminiAPIVersion     string
}

func Load() (Config, error) {
	cfg := Config{
		CredentialMode:       strings.ToLower(strings.TrimSpace(getEnv("CREDENTIAL_MODE", CredentialModeEnv))),
		KeyStorePath:         strings.TrimSpace(getEnv("KEY_STORE_PATH", "data/api_keys.json")),
		LogLevel:             strings.ToLower(strings.TrimSpace(getEnv("LOG_LEVEL", "info"))),
		Debug:                getEnvBool("DEBUG", false),
		PreferIPv4:           getEnvBool("PREFER_IPV4", true),
		MediaGroupDebounce:   time.Duration(getEnvInt("MEDIA_GROUP_DEBOUNCE_MS", 1200)) * time.Millisecond,
		MaxConcurrent:        getEnvInt("MAX_CONCURRENT", 4),
		MaxTranscriptEntries: getEnvInt("MAX_TRANSCRIPT_ENTRIES", 50),
		RequestTimeout:       time.Duration(getEnvInt("REQUEST_TIMEOUT_SECONDS", 300)) * time.Second,
		HTTPTimeout:          time.Duration(getEnvInt("HTTP_TIMEOUT_SECONDS", 180)) * time.Second,
		GeminiBaseURL:        strings.TrimSpace(getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com")),
		GeminiAPIVersion:     strings.TrimSpace(getEnv("GEMINI_API_VERSION", "v1beta")),
	}

	cfg.TelegramToken = strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN"))
	cfg.GeminiAPIKey = strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))

	if cfg.TelegramToken == "" {
		return Config{}, errors.New("TELEGRAM_BOT_TOKEN is required")
	}

	switch cfg.CredentialMode {
	case CredentialModeEnv:
		if cfg.GeminiAPIKey == "" {
			return Config{}, errors.New("GEMINI_API_KEY is required in env credential mode")
		}
	case CredentialModeStored, CredentialModePrompt:
		if cfg.KeyStorePath == "" {
			return Config{}, errors.New("KEY_STORE_PATH is required in stored/prompt credential mode")
		}
	default:
		return Config{}, fmt.Errorf("unknown CREDENTIAL_MODE %q", cfg.CredentialMode)
	}

	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	if cfg.MaxTranscriptEntries < 1 {
		cfg.MaxTranscriptEntries = 1
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 300 * time.Second
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 180 * time.Second
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
