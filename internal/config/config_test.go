package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("TELEGRAM_BOT_TOKEN", "token-123")
	t.Setenv("GEMINI_API_KEY", "key-123")
	t.Setenv("CREDENTIAL_MODE", "")
	t.Setenv("KEY_STORE_PATH", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("MAX_CONCURRENT", "")
	t.Setenv("MAX_TRANSCRIPT_ENTRIES", "")
}

func TestLoadDefaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "token-123", cfg.TelegramToken)
	assert.Equal(t, "key-123", cfg.GeminiAPIKey)
	assert.Equal(t, CredentialModeEnv, cfg.CredentialMode)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 4, cfg.MaxConcurrent)
	assert.Equal(t, 50, cfg.MaxTranscriptEntries)
	assert.Equal(t, 1200*time.Millisecond, cfg.MediaGroupDebounce)
	assert.Equal(t, "https://generativelanguage.googleapis.com", cfg.GeminiBaseURL)
	assert.Equal(t, "v1beta", cfg.GeminiAPIVersion)
}

func TestLoadRequiresTelegramToken(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("TELEGRAM_BOT_TOKEN", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadEnvModeRequiresGeminiKey(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("GEMINI_API_KEY", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadStoredModeNeedsNoAmbientKey(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("CREDENTIAL_MODE", "stored")
	t.Setenv("KEY_STORE_PATH", "keys.json")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, CredentialModeStored, cfg.CredentialMode)
	assert.Equal(t, "keys.json", cfg.KeyStorePath)
}

func TestLoadRejectsUnknownCredentialMode(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("CREDENTIAL_MODE", "vault")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadClampsInvalidValues(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("MAX_CONCURRENT", "0")
	t.Setenv("MAX_TRANSCRIPT_ENTRIES", "-3")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.MaxConcurrent)
	assert.Equal(t, 1, cfg.MaxTranscriptEntries)
}
