package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

type Config struct {
	Port            string
	AppName         string
	GroqAPIKey      string
	GroqAPIURL      string
	GroqModel       string
	CerebrasAPIKey  string
	CerebrasAPIURL  string
	CerebrasModel   string
	StoragePath     string
	MaxUploadBytes  int64
	DefaultLanguage string
}

func LoadConfig() (Config, error) {
	cfg := Config{}

	cfg.Port = envOrDefault("PORT", "8080")
	cfg.AppName = envOrDefault("APP_NAME", "Voice Recording Summarization API")

	cfg.GroqAPIKey = os.Getenv("GROQ_API_KEY")
	cfg.GroqAPIURL = envOrDefault("GROQ_API_URL", "https://api.groq.com/openai/v1/audio/transcriptions")
	cfg.GroqModel = envOrDefault("GROQ_MODEL", "whisper-large-v3")

	cfg.CerebrasAPIKey = os.Getenv("CEREBRAS_API_KEY")
	cfg.CerebrasAPIURL = envOrDefault("CEREBRAS_API_URL", "https://api.cerebras.ai/v1/chat/completions")
	cfg.CerebrasModel = envOrDefault("CEREBRAS_MODEL", "llama-3.3-70b")

	cfg.StoragePath = envOrDefault("STORAGE_PATH", "data")
	cfg.DefaultLanguage = envOrDefault("STT_LANGUAGE", "ko")

	maxUploadMB, err := parseIntEnv("MAX_UPLOAD_MB", 25)
	if err != nil {
		return Config{}, fmt.Errorf("parse MAX_UPLOAD_MB: %w", err)
	}
	cfg.MaxUploadBytes = maxUploadMB * 1024 * 1024

	absStorage, err := filepath.Abs(cfg.StoragePath)
	if err != nil {
		return Config{}, fmt.Errorf("resolve storage path: %w", err)
	}
	cfg.StoragePath = absStorage

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}

func parseIntEnv(key string, fallback int64) (int64, error) {
	value := envOrDefault(key, "")
	if value == "" {
		return fallback, nil
	}

	num, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, err
	}
	return num, nil
}
