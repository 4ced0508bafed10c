// Package config provides configuration for the run ledger service.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the service configuration.
type Config struct {
	// Server settings
	HTTPPort     int
	InternalPort int

	// Database and artifact storage
	DatabaseURL string
	DataDir     string

	// Base URL under which this service is reachable by the workflow engine
	PublicBaseURL string

	// Workflow engine settings
	EngineURL    string
	EngineAPIKey string

	// Service-to-service keys
	ServiceKey  string
	WorkflowKey string

	// Bearer auth
	AuthSecret string

	// Reviewer notifications
	NotifierURL   string
	ReviewBaseURL string

	// Timeouts
	EngineTimeout   time.Duration
	CallbackTimeout time.Duration
	DownloadTimeout time.Duration
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		HTTPPort:        getEnvInt("HTTP_PORT", 8080),
		InternalPort:    getEnvInt("INTERNAL_PORT", 8081),
		DatabaseURL:     getEnv("DATABASE_URL", "file:runmeter.db?cache=shared&mode=rwc"),
		DataDir:         getEnv("DATA_DIR", "data"),
		PublicBaseURL:   getEnv("PUBLIC_BASE_URL", "http://localhost:8081"),
		EngineURL:       getEnv("ENGINE_URL", ""),
		EngineAPIKey:    getEnv("ENGINE_API_KEY", ""),
		ServiceKey:      getEnv("SERVICE_KEY", ""),
		WorkflowKey:     getEnv("WORKFLOW_KEY", ""),
		AuthSecret:      getEnv("AUTH_SECRET", ""),
		NotifierURL:     getEnv("NOTIFIER_URL", ""),
		ReviewBaseURL:   getEnv("REVIEW_BASE_URL", "http://localhost:3000"),
		EngineTimeout:   time.Duration(getEnvInt("ENGINE_TIMEOUT_MS", 30000)) * time.Millisecond,
		CallbackTimeout: time.Duration(getEnvInt("CALLBACK_TIMEOUT_MS", 10000)) * time.Millisecond,
		DownloadTimeout: time.Duration(getEnvInt("DOWNLOAD_TIMEOUT_MS", 30000)) * time.Millisecond,
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}
