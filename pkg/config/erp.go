package config

import (
	"fmt"
	"time"
)

// ERPConfig is the configuration of the ERP service.
type ERPConfig struct {
	APIPort  int
	LogLevel string

	// GestorWSURL is the orchestrator base URL for outbound webhooks.
	GestorWSURL string

	// Outbound webhook retry policy.
	WebhookMaxRetries int
	WebhookBaseDelay  time.Duration
}

// LoadERPFromEnv reads the ERP service configuration.
func LoadERPFromEnv() (*ERPConfig, error) {
	port, err := getEnvInt("API_PORT", 8001)
	if err != nil {
		return nil, err
	}
	maxRetries, err := getEnvInt("WEBHOOK_MAX_RETRIES", 3)
	if err != nil {
		return nil, err
	}
	baseDelaySecs, err := getEnvFloat("WEBHOOK_BASE_DELAY", 1.0)
	if err != nil {
		return nil, err
	}
	if maxRetries < 1 {
		return nil, fmt.Errorf("WEBHOOK_MAX_RETRIES must be >= 1, got %d", maxRetries)
	}
	if baseDelaySecs <= 0 {
		return nil, fmt.Errorf("WEBHOOK_BASE_DELAY must be > 0, got %v", baseDelaySecs)
	}
	return &ERPConfig{
		APIPort:           port,
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		GestorWSURL:       getEnv("GESTOR_WS_URL", "http://localhost:8000"),
		WebhookMaxRetries: maxRetries,
		WebhookBaseDelay:  time.Duration(baseDelaySecs * float64(time.Second)),
	}, nil
}
