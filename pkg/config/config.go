// Package config loads per-service configuration from the environment.
// Each service has its own LoadXFromEnv entry point; all of them fail fast
// on malformed values so misconfiguration surfaces at startup.
package config

import (
	"fmt"
	"time"
)

// AgentMode selects which agent runtime dispatches inbound messages.
type AgentMode string

// Agent runtime modes.
const (
	AgentModeHierarchical AgentMode = "hierarchical"
	AgentModeCodePlanner  AgentMode = "codeplanner"
)

// OrchestratorConfig is the configuration of the main gestor service.
type OrchestratorConfig struct {
	APIPort     int
	LogLevel    string
	DatabaseURL string

	// Upstreams
	ERPURL      string
	MCPToolsURL string

	// Messaging transport
	WhatsAppToken         string
	WhatsAppPhoneNumberID string
	WhatsAppVerifyToken   string

	// Agent runtime
	AgentMode      AgentMode
	MaxReplans     int
	RequestTimeout time.Duration

	// Checkpoint store; empty = in-memory
	RedisURL string

	LLM *LLMConfig
}

// LoadOrchestratorFromEnv reads the orchestrator configuration.
func LoadOrchestratorFromEnv() (*OrchestratorConfig, error) {
	port, err := getEnvInt("API_PORT", 8000)
	if err != nil {
		return nil, err
	}
	maxReplans, err := getEnvInt("AGENT_MAX_REPLANS", 3)
	if err != nil {
		return nil, err
	}
	requestTimeout, err := getEnvDuration("AGENT_REQUEST_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, err
	}
	llm, err := LoadLLMFromEnv()
	if err != nil {
		return nil, err
	}

	erpURL := getEnv("ERP_URL", "")
	if erpURL == "" {
		erpURL = getEnv("MOCK_ERP_URL", "http://localhost:8001")
	}

	cfg := &OrchestratorConfig{
		APIPort:               port,
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		DatabaseURL:           getEnv("DATABASE_URL", ""),
		ERPURL:                erpURL,
		MCPToolsURL:           getEnv("MCP_TOOLS_URL", "http://localhost:8003"),
		WhatsAppToken:         getEnv("WHATSAPP_TOKEN", "dummy-token"),
		WhatsAppPhoneNumberID: getEnv("WHATSAPP_PHONE_NUMBER_ID", ""),
		WhatsAppVerifyToken:   getEnv("WHATSAPP_VERIFY_TOKEN", ""),
		AgentMode:             AgentMode(getEnv("AGENT_MODE", string(AgentModeHierarchical))),
		MaxReplans:            maxReplans,
		RequestTimeout:        requestTimeout,
		RedisURL:              getEnv("REDIS_URL", ""),
		LLM:                   llm,
	}
	return cfg, cfg.validate()
}

func (c *OrchestratorConfig) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	switch c.AgentMode {
	case AgentModeHierarchical, AgentModeCodePlanner:
	default:
		return fmt.Errorf("unsupported AGENT_MODE: %q", c.AgentMode)
	}
	if c.MaxReplans < 0 {
		return fmt.Errorf("AGENT_MAX_REPLANS must be >= 0, got %d", c.MaxReplans)
	}
	if c.WhatsAppVerifyToken == "" {
		return fmt.Errorf("WHATSAPP_VERIFY_TOKEN is required")
	}
	return nil
}
