package config

import "fmt"

// GraphConfig is the configuration of the insights (graph analytics) service.
type GraphConfig struct {
	APIPort  int
	LogLevel string

	// DatabaseURL points at the orchestrator's cache tables (read-only ETL source).
	DatabaseURL string

	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string

	LLM *LLMConfig
}

// LoadGraphFromEnv reads the insights service configuration.
func LoadGraphFromEnv() (*GraphConfig, error) {
	port, err := getEnvInt("API_PORT", 8004)
	if err != nil {
		return nil, err
	}
	llm, err := LoadLLMFromEnv()
	if err != nil {
		return nil, err
	}
	cfg := &GraphConfig{
		APIPort:       port,
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		Neo4jURI:      getEnv("NEO4J_URI", "bolt://localhost:7687"),
		Neo4jUser:     getEnv("NEO4J_USER", "neo4j"),
		Neo4jPassword: getEnv("NEO4J_PASSWORD", ""),
		LLM:           llm,
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}
