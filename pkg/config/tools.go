package config

// ToolServerConfig is the configuration of the tool server.
type ToolServerConfig struct {
	APIPort  int
	LogLevel string

	// MockMode short-circuits tool handlers to canned payloads.
	MockMode bool

	// Upstreams consulted by live tool handlers.
	ERPURL    string
	GestorURL string
	GraphURL  string
}

// LoadToolServerFromEnv reads the tool server configuration.
func LoadToolServerFromEnv() (*ToolServerConfig, error) {
	port, err := getEnvInt("API_PORT", 8003)
	if err != nil {
		return nil, err
	}
	mockMode, err := getEnvBool("MOCK_MODE", true)
	if err != nil {
		return nil, err
	}
	return &ToolServerConfig{
		APIPort:   port,
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		MockMode:  mockMode,
		ERPURL:    getEnv("ERP_URL", "http://localhost:8001"),
		GestorURL: getEnv("GESTOR_WS_URL", "http://localhost:8000"),
		GraphURL:  getEnv("GRAPH_URL", "http://localhost:8004"),
	}, nil
}
