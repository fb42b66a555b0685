package tools

import "github.com/colegio-ws/gestor/pkg/config"

// BuildRegistry assembles the full tool registry from the service
// configuration. Called once at startup; the registry is read-only after.
func BuildRegistry(cfg *config.ToolServerConfig) *Registry {
	reg := NewRegistry()
	RegisterERPTools(reg, cfg.ERPURL)
	RegisterAdminTools(reg, cfg.GestorURL)
	RegisterInfoTools(reg)
	RegisterKGTools(reg, cfg.GraphURL)
	RegisterNotifTools(reg, cfg.GestorURL)
	return reg
}
