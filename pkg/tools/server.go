package tools

import (
	"context"
	"net"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/colegio-ws/gestor/pkg/version"
)

// JSON-RPC error codes per §JSON-RPC 2.0.
const (
	rpcMethodNotFound = -32601
	rpcInternalError  = -32603
)

// Server exposes the registry over REST and JSON-RPC.
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server
	registry   *Registry
	mockMode   bool
}

// NewServer creates the tool server. mockMode short-circuits tools that
// declare a mock response.
func NewServer(registry *Registry, mockMode bool) *Server {
	e := echo.New()
	s := &Server{echo: e, registry: registry, mockMode: mockMode}
	s.setupRoutes()
	return s
}

// MockMode reports whether the server short-circuits to mock responses.
func (s *Server) MockMode() bool { return s.mockMode }

func (s *Server) setupRoutes() {
	s.echo.Use(middleware.BodyLimit(1 * 1024 * 1024))

	s.echo.GET("/health", s.healthHandler)

	// REST shape.
	s.echo.GET("/tools", s.listToolsHandler)
	s.echo.GET("/tools/:name", s.getToolHandler)
	s.echo.POST("/tools/:name/call", s.callToolHandler)

	// JSON-RPC shape.
	s.echo.POST("/mcp", s.rpcHandler)
}

// Start starts the HTTP server on the given address (blocking).
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.echo}
	return s.httpServer.ListenAndServe()
}

// StartWithListener serves on a pre-created listener (tests use a random port).
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.echo}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the echo handler for tests.
func (s *Server) Handler() http.Handler { return s.echo }

func (s *Server) healthHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":    "healthy",
		"version":   version.Full(),
		"tools":     len(s.registry.List("")),
		"mock_mode": s.mockMode,
	})
}

// toolView is the wire shape of a tool definition.
type toolView struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Category    Category `json:"category"`
	Parameters  Schema   `json:"parameters"`
}

func viewOf(def *Definition) toolView {
	return toolView{
		Name:        def.Name,
		Description: def.Description,
		Category:    def.Category,
		Parameters:  def.Parameters,
	}
}

func (s *Server) listToolsHandler(c *echo.Context) error {
	category := Category(c.QueryParam("category"))
	defs := s.registry.List(category)
	views := make([]toolView, len(defs))
	for i, def := range defs {
		views[i] = viewOf(def)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"tools": views,
		"count": len(views),
	})
}

func (s *Server) getToolHandler(c *echo.Context) error {
	def := s.registry.Get(c.Param("name"))
	if def == nil {
		return c.JSON(http.StatusNotFound, map[string]any{"error": "tool not found"})
	}
	return c.JSON(http.StatusOK, viewOf(def))
}

type callRequest struct {
	Arguments map[string]any `json:"arguments"`
}

func (s *Server) callToolHandler(c *echo.Context) error {
	var req callRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]any{"error": "invalid request body"})
	}
	callCtx, cancel := context.WithTimeout(c.Request().Context(), 30*time.Second)
	defer cancel()

	result := s.registry.Call(callCtx, c.Param("name"), req.Arguments, s.mockMode)
	return c.JSON(http.StatusOK, result)
}

// rpcRequest / rpcResponse implement the JSON-RPC 2.0 envelope of the /mcp
// endpoint.
type rpcRequest struct {
	JSONRPC string         `json:"jsonrpc"`
	Method  string         `json:"method"`
	Params  map[string]any `json:"params"`
	ID      any            `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string    `json:"jsonrpc"`
	Result  any       `json:"result,omitempty"`
	Error   *rpcError `json:"error,omitempty"`
	ID      any       `json:"id"`
}

func (s *Server) rpcHandler(c *echo.Context) error {
	var req rpcRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusOK, rpcResponse{
			JSONRPC: "2.0",
			Error:   &rpcError{Code: rpcInternalError, Message: "invalid JSON-RPC request"},
		})
	}

	resp := rpcResponse{JSONRPC: "2.0", ID: req.ID}

	switch req.Method {
	case "ping":
		resp.Result = map[string]any{"status": "pong"}

	case "tools/list":
		category := Category(StringArg(req.Params, "category", ""))
		defs := s.registry.List(category)
		views := make([]toolView, len(defs))
		for i, def := range defs {
			views[i] = viewOf(def)
		}
		resp.Result = map[string]any{"tools": views, "count": len(views)}

	case "tools/call":
		name := StringArg(req.Params, "name", "")
		if name == "" {
			resp.Result = &Result{Success: false, Error: "tool name required"}
			break
		}
		args, _ := req.Params["arguments"].(map[string]any)
		callCtx, cancel := context.WithTimeout(c.Request().Context(), 30*time.Second)
		resp.Result = s.registry.Call(callCtx, name, args, s.mockMode)
		cancel()

	case "tools/schema":
		name := StringArg(req.Params, "name", "")
		if name == "" {
			defs := s.registry.List("")
			schemas := make([]toolView, len(defs))
			for i, def := range defs {
				schemas[i] = viewOf(def)
			}
			resp.Result = map[string]any{"schemas": schemas}
			break
		}
		def := s.registry.Get(name)
		if def == nil {
			resp.Error = &rpcError{Code: rpcInternalError, Message: "tool not found: " + name}
			break
		}
		resp.Result = viewOf(def)

	default:
		resp.Error = &rpcError{Code: rpcMethodNotFound, Message: "Method not found: " + req.Method}
	}

	return c.JSON(http.StatusOK, resp)
}
