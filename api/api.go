package api

import (
	"net/http"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/coilworks/mnemo/pkg/memory"
)

// Server is the API server for managing and querying stored memories.
type Server struct {
	config Config
	store  *memory.Client
	logger *zap.Logger
	app    *fiber.App
}

// NewServer creates a new API server. The memory client is injected to allow
// sharing with other components (e.g., the proxy's capture pipeline). The
// optional MCP handler is mounted under /mcp.
func NewServer(config Config, store *memory.Client, mcpHandler http.Handler, logger *zap.Logger) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config: config,
		store:  store,
		logger: logger,
		app:    app,
	}

	app.Get("/ping", s.handlePing)
	app.Get("/memories", s.handleListMemories)
	app.Post("/memories", s.handleAddMemory)
	app.Post("/memories/search", s.handleSearchMemories)
	app.Delete("/memories/:id", s.handleDeleteMemory)
	app.Delete("/memories", s.handleDeleteAllMemories)

	if mcpHandler != nil {
		app.All("/mcp", adaptor.HTTPHandler(mcpHandler))
		app.All("/mcp/*", adaptor.HTTPHandler(mcpHandler))
	}

	return s
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server",
		zap.String("listen", s.config.ListenAddr),
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
