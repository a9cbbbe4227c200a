// Package mcp provides an MCP (Model Context Protocol) server over the
// memory store, exposing recall, management, and analysis tools.
package mcp

import (
	"errors"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/coilworks/mnemo/pkg/memory"
	"github.com/coilworks/mnemo/pkg/utils"
)

type Config struct {
	// Store is the retrying memory client shared with the capture pipeline.
	Store *memory.Client

	// UserID is the default user scope for tool calls.
	UserID string

	// AgentID scopes memories written through the tools.
	AgentID string

	// Noop for empty MCP server
	Noop bool

	// Logger is the configured zap logger
	Logger *zap.Logger
}

type Server struct {
	config    Config
	mcpServer *mcp.Server
	handler   *mcp.StreamableHTTPHandler
}

// NewServer creates a new MCP server with the memory tools.
func NewServer(c Config) (*Server, error) {
	s := &Server{
		config: c,
	}

	// Create the MCP server
	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "mnemo",
			Version: utils.Version,
		},
		&mcp.ServerOptions{},
	)

	if c.Noop {
		// return the empty MCP server with no tools configured
		// if the noop flag is set (i.e., MCP capabilities are disabled)
		s.mcpServer = mcpServer
		return s, nil
	}

	if c.Store == nil {
		return nil, errors.New("memory client is required")
	}
	if c.Logger == nil {
		return nil, errors.New("logger is required")
	}

	// Add tools
	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        searchToolName,
		Description: searchDescription,
	}, s.handleSearch)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        listToolName,
		Description: listDescription,
	}, s.handleList)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        addToolName,
		Description: addDescription,
	}, s.handleAdd)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        deleteToolName,
		Description: deleteDescription,
	}, s.handleDelete)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        analyzeToolName,
		Description: analyzeDescription,
	}, s.handleAnalyze)

	s.mcpServer = mcpServer

	// Create a streamable HTTP net/http handler for stateless operations
	s.handler = mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server {
			return mcpServer
		},
		&mcp.StreamableHTTPOptions{
			Stateless: true,
		},
	)

	return s, nil
}

// Handler returns the HTTP handler for the MCP server.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// userID applies the configured default user scope.
func (s *Server) userID(requested string) string {
	if requested != "" {
		return requested
	}
	return s.config.UserID
}
