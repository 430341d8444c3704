package mcp

import (
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/openkb/chatbench/internal/server"
)

// RegisterTools registers all MCP tools with the server.
func RegisterTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	if err := registerCatalogTools(s, sc); err != nil {
		return err
	}
	if err := registerBenchmarkTools(s, sc); err != nil {
		return err
	}
	return registerResultsTools(s, sc)
}
