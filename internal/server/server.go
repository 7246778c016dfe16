// Package server exposes the command surface as MCP tools. Handlers map
// dispatcher responses onto tool results and never propagate errors past
// the tool boundary.
package server

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"unitmap/internal/command"
)

const serverName = "unitmap"

// Server wires the dispatcher to an MCP server over stdio.
type Server struct {
	mcpServer  *mcp.Server
	dispatcher *command.Dispatcher
	logger     *zap.Logger
}

func New(dispatcher *command.Dispatcher, version string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		mcpServer: mcp.NewServer(&mcp.Implementation{
			Name:    serverName,
			Version: version,
		}, nil),
		dispatcher: dispatcher,
		logger:     logger,
	}
	s.registerTools()
	s.registerResources()
	return s
}

// Run serves MCP over stdio until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("serving MCP over stdio")
	return s.mcpServer.Run(ctx, &mcp.StdioTransport{})
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: msg}},
		IsError: true,
	}
}
