package mcp

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/Andasbek/ShkolaAI/internal/kb"
	"github.com/Andasbek/ShkolaAI/internal/resolve"
	"github.com/Andasbek/ShkolaAI/internal/ticket"
)

// Version is set via ldflags at build time.
var Version = "dev"

// Server wraps an MCP server exposing the helpdesk over stdio.
type Server struct {
	searcher    *kb.Searcher
	resolver    *resolve.Service
	tickets     *ticket.Store
	defaultTopK int
	mcp         *server.MCPServer
}

// NewServer creates an MCP server with the given dependencies.
func NewServer(searcher *kb.Searcher, resolver *resolve.Service, tickets *ticket.Store, defaultTopK int) *Server {
	s := &Server{
		searcher:    searcher,
		resolver:    resolver,
		tickets:     tickets,
		defaultTopK: defaultTopK,
	}

	s.mcp = server.NewMCPServer(
		"helpdesk",
		Version,
		server.WithToolCapabilities(false),
	)

	s.registerTools()

	return s
}

func (s *Server) registerTools() {
	s.mcp.AddTool(kbSearchTool, s.handleKBSearch)
	s.mcp.AddTool(resolveQuestionTool, s.handleResolveQuestion)
	s.mcp.AddTool(getTicketTool, s.handleGetTicket)
}

// Serve starts the MCP server on stdio. Stdout carries MCP protocol
// messages; all logging must go to stderr.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcp)
}
