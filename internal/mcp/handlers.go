package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Andasbek/ShkolaAI/internal/kb"
	"github.com/Andasbek/ShkolaAI/internal/ticket"
)

func (s *Server) handleKBSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: query"), nil
	}

	k := request.GetInt("k", s.defaultTopK)
	if k <= 0 {
		k = s.defaultTopK
	}

	results, err := s.searcher.Search(ctx, query, k)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}
	if len(results) == 0 {
		return mcp.NewToolResultText("No results found. The knowledge base may not be ingested yet. Run `helpdesk ingest` to build it."), nil
	}

	return mcp.NewToolResultText(formatSearchResults(results)), nil
}

func (s *Server) handleResolveQuestion(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := request.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: question"), nil
	}

	mode := request.GetString("mode", string(ticket.ModeWorkflow))

	tk, err := s.resolver.Resolve(ctx, question, nil, mode)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("resolution failed: %v", err)), nil
	}

	return mcp.NewToolResultText(formatTicket(tk)), nil
}

func (s *Server) handleGetTicket(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("ticket_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: ticket_id"), nil
	}

	tk, err := s.tickets.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ticket.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("no ticket with id %q", id)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("failed to load ticket: %v", err)), nil
	}

	return mcp.NewToolResultText(formatTicket(tk)), nil
}

func formatSearchResults(results []kb.Result) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d passages:\n\n", len(results))
	for i, r := range results {
		fmt.Fprintf(&sb, "%d. %s (%s, distance %.4f)\n%s\n\n",
			i+1, r.Document.Title, r.Document.Source, r.Distance, r.Text)
	}
	return strings.TrimSpace(sb.String())
}

func formatTicket(tk *ticket.Ticket) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Ticket %s (mode %s)\n", tk.ID, tk.Mode)
	fmt.Fprintf(&sb, "Question: %s\n", tk.Question)
	if tk.Category != "" {
		fmt.Fprintf(&sb, "Category: %s\n", tk.Category)
	}
	if tk.Answer != "" {
		fmt.Fprintf(&sb, "\n%s\n", tk.Answer)
	}
	if len(tk.Sources) > 0 {
		sb.WriteString("\nSources:\n")
		for _, src := range tk.Sources {
			fmt.Fprintf(&sb, "- %s (%s)\n", src.Title, src.Source)
		}
	}
	if len(tk.ToolLogs) > 0 {
		sb.WriteString("\nTool calls:\n")
		for _, tl := range tk.ToolLogs {
			fmt.Fprintf(&sb, "- step %d: %s(%s)\n", tl.Step, tl.ToolName, tl.Input)
		}
	}
	return strings.TrimSpace(sb.String())
}
