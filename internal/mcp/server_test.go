package mcp

import (
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Andasbek/ShkolaAI/internal/ticket"
)

func TestToolDefinitions(t *testing.T) {
	tests := []struct {
		name     string
		tool     mcp.Tool
		wantName string
	}{
		{"kb_search", kbSearchTool, "kb_search"},
		{"resolve_question", resolveQuestionTool, "resolve_question"},
		{"get_ticket", getTicketTool, "get_ticket"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.tool.Name != tt.wantName {
				t.Errorf("tool name = %q, want %q", tt.tool.Name, tt.wantName)
			}
			if tt.tool.Description == "" {
				t.Error("tool description should not be empty")
			}
		})
	}
}

func TestFormatTicket(t *testing.T) {
	tk := &ticket.Ticket{
		ID:       "t1",
		Mode:     ticket.ModeAgent,
		Question: "Why does nginx refuse to start?",
		Category: "nginx",
		Answer:   "Port 80 is taken.",
		Sources: []ticket.SourceRef{
			{Title: "Nginx port conflicts", Source: "nginx_ports.md"},
		},
		ToolLogs: []ticket.ToolLog{
			{Step: 1, ToolName: "kb_search", Input: `{"query":"nginx"}`},
		},
	}

	out := formatTicket(tk)
	for _, want := range []string{"t1", "nginx", "Port 80 is taken.", "nginx_ports.md", "step 1: kb_search"} {
		if !strings.Contains(out, want) {
			t.Errorf("formatted ticket missing %q:\n%s", want, out)
		}
	}
}
