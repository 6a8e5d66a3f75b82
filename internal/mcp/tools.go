package mcp

import "github.com/mark3labs/mcp-go/mcp"

// kbSearchTool defines the kb_search MCP tool.
var kbSearchTool = mcp.NewTool("kb_search",
	mcp.WithDescription("Search the helpdesk knowledge base. Returns the most relevant article passages with their sources."),
	mcp.WithString("query",
		mcp.Required(),
		mcp.Description("Natural language search query"),
	),
	mcp.WithNumber("k",
		mcp.Description("Maximum number of passages to return"),
	),
)

// resolveQuestionTool defines the resolve_question MCP tool.
var resolveQuestionTool = mcp.NewTool("resolve_question",
	mcp.WithDescription("Resolve a technical support question and create a ticket. Returns the answer with cited sources."),
	mcp.WithString("question",
		mcp.Required(),
		mcp.Description("The support question to resolve"),
	),
	mcp.WithString("mode",
		mcp.Description("Resolution strategy (default workflow)"),
		mcp.Enum("workflow", "agent"),
	),
)

// getTicketTool defines the get_ticket MCP tool.
var getTicketTool = mcp.NewTool("get_ticket",
	mcp.WithDescription("Fetch a resolved ticket with its answer, sources, and any agent tool logs."),
	mcp.WithString("ticket_id",
		mcp.Required(),
		mcp.Description("The ticket identifier"),
	),
)
