package ticket

import (
	"errors"
	"time"
)

// ErrNotFound marks a lookup for a ticket that does not exist.
var ErrNotFound = errors.New("ticket not found")

// Mode is the resolution strategy that produced a ticket.
type Mode string

const (
	ModeWorkflow Mode = "workflow"
	ModeAgent    Mode = "agent"
)

// SourceRef identifies one knowledge base article cited in an answer.
// Tickets hold these deduplicated, in first-seen order.
type SourceRef struct {
	Title  string `json:"title"`
	Source string `json:"source"`
}

// Ticket records one resolution attempt.
type Ticket struct {
	ID         string            `json:"id"`
	Mode       Mode              `json:"mode"`
	Question   string            `json:"question"`
	Context    map[string]string `json:"context,omitempty"`
	Answer     string            `json:"answer,omitempty"`
	Category   string            `json:"category,omitempty"`
	Sources    []SourceRef       `json:"sources"`
	LatencyMS  float64           `json:"latency_ms,omitempty"`
	TokenUsage int               `json:"token_usage,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	ToolLogs   []ToolLog         `json:"tool_logs,omitempty"`
}

// ToolLog records one tool invocation within an agent run. Output stays
// empty until the tool has actually executed; it is set exactly once.
type ToolLog struct {
	ID       string `json:"id"`
	TicketID string `json:"ticket_id"`
	Step     int    `json:"step"`
	ToolName string `json:"tool_name"`
	Input    string `json:"tool_input"`
	Output   string `json:"tool_output,omitempty"`
}
