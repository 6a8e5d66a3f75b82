package resolve

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/Andasbek/ShkolaAI/internal/kb"
	"github.com/Andasbek/ShkolaAI/internal/llm"
	"github.com/Andasbek/ShkolaAI/internal/ticket"
)

// Agent is the iterative tool-calling resolution engine. It creates its
// ticket up front so every tool call has a stable anchor, then loops until
// the model answers without requesting a tool or the step budget runs out.
type Agent struct {
	provider llm.Provider
	searcher *kb.Searcher
	tickets  *ticket.Store
	cfg      Config
}

// NewAgent creates an Agent engine.
func NewAgent(provider llm.Provider, searcher *kb.Searcher, tickets *ticket.Store, cfg Config) *Agent {
	return &Agent{
		provider: provider,
		searcher: searcher,
		tickets:  tickets,
		cfg:      cfg,
	}
}

// Run resolves a question and returns the persisted ticket. Unlike the
// workflow engine, the ticket exists from the first step; a failed run
// leaves it behind with whatever category and tool logs were recorded.
func (a *Agent) Run(ctx context.Context, question string, userContext map[string]string) (*ticket.Ticket, error) {
	start := time.Now()

	tk := &ticket.Ticket{
		Mode:     ticket.ModeAgent,
		Question: question,
		Context:  userContext,
		Category: "pending",
	}
	if err := a.tickets.Create(ctx, tk); err != nil {
		return nil, fmt.Errorf("creating ticket: %w", err)
	}

	contextJSON, err := json.Marshal(userContext)
	if err != nil {
		return nil, fmt.Errorf("marshalling context: %w", err)
	}

	var sources []ticket.SourceRef
	registry := NewRegistry(
		&kbSearchTool{
			searcher: a.searcher,
			topK:     a.cfg.TopK,
			collect: func(ref ticket.SourceRef) {
				sources = append(sources, ref)
			},
		},
		&classifyTool{
			setCategory: func(ctx context.Context, category string) error {
				return a.tickets.SetCategory(ctx, tk.ID, category)
			},
		},
	)

	conversation := []llm.Message{
		{Role: llm.RoleSystem, Content: agentSystemPrompt},
		{Role: llm.RoleUser, Content: fmt.Sprintf("Question: %s\nContext: %s", question, contextJSON)},
	}

	finalAnswer := ""
	tokens := 0

	for step := 1; step <= a.cfg.MaxSteps; step++ {
		resp, err := a.provider.Complete(ctx, llm.CompletionRequest{
			Model:    a.cfg.Model,
			Messages: conversation,
			Tools:    registry.Definitions(),
		})
		if err != nil {
			return nil, fmt.Errorf("agent step %d: %w", step, err)
		}
		tokens += resp.InputTokens + resp.OutputTokens

		conversation = append(conversation, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		if len(resp.ToolCalls) == 0 {
			finalAnswer = resp.Content
			break
		}

		// The model may keep emitting text alongside tool calls; remember
		// the last one in case the budget runs out.
		if resp.Content != "" {
			finalAnswer = resp.Content
		}

		for _, call := range resp.ToolCalls {
			result, err := a.executeTool(ctx, registry, tk.ID, step, call)
			if err != nil {
				return nil, fmt.Errorf("agent step %d: %w", step, err)
			}
			conversation = append(conversation, llm.Message{
				Role:       llm.RoleTool,
				Content:    result,
				ToolCallID: call.ID,
				Name:       call.Name,
			})
		}

		if step == a.cfg.MaxSteps {
			log.Printf("resolve: agent run %s exhausted its %d-step budget", tk.ID, a.cfg.MaxSteps)
		}
	}

	tk.Answer = finalAnswer
	tk.Sources = dedupeSources(sources)
	tk.LatencyMS = float64(time.Since(start).Microseconds()) / 1000
	tk.TokenUsage = tokens
	if err := a.tickets.Update(ctx, tk); err != nil {
		return nil, fmt.Errorf("saving ticket: %w", err)
	}

	// Re-read so the returned ticket carries the tool logs and any
	// category written mid-run by classify_issue.
	return a.tickets.Get(ctx, tk.ID)
}

// executeTool records intent, runs the tool, then records the outcome. The
// tool log row exists before the tool executes so the audit trail survives
// a crash mid-call.
func (a *Agent) executeTool(ctx context.Context, registry *Registry, ticketID string, step int, call llm.ToolCall) (string, error) {
	logID, err := a.tickets.AppendToolLog(ctx, ticketID, step, call.Name, call.Arguments)
	if err != nil {
		return "", fmt.Errorf("logging %s call: %w", call.Name, err)
	}

	tool, err := registry.Get(call.Name)
	if err != nil {
		return "", err
	}

	result, err := tool.Execute(ctx, json.RawMessage(call.Arguments))
	if err != nil {
		return "", err
	}

	if err := a.tickets.SetToolLogOutput(ctx, logID, result); err != nil {
		return "", fmt.Errorf("recording %s result: %w", call.Name, err)
	}
	return result, nil
}
