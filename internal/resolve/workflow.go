package resolve

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Andasbek/ShkolaAI/internal/kb"
	"github.com/Andasbek/ShkolaAI/internal/llm"
	"github.com/Andasbek/ShkolaAI/internal/ticket"
)

// Config carries the per-engine knobs. The composition root builds one and
// hands it to both engines; nothing here is global.
type Config struct {
	Model    string
	TopK     int
	MaxSteps int
}

// Workflow is the deterministic four-stage resolution pipeline:
// analyze, retrieve, generate, persist. It never loops or re-plans, and it
// writes its ticket only after every stage has succeeded.
type Workflow struct {
	provider llm.Provider
	searcher *kb.Searcher
	tickets  *ticket.Store
	cfg      Config
}

// NewWorkflow creates a Workflow engine.
func NewWorkflow(provider llm.Provider, searcher *kb.Searcher, tickets *ticket.Store, cfg Config) *Workflow {
	return &Workflow{
		provider: provider,
		searcher: searcher,
		tickets:  tickets,
		cfg:      cfg,
	}
}

type analysis struct {
	Category string   `json:"category"`
	Keywords []string `json:"keywords"`
	Severity string   `json:"severity"`
}

// Run resolves a question and returns the persisted ticket. Any stage
// failure aborts the run with no ticket row.
func (w *Workflow) Run(ctx context.Context, question string, userContext map[string]string) (*ticket.Ticket, error) {
	start := time.Now()
	tokens := 0

	an, used, err := w.analyze(ctx, question, userContext)
	if err != nil {
		return nil, fmt.Errorf("analyze stage: %w", err)
	}
	tokens += used

	query := question
	if len(an.Keywords) > 0 {
		query = question + " " + strings.Join(an.Keywords, " ")
	}
	results, err := w.searcher.Search(ctx, query, w.cfg.TopK)
	if err != nil {
		return nil, fmt.Errorf("retrieve stage: %w", err)
	}

	answer, used, err := w.generate(ctx, question, userContext, an, results)
	if err != nil {
		return nil, fmt.Errorf("generate stage: %w", err)
	}
	tokens += used

	sources := make([]ticket.SourceRef, 0, len(results))
	for _, r := range results {
		sources = append(sources, ticket.SourceRef{Title: r.Document.Title, Source: r.Document.Source})
	}

	tk := &ticket.Ticket{
		Mode:       ticket.ModeWorkflow,
		Question:   question,
		Context:    userContext,
		Answer:     answer,
		Category:   an.Category,
		Sources:    dedupeSources(sources),
		LatencyMS:  float64(time.Since(start).Microseconds()) / 1000,
		TokenUsage: tokens,
	}
	if err := w.tickets.Create(ctx, tk); err != nil {
		return nil, fmt.Errorf("persist stage: %w", err)
	}
	return tk, nil
}

func (w *Workflow) analyze(ctx context.Context, question string, userContext map[string]string) (*analysis, int, error) {
	contextJSON, err := json.Marshal(userContext)
	if err != nil {
		return nil, 0, fmt.Errorf("marshalling context: %w", err)
	}

	resp, err := w.provider.Complete(ctx, llm.CompletionRequest{
		Model: w.cfg.Model,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: fmt.Sprintf(analyzePrompt, question, contextJSON)},
		},
		JSONMode: true,
	})
	if err != nil {
		return nil, 0, err
	}

	var an analysis
	if err := json.Unmarshal([]byte(resp.Content), &an); err != nil {
		return nil, 0, fmt.Errorf("%w: malformed analysis output: %v", llm.ErrGeneration, err)
	}
	if an.Category == "" {
		an.Category = "general"
	}
	return &an, resp.InputTokens + resp.OutputTokens, nil
}

func (w *Workflow) generate(ctx context.Context, question string, userContext map[string]string, an *analysis, results []kb.Result) (string, int, error) {
	contextJSON, err := json.Marshal(userContext)
	if err != nil {
		return "", 0, fmt.Errorf("marshalling context: %w", err)
	}

	var passages strings.Builder
	for _, r := range results {
		fmt.Fprintf(&passages, "- %s (Source: %s)\n", r.Text, r.Document.Title)
	}

	resp, err := w.provider.Complete(ctx, llm.CompletionRequest{
		Model: w.cfg.Model,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: fmt.Sprintf(generatePrompt, question, contextJSON, an.Category, passages.String())},
		},
	})
	if err != nil {
		return "", 0, err
	}
	return resp.Content, resp.InputTokens + resp.OutputTokens, nil
}

// dedupeSources drops repeated {title, source} pairs, keeping first-seen
// order.
func dedupeSources(sources []ticket.SourceRef) []ticket.SourceRef {
	seen := make(map[ticket.SourceRef]bool, len(sources))
	out := make([]ticket.SourceRef, 0, len(sources))
	for _, s := range sources {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
