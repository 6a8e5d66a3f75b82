package resolve

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/Andasbek/ShkolaAI/internal/kb"
	"github.com/Andasbek/ShkolaAI/internal/ticket"
)

// passageRunes caps how much of each retrieved chunk is fed back to the
// model through the kb_search tool result.
const passageRunes = 200

// kbSearchTool searches the knowledge base and reports truncated passages.
// Every retrieved {title, source} pair is also handed to collect so the run
// can accumulate citations across calls.
type kbSearchTool struct {
	searcher *kb.Searcher
	topK     int
	collect  func(ticket.SourceRef)
}

func (t *kbSearchTool) Name() string { return "kb_search" }

func (t *kbSearchTool) Description() string {
	return "Search the knowledge base for relevant articles."
}

func (t *kbSearchTool) Parameters() jsonschema.Definition {
	return jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"query": {
				Type:        jsonschema.String,
				Description: "The search query.",
			},
		},
		Required: []string{"query"},
	}
}

func (t *kbSearchTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var params struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return "", fmt.Errorf("parsing kb_search arguments: %w", err)
	}
	if params.Query == "" {
		return "", fmt.Errorf("kb_search requires a query")
	}

	results, err := t.searcher.Search(ctx, params.Query, t.topK)
	if err != nil {
		return "", fmt.Errorf("kb_search: %w", err)
	}

	type passage struct {
		Text  string `json:"text"`
		Title string `json:"title"`
	}
	passages := make([]passage, 0, len(results))
	for _, r := range results {
		passages = append(passages, passage{
			Text:  truncateRunes(r.Text, passageRunes),
			Title: r.Document.Title,
		})
		t.collect(ticket.SourceRef{Title: r.Document.Title, Source: r.Document.Source})
	}

	out, err := json.Marshal(passages)
	if err != nil {
		return "", fmt.Errorf("encoding kb_search result: %w", err)
	}
	return string(out), nil
}

// classifyTool records the model's category call on the ticket as soon as it
// is made, so the classification survives even if the run later fails.
type classifyTool struct {
	setCategory func(ctx context.Context, category string) error
}

func (t *classifyTool) Name() string { return "classify_issue" }

func (t *classifyTool) Description() string {
	return "Classify the issue category."
}

func (t *classifyTool) Parameters() jsonschema.Definition {
	return jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"category": {
				Type:        jsonschema.String,
				Description: "Category name (e.g. docker, nginx)",
			},
			"severity": {
				Type: jsonschema.String,
				Enum: []string{"low", "medium", "high"},
			},
		},
		Required: []string{"category"},
	}
}

func (t *classifyTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var params struct {
		Category string `json:"category"`
		Severity string `json:"severity"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return "", fmt.Errorf("parsing classify_issue arguments: %w", err)
	}
	if params.Category == "" {
		return "", fmt.Errorf("classify_issue requires a category")
	}

	if err := t.setCategory(ctx, params.Category); err != nil {
		return "", fmt.Errorf("classify_issue: %w", err)
	}
	return fmt.Sprintf("Classified as %s", params.Category), nil
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
