package resolve

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/Andasbek/ShkolaAI/internal/llm"
)

// Tool is one capability the agent can invoke. Execute receives the raw
// JSON argument object from the model and returns the textual tool result.
type Tool interface {
	Name() string
	Description() string
	Parameters() jsonschema.Definition
	Execute(ctx context.Context, args json.RawMessage) (string, error)
}

// Registry maps tool names to tools. Adding a capability to the agent means
// registering a tool here, not editing the loop.
type Registry struct {
	tools []Tool
	byName map[string]Tool
}

// NewRegistry creates a Registry holding the given tools in order.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{byName: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		r.tools = append(r.tools, t)
		r.byName[t.Name()] = t
	}
	return r
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (Tool, error) {
	t, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("unknown tool %q", name)
	}
	return t, nil
}

// Definitions returns the tool manifest to advertise to the model.
func (r *Registry) Definitions() []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, len(r.tools))
	for i, t := range r.tools {
		defs[i] = llm.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		}
	}
	return defs
}
