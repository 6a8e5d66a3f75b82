package llm

import (
	"context"
	"errors"
)

// ErrGeneration marks a failed call to the external generation capability.
var ErrGeneration = errors.New("generation request failed")

// Provider defines the interface for LLM providers.
type Provider interface {
	// Complete sends a completion request and returns the response. When the
	// request carries a tool manifest, the response contains either final
	// text or one or more tool calls, never both interleaved.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	// Name returns the name of this provider.
	Name() string
}
