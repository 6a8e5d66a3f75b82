package embeddings

import (
	"context"
	"errors"
)

// ErrEmbedding marks a failed call to the external embedding capability.
// Callers decide retry policy; the embedders never retry internally.
var ErrEmbedding = errors.New("embedding request failed")

// Embedder defines the interface for generating text embeddings.
type Embedder interface {
	// Embed generates embeddings for one or more texts.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the number of dimensions in the embedding vectors.
	Dimensions() int

	// Name returns the name/identifier of the embedding model.
	Name() string
}
