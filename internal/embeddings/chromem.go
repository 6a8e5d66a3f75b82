package embeddings

import (
	"context"
	"fmt"

	chromem "github.com/philippgille/chromem-go"
)

// ToChromemFunc adapts an Embedder to the chromem.EmbeddingFunc the vector
// index collection is created with. Chunk vectors are always computed ahead
// of time and handed to the index precomputed, so in normal operation chromem
// never calls this; it exists so a document that somehow arrives without a
// vector is embedded consistently rather than rejected.
func ToChromemFunc(e Embedder) chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		vectors, err := e.Embed(ctx, []string{text})
		if err != nil {
			return nil, err
		}
		if len(vectors) == 0 {
			return nil, fmt.Errorf("%w: empty result for single text", ErrEmbedding)
		}
		return vectors[0], nil
	}
}
