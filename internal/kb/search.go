package kb

import (
	"context"
	"fmt"

	"github.com/Andasbek/ShkolaAI/internal/embeddings"
	"github.com/Andasbek/ShkolaAI/internal/vectorindex"
)

// DocumentRef is the per-result document summary attached to a search hit.
type DocumentRef struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Source   string `json:"source"`
	Category string `json:"category"`
}

// Result is one ranked retrieval hit. Distance is cosine distance, lower is
// closer.
type Result struct {
	ChunkID  string      `json:"chunk_id"`
	Text     string      `json:"text"`
	Distance float64     `json:"distance"`
	Document DocumentRef `json:"document"`
}

// Searcher embeds a query and ranks stored chunks against it.
type Searcher struct {
	store    *Store
	index    *vectorindex.Index
	embedder embeddings.Embedder
}

// NewSearcher creates a Searcher over the given store, index and embedder.
func NewSearcher(store *Store, index *vectorindex.Index, embedder embeddings.Embedder) *Searcher {
	return &Searcher{
		store:    store,
		index:    index,
		embedder: embedder,
	}
}

// Search returns the k chunks nearest to query, ordered by ascending cosine
// distance with chunk ID breaking ties. Asking for more chunks than the
// index holds returns everything.
func (s *Searcher) Search(ctx context.Context, query string, k int) ([]Result, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive, got %d", ErrInvalidConfig, k)
	}

	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	hits, err := s.index.SearchEmbedding(ctx, vectors[0], k)
	if err != nil {
		return nil, fmt.Errorf("searching index: %w", err)
	}

	docCache := make(map[string]*Document)
	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		chunk, err := s.store.GetChunk(ctx, hit.ChunkID)
		if err != nil {
			return nil, fmt.Errorf("loading chunk %s: %w", hit.ChunkID, err)
		}

		doc, ok := docCache[chunk.DocumentID]
		if !ok {
			doc, err = s.store.GetDocument(ctx, chunk.DocumentID)
			if err != nil {
				return nil, fmt.Errorf("loading document %s: %w", chunk.DocumentID, err)
			}
			docCache[chunk.DocumentID] = doc
		}

		results = append(results, Result{
			ChunkID:  chunk.ID,
			Text:     chunk.Text,
			Distance: hit.Distance,
			Document: DocumentRef{
				ID:       doc.ID,
				Title:    doc.Title,
				Source:   doc.Source,
				Category: doc.Category,
			},
		})
	}
	return results, nil
}
