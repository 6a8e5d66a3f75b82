package vectorindex

import (
	"context"
	"fmt"
	"os"
	"sort"

	chromem "github.com/philippgille/chromem-go"
)

const collectionName = "kb_chunks"

// Entry is a single chunk embedding to index.
type Entry struct {
	ChunkID    string
	DocumentID string
	Embedding  []float32
}

// Hit is one ranked search result. Distance is cosine distance
// (1 - cosine similarity), so lower means closer.
type Hit struct {
	ChunkID    string
	DocumentID string
	Distance   float64
}

// Index is an in-memory similarity index over chunk embeddings, backed by
// chromem-go with an optional gob snapshot on disk. The SQLite store remains
// the system of record; the index can always be rebuilt from it.
type Index struct {
	db         *chromem.DB
	collection *chromem.Collection
	embedFunc  chromem.EmbeddingFunc
}

// New creates an empty in-memory index. The embedding func is only used by
// chromem when a document arrives without a precomputed vector, which this
// index never does, but the collection requires one.
func New(embedFunc chromem.EmbeddingFunc) (*Index, error) {
	db := chromem.NewDB()
	col, err := db.GetOrCreateCollection(collectionName, nil, embedFunc)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	return &Index{
		db:         db,
		collection: col,
		embedFunc:  embedFunc,
	}, nil
}

// Add indexes the given entries. Entries with an existing chunk ID are
// overwritten.
func (ix *Index) Add(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	docs := make([]chromem.Document, len(entries))
	for i, e := range entries {
		docs[i] = chromem.Document{
			ID:        e.ChunkID,
			Embedding: e.Embedding,
			Metadata:  map[string]string{"document_id": e.DocumentID},
			Content:   " ",
		}
	}

	return ix.collection.AddDocuments(ctx, docs, 1)
}

// DeleteByDocument removes every chunk belonging to the given document.
func (ix *Index) DeleteByDocument(ctx context.Context, documentID string) error {
	where := map[string]string{"document_id": documentID}
	return ix.collection.Delete(ctx, where, nil)
}

// Clear drops all indexed chunks.
func (ix *Index) Clear() error {
	if err := ix.db.DeleteCollection(collectionName); err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}
	col, err := ix.db.GetOrCreateCollection(collectionName, nil, ix.embedFunc)
	if err != nil {
		return fmt.Errorf("recreate collection: %w", err)
	}
	ix.collection = col
	return nil
}

// SearchEmbedding returns the k nearest chunks to the query vector, ordered
// by cosine distance ascending with chunk ID as the tie-break. Asking for
// more results than the index holds returns everything.
func (ix *Index) SearchEmbedding(ctx context.Context, query []float32, k int) ([]Hit, error) {
	count := ix.collection.Count()
	if count == 0 || k <= 0 {
		return nil, nil
	}

	// Query the full collection and rank here so that ties between equal
	// distances resolve the same way on every run.
	results, err := ix.collection.QueryEmbedding(ctx, query, count, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	hits := make([]Hit, len(results))
	for i, r := range results {
		hits[i] = Hit{
			ChunkID:    r.ID,
			DocumentID: r.Metadata["document_id"],
			Distance:   1 - float64(r.Similarity),
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})

	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

// Count returns the number of indexed chunks.
func (ix *Index) Count() int {
	return ix.collection.Count()
}

// Persist writes a compressed snapshot of the index to path.
func (ix *Index) Persist(path string) error {
	return ix.db.ExportToFile(path, true, "")
}

// Load restores the index from a snapshot written by Persist. A missing
// snapshot file is reported as os.ErrNotExist so callers can fall back to
// rebuilding from the chunk store.
func (ix *Index) Load(path string) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}

	if err := ix.db.ImportFromFile(path, ""); err != nil {
		return fmt.Errorf("import snapshot: %w", err)
	}

	// Re-acquire collection reference after import.
	col := ix.db.GetCollection(collectionName, ix.embedFunc)
	if col == nil {
		return fmt.Errorf("collection %q not found after import", collectionName)
	}
	ix.collection = col
	return nil
}
