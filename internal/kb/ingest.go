package kb

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/Andasbek/ShkolaAI/internal/embeddings"
	"github.com/Andasbek/ShkolaAI/internal/vectorindex"
)

// IngestOptions controls a single ingestion run.
type IngestOptions struct {
	// Path is the KB directory containing index.json and the article files.
	Path string
	// Reindex drops all existing documents, chunks and index entries first.
	Reindex bool
	// ChunkSize and ChunkOverlap are in whitespace tokens.
	ChunkSize    int
	ChunkOverlap int
	// Exclude holds glob patterns for manifest files to skip.
	Exclude []string
	// SnapshotPath, when set, is where the vector index snapshot is written
	// after the run. Without it a crash before the next graceful shutdown
	// would leave a snapshot missing the chunks this run committed.
	SnapshotPath string
	// Progress, when set, is called after each processed document.
	Progress func(done, total int)
}

// Ingestor reads articles from a manifest, chunks and embeds them, and
// persists the result to the document store and the vector index.
type Ingestor struct {
	store    *Store
	index    *vectorindex.Index
	embedder embeddings.Embedder
}

// NewIngestor creates an Ingestor over the given store, index and embedder.
func NewIngestor(store *Store, index *vectorindex.Index, embedder embeddings.Embedder) *Ingestor {
	return &Ingestor{
		store:    store,
		index:    index,
		embedder: embedder,
	}
}

// Run ingests every manifest entry under opts.Path and returns the number of
// documents processed. Missing article files and chunks that fail to embed
// are skipped with a log line; they never abort the run.
func (ing *Ingestor) Run(ctx context.Context, opts IngestOptions) (int, error) {
	if err := ValidateChunking(opts.ChunkSize, opts.ChunkOverlap); err != nil {
		return 0, err
	}

	entries, err := LoadManifest(opts.Path)
	if err != nil {
		return 0, err
	}
	entries = FilterManifest(entries, opts.Exclude)

	if opts.Reindex {
		if err := ing.store.ClearAll(ctx); err != nil {
			return 0, fmt.Errorf("clearing store: %w", err)
		}
		if err := ing.index.Clear(); err != nil {
			return 0, fmt.Errorf("clearing index: %w", err)
		}
	}

	processed := 0
	for i, entry := range entries {
		if err := ctx.Err(); err != nil {
			return processed, err
		}

		if err := ing.ingestOne(ctx, opts.Path, entry, opts.ChunkSize, opts.ChunkOverlap); err != nil {
			if os.IsNotExist(err) {
				log.Printf("ingest: skipping %s: file not found", entry.File)
				continue
			}
			return processed, fmt.Errorf("ingesting %s: %w", entry.File, err)
		}

		processed++
		if opts.Progress != nil {
			opts.Progress(i+1, len(entries))
		}
	}

	if opts.SnapshotPath != "" {
		if err := ing.index.Persist(opts.SnapshotPath); err != nil {
			return processed, fmt.Errorf("persisting index snapshot: %w", err)
		}
	}

	return processed, nil
}

func (ing *Ingestor) ingestOne(ctx context.Context, dir string, entry ManifestEntry, size, overlap int) error {
	raw, err := os.ReadFile(filepath.Join(dir, entry.File))
	if err != nil {
		return err
	}

	text := string(raw)
	if strings.EqualFold(filepath.Ext(entry.File), ".md") {
		text = MarkdownToText(raw)
	}

	pieces, err := SplitTokens(text, size, overlap)
	if err != nil {
		return err
	}

	doc := Document{
		ID:       uuid.New().String(),
		Title:    entry.Title,
		Category: entry.Category,
		Tags:     entry.Tags,
		Source:   entry.File,
	}
	if doc.Category == "" {
		doc.Category = "unknown"
	}

	chunks := ing.embedChunks(ctx, doc, entry, pieces)

	if err := ing.store.SaveDocument(ctx, doc, chunks); err != nil {
		return err
	}

	if len(chunks) == 0 {
		return nil
	}

	idxEntries := make([]vectorindex.Entry, len(chunks))
	for i, c := range chunks {
		idxEntries[i] = vectorindex.Entry{
			ChunkID:    c.ID,
			DocumentID: c.DocumentID,
			Embedding:  c.Embedding,
		}
	}
	return ing.index.Add(ctx, idxEntries)
}

// embedChunks embeds the chunk texts for one document. The whole document is
// embedded in a single batch; if the batch fails, each chunk is retried on
// its own so one bad chunk does not sink the article. Chunk indexes stay
// dense over the chunks that survive.
func (ing *Ingestor) embedChunks(ctx context.Context, doc Document, entry ManifestEntry, pieces []string) []Chunk {
	if len(pieces) == 0 {
		return nil
	}

	metadata := map[string]string{
		"file":     entry.File,
		"category": doc.Category,
		"tags":     strings.Join(entry.Tags, ","),
	}

	vectors, err := ing.embedder.Embed(ctx, pieces)
	if err != nil {
		log.Printf("ingest: batch embed failed for %s, retrying per chunk: %v", entry.File, err)
		vectors = make([][]float32, len(pieces))
		for i, piece := range pieces {
			single, err := ing.embedder.Embed(ctx, []string{piece})
			if err != nil {
				log.Printf("ingest: skipping chunk %d of %s: %v", i, entry.File, err)
				continue
			}
			vectors[i] = single[0]
		}
	}

	var chunks []Chunk
	for i, piece := range pieces {
		if vectors[i] == nil {
			continue
		}
		chunks = append(chunks, Chunk{
			ID:         uuid.New().String(),
			DocumentID: doc.ID,
			Index:      len(chunks),
			Text:       piece,
			Embedding:  vectors[i],
			Metadata:   metadata,
		})
	}
	return chunks
}
