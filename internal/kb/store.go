package kb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Andasbek/ShkolaAI/internal/db"
)

// ErrNotFound marks a lookup for a document or chunk that does not exist.
var ErrNotFound = errors.New("not found")

// Document is one ingested knowledge base article.
type Document struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Category  string    `json:"category"`
	Tags      []string  `json:"tags"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

// Chunk is one token window of a document's text together with its embedding
// and denormalized metadata for retrieval without a join.
type Chunk struct {
	ID         string            `json:"id"`
	DocumentID string            `json:"document_id"`
	Index      int               `json:"chunk_index"`
	Text       string            `json:"text"`
	Embedding  []float32         `json:"-"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// ChunkEmbedding is the minimal projection needed to rebuild the vector
// index from the database.
type ChunkEmbedding struct {
	ChunkID    string
	DocumentID string
	Embedding  []float32
}

// Store provides CRUD operations for documents and chunks.
type Store struct {
	db *db.DB
}

// NewStore creates a Store backed by the given database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// SaveDocument inserts a document and its chunks in a single transaction.
// Either the whole article lands or none of it does.
func (s *Store) SaveDocument(ctx context.Context, doc Document, chunks []Chunk) error {
	tags, err := json.Marshal(doc.Tags)
	if err != nil {
		return fmt.Errorf("marshalling tags: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (id, title, category, tags, source)
		VALUES (?, ?, ?, ?, ?)`,
		doc.ID, doc.Title, doc.Category, string(tags), doc.Source,
	)
	if err != nil {
		return fmt.Errorf("inserting document %s: %w", doc.Source, err)
	}

	for _, chunk := range chunks {
		embedding, err := json.Marshal(chunk.Embedding)
		if err != nil {
			return fmt.Errorf("marshalling embedding: %w", err)
		}
		metadata, err := json.Marshal(chunk.Metadata)
		if err != nil {
			return fmt.Errorf("marshalling chunk metadata: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO chunks (id, document_id, chunk_index, chunk_text, embedding, metadata)
			VALUES (?, ?, ?, ?, ?, ?)`,
			chunk.ID, doc.ID, chunk.Index, chunk.Text, string(embedding), string(metadata),
		)
		if err != nil {
			return fmt.Errorf("inserting chunk %d of %s: %w", chunk.Index, doc.Source, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing document %s: %w", doc.Source, err)
	}
	return nil
}

// GetDocument retrieves a single document by ID.
func (s *Store) GetDocument(ctx context.Context, id string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, category, tags, source, created_at
		FROM documents WHERE id = ?`, id)
	return scanDocument(row)
}

// ListDocuments returns all documents ordered by creation time.
func (s *Store) ListDocuments(ctx context.Context) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, category, tags, source, created_at
		FROM documents ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

// GetChunk retrieves a single chunk by ID.
func (s *Store) GetChunk(ctx context.Context, id string) (*Chunk, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, document_id, chunk_index, chunk_text, embedding, metadata
		FROM chunks WHERE id = ?`, id)

	var (
		chunk     Chunk
		embedding string
		metadata  string
	)
	err := row.Scan(&chunk.ID, &chunk.DocumentID, &chunk.Index, &chunk.Text, &embedding, &metadata)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("chunk %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scanning chunk: %w", err)
	}
	if err := json.Unmarshal([]byte(embedding), &chunk.Embedding); err != nil {
		return nil, fmt.Errorf("parsing chunk embedding: %w", err)
	}
	if err := json.Unmarshal([]byte(metadata), &chunk.Metadata); err != nil {
		return nil, fmt.Errorf("parsing chunk metadata: %w", err)
	}
	return &chunk, nil
}

// ListChunkEmbeddings streams every chunk's embedding, used to rebuild the
// vector index when no snapshot is available.
func (s *Store) ListChunkEmbeddings(ctx context.Context) ([]ChunkEmbedding, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, embedding FROM chunks ORDER BY document_id, chunk_index`)
	if err != nil {
		return nil, fmt.Errorf("listing chunk embeddings: %w", err)
	}
	defer rows.Close()

	var out []ChunkEmbedding
	for rows.Next() {
		var (
			ce  ChunkEmbedding
			raw string
		)
		if err := rows.Scan(&ce.ChunkID, &ce.DocumentID, &raw); err != nil {
			return nil, fmt.Errorf("scanning chunk embedding: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &ce.Embedding); err != nil {
			return nil, fmt.Errorf("parsing chunk embedding: %w", err)
		}
		out = append(out, ce)
	}
	return out, rows.Err()
}

// CountDocuments returns the number of stored documents.
func (s *Store) CountDocuments(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting documents: %w", err)
	}
	return n, nil
}

// CountChunks returns the number of stored chunks.
func (s *Store) CountChunks(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return n, nil
}

// ClearAll removes every chunk and document in one transaction. Used by
// re-ingestion before rebuilding the knowledge base from scratch.
func (s *Store) ClearAll(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks`); err != nil {
		return fmt.Errorf("clearing chunks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents`); err != nil {
		return fmt.Errorf("clearing documents: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing clear: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*Document, error) {
	var (
		doc  Document
		tags string
	)
	err := row.Scan(&doc.ID, &doc.Title, &doc.Category, &tags, &doc.Source, &doc.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning document: %w", err)
	}
	if err := json.Unmarshal([]byte(tags), &doc.Tags); err != nil {
		return nil, fmt.Errorf("parsing document tags: %w", err)
	}
	return &doc, nil
}
