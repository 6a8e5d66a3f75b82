package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/Andasbek/ShkolaAI/internal/config"
	"github.com/Andasbek/ShkolaAI/internal/db"
	"github.com/Andasbek/ShkolaAI/internal/embeddings"
	"github.com/Andasbek/ShkolaAI/internal/kb"
	"github.com/Andasbek/ShkolaAI/internal/llm"
	"github.com/Andasbek/ShkolaAI/internal/resolve"
	"github.com/Andasbek/ShkolaAI/internal/ticket"
	"github.com/Andasbek/ShkolaAI/internal/vectorindex"
)

// loadConfig loads and validates the config, providing a user-friendly error.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w\nRun `helpdesk init` to create a config file", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// createEmbedderFromConfig creates an embeddings.Embedder based on config.
func createEmbedderFromConfig(cfg *config.Config) (embeddings.Embedder, error) {
	provider := cfg.EmbeddingProvider
	if provider == "" {
		provider = cfg.Provider
	}
	model := cfg.EmbeddingModel
	dims := cfg.EmbeddingDims
	if model == "" {
		model, dims = config.DefaultEmbeddingModel(provider)
	}

	switch provider {
	case config.ProviderOpenAI:
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable is required for OpenAI embeddings")
		}
		return embeddings.NewOpenAIEmbedder(apiKey, embeddings.OpenAIModel(model)), nil
	case config.ProviderOllama:
		return embeddings.NewOllamaEmbedder(model, dims, os.Getenv("OLLAMA_HOST")), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", provider)
	}
}

// createProviderFromConfig creates an LLM provider based on config settings.
func createProviderFromConfig(cfg *config.Config) (llm.Provider, error) {
	return llm.NewProvider(string(cfg.Provider), cfg.Model)
}

// stores bundles everything built on top of the database and vector index.
type stores struct {
	db       *db.DB
	kb       *kb.Store
	tickets  *ticket.Store
	index    *vectorindex.Index
	ingestor *kb.Ingestor
	searcher *kb.Searcher
	resolver *resolve.Service
}

func (s *stores) Close() {
	s.db.Close()
}

func indexSnapshotPath(cfg *config.Config) string {
	return filepath.Join(cfg.DataDir, "index.gob.gz")
}

// openStores opens the database and the vector index, rebuilding the index
// from stored chunk rows when no snapshot is on disk.
func openStores(ctx context.Context, cfg *config.Config, embedder embeddings.Embedder, provider llm.Provider) (*stores, error) {
	database, err := db.Open(filepath.Join(cfg.DataDir, "helpdesk.db"))
	if err != nil {
		return nil, err
	}

	index, err := vectorindex.New(embeddings.ToChromemFunc(embedder))
	if err != nil {
		database.Close()
		return nil, err
	}

	kbStore := kb.NewStore(database)
	if err := loadOrRebuildIndex(ctx, kbStore, index, indexSnapshotPath(cfg)); err != nil {
		database.Close()
		return nil, err
	}

	tickets := ticket.NewStore(database)
	searcher := kb.NewSearcher(kbStore, index, embedder)

	engineCfg := resolve.Config{
		Model:    cfg.Model,
		TopK:     cfg.Search.TopK,
		MaxSteps: cfg.Agent.MaxSteps,
	}
	resolver := resolve.NewService(
		resolve.NewWorkflow(provider, searcher, tickets, engineCfg),
		resolve.NewAgent(provider, searcher, tickets, engineCfg),
	)

	return &stores{
		db:       database,
		kb:       kbStore,
		tickets:  tickets,
		index:    index,
		ingestor: kb.NewIngestor(kbStore, index, embedder),
		searcher: searcher,
		resolver: resolver,
	}, nil
}

// loadOrRebuildIndex restores the vector index from its snapshot, falling
// back to a rebuild from stored chunk rows when the snapshot is missing,
// unreadable, or stale. A snapshot whose entry count disagrees with the
// chunk table is stale: it was written before a later ingestion run
// committed rows (or the process died before writing one at all), and
// trusting it would make retrieval skip persisted chunks.
func loadOrRebuildIndex(ctx context.Context, kbStore *kb.Store, index *vectorindex.Index, snapshotPath string) error {
	if err := index.Load(snapshotPath); err != nil {
		if !os.IsNotExist(err) {
			log.Printf("cmd: index snapshot unreadable, rebuilding: %v", err)
		}
		return rebuildIndex(ctx, kbStore, index)
	}

	stored, err := kbStore.CountChunks(ctx)
	if err != nil {
		return fmt.Errorf("checking index freshness: %w", err)
	}
	if index.Count() != stored {
		log.Printf("cmd: index snapshot stale (%d indexed, %d stored), rebuilding", index.Count(), stored)
		if err := index.Clear(); err != nil {
			return fmt.Errorf("clearing stale index: %w", err)
		}
		return rebuildIndex(ctx, kbStore, index)
	}
	return nil
}

func rebuildIndex(ctx context.Context, kbStore *kb.Store, index *vectorindex.Index) error {
	embs, err := kbStore.ListChunkEmbeddings(ctx)
	if err != nil {
		return fmt.Errorf("rebuilding index: %w", err)
	}
	if len(embs) == 0 {
		return nil
	}

	entries := make([]vectorindex.Entry, len(embs))
	for i, ce := range embs {
		entries[i] = vectorindex.Entry{
			ChunkID:    ce.ChunkID,
			DocumentID: ce.DocumentID,
			Embedding:  ce.Embedding,
		}
	}
	if err := index.Add(ctx, entries); err != nil {
		return fmt.Errorf("rebuilding index: %w", err)
	}
	log.Printf("cmd: rebuilt vector index from %d stored chunks", len(entries))
	return nil
}
