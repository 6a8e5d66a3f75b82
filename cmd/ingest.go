package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Andasbek/ShkolaAI/internal/kb"
	"github.com/Andasbek/ShkolaAI/internal/progress"
)

var (
	ingestPath    string
	ingestReindex bool
	ingestSize    int
	ingestOverlap int
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest knowledge base articles into the search index",
	Long: `Reads the index.json manifest under the KB directory, chunks and embeds
each article, and persists the result. With --reindex the existing
knowledge base is dropped and rebuilt from scratch.`,
	Run: func(cmd *cobra.Command, args []string) {
		exitOnError(runIngest())
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestPath, "path", "", "KB directory (default from config)")
	ingestCmd.Flags().BoolVar(&ingestReindex, "reindex", false, "drop and rebuild the knowledge base")
	ingestCmd.Flags().IntVar(&ingestSize, "chunk-size", 0, "chunk size in tokens (default from config)")
	ingestCmd.Flags().IntVar(&ingestOverlap, "chunk-overlap", -1, "chunk overlap in tokens (default from config)")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	embedder, err := createEmbedderFromConfig(cfg)
	if err != nil {
		return err
	}
	provider, err := createProviderFromConfig(cfg)
	if err != nil {
		return err
	}

	ctx := context.Background()
	st, err := openStores(ctx, cfg, embedder, provider)
	if err != nil {
		return err
	}
	defer st.Close()

	opts := kb.IngestOptions{
		Path:         cfg.KBPath,
		Reindex:      ingestReindex,
		ChunkSize:    cfg.Chunking.Size,
		ChunkOverlap: cfg.Chunking.Overlap,
		Exclude:      cfg.Ingest.Exclude,
		SnapshotPath: indexSnapshotPath(cfg),
	}
	if ingestPath != "" {
		opts.Path = ingestPath
	}
	if ingestSize > 0 {
		opts.ChunkSize = ingestSize
	}
	if ingestOverlap >= 0 {
		opts.ChunkOverlap = ingestOverlap
	}

	reporter := progress.NewReporter()
	started := false
	opts.Progress = func(done, total int) {
		if !started {
			reporter.Start(total)
			started = true
		}
		reporter.Update(done, fmt.Sprintf("%d of %d articles", done, total))
	}

	count, err := st.ingestor.Run(ctx, opts)
	if started {
		reporter.Finish()
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Ingested %d documents from %s\n", count, opts.Path)
	return nil
}
