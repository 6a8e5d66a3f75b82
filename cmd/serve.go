package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Andasbek/ShkolaAI/internal/kb"
	"github.com/Andasbek/ShkolaAI/internal/server"
)

var serveAllowAll bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the helpdesk HTTP server",
	Long: `Starts the HTTP server exposing the knowledge base, resolution and
ticket APIs, plus a websocket endpoint for interactive support sessions.`,
	Run: func(cmd *cobra.Command, args []string) {
		exitOnError(runServe())
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveAllowAll, "allow-all-origins", false, "allow all CORS origins (dev mode)")
	rootCmd.AddCommand(serveCmd)
}

func runServe() error {
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

	srv := server.New(server.Config{
		Port:     cfg.Port,
		AllowAll: serveAllowAll,
	}, server.Deps{
		Ingestor: st.ingestor,
		Searcher: st.searcher,
		Tickets:  st.tickets,
		Resolver: st.resolver,
		IngestDefaults: kb.IngestOptions{
			Path:         cfg.KBPath,
			ChunkSize:    cfg.Chunking.Size,
			ChunkOverlap: cfg.Chunking.Overlap,
			Exclude:      cfg.Ingest.Exclude,
			SnapshotPath: indexSnapshotPath(cfg),
		},
		DefaultTopK: cfg.Search.TopK,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		fmt.Fprintf(os.Stderr, "\nReceived %s, shutting down...\n", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}

	// Keep the snapshot current so the next start skips the rebuild.
	if err := st.index.Persist(indexSnapshotPath(cfg)); err != nil {
		return fmt.Errorf("persisting index snapshot: %w", err)
	}
	return nil
}
