package kb

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes mounts knowledge base endpoints under /api/kb.
func RegisterRoutes(r chi.Router, ingestor *Ingestor, searcher *Searcher, defaults IngestOptions, defaultTopK int) {
	r.Route("/api/kb", func(r chi.Router) {
		r.Post("/ingest", handleIngest(ingestor, defaults))
		r.Get("/search", handleSearch(searcher, defaultTopK))
	})
}

type ingestRequest struct {
	Path         string `json:"path"`
	Reindex      bool   `json:"reindex"`
	ChunkSize    int    `json:"chunk_size"`
	ChunkOverlap *int   `json:"chunk_overlap"`
}

// mergeIngestRequest overlays per-request fields onto the configured
// defaults. ChunkOverlap is a pointer so that an explicit 0 is
// distinguishable from an absent field.
func mergeIngestRequest(defaults IngestOptions, req ingestRequest) IngestOptions {
	opts := defaults
	if req.Path != "" {
		opts.Path = req.Path
	}
	opts.Reindex = req.Reindex
	if req.ChunkSize > 0 {
		opts.ChunkSize = req.ChunkSize
	}
	if req.ChunkOverlap != nil && *req.ChunkOverlap >= 0 {
		opts.ChunkOverlap = *req.ChunkOverlap
	}
	opts.Progress = nil
	return opts
}

// handleIngest kicks off an ingestion run in the background and returns
// immediately, since a large KB can take minutes to embed.
func handleIngest(ingestor *Ingestor, defaults IngestOptions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ingestRequest
		if r.Body != nil {
			// An empty body means "use the configured defaults".
			_ = json.NewDecoder(r.Body).Decode(&req)
		}

		opts := mergeIngestRequest(defaults, req)

		go func() {
			count, err := ingestor.Run(context.Background(), opts)
			if err != nil {
				log.Printf("kb: background ingest failed: %v", err)
				return
			}
			log.Printf("kb: ingested %d documents from %s", count, opts.Path)
		}()

		writeJSON(w, http.StatusAccepted, map[string]string{
			"status": "started",
			"path":   opts.Path,
		})
	}
}

func handleSearch(searcher *Searcher, defaultTopK int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query().Get("q")
		if query == "" {
			http.Error(w, "missing query parameter q", http.StatusBadRequest)
			return
		}

		k := defaultTopK
		if v := r.URL.Query().Get("k"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				http.Error(w, "invalid k", http.StatusBadRequest)
				return
			}
			k = n
		}

		results, err := searcher.Search(r.Context(), query, k)
		if err != nil {
			if errors.Is(err, ErrInvalidConfig) {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if results == nil {
			results = []Result{}
		}

		writeJSON(w, http.StatusOK, results)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
