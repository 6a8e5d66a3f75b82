package server

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	chromem "github.com/philippgille/chromem-go"

	"github.com/Andasbek/ShkolaAI/internal/db"
	"github.com/Andasbek/ShkolaAI/internal/kb"
	"github.com/Andasbek/ShkolaAI/internal/llm"
	"github.com/Andasbek/ShkolaAI/internal/resolve"
	"github.com/Andasbek/ShkolaAI/internal/ticket"
	"github.com/Andasbek/ShkolaAI/internal/vectorindex"
)

type stubEmbedder struct{}

func (stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}
func (stubEmbedder) Dimensions() int { return 3 }
func (stubEmbedder) Name() string    { return "stub" }

type stubProvider struct{}

func (stubProvider) Name() string { return "stub" }
func (stubProvider) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if req.JSONMode {
		return &llm.CompletionResponse{Content: `{"category":"general","keywords":[],"severity":"low"}`}, nil
	}
	return &llm.CompletionResponse{Content: "stub answer"}, nil
}

func setupServer(t *testing.T) *Server {
	t.Helper()

	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	index, err := vectorindex.New(chromem.EmbeddingFunc(func(_ context.Context, _ string) ([]float32, error) {
		return []float32{1, 0, 0}, nil
	}))
	if err != nil {
		t.Fatalf("vectorindex.New: %v", err)
	}

	kbStore := kb.NewStore(database)
	tickets := ticket.NewStore(database)
	embedder := stubEmbedder{}
	searcher := kb.NewSearcher(kbStore, index, embedder)
	ingestor := kb.NewIngestor(kbStore, index, embedder)

	cfg := resolve.Config{Model: "test", TopK: 5, MaxSteps: 8}
	resolver := resolve.NewService(
		resolve.NewWorkflow(stubProvider{}, searcher, tickets, cfg),
		resolve.NewAgent(stubProvider{}, searcher, tickets, cfg),
	)

	return New(Config{Port: 0}, Deps{
		Ingestor:       ingestor,
		Searcher:       searcher,
		Tickets:        tickets,
		Resolver:       resolver,
		IngestDefaults: kb.IngestOptions{Path: t.TempDir(), ChunkSize: 800, ChunkOverlap: 100},
		DefaultTopK:    5,
	})
}

func TestHealthz(t *testing.T) {
	s := setupServer(t)

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "ok") {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}

func TestSearchRoute(t *testing.T) {
	s := setupServer(t)

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/api/kb/search?q=printer", nil))
	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/api/kb/search", nil))
	if rec.Code != 400 {
		t.Errorf("expected 400 for missing q, got %d", rec.Code)
	}
}

func TestTicketRouteNotFound(t *testing.T) {
	s := setupServer(t)

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/api/tickets/missing", nil))
	if rec.Code != 404 {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestSupportQueryRoute(t *testing.T) {
	s := setupServer(t)

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest("POST", "/api/support/query",
		strings.NewReader(`{"question":"anything","mode":"workflow"}`)))
	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest("POST", "/api/support/query",
		strings.NewReader(`{"question":"anything","mode":"oracle"}`)))
	if rec.Code != 400 {
		t.Errorf("expected 400 for unknown mode, got %d", rec.Code)
	}
}
