package ticket

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/Andasbek/ShkolaAI/internal/db"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return NewStore(database)
}

func TestCreateAndGet(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)

	in := &Ticket{
		Mode:     ModeWorkflow,
		Question: "Why is my printer offline?",
		Context:  map[string]string{"os": "windows 11"},
		Answer:   "Restart the print spooler.",
		Category: "hardware",
		Sources: []SourceRef{
			{Title: "Printer offline", Source: "printer.md"},
		},
		LatencyMS:  812.5,
		TokenUsage: 342,
	}
	if err := store.Create(ctx, in); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if in.ID == "" {
		t.Fatal("Create should assign an ID")
	}

	got, err := store.Get(ctx, in.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Question != in.Question || got.Answer != in.Answer || got.Category != in.Category {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if got.Context["os"] != "windows 11" {
		t.Errorf("context not preserved: %v", got.Context)
	}
	if len(got.Sources) != 1 || got.Sources[0].Source != "printer.md" {
		t.Errorf("sources not preserved: %v", got.Sources)
	}
	if got.LatencyMS != in.LatencyMS || got.TokenUsage != in.TokenUsage {
		t.Errorf("metrics not preserved: latency=%f tokens=%d", got.LatencyMS, got.TokenUsage)
	}
	if got.CreatedAt.IsZero() {
		t.Error("created_at should be set by the database")
	}
}

func TestGetNotFound(t *testing.T) {
	store := setupStore(t)

	_, err := store.Get(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)

	tk := &Ticket{Mode: ModeAgent, Question: "VPN keeps dropping"}
	if err := store.Create(ctx, tk); err != nil {
		t.Fatalf("Create: %v", err)
	}

	tk.Answer = "Switch to the wired network profile."
	tk.Category = "network"
	tk.Sources = []SourceRef{{Title: "VPN drops", Source: "vpn.md"}}
	tk.TokenUsage = 1200
	if err := store.Update(ctx, tk); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, err := store.Get(ctx, tk.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Answer != tk.Answer || got.Category != "network" || len(got.Sources) != 1 {
		t.Errorf("update not persisted: %+v", got)
	}

	if err := store.Update(ctx, &Ticket{ID: "missing"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("updating a missing ticket should return ErrNotFound, got %v", err)
	}
}

func TestSetCategory(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)

	tk := &Ticket{Mode: ModeAgent, Question: "Screen flickers", Category: "pending"}
	if err := store.Create(ctx, tk); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.SetCategory(ctx, tk.ID, "hardware"); err != nil {
		t.Fatalf("SetCategory: %v", err)
	}

	got, err := store.Get(ctx, tk.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Category != "hardware" {
		t.Errorf("expected category hardware, got %q", got.Category)
	}
}

func TestToolLogOrderingAndWriteOnce(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)

	tk := &Ticket{Mode: ModeAgent, Question: "Email bounces"}
	if err := store.Create(ctx, tk); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Two calls in step 1, one in step 2, inserted out of step order.
	id2, err := store.AppendToolLog(ctx, tk.ID, 2, "kb_search", `{"query":"smtp relay"}`)
	if err != nil {
		t.Fatalf("AppendToolLog: %v", err)
	}
	id1a, err := store.AppendToolLog(ctx, tk.ID, 1, "kb_search", `{"query":"email bounce"}`)
	if err != nil {
		t.Fatalf("AppendToolLog: %v", err)
	}
	id1b, err := store.AppendToolLog(ctx, tk.ID, 1, "classify_issue", `{"category":"email"}`)
	if err != nil {
		t.Fatalf("AppendToolLog: %v", err)
	}

	for _, id := range []string{id1a, id1b, id2} {
		if err := store.SetToolLogOutput(ctx, id, "ok"); err != nil {
			t.Fatalf("SetToolLogOutput: %v", err)
		}
	}

	got, err := store.Get(ctx, tk.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got.ToolLogs) != 3 {
		t.Fatalf("expected 3 tool logs, got %d", len(got.ToolLogs))
	}
	if got.ToolLogs[0].ID != id1a || got.ToolLogs[1].ID != id1b || got.ToolLogs[2].ID != id2 {
		t.Errorf("tool logs not ordered by step then insertion: %+v", got.ToolLogs)
	}

	// Output is write-once.
	if err := store.SetToolLogOutput(ctx, id1a, "overwrite"); err == nil {
		t.Error("second SetToolLogOutput should fail")
	}
	got, err = store.Get(ctx, tk.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ToolLogs[0].Output != "ok" {
		t.Errorf("output changed after failed overwrite: %q", got.ToolLogs[0].Output)
	}
}

func TestList(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)

	for _, q := range []string{"a", "b", "c"} {
		if err := store.Create(ctx, &Ticket{Mode: ModeWorkflow, Question: q}); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	tickets, err := store.List(ctx, 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(tickets) != 2 {
		t.Errorf("expected 2 tickets, got %d", len(tickets))
	}
}

func TestGetTicketRoute(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)

	tk := &Ticket{Mode: ModeWorkflow, Question: "q", Answer: "a"}
	if err := store.Create(ctx, tk); err != nil {
		t.Fatalf("Create: %v", err)
	}

	r := chi.NewRouter()
	RegisterRoutes(r, store)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/api/tickets/"+tk.ID, nil))
	if rec.Code != 200 {
		t.Errorf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/api/tickets/missing", nil))
	if rec.Code != 404 {
		t.Errorf("expected 404 for missing ticket, got %d", rec.Code)
	}
}
