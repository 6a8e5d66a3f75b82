package resolve

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	chromem "github.com/philippgille/chromem-go"

	"github.com/Andasbek/ShkolaAI/internal/db"
	"github.com/Andasbek/ShkolaAI/internal/kb"
	"github.com/Andasbek/ShkolaAI/internal/llm"
	"github.com/Andasbek/ShkolaAI/internal/ticket"
	"github.com/Andasbek/ShkolaAI/internal/vectorindex"
)

// fakeEmbedder produces deterministic character-frequency vectors, so exact
// text matches rank first without a network call.
type fakeEmbedder struct{ dims int }

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = f.vector(text)
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int { return f.dims }
func (f *fakeEmbedder) Name() string    { return "fake" }

func (f *fakeEmbedder) vector(text string) []float32 {
	vec := make([]float32, f.dims)
	for i, ch := range text {
		vec[(int(ch)+i)%f.dims]++
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v * v)
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vec {
			vec[i] = float32(float64(vec[i]) / norm)
		}
	}
	return vec
}

// scriptedProvider replays canned completion responses in order and records
// every request it sees.
type scriptedProvider struct {
	responses  []scriptedTurn
	repeatLast bool
	calls      int
	requests   []llm.CompletionRequest
}

type scriptedTurn struct {
	resp *llm.CompletionResponse
	err  error
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.requests = append(p.requests, req)
	i := p.calls
	if i >= len(p.responses) {
		if !p.repeatLast {
			return nil, fmt.Errorf("scripted provider exhausted after %d calls", len(p.responses))
		}
		i = len(p.responses) - 1
	}
	p.calls++
	turn := p.responses[i]
	return turn.resp, turn.err
}

func textTurn(content string, tokens int) scriptedTurn {
	return scriptedTurn{resp: &llm.CompletionResponse{Content: content, OutputTokens: tokens}}
}

func toolTurn(calls ...llm.ToolCall) scriptedTurn {
	return scriptedTurn{resp: &llm.CompletionResponse{ToolCalls: calls, FinishReason: "tool_calls"}}
}

type fixture struct {
	tickets  *ticket.Store
	searcher *kb.Searcher
}

func setupFixture(t *testing.T) *fixture {
	t.Helper()

	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	embedder := &fakeEmbedder{dims: 32}
	index, err := vectorindex.New(chromem.EmbeddingFunc(func(_ context.Context, text string) ([]float32, error) {
		return embedder.vector(text), nil
	}))
	if err != nil {
		t.Fatalf("vectorindex.New: %v", err)
	}

	kbStore := kb.NewStore(database)
	fx := &fixture{
		tickets:  ticket.NewStore(database),
		searcher: kb.NewSearcher(kbStore, index, embedder),
	}

	// Seed two nginx articles, one of them split in two chunks.
	seed := []struct {
		doc    kb.Document
		chunks []string
	}{
		{
			doc:    kb.Document{ID: "d-nginx-ports", Title: "Nginx port conflicts", Category: "nginx", Source: "nginx_ports.md"},
			chunks: []string{"nginx bind failed port 80 already in use", "stop the conflicting service or change listen directive"},
		},
		{
			doc:    kb.Document{ID: "d-nginx-tls", Title: "Nginx TLS setup", Category: "nginx", Source: "nginx_tls.md"},
			chunks: []string{"configure ssl_certificate and reload nginx"},
		},
	}
	ctx := context.Background()
	for _, s := range seed {
		var chunks []kb.Chunk
		var entries []vectorindex.Entry
		for i, text := range s.chunks {
			c := kb.Chunk{
				ID:         fmt.Sprintf("%s-c%d", s.doc.ID, i),
				DocumentID: s.doc.ID,
				Index:      i,
				Text:       text,
				Embedding:  embedder.vector(text),
			}
			chunks = append(chunks, c)
			entries = append(entries, vectorindex.Entry{ChunkID: c.ID, DocumentID: c.DocumentID, Embedding: c.Embedding})
		}
		if err := kbStore.SaveDocument(ctx, s.doc, chunks); err != nil {
			t.Fatalf("SaveDocument: %v", err)
		}
		if err := index.Add(ctx, entries); err != nil {
			t.Fatalf("index.Add: %v", err)
		}
	}
	return fx
}

func testConfig() Config {
	return Config{Model: "test-model", TopK: 5, MaxSteps: 8}
}

func TestWorkflowRun(t *testing.T) {
	ctx := context.Background()
	fx := setupFixture(t)

	provider := &scriptedProvider{responses: []scriptedTurn{
		{resp: &llm.CompletionResponse{
			Content:      `{"category":"nginx","keywords":["port","bind"],"severity":"high"}`,
			InputTokens:  100,
			OutputTokens: 20,
		}},
		{resp: &llm.CompletionResponse{
			Content:      "Stop the conflicting service, then restart nginx.",
			InputTokens:  300,
			OutputTokens: 80,
		}},
	}}

	engine := NewWorkflow(provider, fx.searcher, fx.tickets, testConfig())
	tk, err := engine.Run(ctx, "port already in use", map[string]string{"os": "ubuntu"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if tk.Mode != ticket.ModeWorkflow {
		t.Errorf("expected workflow mode, got %s", tk.Mode)
	}
	if tk.Answer == "" {
		t.Error("expected a non-empty answer")
	}
	if tk.Category != "nginx" {
		t.Errorf("expected category nginx, got %q", tk.Category)
	}
	if tk.TokenUsage != 500 {
		t.Errorf("expected 500 tokens, got %d", tk.TokenUsage)
	}
	if tk.LatencyMS < 0 {
		t.Errorf("negative latency %f", tk.LatencyMS)
	}

	// Three chunks across two documents; sources are deduplicated pairs.
	if len(tk.Sources) != 2 {
		t.Fatalf("expected 2 deduplicated sources, got %d: %v", len(tk.Sources), tk.Sources)
	}
	for _, s := range tk.Sources {
		if !strings.HasPrefix(s.Source, "nginx_") {
			t.Errorf("unexpected source %+v", s)
		}
	}

	// The analyze stage runs in JSON mode; the generate stage does not.
	if len(provider.requests) != 2 {
		t.Fatalf("expected 2 provider calls, got %d", len(provider.requests))
	}
	if !provider.requests[0].JSONMode {
		t.Error("analyze request should use JSON mode")
	}
	if provider.requests[1].JSONMode {
		t.Error("generate request should not use JSON mode")
	}
	// Keywords are folded into the retrieval query via the second prompt's
	// retrieved passages, and the analyze output feeds the generate prompt.
	if !strings.Contains(provider.requests[1].Messages[0].Content, "nginx") {
		t.Error("generate prompt should carry the detected category")
	}

	// The returned ticket is persisted.
	stored, err := fx.tickets.Get(ctx, tk.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.Answer != tk.Answer {
		t.Error("stored ticket does not match returned ticket")
	}
	if len(stored.ToolLogs) != 0 {
		t.Errorf("workflow must not produce tool logs, got %d", len(stored.ToolLogs))
	}
}

func TestWorkflowAnalyzeFailureLeavesNoTicket(t *testing.T) {
	ctx := context.Background()
	fx := setupFixture(t)

	provider := &scriptedProvider{responses: []scriptedTurn{
		{resp: &llm.CompletionResponse{Content: "not json at all"}},
	}}

	engine := NewWorkflow(provider, fx.searcher, fx.tickets, testConfig())
	if _, err := engine.Run(ctx, "broken question", nil); err == nil {
		t.Fatal("expected analyze failure")
	}

	tickets, err := fx.tickets.List(ctx, 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(tickets) != 0 {
		t.Errorf("failed run must not leave a ticket, found %d", len(tickets))
	}
}

func TestWorkflowGenerateFailureLeavesNoTicket(t *testing.T) {
	ctx := context.Background()
	fx := setupFixture(t)

	provider := &scriptedProvider{responses: []scriptedTurn{
		{resp: &llm.CompletionResponse{Content: `{"category":"nginx","keywords":[],"severity":"low"}`}},
		{err: fmt.Errorf("%w: upstream 500", llm.ErrGeneration)},
	}}

	engine := NewWorkflow(provider, fx.searcher, fx.tickets, testConfig())
	if _, err := engine.Run(ctx, "port already in use", nil); err == nil {
		t.Fatal("expected generate failure")
	}

	tickets, err := fx.tickets.List(ctx, 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(tickets) != 0 {
		t.Errorf("failed run must not leave a ticket, found %d", len(tickets))
	}
}

func TestAgentFinalAnswer(t *testing.T) {
	ctx := context.Background()
	fx := setupFixture(t)

	provider := &scriptedProvider{responses: []scriptedTurn{
		toolTurn(
			llm.ToolCall{ID: "call_1", Name: "classify_issue", Arguments: `{"category":"nginx","severity":"high"}`},
			llm.ToolCall{ID: "call_2", Name: "kb_search", Arguments: `{"query":"port 80 already in use"}`},
		),
		textTurn("Kill the process holding port 80, then restart nginx.", 90),
	}}

	engine := NewAgent(provider, fx.searcher, fx.tickets, testConfig())
	tk, err := engine.Run(ctx, "port already in use", map[string]string{"service": "nginx"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if tk.Mode != ticket.ModeAgent {
		t.Errorf("expected agent mode, got %s", tk.Mode)
	}
	if tk.Answer != "Kill the process holding port 80, then restart nginx." {
		t.Errorf("unexpected answer %q", tk.Answer)
	}
	if tk.Category != "nginx" {
		t.Errorf("classify_issue should have set the category, got %q", tk.Category)
	}
	if len(tk.Sources) == 0 {
		t.Error("kb_search sources should be recorded on the ticket")
	}

	// Both calls from iteration one share step 1, in request order, with
	// outputs filled in.
	if len(tk.ToolLogs) != 2 {
		t.Fatalf("expected 2 tool logs, got %d", len(tk.ToolLogs))
	}
	if tk.ToolLogs[0].ToolName != "classify_issue" || tk.ToolLogs[1].ToolName != "kb_search" {
		t.Errorf("tool logs out of order: %+v", tk.ToolLogs)
	}
	for _, tl := range tk.ToolLogs {
		if tl.Step != 1 {
			t.Errorf("expected step 1, got %d for %s", tl.Step, tl.ToolName)
		}
		if tl.Output == "" {
			t.Errorf("tool log %s has no output", tl.ToolName)
		}
	}

	// The tool results were appended to the conversation with their call IDs.
	last := provider.requests[len(provider.requests)-1].Messages
	var toolMsgs []llm.Message
	for _, m := range last {
		if m.Role == llm.RoleTool {
			toolMsgs = append(toolMsgs, m)
		}
	}
	if len(toolMsgs) != 2 {
		t.Fatalf("expected 2 tool messages in conversation, got %d", len(toolMsgs))
	}
	if toolMsgs[0].ToolCallID != "call_1" || toolMsgs[1].ToolCallID != "call_2" {
		t.Errorf("tool messages lost their call IDs: %+v", toolMsgs)
	}
}

func TestAgentStepBudget(t *testing.T) {
	ctx := context.Background()
	fx := setupFixture(t)

	// The model never stops asking for kb_search; the loop must cut it off
	// after exactly 8 iterations.
	provider := &scriptedProvider{
		repeatLast: true,
		responses: []scriptedTurn{
			toolTurn(llm.ToolCall{ID: "call", Name: "kb_search", Arguments: `{"query":"nginx port"}`}),
		},
	}

	engine := NewAgent(provider, fx.searcher, fx.tickets, testConfig())
	tk, err := engine.Run(ctx, "port already in use", nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if provider.calls != 8 {
		t.Errorf("expected 8 provider calls, got %d", provider.calls)
	}
	if len(tk.ToolLogs) != 8 {
		t.Fatalf("expected 8 tool logs, got %d", len(tk.ToolLogs))
	}
	for i, tl := range tk.ToolLogs {
		if tl.Step != i+1 {
			t.Errorf("tool log %d has step %d", i, tl.Step)
		}
	}
	if tk.Answer != "" {
		t.Errorf("budget-exhausted run produced no text, answer should be empty, got %q", tk.Answer)
	}
	// Sources gathered along the way are still recorded, deduplicated.
	if len(tk.Sources) != 2 {
		t.Errorf("expected 2 deduplicated sources, got %d: %v", len(tk.Sources), tk.Sources)
	}
}

func TestAgentSourceDedup(t *testing.T) {
	ctx := context.Background()
	fx := setupFixture(t)

	// Two searches with overlapping hits.
	provider := &scriptedProvider{responses: []scriptedTurn{
		toolTurn(llm.ToolCall{ID: "c1", Name: "kb_search", Arguments: `{"query":"nginx bind failed port 80 already in use"}`}),
		toolTurn(llm.ToolCall{ID: "c2", Name: "kb_search", Arguments: `{"query":"configure ssl_certificate and reload nginx"}`}),
		textTurn("done", 10),
	}}

	engine := NewAgent(provider, fx.searcher, fx.tickets, testConfig())
	tk, err := engine.Run(ctx, "nginx trouble", nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	seen := make(map[ticket.SourceRef]int)
	for _, s := range tk.Sources {
		seen[s]++
	}
	for ref, n := range seen {
		if n != 1 {
			t.Errorf("source %+v appears %d times", ref, n)
		}
	}
	if len(tk.Sources) != 2 {
		t.Errorf("expected 2 distinct sources, got %d", len(tk.Sources))
	}
}

func TestAgentTruncatesPassages(t *testing.T) {
	fx := setupFixture(t)

	var collected []ticket.SourceRef
	tool := &kbSearchTool{
		searcher: fx.searcher,
		topK:     5,
		collect:  func(ref ticket.SourceRef) { collected = append(collected, ref) },
	}

	out, err := tool.Execute(context.Background(), json.RawMessage(`{"query":"nginx port"}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	var passages []struct {
		Text  string `json:"text"`
		Title string `json:"title"`
	}
	if err := json.Unmarshal([]byte(out), &passages); err != nil {
		t.Fatalf("tool result is not JSON: %v", err)
	}
	if len(passages) == 0 {
		t.Fatal("expected passages")
	}
	for _, p := range passages {
		if n := len([]rune(strings.TrimSuffix(p.Text, "..."))); n > 200 {
			t.Errorf("passage exceeds 200 runes: %d", n)
		}
	}
	if len(collected) != len(passages) {
		t.Errorf("collected %d sources for %d passages", len(collected), len(passages))
	}
}

func TestServiceUnknownMode(t *testing.T) {
	fx := setupFixture(t)
	provider := &scriptedProvider{}

	svc := NewService(
		NewWorkflow(provider, fx.searcher, fx.tickets, testConfig()),
		NewAgent(provider, fx.searcher, fx.tickets, testConfig()),
	)

	_, err := svc.Resolve(context.Background(), "q", nil, "oracle")
	if err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestQueryRoute(t *testing.T) {
	fx := setupFixture(t)

	provider := &scriptedProvider{responses: []scriptedTurn{
		{resp: &llm.CompletionResponse{Content: `{"category":"nginx","keywords":[],"severity":"low"}`}},
		textTurn("Restart nginx.", 40),
	}}
	svc := NewService(
		NewWorkflow(provider, fx.searcher, fx.tickets, testConfig()),
		NewAgent(provider, fx.searcher, fx.tickets, testConfig()),
	)

	r := chi.NewRouter()
	RegisterRoutes(r, svc)

	body := strings.NewReader(`{"question":"port already in use","mode":"workflow"}`)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("POST", "/api/support/query", body))
	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp QueryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.TicketID == "" || resp.Answer == "" {
		t.Errorf("incomplete response: %+v", resp)
	}

	// Unknown mode is a caller error.
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("POST", "/api/support/query",
		strings.NewReader(`{"question":"q","mode":"oracle"}`)))
	if rec.Code != 400 {
		t.Errorf("expected 400 for unknown mode, got %d", rec.Code)
	}

	// Missing question is a caller error.
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("POST", "/api/support/query",
		strings.NewReader(`{"mode":"workflow"}`)))
	if rec.Code != 400 {
		t.Errorf("expected 400 for missing question, got %d", rec.Code)
	}
}
