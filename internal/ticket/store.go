package ticket

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/Andasbek/ShkolaAI/internal/db"
)

// Store provides CRUD operations for tickets and their tool logs.
type Store struct {
	db *db.DB
}

// NewStore creates a Store backed by the given database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// Create inserts a new ticket. If t.ID is empty a UUID is generated; the
// generated ID is written back to t.
func (s *Store) Create(ctx context.Context, t *Ticket) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}

	contextJSON, err := json.Marshal(orEmptyMap(t.Context))
	if err != nil {
		return fmt.Errorf("marshalling ticket context: %w", err)
	}
	sourcesJSON, err := json.Marshal(orEmptySlice(t.Sources))
	if err != nil {
		return fmt.Errorf("marshalling ticket sources: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tickets (id, mode, question, context, answer, category, sources, latency_ms, token_usage)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID,
		string(t.Mode),
		t.Question,
		string(contextJSON),
		nullString(t.Answer),
		nullString(t.Category),
		string(sourcesJSON),
		t.LatencyMS,
		t.TokenUsage,
	)
	if err != nil {
		return fmt.Errorf("inserting ticket: %w", err)
	}
	return nil
}

// Update overwrites the mutable fields of an existing ticket.
func (s *Store) Update(ctx context.Context, t *Ticket) error {
	sourcesJSON, err := json.Marshal(orEmptySlice(t.Sources))
	if err != nil {
		return fmt.Errorf("marshalling ticket sources: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE tickets
		SET answer = ?, category = ?, sources = ?, latency_ms = ?, token_usage = ?
		WHERE id = ?`,
		nullString(t.Answer),
		nullString(t.Category),
		string(sourcesJSON),
		t.LatencyMS,
		t.TokenUsage,
		t.ID,
	)
	if err != nil {
		return fmt.Errorf("updating ticket: %w", err)
	}
	return requireRow(res, t.ID)
}

// SetCategory updates only the category, used by the agent's classify tool
// so the classification lands even if the run later fails.
func (s *Store) SetCategory(ctx context.Context, id, category string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE tickets SET category = ? WHERE id = ?`, category, id)
	if err != nil {
		return fmt.Errorf("updating ticket category: %w", err)
	}
	return requireRow(res, id)
}

// Get retrieves a ticket with its tool logs ordered by step, then insertion.
func (s *Store) Get(ctx context.Context, id string) (*Ticket, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, mode, question, context, answer, category, sources, latency_ms, token_usage, created_at
		FROM tickets WHERE id = ?`, id)

	var (
		t           Ticket
		contextJSON string
		sourcesJSON string
		answer      sql.NullString
		category    sql.NullString
	)
	err := row.Scan(&t.ID, &t.Mode, &t.Question, &contextJSON, &answer, &category,
		&sourcesJSON, &t.LatencyMS, &t.TokenUsage, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ticket %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scanning ticket: %w", err)
	}

	t.Answer = answer.String
	t.Category = category.String
	if err := json.Unmarshal([]byte(contextJSON), &t.Context); err != nil {
		return nil, fmt.Errorf("parsing ticket context: %w", err)
	}
	if err := json.Unmarshal([]byte(sourcesJSON), &t.Sources); err != nil {
		return nil, fmt.Errorf("parsing ticket sources: %w", err)
	}

	logs, err := s.listToolLogs(ctx, id)
	if err != nil {
		return nil, err
	}
	t.ToolLogs = logs
	return &t, nil
}

// List returns recent tickets, newest first, without their tool logs.
func (s *Store) List(ctx context.Context, limit int) ([]Ticket, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, mode, question, answer, category, created_at
		FROM tickets ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing tickets: %w", err)
	}
	defer rows.Close()

	var tickets []Ticket
	for rows.Next() {
		var (
			t        Ticket
			answer   sql.NullString
			category sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.Mode, &t.Question, &answer, &category, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning ticket: %w", err)
		}
		t.Answer = answer.String
		t.Category = category.String
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

// AppendToolLog inserts a tool log with an empty output and returns its ID.
// Callers insert before executing the tool, then fill the output in with
// SetToolLogOutput once the tool has run.
func (s *Store) AppendToolLog(ctx context.Context, ticketID string, step int, toolName, input string) (string, error) {
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tool_logs (id, ticket_id, step, tool_name, tool_input)
		VALUES (?, ?, ?, ?, ?)`,
		id, ticketID, step, toolName, input,
	)
	if err != nil {
		return "", fmt.Errorf("inserting tool log: %w", err)
	}
	return id, nil
}

// SetToolLogOutput fills in a tool log's output. The output is write-once;
// a second call for the same log fails.
func (s *Store) SetToolLogOutput(ctx context.Context, logID, output string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tool_logs SET tool_output = ? WHERE id = ? AND tool_output IS NULL`,
		output, logID,
	)
	if err != nil {
		return fmt.Errorf("updating tool log: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking tool log update: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("tool log %s missing or output already set", logID)
	}
	return nil
}

func (s *Store) listToolLogs(ctx context.Context, ticketID string) ([]ToolLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ticket_id, step, tool_name, tool_input, tool_output
		FROM tool_logs WHERE ticket_id = ? ORDER BY step, rowid`, ticketID)
	if err != nil {
		return nil, fmt.Errorf("listing tool logs: %w", err)
	}
	defer rows.Close()

	var logs []ToolLog
	for rows.Next() {
		var (
			tl     ToolLog
			output sql.NullString
		)
		if err := rows.Scan(&tl.ID, &tl.TicketID, &tl.Step, &tl.ToolName, &tl.Input, &output); err != nil {
			return nil, fmt.Errorf("scanning tool log: %w", err)
		}
		tl.Output = output.String
		logs = append(logs, tl)
	}
	return logs, rows.Err()
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("ticket %s: %w", id, ErrNotFound)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func orEmptyMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func orEmptySlice(s []SourceRef) []SourceRef {
	if s == nil {
		return []SourceRef{}
	}
	return s
}
