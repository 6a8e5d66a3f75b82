package resolve

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Andasbek/ShkolaAI/internal/ticket"
)

// QueryRequest is the body of POST /api/support/query.
type QueryRequest struct {
	Question string            `json:"question"`
	Context  map[string]string `json:"context"`
	Mode     string            `json:"mode"`
}

// QueryResponse is the reply to a resolved support query.
type QueryResponse struct {
	TicketID string             `json:"ticket_id"`
	Mode     string             `json:"mode"`
	Answer   string             `json:"answer"`
	Category string             `json:"category"`
	Sources  []ticket.SourceRef `json:"sources"`
}

// RegisterRoutes mounts the resolution endpoint under /api/support.
func RegisterRoutes(r chi.Router, svc *Service) {
	r.Route("/api/support", func(r chi.Router) {
		r.Post("/query", handleQuery(svc))
	})
}

func handleQuery(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req QueryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if req.Question == "" {
			http.Error(w, "question is required", http.StatusBadRequest)
			return
		}
		if req.Mode == "" {
			req.Mode = string(ticket.ModeWorkflow)
		}

		tk, err := svc.Resolve(r.Context(), req.Question, req.Context, req.Mode)
		if err != nil {
			if errors.Is(err, ErrUnknownMode) {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, ticketToResponse(tk))
	}
}

func ticketToResponse(tk *ticket.Ticket) QueryResponse {
	sources := tk.Sources
	if sources == nil {
		sources = []ticket.SourceRef{}
	}
	return QueryResponse{
		TicketID: tk.ID,
		Mode:     string(tk.Mode),
		Answer:   tk.Answer,
		Category: tk.Category,
		Sources:  sources,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
