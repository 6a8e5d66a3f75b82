package server

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/Andasbek/ShkolaAI/internal/ticket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsRequest is the incoming WebSocket message format.
type wsRequest struct {
	Question string            `json:"question"`
	Context  map[string]string `json:"context"`
	Mode     string            `json:"mode"`
}

// wsResponse is the outgoing WebSocket message format.
type wsResponse struct {
	Type     string             `json:"type"` // "ticket" or "error"
	TicketID string             `json:"ticket_id,omitempty"`
	Mode     string             `json:"mode,omitempty"`
	Answer   string             `json:"answer,omitempty"`
	Category string             `json:"category,omitempty"`
	Sources  []ticket.SourceRef `json:"sources,omitempty"`
	Error    string             `json:"error,omitempty"`
}

// handleWebSocket resolves support questions over a long-lived connection,
// one question per message.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("server: websocket upgrade: %v", err)
		return
	}
	defer conn.Close()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("server: websocket read: %v", err)
			}
			return
		}

		var req wsRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			s.sendWS(conn, wsResponse{Type: "error", Error: "invalid message format"})
			continue
		}
		if req.Question == "" {
			s.sendWS(conn, wsResponse{Type: "error", Error: "question is required"})
			continue
		}
		if req.Mode == "" {
			req.Mode = string(ticket.ModeWorkflow)
		}

		tk, err := s.deps.Resolver.Resolve(r.Context(), req.Question, req.Context, req.Mode)
		if err != nil {
			s.sendWS(conn, wsResponse{Type: "error", Error: err.Error()})
			continue
		}

		s.sendWS(conn, wsResponse{
			Type:     "ticket",
			TicketID: tk.ID,
			Mode:     string(tk.Mode),
			Answer:   tk.Answer,
			Category: tk.Category,
			Sources:  tk.Sources,
		})
	}
}

func (s *Server) sendWS(conn *websocket.Conn, resp wsResponse) {
	if err := conn.WriteJSON(resp); err != nil {
		log.Printf("server: websocket write: %v", err)
	}
}
