package resolve

import (
	"context"
	"errors"
	"fmt"

	"github.com/Andasbek/ShkolaAI/internal/ticket"
)

// ErrUnknownMode marks a resolve request naming a strategy that does not
// exist.
var ErrUnknownMode = errors.New("unknown resolution mode")

// Service dispatches resolution requests to the workflow or agent engine.
type Service struct {
	workflow *Workflow
	agent    *Agent
}

// NewService creates a Service over the two engines.
func NewService(workflow *Workflow, agent *Agent) *Service {
	return &Service{workflow: workflow, agent: agent}
}

// Resolve runs the requested strategy and returns the resulting ticket.
func (s *Service) Resolve(ctx context.Context, question string, userContext map[string]string, mode string) (*ticket.Ticket, error) {
	switch ticket.Mode(mode) {
	case ticket.ModeWorkflow:
		return s.workflow.Run(ctx, question, userContext)
	case ticket.ModeAgent:
		return s.agent.Run(ctx, question, userContext)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
}
