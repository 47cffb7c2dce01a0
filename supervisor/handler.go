// Package supervisor exposes the delegation engine behind the same task
// protocol the remote agents speak, so the supervisor is itself just
// another agent to its callers.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/roundtable-ai/roundtable/a2a"
	"github.com/roundtable-ai/roundtable/team"
)

// Version reported on the supervisor's agent card.
const Version = "1.0.0"

// Handler terminates inbound tasks: it fills in missing ids, runs the
// delegation engine, and converts engine failures into failed task
// responses instead of transport errors.
type Handler struct {
	name        string
	description string
	streaming   bool
	engine      *team.Engine
	manager     *team.Manager
	logger      *slog.Logger
}

// NewHandler creates a supervisor handler. streaming controls whether the
// supervisor advertises and serves incremental events; when false, stream
// requests still work but collapse to a single final event.
func NewHandler(name, description string, streaming bool, engine *team.Engine, manager *team.Manager, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		name:        name,
		description: description,
		streaming:   streaming,
		engine:      engine,
		manager:     manager,
		logger:      logger,
	}
}

// Card returns the supervisor's own agent card. Skills advertise the
// current team so callers can see what the supervisor can route to.
func (h *Handler) Card() *a2a.AgentCard {
	card := &a2a.AgentCard{
		Name:         h.name,
		Description:  h.description,
		Version:      Version,
		Capabilities: a2a.AgentCapabilities{Streaming: h.streaming},
		InputModes:   []string{"text"},
		OutputModes:  []string{"text"},
	}
	for _, member := range h.manager.List().Agents {
		card.Skills = append(card.Skills, a2a.AgentSkill{
			ID:          member.Name,
			Name:        member.Name,
			Description: member.Description,
		})
	}
	return card
}

// Handle processes a blocking task.
func (h *Handler) Handle(ctx context.Context, req *a2a.TaskRequest) *a2a.TaskResponse {
	h.normalize(req)

	result, err := h.engine.Execute(ctx, req)
	if err != nil {
		h.logger.Error("task delegation failed",
			"task", req.ID, "error", err)
		return h.failedResponse(req, result, err)
	}

	resp := result.Response
	resp.ID = req.ID
	resp.SessionID = req.SessionID
	h.logger.Info("task completed",
		"task", req.ID, "agent", result.Agent, "latency", result.Latency)
	return resp
}

// HandleStream processes a streaming task. The returned channel always
// carries at least one event and closes after a final one; delegation
// failures become a final failed event.
func (h *Handler) HandleStream(ctx context.Context, req *a2a.TaskRequest) <-chan a2a.StatusEvent {
	h.normalize(req)

	if !h.streaming {
		resp := h.Handle(ctx, req)
		out := make(chan a2a.StatusEvent, 1)
		out <- a2a.StatusEvent{TaskID: resp.ID, Status: resp.Status, Final: true}
		close(out)
		return out
	}

	events, err := h.engine.ExecuteStream(ctx, req)
	if err != nil {
		h.logger.Error("streaming delegation failed",
			"task", req.ID, "error", err)
		out := make(chan a2a.StatusEvent, 1)
		out <- a2a.StatusEvent{
			TaskID: req.ID,
			Final:  true,
			Status: a2a.TaskStatus{
				State:     a2a.TaskStateFailed,
				Message:   h.errorMessage(err),
				Error:     err.Error(),
				Timestamp: time.Now(),
			},
		}
		close(out)
		return out
	}
	return events
}

// normalize fills in the ids callers may omit.
func (h *Handler) normalize(req *a2a.TaskRequest) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
}

// failedResponse builds the failed task status, carrying the error code
// and the agents that were attempted so callers can see what was tried.
func (h *Handler) failedResponse(req *a2a.TaskRequest, result *team.DelegationResult, err error) *a2a.TaskResponse {
	metadata := map[string]any{"error_code": errorCode(err)}
	if result != nil && len(result.Attempted) > 0 {
		metadata["attempted_agents"] = result.Attempted
	}
	return &a2a.TaskResponse{
		ID:        req.ID,
		SessionID: req.SessionID,
		Metadata:  metadata,
		Status: a2a.TaskStatus{
			State:     a2a.TaskStateFailed,
			Message:   h.errorMessage(err),
			Error:     err.Error(),
			Timestamp: time.Now(),
		},
	}
}

// errorCode maps a delegation error onto its taxonomy code.
func errorCode(err error) string {
	if code := team.CodeOf(err); code != "" {
		return string(code)
	}
	if code := a2a.CodeOf(err); code != "" {
		return string(code)
	}
	return "internal_error"
}

// errorMessage renders the user-facing text for a delegation failure.
func (h *Handler) errorMessage(err error) *a2a.Message {
	text := fmt.Sprintf("Error delegating task: %s", err.Error())
	if team.CodeOf(err) == team.CodeNoAgents {
		text = "No suitable agent available to handle this request."
	}
	msg := a2a.NewTextMessage("assistant", text)
	return &msg
}
