package team

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/roundtable-ai/roundtable/a2a"
	"github.com/roundtable-ai/roundtable/observability"
	"github.com/roundtable-ai/roundtable/session"
)

// ============================================================================
// DELEGATION ENGINE
// ============================================================================

// ForwardedByKey is the metadata key stamped on responses that passed
// through the supervisor.
const ForwardedByKey = "forwarded_by"

// DelegationResult reports how a task was (or failed to be) delivered.
type DelegationResult struct {
	Agent     string             `json:"agent"`
	Attempted []string           `json:"attempted"`
	Decision  *SelectionDecision `json:"decision,omitempty"`
	Response  *a2a.TaskResponse  `json:"-"`
	Latency   time.Duration      `json:"latency"`
}

// Engine routes one inbound task to a remote agent: it resolves session
// stickiness, runs selection, forwards, and retries exactly once on a
// delivery failure (unreachable or timeout) with the failed agent
// excluded from reselection.
type Engine struct {
	name     string
	registry *AgentRegistry
	selector *Selector
	sessions *session.Bridge
	metrics  *observability.Metrics
	tracer   *observability.Tracer
	logger   *slog.Logger
}

// NewEngine creates a delegation engine. name identifies the supervisor
// in forwarded metadata. metrics and tracer may be nil.
func NewEngine(name string, reg *AgentRegistry, selector *Selector, sessions *session.Bridge,
	metrics *observability.Metrics, tracer *observability.Tracer, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		name:     name,
		registry: reg,
		selector: selector,
		sessions: sessions,
		metrics:  metrics,
		tracer:   tracer,
		logger:   logger,
	}
}

// Execute delegates a task and blocks until the remote agent finishes.
func (e *Engine) Execute(ctx context.Context, req *a2a.TaskRequest) (*DelegationResult, error) {
	ctx, span := e.tracer.StartTask(ctx, req.ID, req.SessionID)
	defer span.End()

	decision, err := e.decide(ctx, req)
	if err != nil {
		e.tracer.RecordError(span, err)
		return nil, err
	}
	span.SetAttributes(
		attribute.String(observability.AttrAgentName, decision.Agent),
		attribute.String(observability.AttrSelectionSource, string(decision.Source)),
	)

	result := &DelegationResult{Decision: decision}
	start := time.Now()

	resp, err := e.forward(ctx, decision.Agent, req, false)
	result.Attempted = append(result.Attempted, decision.Agent)
	if retryable(err) {
		resp, err = e.retry(ctx, req, decision, result)
	}

	result.Latency = time.Since(start)
	if err != nil {
		e.tracer.RecordError(span, err)
		return result, err
	}

	result.Agent = result.Attempted[len(result.Attempted)-1]
	result.Response = resp
	e.finalize(ctx, req, result)
	return result, nil
}

// ExecuteStream delegates a task and streams the remote agent's status
// events. The returned channel closes after its final event. A delivery
// failure before any remote event still gets the one-hop fallback; once
// the remote stream has started, failures surface to the caller as a
// final failed event.
func (e *Engine) ExecuteStream(ctx context.Context, req *a2a.TaskRequest) (<-chan a2a.StatusEvent, error) {
	ctx, span := e.tracer.StartTask(ctx, req.ID, req.SessionID)

	decision, err := e.decide(ctx, req)
	if err != nil {
		e.tracer.RecordError(span, err)
		span.End()
		return nil, err
	}
	span.SetAttributes(
		attribute.String(observability.AttrAgentName, decision.Agent),
		attribute.String(observability.AttrSelectionSource, string(decision.Source)),
	)

	result := &DelegationResult{Decision: decision}
	start := time.Now()

	remote, agent, err := e.openStream(ctx, decision.Agent, req, false)
	result.Attempted = append(result.Attempted, decision.Agent)
	if retryable(err) {
		remote, agent, err = e.retryStream(ctx, req, decision, result)
	}
	if err != nil {
		e.tracer.RecordError(span, err)
		span.End()
		return nil, err
	}
	result.Agent = agent

	out := make(chan a2a.StatusEvent, 8)
	e.metrics.StreamStarted()
	go func() {
		defer close(out)
		defer span.End()
		defer e.metrics.StreamEnded()

		out <- a2a.StatusEvent{
			TaskID: req.ID,
			Status: a2a.TaskStatus{
				State:     a2a.TaskStateWorking,
				Message:   ptrMessage(a2a.NewTextMessage("assistant", fmt.Sprintf("Delegating to %s agent...", agent))),
				Timestamp: time.Now(),
			},
		}

		outcome := string(a2a.TaskStateFailed)
		sawFinal := false
		for ev := range remote {
			ev.TaskID = req.ID
			if ev.Final {
				sawFinal = true
				outcome = string(ev.Status.State)
				if ev.Status.State == a2a.TaskStateCompleted {
					result.Latency = time.Since(start)
					result.Response = &a2a.TaskResponse{
						ID:        req.ID,
						SessionID: req.SessionID,
						Status:    ev.Status,
					}
					e.finalize(ctx, req, result)
				}
			}
			out <- ev
		}
		if !sawFinal {
			out <- a2a.StatusEvent{
				TaskID: req.ID,
				Final:  true,
				Status: a2a.TaskStatus{
					State:     a2a.TaskStateFailed,
					Error:     "remote stream ended without a terminal event",
					Timestamp: time.Now(),
				},
			}
		}
		e.metrics.ObserveDelegation(agent, outcome, time.Since(start).Seconds())
	}()
	return out, nil
}

// decide resolves session stickiness and runs selection.
func (e *Engine) decide(ctx context.Context, req *a2a.TaskRequest) (*SelectionDecision, error) {
	sessionAgent := ""
	if e.sessions != nil {
		agent, found, err := e.sessions.Resolve(ctx, req.SessionID)
		if err != nil {
			e.logger.Warn("session lookup failed", "session", req.SessionID, "error", err)
		} else if found {
			sessionAgent = agent
		}
	}

	selCtx, span := e.tracer.Start(ctx, observability.SpanSelection)
	defer span.End()

	decision, err := e.selector.Select(selCtx, req.Message.Text(), sessionAgent, nil)
	if err != nil {
		e.tracer.RecordError(span, err)
		return nil, err
	}
	span.SetAttributes(
		attribute.String(observability.AttrAgentName, decision.Agent),
		attribute.String(observability.AttrSelectionSource, string(decision.Source)),
	)
	e.metrics.ObserveSelection(string(decision.Source))
	return decision, nil
}

// forward sends the task to one agent, blocking until terminal.
func (e *Engine) forward(ctx context.Context, agent string, req *a2a.TaskRequest, fallback bool) (*a2a.TaskResponse, error) {
	ctx, span := e.tracer.StartDelegation(ctx, agent, fallback)
	defer span.End()

	conn, err := e.registry.Connection(agent)
	if err != nil {
		return nil, err
	}

	outbound, err := e.outbound(ctx, agent, req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := conn.Send(ctx, outbound)
	elapsed := time.Since(start)

	if err != nil {
		code := a2a.CodeOf(err)
		span.SetAttributes(attribute.String(observability.AttrErrorCode, string(code)))
		e.tracer.RecordError(span, err)
		e.metrics.ObserveDelegation(agent, string(code), elapsed.Seconds())
		if code == a2a.CodeUnreachable || code == a2a.CodeTimeout {
			e.registry.MarkStatus(agent, StatusDisconnected)
		}
		return resp, err
	}

	e.registry.MarkStatus(agent, StatusConnected)
	e.metrics.ObserveDelegation(agent, string(resp.Status.State), elapsed.Seconds())
	return resp, nil
}

// retry reruns selection with the failed agent excluded and forwards once
// more. Exactly one hop: a second delivery failure is final.
func (e *Engine) retry(ctx context.Context, req *a2a.TaskRequest, decision *SelectionDecision, result *DelegationResult) (*a2a.TaskResponse, error) {
	failed := result.Attempted[len(result.Attempted)-1]
	next, err := e.selector.Select(ctx, req.Message.Text(), "", map[string]bool{failed: true})
	if err != nil {
		return nil, err
	}

	e.logger.Info("delegation fallback",
		"failed", failed, "fallback", next.Agent, "task", req.ID)
	e.metrics.ObserveFallback()

	result.Attempted = append(result.Attempted, next.Agent)
	return e.forward(ctx, next.Agent, req, true)
}

// openStream opens a streaming delegation to one agent.
func (e *Engine) openStream(ctx context.Context, agent string, req *a2a.TaskRequest, fallback bool) (<-chan a2a.StatusEvent, string, error) {
	conn, err := e.registry.Connection(agent)
	if err != nil {
		return nil, agent, err
	}
	outbound, err := e.outbound(ctx, agent, req)
	if err != nil {
		return nil, agent, err
	}
	ch, err := conn.Stream(ctx, outbound)
	if err != nil {
		code := a2a.CodeOf(err)
		if code == a2a.CodeUnreachable || code == a2a.CodeTimeout {
			e.registry.MarkStatus(agent, StatusDisconnected)
		}
		return nil, agent, err
	}
	return ch, agent, nil
}

func (e *Engine) retryStream(ctx context.Context, req *a2a.TaskRequest, decision *SelectionDecision, result *DelegationResult) (<-chan a2a.StatusEvent, string, error) {
	failed := result.Attempted[len(result.Attempted)-1]
	next, err := e.selector.Select(ctx, req.Message.Text(), "", map[string]bool{failed: true})
	if err != nil {
		return nil, "", err
	}

	e.logger.Info("delegation fallback",
		"failed", failed, "fallback", next.Agent, "task", req.ID)
	e.metrics.ObserveFallback()

	result.Attempted = append(result.Attempted, next.Agent)
	return e.openStream(ctx, next.Agent, req, true)
}

// outbound builds the request forwarded to an agent: the remote session
// id replaces the inbound one and the supervisor stamps its name.
func (e *Engine) outbound(ctx context.Context, agent string, req *a2a.TaskRequest) (*a2a.TaskRequest, error) {
	remoteID := ""
	if e.sessions != nil {
		var err error
		remoteID, err = e.sessions.RemoteID(ctx, req.SessionID, agent)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve remote session: %w", err)
		}
	}

	out := *req
	out.SessionID = remoteID
	out.Metadata = make(map[string]any, len(req.Metadata)+1)
	for k, v := range req.Metadata {
		out.Metadata[k] = v
	}
	out.Metadata[ForwardedByKey] = e.name
	return &out, nil
}

// finalize binds the session to the agent that completed the task and
// stamps response metadata.
func (e *Engine) finalize(ctx context.Context, req *a2a.TaskRequest, result *DelegationResult) {
	if e.sessions != nil && req.SessionID != "" {
		if _, err := e.sessions.Bind(ctx, req.SessionID, result.Agent); err != nil {
			e.logger.Warn("failed to bind session",
				"session", req.SessionID, "agent", result.Agent, "error", err)
		}
	}
	if result.Response != nil {
		if result.Response.Metadata == nil {
			result.Response.Metadata = make(map[string]any, 1)
		}
		result.Response.Metadata[ForwardedByKey] = e.name
	}
}

// retryable reports whether a delivery failure qualifies for the one-hop
// fallback.
func retryable(err error) bool {
	if err == nil {
		return false
	}
	code := a2a.CodeOf(err)
	return code == a2a.CodeUnreachable || code == a2a.CodeTimeout
}

func ptrMessage(m a2a.Message) *a2a.Message {
	return &m
}
