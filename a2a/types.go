// Package a2a implements the agent-to-agent (A2A) wire contract used to
// exchange tasks, sessions, and streamed status updates with remote agents.
package a2a

import (
	"strings"
	"time"
)

// ============================================================================
// AGENT CARD - Agent Discovery & Capability Advertisement
// ============================================================================

// AgentCard is a remote agent's self-reported capability descriptor,
// served at {base}/.well-known/agent.json.
type AgentCard struct {
	Name         string            `json:"name"`
	Description  string            `json:"description"`
	URL          string            `json:"url,omitempty"`
	Version      string            `json:"version,omitempty"`
	Capabilities AgentCapabilities `json:"capabilities"`
	Skills       []AgentSkill      `json:"skills,omitempty"`
	InputModes   []string          `json:"defaultInputModes,omitempty"`
	OutputModes  []string          `json:"defaultOutputModes,omitempty"`
}

// AgentCapabilities advertises optional protocol features.
type AgentCapabilities struct {
	Streaming bool `json:"streaming"`
}

// AgentSkill describes one declared skill of an agent.
type AgentSkill struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// Validate reports whether the card is usable as a capability descriptor.
func (c *AgentCard) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return &Error{Code: CodeInvalidDescriptor, Message: "agent card has no name"}
	}
	return nil
}

// ============================================================================
// TASK ENVELOPE
// ============================================================================

// Message carries conversational content between caller and agent.
type Message struct {
	Role     string                 `json:"role"`
	Parts    []Part                 `json:"parts"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Part is one unit of message content. Only text parts are produced by
// this implementation; unknown part types are preserved on passthrough.
type Part struct {
	Type string `json:"type,omitempty"`
	Text string `json:"text,omitempty"`
}

// NewTextMessage builds a single-part text message.
func NewTextMessage(role, text string) Message {
	return Message{
		Role:  role,
		Parts: []Part{{Type: "text", Text: text}},
	}
}

// Text concatenates the text content of all parts.
func (m Message) Text() string {
	var sb strings.Builder
	for _, p := range m.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String()
}

// TaskRequest is the inbound task envelope.
type TaskRequest struct {
	ID                  string                 `json:"id"`
	SessionID           string                 `json:"sessionId,omitempty"`
	Message             Message                `json:"message"`
	AcceptedOutputModes []string               `json:"acceptedOutputModes,omitempty"`
	Metadata            map[string]interface{} `json:"metadata,omitempty"`
}

// TaskState enumerates the lifecycle states of a task.
type TaskState string

const (
	TaskStateSubmitted TaskState = "submitted"
	TaskStateWorking   TaskState = "working"
	TaskStateCompleted TaskState = "completed"
	TaskStateFailed    TaskState = "failed"
	TaskStateCanceled  TaskState = "canceled"
)

// Terminal reports whether the state ends a task.
func (s TaskState) Terminal() bool {
	switch s {
	case TaskStateCompleted, TaskStateFailed, TaskStateCanceled:
		return true
	}
	return false
}

// TaskStatus is the state of a task plus an optional agent message.
type TaskStatus struct {
	State     TaskState `json:"state"`
	Message   *Message  `json:"message,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// TaskResponse is the response envelope, mirroring the request shape.
type TaskResponse struct {
	ID        string                 `json:"id"`
	SessionID string                 `json:"sessionId,omitempty"`
	Status    TaskStatus             `json:"status"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// StatusEvent is one incremental update of a streamed task. A stream is a
// finite ordered sequence of events terminated by an event whose Final flag
// is set (its Status.State is then terminal).
type StatusEvent struct {
	TaskID string     `json:"taskId"`
	Status TaskStatus `json:"status"`
	Final  bool       `json:"final"`
}
