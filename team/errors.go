package team

import (
	"errors"
	"fmt"
)

// ============================================================================
// ERROR TYPES
// ============================================================================

// ErrorCode classifies team-level failures so transport handlers can map
// them onto status codes without string matching.
type ErrorCode string

const (
	// CodeConnectionFailed means the agent's card could not be fetched or
	// validated at registration time.
	CodeConnectionFailed ErrorCode = "connection_failed"

	// CodeNameConflict means an exact-name registration collided with an
	// existing agent.
	CodeNameConflict ErrorCode = "name_conflict"

	// CodeNotFound means the named agent is not registered.
	CodeNotFound ErrorCode = "not_found"

	// CodeProtected means the operation targeted a configured agent that
	// only configuration reload may remove.
	CodeProtected ErrorCode = "protected"

	// CodeNoAgents means the team has no agents to delegate to.
	CodeNoAgents ErrorCode = "no_agents_available"

	// CodeInvalidRequest means the management request itself was
	// malformed, like an oversized batch.
	CodeInvalidRequest ErrorCode = "invalid_request"
)

// Error is the team package error type.
type Error struct {
	Code    ErrorCode
	Agent   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Agent != "" {
		return fmt.Sprintf("[%s] agent %s: %s", e.Code, e.Agent, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a team error.
func NewError(code ErrorCode, agent, message string, err error) *Error {
	return &Error{Code: code, Agent: agent, Message: message, Err: err}
}

// CodeOf extracts the team error code from an error chain, or "" when the
// chain carries none.
func CodeOf(err error) ErrorCode {
	var te *Error
	if errors.As(err, &te) {
		return te.Code
	}
	return ""
}
