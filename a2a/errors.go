package a2a

import (
	"errors"
	"fmt"
)

// ErrorCode classifies per-call transport and remote failures.
type ErrorCode string

const (
	// CodeUnreachable marks network-level failures reaching an agent.
	CodeUnreachable ErrorCode = "unreachable"
	// CodeTimeout marks calls that exceeded the configured per-call timeout.
	CodeTimeout ErrorCode = "timeout"
	// CodeRemoteTask marks a task failure reported by the remote agent.
	CodeRemoteTask ErrorCode = "remote_task_error"
	// CodeInvalidDescriptor marks a malformed capability payload.
	CodeInvalidDescriptor ErrorCode = "invalid_descriptor"
)

// Error is a classified A2A transport error. Remote-reported task failures
// carry the remote's error payload in Message.
type Error struct {
	Code    ErrorCode
	Agent   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	agent := e.Agent
	if agent == "" {
		agent = "agent"
	}
	if e.Err != nil {
		return fmt.Sprintf("[a2a:%s] %s: %s: %v", e.Code, agent, e.Message, e.Err)
	}
	return fmt.Sprintf("[a2a:%s] %s: %s", e.Code, agent, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a classified A2A error.
func NewError(code ErrorCode, agent, message string, err error) *Error {
	return &Error{Code: code, Agent: agent, Message: message, Err: err}
}

// CodeOf extracts the error code from err, or "" when err is not an A2A error.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
