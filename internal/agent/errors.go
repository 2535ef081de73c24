// File: internal/agent/errors.go
package agent

import (
	"errors"
	"fmt"
)

// Sentinel errors for rejected calls. These are fatal to the call that made
// them, never to the running task.
var (
	// ErrAlreadyRunning is returned by Start when a task is in flight.
	ErrAlreadyRunning = errors.New("agent: a task is already running")
	// ErrUnknownConfirmation is returned by Confirm when the id does not
	// match the currently pending request, or none is pending.
	ErrUnknownConfirmation = errors.New("agent: no matching pending confirmation")
	// ErrInvalidTransition is wrapped by the state machine for any
	// (state, event) pair that is not explicitly allowed.
	ErrInvalidTransition = errors.New("agent: invalid state transition")
)

// FailureCode is a stable, classifiable reason for a terminal task failure.
// Using a custom type ensures only predefined constants can be used where a
// FailureCode is expected.
type FailureCode string

const (
	FailGateway       FailureCode = "GATEWAY_ERROR"
	FailMalformed     FailureCode = "MALFORMED_ACTION"
	FailExecutor      FailureCode = "EXECUTOR_ERROR"
	FailStepLimit     FailureCode = "STEP_LIMIT_EXCEEDED"
	FailUserStop      FailureCode = "USER_STOP"
	FailUserDenied    FailureCode = "USER_DENIED"
	FailAgentReported FailureCode = "AGENT_REPORTED"
)

// TaskError carries a failure code alongside the human-readable message that
// ends up in AgentState.Error and TaskResult.Message.
type TaskError struct {
	Code    FailureCode
	Message string
	cause   error
}

func (e *TaskError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *TaskError) Unwrap() error { return e.cause }

// taskErr builds a TaskError with an optional underlying cause.
func taskErr(code FailureCode, cause error, format string, args ...any) *TaskError {
	return &TaskError{Code: code, Message: fmt.Sprintf(format, args...), cause: cause}
}

// FailureCodeOf extracts the failure code from an error chain, or "" when the
// error is not task-terminal.
func FailureCodeOf(err error) FailureCode {
	var te *TaskError
	if errors.As(err, &te) {
		return te.Code
	}
	return ""
}
