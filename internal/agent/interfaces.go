// File: internal/agent/interfaces.go
package agent

import (
	"context"

	"github.com/quantum-agi/sdk-go/api/schemas"
)

// Gateway is the remote inference service: given an observation and running
// context it proposes the next action. Propose must be safe to retry on
// transient failure; the loop applies bounded retries with backoff around it.
type Gateway interface {
	// StartSession opens a session for one task and returns its id.
	StartSession(ctx context.Context, task string, taskCtx schemas.Context) (string, error)
	// Propose asks for the next action for the given step.
	Propose(ctx context.Context, sessionID string, req schemas.InferenceRequest) (schemas.Proposal, error)
	// FinishSession closes the session as finished or failed. Best effort;
	// the loop ignores errors here.
	FinishSession(ctx context.Context, sessionID string, success bool, reason string) error
}

// Executor performs actions against the real device. The loop never assumes
// success beyond the returned error, and never cancels an Execute call
// mid-flight; both Capture and Execute are expected to bound their own work
// by the supplied context's deadline.
type Executor interface {
	// Capture grabs a screenshot plus the device resolution it was taken at.
	Capture(ctx context.Context) (schemas.Observation, error)
	// Resolution reports the current device resolution without capturing.
	Resolution(ctx context.Context) (schemas.Resolution, error)
	// Execute performs one action whose coordinates are already in device
	// pixels.
	Execute(ctx context.Context, action schemas.Action) error
}

// Recorder persists run and step history. Implementations must tolerate
// best-effort usage; recording failures never fail the task.
type Recorder interface {
	RecordRun(ctx context.Context, run RunRecord) error
	RecordStep(ctx context.Context, runID string, rec schemas.StepRecord) error
}

// RunRecord summarizes one completed task run.
type RunRecord struct {
	ID         string
	Task       string
	Success    bool
	Message    string
	StepsTaken int
	DurationMS int64
}

// ImpactPolicy classifies a proposed action's impact level. Actions mapped to
// medium or high are gated behind confirmation. A nil policy gates nothing
// beyond explicit confirm actions.
type ImpactPolicy func(schemas.Action) schemas.ImpactLevel

// Hooks is the fixed set of typed notification sinks the client exposes.
// All hooks are optional and are invoked synchronously from the loop
// goroutine, in step order, exactly once per event.
type Hooks struct {
	OnStatusChange         func(schemas.AgentState)
	OnConfirmationRequired func(schemas.ConfirmationRequest)
	OnActionExecuted       func(schemas.ActionEvent)
}
