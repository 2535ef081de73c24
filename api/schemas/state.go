// File: api/schemas/state.go
package schemas

import "time"

// AgentStatus is the agent's lifecycle state. Exactly one status holds at any
// instant; it is owned exclusively by the orchestration loop's state machine.
type AgentStatus string

const (
	StatusIdle                 AgentStatus = "idle"
	StatusRunning              AgentStatus = "running"
	StatusPaused               AgentStatus = "paused"
	StatusAwaitingConfirmation AgentStatus = "awaiting_confirmation"
	StatusFinished             AgentStatus = "finished"
	StatusFailed               AgentStatus = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s AgentStatus) Terminal() bool {
	return s == StatusFinished || s == StatusFailed
}

// AgentState is an immutable snapshot of the agent. A new snapshot replaces
// the previous one after every status-affecting event; callers only ever see
// fully-applied state.
type AgentState struct {
	Status     AgentStatus `json:"status"`
	Task       string      `json:"task,omitempty"`
	Step       int         `json:"current_step"`
	TotalSteps int         `json:"total_steps,omitempty"`
	LastAction *Action     `json:"last_action,omitempty"`
	Progress   string      `json:"progress_message,omitempty"`
	Error      string      `json:"error,omitempty"`
	// ErrorCode is a stable, classifiable failure reason (e.g.
	// "STEP_LIMIT_EXCEEDED"), populated alongside Error on terminal failures.
	ErrorCode string `json:"error_code,omitempty"`
}

// ConfirmationRequest gates a high-impact action behind an external
// approve/deny decision. At most one request is outstanding per task.
type ConfirmationRequest struct {
	ID          string         `json:"id"`
	Description string         `json:"description"`
	Impact      ImpactLevel    `json:"impact_level"`
	Pending     Action         `json:"pending_action"`
	Context     map[string]any `json:"context,omitempty"`
}

// TaskResult is constructed exactly once, when the loop reaches a terminal
// status, and returned to whoever started the task.
type TaskResult struct {
	Success    bool          `json:"success"`
	Message    string        `json:"message"`
	StepsTaken int           `json:"steps_taken"`
	Duration   time.Duration `json:"duration"`
	FinalState *AgentState   `json:"final_state,omitempty"`
}

// Context is an open key-value document (preferences, memory, device info)
// passed opaquely from the caller to the inference service on every step.
type Context map[string]any

// StepRecord captures the outcome of one completed step. A bounded window of
// records is forwarded to the inference service as step history.
type StepRecord struct {
	Step   int       `json:"step"`
	Action Action    `json:"action"`
	Status string    `json:"status"` // "success", "failed", "denied" or "skipped"
	Error  string    `json:"error,omitempty"`
	At     time.Time `json:"at"`
}

// ActionEvent is delivered to the action-executed notification sink after
// each step, in step order, exactly once per event.
type ActionEvent struct {
	Step   int    `json:"step"`
	Action Action `json:"action"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Resolution is a device pixel resolution captured at step start.
type Resolution struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Valid reports whether both dimensions are positive.
func (r Resolution) Valid() bool { return r.Width > 0 && r.Height > 0 }

// Observation is a captured screen image plus the device resolution it was
// taken at, used as input to inference.
type Observation struct {
	PNG        []byte     `json:"-"`
	Resolution Resolution `json:"resolution"`
	CapturedAt time.Time  `json:"captured_at"`
}
