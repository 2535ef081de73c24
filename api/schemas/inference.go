// File: api/schemas/inference.go
package schemas

// Wire types for the remote inference service. The transport is plain HTTPS
// against the session API; these structs define the request/response shapes
// independent of any particular client implementation.

// StartSessionRequest opens an agent session for one task.
type StartSessionRequest struct {
	Task     string  `json:"task"`
	DeviceID string  `json:"device_id,omitempty"`
	Context  Context `json:"context,omitempty"`
}

// StartSessionResponse identifies the created session.
type StartSessionResponse struct {
	ID        string `json:"id"`
	Task      string `json:"task"`
	Status    string `json:"status"`
	StepCount int    `json:"step_count"`
}

// InferenceRequest asks the service for the next action given the current
// observation. The screenshot is letterboxed into the normalized space before
// encoding; OriginalWidth/Height carry the device resolution it came from.
type InferenceRequest struct {
	Task             string       `json:"task"`
	ScreenshotBase64 string       `json:"screenshot_base64"`
	OriginalWidth    int          `json:"original_width"`
	OriginalHeight   int          `json:"original_height"`
	Context          Context      `json:"context,omitempty"`
	History          []StepRecord `json:"history,omitempty"`
	StepNumber       int          `json:"step_number"`
	// Interrupt is a one-shot user note injected by Client.Interrupt. It is
	// consumed by exactly one request.
	Interrupt string `json:"interrupt,omitempty"`
	// Feedback reports why the previous proposal was rejected (e.g. failed
	// validation), giving the model a chance to correct itself once.
	Feedback string `json:"feedback,omitempty"`
}

// ProposalOutcome distinguishes a usable action from an explicit refusal.
type ProposalOutcome string

const (
	OutcomeAction          ProposalOutcome = "action"
	OutcomeCannotDetermine ProposalOutcome = "cannot_determine"
)

// Proposal is the inference service's decision for one step.
type Proposal struct {
	Outcome              ProposalOutcome `json:"outcome"`
	Action               Action          `json:"action"`
	Reasoning            string          `json:"reasoning,omitempty"`
	Confidence           float64         `json:"confidence,omitempty"`
	RequiresConfirmation bool            `json:"requires_confirmation"`
}

// FinishSessionRequest closes a session as finished or failed.
type FinishSessionRequest struct {
	Status string `json:"status"` // "finish" or "fail"
	Reason string `json:"reason,omitempty"`
}
