// File: internal/agent/gate.go
package agent

import (
	"sync"

	"github.com/google/uuid"

	"github.com/quantum-agi/sdk-go/api/schemas"
)

// confirmationGate suspends the loop while a high-impact action awaits an
// external approve/deny decision. At most one request is outstanding; arming
// replaces nothing because the loop never arms twice without resolving.
type confirmationGate struct {
	mu       sync.Mutex
	pending  *schemas.ConfirmationRequest
	decision chan bool
}

// arm stores a new pending request built from the gated action and returns
// the request together with the channel the decision will arrive on.
func (g *confirmationGate) arm(action schemas.Action, taskCtx map[string]any) (schemas.ConfirmationRequest, <-chan bool) {
	impact := action.Impact
	if impact == "" {
		impact = schemas.ImpactHigh
	}
	description := action.Description
	pending := action
	if action.Kind == schemas.ActionConfirm {
		pending = *action.Pending
	} else if description == "" {
		description = action.String()
	}

	req := schemas.ConfirmationRequest{
		ID:          uuid.New().String(),
		Description: description,
		Impact:      impact,
		Pending:     pending,
		Context:     taskCtx,
	}

	g.mu.Lock()
	g.pending = &req
	g.decision = make(chan bool, 1)
	ch := g.decision
	g.mu.Unlock()
	return req, ch
}

// resolve delivers an approve/deny decision for the pending request. A stale
// or unknown id fails with ErrUnknownConfirmation and has no effect.
func (g *confirmationGate) resolve(id string, approved bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending == nil || g.pending.ID != id {
		return ErrUnknownConfirmation
	}
	g.pending = nil
	g.decision <- approved
	return nil
}

// clear drops the pending request without resolving it, used when the task is
// stopped while awaiting confirmation.
func (g *confirmationGate) clear() {
	g.mu.Lock()
	g.pending = nil
	g.decision = nil
	g.mu.Unlock()
}
