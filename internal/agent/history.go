// File: internal/agent/history.go
package agent

import "github.com/quantum-agi/sdk-go/api/schemas"

// stepHistory keeps a bounded window of completed step records for the
// inference request, dropping the oldest entries once the cap is reached.
type stepHistory struct {
	max     int
	records []schemas.StepRecord
}

func newStepHistory(max int) *stepHistory {
	return &stepHistory{max: max}
}

func (h *stepHistory) add(rec schemas.StepRecord) {
	h.records = append(h.records, rec)
	if len(h.records) > h.max {
		h.records = h.records[len(h.records)-h.max:]
	}
}

// window returns a copy safe to hand to the gateway.
func (h *stepHistory) window() []schemas.StepRecord {
	if len(h.records) == 0 {
		return nil
	}
	out := make([]schemas.StepRecord, len(h.records))
	copy(out, h.records)
	return out
}
