package domain

import "time"

// Run lifecycle states.
const (
	RunStarted   = "started"
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

// RunEvent records one transition of an analysis run.
type RunEvent struct {
	RunID      string    `json:"run_id"`
	Status     string    `json:"status"`
	Input      string    `json:"input"`
	Lang       string    `json:"lang"`
	Outputs    int       `json:"outputs,omitempty"`
	Error      string    `json:"error,omitempty"`
	DurationMS int64     `json:"duration_ms,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
