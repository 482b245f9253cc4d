package models

import "time"

// Outcome tells whether a run completed or aborted.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
)

// Failure marks the stage a run aborted at.
type Failure struct {
	Stage   string `json:"stage"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// PipelineResult is everything a run produced, including its event log.
// Artifacts of stages that never ran are nil.
type PipelineResult struct {
	RunID         string         `json:"runId"`
	SessionID     string         `json:"sessionId,omitempty"`
	Attempt       int            `json:"attempt"`
	Outcome       Outcome        `json:"outcome"`
	StartedAt     time.Time      `json:"startedAt"`
	Transcript    *Transcript    `json:"transcript,omitempty"`
	Draft         *Draft         `json:"draft,omitempty"`
	Normalization *Normalization `json:"normalization,omitempty"`
	Verdict       *Verdict       `json:"verdict,omitempty"`
	Events        EventLog       `json:"events"`
	Failure       *Failure       `json:"failure,omitempty"`
}

// Failed reports whether the run aborted.
func (r *PipelineResult) Failed() bool {
	return r.Failure != nil
}
