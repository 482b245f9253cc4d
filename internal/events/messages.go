package events

import (
	"time"

	"clinical-notes-service/internal/models"
)

// Event types carried in the eventType header and payload.
const (
	EventTypeTransition = "pipeline.transition"
	EventTypeResult     = "pipeline.result"
)

// TransitionMessage is published for every recorded transition.
type TransitionMessage struct {
	EventType string                 `json:"eventType"`
	RunID     string                 `json:"runId"`
	Event     models.TransitionEvent `json:"event"`
}

// ResultMessage summarizes a finished run.
type ResultMessage struct {
	EventType      string               `json:"eventType"`
	RunID          string               `json:"runId"`
	SessionID      string               `json:"sessionId,omitempty"`
	Attempt        int                  `json:"attempt"`
	Outcome        models.Outcome       `json:"outcome"`
	Action         models.VerdictAction `json:"action,omitempty"`
	ManualOverride bool                 `json:"manualOverride"`
	Note           string               `json:"note,omitempty"`
	Failure        *models.Failure      `json:"failure,omitempty"`
	Events         int                  `json:"events"`
	FinishedAt     time.Time            `json:"finishedAt"`
}

// NewResultMessage builds the message for result.
func NewResultMessage(result *models.PipelineResult, now time.Time) ResultMessage {
	msg := ResultMessage{
		EventType:  EventTypeResult,
		RunID:      result.RunID,
		SessionID:  result.SessionID,
		Attempt:    result.Attempt,
		Outcome:    result.Outcome,
		Failure:    result.Failure,
		Events:     len(result.Events),
		FinishedAt: now,
	}
	if v := result.Verdict; v != nil {
		msg.Action = v.Action
		msg.ManualOverride = v.Reasons.ManualOverride
		msg.Note = v.FinalNote
	}
	if last, ok := result.Events.Last(); ok {
		msg.FinishedAt = last.Timestamp
	}
	return msg
}
