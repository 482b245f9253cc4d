package models

import (
	"fmt"
	"time"
)

// State is a pipeline run state.
type State string

const (
	StateStart             State = "Start"
	StateTranscriptionDone State = "TranscriptionDone"
	StateDraftDone         State = "DraftDone"
	StateNormalizationDone State = "NormalizationDone"
	StateReviewDone        State = "ReviewDone"
	StateFinal             State = "Final"
)

// States lists every pipeline state in run order.
var States = []State{
	StateStart,
	StateTranscriptionDone,
	StateDraftDone,
	StateNormalizationDone,
	StateReviewDone,
	StateFinal,
}

// String returns the state name.
func (s State) String() string {
	if s == "" {
		return "UNKNOWN"
	}
	return string(s)
}

// IsTerminal reports whether no further transitions are allowed.
func (s State) IsTerminal() bool {
	return s == StateFinal
}

// Action names the operation that caused a transition.
type Action string

const (
	ActionTranscribe Action = "transcribe"
	ActionDraft      Action = "draft"
	ActionNormalize  Action = "normalize"
	ActionReview     Action = "review"
	ActionOverride   Action = "override"
	ActionFinalize   Action = "finalize"
	ActionAbort      Action = "abort"
)

// TransitionEvent records one state transition of a run.
type TransitionEvent struct {
	Seq       int            `json:"seq"`
	Timestamp time.Time      `json:"timestamp"`
	From      State          `json:"fromState"`
	To        State          `json:"toState"`
	Action    Action         `json:"action"`
	Details   map[string]any `json:"details"`
}

// String renders the event on a single line.
func (e TransitionEvent) String() string {
	return fmt.Sprintf("#%d %s %s -> %s (%s)", e.Seq, e.Timestamp.Format(time.RFC3339), e.From, e.To, e.Action)
}

// EventLog is the ordered audit trail of a run.
type EventLog []TransitionEvent

// Last returns the most recent event.
func (l EventLog) Last() (TransitionEvent, bool) {
	if len(l) == 0 {
		return TransitionEvent{}, false
	}
	return l[len(l)-1], true
}

// Reached reports whether the log ends in the final state.
func (l EventLog) Reached() bool {
	last, ok := l.Last()
	return ok && last.To == StateFinal
}

// Actions returns the action of every event in order.
func (l EventLog) Actions() []Action {
	out := make([]Action, len(l))
	for i, e := range l {
		out[i] = e.Action
	}
	return out
}
