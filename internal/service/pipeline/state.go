// Package pipeline sequences the note stages and records every transition.
package pipeline

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"clinical-notes-service/internal/models"
)

// Errors for invalid state transitions.
var (
	ErrRunFinished       = errors.New("run already reached final state")
	ErrInvalidTransition = errors.New("invalid state transition")
)

type edge struct {
	from   models.State
	action models.Action
}

var transitions = map[edge]models.State{
	{models.StateStart, models.ActionTranscribe}:         models.StateTranscriptionDone,
	{models.StateTranscriptionDone, models.ActionDraft}:  models.StateDraftDone,
	{models.StateDraftDone, models.ActionNormalize}:      models.StateNormalizationDone,
	{models.StateNormalizationDone, models.ActionReview}: models.StateReviewDone,
	{models.StateReviewDone, models.ActionOverride}:      models.StateReviewDone,
	{models.StateReviewDone, models.ActionFinalize}:      models.StateFinal,
	{models.StateStart, models.ActionAbort}:              models.StateFinal,
	{models.StateTranscriptionDone, models.ActionAbort}:  models.StateFinal,
	{models.StateDraftDone, models.ActionAbort}:          models.StateFinal,
	{models.StateNormalizationDone, models.ActionAbort}:  models.StateFinal,
	{models.StateReviewDone, models.ActionAbort}:         models.StateFinal,
}

// Next returns the state reached by applying action in from.
func Next(from models.State, action models.Action) (models.State, error) {
	if from.IsTerminal() {
		return "", ErrRunFinished
	}
	to, ok := transitions[edge{from, action}]
	if !ok {
		return "", fmt.Errorf("%w: %s from %s", ErrInvalidTransition, action, from)
	}
	return to, nil
}

// Edge is one allowed transition.
type Edge struct {
	From   models.State
	Action models.Action
	To     models.State
}

// Edges lists every allowed transition in run order.
func Edges() []Edge {
	rank := make(map[models.State]int, len(models.States))
	for i, s := range models.States {
		rank[s] = i
	}
	out := make([]Edge, 0, len(transitions))
	for e, to := range transitions {
		out = append(out, Edge{From: e.from, Action: e.action, To: to})
	}
	sort.Slice(out, func(i, j int) bool {
		if rank[out[i].From] != rank[out[j].From] {
			return rank[out[i].From] < rank[out[j].From]
		}
		return out[i].Action < out[j].Action
	})
	return out
}

// Machine tracks the state of one run and its append-only event log.
// Thread-safe for concurrent access.
//
// State transitions:
//
//	Start ─transcribe→ TranscriptionDone ─draft→ DraftDone ─normalize→ NormalizationDone
//	                                                                         │ review
//	                                                                         ▼
//	                              Final ←─finalize─ ReviewDone ─override─┐
//	                                                    ▲────────────────┘
//
// Rules:
//   - override records a forced escalation without leaving ReviewDone
//   - abort moves any non-final state to Final
//   - Final accepts nothing
type Machine struct {
	mu    sync.RWMutex
	runID string
	state models.State
	log   models.EventLog
	now   func() time.Time
}

// NewMachine creates a machine in the Start state.
func NewMachine(runID string, now func() time.Time) *Machine {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Machine{
		runID: runID,
		state: models.StateStart,
		now:   now,
	}
}

// RunID returns the run ID.
func (m *Machine) RunID() string {
	return m.runID
}

// State returns the current state.
func (m *Machine) State() models.State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Apply validates action against the current state, appends the event and
// advances. details is copied so later changes by the caller are not seen.
func (m *Machine) Apply(action models.Action, details map[string]any) (models.TransitionEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	to, err := Next(m.state, action)
	if err != nil {
		return models.TransitionEvent{}, err
	}

	copied := make(map[string]any, len(details))
	for k, v := range details {
		copied[k] = v
	}
	ev := models.TransitionEvent{
		Seq:       len(m.log) + 1,
		Timestamp: m.now(),
		From:      m.state,
		To:        to,
		Action:    action,
		Details:   copied,
	}
	m.log = append(m.log, ev)
	m.state = to
	return ev, nil
}

// Events returns a copy of the event log.
func (m *Machine) Events() models.EventLog {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(models.EventLog, len(m.log))
	copy(out, m.log)
	return out
}
