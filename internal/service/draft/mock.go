package draft

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"clinical-notes-service/internal/models"
)

// Template drafts notes locally by filling a SOAP skeleton with the transcript.
// Used when no model backend is configured.
type Template struct {
	mu    sync.Mutex
	calls int
}

// NewTemplate creates a template drafter.
func NewTemplate() *Template {
	return &Template{}
}

// Draft returns a SOAP note quoting the transcript as the subjective section.
func (t *Template) Draft(_ context.Context, req Request) (models.Draft, error) {
	text := strings.TrimSpace(req.TranscriptText)
	if text == "" {
		return models.Draft{}, emptyTranscript()
	}
	t.mu.Lock()
	t.calls++
	t.mu.Unlock()

	note := fmt.Sprintf("S: Patient reports: %s\n"+
		"O: Not mentioned.\n"+
		"A: Assessment pending clinician review of the reported history.\n"+
		"P: Follow up with the treating clinician; no plan was stated in the conversation.", text)
	return models.Draft{Text: note, Model: "template"}, nil
}

// Calls returns how many notes were drafted.
func (t *Template) Calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}
