// Package draft generates SOAP notes from transcripts with a language model.
package draft

import (
	"context"
	"fmt"
	"strings"

	"clinical-notes-service/internal/models"
)

// Request is a drafting call. A nil Temperature uses the drafter default.
type Request struct {
	TranscriptText string
	Temperature    *float64
}

// Drafter writes a note from transcript text.
// It tries its ordered model list and fails with *DraftError once every model has been rejected.
type Drafter interface {
	Draft(ctx context.Context, req Request) (models.Draft, error)
}

// Attempt records one model that failed.
type Attempt struct {
	Model string `json:"model"`
	Error string `json:"error"`
}

// DraftError reports that no model produced a note.
type DraftError struct {
	Attempts []Attempt
	Err      error
}

func (e *DraftError) Error() string {
	if len(e.Attempts) == 0 {
		return fmt.Sprintf("drafting failed: %v", e.Err)
	}
	return fmt.Sprintf("drafting failed after %d model(s): %v", len(e.Attempts), e.Err)
}

func (e *DraftError) Unwrap() error {
	return e.Err
}

// ModelList returns primary followed by the fallbacks, without blanks or duplicates.
func ModelList(primary string, fallbacks []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, m := range append([]string{primary}, fallbacks...) {
		m = strings.TrimSpace(m)
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}

func emptyTranscript() error {
	return &DraftError{Err: fmt.Errorf("%w: empty transcript", models.ErrInput)}
}
