// Package stt defines the speech-to-text capability used by the note pipeline.
package stt

import (
	"context"
	"fmt"
	"strings"

	"clinical-notes-service/internal/models"
)

// Transcriber turns a recording into a transcript.
type Transcriber interface {
	// Provider names the backend, e.g. "google".
	Provider() string

	// Transcribe reads src and returns its transcript. languageHint may be empty.
	// Failures are *TranscriptionError.
	Transcribe(ctx context.Context, src models.AudioSource, languageHint string) (models.Transcript, error)
}

// TranscriptionError reports unreadable audio or an unavailable backend.
type TranscriptionError struct {
	Provider string
	Source   string
	Err      error
}

func (e *TranscriptionError) Error() string {
	return fmt.Sprintf("transcription of %s via %s failed: %v", e.Source, e.Provider, e.Err)
}

func (e *TranscriptionError) Unwrap() error {
	return e.Err
}

// InputError wraps err as a transcription failure caused by the audio.
func InputError(provider, source string, err error) error {
	return &TranscriptionError{Provider: provider, Source: source, Err: fmt.Errorf("%w: %v", models.ErrInput, err)}
}

// BackendError wraps err as a transcription failure caused by the backend.
func BackendError(provider, source string, err error) error {
	return &TranscriptionError{Provider: provider, Source: source, Err: fmt.Errorf("%w: %v", models.ErrBackend, err)}
}

// SegmentResult is a recognized span as reported by a provider.
// Probabilities are nil when the provider does not report them.
type SegmentResult struct {
	Start        float64
	End          float64
	Text         string
	LogProb      *float64
	NoSpeechProb *float64
}

// Assemble builds a transcript from provider segments. Empty segments are
// skipped. Averages only cover segments that reported the metric.
func Assemble(languageCode string, segs []SegmentResult) models.Transcript {
	t := models.Transcript{
		LanguageCode: languageCode,
		Segments:     []models.Segment{},
	}

	var texts []string
	var logSum, noSpeechSum float64
	var logN, noSpeechN int
	for _, s := range segs {
		text := strings.TrimSpace(s.Text)
		if text == "" {
			continue
		}
		texts = append(texts, text)
		t.Segments = append(t.Segments, models.Segment{Start: s.Start, End: s.End, Text: text})
		if s.LogProb != nil {
			logSum += *s.LogProb
			logN++
		}
		if s.NoSpeechProb != nil {
			noSpeechSum += *s.NoSpeechProb
			noSpeechN++
		}
	}

	t.Text = strings.Join(texts, " ")
	if logN > 0 {
		avg := logSum / float64(logN)
		t.AverageLogProbability = &avg
	}
	if noSpeechN > 0 {
		avg := noSpeechSum / float64(noSpeechN)
		t.AverageNoSpeechProbability = &avg
	}
	return t
}
