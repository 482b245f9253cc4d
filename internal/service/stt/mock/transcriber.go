// Package mock provides a transcriber for running the pipeline without cloud
// credentials. It validates the audio and returns canned clinical utterances.
package mock

import (
	"context"
	"io"
	"sync"

	"clinical-notes-service/internal/models"
	"clinical-notes-service/internal/service/audio"
	"clinical-notes-service/internal/service/stt"
)

const provider = "mock"

// Utterance is a canned transcription result.
type Utterance struct {
	Text    string
	LogProb float64
}

// DefaultUtterances cycles through a short consultation.
var DefaultUtterances = []Utterance{
	{Text: "I have had a dry cough and a sore throat for about four days.", LogProb: -0.21},
	{Text: "I feel tired and I had a fever last night.", LogProb: -0.27},
	{Text: "I have been taking paracetamol twice a day.", LogProb: -0.18},
	{Text: "No chest pain and no shortness of breath.", LogProb: -0.24},
	{Text: "I also have high blood pressure and take lisinopril.", LogProb: -0.3},
}

// Transcriber returns one utterance per call, in order.
type Transcriber struct {
	mu         sync.Mutex
	utterances []Utterance
	next       int
	language   string
}

// New creates a mock transcriber. With no utterances it uses DefaultUtterances.
func New(utterances ...Utterance) *Transcriber {
	if len(utterances) == 0 {
		utterances = DefaultUtterances
	}
	return &Transcriber{utterances: utterances, language: "en"}
}

// Provider returns "mock".
func (t *Transcriber) Provider() string {
	return provider
}

// Transcribe checks that src is a WAV file and returns the next utterance
// as a single segment spanning the recording.
func (t *Transcriber) Transcribe(ctx context.Context, src models.AudioSource, languageHint string) (models.Transcript, error) {
	if err := ctx.Err(); err != nil {
		return models.Transcript{}, stt.BackendError(provider, src.Name(), err)
	}
	rc, err := src.Open(ctx)
	if err != nil {
		return models.Transcript{}, stt.InputError(provider, src.Name(), err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return models.Transcript{}, stt.InputError(provider, src.Name(), err)
	}
	f, samples, err := audio.DecodeWAVBytes(data)
	if err != nil {
		return models.Transcript{}, stt.InputError(provider, src.Name(), err)
	}
	seconds := float64(len(samples)/f.Channels) / float64(f.SampleRate)

	t.mu.Lock()
	u := t.utterances[t.next%len(t.utterances)]
	t.next++
	t.mu.Unlock()

	lang := t.language
	if languageHint != "" {
		lang = languageHint
	}
	logProb := u.LogProb
	return stt.Assemble(lang, []stt.SegmentResult{
		{Start: 0, End: seconds, Text: u.Text, LogProb: &logProb},
	}), nil
}
