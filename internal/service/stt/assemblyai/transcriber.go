// Package assemblyai provides a transcriber backed by the AssemblyAI API.
package assemblyai

import (
	"context"
	"errors"
	"io"
	"math"
	"strings"

	aai "github.com/AssemblyAI/assemblyai-go-sdk"

	"clinical-notes-service/internal/models"
	"clinical-notes-service/internal/service/stt"
)

const provider = "assemblyai"

// transcripts is the subset of the SDK transcript service used here.
type transcripts interface {
	TranscribeFromReader(ctx context.Context, reader io.Reader, params *aai.TranscriptOptionalParams) (aai.Transcript, error)
}

// Transcriber uploads each recording and waits for the finished transcript.
type Transcriber struct {
	api          transcripts
	languageCode string
}

// New creates a transcriber. An empty languageCode enables language detection.
func New(apiKey, languageCode string) *Transcriber {
	client := aai.NewClient(apiKey)
	return &Transcriber{api: client.Transcripts, languageCode: languageCode}
}

// Provider returns "assemblyai".
func (t *Transcriber) Provider() string {
	return provider
}

// Transcribe uploads src and converts the word timings into sentence segments.
func (t *Transcriber) Transcribe(ctx context.Context, src models.AudioSource, languageHint string) (models.Transcript, error) {
	rc, err := src.Open(ctx)
	if err != nil {
		return models.Transcript{}, stt.InputError(provider, src.Name(), err)
	}
	defer rc.Close()

	params := &aai.TranscriptOptionalParams{Punctuate: aai.Bool(true)}
	lang := t.languageCode
	if languageHint != "" {
		lang = languageHint
	}
	if lang != "" {
		params.LanguageCode = aai.TranscriptLanguageCode(lang)
	} else {
		params.LanguageDetection = aai.Bool(true)
	}

	tr, err := t.api.TranscribeFromReader(ctx, rc, params)
	if err != nil {
		return models.Transcript{}, stt.BackendError(provider, src.Name(), err)
	}
	if tr.Status == aai.TranscriptStatusError {
		msg := "transcription failed"
		if tr.Error != nil {
			msg = *tr.Error
		}
		// AssemblyAI reports undecodable uploads as a failed transcript.
		return models.Transcript{}, stt.InputError(provider, src.Name(), errors.New(msg))
	}
	return toTranscript(tr), nil
}

// toTranscript groups words into segments ending at sentence punctuation.
// Word confidences are averaged and reported as log probabilities.
func toTranscript(tr aai.Transcript) models.Transcript {
	var segs []stt.SegmentResult
	var words []string
	var start, end int64
	var confSum float64
	var confN int

	flush := func() {
		if len(words) == 0 {
			return
		}
		seg := stt.SegmentResult{
			Start: float64(start) / 1000,
			End:   float64(end) / 1000,
			Text:  strings.Join(words, " "),
		}
		if confN > 0 && confSum > 0 {
			lp := math.Log(confSum / float64(confN))
			seg.LogProb = &lp
		}
		segs = append(segs, seg)
		words = nil
		confSum, confN = 0, 0
	}

	for _, w := range tr.Words {
		text := deref(w.Text)
		if text == "" {
			continue
		}
		if len(words) == 0 {
			start = deref(w.Start)
		}
		words = append(words, text)
		end = deref(w.End)
		if w.Confidence != nil {
			confSum += *w.Confidence
			confN++
		}
		if strings.HasSuffix(text, ".") || strings.HasSuffix(text, "?") || strings.HasSuffix(text, "!") {
			flush()
		}
	}
	flush()

	if len(segs) == 0 && deref(tr.Text) != "" {
		segs = append(segs, stt.SegmentResult{Text: deref(tr.Text)})
	}
	return stt.Assemble(string(tr.LanguageCode), segs)
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
