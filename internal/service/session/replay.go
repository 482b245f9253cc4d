package session

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"clinical-notes-service/internal/models"
	"clinical-notes-service/internal/observability/logging"
	"clinical-notes-service/internal/service/audio"
	"clinical-notes-service/internal/service/stt"
)

// ReplayResult is the outcome of pseudo-streaming a recorded file.
type ReplayResult struct {
	Chunks     []Update          `json:"chunks"`
	Transcript models.Transcript `json:"transcript"`
}

// Replay splits a WAV recording into fixed chunks and transcribes them in
// order, accumulating the transcript the way a live session does.
// The first transcription failure stops the replay.
func Replay(ctx context.Context, tr stt.Transcriber, r io.ReadSeeker, name string, chunkSeconds float64, languageHint string) (*ReplayResult, error) {
	chunks, err := audio.Split(r, name, chunkSeconds)
	if err != nil {
		return nil, err
	}
	logger := logging.WithComponent("replay")
	logger.Info().
		Str("source", name).
		Int("chunks", len(chunks)).
		Float64("chunkSeconds", chunkSeconds).
		Msg("Replaying recording")

	var acc running
	out := &ReplayResult{Chunks: make([]Update, 0, len(chunks))}
	for _, c := range chunks {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		t, err := tr.Transcribe(ctx, c, languageHint)
		if err != nil {
			return out, err
		}
		acc.add(c.Offset(), t)
		out.Chunks = append(out.Chunks, Update{
			SessionID:  name,
			ChunkID:    c.ID,
			Index:      c.Index,
			Offset:     c.Offset(),
			Duration:   c.Duration(),
			Text:       t.Text,
			Transcript: acc.text,
		})
		out.Transcript = acc.transcript()
	}
	return out, nil
}

// ChunkedTranscriber transcribes a recording by replaying it in fixed chunks
// through another transcriber. It lets a batch run see the same transcript a
// live session would have produced.
type ChunkedTranscriber struct {
	Transcriber  stt.Transcriber
	ChunkSeconds float64
}

// Provider reports the wrapped provider.
func (c ChunkedTranscriber) Provider() string {
	return c.Transcriber.Provider()
}

// Transcribe reads src fully and replays it chunk by chunk. The first chunk
// failure fails the whole transcription.
func (c ChunkedTranscriber) Transcribe(ctx context.Context, src models.AudioSource, languageHint string) (models.Transcript, error) {
	rc, err := src.Open(ctx)
	if err != nil {
		return models.Transcript{}, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return models.Transcript{}, fmt.Errorf("%w: read %s: %v", models.ErrInput, src.Name(), err)
	}

	res, err := Replay(ctx, c.Transcriber, bytes.NewReader(data), src.Name(), c.ChunkSeconds, languageHint)
	if err != nil {
		return models.Transcript{}, err
	}
	return res.Transcript, nil
}
