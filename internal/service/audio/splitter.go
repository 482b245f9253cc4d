package audio

import (
	"fmt"
	"io"
	"time"

	"clinical-notes-service/internal/models"
)

// Split cuts a WAV recording into ceil(total/chunkSeconds) chunks at fixed
// offsets. Every chunk keeps the channel count, bit depth and sample rate of
// the source. The last chunk may be shorter.
func Split(r io.ReadSeeker, name string, chunkSeconds float64) ([]*Chunk, error) {
	if chunkSeconds <= 0 {
		return nil, fmt.Errorf("%w: chunk duration must be positive, got %v", models.ErrInput, chunkSeconds)
	}
	f, data, err := DecodeWAV(r)
	if err != nil {
		return nil, err
	}
	if f.Channels <= 0 || f.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: invalid wav header %+v", models.ErrInput, f)
	}

	totalFrames := len(data) / f.Channels
	// Partial frames are truncated.
	framesPerChunk := int(chunkSeconds * float64(f.SampleRate))
	if framesPerChunk <= 0 {
		return nil, fmt.Errorf("%w: chunk duration %v shorter than one frame", models.ErrInput, chunkSeconds)
	}
	n := (totalFrames + framesPerChunk - 1) / framesPerChunk

	now := time.Now()
	chunks := make([]*Chunk, 0, n)
	for i := 0; i < n; i++ {
		start := i * framesPerChunk
		end := min(start+framesPerChunk, totalFrames)
		part := data[start*f.Channels : end*f.Channels]

		wavBytes, err := EncodeWAV(f, part)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, &Chunk{
			ID:         fmt.Sprintf("%s-chunk-%d", name, i),
			Index:      i,
			Format:     f,
			StartFrame: int64(start),
			Frames:     end - start,
			Data:       part,
			WAV:        wavBytes,
			CreatedAt:  now,
		})
	}
	return chunks, nil
}
