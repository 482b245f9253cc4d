// Package audio turns live audio frames into fixed-duration WAV chunks and
// splits recorded files for pseudo-streaming.
package audio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"clinical-notes-service/internal/models"
)

// Persister stores encoded chunks and returns where they were written.
type Persister interface {
	Put(ctx context.Context, key string, wav []byte) (string, error)
}

// Chunk is a WAV slice of a recording. It is an models.AudioSource.
type Chunk struct {
	ID         string    `json:"id"`
	Index      int       `json:"index"`
	Format     Format    `json:"format"`
	StartFrame int64     `json:"startFrame"`
	Frames     int       `json:"frames"`
	Data       []int     `json:"-"`
	WAV        []byte    `json:"-"`
	Location   string    `json:"location,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Name returns the chunk file name.
func (c *Chunk) Name() string {
	return c.ID + ".wav"
}

// Open returns a reader over the encoded WAV.
func (c *Chunk) Open(_ context.Context) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(c.WAV)), nil
}

// Offset is the chunk start in seconds from the start of the recording.
func (c *Chunk) Offset() float64 {
	return float64(c.StartFrame) / float64(c.Format.SampleRate)
}

// Duration is the chunk length in seconds.
func (c *Chunk) Duration() float64 {
	return float64(c.Frames) / float64(c.Format.SampleRate)
}

// Buffer accumulates mono 16-bit frames of one session.
// Safe for a producer pushing frames while a consumer pops chunks.
//
// A pop takes every buffered block under the lock, so a concurrent push
// lands either wholly in the popped chunk or wholly in the next one.
type Buffer struct {
	mu         sync.Mutex
	sessionID  string
	sampleRate int
	store      Persister
	now        func() time.Time

	blocks    [][]int16
	total     int64
	emitted   int64
	nextIndex int
	lastFlush time.Time
}

// NewBuffer creates an empty buffer for a session.
func NewBuffer(sessionID string, sampleRate int) *Buffer {
	return NewBufferWithStore(sessionID, sampleRate, nil)
}

// NewBufferWithStore creates an empty buffer that persists every chunk to store.
func NewBufferWithStore(sessionID string, sampleRate int, store Persister) *Buffer {
	b := &Buffer{
		sessionID:  sessionID,
		sampleRate: sampleRate,
		store:      store,
		now:        time.Now,
	}
	b.lastFlush = b.now()
	return b
}

// SampleRate returns the fixed sample rate of the buffer.
func (b *Buffer) SampleRate() int {
	return b.sampleRate
}

// PushFrame appends a copy of samples. Empty frames are ignored.
func (b *Buffer) PushFrame(samples []int16) {
	if len(samples) == 0 {
		return
	}
	block := make([]int16, len(samples))
	copy(block, samples)

	b.mu.Lock()
	b.blocks = append(b.blocks, block)
	b.total += int64(len(block))
	b.mu.Unlock()
}

// Samples returns the number of buffered samples.
func (b *Buffer) Samples() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total
}

// Duration returns the buffered duration in seconds.
func (b *Buffer) Duration() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return float64(b.total) / float64(b.sampleRate)
}

// LastFlush returns when the buffer was created or last emptied.
func (b *Buffer) LastFlush() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastFlush
}

// PopChunkIfReady emits every buffered sample as one chunk once the buffered
// duration reaches seconds. It returns nil and leaves the buffer untouched
// below the threshold.
//
// Samples past the threshold stay in the emitted chunk. When persisting
// fails the chunk is still returned, with the error, so no audio is lost.
func (b *Buffer) PopChunkIfReady(ctx context.Context, seconds float64) (*Chunk, error) {
	if seconds <= 0 {
		return nil, fmt.Errorf("%w: chunk duration must be positive, got %v", models.ErrInput, seconds)
	}
	return b.pop(ctx, seconds)
}

// Drain emits whatever is buffered regardless of duration.
// It returns nil when the buffer is empty.
func (b *Buffer) Drain(ctx context.Context) (*Chunk, error) {
	return b.pop(ctx, 0)
}

// Reset drops every buffered sample and restarts sample offsets at zero.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.blocks = nil
	b.total = 0
	b.emitted = 0
	b.lastFlush = b.now()
}

func (b *Buffer) pop(ctx context.Context, seconds float64) (*Chunk, error) {
	b.mu.Lock()
	if b.total < 0 || b.sampleRate <= 0 {
		b.mu.Unlock()
		return nil, fmt.Errorf("%w: total=%d sampleRate=%d", models.ErrBufferIntegrity, b.total, b.sampleRate)
	}
	if b.total == 0 || float64(b.total)/float64(b.sampleRate) < seconds {
		b.mu.Unlock()
		return nil, nil
	}

	data := make([]int, 0, b.total)
	for _, block := range b.blocks {
		for _, s := range block {
			data = append(data, int(s))
		}
	}
	if int64(len(data)) != b.total {
		b.mu.Unlock()
		return nil, fmt.Errorf("%w: concatenated %d samples, counted %d", models.ErrBufferIntegrity, len(data), b.total)
	}

	c := &Chunk{
		ID:         fmt.Sprintf("%s-chunk-%d", b.sessionID, b.nextIndex),
		Index:      b.nextIndex,
		Format:     Mono16(b.sampleRate),
		StartFrame: b.emitted,
		Frames:     len(data),
		Data:       data,
		CreatedAt:  b.now(),
	}
	b.blocks = nil
	b.total = 0
	b.emitted += int64(len(data))
	b.nextIndex++
	b.lastFlush = c.CreatedAt
	store := b.store
	b.mu.Unlock()

	wavBytes, err := EncodeWAV(c.Format, c.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrBufferIntegrity, err)
	}
	c.WAV = wavBytes

	if store != nil {
		loc, err := store.Put(ctx, c.Name(), c.WAV)
		if err != nil {
			return c, fmt.Errorf("%w: persist chunk %s: %v", models.ErrBackend, c.ID, err)
		}
		c.Location = loc
	}
	return c, nil
}
