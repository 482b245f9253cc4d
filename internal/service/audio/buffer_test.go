package audio

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"clinical-notes-service/internal/models"
)

const testRate = 1000

func block(n int, start int16) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = start + int16(i%1000)
	}
	return out
}

func TestBuffer_PopBelowThreshold(t *testing.T) {
	b := NewBuffer("s1", testRate)
	b.PushFrame(block(testRate*2, 0))

	c, err := b.PopChunkIfReady(context.Background(), 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c != nil {
		t.Fatal("expected no chunk below threshold")
	}
	if b.Samples() != testRate*2 {
		t.Errorf("expected buffer untouched, got %d samples", b.Samples())
	}
}

func TestBuffer_SevenSecondsInThreeSecondBlocks(t *testing.T) {
	b := NewBuffer("s1", testRate)
	ctx := context.Background()
	first := block(testRate*3, 1)
	second := block(testRate*3, 2)
	third := block(testRate*1, 3)

	b.PushFrame(first)
	if c, _ := b.PopChunkIfReady(ctx, 5); c != nil {
		t.Fatal("expected no chunk after 3s")
	}

	b.PushFrame(second)
	c, err := b.PopChunkIfReady(ctx, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c == nil {
		t.Fatal("expected chunk after 6s")
	}
	if c.Frames != testRate*6 {
		t.Errorf("expected 6000 frames, got %d", c.Frames)
	}
	for i, s := range append(append([]int16{}, first...), second...) {
		if c.Data[i] != int(s) {
			t.Fatalf("sample %d: expected %d, got %d", i, s, c.Data[i])
		}
	}
	if b.Duration() != 0 {
		t.Errorf("expected empty buffer after pop, got %v", b.Duration())
	}

	b.PushFrame(third)
	if b.Duration() != 1 {
		t.Errorf("expected 1s buffered, got %v", b.Duration())
	}
	if c, _ := b.PopChunkIfReady(ctx, 5); c != nil {
		t.Error("expected third block to stay buffered")
	}
}

func TestBuffer_ZeroLengthFrame(t *testing.T) {
	b := NewBuffer("s1", testRate)
	b.PushFrame(block(500, 0))
	before := b.Duration()

	b.PushFrame(nil)
	b.PushFrame([]int16{})

	if b.Duration() != before {
		t.Errorf("expected %v, got %v", before, b.Duration())
	}
}

func TestBuffer_CopiesFrames(t *testing.T) {
	b := NewBuffer("s1", testRate)
	frame := []int16{1, 2, 3}
	b.PushFrame(frame)
	frame[0] = 99

	c, err := b.Drain(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Data[0] != 1 {
		t.Errorf("expected pushed copy to be kept, got %d", c.Data[0])
	}
}

func TestBuffer_ChunkMetadata(t *testing.T) {
	b := NewBuffer("sess", testRate)
	ctx := context.Background()

	b.PushFrame(block(testRate, 0))
	c1, _ := b.PopChunkIfReady(ctx, 1)
	b.PushFrame(block(testRate*2, 0))
	c2, _ := b.PopChunkIfReady(ctx, 1)

	if c1.ID != "sess-chunk-0" || c2.ID != "sess-chunk-1" {
		t.Errorf("expected sequential ids, got %s and %s", c1.ID, c2.ID)
	}
	if c2.StartFrame != testRate {
		t.Errorf("expected second chunk to start at %d, got %d", testRate, c2.StartFrame)
	}
	if c2.Offset() != 1 || c2.Duration() != 2 {
		t.Errorf("expected offset 1s duration 2s, got %v and %v", c2.Offset(), c2.Duration())
	}

	f, data, err := DecodeWAVBytes(c2.WAV)
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if f != Mono16(testRate) {
		t.Errorf("expected mono 16-bit at %d, got %+v", testRate, f)
	}
	if len(data) != c2.Frames {
		t.Errorf("expected %d decoded samples, got %d", c2.Frames, len(data))
	}

	rc, err := c2.Open(ctx)
	if err != nil {
		t.Fatalf("unexpected open error: %v", err)
	}
	defer rc.Close()
	raw, _ := io.ReadAll(rc)
	if len(raw) != len(c2.WAV) {
		t.Errorf("expected %d bytes, got %d", len(c2.WAV), len(raw))
	}
}

func TestBuffer_Reset(t *testing.T) {
	b := NewBuffer("s1", testRate)
	b.PushFrame(block(testRate*3, 0))
	b.Reset()

	if b.Samples() != 0 {
		t.Errorf("expected 0 samples after reset, got %d", b.Samples())
	}
	c, _ := b.Drain(context.Background())
	if c != nil {
		t.Error("expected nothing to drain after reset")
	}
}

func TestBuffer_InvalidDuration(t *testing.T) {
	b := NewBuffer("s1", testRate)
	_, err := b.PopChunkIfReady(context.Background(), 0)
	if !errors.Is(err, models.ErrInput) {
		t.Errorf("expected input error, got %v", err)
	}
}

func TestBuffer_IntegrityViolation(t *testing.T) {
	b := NewBuffer("s1", testRate)
	b.PushFrame(block(10, 0))
	b.total = 11

	_, err := b.Drain(context.Background())
	if !errors.Is(err, models.ErrBufferIntegrity) {
		t.Errorf("expected integrity error, got %v", err)
	}
}

type failingStore struct{}

func (failingStore) Put(context.Context, string, []byte) (string, error) {
	return "", errors.New("disk full")
}

type memoryStore struct {
	mu   sync.Mutex
	keys []string
}

func (m *memoryStore) Put(_ context.Context, key string, _ []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys = append(m.keys, key)
	return "mem://" + key, nil
}

func TestBuffer_PersistsChunks(t *testing.T) {
	store := &memoryStore{}
	b := NewBufferWithStore("s1", testRate, store)
	b.PushFrame(block(testRate, 0))

	c, err := b.PopChunkIfReady(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Location != "mem://s1-chunk-0.wav" {
		t.Errorf("expected stored location, got %q", c.Location)
	}
}

func TestBuffer_PersistFailureKeepsChunk(t *testing.T) {
	b := NewBufferWithStore("s1", testRate, failingStore{})
	b.PushFrame(block(testRate, 0))

	c, err := b.PopChunkIfReady(context.Background(), 1)
	if !errors.Is(err, models.ErrBackend) {
		t.Errorf("expected backend error, got %v", err)
	}
	if c == nil || c.Frames != testRate || len(c.WAV) == 0 {
		t.Fatal("expected the encoded chunk to be returned with the error")
	}
}

func TestBuffer_ConcurrentPushPop(t *testing.T) {
	b := NewBuffer("s1", testRate)
	ctx := context.Background()
	const producers = 4
	const frames = 250
	const frameSize = 37

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < frames; i++ {
				b.PushFrame(block(frameSize, 0))
			}
		}()
	}

	var chunks []*Chunk
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			c, err := b.PopChunkIfReady(ctx, 0.5)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if c != nil {
				chunks = append(chunks, c)
			}
			if b.emittedFrames()+b.Samples() == producers*frames*frameSize && b.Samples() < testRate/2 {
				return
			}
		}
	}()

	wg.Wait()
	<-done

	var emitted int64
	for i, c := range chunks {
		if c.StartFrame != emitted {
			t.Errorf("chunk %d: expected start %d, got %d", i, emitted, c.StartFrame)
		}
		if c.Frames%frameSize != 0 {
			t.Errorf("chunk %d: expected whole frames, got %d samples", i, c.Frames)
		}
		emitted += int64(c.Frames)
	}
	if emitted+b.Samples() != producers*frames*frameSize {
		t.Errorf("expected %d samples accounted for, got %d", producers*frames*frameSize, emitted+b.Samples())
	}
}

func (b *Buffer) emittedFrames() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.emitted
}
