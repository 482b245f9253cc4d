package session

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"clinical-notes-service/internal/models"
	"clinical-notes-service/internal/service/audio"
	"clinical-notes-service/internal/service/draft"
	"clinical-notes-service/internal/service/normalize"
	"clinical-notes-service/internal/service/pipeline"
	"clinical-notes-service/internal/service/review"
	"clinical-notes-service/internal/service/stt"
	"clinical-notes-service/internal/service/stt/mock"
)

const rate = 8000

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.SampleRate = rate
	cfg.ChunkSeconds = 1
	return cfg
}

func frame(seconds float64) []int16 {
	return make([]int16, int(seconds*rate))
}

func newSession(t *testing.T, tr stt.Transcriber) *Session {
	t.Helper()
	s, err := New("s-1", testConfig(), tr, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return s
}

type scriptedTranscriber struct {
	mu    sync.Mutex
	texts []string
	errAt int
	calls int
}

func (s *scriptedTranscriber) Provider() string { return "scripted" }

func (s *scriptedTranscriber) Transcribe(_ context.Context, src models.AudioSource, _ string) (models.Transcript, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls == s.errAt {
		return models.Transcript{}, stt.BackendError("scripted", src.Name(), errors.New("unavailable"))
	}
	text := s.texts[(s.calls-1)%len(s.texts)]
	return stt.Assemble("en", []stt.SegmentResult{{Start: 0, End: 1, Text: text}}), nil
}

func TestSession_NoChunkBelowThreshold(t *testing.T) {
	tr := &scriptedTranscriber{texts: []string{"hello"}}
	s := newSession(t, tr)

	s.PushFrame(frame(0.5))
	u, err := s.ProcessReady(context.Background())
	if err != nil || u != nil {
		t.Fatalf("expected nothing, got %+v, %v", u, err)
	}
	if tr.calls != 0 {
		t.Errorf("expected no transcription, got %d", tr.calls)
	}
}

func TestSession_RunningTranscriptIsAppendOnly(t *testing.T) {
	tr := &scriptedTranscriber{texts: []string{"  I have a cough. ", "", "It started on Monday."}}
	s := newSession(t, tr)
	ctx := context.Background()

	var transcripts []string
	for i := 0; i < 3; i++ {
		s.PushFrame(frame(1))
		u, err := s.ProcessReady(ctx)
		if err != nil {
			t.Fatalf("chunk %d: unexpected error: %v", i, err)
		}
		if u.Index != i {
			t.Errorf("expected index %d, got %d", i, u.Index)
		}
		transcripts = append(transcripts, u.Transcript)
	}

	want := []string{
		"I have a cough.",
		"I have a cough.",
		"I have a cough. It started on Monday.",
	}
	for i := range want {
		if transcripts[i] != want[i] {
			t.Errorf("after chunk %d: expected %q, got %q", i, want[i], transcripts[i])
		}
		if i > 0 && !strings.HasPrefix(transcripts[i], transcripts[i-1]) {
			t.Errorf("transcript %d rewrote earlier text", i)
		}
	}

	segs := s.Transcript().Segments
	if len(segs) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(segs))
	}
	if segs[1].Start != 2 || segs[1].End != 3 {
		t.Errorf("expected third chunk segment at 2-3s, got %v-%v", segs[1].Start, segs[1].End)
	}
}

func TestSession_TranscriptionFailureKeepsGoing(t *testing.T) {
	tr := &scriptedTranscriber{texts: []string{"one", "two", "three"}, errAt: 2}
	s := newSession(t, tr)
	ctx := context.Background()

	s.PushFrame(frame(1))
	if _, err := s.ProcessReady(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s.PushFrame(frame(1))
	u, err := s.ProcessReady(ctx)
	if !errors.Is(err, models.ErrBackend) {
		t.Fatalf("expected backend error, got %v", err)
	}
	if u == nil || u.Error == "" {
		t.Error("expected update to carry the error")
	}
	s.PushFrame(frame(1))
	if _, err := s.ProcessReady(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := s.Transcript().Text; got != "one three" {
		t.Errorf("expected %q, got %q", "one three", got)
	}
	if s.Info().Chunks != 3 {
		t.Errorf("expected 3 chunks, got %d", s.Info().Chunks)
	}
}

func TestSession_SetChunkDuration(t *testing.T) {
	s := newSession(t, &scriptedTranscriber{texts: []string{"x"}})

	tests := []struct {
		seconds float64
		wantErr bool
	}{
		{0.5, true},
		{1, false},
		{4.5, false},
		{8, false},
		{8.1, true},
		{-1, true},
	}
	for _, tt := range tests {
		err := s.SetChunkDuration(tt.seconds)
		if tt.wantErr && !errors.Is(err, ErrChunkDuration) {
			t.Errorf("%v: expected ErrChunkDuration, got %v", tt.seconds, err)
		}
		if !tt.wantErr && err != nil {
			t.Errorf("%v: unexpected error: %v", tt.seconds, err)
		}
	}
	if s.ChunkSeconds() != 8 {
		t.Errorf("expected last valid value 8, got %v", s.ChunkSeconds())
	}
}

func TestSession_NewRejectsBadConfig(t *testing.T) {
	cfg := testConfig()
	cfg.ChunkSeconds = 12
	if _, err := New("s", cfg, nil, nil, nil); !errors.Is(err, models.ErrInput) {
		t.Errorf("expected input error, got %v", err)
	}
	cfg = testConfig()
	cfg.SampleRate = 0
	if _, err := New("s", cfg, nil, nil, nil); !errors.Is(err, models.ErrInput) {
		t.Errorf("expected input error, got %v", err)
	}
}

func TestSession_DrainShortTail(t *testing.T) {
	tr := &scriptedTranscriber{texts: []string{"tail"}}
	s := newSession(t, tr)

	s.PushFrame(frame(0.25))
	u, err := s.Drain(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u == nil || u.Duration != 0.25 {
		t.Fatalf("expected 0.25s chunk, got %+v", u)
	}
	if u, _ := s.Drain(context.Background()); u != nil {
		t.Error("expected nothing left to drain")
	}
}

func TestSession_Reset(t *testing.T) {
	s := newSession(t, &scriptedTranscriber{texts: []string{"before reset"}})
	ctx := context.Background()

	s.PushFrame(frame(1))
	if _, err := s.ProcessReady(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s.PushFrame(frame(0.5))
	s.Reset()

	info := s.Info()
	if info.Transcript != "" || info.BufferedSeconds != 0 || info.Chunks != 0 {
		t.Errorf("expected empty session, got %+v", info)
	}
}

func TestSession_Consume(t *testing.T) {
	s := newSession(t, &scriptedTranscriber{texts: []string{"a", "b"}})
	ctx, cancel := context.WithCancel(context.Background())

	updates := make(chan *Update, 4)
	done := make(chan error, 1)
	go func() {
		done <- s.Consume(ctx, nil, 5*time.Millisecond, func(u *Update) { updates <- u })
	}()

	s.PushFrame(frame(1))
	select {
	case u := <-updates:
		if u.Text != "a" {
			t.Errorf("expected a, got %q", u.Text)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for update")
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

// blockingTranscriber holds each call until released or its context ends.
type blockingTranscriber struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingTranscriber) Provider() string { return "blocking" }

func (b *blockingTranscriber) Transcribe(ctx context.Context, src models.AudioSource, _ string) (models.Transcript, error) {
	b.started <- struct{}{}
	select {
	case <-b.release:
		return stt.Assemble("en", []stt.SegmentResult{{Start: 0, End: 1, Text: "in flight"}}), nil
	case <-ctx.Done():
		return models.Transcript{}, stt.BackendError("blocking", src.Name(), ctx.Err())
	}
}

func TestSession_ConsumeStopKeepsInFlightChunk(t *testing.T) {
	tr := &blockingTranscriber{started: make(chan struct{}, 1), release: make(chan struct{})}
	s := newSession(t, tr)
	stop := make(chan struct{})

	updates := make(chan *Update, 4)
	done := make(chan error, 1)
	go func() {
		done <- s.Consume(context.Background(), stop, 5*time.Millisecond, func(u *Update) { updates <- u })
	}()

	s.PushFrame(frame(1))
	select {
	case <-tr.started:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for transcription to start")
	}

	close(stop)
	close(tr.release)

	if err := <-done; err != nil {
		t.Errorf("expected nil after stop, got %v", err)
	}
	select {
	case u := <-updates:
		if u.Error != "" {
			t.Errorf("expected in-flight chunk to succeed, got %q", u.Error)
		}
	default:
		t.Error("expected an update for the in-flight chunk")
	}
	if got := s.Transcript().Text; got != "in flight" {
		t.Errorf("expected %q, got %q", "in flight", got)
	}
}

func TestSession_Finalize(t *testing.T) {
	s := newSession(t, mock.New(mock.Utterance{Text: "I have had a cough and a fever for three days and I take ibuprofen."}))
	ctx := context.Background()
	orch := pipeline.New(pipeline.Deps{
		Transcriber: mock.New(),
		Drafter:     draft.NewTemplate(),
		Normalizer:  normalize.NewMatcher(normalize.DefaultOntology()),
		Reviewer:    review.DefaultPolicy(),
	}, pipeline.DefaultConfig())

	if _, err := s.Finalize(ctx, orch, pipeline.Retrier{MaxAttempts: 1}, pipeline.Options{}); !errors.Is(err, ErrEmptyTranscript) {
		t.Fatalf("expected ErrEmptyTranscript, got %v", err)
	}

	s.PushFrame(frame(1))
	if _, err := s.ProcessReady(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	res, err := s.Finalize(ctx, orch, pipeline.Retrier{MaxAttempts: 2}, pipeline.Options{ForceHumanReview: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.SessionID != "s-1" {
		t.Errorf("expected session id on result, got %q", res.SessionID)
	}
	if res.Verdict.Action != models.VerdictHumanReview {
		t.Errorf("expected human_review, got %v", res.Verdict.Action)
	}
	info := s.Info()
	if info.LastRunID != res.RunID || info.LastVerdict == nil {
		t.Errorf("expected last verdict to be stored, got %+v", info)
	}
	if !strings.Contains(res.Draft.Text, "ibuprofen") {
		t.Errorf("expected draft from running transcript, got %q", res.Draft.Text)
	}
}

func TestManager_Lifecycle(t *testing.T) {
	m := NewManager(testConfig(), &scriptedTranscriber{texts: []string{"x"}}, nil, nil)

	a, err := m.Create(0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := m.Create(2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.ID() == b.ID() {
		t.Error("expected distinct ids")
	}
	if a.ChunkSeconds() != 1 || b.ChunkSeconds() != 2 {
		t.Errorf("expected 1 and 2, got %v and %v", a.ChunkSeconds(), b.ChunkSeconds())
	}
	if _, err := m.Create(20); !errors.Is(err, ErrChunkDuration) {
		t.Errorf("expected ErrChunkDuration, got %v", err)
	}

	a.PushFrame(frame(0.5))
	if b.Info().BufferedSeconds != 0 {
		t.Error("expected sessions not to share buffers")
	}

	if got, ok := m.Get(a.ID()); !ok || got != a {
		t.Error("expected to find session a")
	}
	if !m.Delete(a.ID()) || m.Delete(a.ID()) {
		t.Error("expected delete to succeed once")
	}
	if m.Len() != 1 {
		t.Errorf("expected 1 session, got %d", m.Len())
	}
}

func TestReplay(t *testing.T) {
	data := make([]int, rate*7)
	wavBytes, err := audio.EncodeWAV(audio.Mono16(rate), data)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	tr := &scriptedTranscriber{texts: []string{"one", "two", "three"}}

	res, err := Replay(context.Background(), tr, bytes.NewReader(wavBytes), "visit", 3, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(res.Chunks))
	}
	if res.Chunks[2].Duration != 1 {
		t.Errorf("expected 1s final chunk, got %v", res.Chunks[2].Duration)
	}
	if res.Transcript.Text != "one two three" {
		t.Errorf("expected %q, got %q", "one two three", res.Transcript.Text)
	}
	if res.Transcript.Segments[2].Start != 6 {
		t.Errorf("expected third segment at 6s, got %v", res.Transcript.Segments[2].Start)
	}
}

func TestChunkedTranscriber(t *testing.T) {
	wavBytes, err := audio.EncodeWAV(audio.Mono16(rate), make([]int, rate*5/2))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	src := models.MemorySource{Label: "visit.wav", Data: wavBytes}

	tests := []struct {
		name     string
		errAt    int
		expected string
		wantErr  error
	}{
		{"all chunks", 0, "one two three", nil},
		{"second chunk fails", 2, "", models.ErrBackend},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inner := &scriptedTranscriber{texts: []string{"one", "two", "three"}, errAt: tt.errAt}
			tr := ChunkedTranscriber{Transcriber: inner, ChunkSeconds: 1}

			got, err := tr.Transcribe(context.Background(), src, "")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				if inner.calls != tt.errAt {
					t.Errorf("expected replay to stop after %d calls, got %d", tt.errAt, inner.calls)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Text != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got.Text)
			}
			if len(got.Segments) != 3 || got.Segments[2].Start != 2 {
				t.Errorf("expected 3 segments with the last at 2s, got %+v", got.Segments)
			}
		})
	}
	if p := (ChunkedTranscriber{Transcriber: &scriptedTranscriber{}}).Provider(); p != "scripted" {
		t.Errorf("expected scripted, got %q", p)
	}
}
