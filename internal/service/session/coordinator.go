// Package session coordinates live recording sessions: it owns each session's
// audio buffer and running transcript and hands the transcript to the
// pipeline on demand.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"clinical-notes-service/internal/models"
	"clinical-notes-service/internal/observability/logging"
	"clinical-notes-service/internal/observability/metrics"
	"clinical-notes-service/internal/service/audio"
	"clinical-notes-service/internal/service/pipeline"
	"clinical-notes-service/internal/service/stt"
)

// ErrChunkDuration is returned for a chunk duration outside the allowed range.
var ErrChunkDuration = fmt.Errorf("%w: chunk duration out of range", models.ErrInput)

// ErrEmptyTranscript is returned when finalizing a session that has not
// transcribed any speech yet.
var ErrEmptyTranscript = fmt.Errorf("%w: session has no transcript", models.ErrInput)

// Config holds per-session streaming settings.
type Config struct {
	SampleRate      int     `validate:"gt=0"`
	ChunkSeconds    float64 `validate:"gtefield=MinChunkSeconds,ltefield=MaxChunkSeconds"`
	MinChunkSeconds float64 `validate:"gt=0"`
	MaxChunkSeconds float64 `validate:"gtefield=MinChunkSeconds"`
	LanguageHint    string
}

// DefaultConfig returns 16 kHz audio in 3 second chunks, adjustable from 1 to 8 seconds.
func DefaultConfig() Config {
	return Config{
		SampleRate:      16000,
		ChunkSeconds:    3,
		MinChunkSeconds: 1,
		MaxChunkSeconds: 8,
	}
}

// CheckChunkSeconds validates seconds against the configured range.
func (c Config) CheckChunkSeconds(seconds float64) error {
	if seconds < c.MinChunkSeconds || seconds > c.MaxChunkSeconds {
		return fmt.Errorf("%w: %v not in [%v, %v]", ErrChunkDuration, seconds, c.MinChunkSeconds, c.MaxChunkSeconds)
	}
	return nil
}

// Update describes one processed chunk.
type Update struct {
	SessionID  string  `json:"sessionId"`
	ChunkID    string  `json:"chunkId"`
	Index      int     `json:"index"`
	Offset     float64 `json:"offsetSeconds"`
	Duration   float64 `json:"durationSeconds"`
	Location   string  `json:"location,omitempty"`
	Text       string  `json:"text"`
	Transcript string  `json:"transcript"`
	Error      string  `json:"error,omitempty"`
}

// Info is a point-in-time view of a session.
type Info struct {
	ID              string          `json:"id"`
	CreatedAt       time.Time       `json:"createdAt"`
	ChunkSeconds    float64         `json:"chunkSeconds"`
	BufferedSeconds float64         `json:"bufferedSeconds"`
	Chunks          int             `json:"chunks"`
	Transcript      string          `json:"transcript"`
	LastRunID       string          `json:"lastRunId,omitempty"`
	LastVerdict     *models.Verdict `json:"lastVerdict,omitempty"`
}

// TranscriptRunner runs the note pipeline on an existing transcript.
type TranscriptRunner interface {
	RunTranscript(ctx context.Context, tr models.Transcript, opts pipeline.Options) (*models.PipelineResult, error)
}

// Session owns the buffer and running transcript of one live recording.
// Frames may be pushed while chunks are processed; chunk processing is
// serialized so transcripts are appended in emission order.
type Session struct {
	id          string
	cfg         Config
	buffer      *audio.Buffer
	transcriber stt.Transcriber
	metrics     *metrics.Metrics
	createdAt   time.Time

	process sync.Mutex

	mu           sync.Mutex
	chunkSeconds float64
	chunks       int
	running      running
	lastResult   *models.PipelineResult
}

// New creates a session. store may be nil to keep chunks in memory only.
func New(id string, cfg Config, tr stt.Transcriber, store audio.Persister, m *metrics.Metrics) (*Session, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate must be positive", models.ErrInput)
	}
	if err := cfg.CheckChunkSeconds(cfg.ChunkSeconds); err != nil {
		return nil, err
	}
	return &Session{
		id:           id,
		cfg:          cfg,
		buffer:       audio.NewBufferWithStore(id, cfg.SampleRate, store),
		transcriber:  tr,
		metrics:      m,
		createdAt:    time.Now().UTC(),
		chunkSeconds: cfg.ChunkSeconds,
	}, nil
}

// ID returns the session ID.
func (s *Session) ID() string {
	return s.id
}

// SampleRate returns the expected frame sample rate.
func (s *Session) SampleRate() int {
	return s.cfg.SampleRate
}

// ChunkSeconds returns the current chunk duration.
func (s *Session) ChunkSeconds() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chunkSeconds
}

// SetChunkDuration changes the chunk duration for the next pop.
func (s *Session) SetChunkDuration(seconds float64) error {
	if err := s.cfg.CheckChunkSeconds(seconds); err != nil {
		return err
	}
	s.mu.Lock()
	s.chunkSeconds = seconds
	s.mu.Unlock()
	logger := logging.WithSession(s.id)
	logger.Info().Float64("chunkSeconds", seconds).Msg("Chunk duration changed")
	return nil
}

// PushFrame appends mono samples to the buffer. Never blocks on transcription.
func (s *Session) PushFrame(samples []int16) {
	s.buffer.PushFrame(samples)
	s.metrics.RecordAudioReceived(len(samples))
}

// ProcessReady pops a chunk once enough audio is buffered and transcribes it.
// It returns nil when the buffer is below the chunk duration.
//
// A chunk that fails to transcribe is reported in the update and the error;
// its audio is not retried.
func (s *Session) ProcessReady(ctx context.Context) (*Update, error) {
	s.process.Lock()
	defer s.process.Unlock()

	chunk, err := s.buffer.PopChunkIfReady(ctx, s.ChunkSeconds())
	return s.handle(ctx, chunk, err)
}

// Drain transcribes whatever is buffered, however short. It returns nil when
// the buffer is empty.
func (s *Session) Drain(ctx context.Context) (*Update, error) {
	s.process.Lock()
	defer s.process.Unlock()

	chunk, err := s.buffer.Drain(ctx)
	return s.handle(ctx, chunk, err)
}

func (s *Session) handle(ctx context.Context, chunk *audio.Chunk, err error) (*Update, error) {
	if chunk == nil {
		return nil, err
	}
	logger := logging.WithChunk(s.id, chunk.ID)
	if err != nil {
		// The chunk is intact in memory; only persisting it failed.
		s.metrics.RecordChunkError("persist")
		logger.Warn().Err(err).Msg("Chunk not persisted")
	}
	s.metrics.RecordChunk(chunk.Duration())

	u := &Update{
		SessionID: s.id,
		ChunkID:   chunk.ID,
		Index:     chunk.Index,
		Offset:    chunk.Offset(),
		Duration:  chunk.Duration(),
		Location:  chunk.Location,
	}

	tr, err := s.transcriber.Transcribe(ctx, chunk, s.cfg.LanguageHint)
	if err != nil {
		s.metrics.RecordChunkError("transcribe")
		logger.Error().Err(err).Msg("Chunk transcription failed")
		u.Error = err.Error()
		s.mu.Lock()
		s.chunks++
		u.Transcript = s.running.text
		s.mu.Unlock()
		return u, err
	}

	s.mu.Lock()
	s.chunks++
	s.running.add(chunk.Offset(), tr)
	u.Transcript = s.running.text
	s.mu.Unlock()
	u.Text = tr.Text

	logger.Info().
		Int("samples", chunk.Frames).
		Float64("durationSeconds", u.Duration).
		Int("textLength", len(tr.Text)).
		Msg("Chunk transcribed")
	return u, nil
}

// Consume processes ready chunks every tick, passing each update to fn,
// until stop is closed or ctx is done. Closing stop lets a chunk already in
// flight finish on ctx; cancelling ctx aborts it. Transcription failures are
// passed on and consumption continues; a buffer integrity violation stops it.
func (s *Session) Consume(ctx context.Context, stop <-chan struct{}, tick time.Duration, fn func(*Update)) error {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			u, err := s.ProcessReady(ctx)
			if errors.Is(err, models.ErrBufferIntegrity) {
				return err
			}
			if u != nil && fn != nil {
				fn(u)
			}
		}
	}
}

// Transcript returns a copy of the running transcript.
func (s *Session) Transcript() models.Transcript {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running.transcript()
}

// LastResult returns the most recent finalize result, if any.
func (s *Session) LastResult() *models.PipelineResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastResult
}

// Reset drops buffered audio, the running transcript and the last verdict.
func (s *Session) Reset() {
	s.process.Lock()
	defer s.process.Unlock()

	s.buffer.Reset()
	s.mu.Lock()
	s.running = running{}
	s.chunks = 0
	s.lastResult = nil
	s.mu.Unlock()
	logger := logging.WithSession(s.id)
	logger.Info().Msg("Session reset")
}

// Finalize drafts and reviews a note from the running transcript. The
// retrier decides how often a regenerate verdict is retried.
func (s *Session) Finalize(ctx context.Context, runner TranscriptRunner, retrier pipeline.Retrier, opts pipeline.Options) (*models.PipelineResult, error) {
	tr := s.Transcript()
	if tr.Text == "" {
		return nil, ErrEmptyTranscript
	}
	opts.SessionID = s.id
	if opts.LanguageHint == "" {
		opts.LanguageHint = s.cfg.LanguageHint
	}

	res, err := retrier.Do(ctx, opts, func(ctx context.Context, o pipeline.Options) (*models.PipelineResult, error) {
		return runner.RunTranscript(ctx, tr, o)
	})
	if res != nil && !res.Failed() {
		s.mu.Lock()
		s.lastResult = res
		s.mu.Unlock()
	}
	return res, err
}

// Info returns a snapshot of the session.
func (s *Session) Info() Info {
	buffered := s.buffer.Duration()
	s.mu.Lock()
	defer s.mu.Unlock()
	info := Info{
		ID:              s.id,
		CreatedAt:       s.createdAt,
		ChunkSeconds:    s.chunkSeconds,
		BufferedSeconds: buffered,
		Chunks:          s.chunks,
		Transcript:      s.running.text,
	}
	if s.lastResult != nil {
		info.LastRunID = s.lastResult.RunID
		info.LastVerdict = s.lastResult.Verdict
	}
	return info
}
