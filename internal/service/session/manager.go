package session

import (
	"sync"

	"github.com/google/uuid"

	"clinical-notes-service/internal/observability/logging"
	"clinical-notes-service/internal/observability/metrics"
	"clinical-notes-service/internal/service/audio"
	"clinical-notes-service/internal/service/stt"
)

// Manager tracks live sessions by ID. Sessions never share buffers.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	cfg         Config
	transcriber stt.Transcriber
	store       audio.Persister
	metrics     *metrics.Metrics
}

// NewManager creates a manager whose sessions use cfg, tr and store.
func NewManager(cfg Config, tr stt.Transcriber, store audio.Persister, m *metrics.Metrics) *Manager {
	return &Manager{
		sessions:    make(map[string]*Session),
		cfg:         cfg,
		transcriber: tr,
		store:       store,
		metrics:     m,
	}
}

// Config returns the session defaults.
func (m *Manager) Config() Config {
	return m.cfg
}

// Create opens a session. A zero chunkSeconds uses the default.
func (m *Manager) Create(chunkSeconds float64) (*Session, error) {
	cfg := m.cfg
	if chunkSeconds != 0 {
		cfg.ChunkSeconds = chunkSeconds
	}
	s, err := New(uuid.NewString(), cfg, m.transcriber, m.store, m.metrics)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[s.ID()] = s
	m.mu.Unlock()

	m.metrics.RecordSessionOpened()
	logger := logging.WithSession(s.ID())
	logger.Info().
		Float64("chunkSeconds", cfg.ChunkSeconds).
		Int("sampleRate", cfg.SampleRate).
		Msg("Session opened")
	return s, nil
}

// Get returns the session with id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Delete closes the session with id. It reports whether it existed.
func (m *Manager) Delete(id string) bool {
	m.mu.Lock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if ok {
		m.metrics.RecordSessionClosed()
		logger := logging.WithSession(id)
		logger.Info().Msg("Session closed")
	}
	return ok
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
