package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"clinical-notes-service/internal/observability/logging"
	"clinical-notes-service/internal/schema"
	"clinical-notes-service/internal/service/audio"
	"clinical-notes-service/internal/service/pipeline"
	"clinical-notes-service/internal/service/session"
	"clinical-notes-service/internal/storage/runstore"
)

// endOfStream is the text message a streaming client sends after its last frame.
const endOfStream = "end"

const defaultConsumeInterval = 250 * time.Millisecond

var upgrader = websocket.Upgrader{
	ReadBufferSize:  16 * 1024,
	WriteBufferSize: 16 * 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

var errSessionNotFound = fmt.Errorf("session %w", runstore.ErrNotFound)

func (h *handlers) lookup(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, ok := h.app.Sessions.Get(chi.URLParam(r, "sessionID"))
	if !ok {
		writeError(w, h.logger, errSessionNotFound, nil)
	}
	return s, ok
}

func (h *handlers) createSession(w http.ResponseWriter, r *http.Request) {
	var req schema.CreateSessionRequest
	err := decodeOptional(r, &req)
	if err == nil {
		err = h.app.Validator.Validate(req)
	}
	if err != nil {
		writeError(w, h.logger, err, nil)
		return
	}

	s, err := h.app.Sessions.Create(req.ChunkSeconds)
	if err != nil {
		writeError(w, h.logger, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, s.Info())
}

func (h *handlers) getSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.Info())
}

func (h *handlers) deleteSession(w http.ResponseWriter, r *http.Request) {
	if !h.app.Sessions.Delete(chi.URLParam(r, "sessionID")) {
		writeError(w, h.logger, errSessionNotFound, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// pushFrames appends a PCM16LE body to the session and transcribes a chunk
// if one became ready. It answers 202 when no chunk was ready.
func (h *handlers) pushFrames(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.app.Cfg.STT.MaxUploadBytes))
	if err != nil {
		writeError(w, h.logger, err, nil)
		return
	}
	samples, err := audio.DecodePCM16LE(body)
	if err != nil {
		writeError(w, h.logger, err, nil)
		return
	}
	s.PushFrame(samples)

	u, err := s.ProcessReady(r.Context())
	if err != nil && u == nil {
		writeError(w, h.logger, err, nil)
		return
	}
	if u == nil {
		writeJSON(w, http.StatusAccepted, s.Info())
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *handlers) setChunkDuration(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var req schema.ChunkDurationRequest
	err := decodeOptional(r, &req)
	if err == nil {
		err = h.app.Validator.Validate(req)
	}
	if err == nil {
		err = s.SetChunkDuration(req.Seconds)
	}
	if err != nil {
		writeError(w, h.logger, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, s.Info())
}

func (h *handlers) resetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	s.Reset()
	writeJSON(w, http.StatusOK, s.Info())
}

// finalizeSession drafts a note from the running transcript, optionally
// transcribing the buffered tail first.
func (h *handlers) finalizeSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var req schema.FinalizeRequest
	err := decodeOptional(r, &req)
	if err == nil {
		err = h.app.Validator.Validate(req)
	}
	if err != nil {
		writeError(w, h.logger, err, nil)
		return
	}

	if req.Drain {
		if _, err := s.Drain(r.Context()); err != nil {
			writeError(w, h.logger, err, nil)
			return
		}
	}

	res, err := s.Finalize(r.Context(), h.app.Orchestrator, h.app.Retrier(req.MaxAttempts), pipeline.Options{
		ForceHumanReview: req.ForceHumanReview,
		LanguageHint:     req.Language,
	})
	if err != nil {
		writeError(w, h.logger, err, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// stream upgrades to a websocket. Binary messages are PCM16LE frames; chunk
// updates are written back as JSON. The text message "end" drains the buffer,
// writes the last update and closes the connection.
func (h *handlers) stream(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	logger := logging.WithSession(s.ID())
	logger.Info().Msg("Stream connected")

	var writeMu sync.Mutex
	send := func(u *session.Update) {
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := conn.WriteJSON(u); err != nil {
			logger.Warn().Err(err).Msg("Update write failed")
		}
	}

	interval := h.app.Cfg.Streaming.ConsumeInterval
	if interval <= 0 {
		interval = defaultConsumeInterval
	}
	stop := make(chan struct{})
	consumed := make(chan error, 1)
	go func() {
		consumed <- s.Consume(r.Context(), stop, interval, send)
	}()

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn().Err(err).Msg("Stream read failed")
			}
			break
		}
		if kind == websocket.TextMessage {
			if strings.TrimSpace(string(data)) == endOfStream {
				break
			}
			continue
		}
		samples, err := audio.DecodePCM16LE(data)
		if err != nil {
			logger.Warn().Err(err).Msg("Dropping malformed frame")
			continue
		}
		s.PushFrame(samples)
	}

	close(stop)
	if err := <-consumed; err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("Chunk consumption stopped")
	}

	u, err := s.Drain(r.Context())
	if u != nil {
		send(u)
	} else if err != nil {
		logger.Error().Err(err).Msg("Final drain failed")
	}

	writeMu.Lock()
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "stream ended"))
	writeMu.Unlock()
	logger.Info().Int("chunks", s.Info().Chunks).Msg("Stream closed")
}
