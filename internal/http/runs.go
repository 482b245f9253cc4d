package http

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"clinical-notes-service/internal/app"
	"clinical-notes-service/internal/models"
	"clinical-notes-service/internal/schema"
	"clinical-notes-service/internal/service/audio"
	"clinical-notes-service/internal/service/pipeline"
	"clinical-notes-service/internal/service/session"
)

type handlers struct {
	app    *app.Application
	logger zerolog.Logger
}

// timelineWidth is the wrap width of text event logs.
const timelineWidth = 100

// parseRunRequest reads the batch run options from the query string.
func parseRunRequest(r *http.Request) (schema.RunRequest, error) {
	var req schema.RunRequest
	q := r.URL.Query()
	var err error
	if v := q.Get("forceHumanReview"); v != "" {
		if req.ForceHumanReview, err = strconv.ParseBool(v); err != nil {
			return req, fmt.Errorf("%w: forceHumanReview: %v", models.ErrInput, err)
		}
	}
	if v := q.Get("maxAttempts"); v != "" {
		if req.MaxAttempts, err = strconv.Atoi(v); err != nil {
			return req, fmt.Errorf("%w: maxAttempts: %v", models.ErrInput, err)
		}
	}
	if v := q.Get("chunkSeconds"); v != "" {
		if req.ChunkSeconds, err = strconv.ParseFloat(v, 64); err != nil {
			return req, fmt.Errorf("%w: chunkSeconds: %v", models.ErrInput, err)
		}
	}
	req.Language = q.Get("language")
	return req, nil
}

// readWAV reads a bounded WAV upload and checks its header.
func (h *handlers) readWAV(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.app.Cfg.STT.MaxUploadBytes))
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty audio body", models.ErrInput)
	}
	if _, err := audio.ProbeWAV(bytes.NewReader(body)); err != nil {
		return nil, err
	}
	return body, nil
}

// transcribeContext bounds chunked transcription of an upload.
func (h *handlers) transcribeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if d := h.app.Cfg.STT.RequestDeadline; d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}

func (h *handlers) language(requested string) string {
	if requested != "" {
		return requested
	}
	return h.app.Cfg.STT.LanguageCode
}

// createRun drafts a note from an uploaded recording. With chunkSeconds set
// the recording is transcribed chunk by chunk as if it were streamed.
func (h *handlers) createRun(w http.ResponseWriter, r *http.Request) {
	req, err := parseRunRequest(r)
	if err == nil {
		err = h.app.Validator.Validate(req)
	}
	if err != nil {
		writeError(w, h.logger, err, nil)
		return
	}
	body, err := h.readWAV(w, r)
	if err != nil {
		writeError(w, h.logger, err, nil)
		return
	}

	ctx := r.Context()
	opts := pipeline.Options{
		ForceHumanReview: req.ForceHumanReview,
		LanguageHint:     h.language(req.Language),
	}
	orch := h.app.Orchestrator
	if req.ChunkSeconds > 0 {
		orch = orch.WithTranscriber(session.ChunkedTranscriber{
			Transcriber:  h.app.Transcriber,
			ChunkSeconds: req.ChunkSeconds,
		})
	}
	src := models.MemorySource{Label: "upload.wav", Data: body}
	run := func(ctx context.Context, o pipeline.Options) (*models.PipelineResult, error) {
		return orch.Run(ctx, src, o)
	}

	res, err := h.app.Retrier(req.MaxAttempts).Do(ctx, opts, run)
	if err != nil {
		writeError(w, h.logger, err, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handlers) getRun(w http.ResponseWriter, r *http.Request) {
	res, err := h.app.Runs.Get(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		writeError(w, h.logger, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// runEvents returns a run's event log as JSON, CSV or a text timeline.
func (h *handlers) runEvents(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	switch format {
	case "", "json", "csv", "text":
	default:
		writeError(w, h.logger, fmt.Errorf("%w: unknown format %q", models.ErrInput, format), nil)
		return
	}

	log, err := h.app.RunEvents(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		writeError(w, h.logger, err, nil)
		return
	}

	switch format {
	case "csv":
		w.Header().Set("Content-Type", "text/csv")
		if err := pipeline.WriteCSV(w, log); err != nil {
			h.logger.Error().Err(err).Msg("Failed to write event CSV")
		}
	case "text":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, pipeline.Timeline(log, timelineWidth))
	default:
		writeJSON(w, http.StatusOK, log)
	}
}

// replay transcribes an uploaded recording chunk by chunk without drafting.
func (h *handlers) replay(w http.ResponseWriter, r *http.Request) {
	req, err := parseRunRequest(r)
	if err == nil {
		err = h.app.Validator.Validate(req)
	}
	if err != nil {
		writeError(w, h.logger, err, nil)
		return
	}
	body, err := h.readWAV(w, r)
	if err != nil {
		writeError(w, h.logger, err, nil)
		return
	}
	chunkSeconds := req.ChunkSeconds
	if chunkSeconds == 0 {
		chunkSeconds = h.app.Cfg.Streaming.ChunkSeconds
	}

	ctx, cancel := h.transcribeContext(r.Context())
	defer cancel()
	res, err := session.Replay(ctx, h.app.Transcriber, bytes.NewReader(body), "upload.wav", chunkSeconds, h.language(req.Language))
	if err != nil {
		writeError(w, h.logger, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handlers) schema(w http.ResponseWriter, r *http.Request) {
	b, err := schema.Schema(chi.URLParam(r, "name"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
		return
	}
	w.Header().Set("Content-Type", "application/schema+json")
	_, _ = w.Write(b)
}

func (h *handlers) diagram(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/vnd.graphviz")
	_, _ = io.WriteString(w, pipeline.Diagram())
}
