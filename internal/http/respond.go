package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"clinical-notes-service/internal/models"
	"clinical-notes-service/internal/service/pipeline"
	"clinical-notes-service/internal/storage/runstore"
)

type errorBody struct {
	Error  string                 `json:"error"`
	Stage  string                 `json:"stage,omitempty"`
	Kind   string                 `json:"kind,omitempty"`
	Result *models.PipelineResult `json:"result,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps an error to a response status.
func statusFor(err error) int {
	var stageErr *pipeline.StageError
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, runstore.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &stageErr):
		switch stageErr.Kind {
		case "input":
			return http.StatusUnprocessableEntity
		case "timeout":
			return http.StatusGatewayTimeout
		default:
			return http.StatusBadGateway
		}
	case errors.Is(err, models.ErrInput):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrBufferIntegrity):
		return http.StatusConflict
	case errors.Is(err, models.ErrBackend):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError reports err, attaching the failed run when there is one.
func writeError(w http.ResponseWriter, logger zerolog.Logger, err error, result *models.PipelineResult) {
	status := statusFor(err)
	body := errorBody{Error: err.Error(), Result: result}
	var stageErr *pipeline.StageError
	if errors.As(err, &stageErr) {
		body.Stage = stageErr.Stage
		body.Kind = stageErr.Kind
	}
	if status >= http.StatusInternalServerError {
		logger.Error().Err(err).Int("status", status).Msg("Request failed")
	} else {
		logger.Debug().Err(err).Int("status", status).Msg("Request rejected")
	}
	writeJSON(w, status, body)
}

// decodeOptional decodes a JSON body into v, accepting an empty body.
func decodeOptional(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%w: invalid JSON body: %v", models.ErrInput, err)
	}
	return nil
}
