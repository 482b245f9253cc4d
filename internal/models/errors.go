package models

import (
	"context"
	"errors"
)

// Error kinds shared by capabilities and the pipeline.
var (
	ErrInput           = errors.New("input error")
	ErrBackend         = errors.New("backend error")
	ErrBufferIntegrity = errors.New("buffer integrity violation")
)

// ErrorKind classifies err for failure markers and metric labels.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, ErrInput):
		return "input"
	case errors.Is(err, ErrBackend):
		return "backend"
	case errors.Is(err, ErrBufferIntegrity):
		return "integrity"
	default:
		return "unknown"
	}
}
