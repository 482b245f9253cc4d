// Package http exposes the note pipeline and live sessions over HTTP.
package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"clinical-notes-service/internal/app"
	"clinical-notes-service/internal/observability/logging"
)

// NewRouter constructs the HTTP router for the service.
func NewRouter(application *app.Application) http.Handler {
	h := &handlers{
		app:    application,
		logger: logging.WithComponent("http"),
	}

	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(recordRequests(application.Metrics))

	// Health endpoints
	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, _ *http.Request) {
		if !application.Ready() {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	// API routes
	r.Route("/v1", func(r chi.Router) {
		r.Post("/runs", h.createRun)
		r.Get("/runs/{runID}", h.getRun)
		r.Get("/runs/{runID}/events", h.runEvents)
		r.Post("/replay", h.replay)

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", h.createSession)
			r.Route("/{sessionID}", func(r chi.Router) {
				r.Get("/", h.getSession)
				r.Delete("/", h.deleteSession)
				r.Post("/frames", h.pushFrames)
				r.Get("/stream", h.stream)
				r.Put("/chunk-duration", h.setChunkDuration)
				r.Post("/reset", h.resetSession)
				r.Post("/finalize", h.finalizeSession)
			})
		})

		r.Get("/schema/{name}", h.schema)
		r.Get("/pipeline/diagram", h.diagram)
	})

	return otelhttp.NewHandler(r, "clinical-notes-api",
		otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}
