// Package app wires configuration, capabilities, sinks and stores into a
// running service.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"

	"clinical-notes-service/internal/config"
	"clinical-notes-service/internal/events"
	"clinical-notes-service/internal/models"
	"clinical-notes-service/internal/observability/logging"
	"clinical-notes-service/internal/observability/metrics"
	"clinical-notes-service/internal/schema"
	"clinical-notes-service/internal/service/audio"
	"clinical-notes-service/internal/service/draft"
	"clinical-notes-service/internal/service/normalize"
	"clinical-notes-service/internal/service/pipeline"
	"clinical-notes-service/internal/service/session"
	"clinical-notes-service/internal/service/stt"
	"clinical-notes-service/internal/service/stt/assemblyai"
	"clinical-notes-service/internal/service/stt/google"
	"clinical-notes-service/internal/service/stt/mock"
	"clinical-notes-service/internal/storage/auditstore"
	"clinical-notes-service/internal/storage/chunkstore"
	"clinical-notes-service/internal/storage/runstore"
)

// Application holds process-wide state for the service.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Config

	Registry  *prometheus.Registry
	Metrics   *metrics.Metrics
	Validator *schema.Validator

	Transcriber  stt.Transcriber
	Orchestrator *pipeline.Orchestrator
	Sessions     *session.Manager
	Runs         runstore.Store
	Audit        *auditstore.Store
	Publisher    *events.Publisher

	closers []io.Closer
	ready   atomic.Bool
}

// runStore is a run store that also receives finished runs from the orchestrator.
type runStore interface {
	runstore.Store
	pipeline.ResultSink
	io.Closer
}

// New constructs an Application from cfg and configures logging.
func New(cfg *config.Config) *Application {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a := &Application{
		Cfg:       cfg,
		Registry:  reg,
		Metrics:   metrics.NewMetrics(reg),
		Validator: schema.New(),
	}
	a.setupLogger()

	appLogger := a.Logger.With().
		Str("method", "New").
		Logger()

	appLogger.Info().Msg("Clinical notes service application created")
	return a
}

// setupLogger configures zerolog for the service.
// ZEROLOG_LOG_LEVEL overrides the configured level; ENV=dev selects console output.
func (a *Application) setupLogger() {
	lc := logging.DefaultConfig()
	lc.Level = a.Cfg.Observability.LogLevel
	if envLevel := os.Getenv("ZEROLOG_LOG_LEVEL"); envLevel != "" {
		lc.Level = strings.ToLower(envLevel)
	}
	lc.Format = a.Cfg.Observability.LogFormat
	if a.Cfg.Service.Env == "dev" {
		lc.Format = "console"
	}
	logging.Init(lc)

	a.Logger = logging.WithComponent("application")
	a.Logger.Info().
		Str("logLevel", zerolog.GlobalLevel().String()).
		Str("environment", a.Cfg.Service.Env).
		Msg("Logger setup completed")
}

// Build creates every capability, sink and store named in the configuration.
func (a *Application) Build(ctx context.Context) error {
	cfg := a.Cfg
	if err := cfg.Validate(); err != nil {
		return err
	}

	tr, err := a.buildTranscriber(ctx)
	if err != nil {
		return fmt.Errorf("transcriber: %w", err)
	}
	a.Transcriber = tr

	drafter := a.buildDrafter()

	ontology := normalize.DefaultOntology()
	if cfg.Normalize.OntologyPath != "" {
		if ontology, err = normalize.LoadOntology(cfg.Normalize.OntologyPath); err != nil {
			return fmt.Errorf("ontology: %w", err)
		}
	}

	a.Publisher = events.New(&events.Config{
		Enabled:          cfg.Kafka.Enabled,
		Brokers:          cfg.Kafka.Brokers,
		TopicTransitions: cfg.Kafka.TopicTransitions,
		TopicResults:     cfg.Kafka.TopicResults,
		Principal:        cfg.Kafka.Principal,
	}, a.Metrics)
	a.closers = append(a.closers, a.Publisher)

	runs, err := a.buildRunStore(ctx)
	if err != nil {
		return fmt.Errorf("run store: %w", err)
	}
	a.Runs = runs
	a.closers = append(a.closers, runs)

	transitions := []pipeline.TransitionSink{a.Publisher}
	results := []pipeline.ResultSink{a.Publisher, runs}
	if cfg.Database.Enabled {
		audit, err := auditstore.Open(ctx, auditstore.Config{
			DSN:          cfg.Database.DSN,
			MaxOpenConns: cfg.Database.MaxOpenConns,
			MaxIdleConns: cfg.Database.MaxIdleConns,
			AutoMigrate:  cfg.Database.AutoMigrate,
		})
		if err != nil {
			return fmt.Errorf("audit store: %w", err)
		}
		a.Audit = audit
		a.closers = append(a.closers, audit)
		transitions = append(transitions, audit)
	}

	a.Orchestrator = pipeline.New(pipeline.Deps{
		Transcriber: tr,
		Drafter:     drafter,
		Normalizer:  normalize.NewMatcher(ontology),
		Reviewer:    cfg.Review,
		Tracer:      otel.Tracer("clinical-notes-service/pipeline"),
		Transitions: transitions,
		Results:     results,
		Metrics:     a.Metrics,
	}, pipeline.Config{
		StageTimeout: cfg.Pipeline.StageTimeout,
	})

	store, err := a.buildChunkStore(ctx)
	if err != nil {
		return fmt.Errorf("chunk store: %w", err)
	}
	a.Sessions = session.NewManager(session.Config{
		SampleRate:      cfg.Streaming.SampleRateHz,
		ChunkSeconds:    cfg.Streaming.ChunkSeconds,
		MinChunkSeconds: cfg.Streaming.MinChunkSeconds,
		MaxChunkSeconds: cfg.Streaming.MaxChunkSeconds,
		LanguageHint:    cfg.STT.LanguageCode,
	}, tr, store, a.Metrics)

	a.Logger.Info().
		Str("sttProvider", tr.Provider()).
		Str("draftProvider", cfg.Draft.Provider).
		Str("chunkStore", cfg.Streaming.ChunkStore).
		Bool("kafka", cfg.Kafka.Enabled).
		Bool("redis", cfg.Redis.Enabled).
		Bool("database", cfg.Database.Enabled).
		Msg("Application components built")
	return nil
}

func (a *Application) buildTranscriber(ctx context.Context) (stt.Transcriber, error) {
	cfg := a.Cfg.STT
	switch cfg.Provider {
	case "google":
		gc := google.DefaultConfig()
		gc.LanguageCode = cfg.LanguageCode
		gc.Model = cfg.Model
		gc.AudioEncoding = cfg.AudioEncoding
		t, err := google.New(ctx, gc)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, t)
		return t, nil
	case "assemblyai":
		return assemblyai.New(cfg.AssemblyAIKey, cfg.LanguageCode), nil
	default:
		return mock.New(), nil
	}
}

func (a *Application) buildDrafter() draft.Drafter {
	cfg := a.Cfg.Draft
	if cfg.Provider != "groq" {
		return draft.NewTemplate()
	}
	gc := draft.DefaultGroqConfig()
	gc.APIKey = cfg.GroqAPIKey
	gc.BaseURL = cfg.GroqBaseURL
	gc.Models = draft.ModelList(cfg.Models[0], cfg.Models[1:])
	gc.Temperature = cfg.Temperature
	gc.MaxTokens = cfg.MaxTokens
	gc.MaxRetries = cfg.MaxRetries
	gc.Timeout = cfg.Timeout
	return draft.NewGroq(gc, a.Metrics)
}

func (a *Application) buildRunStore(ctx context.Context) (runStore, error) {
	cfg := a.Cfg.Redis
	if cfg.Enabled {
		s, err := runstore.NewRedisStore(ctx, runstore.RedisConfig{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
			TTL:      cfg.TTL,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return runstore.NewMemoryStore(a.Cfg.Observability.RunTTL, time.Minute), nil
}

func (a *Application) buildChunkStore(ctx context.Context) (audio.Persister, error) {
	cfg := a.Cfg
	switch cfg.Streaming.ChunkStore {
	case "fs":
		return chunkstore.NewFileStore(cfg.Streaming.ChunkDir)
	case "minio":
		return chunkstore.NewMinIOStore(ctx, chunkstore.MinIOConfig{
			Endpoint:        cfg.Storage.Endpoint,
			AccessKeyID:     cfg.Storage.AccessKeyID,
			SecretAccessKey: cfg.Storage.SecretAccessKey,
			Bucket:          cfg.Storage.Bucket,
			Prefix:          cfg.Storage.Prefix,
			UseSSL:          cfg.Storage.UseSSL,
		})
	default:
		return nil, nil
	}
}

// Retrier returns the regenerate policy for a request. Zero uses the configured attempts.
func (a *Application) Retrier(maxAttempts int) pipeline.Retrier {
	if maxAttempts <= 0 {
		maxAttempts = a.Cfg.Pipeline.MaxAttempts
	}
	return pipeline.Retrier{
		MaxAttempts:     maxAttempts,
		BaseTemperature: a.Cfg.Draft.Temperature,
		TemperatureStep: a.Cfg.Pipeline.TemperatureStep,
		Metrics:         a.Metrics,
	}
}

// RunEvents returns the event log of runID from the run store, falling back
// to the audit database for runs no longer cached.
func (a *Application) RunEvents(ctx context.Context, runID string) (models.EventLog, error) {
	res, err := a.Runs.Get(ctx, runID)
	if err == nil {
		return res.Events, nil
	}
	if !errors.Is(err, runstore.ErrNotFound) || a.Audit == nil {
		return nil, err
	}
	log, err := a.Audit.Events(ctx, runID)
	if err != nil {
		return nil, err
	}
	if len(log) == 0 {
		return nil, runstore.ErrNotFound
	}
	return log, nil
}

// Ready reports whether the application has started and not begun shutting down.
func (a *Application) Ready() bool {
	return a.ready.Load()
}

// Start performs any startup work required before serving traffic.
func (a *Application) Start() error {
	startLogger := a.Logger.With().
		Str("method", "Start").
		Logger()

	if a.Orchestrator == nil {
		return errors.New("application not built")
	}
	a.StartupTime = time.Now().UTC()
	a.ready.Store(true)
	startLogger.Info().
		Time("startupTime", a.StartupTime).
		Msg("Clinical notes service starting")

	return nil
}

// Shutdown closes sinks and stores in reverse order of creation.
func (a *Application) Shutdown() {
	shutdownLogger := a.Logger.With().
		Str("method", "Shutdown").
		Logger()

	a.ready.Store(false)
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			shutdownLogger.Error().Err(err).Msg("Error closing resource")
		}
	}
	a.closers = nil
	shutdownLogger.Info().Msg("Clinical notes service shutting down")
}
