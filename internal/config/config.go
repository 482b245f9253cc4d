// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"clinical-notes-service/internal/service/review"
)

// Config holds all service configuration.
type Config struct {
	Service       ServiceConfig
	STT           STTConfig
	Draft         DraftConfig
	Review        review.Policy
	Normalize     NormalizeConfig
	Streaming     StreamingConfig
	Pipeline      PipelineConfig
	Kafka         KafkaConfig
	Storage       StorageConfig
	Redis         RedisConfig
	Database      DatabaseConfig
	Observability ObservabilityConfig
}

// ServiceConfig holds listener and identity settings.
type ServiceConfig struct {
	Principal   string `validate:"required"`
	HTTPAddr    string `validate:"required"`
	GRPCPort    string `validate:"required,numeric"`
	MetricsAddr string `validate:"required"`
	Env         string
}

// STTConfig selects and configures the transcriber.
type STTConfig struct {
	Provider        string `validate:"oneof=mock google assemblyai"`
	LanguageCode    string
	Model           string
	AudioEncoding   string
	AssemblyAIKey   string `validate:"required_if=Provider assemblyai"`
	MaxUploadBytes  int64  `validate:"gt=0"`
	RequestDeadline time.Duration
}

// DraftConfig selects and configures the drafter.
type DraftConfig struct {
	Provider    string   `validate:"oneof=mock groq"`
	GroqAPIKey  string   `validate:"required_if=Provider groq"`
	GroqBaseURL string   `validate:"omitempty,url"`
	Models      []string `validate:"min=1,dive,required"`
	Temperature float64  `validate:"gte=0,lte=2"`
	MaxTokens   int      `validate:"gt=0"`
	MaxRetries  int      `validate:"gte=0"`
	Timeout     time.Duration
}

// NormalizeConfig points at an ontology file. Empty uses the embedded default.
type NormalizeConfig struct {
	OntologyPath string
}

// StreamingConfig holds live session settings.
type StreamingConfig struct {
	SampleRateHz    int     `validate:"gt=0"`
	ChunkSeconds    float64 `validate:"gtefield=MinChunkSeconds,ltefield=MaxChunkSeconds"`
	MinChunkSeconds float64 `validate:"gt=0"`
	MaxChunkSeconds float64 `validate:"gtefield=MinChunkSeconds"`
	ChunkStore      string  `validate:"oneof=none fs minio"`
	ChunkDir        string  `validate:"required_if=ChunkStore fs"`
	ConsumeInterval time.Duration
}

// PipelineConfig holds orchestration settings.
type PipelineConfig struct {
	StageTimeout    time.Duration
	MaxAttempts     int     `validate:"gte=1,lte=10"`
	TemperatureStep float64 `validate:"gte=0"`
}

// KafkaConfig holds event publishing settings.
type KafkaConfig struct {
	Enabled          bool
	Brokers          []string
	TopicTransitions string
	TopicResults     string
	Principal        string
}

// StorageConfig holds MinIO settings for chunk persistence.
type StorageConfig struct {
	Endpoint        string `validate:"required_if=Enabled true"`
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string `validate:"required_if=Enabled true"`
	Prefix          string
	UseSSL          bool
	Enabled         bool
}

// RedisConfig holds run cache settings.
type RedisConfig struct {
	Enabled  bool
	Addr     string `validate:"required_if=Enabled true"`
	Password string
	DB       int
	TTL      time.Duration
}

// DatabaseConfig holds audit database settings.
type DatabaseConfig struct {
	Enabled      bool
	DSN          string `validate:"required_if=Enabled true"`
	MaxOpenConns int
	MaxIdleConns int
	AutoMigrate  bool
}

// ObservabilityConfig holds logging and in-memory retention settings.
type ObservabilityConfig struct {
	LogLevel  string `validate:"oneof=trace debug info warn error"`
	LogFormat string `validate:"oneof=json console"`
	RunTTL    time.Duration
}

// Load reads a .env file when present, then the environment.
// Unparseable values fall back to defaults.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg(".env file not found, using environment variables or defaults")
	}

	principal := envOrDefault("SERVICE_PRINCIPAL", "svc-clinical-notes")
	policy := review.DefaultPolicy()

	return &Config{
		Service: ServiceConfig{
			Principal:   principal,
			HTTPAddr:    envOrDefault("HTTP_ADDR", ":8080"),
			GRPCPort:    envOrDefault("GRPC_PORT", "50051"),
			MetricsAddr: envOrDefault("METRICS_ADDR", ":9090"),
			Env:         envOrDefault("ENV", "prod"),
		},
		STT: STTConfig{
			Provider:        strings.ToLower(envOrDefault("STT_PROVIDER", "mock")),
			LanguageCode:    envOrDefault("STT_LANGUAGE_CODE", "en-US"),
			Model:           envOrDefault("STT_MODEL", "medical_conversation"),
			AudioEncoding:   envOrDefault("STT_AUDIO_ENCODING", "LINEAR16"),
			AssemblyAIKey:   os.Getenv("ASSEMBLYAI_API_KEY"),
			MaxUploadBytes:  envOrDefaultInt64("STT_MAX_UPLOAD_BYTES", 50*1024*1024),
			RequestDeadline: envOrDefaultDuration("STT_REQUEST_DEADLINE", 90*time.Second),
		},
		Draft: DraftConfig{
			Provider:    strings.ToLower(envOrDefault("DRAFT_PROVIDER", "mock")),
			GroqAPIKey:  os.Getenv("GROQ_API_KEY"),
			GroqBaseURL: envOrDefault("GROQ_BASE_URL", "https://api.groq.com"),
			Models: envOrDefaultList("DRAFT_MODELS", []string{
				"llama3-70b-8192", "llama-3.3-70b-versatile", "llama-3.1-8b-instant",
			}),
			Temperature: envOrDefaultFloat("DRAFT_TEMPERATURE", 0.2),
			MaxTokens:   envOrDefaultInt("DRAFT_MAX_TOKENS", 700),
			MaxRetries:  envOrDefaultInt("DRAFT_MAX_RETRIES", 2),
			Timeout:     envOrDefaultDuration("DRAFT_TIMEOUT", 60*time.Second),
		},
		Review: review.Policy{
			MinLength:        envOrDefaultInt("REVIEW_MIN_LENGTH", policy.MinLength),
			MaxLength:        envOrDefaultInt("REVIEW_MAX_LENGTH", policy.MaxLength),
			RequireSections:  envOrDefaultBool("REVIEW_REQUIRE_SECTIONS", policy.RequireSections),
			SectionMarkers:   envOrDefaultList("REVIEW_SECTION_MARKERS", policy.SectionMarkers),
			HedgingPhrases:   envOrDefaultList("REVIEW_HEDGING_PHRASES", policy.HedgingPhrases),
			HedgingThreshold: envOrDefaultInt("REVIEW_HEDGING_THRESHOLD", policy.HedgingThreshold),
		},
		Normalize: NormalizeConfig{
			OntologyPath: os.Getenv("NORMALIZE_ONTOLOGY_PATH"),
		},
		Streaming: StreamingConfig{
			SampleRateHz:    envOrDefaultInt("STREAM_SAMPLE_RATE_HZ", 16000),
			ChunkSeconds:    envOrDefaultFloat("STREAM_CHUNK_SECONDS", 3),
			MinChunkSeconds: envOrDefaultFloat("STREAM_MIN_CHUNK_SECONDS", 1),
			MaxChunkSeconds: envOrDefaultFloat("STREAM_MAX_CHUNK_SECONDS", 8),
			ChunkStore:      strings.ToLower(envOrDefault("STREAM_CHUNK_STORE", "none")),
			ChunkDir:        envOrDefault("STREAM_CHUNK_DIR", "chunks"),
			ConsumeInterval: envOrDefaultDuration("STREAM_CONSUME_INTERVAL", 250*time.Millisecond),
		},
		Pipeline: PipelineConfig{
			StageTimeout:    envOrDefaultDuration("PIPELINE_STAGE_TIMEOUT", 2*time.Minute),
			MaxAttempts:     envOrDefaultInt("PIPELINE_MAX_ATTEMPTS", 2),
			TemperatureStep: envOrDefaultFloat("PIPELINE_TEMPERATURE_STEP", 0.1),
		},
		Kafka: KafkaConfig{
			Enabled:          envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:          envOrDefaultList("KAFKA_BROKERS", nil),
			TopicTransitions: envOrDefault("KAFKA_TOPIC_TRANSITIONS", "clinical.notes.transitions"),
			TopicResults:     envOrDefault("KAFKA_TOPIC_RESULTS", "clinical.notes.results"),
			Principal:        envOrDefault("KAFKA_PRINCIPAL", principal),
		},
		Storage: StorageConfig{
			Endpoint:        envOrDefault("MINIO_ENDPOINT", "localhost:9000"),
			AccessKeyID:     os.Getenv("MINIO_ACCESS_KEY"),
			SecretAccessKey: os.Getenv("MINIO_SECRET_KEY"),
			Bucket:          envOrDefault("MINIO_BUCKET", "clinical-audio"),
			Prefix:          envOrDefault("MINIO_PREFIX", "sessions"),
			UseSSL:          envOrDefaultBool("MINIO_USE_SSL", false),
			Enabled:         envOrDefault("STREAM_CHUNK_STORE", "none") == "minio",
		},
		Redis: RedisConfig{
			Enabled:  envOrDefaultBool("REDIS_ENABLED", false),
			Addr:     envOrDefault("REDIS_ADDR", "localhost:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       envOrDefaultInt("REDIS_DB", 0),
			TTL:      envOrDefaultDuration("REDIS_RUN_TTL", 24*time.Hour),
		},
		Database: DatabaseConfig{
			Enabled:      envOrDefaultBool("DATABASE_ENABLED", false),
			DSN:          os.Getenv("DATABASE_DSN"),
			MaxOpenConns: envOrDefaultInt("DATABASE_MAX_OPEN_CONNS", 10),
			MaxIdleConns: envOrDefaultInt("DATABASE_MAX_IDLE_CONNS", 2),
			AutoMigrate:  envOrDefaultBool("DATABASE_AUTO_MIGRATE", true),
		},
		Observability: ObservabilityConfig{
			LogLevel:  strings.ToLower(envOrDefault("LOG_LEVEL", "info")),
			LogFormat: strings.ToLower(envOrDefault("LOG_FORMAT", "json")),
			RunTTL:    envOrDefaultDuration("RUN_TTL", time.Hour),
		},
	}
}

// Validate checks the configuration with its struct tags.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return def
}

func envOrDefaultInt64(key string, def int64) int64 {
	if v, err := strconv.ParseInt(os.Getenv(key), 10, 64); err == nil {
		return v
	}
	return def
}

func envOrDefaultFloat(key string, def float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return def
}

// envOrDefaultList splits a comma-separated value, dropping blanks.
func envOrDefaultList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
