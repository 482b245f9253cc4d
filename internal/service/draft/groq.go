package draft

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"clinical-notes-service/internal/models"
	"clinical-notes-service/internal/observability/logging"
	"clinical-notes-service/internal/observability/metrics"
)

// DefaultFallbackModels are tried after the configured model.
var DefaultFallbackModels = []string{"llama-3.3-70b-versatile", "llama-3.1-8b-instant"}

// GroqConfig holds Groq chat-completions settings.
type GroqConfig struct {
	APIKey      string
	BaseURL     string
	Models      []string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration

	// Transient failures (429, 5xx, network) are retried on the same model
	// MaxRetries times before moving to the next model.
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultGroqConfig returns the default model order and sampling settings.
func DefaultGroqConfig() GroqConfig {
	return GroqConfig{
		BaseURL:         "https://api.groq.com",
		Models:          ModelList("llama3-70b-8192", DefaultFallbackModels),
		Temperature:     0.2,
		MaxTokens:       700,
		Timeout:         60 * time.Second,
		MaxRetries:      2,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     5 * time.Second,
	}
}

// Groq drafts notes through the Groq OpenAI-compatible API.
type Groq struct {
	cfg     GroqConfig
	client  *http.Client
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewGroq creates a Groq drafter. m may be nil.
func NewGroq(cfg GroqConfig, m *metrics.Metrics) *Groq {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.groq.com"
	}
	return &Groq{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport,
				otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
					return "groq " + r.URL.Path
				}),
			),
		},
		metrics: m,
		logger:  logging.WithComponent("drafter"),
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("groq returned status %d: %s", e.code, e.body)
}

func (e *statusError) transient() bool {
	return e.code == http.StatusTooManyRequests || e.code >= 500
}

// Draft tries each configured model in order and returns the first note.
// The last model error is surfaced when all of them fail.
func (g *Groq) Draft(ctx context.Context, req Request) (models.Draft, error) {
	if strings.TrimSpace(req.TranscriptText) == "" {
		return models.Draft{}, emptyTranscript()
	}
	if len(g.cfg.Models) == 0 {
		return models.Draft{}, &DraftError{Err: fmt.Errorf("%w: no models configured", models.ErrBackend)}
	}

	temperature := g.cfg.Temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	messages := soapMessages(req.TranscriptText)

	var attempts []Attempt
	var lastErr error
	for i, model := range g.cfg.Models {
		text, err := g.withRetry(ctx, model, messages, temperature)
		if err == nil {
			g.metrics.RecordDraftAttempt(model, "success")
			return models.Draft{Text: text, Model: model}, nil
		}
		g.metrics.RecordDraftAttempt(model, "failure")
		attempts = append(attempts, Attempt{Model: model, Error: err.Error()})
		lastErr = err

		if ctx.Err() != nil {
			break
		}
		if i+1 < len(g.cfg.Models) {
			g.logger.Warn().
				Err(err).
				Str("model", model).
				Str("nextModel", g.cfg.Models[i+1]).
				Msg("Model rejected draft request, falling back")
		}
	}

	kind := models.ErrBackend
	if ctxErr := ctx.Err(); ctxErr != nil {
		return models.Draft{}, &DraftError{Attempts: attempts, Err: fmt.Errorf("%w: %w", kind, ctxErr)}
	}
	return models.Draft{}, &DraftError{Attempts: attempts, Err: fmt.Errorf("%w: %v", kind, lastErr)}
}

func (g *Groq) withRetry(ctx context.Context, model string, messages []chatMessage, temperature float64) (string, error) {
	bo := backoff.NewExponentialBackOff()
	if g.cfg.InitialInterval > 0 {
		bo.InitialInterval = g.cfg.InitialInterval
	}
	if g.cfg.MaxInterval > 0 {
		bo.MaxInterval = g.cfg.MaxInterval
	}
	retries := g.cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}

	var text string
	op := func() error {
		out, err := g.complete(ctx, model, messages, temperature)
		if err != nil {
			var se *statusError
			if errors.As(err, &se) && !se.transient() {
				return backoff.Permanent(err)
			}
			return err
		}
		text = out
		return nil
	}
	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(retries)), ctx))
	return text, err
}

func (g *Groq) complete(ctx context.Context, model string, messages []chatMessage, temperature float64) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   g.cfg.MaxTokens,
	})
	if err != nil {
		return "", backoff.Permanent(err)
	}

	endpoint := strings.TrimRight(g.cfg.BaseURL, "/") + "/openai/v1/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", backoff.Permanent(err)
	}
	req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(msg))}
	}

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", backoff.Permanent(fmt.Errorf("decode groq response: %w", err))
	}
	if len(cr.Choices) == 0 || strings.TrimSpace(cr.Choices[0].Message.Content) == "" {
		return "", backoff.Permanent(errors.New("empty response from groq"))
	}
	return strings.TrimSpace(cr.Choices[0].Message.Content), nil
}
