package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestInit_JSONWithService(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	defer func() { log.Logger = prev }()

	cfg := DefaultConfig()
	cfg.Output = &buf
	Init(cfg)

	logger := WithRun("run-1")
	logger.Info().Msg("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected json log line, got %q: %v", buf.String(), err)
	}
	if entry["service"] != "clinical-notes-service" {
		t.Errorf("expected service field, got %v", entry["service"])
	}
	if entry["runId"] != "run-1" {
		t.Errorf("expected runId field, got %v", entry["runId"])
	}
}

func TestInit_InvalidLevelFallsBackToInfo(t *testing.T) {
	prevLevel := zerolog.GlobalLevel()
	prev := log.Logger
	defer func() {
		zerolog.SetGlobalLevel(prevLevel)
		log.Logger = prev
	}()

	Init(Config{Level: "loud", Format: "json", Output: &bytes.Buffer{}})

	if zerolog.GlobalLevel() != zerolog.InfoLevel {
		t.Errorf("expected info level, got %v", zerolog.GlobalLevel())
	}
}

func TestWithChunk_Fields(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	defer func() { log.Logger = prev }()
	log.Logger = zerolog.New(&buf)

	l := WithChunk("sess", "sess-chunk-0")
	l.Info().Msg("x")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry["sessionId"] != "sess" || entry["chunkId"] != "sess-chunk-0" {
		t.Errorf("expected session and chunk fields, got %v", entry)
	}
}
